package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/npezzotti/go-matchcenter/internal/types"
)

const (
	DefaultTimeout     = 10 * time.Second
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	maxBodySize        = 4 << 20
)

var (
	ErrUnsuccessful = errors.New("response reported success=false")
	ErrEmptyId      = errors.New("match id is empty")
	ErrNotFound     = errors.New("not found")
)

// ResponseError is returned for any response that could not be turned into
// data: non-2xx status codes and malformed envelopes. Only 5xx responses are
// retried.
type ResponseError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Message, e.Err.Error())
	}

	return fmt.Sprintf("%d %s", e.StatusCode, e.Message)
}

func (e *ResponseError) Unwrap() error {
	return e.Err
}

type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type Client struct {
	baseURL     string
	httpClient  *http.Client
	log         *log.Logger
	timeout     time.Duration
	maxAttempts int
	baseDelay   time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetry overrides the number of attempts and the first backoff delay.
// The delay doubles after every failed attempt.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(c *Client) {
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
		c.baseDelay = baseDelay
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func NewClient(baseURL string, logger *log.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:     baseURL,
		httpClient:  &http.Client{},
		log:         logger,
		timeout:     DefaultTimeout,
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchJSON performs GET baseURL+path, unwraps the {success, data} envelope
// and decodes data into v. Transient failures (network errors, timeouts and
// 5xx responses) are retried with exponential backoff; everything else is
// returned immediately.
func (c *Client) FetchJSON(ctx context.Context, path string, v any) error {
	delay := c.baseDelay
	for attempt := 1; ; attempt++ {
		err := c.fetchOnce(ctx, path, v)
		if err == nil {
			return nil
		}

		if !c.transient(ctx, err) || attempt >= c.maxAttempts {
			return fmt.Errorf("fetch %s: %w", path, err)
		}

		c.log.Printf("fetch %s: attempt %d/%d failed: %v, retrying in %s", path, attempt, c.maxAttempts, err, delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("fetch %s: %w", path, ctx.Err())
		}
		delay *= 2
	}
}

func (c *Client) fetchOnce(ctx context.Context, path string, v any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return &ResponseError{Message: "build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respErr := &ResponseError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
		}
		var env envelope
		if json.Unmarshal(body, &env) == nil && env.Error != nil && env.Error.Message != "" {
			respErr.Message = env.Error.Message
		}
		if resp.StatusCode == http.StatusNotFound {
			respErr.Err = ErrNotFound
		}
		return respErr
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return &ResponseError{StatusCode: resp.StatusCode, Message: "malformed response envelope", Err: err}
	}
	if env.Success != nil && !*env.Success {
		return &ResponseError{StatusCode: resp.StatusCode, Message: "request failed", Err: ErrUnsuccessful}
	}
	if v == nil {
		return nil
	}
	if len(env.Data) == 0 {
		return &ResponseError{StatusCode: resp.StatusCode, Message: "malformed response envelope", Err: errors.New("missing data")}
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return &ResponseError{StatusCode: resp.StatusCode, Message: "malformed response data", Err: err}
	}

	return nil
}

// transient reports whether err may succeed on retry. Cancellation of the
// caller's context is never transient.
func (c *Client) transient(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}

	var respErr *ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode >= 500
	}

	return true
}

type matchList struct {
	Matches []types.Match `json:"matches"`
	Total   int           `json:"total,omitempty"`
}

// Matches fetches GET /api/matches. Entries failing validation are dropped.
func (c *Client) Matches(ctx context.Context) ([]types.Match, error) {
	return c.matchList(ctx, "/api/matches")
}

// LiveMatches fetches GET /api/matches/live.
func (c *Client) LiveMatches(ctx context.Context) ([]types.Match, error) {
	return c.matchList(ctx, "/api/matches/live")
}

func (c *Client) matchList(ctx context.Context, path string) ([]types.Match, error) {
	var list matchList
	if err := c.FetchJSON(ctx, path, &list); err != nil {
		return nil, err
	}

	matches := make([]types.Match, 0, len(list.Matches))
	for _, m := range list.Matches {
		if err := m.Validate(); err != nil {
			c.log.Printf("dropping match %q from %s: %v", m.Id, path, err)
			continue
		}
		matches = append(matches, m)
	}

	return matches, nil
}

// Match fetches GET /api/matches/{id}. The data payload may be the match
// itself or an object wrapping it under "match".
func (c *Client) Match(ctx context.Context, id string) (types.MatchDetail, error) {
	if id == "" {
		return types.MatchDetail{}, ErrEmptyId
	}

	var raw json.RawMessage
	if err := c.FetchJSON(ctx, "/api/matches/"+url.PathEscape(id), &raw); err != nil {
		return types.MatchDetail{}, err
	}

	var wrapped struct {
		Match *types.MatchDetail `json:"match"`
	}
	var detail types.MatchDetail
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Match != nil {
		detail = *wrapped.Match
	} else if err := json.Unmarshal(raw, &detail); err != nil {
		return types.MatchDetail{}, fmt.Errorf("decode match %s: %w", id, err)
	}

	if err := detail.Validate(); err != nil {
		return types.MatchDetail{}, fmt.Errorf("match %s: %w", id, err)
	}

	return detail, nil
}
