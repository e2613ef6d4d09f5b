package stats

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStatsUpdater(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux, "matchcenter-test-new")
	assert.NotNil(t, su, "expected StatsUpdater to be non-nil")
	assert.NotNil(t, su.updateChan, "expected updateChan to be initialized")
	handler, pattern := mux.Handler(&http.Request{URL: &url.URL{Path: "/debug/vars"}, Method: http.MethodGet})
	assert.NotNil(t, handler, "expected handler for /debug/vars to be set")
	assert.Equal(t, "GET /debug/vars", pattern, "expected handler to be registered for GET method on /debug/vars")
}

func TestIncrDecr(t *testing.T) {
	su := NewStatsUpdater(http.NewServeMux(), "matchcenter-test-incr")
	su.Run()

	su.Incr(ChatMessages)
	su.Incr(ChatMessages)
	su.Decr(ChatMessages)
	su.Incr("UnknownMetric")

	assert.Eventually(t, func() bool {
		return su.Value(ChatMessages) == 1
	}, time.Second, 10*time.Millisecond, "expected ChatMessages to settle at 1")
	assert.Equal(t, int64(0), su.Value("UnknownMetric"), "expected unknown metric to be ignored")
	su.Stop()
}

func TestExpvarHandler(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux, "matchcenter-test-handler")
	su.Run()
	defer su.Stop()

	su.Incr(ConnectedClients)
	require.Eventually(t, func() bool {
		return su.Value(ConnectedClients) == 1
	}, time.Second, 10*time.Millisecond)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug/vars", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body[ConnectedClients])
	assert.Contains(t, body, "Uptime")
}
