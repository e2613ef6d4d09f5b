package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerAddr     string
	AllowedOrigins []string
	ClockInterval  time.Duration
	StatsInterval  time.Duration
	EventInterval  time.Duration
}

type ClientConfig struct {
	APIBaseURL string
	SocketURL  string
	StatePath  string
}

func NewConfig(serverAddr string, allowedOrigins []string, clock, stats, events time.Duration) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if len(allowedOrigins) == 0 {
		return nil, fmt.Errorf("allowed origins cannot be empty")
	}
	if clock <= 0 || stats <= 0 || events <= 0 {
		return nil, fmt.Errorf("simulator intervals must be positive")
	}

	return &Config{
		ServerAddr:     serverAddr,
		AllowedOrigins: allowedOrigins,
		ClockInterval:  clock,
		StatsInterval:  stats,
		EventInterval:  events,
	}, nil
}

func NewClientConfig(apiBaseURL, socketURL, statePath string) (*ClientConfig, error) {
	if err := validateURL(apiBaseURL, "http", "https"); err != nil {
		return nil, fmt.Errorf("api base url: %w", err)
	}
	if err := validateURL(socketURL, "ws", "wss"); err != nil {
		return nil, fmt.Errorf("socket url: %w", err)
	}
	if statePath == "" {
		return nil, fmt.Errorf("state path cannot be empty")
	}

	return &ClientConfig{
		APIBaseURL: strings.TrimRight(apiBaseURL, "/"),
		SocketURL:  socketURL,
		StatePath:  statePath,
	}, nil
}

func validateURL(raw string, schemes ...string) error {
	if raw == "" {
		return errors.New("cannot be empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	for _, s := range schemes {
		if u.Scheme == s {
			if u.Host == "" {
				return errors.New("missing host")
			}
			return nil
		}
	}

	return fmt.Errorf("scheme must be one of %v, got %q", schemes, u.Scheme)
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored and already-set variables win.
func LoadDotEnv(filenames ...string) error {
	for _, f := range filenames {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func EnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func EnvDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}

	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
