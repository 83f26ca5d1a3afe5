package core

import (
	"net/http"
	"time"
)

// Logger interface - minimal logging interface
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})
}

// HTTPDoer is the subset of http.Client used by the registry health loop
// and the registry client. Tests substitute call-counting stubs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Clock abstracts the time source so circuit breaker recovery windows and
// retry backoff can be tested deterministically.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock backed by time.Now
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// TokenSource supplies credentials for authenticated capability invocation.
// The concrete source (vault, env, config) is the caller's concern.
type TokenSource interface {
	Token() (string, error)
}

// StaticTokenSource returns a TokenSource that always yields the given token
func StaticTokenSource(token string) TokenSource {
	return staticToken(token)
}

type staticToken string

func (s staticToken) Token() (string, error) { return string(s), nil }

// NoOpLogger provides a no-op logger implementation
type NoOpLogger struct{}

func (n *NoOpLogger) Info(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Error(msg string, fields map[string]interface{}) {}
func (n *NoOpLogger) Warn(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Debug(msg string, fields map[string]interface{}) {}
