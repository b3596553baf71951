package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

const userAgent = "Caretaker/0.1.0"

// Guard wraps outbound HTTP access to one external dependency with a rate
// limiter and a circuit breaker so a slow or failing service cannot stall a
// whole scan phase. Every integration client routes its requests through one
// Guard instance.
type Guard struct {
	name    string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
	client  *http.Client
}

// GuardOption customizes Guard construction.
type GuardOption func(*Guard)

// WithHTTPClient overrides the default HTTP client (used in tests).
func WithHTTPClient(client *http.Client) GuardOption {
	return func(g *Guard) {
		if client != nil {
			g.client = client
		}
	}
}

// NewGuard builds a Guard for the named dependency. requestsPerSecond bounds
// steady-state throughput; timeout applies per request.
func NewGuard(name string, requestsPerSecond float64, timeout time.Duration, opts ...GuardOption) *Guard {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 10
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	g := &Guard{
		name:    name,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(requestsPerSecond)+1),
		client:  &http.Client{Timeout: timeout},
	}
	g.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GetJSON issues a rate-limited, breaker-guarded GET and decodes the JSON
// response body into out. A nil out discards the body.
func (g *Guard) GetJSON(ctx context.Context, rawURL string, headers map[string]string, out any) error {
	body, err := g.do(ctx, http.MethodGet, rawURL, headers)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return Wrap(ErrTransient, g.name, "decode response", "unexpected payload shape", err)
	}
	return nil
}

// PostJSON issues a rate-limited, breaker-guarded POST with a JSON body and
// decodes the JSON response into out. A nil out discards the body.
func (g *Guard) PostJSON(ctx context.Context, rawURL string, headers map[string]string, in, out any) error {
	var payload []byte
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return Wrap(ErrValidation, g.name, "encode request", "", err)
		}
		payload = data
	}
	body, err := g.doWithBody(ctx, http.MethodPost, rawURL, headers, payload)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return Wrap(ErrTransient, g.name, "decode response", "unexpected payload shape", err)
	}
	return nil
}

func (g *Guard) do(ctx context.Context, method, rawURL string, headers map[string]string) ([]byte, error) {
	return g.doWithBody(ctx, method, rawURL, headers, nil)
}

func (g *Guard) doWithBody(ctx context.Context, method, rawURL string, headers map[string]string, payload []byte) ([]byte, error) {
	if _, err := url.Parse(rawURL); err != nil {
		return nil, Wrap(ErrConfiguration, g.name, "build request", "invalid url", err)
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := g.breaker.Execute(func() ([]byte, error) {
		var reader io.Reader
		if len(payload) > 0 {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", userAgent)
		if len(payload) > 0 {
			req.Header.Set("Content-Type", "application/json")
		}
		for key, value := range headers {
			req.Header.Set(key, value)
		}

		resp, err := g.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		payload, readErr := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
		if readErr != nil {
			return nil, readErr
		}
		if resp.StatusCode >= 300 {
			return nil, &statusError{code: resp.StatusCode, body: payload}
		}
		return payload, nil
	})
	if err != nil {
		return nil, g.classify(err)
	}
	return body, nil
}

type statusError struct {
	code int
	body []byte
}

func (e *statusError) Error() string {
	snippet := strings.TrimSpace(string(e.body))
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	return fmt.Sprintf("http %d: %s", e.code, snippet)
}

func (g *Guard) classify(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Wrap(ErrUnavailable, g.name, "request", "circuit breaker open", err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var status *statusError
	if errors.As(err, &status) {
		switch {
		case status.code == http.StatusNotFound:
			return Wrap(ErrNotFound, g.name, "request", "resource missing", err)
		case status.code == http.StatusUnauthorized || status.code == http.StatusForbidden:
			return Wrap(ErrConfiguration, g.name, "request", "credentials rejected", err)
		case status.code == http.StatusTooManyRequests || status.code >= 500:
			return Wrap(ErrTransient, g.name, "request", "service busy", err)
		default:
			return Wrap(ErrValidation, g.name, "request", "request rejected", err)
		}
	}
	return Wrap(ErrUnavailable, g.name, "request", "connection failed", err)
}
