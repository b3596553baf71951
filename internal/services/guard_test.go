package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestGuard(t *testing.T, handler http.HandlerFunc) (*Guard, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	guard := NewGuard("test", 100, 2*time.Second, WithHTTPClient(server.Client()))
	return guard, server
}

func TestGetJSONDecodesBody(t *testing.T) {
	guard, server := newTestGuard(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "key" {
			t.Errorf("missing api key header")
		}
		w.Write([]byte(`{"title":"Heat"}`))
	})

	var out struct {
		Title string `json:"title"`
	}
	err := guard.GetJSON(context.Background(), server.URL, map[string]string{"X-Api-Key": "key"}, &out)
	if err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if out.Title != "Heat" {
		t.Fatalf("expected decoded title, got %q", out.Title)
	}
}

func TestStatusClassification(t *testing.T) {
	cases := []struct {
		status int
		marker error
	}{
		{http.StatusNotFound, ErrNotFound},
		{http.StatusUnauthorized, ErrConfiguration},
		{http.StatusForbidden, ErrConfiguration},
		{http.StatusTooManyRequests, ErrTransient},
		{http.StatusInternalServerError, ErrTransient},
		{http.StatusBadRequest, ErrValidation},
	}
	for _, tc := range cases {
		guard, server := newTestGuard(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		})
		err := guard.GetJSON(context.Background(), server.URL, nil, nil)
		if !errors.Is(err, tc.marker) {
			t.Errorf("status %d: expected %v, got %v", tc.status, tc.marker, err)
		}
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	guard, server := newTestGuard(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	for i := 0; i < 5; i++ {
		if err := guard.GetJSON(context.Background(), server.URL, nil, nil); err == nil {
			t.Fatal("expected failure")
		}
	}
	err := guard.GetJSON(context.Background(), server.URL, nil, nil)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected breaker-open unavailable error, got %v", err)
	}
}

func TestConnectionFailureIsUnavailable(t *testing.T) {
	guard := NewGuard("test", 100, time.Second)
	err := guard.GetJSON(context.Background(), "http://127.0.0.1:1/none", nil, nil)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}
