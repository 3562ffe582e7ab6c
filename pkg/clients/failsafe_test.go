package clients

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/failsafe-go/failsafe-go"
)

//nolint:bodyclose // test responses have no body
func TestNewHTTPRetryPolicy_NegativeRetriesMeansOneAttempt(t *testing.T) {
	policy := NewHTTPRetryPolicy(HTTPConfig{MaxRetries: -3})

	var attempts int32
	_, err := failsafe.With[*http.Response](policy).Get(func() (*http.Response, error) {
		atomic.AddInt32(&attempts, 1)
		return nil, errors.New("network partition")
	})
	if err == nil {
		t.Fatal("expected request to fail")
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}

//nolint:bodyclose // test responses have no body
func TestNewHTTPRetryPolicy_RetriesUpToConfiguredLimit(t *testing.T) {
	policy := NewHTTPRetryPolicy(HTTPConfig{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   time.Millisecond,
		ShouldRetry: func(_ *http.Response, err error) bool {
			return err != nil
		},
	})

	var attempts int32
	_, err := failsafe.With[*http.Response](policy).Get(func() (*http.Response, error) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return nil, errors.New("dns lag")
		}
		return &http.Response{StatusCode: http.StatusOK}, nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestDefaultShouldRetry(t *testing.T) {
	cases := []struct {
		status int
		want   bool
	}{
		{http.StatusOK, false},
		{http.StatusBadRequest, false},
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
	}
	for _, tc := range cases {
		if got := DefaultShouldRetry(&http.Response{StatusCode: tc.status}, nil); got != tc.want {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.want, got)
		}
	}
	if DefaultShouldRetry(nil, context.Canceled) {
		t.Fatal("expected canceled context to be final")
	}
	if !DefaultShouldRetry(nil, errors.New("reset by peer")) {
		t.Fatal("expected network errors to be retried")
	}
}

func TestDoRebuildsRequestPerAttempt(t *testing.T) {
	var count int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&count, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := DefaultHTTPConfig("test")
	cfg.BaseDelay = time.Millisecond
	cfg.MaxDelay = time.Millisecond
	built := 0
	resp, err := Do(context.Background(), NewHTTPExecutor(cfg), srv.Client(), func() (*http.Request, error) {
		built++
		return http.NewRequest(http.MethodGet, srv.URL, nil)
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	if built != 3 {
		t.Fatalf("expected 3 built requests, got %d", built)
	}
}

func TestDoExhaustedReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := DefaultHTTPConfig("exhausted")
	cfg.MaxRetries = 1
	cfg.BaseDelay = time.Millisecond
	cfg.MaxDelay = time.Millisecond
	resp, err := Do(context.Background(), NewHTTPExecutor(cfg), srv.Client(), func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, srv.URL, nil)
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if resp != nil {
		t.Fatal("expected nil response on failure")
	}
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	var count int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&count, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := HTTPConfig{
		Name:       "breaker-test",
		MaxRetries: 0,
		Breaker:    &BreakerConfig{FailureThreshold: 2, Window: 2, Delay: time.Minute},
	}
	executor := NewHTTPExecutor(cfg)
	for i := 0; i < 2; i++ {
		_, _ = Do(context.Background(), executor, srv.Client(), func() (*http.Request, error) {
			return http.NewRequest(http.MethodGet, srv.URL, nil)
		})
	}
	_, err := Do(context.Background(), executor, srv.Client(), func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, srv.URL, nil)
	})
	if err == nil {
		t.Fatal("expected rejection from open circuit")
	}
	if got := atomic.LoadInt32(&count); got != 2 {
		t.Fatalf("expected the open breaker to skip the upstream, got %d calls", got)
	}
}
