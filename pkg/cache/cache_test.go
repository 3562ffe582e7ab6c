package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCacheSetPeekDeleteSnapshot(t *testing.T) {
	c := New[string](Options{TTL: 50 * time.Millisecond, StaleWhileRevalidate: 20 * time.Millisecond, MaxEntries: 10}, MetricsHooks{})

	c.Set("alpha", "value", 50*time.Millisecond)
	if val, ok := c.Peek("alpha"); !ok || val != "value" {
		t.Fatalf("expected peeked value")
	}

	snapshot := c.Snapshot()
	if len(snapshot) != 1 || snapshot[0].Key != "alpha" {
		t.Fatalf("expected snapshot to include alpha")
	}

	c.Delete("alpha")
	if _, ok := c.Peek("alpha"); ok {
		t.Fatalf("expected key to be deleted")
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty cache, got %d", c.Len())
	}
}

func TestCacheGetHitMissStaleRefresh(t *testing.T) {
	c := New[int](Options{TTL: 20 * time.Millisecond, StaleWhileRevalidate: 50 * time.Millisecond, MaxEntries: 10}, MetricsHooks{})

	var mu sync.Mutex
	callCount := 0
	refreshCalled := make(chan struct{}, 1)
	loader := func(_ context.Context, _ string) (int, bool, error) {
		mu.Lock()
		callCount++
		count := callCount
		mu.Unlock()
		if count == 2 {
			refreshCalled <- struct{}{}
		}
		return count, true, nil
	}

	val, ok, err := c.Get(context.Background(), "USD", loader)
	if err != nil || !ok || val != 1 {
		t.Fatalf("expected first load")
	}

	val, ok, err = c.Get(context.Background(), "USD", loader)
	if err != nil || !ok || val != 1 {
		t.Fatalf("expected cache hit")
	}

	time.Sleep(25 * time.Millisecond)
	val, ok, err = c.Get(context.Background(), "USD", loader)
	if err != nil || !ok || val != 1 {
		t.Fatalf("expected stale value")
	}

	select {
	case <-refreshCalled:
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("expected refresh to run")
	}

	time.Sleep(10 * time.Millisecond)
	val, ok = c.Peek("USD")
	if !ok || val != 2 {
		t.Fatalf("expected refreshed value")
	}
}

func TestCacheStaleRefreshSurvivesCancelledRequest(t *testing.T) {
	c := New[int](Options{TTL: 10 * time.Millisecond, StaleWhileRevalidate: time.Second}, MetricsHooks{})
	c.Set("USD", 1, 10*time.Millisecond)
	time.Sleep(15 * time.Millisecond)

	done := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	loader := func(ctx context.Context, _ string) (int, bool, error) {
		done <- ctx.Err()
		return 2, true, nil
	}
	if val, ok, _ := c.Get(ctx, "USD", loader); !ok || val != 1 {
		t.Fatalf("expected stale value, got %d", val)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("refresh saw cancelled context: %v", err)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected refresh to run")
	}
}

func TestCacheSingleLoadForConcurrentMisses(t *testing.T) {
	c := New[string](Options{TTL: time.Minute}, MetricsHooks{})
	var mu sync.Mutex
	calls := 0
	release := make(chan struct{})
	loader := func(context.Context, string) (string, bool, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		<-release
		return "18.25", true, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if val, ok, err := c.Get(context.Background(), "USD", loader); err != nil || !ok || val != "18.25" {
				t.Errorf("unexpected result %q %v %v", val, ok, err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls != 1 {
		t.Fatalf("expected a single load, got %d", calls)
	}
}

func TestCacheNegativeTTL(t *testing.T) {
	c := New[string](Options{TTL: 50 * time.Millisecond, StaleWhileRevalidate: 20 * time.Millisecond, NegativeTTL: 30 * time.Millisecond, MaxEntries: 10}, MetricsHooks{})

	var mu sync.Mutex
	callCount := 0
	errBoom := errors.New("boom")
	loader := func(_ context.Context, _ string) (string, bool, error) {
		mu.Lock()
		callCount++
		mu.Unlock()
		return "", false, errBoom
	}

	_, ok, err := c.Get(context.Background(), "neg", loader)
	if ok || !errors.Is(err, errBoom) {
		t.Fatalf("expected negative load error")
	}

	_, ok, err = c.Get(context.Background(), "neg", loader)
	if ok || !errors.Is(err, errBoom) {
		t.Fatalf("expected cached negative error")
	}

	mu.Lock()
	firstCount := callCount
	mu.Unlock()
	if firstCount != 1 {
		t.Fatalf("expected single loader call, got %d", firstCount)
	}

	time.Sleep(35 * time.Millisecond)
	_, _, _ = c.Get(context.Background(), "neg", loader)

	mu.Lock()
	secondCount := callCount
	mu.Unlock()
	if secondCount < 2 {
		t.Fatalf("expected loader to run after negative ttl")
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[string](Options{TTL: time.Minute, MaxEntries: 2}, MetricsHooks{})

	c.Set("first", "one", time.Minute)
	c.Set("second", "two", time.Minute)
	// Touch first so second becomes the eviction candidate.
	if _, _, err := c.Get(context.Background(), "first", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.Set("third", "three", time.Minute)

	if _, ok := c.Peek("second"); ok {
		t.Fatalf("expected second entry to be evicted")
	}
	if _, ok := c.Peek("first"); !ok {
		t.Fatalf("expected first entry to remain")
	}
	if _, ok := c.Peek("third"); !ok {
		t.Fatalf("expected third entry to remain")
	}
}

func TestPrometheusHooks(t *testing.T) {
	c := New[int](Options{TTL: time.Minute}, PrometheusHooks("hooks-test"))
	loader := func(context.Context, string) (int, bool, error) { return 7, true, nil }
	_, _, _ = c.Get(context.Background(), "k", loader)
	_, _, _ = c.Get(context.Background(), "k", loader)

	if got := testutil.ToFloat64(cacheEventsTotal.WithLabelValues("hooks-test", "miss")); got != 1 {
		t.Fatalf("expected 1 miss, got %v", got)
	}
	if got := testutil.ToFloat64(cacheEventsTotal.WithLabelValues("hooks-test", "hit")); got != 1 {
		t.Fatalf("expected 1 hit, got %v", got)
	}
	if got := testutil.ToFloat64(cacheEventsTotal.WithLabelValues("hooks-test", "store")); got != 1 {
		t.Fatalf("expected 1 store, got %v", got)
	}
}
