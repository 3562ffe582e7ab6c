package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

type rate struct {
	Currency string  `json:"currency"`
	Rate     float64 `json:"rate"`
}

func TestNewUniversalClientValidates(t *testing.T) {
	cases := []Config{
		{},
		{Mode: ModeSingle, Addrs: []string{"a:1", "b:1"}},
		{Mode: ModeSentinel, Addrs: []string{"a:1"}},
		{Mode: "mesh", Addrs: []string{"a:1"}},
	}
	for _, cfg := range cases {
		if _, err := NewUniversalClient(context.Background(), cfg); err == nil {
			t.Fatalf("expected error for %+v", cfg)
		}
	}
}

func TestNewUniversalClientSingle(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewUniversalClient(context.Background(), Config{Mode: ModeSingle, Addrs: []string{mr.Addr()}})
	if err != nil {
		t.Fatalf("NewUniversalClient: %v", err)
	}
	defer client.Close()
}

func TestNewUniversalClientPingFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	if _, err := NewUniversalClient(context.Background(), Config{Addrs: []string{addr}, DialTimeout: 100 * time.Millisecond}); err == nil {
		t.Fatal("expected ping failure")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("NOVA_REDIS_ADDRS", "a:6379,b:6379")
	t.Setenv("NOVA_REDIS_MODE", "CLUSTER")
	t.Setenv("NOVA_REDIS_DB", "2")
	cfg := ConfigFromEnv("NOVA_REDIS")
	if cfg.Mode != ModeCluster || len(cfg.Addrs) != 2 || cfg.DB != 2 {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestTypedStoreRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewUniversalClient(context.Background(), Config{Addrs: []string{mr.Addr()}})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	defer client.Close()

	store := NewTypedStore[[]rate](client, "nova:fx:")
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "latest"); ok || err != nil {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := store.Set(ctx, "latest", []rate{{Currency: "USD", Rate: 17.2}}, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !mr.Exists("nova:fx:latest") {
		t.Fatal("expected prefixed key in redis")
	}
	got, ok, err := store.Get(ctx, "latest")
	if err != nil || !ok || len(got) != 1 || got[0].Rate != 17.2 {
		t.Fatalf("unexpected get: %+v ok=%v err=%v", got, ok, err)
	}

	mr.FastForward(2 * time.Minute)
	if _, ok, _ := store.Get(ctx, "latest"); ok {
		t.Fatal("expected expiry")
	}
}

func TestTypedStoreDropsUndecodable(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewUniversalClient(context.Background(), Config{Addrs: []string{mr.Addr()}})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	defer client.Close()

	if err := mr.Set("nova:fx:latest", "not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	store := NewTypedStore[[]rate](client, "nova:fx:")
	if _, ok, err := store.Get(context.Background(), "latest"); ok || err != nil {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if mr.Exists("nova:fx:latest") {
		t.Fatal("expected corrupt key to be deleted")
	}
}
