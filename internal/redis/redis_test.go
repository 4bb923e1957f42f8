package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"taxfiler/internal/config"
)

func TestClientSetGetDel(t *testing.T) {
	srv := miniredis.RunT(t)
	client := Wrap(goredis.NewClient(&goredis.Options{Addr: srv.Addr()}))
	defer client.Close()
	ctx := context.Background()

	if err := client.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := client.Get(ctx, "k")
	if err != nil || got != "v" {
		t.Fatalf("Get: %q %v", got, err)
	}
	if ttl, err := client.TTL(ctx, "k"); err != nil || ttl <= 0 {
		t.Fatalf("TTL: %v %v", ttl, err)
	}
	if err := client.Del(ctx, "k"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, err := client.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected cache miss, got %v", err)
	}
}

func TestClientJSONRoundTrip(t *testing.T) {
	srv := miniredis.RunT(t)
	client := Wrap(goredis.NewClient(&goredis.Options{Addr: srv.Addr()}))
	defer client.Close()
	ctx := context.Background()

	type stats struct {
		Refund   float64 `json:"refund"`
		Progress int     `json:"progress"`
	}
	key := Key("dashboard", "7")
	if key != "taxfiler:dashboard:7" {
		t.Fatalf("unexpected key %q", key)
	}
	var got stats
	if err := client.GetJSON(ctx, key, &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected cache miss, got %v", err)
	}
	if err := client.SetJSON(ctx, key, stats{Refund: 7000, Progress: 100}, time.Minute); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	if err := client.GetJSON(ctx, key, &got); err != nil || got.Refund != 7000 || got.Progress != 100 {
		t.Fatalf("GetJSON: %+v %v", got, err)
	}
	srv.Set(key, "not json")
	if err := client.GetJSON(ctx, key, &got); err == nil || errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestAddrDefaults(t *testing.T) {
	if got := Addr(config.RedisConfig{}); got != "127.0.0.1:6379" {
		t.Fatalf("unexpected default addr %s", got)
	}
	if got := Addr(config.RedisConfig{Host: "cache", Port: 6380}); got != "cache:6380" {
		t.Fatalf("unexpected addr %s", got)
	}
}

func TestNilClientIsSafe(t *testing.T) {
	var client *Client
	if err := client.Set(context.Background(), "k", "v", 0); err == nil {
		t.Fatalf("expected error from nil client")
	}
	if client.Raw() != nil {
		t.Fatalf("expected nil raw client")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
