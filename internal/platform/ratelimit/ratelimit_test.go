package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestNoopLimiter(t *testing.T) {
	ok, err := NoopLimiter{}.Allow(context.Background(), "09121234567")
	if !ok || err != nil {
		t.Fatalf("NoopLimiter.Allow = %v, %v", ok, err)
	}
}

func TestRedisLimiter_FailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	l := NewRedisLimiter(client, "otp", 3, time.Minute)
	ok, err := l.Allow(context.Background(), "09121234567")
	if err == nil {
		t.Fatal("Allow against unreachable redis should report error")
	}
	if !ok {
		t.Error("Allow should fail open when redis is unavailable")
	}
}

func TestRedisLimiter_ZeroLimitDisables(t *testing.T) {
	l := NewRedisLimiter(nil, "otp", 0, time.Minute)
	ok, err := l.Allow(context.Background(), "k")
	if !ok || err != nil {
		t.Fatalf("Allow = %v, %v; want true, nil", ok, err)
	}
}

func TestNewRedisClient(t *testing.T) {
	c, err := NewRedisClient(context.Background(), "")
	if c != nil || err != nil {
		t.Fatalf("empty url: got %v, %v", c, err)
	}
	if _, err := NewRedisClient(context.Background(), "not a url"); err == nil {
		t.Error("bad url should fail")
	}
}
