//go:build integration

package test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goOTP "github.com/MrEthical07/goOTP"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// redisMode describes which Redis backend the compatibility suite runs against.
type redisMode struct {
	name  string
	setup func(t *testing.T) (redis.UniversalClient, func())
}

// redisModes returns miniredis always, a standalone server when REDIS_ADDR is
// set, and a throwaway container when GOOTP_TESTCONTAINERS=1.
func redisModes(t *testing.T) []redisMode {
	t.Helper()
	modes := []redisMode{
		{
			name: "miniredis",
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				mr, err := miniredis.Run()
				if err != nil {
					t.Fatalf("miniredis: %v", err)
				}
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				return rdb, func() { _ = rdb.Close(); mr.Close() }
			},
		},
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		modes = append(modes, redisMode{
			name: "standalone:" + addr,
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis at %s: %v", addr, err)
				}
				rdb.FlushDB(context.Background())
				return rdb, func() { rdb.FlushDB(context.Background()); _ = rdb.Close() }
			},
		})
	}

	if os.Getenv("GOOTP_TESTCONTAINERS") == "1" {
		modes = append(modes, redisMode{
			name: "container",
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				ctx := context.Background()
				ctr, err := tcredis.Run(ctx, "redis:7-alpine")
				if err != nil {
					t.Skipf("redis container unavailable: %v", err)
				}
				uri, err := ctr.ConnectionString(ctx)
				if err != nil {
					t.Fatalf("connection string: %v", err)
				}
				opts, err := redis.ParseURL(uri)
				if err != nil {
					t.Fatalf("parse redis url: %v", err)
				}
				rdb := redis.NewClient(opts)
				return rdb, func() {
					_ = rdb.Close()
					_ = testcontainers.TerminateContainer(ctr)
				}
			},
		})
	}

	return modes
}

func buildCompatEngine(t *testing.T, rdb redis.UniversalClient, box *inbox) *goOTP.Engine {
	t.Helper()
	engine, err := goOTP.New().
		WithRedis(rdb).
		WithNotifier(box).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func TestRedisCompatLifecycle(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			rdb, cleanup := mode.setup(t)
			defer cleanup()

			box := newInbox()
			engine := buildCompatEngine(t, rdb, box)
			ctx := context.Background()

			if _, err := engine.Issue(ctx, "compat-user", goOTP.ChannelEmail); err != nil {
				t.Fatalf("Issue failed: %v", err)
			}
			if _, err := engine.Issue(ctx, "compat-user", goOTP.ChannelEmail); !errors.Is(err, goOTP.ErrThrottled) {
				t.Fatalf("expected throttle, got %v", err)
			}
			code := box.code("compat-user", goOTP.ChannelEmail)
			if err := engine.Validate(ctx, "compat-user", code, goOTP.ChannelSMS); !errors.Is(err, goOTP.ErrInvalid) {
				t.Fatalf("expected wrong channel to be invalid, got %v", err)
			}
			if err := engine.Validate(ctx, "compat-user", code, goOTP.ChannelEmail); err != nil {
				t.Fatalf("Validate failed: %v", err)
			}
			if err := engine.Validate(ctx, "compat-user", code, goOTP.ChannelEmail); !errors.Is(err, goOTP.ErrInvalid) {
				t.Fatalf("expected replay to be invalid, got %v", err)
			}
		})
	}
}

func TestRedisCompatConcurrentConsume(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			rdb, cleanup := mode.setup(t)
			defer cleanup()

			box := newInbox()
			engine := buildCompatEngine(t, rdb, box)
			ctx := context.Background()

			if _, err := engine.Issue(ctx, "race-user", goOTP.ChannelSMS); err != nil {
				t.Fatalf("Issue failed: %v", err)
			}
			code := box.code("race-user", goOTP.ChannelSMS)

			var wins int64
			var wg sync.WaitGroup
			for i := 0; i < 32; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if engine.Validate(ctx, "race-user", code, goOTP.ChannelSMS) == nil {
						atomic.AddInt64(&wins, 1)
					}
				}()
			}
			wg.Wait()

			if wins != 1 {
				t.Fatalf("expected exactly one successful consume, got %d", wins)
			}
		})
	}
}
