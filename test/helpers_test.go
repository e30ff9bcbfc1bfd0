package test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	goOTP "github.com/MrEthical07/goOTP"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// inbox records the latest code delivered per user.
type inbox struct {
	mu    sync.Mutex
	codes map[string]string
	sent  int
}

func newInbox() *inbox {
	return &inbox{codes: map[string]string{}}
}

func (i *inbox) Send(_ context.Context, n goOTP.Notification) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.codes[n.UserID+":"+string(n.Channel)] = n.Code
	i.sent++
	return nil
}

func (i *inbox) code(userID string, ch goOTP.Channel) string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.codes[userID+":"+string(ch)]
}

// loginSession stands in for an HTTP session: the signed-in user plus the
// pending second-factor flag.
type loginSession struct {
	mu      sync.Mutex
	userID  string
	id      int
	pending bool
}

func (s *loginSession) CurrentUserID(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, nil
}

func (s *loginSession) Logout(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = ""
	s.pending = false
	return nil
}

func (s *loginSession) SetPendingSecondFactor(_ context.Context, pending bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = pending
	return nil
}

func (s *loginSession) PendingSecondFactor(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending, nil
}

func (s *loginSession) RotateSessionID(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id++
	return nil
}

type scenario struct {
	engine *goOTP.Engine
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	clock  *stepClock
	inbox  *inbox
}

func (s *scenario) advance(d time.Duration) {
	s.clock.Advance(d)
	s.mr.FastForward(d)
}

func newScenario(t *testing.T, cfg goOTP.Config) *scenario {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	sc := &scenario{
		mr:    mr,
		rdb:   rdb,
		clock: &stepClock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)},
		inbox: newInbox(),
	}

	engine, err := goOTP.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithNotifier(sc.inbox).
		WithClock(sc.clock).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	sc.engine = engine

	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return sc
}
