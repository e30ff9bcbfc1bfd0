package goOTP

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, note Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, note)
	return nil
}

func (n *recordingNotifier) fail(err error) {
	n.mu.Lock()
	n.err = err
	n.mu.Unlock()
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func (n *recordingNotifier) last(t *testing.T) Notification {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		t.Fatal("expected at least one notification")
	}
	return n.sent[len(n.sent)-1]
}

type fakeIdentity struct {
	mu        sync.Mutex
	userID    string
	logouts   int
	logoutErr error
}

func (f *fakeIdentity) CurrentUserID(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userID, nil
}

func (f *fakeIdentity) Logout(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
	f.userID = ""
	return f.logoutErr
}

func (f *fakeIdentity) logoutCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logouts
}

type fakeSessions struct {
	mu      sync.Mutex
	pending bool
	rotated int
	setErr  error
}

func (s *fakeSessions) SetPendingSecondFactor(_ context.Context, pending bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.pending = pending
	return nil
}

func (s *fakeSessions) PendingSecondFactor(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending, nil
}

func (s *fakeSessions) RotateSessionID(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotated++
	return nil
}

func (s *fakeSessions) isPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

func (s *fakeSessions) rotations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rotated
}

type engineHarness struct {
	engine   *Engine
	mr       *miniredis.Miniredis
	rdb      *redis.Client
	clock    *fakeClock
	notifier *recordingNotifier
}

// advance moves both the engine clock and Redis key TTLs forward.
func (h *engineHarness) advance(d time.Duration) {
	h.clock.Advance(d)
	h.mr.FastForward(d)
}

func (h *engineHarness) lastCode(t *testing.T) string {
	t.Helper()
	return h.notifier.last(t).Code
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, rdb
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEngineHarness(t *testing.T, mutate func(*Config), opts ...func(*Builder)) *engineHarness {
	t.Helper()

	mr, rdb := newTestRedis(t)
	clock := newFakeClock()
	notifier := &recordingNotifier{}

	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithNotifier(notifier).
		WithClock(clock).
		WithLogger(quietLogger())
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		_ = rdb.Close()
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})

	return &engineHarness{
		engine:   engine,
		mr:       mr,
		rdb:      rdb,
		clock:    clock,
		notifier: notifier,
	}
}

func sequenceCodes(codes ...string) CodeGenerator {
	var mu sync.Mutex
	i := 0
	return func(int) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if i >= len(codes) {
			return "", errors.New("code sequence exhausted")
		}
		c := codes[i]
		i++
		return c, nil
	}
}
