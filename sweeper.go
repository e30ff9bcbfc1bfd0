package goOTP

import (
	"context"
	"sync"
	"time"
)

// Sweeper runs [Engine.SweepExpired] on a fixed interval.
type Sweeper struct {
	engine   *Engine
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper returns a stopped [Sweeper]. A non-positive interval falls back
// to Cleanup.SweepInterval, then to one minute.
func (e *Engine) NewSweeper(interval time.Duration) *Sweeper {
	if interval <= 0 && e != nil {
		interval = e.config.Cleanup.SweepInterval
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{engine: e, interval: interval}
}

// Start launches the sweep loop. It is a no-op when already running. The loop
// stops when ctx is done or Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	if s == nil || s.engine == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx, s.done)
}

// Stop ends the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Sweeper) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.engine.SweepExpired(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.engine.logger.WarnContext(ctx, "goOTP: expired record sweep failed", "error", err)
				continue
			}
			if n > 0 {
				s.engine.logger.InfoContext(ctx, "goOTP: swept expired records", "deleted", n)
			}
		}
	}
}
