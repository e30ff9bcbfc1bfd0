package goOTP

import (
	"context"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/goOTP/internal/audit"
	internalflows "github.com/MrEthical07/goOTP/internal/flows"
	"github.com/MrEthical07/goOTP/internal/limiters"
)

// Engine issues and verifies one-time codes.
//
// Engine instances are built once through [Builder] and are safe for
// concurrent use.
type Engine struct {
	config   Config
	store    RecordStore
	throttle Throttle
	limiter  *limiters.VerificationLimiter
	notifier Notifier
	clock    Clock
	codeGen  CodeGenerator
	logger   *slog.Logger
	audit    *internalaudit.Dispatcher
	metrics  *Metrics
	flows    internalflows.Service
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were dropped because the dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:      map[MetricID]uint64{},
			Histograms:    map[MetricID][]uint64{},
			HistogramSums: map[MetricID]time.Duration{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return e.config
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Issue creates a fresh code for (userID, ch), invalidates any earlier active
// code of the pair, and delivers it through the notifier.
//
// Errors:
//   - *ThrottledError when a code was issued for the pair within the throttle window.
//   - *DeliveryError when the notifier failed; the returned record is persisted anyway.
//   - ErrInvalidChannel / ErrInvalidUser for bad input.
//   - store or throttle errors otherwise.
func (e *Engine) Issue(ctx context.Context, userID string, ch Channel) (*Record, error) {
	if e == nil || !e.flows.Initialized() {
		return nil, ErrEngineNotReady
	}
	return e.flows.Issue(ctx, userID, ch)
}

// CanIssue reports whether Issue would pass the generation throttle right now.
// It has no side effects.
func (e *Engine) CanIssue(ctx context.Context, userID string, ch Channel) (bool, error) {
	ok, _, err := e.IssueCooldown(ctx, userID, ch)
	return ok, err
}

// IssueCooldown is CanIssue plus the time left until the next issuance is allowed.
func (e *Engine) IssueCooldown(ctx context.Context, userID string, ch Channel) (bool, time.Duration, error) {
	if e == nil || !e.flows.Initialized() {
		return false, 0, ErrEngineNotReady
	}
	return e.flows.CanIssue(ctx, userID, ch)
}

// Validate consumes the active code of (userID, ch) matching code.
//
// It returns nil on success, [ErrExpired] when the matching code expired or
// was superseded, [ErrInvalid] when nothing unconsumed matches (including
// already-used codes), or a store error.
func (e *Engine) Validate(ctx context.Context, userID, code string, ch Channel) error {
	if e == nil || !e.flows.Initialized() {
		return ErrEngineNotReady
	}
	_, err := e.flows.Verify(ctx, userID, code, ch)
	return err
}

// CleanupExpired deletes the expired records of one user across channels.
func (e *Engine) CleanupExpired(ctx context.Context, userID string) (int64, error) {
	if e == nil || e.store == nil {
		return 0, ErrEngineNotReady
	}
	n, err := e.store.DeleteExpired(ctx, userID, e.clock.Now())
	if err != nil {
		e.metricInc(MetricSweepFailed)
		return 0, err
	}
	e.metrics.Add(MetricSweepDeleted, uint64(n))
	return n, nil
}

// SweepExpired deletes every expired record in the store.
func (e *Engine) SweepExpired(ctx context.Context) (int64, error) {
	if e == nil || e.store == nil {
		return 0, ErrEngineNotReady
	}
	now := e.clock.Now()
	n, err := e.store.DeleteAllExpired(ctx, now)
	if err != nil {
		e.metricInc(MetricSweepFailed)
		e.emitAudit(ctx, auditEventOTPSweep, false, "", "", err, nil)
		return n, err
	}

	e.metricInc(MetricSweepRun)
	e.metrics.Add(MetricSweepDeleted, uint64(n))
	e.emitAudit(ctx, auditEventOTPSweep, true, "", "", nil, func() map[string]string {
		return map[string]string{
			"before":  auditTime(now),
			"deleted": formatCount(n),
		}
	})
	return n, nil
}

// Records lists every stored record of (userID, ch), oldest first. Intended for
// diagnostics and tests.
func (e *Engine) Records(ctx context.Context, userID string, ch Channel) ([]*Record, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	return e.store.List(ctx, userID, ch)
}
