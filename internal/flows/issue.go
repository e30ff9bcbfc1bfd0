package flows

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrEthical07/goOTP/record"
	"github.com/google/uuid"
)

type IssueMetrics struct {
	Issued         int
	Throttled      int
	Superseded     int
	DeliveryFailed int
	SweepFailed    int
}

type IssueEvents struct {
	Issued         string
	Throttled      string
	DeliveryFailed string
}

type IssueErrors struct {
	EngineNotReady error
	InvalidChannel error
	InvalidUser    error
	Throttled      func(retryAfter time.Duration) error
	Delivery       func(rec *record.Record, err error) error
}

type IssueDeps struct {
	Digits         int
	CodeTTL        time.Duration
	ThrottleWindow time.Duration
	SweepOnIssue   bool

	Now    func() time.Time
	Logger *slog.Logger

	DeleteExpired     func(context.Context, string, time.Time) (int64, error)
	AcquireThrottle   func(context.Context, string, time.Duration) (bool, time.Duration, error)
	ThrottleRemaining func(context.Context, string) (time.Duration, error)
	Supersede         func(context.Context, string, record.Channel, time.Time) (int64, error)
	Insert            func(context.Context, *record.Record) error
	GenerateCode      func(int) (string, error)
	Deliver           func(context.Context, *record.Record) error

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics IssueMetrics
	Events  IssueEvents
	Errors  IssueErrors
}

// ThrottleKey is the generation throttle key for a (user, channel) pair.
func ThrottleKey(userID string, ch record.Channel) string {
	return userID + ":" + string(ch)
}

func normalizeIssueDeps(deps *IssueDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	deps.Logger = loggerOrDefault(deps.Logger)
}

// RunIssue creates, persists and delivers a fresh code for (userID, ch).
//
// A delivery failure leaves the record persisted and returns the Delivery
// error carrying it.
func RunIssue(ctx context.Context, userID string, ch record.Channel, deps IssueDeps) (*record.Record, error) {
	normalizeIssueDeps(&deps)

	if deps.Insert == nil || deps.Supersede == nil || deps.AcquireThrottle == nil ||
		deps.GenerateCode == nil || deps.Deliver == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if userID == "" {
		return nil, deps.Errors.InvalidUser
	}
	if !ch.Valid() {
		return nil, deps.Errors.InvalidChannel
	}

	now := deps.Now()

	if deps.SweepOnIssue && deps.DeleteExpired != nil {
		if n, err := deps.DeleteExpired(ctx, userID, now); err != nil {
			deps.MetricInc(deps.Metrics.SweepFailed)
			deps.Logger.WarnContext(ctx, "goOTP: expired record sweep failed",
				"user_id", userID, "error", err)
		} else if n > 0 {
			deps.Logger.DebugContext(ctx, "goOTP: swept expired records",
				"user_id", userID, "deleted", n)
		}
	}

	acquired, remaining, err := deps.AcquireThrottle(ctx, ThrottleKey(userID, ch), deps.ThrottleWindow)
	if err != nil {
		return nil, err
	}
	if !acquired {
		if remaining <= 0 || remaining > deps.ThrottleWindow {
			remaining = deps.ThrottleWindow
		}
		deps.MetricInc(deps.Metrics.Throttled)
		throttled := deps.Errors.Throttled(remaining)
		deps.EmitAudit(ctx, deps.Events.Throttled, false, userID, string(ch), throttled, func() map[string]string {
			return map[string]string{
				"retry_after_ms": formatMillis(remaining),
			}
		})
		return nil, throttled
	}

	superseded, err := deps.Supersede(ctx, userID, ch, now)
	if err != nil {
		return nil, err
	}
	if superseded > 0 {
		deps.MetricInc(deps.Metrics.Superseded)
	}

	code, err := deps.GenerateCode(deps.Digits)
	if err != nil {
		return nil, err
	}

	rec := &record.Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		Code:      code,
		Channel:   ch,
		CreatedAt: now,
		ExpiresAt: now.Add(deps.CodeTTL),
	}
	if err := deps.Insert(ctx, rec); err != nil {
		return nil, err
	}

	if err := deps.Deliver(ctx, rec); err != nil {
		deps.MetricInc(deps.Metrics.DeliveryFailed)
		deps.Logger.ErrorContext(ctx, "goOTP: code delivery failed",
			"user_id", userID, "channel", string(ch), "record_id", rec.ID, "error", err)
		wrapped := deps.Errors.Delivery(rec, err)
		deps.EmitAudit(ctx, deps.Events.DeliveryFailed, false, userID, string(ch), wrapped, func() map[string]string {
			return map[string]string{"record_id": rec.ID}
		})
		return rec, wrapped
	}

	deps.MetricInc(deps.Metrics.Issued)
	deps.EmitAudit(ctx, deps.Events.Issued, true, userID, string(ch), nil, func() map[string]string {
		return map[string]string{
			"record_id":  rec.ID,
			"superseded": formatInt(superseded),
		}
	})
	return rec, nil
}

// RunCanIssue reports whether a new code may be issued for (userID, ch) now,
// and otherwise how long until it may. It has no side effects.
func RunCanIssue(ctx context.Context, userID string, ch record.Channel, deps IssueDeps) (bool, time.Duration, error) {
	if deps.ThrottleRemaining == nil {
		return false, 0, deps.Errors.EngineNotReady
	}
	if !ch.Valid() {
		return false, 0, deps.Errors.InvalidChannel
	}
	remaining, err := deps.ThrottleRemaining(ctx, ThrottleKey(userID, ch))
	if err != nil {
		return false, 0, err
	}
	return remaining <= 0, remaining, nil
}
