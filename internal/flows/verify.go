package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goOTP/internal"
	"github.com/MrEthical07/goOTP/record"
)

type VerifyMetrics struct {
	Verified int
	Expired  int
	Invalid  int
}

type VerifyEvents struct {
	Verified string
	Expired  string
	Invalid  string
}

type VerifyErrors struct {
	EngineNotReady error
	InvalidChannel error
	Expired        error
	Invalid        error
}

type VerifyDeps struct {
	Digits int

	Now func() time.Time

	Consume    func(context.Context, string, record.Channel, string, time.Time) (*record.Record, error)
	IsExpired  func(error) bool
	IsNotFound func(error) bool

	MetricInc      func(int)
	ObserveLatency func(time.Duration)
	EmitAudit      AuditFunc

	Metrics VerifyMetrics
	Events  VerifyEvents
	Errors  VerifyErrors
}

func normalizeVerifyDeps(deps *VerifyDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.ObserveLatency == nil {
		deps.ObserveLatency = func(time.Duration) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
}

// RunVerify consumes the active code of (userID, ch) matching code.
//
// Malformed codes are rejected as Invalid without touching the store. When no
// record is consumed the failure is Expired if an unconsumed but expired match
// exists, otherwise Invalid.
func RunVerify(ctx context.Context, userID, code string, ch record.Channel, deps VerifyDeps) (*record.Record, error) {
	normalizeVerifyDeps(&deps)

	if deps.Consume == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if !ch.Valid() {
		return nil, deps.Errors.InvalidChannel
	}

	start := time.Now()
	defer func() {
		deps.ObserveLatency(time.Since(start))
	}()

	if userID == "" || !internal.WellFormedCode(code, deps.Digits) {
		deps.MetricInc(deps.Metrics.Invalid)
		deps.EmitAudit(ctx, deps.Events.Invalid, false, userID, string(ch), deps.Errors.Invalid, func() map[string]string {
			return map[string]string{"reason": "malformed"}
		})
		return nil, deps.Errors.Invalid
	}

	rec, err := deps.Consume(ctx, userID, ch, code, deps.Now())
	switch {
	case err == nil:
		deps.MetricInc(deps.Metrics.Verified)
		deps.EmitAudit(ctx, deps.Events.Verified, true, userID, string(ch), nil, func() map[string]string {
			return map[string]string{"record_id": rec.ID}
		})
		return rec, nil
	case deps.IsExpired != nil && deps.IsExpired(err):
		deps.MetricInc(deps.Metrics.Expired)
		deps.EmitAudit(ctx, deps.Events.Expired, false, userID, string(ch), deps.Errors.Expired, nil)
		return nil, deps.Errors.Expired
	case deps.IsNotFound != nil && deps.IsNotFound(err):
		deps.MetricInc(deps.Metrics.Invalid)
		deps.EmitAudit(ctx, deps.Events.Invalid, false, userID, string(ch), deps.Errors.Invalid, nil)
		return nil, deps.Errors.Invalid
	default:
		return nil, err
	}
}
