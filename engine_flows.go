package goOTP

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	internalflows "github.com/MrEthical07/goOTP/internal/flows"
	"github.com/MrEthical07/goOTP/internal/limiters"
	"github.com/MrEthical07/goOTP/record"
)

func (e *Engine) issueFlowDeps() internalflows.IssueDeps {
	return internalflows.IssueDeps{
		Digits:         e.config.OTP.Digits,
		CodeTTL:        e.config.OTP.CodeTTL,
		ThrottleWindow: e.config.Throttle.Window,
		SweepOnIssue:   e.config.Cleanup.SweepOnIssue,
		Now:            e.clock.Now,
		Logger:         e.logger,

		DeleteExpired:     e.cleanupOnIssue,
		AcquireThrottle:   e.throttle.Acquire,
		ThrottleRemaining: e.throttle.Remaining,
		Supersede:         e.store.Supersede,
		Insert:            e.store.Insert,
		GenerateCode:      e.codeGen,
		Deliver:           e.deliver,

		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: e.emitAudit,
		Metrics: internalflows.IssueMetrics{
			Issued:         int(MetricOTPIssued),
			Throttled:      int(MetricOTPIssueThrottled),
			Superseded:     int(MetricOTPSuperseded),
			DeliveryFailed: int(MetricOTPDeliveryFailed),
			SweepFailed:    int(MetricSweepFailed),
		},
		Events: internalflows.IssueEvents{
			Issued:         auditEventOTPIssued,
			Throttled:      auditEventOTPIssueThrottled,
			DeliveryFailed: auditEventOTPDeliveryFailed,
		},
		Errors: internalflows.IssueErrors{
			EngineNotReady: ErrEngineNotReady,
			InvalidChannel: ErrInvalidChannel,
			InvalidUser:    ErrInvalidUser,
			Throttled: func(retryAfter time.Duration) error {
				return &ThrottledError{RetryAfter: retryAfter}
			},
			Delivery: func(rec *record.Record, err error) error {
				return &DeliveryError{Record: rec, Err: err}
			},
		},
	}
}

func (e *Engine) cleanupOnIssue(ctx context.Context, userID string, now time.Time) (int64, error) {
	n, err := e.store.DeleteExpired(ctx, userID, now)
	if err == nil {
		e.metrics.Add(MetricSweepDeleted, uint64(n))
	}
	return n, err
}

func (e *Engine) deliver(ctx context.Context, rec *record.Record) error {
	return e.notifier.Send(ctx, Notification{
		UserID:           rec.UserID,
		Channel:          rec.Channel,
		Code:             rec.Code,
		ExpiresAt:        rec.ExpiresAt,
		ExpiresInMinutes: int(math.Ceil(e.config.OTP.CodeTTL.Minutes())),
	})
}

func (e *Engine) verifyFlowDeps() internalflows.VerifyDeps {
	return internalflows.VerifyDeps{
		Digits: e.config.OTP.Digits,
		Now:    e.clock.Now,

		Consume:    e.store.Consume,
		IsExpired:  func(err error) bool { return errors.Is(err, record.ErrExpired) },
		IsNotFound: func(err error) bool { return errors.Is(err, record.ErrNotFound) },

		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		ObserveLatency: func(d time.Duration) {
			e.metrics.Observe(MetricValidateLatency, d)
		},
		EmitAudit: e.emitAudit,
		Metrics: internalflows.VerifyMetrics{
			Verified: int(MetricOTPVerified),
			Expired:  int(MetricOTPExpired),
			Invalid:  int(MetricOTPInvalid),
		},
		Events: internalflows.VerifyEvents{
			Verified: auditEventOTPVerified,
			Expired:  auditEventOTPExpired,
			Invalid:  auditEventOTPInvalid,
		},
		Errors: internalflows.VerifyErrors{
			EngineNotReady: ErrEngineNotReady,
			InvalidChannel: ErrInvalidChannel,
			Expired:        ErrExpired,
			Invalid:        ErrInvalid,
		},
	}
}

func (e *Engine) secondFactorDeps(identity IdentityProvider, sessions SessionFlags, ch Channel) internalflows.SecondFactorDeps {
	deps := internalflows.SecondFactorDeps{
		Channel: ch,
		Logger:  e.logger,

		Issue:    e.Issue,
		CanIssue: e.CanIssue,
		Verify:   e.Validate,

		IsExpired: func(err error) bool { return errors.Is(err, ErrExpired) },
		IsInvalid: func(err error) bool { return errors.Is(err, ErrInvalid) },

		CheckLimiter:   e.limiter.Check,
		IsLimited:      func(err error) bool { return errors.Is(err, limiters.ErrVerificationRateLimited) },
		ReserveAttempt: e.limiter.Reserve,
		ResetLimiter:   e.limiter.Reset,

		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: e.emitAudit,
		Metrics: internalflows.SecondFactorMetrics{
			RateLimited: int(MetricOTPRateLimited),
			Rollback:    int(MetricSecondFactorRollback),
			Resend:      int(MetricOTPResend),
		},
		Events: internalflows.SecondFactorEvents{
			RateLimited: auditEventOTPVerificationRateLimited,
			Rollback:    auditEventSecondFactorRollback,
			Resend:      auditEventOTPResend,
		},
		Errors: internalflows.SecondFactorErrors{
			EngineNotReady:   ErrEngineNotReady,
			NotAuthenticated: ErrNotAuthenticated,
			NoPending:        ErrNoPendingVerification,
			RateLimited: func(retryAfter time.Duration) error {
				return &RateLimitedError{RetryAfter: retryAfter}
			},
		},
	}

	if identity != nil {
		deps.CurrentUserID = identity.CurrentUserID
		deps.Logout = identity.Logout
	}
	if sessions != nil {
		deps.SetPending = sessions.SetPendingSecondFactor
		deps.Pending = sessions.PendingSecondFactor
		deps.RotateSession = sessions.RotateSessionID
	}
	return deps
}

func formatCount(n int64) string {
	return strconv.FormatInt(n, 10)
}
