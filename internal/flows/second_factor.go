package flows

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrEthical07/goOTP/record"
)

// State is the second-factor state of the current session.
type State uint8

const (
	// StateIdle means no user is authenticated.
	StateIdle State = iota
	// StatePending means primary credentials succeeded and a code is awaited.
	StatePending
	// StateRateLimited means the failure budget is exhausted until the window resets.
	StateRateLimited
	// StateVerified means the second factor was satisfied (or never required).
	StateVerified
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateRateLimited:
		return "rate_limited"
	case StateVerified:
		return "verified"
	default:
		return "unknown"
	}
}

// SubmitResult describes the session after one code submission.
type SubmitResult struct {
	State State
	// ResendAvailable is only meaningful after an Expired failure.
	ResendAvailable bool
	// RetryAfter is set when State is StateRateLimited.
	RetryAfter     time.Duration
	SessionRotated bool
}

type SecondFactorMetrics struct {
	RateLimited int
	Rollback    int
	Resend      int
}

type SecondFactorEvents struct {
	RateLimited string
	Rollback    string
	Resend      string
}

type SecondFactorErrors struct {
	EngineNotReady   error
	NotAuthenticated error
	NoPending        error
	RateLimited      func(retryAfter time.Duration) error
}

type SecondFactorDeps struct {
	Channel record.Channel
	Logger  *slog.Logger

	CurrentUserID func(context.Context) (string, error)
	Logout        func(context.Context) error
	SetPending    func(context.Context, bool) error
	Pending       func(context.Context) (bool, error)
	RotateSession func(context.Context) error

	Issue    func(context.Context, string, record.Channel) (*record.Record, error)
	CanIssue func(context.Context, string, record.Channel) (bool, error)
	Verify   func(context.Context, string, string, record.Channel) error

	IsExpired func(error) bool
	IsInvalid func(error) bool

	CheckLimiter   func(context.Context, string) (time.Duration, error)
	IsLimited      func(error) bool
	ReserveAttempt func(context.Context, string) (bool, time.Duration, error)
	ResetLimiter   func(context.Context, string) error

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics SecondFactorMetrics
	Events  SecondFactorEvents
	Errors  SecondFactorErrors
}

func normalizeSecondFactorDeps(deps *SecondFactorDeps) {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	deps.Logger = loggerOrDefault(deps.Logger)
}

func secondFactorReady(deps SecondFactorDeps) bool {
	return deps.CurrentUserID != nil && deps.Logout != nil && deps.SetPending != nil &&
		deps.Pending != nil && deps.RotateSession != nil && deps.Issue != nil &&
		deps.CanIssue != nil && deps.Verify != nil && deps.CheckLimiter != nil &&
		deps.ReserveAttempt != nil && deps.ResetLimiter != nil
}

func currentUser(ctx context.Context, deps SecondFactorDeps) (string, error) {
	userID, err := deps.CurrentUserID(ctx)
	if err != nil {
		return "", err
	}
	if userID == "" {
		return "", deps.Errors.NotAuthenticated
	}
	return userID, nil
}

func requirePending(ctx context.Context, deps SecondFactorDeps) (string, error) {
	userID, err := currentUser(ctx, deps)
	if err != nil {
		return "", err
	}
	pending, err := deps.Pending(ctx)
	if err != nil {
		return "", err
	}
	if !pending {
		return "", deps.Errors.NoPending
	}
	return userID, nil
}

// RunBegin issues the first code after primary credentials succeeded and marks
// the session pending. Any failure logs the user out so the session is never
// left half-authenticated.
func RunBegin(ctx context.Context, deps SecondFactorDeps) (*record.Record, error) {
	normalizeSecondFactorDeps(&deps)
	if !secondFactorReady(deps) {
		return nil, deps.Errors.EngineNotReady
	}

	userID, err := currentUser(ctx, deps)
	if err != nil {
		return nil, err
	}

	rec, err := deps.Issue(ctx, userID, deps.Channel)
	if err == nil {
		err = deps.SetPending(ctx, true)
	}
	if err != nil {
		rollback(ctx, userID, err, deps)
		return rec, err
	}

	return rec, nil
}

func rollback(ctx context.Context, userID string, cause error, deps SecondFactorDeps) {
	deps.MetricInc(deps.Metrics.Rollback)
	if err := deps.Logout(ctx); err != nil {
		deps.Logger.ErrorContext(ctx, "goOTP: logout after failed second factor start",
			"user_id", userID, "cause", cause, "error", err)
	}
	deps.EmitAudit(ctx, deps.Events.Rollback, false, userID, string(deps.Channel), cause, nil)
}

// RunSubmit checks one submitted code against the pending session.
//
// Every submission reserves a slot in the failure budget before the store is
// consulted, in one atomic step, so concurrent submissions cannot exceed it. A
// user who has exhausted the budget is rejected without counting another
// attempt. A successful submission clears the budget.
func RunSubmit(ctx context.Context, code string, deps SecondFactorDeps) (SubmitResult, error) {
	normalizeSecondFactorDeps(&deps)
	if !secondFactorReady(deps) {
		return SubmitResult{}, deps.Errors.EngineNotReady
	}

	userID, err := requirePending(ctx, deps)
	if err != nil {
		return SubmitResult{}, err
	}

	last, retry, err := deps.ReserveAttempt(ctx, userID)
	if err != nil {
		if deps.IsLimited != nil && deps.IsLimited(err) {
			return rateLimited(ctx, userID, retry, deps)
		}
		return SubmitResult{State: StatePending}, err
	}

	verifyErr := deps.Verify(ctx, userID, code, deps.Channel)
	if verifyErr == nil {
		if err := deps.ResetLimiter(ctx, userID); err != nil {
			deps.Logger.WarnContext(ctx, "goOTP: verification limiter reset failed",
				"user_id", userID, "error", err)
		}
		if err := deps.SetPending(ctx, false); err != nil {
			return SubmitResult{State: StatePending}, err
		}
		if err := deps.RotateSession(ctx); err != nil {
			return SubmitResult{State: StateVerified}, err
		}
		return SubmitResult{State: StateVerified, SessionRotated: true}, nil
	}

	expired := deps.IsExpired != nil && deps.IsExpired(verifyErr)
	invalid := deps.IsInvalid != nil && deps.IsInvalid(verifyErr)
	if !expired && !invalid {
		return SubmitResult{State: StatePending}, verifyErr
	}

	result := SubmitResult{State: StatePending}
	if last {
		result.State = StateRateLimited
		result.RetryAfter = retry
		deps.MetricInc(deps.Metrics.RateLimited)
		deps.EmitAudit(ctx, deps.Events.RateLimited, false, userID, string(deps.Channel), verifyErr, func() map[string]string {
			return map[string]string{"retry_after_ms": formatMillis(retry)}
		})
	}

	if expired {
		ok, err := deps.CanIssue(ctx, userID, deps.Channel)
		if err != nil {
			deps.Logger.WarnContext(ctx, "goOTP: resend availability check failed",
				"user_id", userID, "error", err)
		}
		result.ResendAvailable = ok && err == nil
	}

	return result, verifyErr
}

func rateLimited(ctx context.Context, userID string, retry time.Duration, deps SecondFactorDeps) (SubmitResult, error) {
	if retry <= 0 {
		retry = time.Second
	}
	limitedErr := deps.Errors.RateLimited(retry)
	deps.MetricInc(deps.Metrics.RateLimited)
	deps.EmitAudit(ctx, deps.Events.RateLimited, false, userID, string(deps.Channel), limitedErr, func() map[string]string {
		return map[string]string{"retry_after_ms": formatMillis(retry)}
	})
	return SubmitResult{State: StateRateLimited, RetryAfter: retry}, limitedErr
}

// RunResend issues a replacement code for a pending session. The verification
// failure count is left untouched.
func RunResend(ctx context.Context, deps SecondFactorDeps) (*record.Record, error) {
	normalizeSecondFactorDeps(&deps)
	if !secondFactorReady(deps) {
		return nil, deps.Errors.EngineNotReady
	}

	userID, err := requirePending(ctx, deps)
	if err != nil {
		return nil, err
	}

	rec, err := deps.Issue(ctx, userID, deps.Channel)
	if err != nil {
		return rec, err
	}
	deps.MetricInc(deps.Metrics.Resend)
	deps.EmitAudit(ctx, deps.Events.Resend, true, userID, string(deps.Channel), nil, func() map[string]string {
		return map[string]string{"record_id": rec.ID}
	})
	return rec, nil
}

// RunState reports the current second-factor state of the session.
func RunState(ctx context.Context, deps SecondFactorDeps) (State, time.Duration, error) {
	normalizeSecondFactorDeps(&deps)
	if !secondFactorReady(deps) {
		return StateIdle, 0, deps.Errors.EngineNotReady
	}

	userID, err := deps.CurrentUserID(ctx)
	if err != nil {
		return StateIdle, 0, err
	}
	if userID == "" {
		return StateIdle, 0, nil
	}

	pending, err := deps.Pending(ctx)
	if err != nil {
		return StateIdle, 0, err
	}
	if !pending {
		return StateVerified, 0, nil
	}

	retry, err := deps.CheckLimiter(ctx, userID)
	if err != nil {
		if deps.IsLimited != nil && deps.IsLimited(err) {
			return StateRateLimited, retry, nil
		}
		return StatePending, 0, err
	}
	return StatePending, 0, nil
}
