package goOTP

import (
	"context"
	"time"

	internalflows "github.com/MrEthical07/goOTP/internal/flows"
)

// VerificationFlow drives the second-factor step of a login on one channel.
//
// It is bound to the request-scoped identity and session collaborators passed
// to [Engine.Verification]; callers typically build one per request.
type VerificationFlow struct {
	engine *Engine
	deps   internalflows.SecondFactorDeps
}

// Verification returns a [VerificationFlow] for channel ch.
func (e *Engine) Verification(identity IdentityProvider, sessions SessionFlags, ch Channel) *VerificationFlow {
	if e == nil {
		return &VerificationFlow{}
	}
	return &VerificationFlow{
		engine: e,
		deps:   e.secondFactorDeps(identity, sessions, ch),
	}
}

// State reports the session state and, when rate limited, the time left.
func (f *VerificationFlow) State(ctx context.Context) (FlowState, time.Duration, error) {
	if f == nil || f.engine == nil {
		return StateIdle, 0, ErrEngineNotReady
	}
	return internalflows.RunState(ctx, f.deps)
}

// Begin issues the first code after primary credentials succeeded and marks
// the session pending. If issuing or flagging fails the user is logged out
// and the error is returned.
func (f *VerificationFlow) Begin(ctx context.Context) (*Record, error) {
	if f == nil || f.engine == nil {
		return nil, ErrEngineNotReady
	}
	return internalflows.RunBegin(ctx, f.deps)
}

// Submit checks code against the pending session.
//
// On success the failure count is reset, the pending flag cleared and the
// session ID rotated. On ErrExpired the result reports whether a resend is
// possible right now. Once the failure budget is spent further submissions
// return a *RateLimitedError without touching the store.
func (f *VerificationFlow) Submit(ctx context.Context, code string) (*SubmitResult, error) {
	if f == nil || f.engine == nil {
		return nil, ErrEngineNotReady
	}
	res, err := internalflows.RunSubmit(ctx, code, f.deps)
	return &res, err
}

// Resend issues a replacement code for the pending session, subject to the
// generation throttle.
func (f *VerificationFlow) Resend(ctx context.Context) (*Record, error) {
	if f == nil || f.engine == nil {
		return nil, ErrEngineNotReady
	}
	return internalflows.RunResend(ctx, f.deps)
}
