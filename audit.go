package goOTP

import (
	"context"
	"errors"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/goOTP/internal/audit"
)

const (
	auditEventOTPIssued                  = "otp_issued"
	auditEventOTPIssueThrottled          = "otp_issue_throttled"
	auditEventOTPDeliveryFailed          = "otp_delivery_failed"
	auditEventOTPVerified                = "otp_verified"
	auditEventOTPExpired                 = "otp_expired"
	auditEventOTPInvalid                 = "otp_invalid"
	auditEventOTPVerificationRateLimited = "otp_verification_rate_limited"
	auditEventOTPResend                  = "otp_resend"
	auditEventSecondFactorRollback       = "second_factor_rollback"
	auditEventOTPSweep                   = "otp_sweep"
)

// AuditErrorCode is the stable error label written into audit events.
type AuditErrorCode string

const (
	auditErrThrottled        AuditErrorCode = "throttled"
	auditErrDelivery         AuditErrorCode = "delivery_failed"
	auditErrExpired          AuditErrorCode = "expired"
	auditErrInvalid          AuditErrorCode = "invalid"
	auditErrRateLimited      AuditErrorCode = "rate_limited"
	auditErrNotAuthenticated AuditErrorCode = "not_authenticated"
	auditErrInternal         AuditErrorCode = "internal_error"
)

// NewSlogSink creates an audit sink that logs through logger.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink, logger *slog.Logger) *internalaudit.Dispatcher {
	return internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Enabled,
		BufferSize: cfg.BufferSize,
		DropIfFull: cfg.DropIfFull,
		Logger:     logger,
	}, sink)
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	channel string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.clock.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Channel:   channel,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrThrottled):
		return auditErrThrottled
	case errors.Is(err, ErrDelivery):
		return auditErrDelivery
	case errors.Is(err, ErrExpired):
		return auditErrExpired
	case errors.Is(err, ErrInvalid):
		return auditErrInvalid
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrNotAuthenticated), errors.Is(err, ErrNoPendingVerification):
		return auditErrNotAuthenticated
	default:
		return auditErrInternal
	}
}

func auditTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
