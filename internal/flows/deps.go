package flows

import (
	"context"
	"log/slog"
)

// Deps groups flow dependency sets. Root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Issue  IssueDeps
	Verify VerifyDeps
}

// AuditFunc emits one audit event. metadata may be nil and is evaluated lazily.
type AuditFunc func(ctx context.Context, eventType string, success bool, userID, channel string, err error, metadata func() map[string]string)

func noopAudit(context.Context, string, bool, string, string, error, func() map[string]string) {}

func noopMetric(int) {}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
