package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goOTP/record"
)

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Issue.Insert != nil && s.deps.Verify.Consume != nil
}

func (s Service) Issue(ctx context.Context, userID string, ch record.Channel) (*record.Record, error) {
	return RunIssue(ctx, userID, ch, s.deps.Issue)
}

func (s Service) CanIssue(ctx context.Context, userID string, ch record.Channel) (bool, time.Duration, error) {
	return RunCanIssue(ctx, userID, ch, s.deps.Issue)
}

func (s Service) Verify(ctx context.Context, userID, code string, ch record.Channel) (*record.Record, error) {
	return RunVerify(ctx, userID, code, ch, s.deps.Verify)
}
