package flows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goOTP/record"
)

var (
	errNotReady  = errors.New("not ready")
	errChannel   = errors.New("bad channel")
	errUser      = errors.New("bad user")
	errThrottled = errors.New("throttled")
	errDelivery  = errors.New("delivery")
	errExpired   = errors.New("expired")
	errInvalid   = errors.New("invalid")
	errNoAuth    = errors.New("not authenticated")
	errNoPending = errors.New("no pending")
	errLimited   = errors.New("limited")
)

type throttledErr struct{ after time.Duration }

func (e throttledErr) Error() string        { return "throttled" }
func (e throttledErr) Is(target error) bool { return target == errThrottled }

type fakeIssueEnv struct {
	now        time.Time
	records    []*record.Record
	throttled  map[string]time.Time
	sweepErr   error
	deliverErr error
	delivered  []*record.Record
	swept      int
}

func newFakeIssueEnv() *fakeIssueEnv {
	return &fakeIssueEnv{
		now:       time.Unix(1_700_000_000, 0),
		throttled: map[string]time.Time{},
	}
}

func (f *fakeIssueEnv) deps() IssueDeps {
	return IssueDeps{
		Digits:         6,
		CodeTTL:        15 * time.Minute,
		ThrottleWindow: 10 * time.Second,
		SweepOnIssue:   true,
		Now:            func() time.Time { return f.now },
		DeleteExpired: func(context.Context, string, time.Time) (int64, error) {
			f.swept++
			return 0, f.sweepErr
		},
		AcquireThrottle: func(_ context.Context, key string, ttl time.Duration) (bool, time.Duration, error) {
			if until, ok := f.throttled[key]; ok && until.After(f.now) {
				return false, until.Sub(f.now), nil
			}
			f.throttled[key] = f.now.Add(ttl)
			return true, 0, nil
		},
		ThrottleRemaining: func(_ context.Context, key string) (time.Duration, error) {
			if until, ok := f.throttled[key]; ok && until.After(f.now) {
				return until.Sub(f.now), nil
			}
			return 0, nil
		},
		Supersede: func(_ context.Context, userID string, ch record.Channel, now time.Time) (int64, error) {
			var n int64
			for _, r := range f.records {
				if r.UserID == userID && r.Channel == ch && r.Active(now) {
					r.ExpiresAt = now
					n++
				}
			}
			return n, nil
		},
		Insert: func(_ context.Context, rec *record.Record) error {
			f.records = append(f.records, rec)
			return nil
		},
		GenerateCode: func(int) (string, error) { return "123456", nil },
		Deliver: func(_ context.Context, rec *record.Record) error {
			if f.deliverErr != nil {
				return f.deliverErr
			}
			f.delivered = append(f.delivered, rec)
			return nil
		},
		Errors: IssueErrors{
			EngineNotReady: errNotReady,
			InvalidChannel: errChannel,
			InvalidUser:    errUser,
			Throttled:      func(d time.Duration) error { return throttledErr{after: d} },
			Delivery:       func(_ *record.Record, err error) error { return errors.Join(errDelivery, err) },
		},
	}
}

func TestRunIssueCreatesAndDelivers(t *testing.T) {
	env := newFakeIssueEnv()
	ctx := context.Background()

	rec, err := RunIssue(ctx, "u1", record.ChannelEmail, env.deps())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if rec.ID == "" || rec.Code != "123456" || !rec.ExpiresAt.Equal(env.now.Add(15*time.Minute)) {
		t.Fatalf("unexpected record %+v", rec)
	}
	if len(env.delivered) != 1 || env.swept != 1 {
		t.Fatalf("expected one delivery and one sweep, got %d/%d", len(env.delivered), env.swept)
	}
}

func TestRunIssueThrottleAndSupersede(t *testing.T) {
	env := newFakeIssueEnv()
	ctx := context.Background()
	deps := env.deps()

	first, err := RunIssue(ctx, "u1", record.ChannelSMS, deps)
	if err != nil {
		t.Fatalf("first issue: %v", err)
	}

	env.now = env.now.Add(4 * time.Second)
	_, err = RunIssue(ctx, "u1", record.ChannelSMS, deps)
	var te throttledErr
	if !errors.As(err, &te) {
		t.Fatalf("expected throttled error, got %v", err)
	}
	if te.after != 6*time.Second {
		t.Fatalf("expected 6s remaining, got %v", te.after)
	}
	ok, remaining, err := RunCanIssue(ctx, "u1", record.ChannelSMS, deps)
	if err != nil || ok || remaining != 6*time.Second {
		t.Fatalf("can issue: ok=%v remaining=%v err=%v", ok, remaining, err)
	}

	env.now = env.now.Add(7 * time.Second)
	if _, err := RunIssue(ctx, "u1", record.ChannelSMS, deps); err != nil {
		t.Fatalf("third issue: %v", err)
	}
	if first.Active(env.now) {
		t.Fatal("expected first record superseded")
	}
	active := 0
	for _, r := range env.records {
		if r.Active(env.now) {
			active++
		}
	}
	if active != 1 {
		t.Fatalf("expected exactly one active record, got %d", active)
	}
}

func TestRunIssueDeliveryFailureKeepsRecord(t *testing.T) {
	env := newFakeIssueEnv()
	env.deliverErr = errors.New("smtp down")

	rec, err := RunIssue(context.Background(), "u1", record.ChannelEmail, env.deps())
	if !errors.Is(err, errDelivery) {
		t.Fatalf("expected delivery error, got %v", err)
	}
	if rec == nil || len(env.records) != 1 {
		t.Fatal("expected record persisted despite delivery failure")
	}
}

func TestRunIssueSweepFailureIsNotFatal(t *testing.T) {
	env := newFakeIssueEnv()
	env.sweepErr = errors.New("db timeout")

	if _, err := RunIssue(context.Background(), "u1", record.ChannelEmail, env.deps()); err != nil {
		t.Fatalf("expected sweep failure to be ignored, got %v", err)
	}
}

func TestRunIssueRejectsInvalidInput(t *testing.T) {
	env := newFakeIssueEnv()
	deps := env.deps()

	if _, err := RunIssue(context.Background(), "u1", record.Channel("fax"), deps); !errors.Is(err, errChannel) {
		t.Fatalf("expected channel error, got %v", err)
	}
	if _, err := RunIssue(context.Background(), "", record.ChannelEmail, deps); !errors.Is(err, errUser) {
		t.Fatalf("expected user error, got %v", err)
	}
	if _, err := RunIssue(context.Background(), "u1", record.ChannelEmail, IssueDeps{Errors: deps.Errors}); !errors.Is(err, errNotReady) {
		t.Fatalf("expected not ready, got %v", err)
	}
}

func verifyDeps(consume func(context.Context, string, record.Channel, string, time.Time) (*record.Record, error)) VerifyDeps {
	return VerifyDeps{
		Digits:     6,
		Consume:    consume,
		IsExpired:  func(err error) bool { return errors.Is(err, record.ErrExpired) },
		IsNotFound: func(err error) bool { return errors.Is(err, record.ErrNotFound) },
		Errors: VerifyErrors{
			EngineNotReady: errNotReady,
			InvalidChannel: errChannel,
			Expired:        errExpired,
			Invalid:        errInvalid,
		},
	}
}

func TestRunVerifyClassification(t *testing.T) {
	ctx := context.Background()
	infra := errors.New("redis down")

	cases := []struct {
		name    string
		code    string
		consume error
		want    error
		calls   int
	}{
		{name: "success", code: "123456"},
		{name: "expired", code: "123456", consume: record.ErrExpired, want: errExpired, calls: 1},
		{name: "not found", code: "123456", consume: record.ErrNotFound, want: errInvalid, calls: 1},
		{name: "malformed", code: "12a456", want: errInvalid, calls: 0},
		{name: "short", code: "12345", want: errInvalid, calls: 0},
		{name: "infra", code: "123456", consume: infra, want: infra, calls: 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			deps := verifyDeps(func(_ context.Context, userID string, ch record.Channel, code string, _ time.Time) (*record.Record, error) {
				calls++
				if tc.consume != nil {
					return nil, tc.consume
				}
				return &record.Record{ID: "r1", UserID: userID, Code: code, Channel: ch}, nil
			})
			_, err := RunVerify(ctx, "u1", tc.code, record.ChannelEmail, deps)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("expected success, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if tc.calls > 0 && calls != tc.calls {
				t.Fatalf("expected %d consume calls, got %d", tc.calls, calls)
			}
			if tc.calls == 0 && calls != 0 {
				t.Fatalf("expected no store round-trip, got %d", calls)
			}
		})
	}
}

type fakeSession struct {
	userID     string
	pending    bool
	loggedOut  bool
	rotations  int
	failures   int64
	limit      int64
	issueErr   error
	verifyErr  error
	canIssue   bool
	verifyCall int
	issued     int
}

func (s *fakeSession) deps() SecondFactorDeps {
	return SecondFactorDeps{
		Channel: record.ChannelEmail,
		CurrentUserID: func(context.Context) (string, error) {
			return s.userID, nil
		},
		Logout: func(context.Context) error {
			s.loggedOut = true
			s.userID = ""
			return nil
		},
		SetPending: func(_ context.Context, v bool) error {
			s.pending = v
			return nil
		},
		Pending: func(context.Context) (bool, error) { return s.pending, nil },
		RotateSession: func(context.Context) error {
			s.rotations++
			return nil
		},
		Issue: func(_ context.Context, userID string, ch record.Channel) (*record.Record, error) {
			if s.issueErr != nil {
				return nil, s.issueErr
			}
			s.issued++
			return &record.Record{ID: "r", UserID: userID, Channel: ch}, nil
		},
		CanIssue: func(context.Context, string, record.Channel) (bool, error) { return s.canIssue, nil },
		Verify: func(context.Context, string, string, record.Channel) error {
			s.verifyCall++
			return s.verifyErr
		},
		IsExpired: func(err error) bool { return errors.Is(err, errExpired) },
		IsInvalid: func(err error) bool { return errors.Is(err, errInvalid) },
		CheckLimiter: func(context.Context, string) (time.Duration, error) {
			if s.failures >= s.limit {
				return 20 * time.Second, errLimited
			}
			return 0, nil
		},
		IsLimited: func(err error) bool { return errors.Is(err, errLimited) },
		ReserveAttempt: func(context.Context, string) (bool, time.Duration, error) {
			if s.failures >= s.limit {
				return false, 20 * time.Second, errLimited
			}
			s.failures++
			if s.failures >= s.limit {
				return true, 30 * time.Second, nil
			}
			return false, 0, nil
		},
		ResetLimiter: func(context.Context, string) error {
			s.failures = 0
			return nil
		},
		Errors: SecondFactorErrors{
			EngineNotReady:   errNotReady,
			NotAuthenticated: errNoAuth,
			NoPending:        errNoPending,
			RateLimited:      func(time.Duration) error { return errLimited },
		},
	}
}

func TestRunBeginRollsBackOnIssueFailure(t *testing.T) {
	s := &fakeSession{userID: "u1", limit: 5, issueErr: errThrottled}

	if _, err := RunBegin(context.Background(), s.deps()); !errors.Is(err, errThrottled) {
		t.Fatalf("expected issue error, got %v", err)
	}
	if !s.loggedOut || s.pending {
		t.Fatalf("expected logout without pending flag, loggedOut=%v pending=%v", s.loggedOut, s.pending)
	}
}

func TestRunBeginRequiresAuthentication(t *testing.T) {
	s := &fakeSession{limit: 5}
	if _, err := RunBegin(context.Background(), s.deps()); !errors.Is(err, errNoAuth) {
		t.Fatalf("expected not authenticated, got %v", err)
	}
}

func TestRunSubmitSuccessClearsStateAndRotates(t *testing.T) {
	s := &fakeSession{userID: "u1", limit: 5}
	ctx := context.Background()
	deps := s.deps()

	if _, err := RunBegin(ctx, deps); err != nil {
		t.Fatalf("begin: %v", err)
	}
	s.failures = 3

	res, err := RunSubmit(ctx, "123456", deps)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.State != StateVerified || !res.SessionRotated || s.rotations != 1 {
		t.Fatalf("unexpected result %+v rotations=%d", res, s.rotations)
	}
	if s.pending || s.failures != 0 {
		t.Fatalf("expected pending cleared and limiter reset, pending=%v failures=%d", s.pending, s.failures)
	}
}

func TestRunSubmitRateLimitsSixthAttempt(t *testing.T) {
	s := &fakeSession{userID: "u1", pending: true, limit: 5, verifyErr: errInvalid}
	ctx := context.Background()
	deps := s.deps()

	for i := 1; i <= 5; i++ {
		res, err := RunSubmit(ctx, "000000", deps)
		if !errors.Is(err, errInvalid) {
			t.Fatalf("attempt %d: expected invalid, got %v", i, err)
		}
		want := StatePending
		if i == 5 {
			want = StateRateLimited
		}
		if res.State != want {
			t.Fatalf("attempt %d: expected %v, got %v", i, want, res.State)
		}
	}

	s.verifyErr = nil
	res, err := RunSubmit(ctx, "123456", deps)
	if !errors.Is(err, errLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
	if res.State != StateRateLimited || res.RetryAfter <= 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if s.verifyCall != 5 || s.failures != 5 {
		t.Fatalf("expected no store access or increment while limited, calls=%d failures=%d", s.verifyCall, s.failures)
	}
}

func TestRunSubmitExpiredReportsResend(t *testing.T) {
	s := &fakeSession{userID: "u1", pending: true, limit: 5, verifyErr: errExpired, canIssue: true}

	res, err := RunSubmit(context.Background(), "123456", s.deps())
	if !errors.Is(err, errExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	if !res.ResendAvailable || res.State != StatePending {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRunSubmitRequiresPending(t *testing.T) {
	s := &fakeSession{userID: "u1", limit: 5}
	if _, err := RunSubmit(context.Background(), "123456", s.deps()); !errors.Is(err, errNoPending) {
		t.Fatalf("expected no pending, got %v", err)
	}
}

func TestRunResendLeavesCounter(t *testing.T) {
	s := &fakeSession{userID: "u1", pending: true, limit: 5, failures: 2}

	if _, err := RunResend(context.Background(), s.deps()); err != nil {
		t.Fatalf("resend: %v", err)
	}
	if s.failures != 2 || s.issued != 1 {
		t.Fatalf("expected counter untouched and one issue, failures=%d issued=%d", s.failures, s.issued)
	}
}

func TestRunState(t *testing.T) {
	ctx := context.Background()
	s := &fakeSession{limit: 5}
	deps := s.deps()

	check := func(want State) {
		t.Helper()
		got, _, err := RunState(ctx, deps)
		if err != nil {
			t.Fatalf("state: %v", err)
		}
		if got != want {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}

	check(StateIdle)
	s.userID = "u1"
	check(StateVerified)
	s.pending = true
	check(StatePending)
	s.failures = 5
	check(StateRateLimited)
}
