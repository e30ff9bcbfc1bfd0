package goOTP

import (
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goOTP/internal/security"
)

// LintSeverity ranks configuration warnings.
type LintSeverity uint8

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "INFO"
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// LintWarning is one advisory finding. Unlike [Config.Validate] failures,
// warnings never block Build.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult is the ordered list returned by [Config.Lint].
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	codes := make([]string, 0, len(r))
	for _, w := range r {
		codes = append(codes, w.Code)
	}
	return codes
}

// BySeverity returns warnings at or above min.
func (r LintResult) BySeverity(min LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError folds warnings at or above min into one error, or nil.
func (r LintResult) AsError(min LintSeverity) error {
	hits := r.BySeverity(min)
	if len(hits) == 0 {
		return nil
	}
	parts := make([]string, 0, len(hits))
	for _, w := range hits {
		parts = append(parts, fmt.Sprintf("[%s] %s: %s", w.Severity, w.Code, w.Message))
	}
	return fmt.Errorf("config lint: %s", strings.Join(parts, "; "))
}

// GuessProbability is the chance that an attacker who spends the whole
// verification budget for the lifetime of one code hits it.
func (c *Config) GuessProbability() float64 {
	return security.Assess(c.securityInput()).GuessProbability
}

// Lint reports risky but valid settings.
func (c *Config) Lint() LintResult {
	var ws LintResult
	add := func(code string, sev LintSeverity, msg string) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	switch p := c.GuessProbability(); {
	case p >= 0.01:
		add("guess_probability_high", LintHigh,
			fmt.Sprintf("an attacker can guess a code with probability %.4f over its lifetime", p))
	case p >= 0.001:
		add("guess_probability_elevated", LintWarn,
			fmt.Sprintf("an attacker can guess a code with probability %.4f over its lifetime", p))
	}

	if c.OTP.CodeTTL > 30*time.Minute {
		add("code_ttl_long", LintWarn, "codes live longer than 30 minutes")
	}
	if c.Verification.MaxAttempts > 10 {
		add("verification_budget_large", LintWarn, "more than 10 failed submissions allowed per window")
	}
	if c.Throttle.Window < 5*time.Second {
		add("throttle_window_short", LintWarn, "codes may be re-sent more often than every 5 seconds")
	}
	if !c.Cleanup.SweepOnIssue && c.Cleanup.SweepInterval == 0 {
		add("sweep_disabled", LintWarn, "expired records are only removed by the store's own retention")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", LintInfo, "OTP issuance and verification are not audited")
	}
	if c.Store.Retention < time.Hour {
		add("retention_short", LintInfo, "expired records disappear within an hour, so late submissions report invalid instead of expired")
	}

	return ws
}
