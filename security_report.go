package goOTP

import "github.com/MrEthical07/goOTP/internal/security"

// SecurityReport describes the brute-force posture of the engine configuration.
type SecurityReport struct {
	security.Report

	AuditEnabled   bool
	MetricsEnabled bool
	Lint           LintResult
}

func (c *Config) securityInput() security.Input {
	return security.Input{
		Digits:         c.OTP.Digits,
		CodeTTL:        c.OTP.CodeTTL,
		ThrottleWindow: c.Throttle.Window,
		MaxAttempts:    c.Verification.MaxAttempts,
		DecayWindow:    c.Verification.DecayWindow,
	}
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	return SecurityReport{
		Report:         security.Assess(e.config.securityInput()),
		AuditEnabled:   e.config.Audit.Enabled,
		MetricsEnabled: e.config.Metrics.Enabled,
		Lint:           e.config.Lint(),
	}
}
