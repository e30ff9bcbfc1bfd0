package test

import (
	"testing"
	"time"

	goOTP "github.com/MrEthical07/goOTP"
	"github.com/MrEthical07/goOTP/configfile"
)

func TestDefaultConfigPresetValidates(t *testing.T) {
	cfg := goOTP.DefaultConfig()

	if cfg.OTP.Digits != 6 || cfg.OTP.CodeTTL != 15*time.Minute {
		t.Fatalf("unexpected code shape: %+v", cfg.OTP)
	}
	if cfg.Throttle.Window != 10*time.Second {
		t.Fatalf("unexpected throttle window: %v", cfg.Throttle.Window)
	}
	if cfg.Verification.MaxAttempts != 5 || cfg.Verification.DecayWindow != 30*time.Second {
		t.Fatalf("unexpected verification budget: %+v", cfg.Verification)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected preset to validate, got %v", err)
	}
	if high := cfg.Lint().BySeverity(goOTP.LintHigh); len(high) != 0 {
		t.Fatalf("expected no high lint findings, got %+v", high)
	}
}

func TestConfigFileMatchesPreset(t *testing.T) {
	s, err := configfile.LoadBytes("yaml", []byte("backend: redis\n"))
	if err != nil {
		t.Fatalf("LoadBytes failed: %v", err)
	}
	def := goOTP.DefaultConfig()
	if s.Config != def {
		t.Fatalf("expected file defaults to match DefaultConfig\n got %+v\nwant %+v", s.Config, def)
	}
}
