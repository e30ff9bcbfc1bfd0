package goOTP

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the full engine configuration. Start from [DefaultConfig] and
// override individual fields.
type Config struct {
	OTP          OTPConfig          `mapstructure:"otp"`
	Throttle     ThrottleConfig     `mapstructure:"throttle"`
	Verification VerificationConfig `mapstructure:"verification"`
	Store        StoreConfig        `mapstructure:"store"`
	Cleanup      CleanupConfig      `mapstructure:"cleanup"`
	Audit        AuditConfig        `mapstructure:"audit"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig controls code shape and lifetime.
type OTPConfig struct {
	Digits  int           `mapstructure:"digits" validate:"oneof=6 8"`
	CodeTTL time.Duration `mapstructure:"code_ttl" validate:"gte=1m,lte=24h"`
}

/*
====================================
THROTTLE / VERIFICATION CONFIG
====================================
*/

// ThrottleConfig controls how often a code may be issued per (user, channel).
type ThrottleConfig struct {
	Window time.Duration `mapstructure:"window" validate:"gte=1s,lte=1h"`
}

// VerificationConfig controls the failed-submission budget per user.
type VerificationConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" validate:"gte=1,lte=100"`
	DecayWindow time.Duration `mapstructure:"decay_window" validate:"gte=1s,lte=24h"`
}

/*
====================================
STORE / CLEANUP CONFIG
====================================
*/

// StoreConfig controls Redis key namespaces and record retention.
type StoreConfig struct {
	RedisPrefix    string        `mapstructure:"redis_prefix" validate:"required,max=32,excludesall={}*"`
	ThrottlePrefix string        `mapstructure:"throttle_prefix" validate:"required,max=32"`
	CounterPrefix  string        `mapstructure:"counter_prefix" validate:"required,max=32"`
	Retention      time.Duration `mapstructure:"retention" validate:"gte=1m"`
}

// CleanupConfig controls when expired records are deleted.
type CleanupConfig struct {
	SweepOnIssue  bool          `mapstructure:"sweep_on_issue"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"gte=0"`
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size" validate:"gte=0,lte=1048576"`
	DropIfFull bool `mapstructure:"drop_if_full"`
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool `mapstructure:"enabled"`
	EnableLatencyHistograms bool `mapstructure:"enable_latency_histograms"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns 6-digit codes valid for 15 minutes, one issuance per
// 10 seconds per channel, and 5 failed submissions per 30 seconds.
func DefaultConfig() Config {
	return Config{
		OTP: OTPConfig{
			Digits:  6,
			CodeTTL: 15 * time.Minute,
		},
		Throttle: ThrottleConfig{
			Window: 10 * time.Second,
		},
		Verification: VerificationConfig{
			MaxAttempts: 5,
			DecayWindow: 30 * time.Second,
		},
		Store: StoreConfig{
			RedisPrefix:    "otp",
			ThrottlePrefix: "otg:",
			CounterPrefix:  "otr:",
			Retention:      24 * time.Hour,
		},
		Cleanup: CleanupConfig{
			SweepOnIssue:  true,
			SweepInterval: 0,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

var (
	configValidator     *validator.Validate
	configValidatorOnce sync.Once
)

func structValidator() *validator.Validate {
	configValidatorOnce.Do(func() {
		configValidator = validator.New(validator.WithRequiredStructEnabled())
	})
	return configValidator
}

// Validate checks field ranges and cross-field constraints.
func (c *Config) Validate() error {
	if err := structValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (%s)", fe.Namespace(), fe.Tag(), fe.Param()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	recordNS := c.Store.RedisPrefix + ":"
	if strings.HasPrefix(c.Store.ThrottlePrefix, recordNS) || strings.HasPrefix(c.Store.CounterPrefix, recordNS) {
		return fmt.Errorf("%w: Store ThrottlePrefix and CounterPrefix must not start with %q", ErrInvalidConfig, recordNS)
	}
	if c.Throttle.Window >= c.OTP.CodeTTL {
		return fmt.Errorf("%w: Throttle Window must be shorter than OTP CodeTTL", ErrInvalidConfig)
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return fmt.Errorf("%w: Audit BufferSize must be > 0 when Audit is enabled", ErrInvalidConfig)
	}
	if c.Cleanup.SweepInterval > 0 && c.Cleanup.SweepInterval < time.Second {
		return fmt.Errorf("%w: Cleanup SweepInterval must be >= 1s when set", ErrInvalidConfig)
	}

	return nil
}
