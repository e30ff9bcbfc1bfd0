// Package configfile loads goOTP settings from a YAML, JSON or TOML file with
// GOOTP_* environment overrides, layered over goOTP.DefaultConfig.
package configfile

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	goOTP "github.com/MrEthical07/goOTP"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// GOOTP_OTP_CODE_TTL=10m or GOOTP_REDIS_ADDR=cache:6379.
const EnvPrefix = "GOOTP"

// Settings is the engine configuration plus the process-level sections the
// sweeper binary needs.
type Settings struct {
	goOTP.Config `mapstructure:",squash"`

	Backend  string         `mapstructure:"backend"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Log      LogConfig      `mapstructure:"log"`
}

// RedisConfig locates the Redis server.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PostgresConfig locates the PostgreSQL database.
type PostgresConfig struct {
	DSN     string `mapstructure:"dsn"`
	Migrate bool   `mapstructure:"migrate"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// Default returns Settings seeded with goOTP.DefaultConfig and a local Redis.
func Default() Settings {
	return Settings{
		Config:  goOTP.DefaultConfig(),
		Backend: "redis",
		Redis:   RedisConfig{Addr: "localhost:6379"},
		Log:     LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads the file at path. The format follows the file extension.
func Load(path string) (*Settings, error) {
	v := newViper()
	v.SetConfigFile(path)
	if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext != "" {
		v.SetConfigType(ext)
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("configfile: read %s: %w", path, err)
	}
	return decode(v)
}

// LoadBytes reads configuration from memory. configType is a viper format
// name such as "yaml", "json" or "toml".
func LoadBytes(configType string, data []byte) (*Settings, error) {
	if strings.TrimSpace(configType) == "" {
		return nil, errors.New("configfile: config type is required")
	}
	v := newViper()
	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("configfile: read: %w", err)
	}
	return decode(v)
}

// FromEnv builds Settings from defaults and environment overrides only.
func FromEnv() (*Settings, error) {
	return decode(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// setDefaults registers every key so AutomaticEnv can override keys absent
// from the file.
func setDefaults(v *viper.Viper, d Settings) {
	v.SetDefault("otp.digits", d.OTP.Digits)
	v.SetDefault("otp.code_ttl", d.OTP.CodeTTL)
	v.SetDefault("throttle.window", d.Throttle.Window)
	v.SetDefault("verification.max_attempts", d.Verification.MaxAttempts)
	v.SetDefault("verification.decay_window", d.Verification.DecayWindow)
	v.SetDefault("store.redis_prefix", d.Store.RedisPrefix)
	v.SetDefault("store.throttle_prefix", d.Store.ThrottlePrefix)
	v.SetDefault("store.counter_prefix", d.Store.CounterPrefix)
	v.SetDefault("store.retention", d.Store.Retention)
	v.SetDefault("cleanup.sweep_on_issue", d.Cleanup.SweepOnIssue)
	v.SetDefault("cleanup.sweep_interval", d.Cleanup.SweepInterval)
	v.SetDefault("audit.enabled", d.Audit.Enabled)
	v.SetDefault("audit.buffer_size", d.Audit.BufferSize)
	v.SetDefault("audit.drop_if_full", d.Audit.DropIfFull)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.enable_latency_histograms", d.Metrics.EnableLatencyHistograms)

	v.SetDefault("backend", d.Backend)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.username", d.Redis.Username)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("postgres.dsn", d.Postgres.DSN)
	v.SetDefault("postgres.migrate", d.Postgres.Migrate)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

func decode(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("configfile: decode: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

var settingsValidator = validator.New()

// Validate checks the engine configuration and the process sections.
func (s *Settings) Validate() error {
	if err := s.Config.Validate(); err != nil {
		return err
	}
	if err := settingsValidator.Struct(struct {
		Backend string `validate:"oneof=redis postgres"`
		RedisDB int    `validate:"gte=0,lte=15"`
		Log     LogConfig
	}{s.Backend, s.Redis.DB, s.Log}); err != nil {
		return fmt.Errorf("%w: %v", goOTP.ErrInvalidConfig, err)
	}
	switch s.Backend {
	case "redis":
		if s.Redis.Addr == "" {
			return fmt.Errorf("%w: redis.addr is required for the redis backend", goOTP.ErrInvalidConfig)
		}
	case "postgres":
		if s.Postgres.DSN == "" {
			return fmt.Errorf("%w: postgres.dsn is required for the postgres backend", goOTP.ErrInvalidConfig)
		}
	}
	return nil
}
