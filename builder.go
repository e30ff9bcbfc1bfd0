package goOTP

import (
	"errors"
	"log/slog"

	"github.com/MrEthical07/goOTP/internal"
	internalflows "github.com/MrEthical07/goOTP/internal/flows"
	"github.com/MrEthical07/goOTP/internal/limiters"
	"github.com/MrEthical07/goOTP/internal/rate"
	"github.com/MrEthical07/goOTP/record"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. A Builder is single-use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	store    RecordStore
	throttle Throttle
	counter  AttemptCounter
	notifier Notifier

	clock     Clock
	codeGen   CodeGenerator
	logger    *slog.Logger
	auditSink AuditSink

	built bool
}

// New returns a [Builder] seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the Redis client backing every collaborator that was not
// supplied explicitly.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithRecordStore overrides the record store.
func (b *Builder) WithRecordStore(store RecordStore) *Builder {
	b.store = store
	return b
}

// WithThrottle overrides the generation throttle.
func (b *Builder) WithThrottle(t Throttle) *Builder {
	b.throttle = t
	return b
}

// WithAttemptCounter overrides the counter behind the verification limiter.
func (b *Builder) WithAttemptCounter(c AttemptCounter) *Builder {
	b.counter = c
	return b
}

// WithNotifier sets the code delivery channel. Required.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithClock overrides the time source.
func (b *Builder) WithClock(c Clock) *Builder {
	b.clock = c
	return b
}

// WithCodeGenerator overrides code generation.
func (b *Builder) WithCodeGenerator(g CodeGenerator) *Builder {
	b.codeGen = g
	return b
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithAuditSink sets where audit events go when Audit is enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the Validate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready [Engine].
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.redis == nil && (b.store == nil || b.throttle == nil || b.counter == nil) {
		return nil, errors.New("redis client required unless RecordStore, Throttle and AttemptCounter are all provided")
	}
	if b.notifier == nil {
		return nil, errors.New("notifier required")
	}

	// -------- STORAGE --------
	store := b.store
	if store == nil {
		store = record.NewStore(b.redis, cfg.Store.RedisPrefix, cfg.Store.Retention)
	}

	throttle := b.throttle
	if throttle == nil {
		throttle = limiters.NewGenerationThrottle(b.redis, cfg.Store.ThrottlePrefix)
	}

	counter := b.counter
	if counter == nil {
		counter = rate.New(b.redis, cfg.Store.CounterPrefix)
	}

	engine := &Engine{
		config:   cfg,
		store:    store,
		throttle: throttle,
		limiter: limiters.NewVerificationLimiter(counter, limiters.VerificationConfig{
			MaxAttempts: cfg.Verification.MaxAttempts,
			Window:      cfg.Verification.DecayWindow,
		}),
		notifier: b.notifier,
		clock:    b.clock,
		codeGen:  b.codeGen,
		logger:   b.logger,
	}

	if engine.clock == nil {
		engine.clock = systemClock{}
	}
	if engine.codeGen == nil {
		engine.codeGen = internal.NewCode
	}
	if engine.logger == nil {
		engine.logger = slog.Default()
	}

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink, engine.logger)
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.flows = internalflows.New(internalflows.Deps{
		Issue:  engine.issueFlowDeps(),
		Verify: engine.verifyFlowDeps(),
	})

	b.built = true

	return engine, nil
}
