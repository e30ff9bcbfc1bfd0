package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goOTP "github.com/MrEthical07/goOTP"
	"github.com/MrEthical07/goOTP/configfile"
	"github.com/MrEthical07/goOTP/metrics/export/prometheus"
	"github.com/MrEthical07/goOTP/notify"
	"github.com/MrEthical07/goOTP/ratelimit/local"
	"github.com/MrEthical07/goOTP/store/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

var errNoDelivery = errors.New("otp-sweeper does not deliver codes")

func main() {
	var (
		configPath  = flag.String("config", "", "config file (yaml, json or toml); GOOTP_* env only when empty")
		interval    = flag.Duration("interval", 0, "sweep interval; overrides cleanup.sweep_interval")
		once        = flag.Bool("once", false, "run a single sweep and exit")
		metricsAddr = flag.String("metrics-addr", "", "serve Prometheus metrics on this address")
	)
	flag.Parse()

	settings, err := loadSettings(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger := newLogger(settings.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, settings, logger, *interval, *once, *metricsAddr); err != nil {
		logger.Error("otp-sweeper stopped", "error", err)
		os.Exit(1)
	}
}

func loadSettings(path string) (*configfile.Settings, error) {
	if path == "" {
		return configfile.FromEnv()
	}
	return configfile.Load(path)
}

func run(ctx context.Context, s *configfile.Settings, logger *slog.Logger, interval time.Duration, once bool, metricsAddr string) error {
	b := goOTP.New().
		WithConfig(s.Config).
		WithLogger(logger).
		WithNotifier(notify.Func(func(context.Context, goOTP.Notification) error { return errNoDelivery }))

	switch s.Backend {
	case "postgres":
		pool, err := pgxpool.New(ctx, s.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("postgres connect: %w", err)
		}
		defer pool.Close()

		store := postgres.New(pool)
		if s.Postgres.Migrate {
			if err := store.Migrate(ctx); err != nil {
				return err
			}
		}
		b = b.WithRecordStore(store).
			WithThrottle(local.NewThrottle()).
			WithAttemptCounter(local.NewCounter())
		logger.Info("otp-sweeper using postgres")
	default:
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{s.Redis.Addr},
			Username: s.Redis.Username,
			Password: s.Redis.Password,
			DB:       s.Redis.DB,
		})
		defer client.Close()

		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		b = b.WithRedis(client)
		logger.Info("otp-sweeper using redis", "addr", s.Redis.Addr)
	}

	engine, err := b.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	if once {
		n, err := engine.SweepExpired(ctx)
		if err != nil {
			return err
		}
		logger.Info("otp-sweeper swept", "deleted", n)
		return nil
	}

	if metricsAddr != "" {
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           prometheus.NewPrometheusExporter(engine).Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	sweeper := engine.NewSweeper(interval)
	sweeper.Start(ctx)
	logger.Info("otp-sweeper started")

	<-ctx.Done()
	sweeper.Stop()
	logger.Info("otp-sweeper shutting down")
	return nil
}

func newLogger(cfg configfile.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.TimeKey:
				a.Key = "ts"
			case slog.LevelKey:
				a.Key = "severity"
			}
			return a
		},
	}

	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(os.Stdout, opts)
	} else {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(h).With("service", "otp-sweeper")
}
