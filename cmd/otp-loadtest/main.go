package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goOTP "github.com/MrEthical07/goOTP"
	"github.com/MrEthical07/goOTP/notify"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func main() {
	var (
		users       = flag.Int("users", 20000, "number of distinct users to issue codes for")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "otp", "record key prefix")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 {
		fmt.Fprintln(os.Stderr, "users and concurrency must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	var codes sync.Map
	cfg := goOTP.DefaultConfig()
	cfg.Store.RedisPrefix = *prefix
	cfg.Cleanup.SweepOnIssue = false

	engine, err := goOTP.New().
		WithConfig(cfg).
		WithRedis(client).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		WithLatencyHistograms(true).
		WithNotifier(notify.Func(func(_ context.Context, n goOTP.Notification) error {
			codes.Store(n.UserID, n.Code)
			return nil
		})).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	issueStats := runPhase(*users, *concurrency, func(i int) error {
		_, err := engine.Issue(ctx, userFor(i), goOTP.ChannelEmail)
		return err
	})
	validateStats := runPhase(*users, *concurrency, func(i int) error {
		code, ok := codes.Load(userFor(i))
		if !ok {
			return goOTP.ErrInvalid
		}
		return engine.Validate(ctx, userFor(i), code.(string), goOTP.ChannelEmail)
	})
	replayStats := runPhase(*users, *concurrency, func(i int) error {
		code, _ := codes.Load(userFor(i))
		s, _ := code.(string)
		err := engine.Validate(ctx, userFor(i), s, goOTP.ChannelEmail)
		if err == nil {
			return fmt.Errorf("code for %s accepted twice", userFor(i))
		}
		return nil
	})

	fmt.Println("---- results ----")
	printStats("issue", issueStats)
	printStats("validate", validateStats)
	printStats("replay", replayStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("issued=%d verified=%d invalid=%d\n",
		snap.Counters[goOTP.MetricOTPIssued],
		snap.Counters[goOTP.MetricOTPVerified],
		snap.Counters[goOTP.MetricOTPInvalid],
	)
}

func userFor(i int) string {
	return fmt.Sprintf("user-%d", i)
}

// runPhase calls op once for every index in [0, ops) across concurrency workers.
func runPhase(ops, concurrency int, op func(i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
