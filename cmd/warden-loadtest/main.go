package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	mrand "math/rand"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/warden"
)

var errNotSeeded = errors.New("subject login failed during seeding")

type subjectState struct {
	pair *warden.TokenPair
	mu   sync.Mutex
}

// skewClock lets the refresh phase see every seeded access token as expired
// without waiting out the access TTL.
type skewClock struct {
	offset atomic.Int64
}

func (c *skewClock) Now() time.Time {
	return time.Now().Add(time.Duration(c.offset.Load()))
}

func (c *skewClock) Skew(d time.Duration) {
	c.offset.Add(int64(d))
}

func main() {
	var (
		subjects    = flag.Int("subjects", 10000, "number of subjects to log in")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations per validate and rate phase")
		envFile     = flag.String("env-file", ".env", "optional dotenv file")
	)
	flag.Parse()

	if *subjects <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "subjects, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	logger := newLogger(os.Getenv("LOG_LEVEL"))

	cfg, err := warden.LoadConfigFromEnv()
	if err != nil {
		logger.Error("config", slog.Any("error", err))
		os.Exit(1)
	}
	if len(cfg.JWT.PrivateKey) == 0 {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			logger.Error("generate key", slog.Any("error", err))
			os.Exit(1)
		}
		cfg.JWT.SigningMethod = "ed25519"
		cfg.JWT.PrivateKey = priv
		cfg.JWT.PublicKey = pub
		logger.Warn("JWT_PRIVATE_KEY not set, using an ephemeral ed25519 key")
	}
	// The rate phase measures throughput, not blocking.
	cfg.RateLimit.Default.Limit = 1 << 30

	client, cleanup, err := openRedis(os.Getenv("REDIS_URL"), logger)
	if err != nil {
		logger.Error("redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer cleanup()

	clock := &skewClock{}
	engine, err := warden.New().
		WithConfig(cfg).
		WithRedis(client).
		WithLogger(logger).
		WithClock(clock.Now).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		logger.Error("engine build", slog.Any("error", err))
		os.Exit(1)
	}
	defer engine.Close()

	ctx := context.Background()

	states := make([]subjectState, *subjects)
	logger.Info("seeding", slog.Int("subjects", *subjects))
	seedStats := runPhase(*subjects, *concurrency, func(_ *mrand.Rand, i int) error {
		pair, err := engine.IssueForLogin(ctx, warden.Subject{
			ID:    fmt.Sprintf("user-%d", i),
			Roles: []string{"user"},
		})
		if err != nil {
			return err
		}
		states[i].pair = pair
		return nil
	})

	validateStats := runPhase(*ops, *concurrency, func(r *mrand.Rand, _ int) error {
		pair := states[r.Intn(len(states))].pair
		if pair == nil {
			return errNotSeeded
		}
		_, err := engine.ValidateAccess(ctx, pair.AccessToken)
		return err
	})

	clock.Skew(cfg.JWT.AccessTTL + time.Second)
	// Each subject rotates once: a fresh access token is too early to refresh.
	refreshStats := runPhase(len(states), *concurrency, func(_ *mrand.Rand, i int) error {
		state := &states[i]
		state.mu.Lock()
		defer state.mu.Unlock()
		if state.pair == nil {
			return errNotSeeded
		}

		next, err := engine.Refresh(ctx, state.pair.RefreshToken, state.pair.AccessToken)
		if err != nil {
			return err
		}
		state.pair = next
		return nil
	})

	rateStats := runPhase(*ops, *concurrency, func(r *mrand.Rand, _ int) error {
		ip := fmt.Sprintf("10.%d.%d.%d", r.Intn(256), r.Intn(256), r.Intn(256))
		_, err := engine.CheckRate(ctx, warden.Identity{IP: ip}, "/loadtest")
		return err
	})

	fmt.Println("---- results ----")
	printStats("login", seedStats)
	printStats("validate", validateStats)
	printStats("refresh", refreshStats)
	printStats("check_rate", rateStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("store_unavailable=%d refresh_failure=%d\n",
		snap.Counters[warden.MetricStoreUnavailable],
		snap.Counters[warden.MetricRefreshFailure],
	)
}

func newLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo

	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// openRedis connects to url, or to an in-process miniredis when url is empty.
func openRedis(url string, logger *slog.Logger) (redis.UniversalClient, func(), error) {
	if url == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		logger.Info("using miniredis", slog.String("addr", mr.Addr()))
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	logger.Info("using redis", slog.String("addr", opts.Addr))
	return client, func() { _ = client.Close() }, nil
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

// runPhase runs op n times across concurrency workers. op receives the
// operation index and a worker-local rand.
func runPhase(n, concurrency int, op func(r *mrand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, n)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := mrand.New(mrand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= n {
					return
				}
				t0 := time.Now()
				err := op(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
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
