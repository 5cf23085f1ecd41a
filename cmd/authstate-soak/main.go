// Package main measures how fast a login or logout written by one execution context
// reaches the others.
//
// Every engine shares one Redis (or an embedded miniredis). Engine 0 alternates login
// and logout; each round waits until every other engine's state reflects the write.
//
// Run:
//
//	go run ./cmd/authstate-soak -engines 16 -rounds 200
//	go run ./cmd/authstate-soak -notifications=false -poll 1s
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authstate"
	"github.com/MrEthical07/authstate/credential"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	var (
		engines       = flag.Int("engines", 8, "number of execution contexts")
		rounds        = flag.Int("rounds", 100, "login/logout writes from the first context")
		poll          = flag.Duration("poll", authstate.DefaultConfig().Sync.PollInterval, "state poll interval")
		notifications = flag.Bool("notifications", true, "subscribe to change notifications")
		timeout       = flag.Duration("timeout", 5*time.Second, "per-round propagation deadline")
		redisAddr     = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix        = flag.String("prefix", "soak-"+uuid.NewString()[:8], "credential key prefix")
		logLevel      = flag.String("log-level", "warn", "engine log level")
	)
	flag.Parse()

	if *engines < 2 || *rounds <= 0 {
		fmt.Fprintln(os.Stderr, "engines must be >= 2 and rounds > 0")
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
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	logger, err := authstate.NewLogger(authstate.LogConfig{Level: *logLevel})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg := authstate.DefaultConfig()
	cfg.Store.KeyPrefix = *prefix
	cfg.Sync.PollInterval = *poll
	cfg.Sync.DisableNotifications = !*notifications

	contexts := make([]*authstate.Engine, 0, *engines)
	for i := range *engines {
		e, err := authstate.New().
			WithConfig(cfg).
			WithRedis(client).
			WithLogger(logger).
			WithOrigin(fmt.Sprintf("soak-%d", i)).
			BuildContext(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "build engine %d: %v\n", i, err)
			os.Exit(1)
		}
		defer e.Close()

		if _, err := e.Watch(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "watch engine %d: %v\n", i, err)
			os.Exit(1)
		}
		contexts = append(contexts, e)
	}

	fmt.Printf("%d contexts, %d rounds, notifications=%t poll=%s\n", *engines, *rounds, *notifications, *poll)
	stats := runRounds(ctx, logger, contexts[0], contexts[1:], *rounds, *timeout)

	fmt.Println("---- results ----")
	printStats("propagation", stats)
	printTriggers(contexts)
}

func runRounds(ctx context.Context, logger *zap.Logger, writer *authstate.Engine, observers []*authstate.Engine, rounds int, timeout time.Duration) phaseStats {
	var (
		failures  int64
		latencies = make([]time.Duration, 0, rounds*len(observers))
		mu        sync.Mutex
	)

	user := &authstate.UserProfile{
		ID:            "soak-user",
		Username:      "soak",
		Email:         "soak@example.com",
		Roles:         []string{"member"},
		EmailVerified: credential.Verified(true),
	}

	start := time.Now()
	for round := range rounds {
		want := round%2 == 0

		var (
			wg     sync.WaitGroup
			t0     time.Time
			t0Set  = make(chan struct{})
			unsubs = make([]func(), 0, len(observers))
		)

		for _, o := range observers {
			reached := make(chan struct{})
			var once sync.Once
			unsubs = append(unsubs, o.State().OnChange(func(s authstate.Snapshot) {
				if s.Authenticated == want {
					once.Do(func() { close(reached) })
				}
			}))
			if o.Snapshot().Authenticated == want {
				once.Do(func() { close(reached) })
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				select {
				case <-reached:
					<-t0Set
					d := time.Since(t0)
					mu.Lock()
					latencies = append(latencies, d)
					mu.Unlock()
				case <-time.After(timeout):
					atomic.AddInt64(&failures, 1)
				}
			}()
		}

		t0 = time.Now()
		close(t0Set)

		var err error
		if want {
			err = writer.Login(ctx, fmt.Sprintf("soak-token-%d", round), user)
		} else {
			err = writer.Logout(ctx)
		}
		if err != nil {
			logger.Warn("write failed", zap.Int("round", round), zap.Error(err))
		}

		wg.Wait()
		for _, unsub := range unsubs {
			unsub()
		}
	}
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
	max      time.Duration
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total, failures: failures}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		max:      samples[len(samples)-1],
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
	fmt.Printf("%s: samples=%d timeouts=%d total=%s p50=%s p95=%s p99=%s max=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
		s.max.Round(time.Microsecond),
	)
}

func printTriggers(contexts []*authstate.Engine) {
	var explicit, notified, polled, changed uint64
	for _, e := range contexts {
		c := e.MetricsSnapshot().Counters
		explicit += c[authstate.MetricRefreshExplicit]
		notified += c[authstate.MetricRefreshNotification]
		polled += c[authstate.MetricRefreshPoll]
		changed += c[authstate.MetricStateChanged]
	}
	fmt.Printf("refreshes: explicit=%d notification=%d poll=%d changed=%d\n", explicit, notified, polled, changed)
}
