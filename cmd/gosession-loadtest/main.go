// Command gosession-loadtest drives many concurrent requests through session
// clients while the backend keeps expiring their sessions, and reports how
// many refreshes that cost.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/authtest"
	"github.com/MrEthical07/goSession/marketplace"
	"github.com/MrEthical07/goSession/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

type user struct {
	api    *marketplace.API
	client *goSession.Client
}

func main() {
	var (
		users       = flag.Int("users", 32, "number of accounts, each with its own session client")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "requests to send")
		qps         = flag.Float64("qps", 0, "request rate limit; 0 means unlimited")
		expireEvery = flag.Duration("expire-every", 200*time.Millisecond, "expire every access session at this interval (in-process backend only)")
		store       = flag.String("store", "memory", "cookie store: memory or redis")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		seed        = flag.Int64("seed", 0, "fake data seed; 0 picks a random one")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	srv, err := authtest.Start(authtest.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start backend: %v\n", err)
		os.Exit(1)
	}
	defer srv.Close()
	fmt.Printf("backend at %s\n", srv.URL)

	newStore, cleanup, err := storeFactory(*store, *redisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cookie store: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	faker := gofakeit.New(uint64(*seed))
	accounts := make([]user, 0, *users)
	fmt.Printf("signing up %d users...\n", *users)
	startSignup := time.Now()
	for i := 0; i < *users; i++ {
		cfg := goSession.DefaultConfig()
		cfg.BaseURL = srv.URL
		cfg.Metrics.Enabled = true
		client, err := goSession.New().WithConfig(cfg).WithCookieStore(newStore(i)).Build()
		if err != nil {
			fmt.Fprintf(os.Stderr, "build client: %v\n", err)
			os.Exit(1)
		}
		defer client.Close()

		api := marketplace.New(client)
		_, err = api.Signup(ctx, marketplace.SignupRequest{
			Name:     faker.Name(),
			Email:    fmt.Sprintf("%d.%s", i, faker.Email()),
			Password: faker.Password(true, true, true, false, false, 16),
			Role:     marketplace.RoleTraveler,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "signup failed: %v\n", err)
			os.Exit(1)
		}
		accounts = append(accounts, user{api: api, client: client})
	}
	fmt.Printf("signed up in %s\n", time.Since(startSignup).Round(time.Millisecond))

	expiries := runExpirer(ctx, srv, *expireEvery)
	stats := runRequestPhase(ctx, accounts, *ops, *concurrency, limiterFor(*qps))
	expired := expiries()

	var refreshes, queued, adopted, lost uint64
	for _, u := range accounts {
		snap := u.client.MetricsSnapshot()
		refreshes += snap.Counters[goSession.MetricRefreshStarted]
		queued += snap.Counters[goSession.MetricRefreshQueued]
		adopted += snap.Counters[goSession.MetricRefreshAdopted]
		lost += snap.Counters[goSession.MetricSessionExpired]
	}

	fmt.Println("---- results ----")
	printStats("requests", stats)
	fmt.Printf("expiries=%d client_refreshes=%d server_refreshes=%d queued=%d adopted=%d sessions_lost=%d\n",
		expired, refreshes, srv.RefreshCalls(), queued, adopted, lost)
	if ceiling := uint64(expired+1) * uint64(len(accounts)); refreshes > ceiling {
		fmt.Printf("WARNING: %d refreshes exceed one per user per expiry (%d)\n", refreshes, ceiling)
	}
}

func storeFactory(kind, addr string) (func(i int) session.Store, func(), error) {
	switch kind {
	case "memory":
		return func(int) session.Store { return session.NewMemoryStore() }, func() {}, nil
	case "redis":
	default:
		return nil, nil, fmt.Errorf("unknown store %q", kind)
	}

	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	var cleanup func()
	var client redis.UniversalClient
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to start miniredis: %w", err)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	// Every user talks to the same host, so each needs its own key space.
	return func(i int) session.Store {
		return session.NewRedisStore(client, fmt.Sprintf("gslt:%d", i))
	}, cleanup, nil
}

// runExpirer expires every access session each interval until the returned
// func is called; that func reports how many expiries happened.
func runExpirer(ctx context.Context, srv *authtest.Server, every time.Duration) func() int {
	if every <= 0 {
		return func() int { return 0 }
	}
	ctx, cancel := context.WithCancel(ctx)
	var count atomic.Int64
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				srv.ExpireSessions()
				count.Add(1)
			}
		}
	}()
	return func() int {
		cancel()
		<-done
		return int(count.Load())
	}
}

func limiterFor(qps float64) *rate.Limiter {
	if qps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(qps / 10)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(qps), burst)
}

func runRequestPhase(ctx context.Context, accounts []user, ops, concurrency int, limiter *rate.Limiter) phaseStats {
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
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				u := accounts[r.Intn(len(accounts))]
				t0 := time.Now()
				_, err := u.api.Me(ctx)
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
