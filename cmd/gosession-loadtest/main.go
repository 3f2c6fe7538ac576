package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type clientState struct {
	cookie *http.Cookie
	mu     sync.Mutex
}

func main() {
	var (
		sessions    = flag.Int("sessions", 20000, "number of sessions to establish")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations per phase (load + rotate)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "sess", "session key prefix")
	)
	flag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency, and ops must be > 0")
		os.Exit(2)
	}

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
	defer cleanup()

	cfg := goSession.DefaultConfig()
	cfg.Token.Secret = []byte("loadtest-secret-loadtest-secret-0")
	cfg.Store.Prefix = *prefix
	cfg.Session.TTL = time.Hour
	engine, err := goSession.New().
		WithConfig(cfg).
		WithStore(session.NewRedisStore(client, *prefix)).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	states := make([]clientState, *sessions)
	fmt.Printf("establishing %d sessions...\n", *sessions)
	startSeed := time.Now()
	for i := range states {
		c, err := establish(engine, fmt.Sprintf("u%d", i))
		if err != nil {
			fmt.Fprintf(os.Stderr, "establish failed: %v\n", err)
			os.Exit(1)
		}
		states[i].cookie = c
	}
	fmt.Printf("established in %s\n", time.Since(startSeed).Round(time.Millisecond))

	loadStats := runPhase(states, *ops, *concurrency, 7919, func(state *clientState) error {
		sess := engine.Begin(newRequest(state.cookie))
		if sess.IsEmpty() {
			return fmt.Errorf("session not found")
		}
		return nil
	})
	rotateStats := runPhase(states, *ops, *concurrency, 6151, func(state *clientState) error {
		state.mu.Lock()
		defer state.mu.Unlock()
		r := newRequest(state.cookie)
		sess := engine.Begin(r)
		d := engine.Commit(context.Background(), sess, r)
		if d.Outcome != goSession.OutcomeRotated {
			return fmt.Errorf("unexpected outcome %s: %v", d.Outcome, d.Err)
		}
		state.cookie = d.Cookie
		return nil
	})

	fmt.Println("---- results ----")
	printStats("load", loadStats)
	printStats("rotate", rotateStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("created=%d rotated=%d persist_failed=%d load_failures=%d\n",
		snap.Counters[goSession.MetricSessionCreated],
		snap.Counters[goSession.MetricSessionRotated],
		snap.Counters[goSession.MetricSessionPersistFailed],
		snap.Counters[goSession.MetricStoreLoadFailure],
	)
}

func establish(engine *goSession.Engine, subject string) (*http.Cookie, error) {
	r := newRequest(nil)
	sess := engine.Begin(r)
	if err := sess.Set(engine.Config().Session.SubjectAttribute, subject); err != nil {
		return nil, err
	}
	d := engine.Commit(r.Context(), sess, r)
	if d.Cookie == nil {
		return nil, fmt.Errorf("outcome %s: %v", d.Outcome, d.Err)
	}
	return d.Cookie, nil
}

func newRequest(c *http.Cookie) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if c != nil {
		r.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	return r
}

func runPhase(states []clientState, ops, concurrency int, seed int64, op func(*clientState) error) phaseStats {
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
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				state := &states[r.Intn(len(states))]
				t0 := time.Now()
				err := op(state)
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
	return samples[(len(samples)-1)*p/100]
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
