// Command session-loadtest drives an engine with concurrent verifications
// while stamps rotate underneath, then with magic token issue and redeem
// pairs. Without -redis-addr or REDIS_ADDR it runs against miniredis.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/principal"
	"github.com/MrEthical07/goSession/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type options struct {
	principals  int
	concurrency int
	ops         int
	rotateEvery int
	redisAddr   string
}

func main() {
	var opts options
	flag.IntVar(&opts.principals, "principals", 10000, "principals to seed")
	flag.IntVar(&opts.concurrency, "concurrency", 256, "concurrent workers per phase")
	flag.IntVar(&opts.ops, "ops", 200000, "verify operations; the magic phase runs a tenth of this")
	flag.IntVar(&opts.rotateEvery, "rotate-every", 1000, "rotate one random stamp every N verify ops; 0 disables")
	flag.StringVar(&opts.redisAddr, "redis-addr", os.Getenv("REDIS_ADDR"), "redis address; empty starts miniredis")
	flag.Parse()

	if opts.principals <= 0 || opts.concurrency <= 0 || opts.ops <= 0 || opts.rotateEvery < 0 {
		fmt.Fprintln(os.Stderr, "principals, concurrency and ops must be > 0")
		os.Exit(2)
	}
	if err := run(context.Background(), opts); err != nil {
		fmt.Fprintf(os.Stderr, "loadtest: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	client, closeRedis, err := connectRedis(opts.redisAddr)
	if err != nil {
		return err
	}
	defer closeRedis()

	cfg := goSession.DefaultConfig()
	cfg.JWT.Secret = []byte("loadtest-secret-loadtest-secret-0")
	cfg.RateLimit.MaxHandshakes = 0
	cfg.RateLimit.MaxRedeemFailures = 0

	store := memory.New()
	engine, err := goSession.New().
		WithConfig(cfg).
		WithRedis(client).
		WithPrincipalStore(store).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	seedStart := time.Now()
	ids, tokens, err := seed(ctx, engine, store, opts.principals)
	if err != nil {
		return err
	}
	fmt.Printf("seeded %d principals in %s\n", len(ids), time.Since(seedStart).Round(time.Millisecond))

	var revoked atomic.Int64
	verify := runPhase(opts.ops, opts.concurrency, func(i int, r *rand.Rand) error {
		idx := r.Intn(len(tokens))
		if opts.rotateEvery > 0 && i%opts.rotateEvery == 0 {
			_, err := engine.Rotate(ctx, ids[idx])
			return err
		}
		_, err := engine.Verify(ctx, tokens[idx])
		if goSession.KindOf(err) == goSession.KindRevoked {
			revoked.Add(1)
			return nil
		}
		return err
	})

	magic := runPhase(opts.ops/10+1, opts.concurrency, func(_ int, r *rand.Rand) error {
		mt, err := engine.IssueMagic(ctx, ids[r.Intn(len(ids))])
		if err != nil {
			return err
		}
		_, err = engine.RedeemMagic(ctx, mt.Token)
		return err
	})

	fmt.Printf("verify  %s revoked_seen=%d\n", verify, revoked.Load())
	fmt.Printf("magic   %s\n", magic)

	snap := engine.MetricsSnapshot()
	fmt.Printf("engine  verify_ok=%d revoked=%d rotated=%d cache_hit=%d cache_miss=%d magic_redeemed=%d\n",
		snap.Counters[goSession.MetricVerifySuccess],
		snap.Counters[goSession.MetricVerifyRevoked],
		snap.Counters[goSession.MetricStampRotated],
		snap.Counters[goSession.MetricStampCacheHit],
		snap.Counters[goSession.MetricStampCacheMiss],
		snap.Counters[goSession.MetricMagicRedeemed],
	)
	return nil
}

func connectRedis(addr string) (redis.UniversalClient, func(), error) {
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("redis %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("miniredis %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

// seed stores n principals, every fiftieth elevated, and issues one token each.
func seed(ctx context.Context, engine *goSession.Engine, store *memory.Store, n int) ([]string, []string, error) {
	ids := make([]string, n)
	tokens := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("p-%d", i)
		role := principal.RoleStandard
		if i%50 == 0 {
			role = principal.RoleAdmin
		}
		store.Put(principal.Record{ID: ids[i], Role: role, SecurityStamp: fmt.Sprintf("seed-%d", i)})

		sess, err := engine.Issue(ctx, ids[i])
		if err != nil {
			return nil, nil, fmt.Errorf("issue %s: %w", ids[i], err)
		}
		tokens[i] = sess.Token
	}
	return ids, tokens, nil
}

type result struct {
	elapsed  time.Duration
	samples  []time.Duration
	failures int64
}

// runPhase spreads ops over workers. Each worker keeps its own latency
// samples; they are merged once all workers finish.
func runPhase(ops, workers int, op func(i int, r *rand.Rand) error) result {
	var (
		next     atomic.Int64
		failures atomic.Int64
		wg       sync.WaitGroup
	)
	perWorker := make([][]time.Duration, workers)

	start := time.Now()
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(w)<<32))
			local := make([]time.Duration, 0, ops/workers+1)
			for {
				i := int(next.Add(1)) - 1
				if i >= ops {
					break
				}
				t0 := time.Now()
				if err := op(i, r); err != nil {
					failures.Add(1)
				}
				local = append(local, time.Since(t0))
			}
			perWorker[w] = local
		}()
	}
	wg.Wait()

	res := result{elapsed: time.Since(start), failures: failures.Load()}
	for _, s := range perWorker {
		res.samples = append(res.samples, s...)
	}
	slices.Sort(res.samples)
	return res
}

func (r result) quantile(q float64) time.Duration {
	if len(r.samples) == 0 {
		return 0
	}
	return r.samples[int(float64(len(r.samples)-1)*q)]
}

func (r result) String() string {
	rate := 0.0
	if r.elapsed > 0 {
		rate = float64(len(r.samples)) / r.elapsed.Seconds()
	}
	return fmt.Sprintf("ops=%d failures=%d elapsed=%s ops/sec=%.0f p50=%s p95=%s p99=%s",
		len(r.samples),
		r.failures,
		r.elapsed.Round(time.Millisecond),
		rate,
		r.quantile(0.50).Round(time.Microsecond),
		r.quantile(0.95).Round(time.Microsecond),
		r.quantile(0.99).Round(time.Microsecond),
	)
}
