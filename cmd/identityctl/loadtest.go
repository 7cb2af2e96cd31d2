package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/credential"
	"github.com/MrEthical07/goIdentity/storage/memstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type loadtestOptions struct {
	sessions    int
	concurrency int
	ops         int
	redisAddr   string
}

type sessionState struct {
	slot *credential.MemorySlot
	mu   sync.Mutex
}

func newLoadtestCmd(load func() (goIdentity.Config, error)) *cobra.Command {
	var opts loadtestOptions

	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Measure session resolve and refresh latency against redis",
		Long: `loadtest seeds sessions through the engine, then runs a resolve phase
(slot decode plus store lookup) and a refresh phase (CreateOrRefresh with
refresh=true) with concurrent workers. Without --redis-addr it reads
REDIS_ADDR and falls back to an in-process miniredis.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.sessions <= 0 || opts.concurrency <= 0 || opts.ops <= 0 {
				return errors.New("sessions, concurrency, and ops must be > 0")
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			return runLoadtest(cmd.Context(), cmd.OutOrStdout(), cfg, opts)
		},
	}
	cmd.Flags().IntVar(&opts.sessions, "sessions", 10000, "number of sessions to seed")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 64, "number of concurrent workers")
	cmd.Flags().IntVar(&opts.ops, "ops", 50000, "operations per phase (resolve + refresh)")
	cmd.Flags().StringVar(&opts.redisAddr, "redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	return cmd
}

func runLoadtest(ctx context.Context, out io.Writer, cfg goIdentity.Config, opts loadtestOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	client, cleanup, err := loadtestRedis(out, opts.redisAddr)
	if err != nil {
		return err
	}
	defer cleanup()

	engine, err := goIdentity.New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserStore(memstore.New()).
		WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	states := make([]sessionState, opts.sessions)
	fmt.Fprintf(out, "seeding %d sessions...\n", opts.sessions)
	startSeed := time.Now()
	for i := range states {
		states[i].slot = credential.NewMemorySlot()
		res := engine.NewIdentity(nil, states[i].slot).CreateOrRefresh(ctx, false)
		if !res.Saved {
			return fmt.Errorf("seed session %d: %v", i, res.Messages)
		}
	}
	fmt.Fprintf(out, "seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	resolveStats := runPhase(states, opts.ops, opts.concurrency, 7919, func(state *sessionState) bool {
		sess, err := engine.NewIdentity(nil, state.slot).Session(ctx, false)
		return err == nil && sess != nil
	})
	refreshStats := runPhase(states, opts.ops, opts.concurrency, 6151, func(state *sessionState) bool {
		state.mu.Lock()
		defer state.mu.Unlock()
		return engine.NewIdentity(nil, state.slot).CreateOrRefresh(ctx, true).Saved
	})

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "resolve", resolveStats)
	printStats(out, "refresh", refreshStats)
	return nil
}

func loadtestRedis(out io.Writer, addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Fprintf(out, "using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Fprintf(out, "using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

// runPhase spreads ops calls of op over concurrency workers, each picking a
// random session.
func runPhase(states []sessionState, ops, concurrency int, seed int64, op func(*sessionState) bool) phaseStats {
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
				ok := op(state)
				d := time.Since(t0)
				if !ok {
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

func printStats(out io.Writer, name string, s phaseStats) {
	fmt.Fprintf(out, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
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
