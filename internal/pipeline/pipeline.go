// Package pipeline runs the batch scoring pipeline: records are partitioned
// by wallet, each partition is extracted and scored independently, and the
// partitions are merged once at the end.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mbd888/walletscore/internal/events"
	"github.com/mbd888/walletscore/internal/features"
	"github.com/mbd888/walletscore/internal/logging"
	"github.com/mbd888/walletscore/internal/metrics"
	"github.com/mbd888/walletscore/internal/scoring"
	"github.com/mbd888/walletscore/internal/traces"
)

// Pipeline scores complete batches of events. It holds no per-run state and
// may be shared between goroutines.
type Pipeline struct {
	engine  *scoring.Engine
	workers int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithWorkers sets the number of partitions scored in parallel. Values
// below 1 select runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		p.workers = n
	}
}

// New creates a pipeline around engine.
func New(engine *scoring.Engine, opts ...Option) *Pipeline {
	p := &Pipeline{engine: engine}
	for _, opt := range opts {
		opt(p)
	}
	if p.workers < 1 {
		p.workers = runtime.NumCPU()
	}
	return p
}

// Workers returns the configured partition count.
func (p *Pipeline) Workers() int {
	return p.workers
}

// Engine returns the scoring engine.
func (p *Pipeline) Engine() *scoring.Engine {
	return p.engine
}

// partial is one partition's contribution to the result set.
type partial struct {
	entries map[string]Entry
	quality features.Quality
}

// Run extracts and scores every wallet in evs. It returns an error only when
// ctx is cancelled or a scoring invariant is violated; malformed records are
// counted in the result's Quality instead.
func (p *Pipeline) Run(ctx context.Context, evs []events.Event) (*ResultSet, error) {
	start := time.Now()
	ctx, span := traces.StartSpan(ctx, "pipeline.Run",
		traces.RunID(logging.RunID(ctx)), traces.Records(len(evs)))
	defer span.End()

	rs, err := p.run(ctx, evs)
	metrics.PipelineDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		traces.RecordError(span, err)
		metrics.PipelineRunsTotal.WithLabelValues(runStatus(err)).Inc()
		logging.L(ctx).Error("scoring run failed", "records", len(evs), "error", err)
		return nil, err
	}

	span.SetAttributes(traces.Wallets(rs.Len()))
	observe(rs)
	logRun(ctx, rs, time.Since(start))
	return rs, nil
}

func (p *Pipeline) run(ctx context.Context, evs []events.Event) (*ResultSet, error) {
	parts := partition(evs, p.workers)
	partials := make([]partial, len(parts))

	g, gctx := errgroup.WithContext(ctx)
	for i := range parts {
		if len(parts[i]) == 0 {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := p.scorePartition(gctx, i, parts[i])
			if err != nil {
				return err
			}
			partials[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rs := &ResultSet{
		Entries: make(map[string]Entry),
		Quality: features.NewQuality(),
	}
	for _, pt := range partials {
		for w, e := range pt.entries {
			rs.Entries[w] = e
		}
		rs.Quality.Merge(pt.quality)
	}
	return rs, nil
}

func (p *Pipeline) scorePartition(ctx context.Context, idx int, evs []events.Event) (partial, error) {
	_, span := traces.StartSpan(ctx, "pipeline.partition", traces.Partition(idx), traces.Records(len(evs)))
	defer span.End()

	vecs, q := features.Extract(evs)
	out := partial{
		entries: make(map[string]Entry, len(vecs)),
		quality: q,
	}
	for w, v := range vecs {
		rec, err := p.engine.Score(v)
		if err != nil {
			span.SetAttributes(traces.Wallet(w))
			traces.RecordError(span, err)
			return partial{}, err
		}
		out.entries[w] = Entry{Features: v, Score: rec}
	}
	return out, nil
}

// partition splits evs into n slices so that every record of a wallet lands
// in the same slice. Records keep their relative order.
func partition(evs []events.Event, n int) [][]events.Event {
	if n < 1 {
		n = 1
	}
	parts := make([][]events.Event, n)
	for _, ev := range evs {
		i := shard(ev.Wallet, n)
		parts[i] = append(parts[i], ev)
	}
	return parts
}

func shard(wallet string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(wallet))
	return int(h.Sum32() % uint32(n))
}

func runStatus(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, scoring.ErrInvariantViolation):
		return "invariant_violation"
	default:
		return "error"
	}
}

func observe(rs *ResultSet) {
	metrics.PipelineRunsTotal.WithLabelValues("success").Inc()
	metrics.WalletsScoredTotal.Add(float64(rs.Len()))
	metrics.LastRunWallets.Set(float64(rs.Len()))
	for _, e := range rs.Entries {
		metrics.CreditScore.Observe(float64(e.Score.Score))
	}
	for kind, n := range rs.Quality.Issues {
		metrics.RecordIssuesTotal.WithLabelValues(string(kind)).Add(float64(n))
	}
}

func logRun(ctx context.Context, rs *ResultSet, took time.Duration) {
	log := logging.L(ctx)
	log.Info("scoring run complete",
		"records", rs.Quality.Records,
		"wallets", rs.Len(),
		"omitted_wallets", rs.Quality.OmittedWallets,
		"duration", took)

	if rs.Quality.Total() == 0 {
		return
	}
	args := make([]any, 0, 2*len(rs.Quality.Issues))
	for _, kind := range rs.Quality.Kinds() {
		args = append(args, string(kind), rs.Quality.Issues[kind])
	}
	log.Warn("data quality issues", args...)
}

// Describe summarizes rs in one line for CLI output.
func Describe(rs *ResultSet) string {
	scores := rs.Scores()
	if len(scores) == 0 {
		return "no wallets scored"
	}
	sum := 0
	for _, s := range scores {
		sum += s
	}
	return fmt.Sprintf("%d wallets scored, mean %.1f, range %d-%d",
		len(scores), float64(sum)/float64(len(scores)), scores[0], scores[len(scores)-1])
}
