// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package verify runs a bibliography through every enabled source and
// reconciles the answers into one verdict per entry. Work is the cross
// product of entries and sources, executed by a bounded worker pool; each
// (entry, source) pair checks the cache, waits on the source's limiter,
// calls the adapter with retries, and writes the result back.
package verify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/pdiddy/citecheck/internal/cache"
	"github.com/pdiddy/citecheck/internal/duplicate"
	"github.com/pdiddy/citecheck/internal/httputil"
	"github.com/pdiddy/citecheck/internal/ratelimit"
	"github.com/pdiddy/citecheck/internal/reconcile"
	"github.com/pdiddy/citecheck/internal/source"
	"github.com/pdiddy/citecheck/pkg/types"
)

// defaultCallTimeout bounds an adapter call when no HTTP timeout is set.
const defaultCallTimeout = 30 * time.Second

// Options configures an Engine.
type Options struct {
	Config   types.Config
	Adapters []source.Adapter

	// Limiters overrides the per-source limiters built from Config.
	Limiters map[types.SourceID]*ratelimit.Limiter

	// Cache is optional; a nil store disables caching.
	Cache *cache.Store

	// Logger receives structured events; nil uses slog.Default().
	Logger *slog.Logger

	// Progress receives one human-readable line per completed entry.
	Progress io.Writer
}

// Engine is the fetch orchestrator. An Engine may run several times; the
// limiters carry their backoff state across runs.
type Engine struct {
	cfg      types.Config
	adapters []source.Adapter
	limiters map[types.SourceID]*ratelimit.Limiter
	cache    *cache.Store
	log      *slog.Logger
	progress io.Writer
	progMu   sync.Mutex
}

// New validates opts and builds an Engine.
func New(opts Options) (*Engine, error) {
	if len(opts.Adapters) == 0 {
		return nil, fmt.Errorf("no source adapters configured")
	}
	e := &Engine{
		cfg:      opts.Config,
		adapters: opts.Adapters,
		limiters: make(map[types.SourceID]*ratelimit.Limiter, len(opts.Adapters)),
		cache:    opts.Cache,
		log:      opts.Logger,
		progress: opts.Progress,
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.progress == nil {
		e.progress = io.Discard
	}
	if e.cfg.Fetch.Workers <= 0 {
		e.cfg.Fetch.Workers = 1
	}
	seen := make(map[types.SourceID]bool, len(opts.Adapters))
	for _, a := range opts.Adapters {
		id := a.Name()
		if seen[id] {
			return nil, fmt.Errorf("duplicate adapter for source %q", id)
		}
		seen[id] = true
		if l, ok := opts.Limiters[id]; ok && l != nil {
			e.limiters[id] = l
			continue
		}
		e.limiters[id] = ratelimit.New(e.cfg.Sources[id])
	}
	return e, nil
}

// Stats counts what a run did. Stats are not part of the verdicts, which
// stay identical between a cold and a warm run.
type Stats struct {
	Entries     int           `json:"entries" yaml:"entries"`
	Pairs       int           `json:"pairs" yaml:"pairs"`
	Calls       int           `json:"calls" yaml:"calls"`
	CacheHits   int           `json:"cache_hits" yaml:"cache_hits"`
	CacheErrors int           `json:"cache_errors" yaml:"cache_errors"`
	Retries     int           `json:"retries" yaml:"retries"`
	RateLimited int           `json:"rate_limited" yaml:"rate_limited"`
	Incomplete  int           `json:"incomplete" yaml:"incomplete"`
	TimedOut    bool          `json:"timed_out" yaml:"timed_out"`
	Elapsed     time.Duration `json:"elapsed" yaml:"elapsed"`
}

// Report is the output of one run: verdicts in input order, duplicate
// clusters, and run statistics.
type Report struct {
	Verdicts []types.Verdict          `json:"verdicts" yaml:"verdicts"`
	Clusters []types.DuplicateCluster `json:"clusters" yaml:"clusters"`
	Stats    Stats                    `json:"stats" yaml:"stats"`
}

// counters are the live, concurrently updated form of Stats.
type counters struct {
	calls, hits, cacheErrs, retries, limited atomic.Int64
}

// run holds the state of one Run call.
type run struct {
	*Engine
	ctx     context.Context
	flight  singleflight.Group
	count   counters
	records [][]types.SourceRecord
	pending []atomic.Int32
	done    atomic.Int32
	total   int
}

// Run verifies entries and returns one verdict per entry, in input order.
// When the run timeout expires, pairs not yet started are recorded as
// unknown and the report is still complete. Run returns a non-nil error
// only when ctx itself was cancelled; the partial report is returned with
// it.
func (e *Engine) Run(ctx context.Context, entries []types.BibEntry) (Report, error) {
	start := time.Now()
	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if e.cfg.Fetch.RunTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.cfg.Fetch.RunTimeout)
	}
	defer cancel()

	r := &run{
		Engine:  e,
		ctx:     runCtx,
		records: make([][]types.SourceRecord, len(entries)),
		pending: make([]atomic.Int32, len(entries)),
		total:   len(entries),
	}
	queries := make([]types.SourceQuery, len(entries))
	for i := range entries {
		queries[i] = types.NewSourceQuery(&entries[i])
		r.records[i] = make([]types.SourceRecord, len(e.adapters))
		r.pending[i].Store(int32(len(e.adapters)))
	}

	e.log.Info("verification started",
		"entries", len(entries), "sources", len(e.adapters), "workers", e.cfg.Fetch.Workers)

	var g errgroup.Group
	g.SetLimit(e.cfg.Fetch.Workers)
schedule:
	for i := range entries {
		for j, a := range e.adapters {
			if runCtx.Err() != nil {
				break schedule
			}
			g.Go(func() error {
				r.records[i][j] = r.fetch(entries[i].Key, queries[i], a)
				r.finish(i, entries[i].Key)
				return nil
			})
		}
	}
	g.Wait()

	report := Report{Verdicts: make([]types.Verdict, len(entries))}
	for i := range entries {
		incomplete := false
		for j, a := range e.adapters {
			if r.records[i][j].Status == "" {
				r.records[i][j] = runTimeoutRecord(a.Name())
			}
			if r.records[i][j].ErrorKind == types.KindRunTimeout {
				incomplete = true
				report.Stats.Incomplete++
			}
		}
		v := reconcile.Reconcile(&entries[i], r.records[i], e.cfg.Reconcile)
		if incomplete && v.Tier == types.TierNotFound {
			// An unfinished lookup might still have found the work.
			v.Tier = types.TierUnknown
		}
		report.Verdicts[i] = v
	}
	report.Clusters = duplicate.Detect(entries, e.cfg.Duplicate)

	report.Stats.Entries = len(entries)
	report.Stats.Pairs = len(entries) * len(e.adapters)
	report.Stats.Calls = int(r.count.calls.Load())
	report.Stats.CacheHits = int(r.count.hits.Load())
	report.Stats.CacheErrors = int(r.count.cacheErrs.Load())
	report.Stats.Retries = int(r.count.retries.Load())
	report.Stats.RateLimited = int(r.count.limited.Load())
	report.Stats.TimedOut = report.Stats.Incomplete > 0
	report.Stats.Elapsed = time.Since(start)

	e.log.Info("verification finished",
		"entries", report.Stats.Entries,
		"calls", report.Stats.Calls,
		"cache_hits", report.Stats.CacheHits,
		"incomplete", report.Stats.Incomplete,
		"elapsed", report.Stats.Elapsed)

	if report.Stats.TimedOut {
		e.log.Warn("run timeout expired before all lookups finished",
			"incomplete", report.Stats.Incomplete, "kind", types.KindRunTimeout)
	}
	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("verification interrupted: %w", err)
	}
	return report, nil
}

// finish reports an entry once all its sources are done.
func (r *run) finish(i int, key string) {
	if r.pending[i].Add(-1) != 0 {
		return
	}
	n := r.done.Add(1)
	r.progMu.Lock()
	fmt.Fprintf(r.progress, "[%d/%d] %s\n", n, r.total, key)
	r.progMu.Unlock()
}

// fetch resolves one (entry, source) pair: cache first, then a live
// lookup shared between entries whose queries are identical.
func (r *run) fetch(key string, q types.SourceQuery, a source.Adapter) types.SourceRecord {
	src := a.Name()
	if r.cache != nil {
		entry, ok, err := r.cache.Get(src, q)
		switch {
		case err != nil:
			r.count.cacheErrs.Add(1)
			r.log.Warn("cache read failed, fetching live",
				"source", src, "key", key, "kind", types.KindCacheIO, "error", err)
		case ok && !(r.cfg.Cache.RetryErrors && entry.Record.Status == types.StatusError):
			r.count.hits.Add(1)
			return entry.Record
		}
	}

	v, _, _ := r.flight.Do(string(src)+"/"+q.Hash(), func() (any, error) {
		rec := r.live(key, q, a)
		if rec.ErrorKind != types.KindRunTimeout && r.cache != nil {
			if err := r.cache.Put(src, q, rec); err != nil {
				r.count.cacheErrs.Add(1)
				r.log.Warn("cache write failed",
					"source", src, "key", key, "kind", types.KindCacheIO, "error", err)
			}
		}
		return rec, nil
	})
	return v.(types.SourceRecord)
}

// live calls the adapter under the limiter, retrying transient failures
// with exponential backoff and rate-limit responses after the limiter
// backs off. A run timeout while waiting yields a run_timeout marker.
func (r *run) live(key string, q types.SourceQuery, a source.Adapter) types.SourceRecord {
	src := a.Name()
	lim := r.limiters[src]
	transient, limited := 0, 0
	for {
		if err := lim.Wait(r.ctx); err != nil {
			return runTimeoutRecord(src)
		}
		rec := r.call(a, q)
		r.count.calls.Add(1)

		switch {
		case rec.Status != types.StatusError:
			lim.Success()
			return rec

		case rec.ErrorKind == types.KindRateLimited:
			r.count.limited.Add(1)
			ivl := lim.Backoff()
			if limited >= r.cfg.Fetch.MaxRateLimitRetries {
				r.log.Warn("source kept rate limiting, giving up",
					"source", src, "key", key, "kind", rec.ErrorKind, "attempts", limited+1)
				return rec
			}
			limited++
			r.count.retries.Add(1)
			r.log.Debug("rate limited, backing off",
				"source", src, "key", key, "interval", ivl)

		case rec.ErrorKind.Transient():
			if transient >= r.cfg.Fetch.MaxRetries {
				r.log.Warn("source lookup failed",
					"source", src, "key", key, "kind", rec.ErrorKind, "error", rec.Message, "attempts", transient+1)
				return rec
			}
			delay := httputil.Backoff(transient, r.cfg.Fetch.RetryBaseDelay)
			transient++
			r.count.retries.Add(1)
			r.log.Debug("transient failure, retrying",
				"source", src, "key", key, "kind", rec.ErrorKind, "delay", delay)
			if err := httputil.Sleep(r.ctx, delay); err != nil {
				return runTimeoutRecord(src)
			}

		default:
			r.log.Warn("source lookup failed",
				"source", src, "key", key, "kind", rec.ErrorKind, "error", rec.Message)
			return rec
		}
	}
}

// call invokes the adapter. The call is detached from the run deadline so
// an in-flight request may finish when the run times out, but it is still
// bounded by the per-call timeout. An adapter panic becomes a malformed
// marker.
func (r *run) call(a source.Adapter, q types.SourceQuery) (rec types.SourceRecord) {
	timeout := r.cfg.HTTP.Timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), timeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			rec = types.ErrorRecord(a.Name(), types.KindMalformed, fmt.Sprintf("adapter panic: %v", p))
		}
	}()
	rec = a.Query(ctx, q)
	rec.Source = a.Name()
	if rec.Status == "" {
		rec = types.ErrorRecord(a.Name(), types.KindMalformed, "adapter returned no status")
	}
	return rec
}

func runTimeoutRecord(src types.SourceID) types.SourceRecord {
	return types.ErrorRecord(src, types.KindRunTimeout, types.ErrRunTimeout.Error())
}

// IsInterrupted reports whether err came from a cancelled Run.
func IsInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
