// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package verify

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/citecheck/internal/cache"
	"github.com/pdiddy/citecheck/internal/source"
	"github.com/pdiddy/citecheck/pkg/types"
)

// fakeAdapter answers from a table keyed by normalized title. Titles not
// in the table are not found.
type fakeAdapter struct {
	id      types.SourceID
	records map[string]types.SourceRecord
	delay   time.Duration

	// script, when set, overrides the table per call number (0-based).
	script func(call int) types.SourceRecord

	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32

	mu    sync.Mutex
	times []time.Time
}

func (f *fakeAdapter) Name() types.SourceID { return f.id }

func (f *fakeAdapter) Query(ctx context.Context, q types.SourceQuery) types.SourceRecord {
	n := f.calls.Add(1) - 1
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxSeen.Load()
		if cur <= m || f.maxSeen.CompareAndSwap(m, cur) {
			break
		}
	}
	f.mu.Lock()
	f.times = append(f.times, time.Now())
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return types.ErrorRecord(f.id, types.KindTimeout, ctx.Err().Error())
		}
	}
	if f.script != nil {
		return f.script(int(n))
	}
	if rec, ok := f.records[q.Title]; ok {
		rec.Status = types.StatusFound
		return rec
	}
	return types.NotFoundRecord(f.id)
}

var bibliography = []types.BibEntry{
	{Key: "vaswani2017", Title: "Attention Is All You Need", Authors: []string{"Vaswani", "Shazeer", "others"}, Year: 2017},
	{Key: "he2016", Title: "Deep Residual Learning for Image Recognition", Authors: []string{"Kaiming He", "Xiangyu Zhang", "Shaoqing Ren", "Jian Sun"}, Year: 2016},
	{Key: "resnet", Title: "Deep residual learning for image recognition", Authors: []string{"He et al."}, Year: 2016},
	{Key: "fake2024", Title: "Quantum Gradient Descent for Sentient Spreadsheets", Authors: []string{"Nobody"}, Year: 2024},
	{Key: "devlin2019", Title: "BERT: Pre-training of Deep Bidirectional Transformers for Language Understanding", Authors: []string{"Jacob Devlin", "Ming-Wei Chang", "others"}, Year: 2018},
}

func knownWorks() map[string]types.SourceRecord {
	return map[string]types.SourceRecord{
		"attention is all you need": {
			Title: "Attention is All you Need", Authors: []string{"Ashish Vaswani", "Noam Shazeer", "Niki Parmar"},
			Year: 2017, Identifier: "1706.03762",
		},
		"deep residual learning for image recognition": {
			Title: "Deep Residual Learning for Image Recognition", Authors: []string{"Kaiming He", "Xiangyu Zhang", "Shaoqing Ren", "Jian Sun"},
			Year: 2016, Identifier: "10.1109/CVPR.2016.90",
		},
		"bert pre training of deep bidirectional transformers for language understanding": {
			Title: "BERT: Pre-training of Deep Bidirectional Transformers for Language Understanding", Authors: []string{"Jacob Devlin", "Ming-Wei Chang", "Kenton Lee", "Kristina Toutanova"},
			Year: 2019, Identifier: "10.18653/v1/N19-1423",
		},
	}
}

func fakes() []*fakeAdapter {
	return []*fakeAdapter{
		{id: types.SourceArxiv, records: knownWorks()},
		{id: types.SourceDBLP, records: knownWorks()},
		{id: types.SourceOpenAlex, records: knownWorks()},
	}
}

func adapters(fs []*fakeAdapter) []source.Adapter {
	out := make([]source.Adapter, len(fs))
	for i, f := range fs {
		out[i] = f
	}
	return out
}

func testConfig(workers int) types.Config {
	cfg := types.DefaultConfig()
	cfg.Fetch.Workers = workers
	cfg.Fetch.RetryBaseDelay = time.Millisecond
	cfg.HTTP.Timeout = time.Second
	for id, sc := range cfg.Sources {
		sc.Requests = 10000
		sc.Window = time.Second
		sc.MinInterval = time.Microsecond
		sc.MaxInterval = time.Millisecond
		cfg.Sources[id] = sc
	}
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEngine(t *testing.T, cfg types.Config, fs []*fakeAdapter, store *cache.Store) *Engine {
	t.Helper()
	e, err := New(Options{Config: cfg, Adapters: adapters(fs), Cache: store, Logger: quietLogger()})
	require.NoError(t, err)
	return e
}

func totalCalls(fs []*fakeAdapter) int {
	n := 0
	for _, f := range fs {
		n += int(f.calls.Load())
	}
	return n
}

func TestRun_VerdictsAndClusters(t *testing.T) {
	fs := fakes()
	report, err := newEngine(t, testConfig(4), fs, nil).Run(context.Background(), bibliography)
	require.NoError(t, err)

	require.Len(t, report.Verdicts, len(bibliography))
	for i, v := range report.Verdicts {
		assert.Equal(t, bibliography[i].Key, v.Key, "input order preserved")
	}
	assert.Equal(t, types.TierVerified, report.Verdicts[0].Tier)
	assert.Empty(t, report.Verdicts[0].Diffs)
	assert.Equal(t, types.TierVerified, report.Verdicts[1].Tier)
	assert.Equal(t, types.TierNotFound, report.Verdicts[3].Tier)
	assert.Equal(t, []types.SourceID{types.SourceArxiv, types.SourceDBLP, types.SourceOpenAlex}, report.Verdicts[3].NotFoundBy)

	bert := report.Verdicts[4]
	assert.Equal(t, types.TierVerified, bert.Tier)
	require.True(t, bert.HasDiff(types.FieldYear))

	require.Len(t, report.Clusters, 1)
	assert.Equal(t, []string{"he2016", "resnet"}, report.Clusters[0].Keys)

	assert.Equal(t, len(bibliography)*3, report.Stats.Pairs)
	assert.False(t, report.Stats.TimedOut)
}

func TestRun_IdempotentWithWarmCache(t *testing.T) {
	store, err := cache.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	fs := fakes()
	first, err := newEngine(t, testConfig(4), fs, store).Run(context.Background(), bibliography)
	require.NoError(t, err)
	cold := totalCalls(fs)
	assert.Positive(t, cold)

	fs2 := fakes()
	second, err := newEngine(t, testConfig(4), fs2, store).Run(context.Background(), bibliography)
	require.NoError(t, err)

	assert.Equal(t, 0, totalCalls(fs2), "warm cache issues no network calls")
	assert.Equal(t, first.Verdicts, second.Verdicts)
	assert.Equal(t, first.Clusters, second.Clusters)
	assert.Equal(t, len(bibliography)*3, second.Stats.CacheHits)
}

func TestRun_DeterministicAcrossWorkerCounts(t *testing.T) {
	one, err := newEngine(t, testConfig(1), fakes(), nil).Run(context.Background(), bibliography)
	require.NoError(t, err)
	eight, err := newEngine(t, testConfig(8), fakes(), nil).Run(context.Background(), bibliography)
	require.NoError(t, err)

	assert.Equal(t, one.Verdicts, eight.Verdicts)
	assert.Equal(t, one.Clusters, eight.Clusters)
}

func TestRun_InFlightBoundedByWorkers(t *testing.T) {
	fs := fakes()
	for _, f := range fs {
		f.delay = 5 * time.Millisecond
	}
	const workers = 2
	_, err := newEngine(t, testConfig(workers), fs, nil).Run(context.Background(), bibliography)
	require.NoError(t, err)

	for _, f := range fs {
		assert.LessOrEqual(t, f.maxSeen.Load(), int32(workers), f.id)
	}
}

func TestRun_RateCapHolds(t *testing.T) {
	const (
		limit  = 3
		window = 100 * time.Millisecond
	)
	cfg := testConfig(4)
	sc := cfg.Sources[types.SourceArxiv]
	sc.Requests = limit
	sc.Window = window
	sc.MinInterval = time.Millisecond
	sc.MaxInterval = time.Second
	cfg.Sources[types.SourceArxiv] = sc

	arxiv := &fakeAdapter{id: types.SourceArxiv, records: knownWorks()}
	entries := make([]types.BibEntry, 10)
	for i := range entries {
		entries[i] = types.BibEntry{Key: string(rune('a' + i)), Title: "Distinct Title Number " + string(rune('A'+i))}
	}
	_, err := newEngine(t, cfg, []*fakeAdapter{arxiv}, nil).Run(context.Background(), entries)
	require.NoError(t, err)

	arxiv.mu.Lock()
	defer arxiv.mu.Unlock()
	require.Len(t, arxiv.times, len(entries))
	times := slices.SortedFunc(slices.Values(arxiv.times), func(a, b time.Time) int { return a.Compare(b) })
	for i := 0; i+limit < len(times); i++ {
		// Call times trail their grants slightly; allow scheduling slack.
		assert.GreaterOrEqual(t, times[i+limit].Sub(times[i]), window-20*time.Millisecond)
	}
}

func TestRun_AllUnreachableIsUnknown(t *testing.T) {
	down := func(id types.SourceID) *fakeAdapter {
		return &fakeAdapter{id: id, script: func(int) types.SourceRecord {
			return types.ErrorRecord(id, types.KindUnreachable, "connection refused")
		}}
	}
	fs := []*fakeAdapter{down(types.SourceArxiv), down(types.SourceCrossRef)}
	cfg := testConfig(4)

	report, err := newEngine(t, cfg, fs, nil).Run(context.Background(), bibliography[:2])
	require.NoError(t, err)

	for _, v := range report.Verdicts {
		assert.Equal(t, types.TierUnknown, v.Tier)
		assert.False(t, v.Exists)
	}
	// Each pair is tried once plus MaxRetries retries.
	assert.Equal(t, int32(2*(1+cfg.Fetch.MaxRetries)), fs[0].calls.Load())
}

func TestRun_TransientFailureRetriedThenFound(t *testing.T) {
	works := knownWorks()
	flaky := &fakeAdapter{id: types.SourceCrossRef}
	flaky.script = func(call int) types.SourceRecord {
		if call < 2 {
			return types.ErrorRecord(types.SourceCrossRef, types.KindTimeout, "deadline exceeded")
		}
		rec := works["attention is all you need"]
		rec.Status = types.StatusFound
		return rec
	}

	report, err := newEngine(t, testConfig(1), []*fakeAdapter{flaky}, nil).Run(context.Background(), bibliography[:1])
	require.NoError(t, err)

	assert.Equal(t, int32(3), flaky.calls.Load())
	assert.Equal(t, types.TierVerified, report.Verdicts[0].Tier)
	assert.Equal(t, 2, report.Stats.Retries)
}

func TestRun_MalformedIsTerminal(t *testing.T) {
	bad := &fakeAdapter{id: types.SourceDBLP, script: func(int) types.SourceRecord {
		return types.ErrorRecord(types.SourceDBLP, types.KindMalformed, "bad json")
	}}
	report, err := newEngine(t, testConfig(1), []*fakeAdapter{bad}, nil).Run(context.Background(), bibliography[:1])
	require.NoError(t, err)

	assert.Equal(t, int32(1), bad.calls.Load())
	require.Len(t, report.Verdicts[0].Failures, 1)
	assert.Equal(t, types.KindMalformed, report.Verdicts[0].Failures[0].Kind)
}

func TestRun_RateLimitedBacksOffAndRetries(t *testing.T) {
	works := knownWorks()
	limited := &fakeAdapter{id: types.SourceSemanticScholar}
	limited.script = func(call int) types.SourceRecord {
		if call == 0 {
			return types.ErrorRecord(types.SourceSemanticScholar, types.KindRateLimited, "HTTP 429")
		}
		rec := works["attention is all you need"]
		rec.Status = types.StatusFound
		return rec
	}
	cfg := testConfig(1)
	e := newEngine(t, cfg, []*fakeAdapter{limited}, nil)
	before := e.limiters[types.SourceSemanticScholar].Interval()

	report, err := e.Run(context.Background(), bibliography[:1])
	require.NoError(t, err)

	assert.Equal(t, int32(2), limited.calls.Load())
	assert.Equal(t, 1, report.Stats.RateLimited)
	assert.Equal(t, types.TierVerified, report.Verdicts[0].Tier)
	assert.Greater(t, e.limiters[types.SourceSemanticScholar].Interval(), before)
}

func TestRun_RateLimitRetriesAreBounded(t *testing.T) {
	limited := &fakeAdapter{id: types.SourceSemanticScholar, script: func(int) types.SourceRecord {
		return types.ErrorRecord(types.SourceSemanticScholar, types.KindRateLimited, "HTTP 429")
	}}
	cfg := testConfig(1)
	report, err := newEngine(t, cfg, []*fakeAdapter{limited}, nil).Run(context.Background(), bibliography[:1])
	require.NoError(t, err)

	assert.Equal(t, int32(1+cfg.Fetch.MaxRateLimitRetries), limited.calls.Load())
	assert.Equal(t, types.TierUnknown, report.Verdicts[0].Tier)
}

func TestRun_RunTimeoutYieldsPartialReport(t *testing.T) {
	slow := &fakeAdapter{id: types.SourceArxiv, records: knownWorks(), delay: 80 * time.Millisecond}
	cfg := testConfig(1)
	cfg.Fetch.RunTimeout = 30 * time.Millisecond

	store, err := cache.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	report, err := newEngine(t, cfg, []*fakeAdapter{slow}, store).Run(context.Background(), bibliography)
	require.NoError(t, err)

	require.Len(t, report.Verdicts, len(bibliography))
	assert.True(t, report.Stats.TimedOut)
	// The first call was in flight at the deadline and allowed to finish.
	assert.Equal(t, types.TierVerified, report.Verdicts[0].Tier)
	for _, v := range report.Verdicts[1:] {
		assert.Equal(t, types.TierUnknown, v.Tier, v.Key)
	}

	st, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Total(), "unfinished pairs are not cached")
}

func TestRun_CachedErrorsRetriedWhenConfigured(t *testing.T) {
	store, err := cache.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	q := types.NewSourceQuery(&bibliography[0])
	require.NoError(t, store.Put(types.SourceArxiv, q, types.ErrorRecord(types.SourceArxiv, types.KindUnreachable, "down")))

	fs := []*fakeAdapter{{id: types.SourceArxiv, records: knownWorks()}}
	report, err := newEngine(t, testConfig(1), fs, store).Run(context.Background(), bibliography[:1])
	require.NoError(t, err)
	assert.Equal(t, int32(0), fs[0].calls.Load())
	assert.Equal(t, types.TierUnknown, report.Verdicts[0].Tier)

	cfg := testConfig(1)
	cfg.Cache.RetryErrors = true
	report, err = newEngine(t, cfg, fs, store).Run(context.Background(), bibliography[:1])
	require.NoError(t, err)
	assert.Equal(t, int32(1), fs[0].calls.Load())
	assert.Equal(t, types.TierVerified, report.Verdicts[0].Tier)
}

func TestRun_CorruptCacheFallsBackToLive(t *testing.T) {
	dir := t.TempDir()
	store, err := cache.Open(dir)
	require.NoError(t, err)
	defer store.Close()

	q := types.NewSourceQuery(&bibliography[0])
	srcDir := filepath.Join(dir, string(types.SourceArxiv))
	require.NoError(t, os.MkdirAll(srcDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, q.Hash()+".yaml"), []byte(":::not yaml"), 0o644))

	var logs bytes.Buffer
	fs := []*fakeAdapter{{id: types.SourceArxiv, records: knownWorks()}}
	e, err := New(Options{
		Config:   testConfig(1),
		Adapters: adapters(fs),
		Cache:    store,
		Logger:   slog.New(slog.NewTextHandler(&logs, nil)),
	})
	require.NoError(t, err)

	report, err := e.Run(context.Background(), bibliography[:1])
	require.NoError(t, err)
	assert.Equal(t, types.TierVerified, report.Verdicts[0].Tier)
	assert.Equal(t, 1, report.Stats.CacheErrors)
	assert.Contains(t, logs.String(), "kind=cache_io")
}

func TestRun_IdenticalQueriesShareOneLookup(t *testing.T) {
	dup := []types.BibEntry{bibliography[0], bibliography[0], bibliography[0]}
	dup[1].Key, dup[2].Key = "copy1", "copy2"
	fs := []*fakeAdapter{{id: types.SourceArxiv, records: knownWorks(), delay: 20 * time.Millisecond}}

	report, err := newEngine(t, testConfig(3), fs, nil).Run(context.Background(), dup)
	require.NoError(t, err)

	assert.Equal(t, int32(1), fs[0].calls.Load())
	for _, v := range report.Verdicts {
		assert.Equal(t, types.TierVerified, v.Tier)
	}
}

func TestRun_AdapterPanicIsContained(t *testing.T) {
	boom := &fakeAdapter{id: types.SourceOpenAlex, script: func(int) types.SourceRecord { panic("boom") }}
	ok := &fakeAdapter{id: types.SourceArxiv, records: knownWorks()}

	report, err := newEngine(t, testConfig(2), []*fakeAdapter{ok, boom}, nil).Run(context.Background(), bibliography[:1])
	require.NoError(t, err)

	v := report.Verdicts[0]
	assert.Equal(t, types.TierVerified, v.Tier)
	require.Len(t, v.Failures, 1)
	assert.Equal(t, types.KindMalformed, v.Failures[0].Kind)
}

func TestRun_CancelledContextReturnsPartialReport(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newEngine(t, testConfig(2), fakes(), nil).Run(ctx, bibliography)
	assert.Error(t, err)
	assert.True(t, IsInterrupted(err))
	assert.Len(t, report.Verdicts, len(bibliography))
	for _, v := range report.Verdicts {
		assert.Equal(t, types.TierUnknown, v.Tier)
	}
}

func TestRun_ProgressLines(t *testing.T) {
	var progress bytes.Buffer
	e, err := New(Options{Config: testConfig(2), Adapters: adapters(fakes()), Logger: quietLogger(), Progress: &progress})
	require.NoError(t, err)

	_, err = e.Run(context.Background(), bibliography[:2])
	require.NoError(t, err)
	assert.Contains(t, progress.String(), "[2/2]")
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{Config: testConfig(1)})
	assert.Error(t, err)

	a := &fakeAdapter{id: types.SourceArxiv}
	_, err = New(Options{Config: testConfig(1), Adapters: []source.Adapter{a, a}})
	assert.Error(t, err)
}
