// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package source implements the source adapters: one per bibliographic
// data service, each turning a SourceQuery into a SourceRecord. Adapters
// never return Go errors; failures come back as error-marker records with
// a classified kind.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/pdiddy/citecheck/internal/httputil"
	"github.com/pdiddy/citecheck/internal/similarity"
	"github.com/pdiddy/citecheck/pkg/types"
)

// Adapter queries a single bibliographic source. Each source implements
// this interface; the set of adapters is resolved once at startup.
type Adapter interface {
	Name() types.SourceID
	Query(ctx context.Context, q types.SourceQuery) types.SourceRecord
}

// defaultMaxResults is the candidate count when a source config sets none.
const defaultMaxResults = 5

// New builds the adapter for id from the engine config.
func New(id types.SourceID, cfg types.Config, client *http.Client) (Adapter, error) {
	if client == nil {
		client = &http.Client{}
	}
	b := base{
		id:        id,
		client:    client,
		userAgent: cfg.HTTP.UserAgent,
		timeout:   cfg.HTTP.Timeout,
		floor:     cfg.Reconcile.CandidateFloor,
		src:       cfg.Sources[id],
	}
	if b.src.MaxResults <= 0 {
		b.src.MaxResults = defaultMaxResults
	}

	switch id {
	case types.SourceArxiv:
		return &Arxiv{base: b}, nil
	case types.SourceCrossRef:
		return &CrossRef{base: b}, nil
	case types.SourceDBLP:
		return &DBLP{base: b}, nil
	case types.SourceSemanticScholar:
		return &SemanticScholar{base: b}, nil
	case types.SourceOpenAlex:
		return &OpenAlex{base: b}, nil
	case types.SourceGoogleScholar:
		return &GoogleScholar{base: b}, nil
	}
	return nil, fmt.Errorf("unknown source %q", id)
}

// Build returns adapters for every enabled source, in canonical order.
func Build(cfg types.Config, client *http.Client) ([]Adapter, error) {
	var out []Adapter
	for _, id := range types.AllSources {
		sc, ok := cfg.Sources[id]
		if !ok || !sc.Enabled {
			continue
		}
		a, err := New(id, cfg, client)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no sources enabled")
	}
	return out, nil
}

// base carries the settings every adapter shares.
type base struct {
	id        types.SourceID
	client    *http.Client
	userAgent string
	timeout   time.Duration
	floor     float64
	src       types.SourceConfig
}

// Name returns the source identifier.
func (b *base) Name() types.SourceID { return b.id }

// deadline bounds one call with the per-call timeout.
func (b *base) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.timeout)
}

// get issues a GET with the shared headers and returns a 200 response or a
// classified error.
func (b *base) get(ctx context.Context, reqURL string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, httputil.Malformed(fmt.Errorf("creating request: %w", err))
	}
	if b.userAgent != "" {
		req.Header.Set("User-Agent", b.userAgent)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return httputil.Do(ctx, b.client, req)
}

// decodeErr classifies a body read or decode failure. A failure after the
// call deadline passed is a timeout, anything else is a malformed body.
func (b *base) decodeErr(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return types.NewSourceError(b.id, types.KindTimeout, err)
	}
	return types.NewSourceError(b.id, types.KindMalformed, err)
}

// fail turns a classified error into a record for this source.
func (b *base) fail(err error) types.SourceRecord {
	kind := types.KindOf(err)
	if kind == "" {
		kind = types.KindUnreachable
	}
	if kind == types.KindNotFound {
		return types.NotFoundRecord(b.id)
	}
	return types.ErrorRecord(b.id, kind, err.Error())
}

// pick returns the candidate whose title best matches the query. Ties go to
// the earlier candidate, except that a year match breaks a tie. When no
// candidate reaches the floor the source did not find the work.
func (b *base) pick(q types.SourceQuery, candidates []types.SourceRecord) types.SourceRecord {
	title := q.RawTitle
	if title == "" {
		title = q.Title
	}
	best, bestScore := -1, 0.0
	for i, c := range candidates {
		s := similarity.Title(title, c.Title)
		switch {
		case s > bestScore:
			best, bestScore = i, s
		case s == bestScore && best >= 0 && q.Year > 0 &&
			c.Year == q.Year && candidates[best].Year != q.Year:
			best = i
		}
	}
	if best < 0 || bestScore < b.floor {
		return types.NotFoundRecord(b.id)
	}
	rec := candidates[best]
	rec.Source = b.id
	rec.Status = types.StatusFound
	rec.Confidence = bestScore
	return rec
}
