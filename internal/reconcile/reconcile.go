// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package reconcile turns the per-source records collected for one
// bibliography entry into a verdict: whether the work exists, how well the
// entry's fields match the best evidence, and which fields disagree.
package reconcile

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pdiddy/citecheck/internal/similarity"
	"github.com/pdiddy/citecheck/pkg/types"
)

// fieldOrder fixes the order fields are scored, summed, and reported in.
var fieldOrder = []types.Field{types.FieldTitle, types.FieldAuthors, types.FieldYear, types.FieldVenue}

// Similarities holds one similarity per compared field. A field is absent
// when either side lacks a value; absent fields drop out of the score.
type Similarities map[types.Field]float64

// Score is the weighted mean of the present field similarities. Raising
// any one similarity never lowers the score.
func Score(s Similarities, w types.FieldWeights) float64 {
	var sum, total float64
	for _, f := range fieldOrder {
		v, ok := s[f]
		if !ok {
			continue
		}
		wf := weight(w, f)
		sum += wf * v
		total += wf
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

func weight(w types.FieldWeights, f types.Field) float64 {
	switch f {
	case types.FieldTitle:
		return w.Title
	case types.FieldAuthors:
		return w.Authors
	case types.FieldYear:
		return w.Year
	case types.FieldVenue:
		return w.Venue
	}
	return 0
}

// Compare scores every field of one found record against the entry.
func Compare(entry *types.BibEntry, rec types.SourceRecord, cfg types.ReconcileConfig) Similarities {
	s := Similarities{
		types.FieldTitle: similarity.Title(entry.Title, rec.Title),
	}
	if len(entry.Authors) > 0 && len(rec.Authors) > 0 {
		s[types.FieldAuthors] = similarity.Authors(entry.Authors, rec.Authors, rec.AuthorsTruncated)
	}
	if y, ok := similarity.Year(entry.Year, rec.Year, cfg.YearTolerance, cfg.YearToleranceScore); ok {
		s[types.FieldYear] = y
	}
	if strings.TrimSpace(entry.Venue) != "" && strings.TrimSpace(rec.Venue) != "" {
		s[types.FieldVenue] = similarity.Venue(entry.Venue, rec.Venue, cfg.LenientVenue)
	}
	return s
}

// best is the strongest evidence for one field.
type best struct {
	sim    float64
	record int
}

// Reconcile produces the verdict for entry from the records its sources
// returned. Records may arrive in any order; the verdict lists sources in
// canonical order and is a pure function of its inputs.
func Reconcile(entry *types.BibEntry, records []types.SourceRecord, cfg types.ReconcileConfig) types.Verdict {
	records = canonicalOrder(records)
	v := types.Verdict{Key: entry.Key, Diffs: []types.FieldDiff{}}

	var found []types.SourceRecord
	for _, r := range records {
		switch r.Status {
		case types.StatusFound:
			found = append(found, r)
			v.Sources = append(v.Sources, r.Source)
		case types.StatusNotFound:
			v.NotFoundBy = append(v.NotFoundBy, r.Source)
		default:
			v.Failures = append(v.Failures, types.SourceFailure{Source: r.Source, Kind: r.ErrorKind, Message: r.Message})
		}
	}

	if len(found) == 0 {
		v.Tier = types.TierUnknown
		if len(v.NotFoundBy) > 0 {
			v.Tier = types.TierNotFound
		}
		return v
	}
	v.Exists = true

	// Per-field best evidence across sources, and per-record scores for
	// choosing the evidence record.
	bests := make(map[types.Field]best)
	perRecord := make([]float64, len(found))
	for i, r := range found {
		sims := Compare(entry, r, cfg)
		perRecord[i] = Score(sims, cfg.Weights)
		for f, s := range sims {
			if b, ok := bests[f]; !ok || s > b.sim || (s == b.sim && i < b.record) {
				bests[f] = best{sim: s, record: i}
			}
		}
	}

	sims := make(Similarities, len(bests))
	for f, b := range bests {
		sims[f] = b.sim
	}
	v.Score = Score(sims, cfg.Weights)
	v.Tier = tier(sims, cfg)

	for _, f := range fieldOrder {
		b, ok := bests[f]
		if !ok {
			continue
		}
		sev, report := severity(f, b.sim, cfg)
		if !report {
			continue
		}
		r := found[b.record]
		v.Diffs = append(v.Diffs, types.FieldDiff{
			Field:       f,
			BibValue:    entryValue(entry, f),
			SourceValue: recordValue(r, f),
			Source:      r.Source,
			Similarity:  b.sim,
			Severity:    sev,
		})
	}

	v.Evidence = evidence(found, perRecord, sims, cfg)
	return v
}

// tier maps field similarities to a tier. Only title, authors, and year
// decide it; a year within tolerance passes, and venue never counts.
func tier(s Similarities, cfg types.ReconcileConfig) types.Tier {
	if s[types.FieldTitle] < cfg.TitleThreshold {
		return types.TierMismatch
	}
	if a, ok := s[types.FieldAuthors]; ok && a < cfg.AuthorThreshold {
		return types.TierMismatch
	}
	if y, ok := s[types.FieldYear]; ok && y < cfg.YearThreshold {
		return types.TierMismatch
	}
	return types.TierVerified
}

// severity reports whether a field's best similarity belongs in the diff
// list and how to read it.
func severity(f types.Field, sim float64, cfg types.ReconcileConfig) (types.Severity, bool) {
	switch f {
	case types.FieldTitle:
		if sim >= cfg.TitleReport {
			return "", false
		}
		if sim < cfg.TitleThreshold {
			return types.SeverityMajor, true
		}
		return types.SeverityMinor, true
	case types.FieldAuthors:
		if sim >= cfg.AuthorReport {
			return "", false
		}
		if sim < cfg.AuthorThreshold {
			return types.SeverityMajor, true
		}
		return types.SeverityMinor, true
	case types.FieldYear:
		if sim >= 1 {
			return "", false
		}
		if sim >= cfg.YearThreshold {
			return types.SeverityPossibleArtifact, true
		}
		return types.SeverityMajor, true
	case types.FieldVenue:
		if sim >= cfg.VenueReport {
			return "", false
		}
		return types.SeverityInformational, true
	}
	return "", false
}

// evidence picks the best-scoring record for the relevance collaborator.
// When it carries no abstract, the abstract of another record describing
// the same work is used.
func evidence(found []types.SourceRecord, perRecord []float64, sims Similarities, cfg types.ReconcileConfig) *types.Evidence {
	top := 0
	for i := range found {
		if perRecord[i] > perRecord[top] {
			top = i
		}
	}
	r := found[top]
	ev := &types.Evidence{
		Source:     r.Source,
		Identifier: r.Identifier,
		URL:        r.URL,
		Abstract:   r.Abstract,
	}
	if ev.Abstract != "" {
		return ev
	}
	for i, o := range found {
		if i == top || o.Abstract == "" {
			continue
		}
		if similarity.Title(r.Title, o.Title) >= cfg.TitleThreshold {
			ev.Abstract = o.Abstract
			break
		}
	}
	return ev
}

func entryValue(e *types.BibEntry, f types.Field) string {
	switch f {
	case types.FieldTitle:
		return e.Title
	case types.FieldAuthors:
		return strings.Join(e.Authors, " and ")
	case types.FieldYear:
		return yearString(e.Year)
	case types.FieldVenue:
		return e.Venue
	}
	return ""
}

func recordValue(r types.SourceRecord, f types.Field) string {
	switch f {
	case types.FieldTitle:
		return r.Title
	case types.FieldAuthors:
		s := strings.Join(r.Authors, " and ")
		if r.AuthorsTruncated {
			s += " and others"
		}
		return s
	case types.FieldYear:
		return yearString(r.Year)
	case types.FieldVenue:
		return r.Venue
	}
	return ""
}

func yearString(y int) string {
	if y <= 0 {
		return ""
	}
	return strconv.Itoa(y)
}

// canonicalOrder sorts records by the canonical source order without
// modifying the caller's slice.
func canonicalOrder(records []types.SourceRecord) []types.SourceRecord {
	rank := make(map[types.SourceID]int, len(types.AllSources))
	for i, id := range types.AllSources {
		rank[id] = i
	}
	out := append([]types.SourceRecord(nil), records...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, ok := rank[out[i].Source]
		if !ok {
			ri = len(rank)
		}
		rj, ok := rank[out[j].Source]
		if !ok {
			rj = len(rank)
		}
		return ri < rj
	})
	return out
}
