// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/xml"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/citecheck/pkg/types"
)

// arxivAPIBase is the arXiv search endpoint. Declared as a var so tests
// can substitute an httptest server.
var arxivAPIBase = "https://export.arxiv.org/api/query"

// Arxiv queries the arXiv Atom API by title.
type Arxiv struct {
	base
}

// Query searches arXiv for the query title and returns the best match.
func (a *Arxiv) Query(ctx context.Context, q types.SourceQuery) types.SourceRecord {
	if q.IsEmpty() {
		return types.NotFoundRecord(a.id)
	}
	ctx, cancel := a.deadline(ctx)
	defer cancel()

	params := url.Values{
		"search_query": {buildArxivQuery(q)},
		"start":        {"0"},
		"max_results":  {strconv.Itoa(a.src.MaxResults)},
		"sortBy":       {"relevance"},
	}
	resp, err := a.get(ctx, arxivAPIBase+"?"+params.Encode(), nil)
	if err != nil {
		return a.fail(err)
	}
	defer resp.Body.Close()

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return a.fail(a.decodeErr(ctx, err))
	}

	var candidates []types.SourceRecord
	for _, entry := range feed.Entries {
		id := extractArxivID(entry.ID)
		if id == "" {
			continue
		}
		r := types.SourceRecord{
			Title:      cleanText(entry.Title),
			Identifier: id,
			URL:        strings.TrimSpace(entry.ID),
			Abstract:   cleanText(entry.Summary),
			Venue:      "arXiv",
		}
		if ref := cleanText(entry.JournalRef); ref != "" {
			r.Venue = ref
		}
		if entry.DOI != "" {
			r.Identifier = strings.TrimSpace(entry.DOI)
		}
		for _, au := range entry.Authors {
			if n := strings.TrimSpace(au.Name); n != "" {
				r.Authors = append(r.Authors, n)
			}
		}
		if t, perr := time.Parse(time.RFC3339, strings.TrimSpace(entry.Published)); perr == nil {
			r.Year = t.Year()
		}
		candidates = append(candidates, r)
	}
	return a.pick(q, candidates)
}

// buildArxivQuery searches the title field for every title term, so word
// order and punctuation in the bibliography do not matter.
func buildArxivQuery(q types.SourceQuery) string {
	terms := strings.Fields(q.Title)
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		parts = append(parts, "ti:"+t)
	}
	return strings.Join(parts, " AND ")
}

// arXiv Atom feed XML structures.
type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID         string        `xml:"id"`
	Title      string        `xml:"title"`
	Summary    string        `xml:"summary"`
	Published  string        `xml:"published"`
	Authors    []arxivAuthor `xml:"author"`
	DOI        string        `xml:"http://arxiv.org/schemas/atom doi"`
	JournalRef string        `xml:"http://arxiv.org/schemas/atom journal_ref"`
}

type arxivAuthor struct {
	Name string `xml:"name"`
}

// extractArxivID pulls the arXiv ID from the entry's <id> URL
// (e.g. "http://arxiv.org/abs/2301.07041v1" -> "2301.07041").
func extractArxivID(idURL string) string {
	const prefix = "/abs/"
	idx := strings.Index(idURL, prefix)
	if idx < 0 {
		return ""
	}
	id := strings.TrimSpace(idURL[idx+len(prefix):])

	if vIdx := strings.LastIndex(id, "v"); vIdx > 0 {
		if _, err := strconv.Atoi(id[vIdx+1:]); err == nil {
			id = id[:vIdx]
		}
	}
	return id
}

// cleanText collapses the line breaks and runs of spaces feeds put in
// titles and abstracts.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
