// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pdiddy/citecheck/pkg/types"
)

// semanticAPIBase is the Semantic Scholar paper search endpoint. Declared
// as a var so tests can substitute an httptest server.
var semanticAPIBase = "https://api.semanticscholar.org/graph/v1/paper/search"

const semanticFields = "title,abstract,authors,externalIds,year,venue,url"

// SemanticScholar queries the Semantic Scholar Graph API. Requests carry
// the x-api-key header when a key is configured.
type SemanticScholar struct {
	base
}

// Query searches Semantic Scholar for the query title and returns the best
// match.
func (s *SemanticScholar) Query(ctx context.Context, q types.SourceQuery) types.SourceRecord {
	if q.IsEmpty() {
		return types.NotFoundRecord(s.id)
	}
	ctx, cancel := s.deadline(ctx)
	defer cancel()

	params := url.Values{
		"query":  {q.Title},
		"limit":  {strconv.Itoa(s.src.MaxResults)},
		"fields": {semanticFields},
	}
	var header http.Header
	if s.src.APIKey != "" {
		header = http.Header{"x-api-key": {s.src.APIKey}}
	}
	resp, err := s.get(ctx, semanticAPIBase+"?"+params.Encode(), header)
	if err != nil {
		return s.fail(err)
	}
	defer resp.Body.Close()

	var sr semanticResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return s.fail(s.decodeErr(ctx, err))
	}

	var candidates []types.SourceRecord
	for _, paper := range sr.Data {
		r := types.SourceRecord{
			Title:    cleanText(paper.Title),
			Abstract: paper.Abstract,
			Year:     paper.Year,
			Venue:    paper.Venue,
			URL:      paper.URL,
		}
		for _, a := range paper.Authors {
			r.Authors = append(r.Authors, a.Name)
		}
		switch {
		case paper.ExternalIDs.DOI != "":
			r.Identifier = paper.ExternalIDs.DOI
		case paper.ExternalIDs.ArXiv != "":
			r.Identifier = paper.ExternalIDs.ArXiv
		default:
			r.Identifier = paper.PaperID
		}
		candidates = append(candidates, r)
	}
	return s.pick(q, candidates)
}

// Semantic Scholar API JSON structures.
type semanticResponse struct {
	Total int             `json:"total"`
	Data  []semanticPaper `json:"data"`
}

type semanticPaper struct {
	PaperID     string              `json:"paperId"`
	Title       string              `json:"title"`
	Abstract    string              `json:"abstract"`
	Year        int                 `json:"year"`
	Venue       string              `json:"venue"`
	URL         string              `json:"url"`
	Authors     []semanticAuthor    `json:"authors"`
	ExternalIDs semanticExternalIDs `json:"externalIds"`
}

type semanticAuthor struct {
	AuthorID string `json:"authorId"`
	Name     string `json:"name"`
}

type semanticExternalIDs struct {
	DOI   string `json:"DOI"`
	ArXiv string `json:"ArXiv"`
}
