// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/pdiddy/citecheck/pkg/types"
)

// openAlexAPIBase is the OpenAlex works endpoint. Declared as a var so
// tests can substitute an httptest server.
var openAlexAPIBase = "https://api.openalex.org/works"

// OpenAlex queries the OpenAlex works API. A mailto parameter routes
// requests to the polite pool.
type OpenAlex struct {
	base
}

// Query searches OpenAlex for the query title and returns the best match.
func (o *OpenAlex) Query(ctx context.Context, q types.SourceQuery) types.SourceRecord {
	if q.IsEmpty() {
		return types.NotFoundRecord(o.id)
	}
	ctx, cancel := o.deadline(ctx)
	defer cancel()

	params := url.Values{
		"filter":   {"title.search:" + q.Title},
		"per_page": {strconv.Itoa(o.src.MaxResults)},
	}
	if o.src.Mailto != "" {
		params.Set("mailto", o.src.Mailto)
	}
	resp, err := o.get(ctx, openAlexAPIBase+"?"+params.Encode(), nil)
	if err != nil {
		return o.fail(err)
	}
	defer resp.Body.Close()

	var oar openAlexResponse
	if err := json.NewDecoder(resp.Body).Decode(&oar); err != nil {
		return o.fail(o.decodeErr(ctx, err))
	}

	var candidates []types.SourceRecord
	for _, work := range oar.Results {
		title := work.Title
		if title == "" {
			title = work.DisplayName
		}
		r := types.SourceRecord{
			Title:            cleanText(title),
			Year:             work.PublicationYear,
			Abstract:         reconstructAbstract(work.AbstractInvertedIndex),
			AuthorsTruncated: work.IsAuthorsTruncated,
			URL:              work.ID,
		}
		if work.PrimaryLocation != nil && work.PrimaryLocation.Source != nil {
			r.Venue = work.PrimaryLocation.Source.DisplayName
		}
		for _, as := range work.Authorships {
			if as.Author.DisplayName != "" {
				r.Authors = append(r.Authors, as.Author.DisplayName)
			}
		}
		if work.DOI != "" {
			r.Identifier = strings.TrimPrefix(work.DOI, "https://doi.org/")
			r.URL = work.DOI
		} else {
			r.Identifier = work.ID
		}
		candidates = append(candidates, r)
	}
	return o.pick(q, candidates)
}

// reconstructAbstract converts OpenAlex's abstract_inverted_index back to
// plain text. The inverted index maps each word to the positions where it
// appears.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	var pairs []posWord
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].pos < pairs[j].pos
	})

	words := make([]string, len(pairs))
	for i, p := range pairs {
		words[i] = p.word
	}
	return strings.Join(words, " ")
}

// OpenAlex API JSON structures.
type openAlexResponse struct {
	Results []openAlexWork `json:"results"`
}

type openAlexWork struct {
	ID                    string               `json:"id"`
	DOI                   string               `json:"doi"`
	Title                 string               `json:"title"`
	DisplayName           string               `json:"display_name"`
	PublicationYear       int                  `json:"publication_year"`
	Authorships           []openAlexAuthorship `json:"authorships"`
	IsAuthorsTruncated    bool                 `json:"is_authors_truncated"`
	AbstractInvertedIndex map[string][]int     `json:"abstract_inverted_index"`
	PrimaryLocation       *openAlexLocation    `json:"primary_location"`
}

type openAlexAuthorship struct {
	Author struct {
		DisplayName string `json:"display_name"`
	} `json:"author"`
}

type openAlexLocation struct {
	Source *struct {
		DisplayName string `json:"display_name"`
	} `json:"source"`
}
