// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/pdiddy/citecheck/internal/httputil"
	"github.com/pdiddy/citecheck/pkg/types"
)

// crossRefAPIBase is the CrossRef works endpoint. Declared as a var so
// tests can substitute an httptest server.
var crossRefAPIBase = "https://api.crossref.org/works"

const crossRefSelect = "title,author,published-print,published-online,created,DOI,container-title,abstract,URL"

// CrossRef queries the CrossRef works API by title. A mailto parameter
// routes requests to the polite pool.
type CrossRef struct {
	base
}

// Query searches CrossRef for the query title and returns the best match.
func (c *CrossRef) Query(ctx context.Context, q types.SourceQuery) types.SourceRecord {
	if q.IsEmpty() {
		return types.NotFoundRecord(c.id)
	}
	ctx, cancel := c.deadline(ctx)
	defer cancel()

	params := url.Values{
		"query.title": {queryText(q)},
		"rows":        {strconv.Itoa(c.src.MaxResults)},
		"select":      {crossRefSelect},
	}
	if q.FirstAuthor != "" {
		params.Set("query.author", q.FirstAuthor)
	}
	if c.src.Mailto != "" {
		params.Set("mailto", c.src.Mailto)
	}
	resp, err := c.get(ctx, crossRefAPIBase+"?"+params.Encode(), nil)
	if err != nil {
		return c.fail(err)
	}
	defer resp.Body.Close()

	var cr crossRefResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return c.fail(c.decodeErr(ctx, err))
	}
	if cr.Status != "ok" {
		return c.fail(httputil.Malformed(fmt.Errorf("CrossRef status %q", cr.Status)))
	}

	var candidates []types.SourceRecord
	for _, item := range cr.Message.Items {
		if len(item.Title) == 0 || strings.TrimSpace(item.Title[0]) == "" {
			continue
		}
		r := types.SourceRecord{
			Title:      cleanText(item.Title[0]),
			Identifier: item.DOI,
			Year:       item.year(),
			Abstract:   stripMarkup(item.Abstract),
		}
		if item.DOI != "" {
			r.URL = "https://doi.org/" + item.DOI
		} else {
			r.URL = item.URL
		}
		if len(item.ContainerTitle) > 0 {
			r.Venue = cleanText(item.ContainerTitle[0])
		}
		for _, au := range item.Author {
			switch {
			case au.Family != "" && au.Given != "":
				r.Authors = append(r.Authors, au.Given+" "+au.Family)
			case au.Family != "":
				r.Authors = append(r.Authors, au.Family)
			case au.Name != "":
				r.Authors = append(r.Authors, au.Name)
			}
		}
		candidates = append(candidates, r)
	}
	return c.pick(q, candidates)
}

// queryText is the title to send to search APIs: as written when known,
// normalized otherwise.
func queryText(q types.SourceQuery) string {
	if q.RawTitle != "" {
		return q.RawTitle
	}
	return q.Title
}

// CrossRef API JSON structures.
type crossRefResponse struct {
	Status  string `json:"status"`
	Message struct {
		Items []crossRefItem `json:"items"`
	} `json:"message"`
}

type crossRefItem struct {
	Title           []string         `json:"title"`
	Author          []crossRefAuthor `json:"author"`
	DOI             string           `json:"DOI"`
	URL             string           `json:"URL"`
	ContainerTitle  []string         `json:"container-title"`
	Abstract        string           `json:"abstract"`
	PublishedPrint  crossRefDate     `json:"published-print"`
	PublishedOnline crossRefDate     `json:"published-online"`
	Created         crossRefDate     `json:"created"`
}

type crossRefAuthor struct {
	Given  string `json:"given"`
	Family string `json:"family"`
	Name   string `json:"name"`
}

type crossRefDate struct {
	DateParts [][]int `json:"date-parts"`
}

func (d crossRefDate) year() int {
	if len(d.DateParts) == 0 || len(d.DateParts[0]) == 0 {
		return 0
	}
	return d.DateParts[0][0]
}

// year prefers the print date, then the online date, then the record
// creation date.
func (it crossRefItem) year() int {
	for _, d := range []crossRefDate{it.PublishedPrint, it.PublishedOnline, it.Created} {
		if y := d.year(); y > 0 {
			return y
		}
	}
	return 0
}
