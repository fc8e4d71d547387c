// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/pdiddy/citecheck/pkg/types"
)

// dblpAPIBase is the DBLP publication search endpoint. Declared as a var
// so tests can substitute an httptest server.
var dblpAPIBase = "https://dblp.org/search/publ/api"

// DBLP queries the DBLP publication search API.
type DBLP struct {
	base
}

// Query searches DBLP for the query title and returns the best match.
func (d *DBLP) Query(ctx context.Context, q types.SourceQuery) types.SourceRecord {
	if q.IsEmpty() {
		return types.NotFoundRecord(d.id)
	}
	ctx, cancel := d.deadline(ctx)
	defer cancel()

	params := url.Values{
		"q":      {queryText(q)},
		"h":      {strconv.Itoa(d.src.MaxResults)},
		"format": {"json"},
	}
	resp, err := d.get(ctx, dblpAPIBase+"?"+params.Encode(), nil)
	if err != nil {
		return d.fail(err)
	}
	defer resp.Body.Close()

	var dr dblpResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return d.fail(d.decodeErr(ctx, err))
	}

	var candidates []types.SourceRecord
	for _, hit := range dr.Result.Hits.Hit {
		info := hit.Info
		if info.Key == "" || info.Title == "" {
			continue
		}
		r := types.SourceRecord{
			Title:      cleanText(info.Title),
			Identifier: info.DOI,
			URL:        info.URL,
			Venue:      firstString(info.Venue),
			VenueType:  dblpVenueType(info.Key),
		}
		if r.Identifier == "" {
			r.Identifier = info.Key
		}
		r.Year, _ = strconv.Atoi(strings.TrimSpace(info.Year))
		for _, au := range info.Authors.Author {
			if n := stripDBLPHomonym(au.Text); n != "" {
				r.Authors = append(r.Authors, n)
			}
		}
		candidates = append(candidates, r)
	}
	return d.pick(q, candidates)
}

// dblpVenueType classifies a publication from its DBLP key prefix.
func dblpVenueType(key string) string {
	switch {
	case strings.HasPrefix(key, "journals/corr/"):
		return "arxiv"
	case strings.HasPrefix(key, "journals/"):
		return "journal"
	case strings.HasPrefix(key, "conf/"):
		return "conference"
	case strings.HasPrefix(key, "books/"):
		return "book"
	}
	return ""
}

// stripDBLPHomonym drops the numeric suffix DBLP appends to disambiguate
// authors with the same name ("Wei Wang 0001").
func stripDBLPHomonym(name string) string {
	fields := strings.Fields(name)
	if n := len(fields); n > 1 && isDigits(fields[n-1]) {
		fields = fields[:n-1]
	}
	return strings.Join(fields, " ")
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func firstString(v stringOrList) string {
	if len(v) == 0 {
		return ""
	}
	return cleanText(v[0])
}

// DBLP API JSON structures. DBLP collapses single-element lists into a
// bare value, so authors and venues decode through flexible types.
type dblpResponse struct {
	Result struct {
		Hits struct {
			Hit []dblpHit `json:"hit"`
		} `json:"hits"`
	} `json:"result"`
}

type dblpHit struct {
	Info dblpInfo `json:"info"`
}

type dblpInfo struct {
	Key     string       `json:"key"`
	Title   string       `json:"title"`
	Venue   stringOrList `json:"venue"`
	Year    string       `json:"year"`
	DOI     string       `json:"doi"`
	URL     string       `json:"ee"`
	Authors struct {
		Author dblpAuthors `json:"author"`
	} `json:"authors"`
}

type dblpAuthor struct {
	Text string `json:"text"`
}

// dblpAuthors decodes either one author object or a list of them.
type dblpAuthors []dblpAuthor

func (a *dblpAuthors) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '{' {
		var one dblpAuthor
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		*a = dblpAuthors{one}
		return nil
	}
	var many []dblpAuthor
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*a = many
	return nil
}

// stringOrList decodes either a string or a list of strings.
type stringOrList []string

func (s *stringOrList) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var one string
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		*s = stringOrList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*s = many
	return nil
}
