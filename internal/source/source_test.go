// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/citecheck/pkg/types"
)

var attention = types.SourceQuery{
	Title:       "attention is all you need",
	FirstAuthor: "vaswani",
	Year:        2017,
	RawTitle:    "Attention Is All You Need",
}

func testConfig() types.Config {
	cfg := types.DefaultConfig()
	cfg.HTTP.Timeout = 2 * time.Second
	cfg.HTTP.UserAgent = "citecheck-test"
	return cfg
}

// serve starts an httptest server and points base at it for the test.
func serve(t *testing.T, base *string, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(h)
	old := *base
	*base = ts.URL
	t.Cleanup(func() {
		*base = old
		ts.Close()
	})
	return ts
}

func adapter(t *testing.T, id types.SourceID, cfg types.Config, ts *httptest.Server) Adapter {
	t.Helper()
	a, err := New(id, cfg, ts.Client())
	require.NoError(t, err)
	return a
}

func TestNew_UnknownSource(t *testing.T) {
	_, err := New("bogus", testConfig(), nil)
	assert.Error(t, err)
}

func TestBuild_CanonicalOrderAndEnabled(t *testing.T) {
	cfg := testConfig()
	adapters, err := Build(cfg, nil)
	require.NoError(t, err)

	var names []types.SourceID
	for _, a := range adapters {
		names = append(names, a.Name())
	}
	// Google Scholar is disabled by default.
	assert.Equal(t, []types.SourceID{
		types.SourceArxiv, types.SourceCrossRef, types.SourceDBLP,
		types.SourceSemanticScholar, types.SourceOpenAlex,
	}, names)

	for id, sc := range cfg.Sources {
		sc.Enabled = false
		cfg.Sources[id] = sc
	}
	_, err = Build(cfg, nil)
	assert.Error(t, err)
}

func TestPick_FloorAndTieBreak(t *testing.T) {
	b := &base{id: types.SourceDBLP, floor: 0.5}

	rec := b.pick(attention, []types.SourceRecord{
		{Title: "Quantum Chromodynamics on the Lattice"},
	})
	assert.Equal(t, types.StatusNotFound, rec.Status)

	rec = b.pick(attention, []types.SourceRecord{
		{Title: "Attention is all you need", Year: 2023, Identifier: "later"},
		{Title: "Attention Is All You Need.", Year: 2017, Identifier: "right-year"},
	})
	require.Equal(t, types.StatusFound, rec.Status)
	assert.Equal(t, "right-year", rec.Identifier)
	assert.Equal(t, types.SourceDBLP, rec.Source)
	assert.Equal(t, 1.0, rec.Confidence)

	assert.Equal(t, types.StatusNotFound, b.pick(attention, nil).Status)
}

func TestEmptyQueryIsNotFound(t *testing.T) {
	for _, id := range types.AllSources {
		a, err := New(id, testConfig(), nil)
		require.NoError(t, err)
		rec := a.Query(context.Background(), types.SourceQuery{})
		assert.Equal(t, types.StatusNotFound, rec.Status, "source %s", id)
	}
}

const arxivFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:arxiv="http://arxiv.org/schemas/atom">
  <entry>
    <id>http://arxiv.org/abs/1706.03762v7</id>
    <published>2017-06-12T17:57:34Z</published>
    <title>Attention Is All
      You Need</title>
    <summary>  The dominant sequence transduction models...  </summary>
    <author><name>Ashish Vaswani</name></author>
    <author><name>Noam Shazeer</name></author>
    <arxiv:journal_ref>Advances in Neural Information Processing Systems 30 (2017)</arxiv:journal_ref>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2101.00001v1</id>
    <published>2021-01-01T00:00:00Z</published>
    <title>Attention Is Not All You Need</title>
    <author><name>Someone Else</name></author>
  </entry>
</feed>`

func TestArxiv_Query(t *testing.T) {
	var got *http.Request
	ts := serve(t, &arxivAPIBase, func(w http.ResponseWriter, r *http.Request) {
		got = r
		fmt.Fprint(w, arxivFeedXML)
	})

	rec := adapter(t, types.SourceArxiv, testConfig(), ts).Query(context.Background(), attention)

	require.Equal(t, types.StatusFound, rec.Status)
	assert.Equal(t, "Attention Is All You Need", rec.Title)
	assert.Equal(t, []string{"Ashish Vaswani", "Noam Shazeer"}, rec.Authors)
	assert.Equal(t, 2017, rec.Year)
	assert.Equal(t, "1706.03762", rec.Identifier)
	assert.Equal(t, "Advances in Neural Information Processing Systems 30 (2017)", rec.Venue)
	assert.Equal(t, "The dominant sequence transduction models...", rec.Abstract)

	assert.Equal(t, "ti:attention AND ti:is AND ti:all AND ti:you AND ti:need", got.URL.Query().Get("search_query"))
	assert.Equal(t, "citecheck-test", got.Header.Get("User-Agent"))
}

func TestArxiv_MalformedFeed(t *testing.T) {
	ts := serve(t, &arxivAPIBase, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<feed><entry>")
	})
	rec := adapter(t, types.SourceArxiv, testConfig(), ts).Query(context.Background(), attention)
	assert.Equal(t, types.StatusError, rec.Status)
	assert.Equal(t, types.KindMalformed, rec.ErrorKind)
}

func TestExtractArxivID(t *testing.T) {
	assert.Equal(t, "2301.07041", extractArxivID("http://arxiv.org/abs/2301.07041v1"))
	assert.Equal(t, "hep-th/9901001", extractArxivID("http://arxiv.org/abs/hep-th/9901001v2"))
	assert.Equal(t, "", extractArxivID("http://example.com/paper"))
}

func TestCrossRef_YearOrderAndMailto(t *testing.T) {
	var got *http.Request
	ts := serve(t, &crossRefAPIBase, func(w http.ResponseWriter, r *http.Request) {
		got = r
		fmt.Fprint(w, `{"status":"ok","message":{"items":[{
			"title":["Attention Is All You Need"],
			"author":[{"given":"Ashish","family":"Vaswani"},{"name":"Google Brain"}],
			"DOI":"10.5555/3295222.3295349",
			"container-title":["Advances in Neural Information Processing Systems"],
			"abstract":"<jats:p>The dominant <jats:italic>sequence</jats:italic> models.</jats:p>",
			"published-online":{"date-parts":[[2018,1]]},
			"created":{"date-parts":[[2019,3,4]]},
			"published-print":{"date-parts":[[2017,12]]}
		}]}}`)
	})
	cfg := testConfig()
	sc := cfg.Sources[types.SourceCrossRef]
	sc.Mailto = "ops@example.org"
	cfg.Sources[types.SourceCrossRef] = sc

	rec := adapter(t, types.SourceCrossRef, cfg, ts).Query(context.Background(), attention)

	require.Equal(t, types.StatusFound, rec.Status)
	assert.Equal(t, 2017, rec.Year, "published-print wins")
	assert.Equal(t, []string{"Ashish Vaswani", "Google Brain"}, rec.Authors)
	assert.Equal(t, "10.5555/3295222.3295349", rec.Identifier)
	assert.Equal(t, "https://doi.org/10.5555/3295222.3295349", rec.URL)
	assert.Equal(t, "The dominant sequence models.", rec.Abstract)

	q := got.URL.Query()
	assert.Equal(t, "ops@example.org", q.Get("mailto"))
	assert.Equal(t, "Attention Is All You Need", q.Get("query.title"))
	assert.Equal(t, "vaswani", q.Get("query.author"))
}

func TestCrossRefItemYearFallback(t *testing.T) {
	it := crossRefItem{
		PublishedOnline: crossRefDate{DateParts: [][]int{{2020}}},
		Created:         crossRefDate{DateParts: [][]int{{2019}}},
	}
	assert.Equal(t, 2020, it.year())
	it.PublishedOnline = crossRefDate{}
	assert.Equal(t, 2019, it.year())
	assert.Equal(t, 0, crossRefItem{}.year())
}

func TestCrossRef_BadStatusIsMalformed(t *testing.T) {
	ts := serve(t, &crossRefAPIBase, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"failed","message":{}}`)
	})
	rec := adapter(t, types.SourceCrossRef, testConfig(), ts).Query(context.Background(), attention)
	assert.Equal(t, types.KindMalformed, rec.ErrorKind)
}

func TestDBLP_SingleAuthorAndVenueType(t *testing.T) {
	ts := serve(t, &dblpAPIBase, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		fmt.Fprint(w, `{"result":{"hits":{"@total":"2","hit":[
			{"info":{"key":"conf/nips/VaswaniSPUJGKP17","title":"Attention is All you Need.",
			  "venue":"NIPS","year":"2017","ee":"https://proceedings.neurips.cc/x",
			  "authors":{"author":[{"text":"Ashish Vaswani"},{"text":"Wei Wang 0001"}]}}},
			{"info":{"key":"journals/corr/abs-1706-03762","title":"Attention Is All You Need",
			  "venue":["CoRR","arXiv"],"year":"2017",
			  "authors":{"author":{"text":"Ashish Vaswani"}}}}
		]}}}`)
	})

	rec := adapter(t, types.SourceDBLP, testConfig(), ts).Query(context.Background(), attention)

	require.Equal(t, types.StatusFound, rec.Status)
	assert.Equal(t, "conference", rec.VenueType)
	assert.Equal(t, "NIPS", rec.Venue)
	assert.Equal(t, []string{"Ashish Vaswani", "Wei Wang"}, rec.Authors)
	assert.Equal(t, "conf/nips/VaswaniSPUJGKP17", rec.Identifier)
	assert.Equal(t, 2017, rec.Year)
}

func TestDBLPVenueType(t *testing.T) {
	assert.Equal(t, "arxiv", dblpVenueType("journals/corr/abs-1706-03762"))
	assert.Equal(t, "journal", dblpVenueType("journals/jmlr/Foo20"))
	assert.Equal(t, "conference", dblpVenueType("conf/icml/Bar19"))
	assert.Equal(t, "book", dblpVenueType("books/sp/Baz"))
	assert.Equal(t, "", dblpVenueType("phd/Qux"))
}

func TestDBLP_NoHitsIsNotFound(t *testing.T) {
	ts := serve(t, &dblpAPIBase, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":{"hits":{"@total":"0"}}}`)
	})
	rec := adapter(t, types.SourceDBLP, testConfig(), ts).Query(context.Background(), attention)
	assert.Equal(t, types.StatusNotFound, rec.Status)
}

func TestSemanticScholar_APIKeyAndIdentifiers(t *testing.T) {
	var key string
	ts := serve(t, &semanticAPIBase, func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get("x-api-key")
		fmt.Fprint(w, `{"total":1,"data":[{"paperId":"204e3073","title":"Attention is All you Need",
			"year":2017,"venue":"Neural Information Processing Systems","abstract":"Transformers.",
			"authors":[{"name":"Ashish Vaswani"}],"externalIds":{"ArXiv":"1706.03762"}}]}`)
	})
	cfg := testConfig()
	sc := cfg.Sources[types.SourceSemanticScholar]
	sc.APIKey = "secret"
	cfg.Sources[types.SourceSemanticScholar] = sc

	rec := adapter(t, types.SourceSemanticScholar, cfg, ts).Query(context.Background(), attention)

	assert.Equal(t, "secret", key)
	require.Equal(t, types.StatusFound, rec.Status)
	assert.Equal(t, "1706.03762", rec.Identifier)
	assert.Equal(t, "Transformers.", rec.Abstract)
}

func TestSemanticScholar_RateLimited(t *testing.T) {
	ts := serve(t, &semanticAPIBase, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	rec := adapter(t, types.SourceSemanticScholar, testConfig(), ts).Query(context.Background(), attention)
	assert.Equal(t, types.StatusError, rec.Status)
	assert.Equal(t, types.KindRateLimited, rec.ErrorKind)
	assert.Equal(t, types.SourceSemanticScholar, rec.Source)
}

func TestOpenAlex_AbstractAndTruncation(t *testing.T) {
	var got *http.Request
	ts := serve(t, &openAlexAPIBase, func(w http.ResponseWriter, r *http.Request) {
		got = r
		fmt.Fprint(w, `{"results":[{"id":"https://openalex.org/W2963403868",
			"doi":"https://doi.org/10.48550/arxiv.1706.03762",
			"title":"Attention Is All You Need","publication_year":2017,
			"is_authors_truncated":true,
			"authorships":[{"author":{"display_name":"Ashish Vaswani"}}],
			"primary_location":{"source":{"display_name":"arXiv (Cornell University)"}},
			"abstract_inverted_index":{"models":[2],"The":[0],"dominant":[1]}}]}`)
	})
	cfg := testConfig()
	sc := cfg.Sources[types.SourceOpenAlex]
	sc.Mailto = "ops@example.org"
	cfg.Sources[types.SourceOpenAlex] = sc

	rec := adapter(t, types.SourceOpenAlex, cfg, ts).Query(context.Background(), attention)

	require.Equal(t, types.StatusFound, rec.Status)
	assert.Equal(t, "The dominant models", rec.Abstract)
	assert.True(t, rec.AuthorsTruncated)
	assert.Equal(t, "10.48550/arxiv.1706.03762", rec.Identifier)
	assert.Equal(t, "arXiv (Cornell University)", rec.Venue)
	assert.Equal(t, "ops@example.org", got.URL.Query().Get("mailto"))
	assert.Equal(t, "title.search:attention is all you need", got.URL.Query().Get("filter"))
}

func TestReconstructAbstract_Empty(t *testing.T) {
	assert.Equal(t, "", reconstructAbstract(nil))
}

const scholarPage = `<html><body><div id="gs_res_ccl">
<div class="gs_r gs_or gs_scl"><div class="gs_ri">
  <h3 class="gs_rt"><a href="https://proceedings.neurips.cc/paper/7181">Attention is <b>all</b> you need</a></h3>
  <div class="gs_a">A Vaswani, N Shazeer, N Parmar… - Advances in neural …, 2017 - proceedings.neurips.cc</div>
  <div class="gs_rs">The dominant sequence transduction models are based on complex recurrent…</div>
</div></div>
<div class="gs_r gs_or gs_scl"><div class="gs_ri">
  <h3 class="gs_rt"><span class="gs_ctc">[CITATION]</span> Something unrelated entirely</h3>
  <div class="gs_a">J Doe - 2019</div>
</div></div>
</div></body></html>`

func TestGoogleScholar_ParsesResults(t *testing.T) {
	var got *http.Request
	ts := serve(t, &scholarBase, func(w http.ResponseWriter, r *http.Request) {
		got = r
		fmt.Fprint(w, scholarPage)
	})
	cfg := testConfig()
	sc := cfg.Sources[types.SourceGoogleScholar]
	sc.MaxResults = 50
	cfg.Sources[types.SourceGoogleScholar] = sc

	rec := adapter(t, types.SourceGoogleScholar, cfg, ts).Query(context.Background(), attention)

	require.Equal(t, types.StatusFound, rec.Status)
	assert.Equal(t, "Attention is all you need", rec.Title)
	assert.Equal(t, []string{"A Vaswani", "N Shazeer", "N Parmar"}, rec.Authors)
	assert.True(t, rec.AuthorsTruncated)
	assert.Equal(t, 2017, rec.Year)
	assert.Equal(t, "Advances in neural", rec.Venue)
	assert.Equal(t, "https://proceedings.neurips.cc/paper/7181", rec.URL)
	assert.Equal(t, "10", got.URL.Query().Get("num"))
	assert.Equal(t, `"Attention Is All You Need"`, got.URL.Query().Get("q"))
}

func TestGoogleScholar_UnusualTrafficIsRateLimited(t *testing.T) {
	ts := serve(t, &scholarBase, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>Our systems have detected Unusual Traffic from your computer network.</body></html>`)
	})
	rec := adapter(t, types.SourceGoogleScholar, testConfig(), ts).Query(context.Background(), attention)
	assert.Equal(t, types.StatusError, rec.Status)
	assert.Equal(t, types.KindRateLimited, rec.ErrorKind)
}

func TestParseScholarByline(t *testing.T) {
	authors, truncated, venue, year := parseScholarByline("K He, X Zhang, S Ren, J Sun - Proceedings of the IEEE conference on …, 2016 - openaccess.thecvf.com")
	assert.Equal(t, []string{"K He", "X Zhang", "S Ren", "J Sun"}, authors)
	assert.False(t, truncated)
	assert.Equal(t, "Proceedings of the IEEE conference on", venue)
	assert.Equal(t, 2016, year)

	authors, _, venue, year = parseScholarByline("J Doe - example.com")
	assert.Equal(t, []string{"J Doe"}, authors)
	assert.Equal(t, "", venue)
	assert.Equal(t, 0, year)
}

func TestStripMarkup(t *testing.T) {
	assert.Equal(t, "plain text", stripMarkup("  plain   text "))
	assert.Equal(t, "Deep nets work.", stripMarkup("<jats:p>Deep <jats:bold>nets</jats:bold> work.</jats:p>"))
}

func TestFailureClassification(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		status  types.RecordStatus
		kind    types.ErrorKind
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}, types.StatusError, types.KindUnreachable},
		{"not found", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}, types.StatusNotFound, ""},
		{"bad json", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"data": [`)
		}, types.StatusError, types.KindMalformed},
		{"slow", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}, types.StatusError, types.KindTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := serve(t, &semanticAPIBase, tt.handler)
			cfg := testConfig()
			cfg.HTTP.Timeout = 100 * time.Millisecond
			rec := adapter(t, types.SourceSemanticScholar, cfg, ts).Query(context.Background(), attention)
			assert.Equal(t, tt.status, rec.Status)
			assert.Equal(t, tt.kind, rec.ErrorKind)
		})
	}
}

func TestUnreachableHost(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	old := dblpAPIBase
	dblpAPIBase = url
	defer func() { dblpAPIBase = old }()

	a, err := New(types.SourceDBLP, testConfig(), nil)
	require.NoError(t, err)
	rec := a.Query(context.Background(), attention)
	assert.Equal(t, types.KindUnreachable, rec.ErrorKind)
}
