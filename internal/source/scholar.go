// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/pdiddy/citecheck/pkg/types"
)

// scholarBase is the Google Scholar search page. Declared as a var so
// tests can substitute an httptest server.
var scholarBase = "https://scholar.google.com/scholar"

// scholarMaxBody bounds how much of a result page is read.
const scholarMaxBody = 4 << 20

// scholarMaxResults is the most results Scholar returns on one page.
const scholarMaxResults = 10

var (
	scholarYear   = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	scholarMarker = regexp.MustCompile(`^\[(PDF|HTML|BOOK|B|CITATION|C)\]\s*`)
)

// GoogleScholar scrapes the Google Scholar result page. Scholar has no API
// and blocks automated traffic quickly; a block page is reported as
// rate limiting so the limiter backs off.
type GoogleScholar struct {
	base
}

// Query searches Scholar for the quoted query title and returns the best
// match.
func (g *GoogleScholar) Query(ctx context.Context, q types.SourceQuery) types.SourceRecord {
	if q.IsEmpty() {
		return types.NotFoundRecord(g.id)
	}
	ctx, cancel := g.deadline(ctx)
	defer cancel()

	n := g.src.MaxResults
	if n > scholarMaxResults {
		n = scholarMaxResults
	}
	params := url.Values{
		"q":   {`"` + queryText(q) + `"`},
		"hl":  {"en"},
		"num": {strconv.Itoa(n)},
	}
	header := http.Header{
		"Accept":          {"text/html,application/xhtml+xml"},
		"Accept-Language": {"en-US,en;q=0.5"},
	}
	resp, err := g.get(ctx, scholarBase+"?"+params.Encode(), header)
	if err != nil {
		return g.fail(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, scholarMaxBody))
	if err != nil {
		return g.fail(g.decodeErr(ctx, err))
	}
	if isScholarBlock(body) {
		return g.fail(types.NewSourceError(g.id, types.KindRateLimited, errors.New("unusual traffic page")))
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return g.fail(g.decodeErr(ctx, err))
	}
	candidates := parseScholarResults(doc, n)
	return g.pick(q, candidates)
}

// isScholarBlock reports whether the page is Scholar's CAPTCHA interstitial.
func isScholarBlock(body []byte) bool {
	lower := bytes.ToLower(body)
	return bytes.Contains(lower, []byte("unusual traffic")) ||
		bytes.Contains(lower, []byte("id=\"gs_captcha"))
}

// parseScholarResults extracts up to limit records from div.gs_ri blocks.
func parseScholarResults(doc *html.Node, limit int) []types.SourceRecord {
	var out []types.SourceRecord
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if len(out) >= limit {
			return
		}
		if n.Type == html.ElementNode && n.Data == "div" && hasClass(n, "gs_ri") {
			if r, ok := parseScholarEntry(n); ok {
				out = append(out, r)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

// parseScholarEntry reads one result: the h3.gs_rt title link, the
// div.gs_a byline ("A Vaswani, N Shazeer… - Advances in neural…, 2017 -
// proceedings.neurips.cc"), and the div.gs_rs snippet.
func parseScholarEntry(entry *html.Node) (types.SourceRecord, bool) {
	var r types.SourceRecord

	titleNode := findElement(entry, "h3", "gs_rt")
	if titleNode == nil {
		return r, false
	}
	if a := findElement(titleNode, "a", ""); a != nil {
		r.Title = textContent(a)
		r.URL = attr(a, "href")
	} else {
		r.Title = textContent(titleNode)
	}
	r.Title = scholarMarker.ReplaceAllString(r.Title, "")
	if r.Title == "" {
		return r, false
	}

	if meta := findElement(entry, "div", "gs_a"); meta != nil {
		r.Authors, r.AuthorsTruncated, r.Venue, r.Year = parseScholarByline(textContent(meta))
	}
	if snip := findElement(entry, "div", "gs_rs"); snip != nil {
		r.Abstract = textContent(snip)
	}
	return r, true
}

// parseScholarByline splits the green byline into authors, venue, and year.
// Scholar elides long author lists and venues with an ellipsis.
func parseScholarByline(s string) (authors []string, truncated bool, venue string, year int) {
	if m := scholarYear.FindString(s); m != "" {
		year, _ = strconv.Atoi(m)
	}
	parts := strings.Split(s, " - ")

	authorPart := strings.TrimSpace(parts[0])
	if strings.HasSuffix(authorPart, "…") || strings.HasSuffix(authorPart, "...") {
		truncated = true
		authorPart = strings.TrimRight(authorPart, "….")
	}
	for _, a := range strings.Split(authorPart, ",") {
		if a = strings.TrimSpace(a); a != "" {
			authors = append(authors, a)
		}
	}

	if len(parts) < 2 {
		return authors, truncated, "", year
	}
	v := strings.TrimSpace(parts[1])
	hadYear := false
	if i := strings.LastIndex(v, ","); i >= 0 && scholarYear.MatchString(v[i+1:]) {
		v, hadYear = strings.TrimSpace(v[:i]), true
	}
	// With two parts the second is usually the host name, not a venue.
	if (len(parts) > 2 || hadYear) && !isDigits(v) {
		venue = strings.TrimSpace(strings.TrimRight(v, "…."))
	}
	return authors, truncated, venue, year
}

func hasClass(n *html.Node, class string) bool {
	for _, f := range strings.Fields(attr(n, "class")) {
		if f == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// findElement returns the first descendant with the tag and, when class is
// non-empty, the class.
func findElement(n *html.Node, tag, class string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == tag && (class == "" || hasClass(c, class)) {
			return c
		}
		if found := findElement(c, tag, class); found != nil {
			return found
		}
	}
	return nil
}

// textContent concatenates the text below n with whitespace collapsed.
func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return cleanText(b.String())
}

// stripMarkup drops tags from an HTML or JATS fragment (CrossRef
// abstracts) and returns its text.
func stripMarkup(s string) string {
	if !strings.Contains(s, "<") {
		return cleanText(s)
	}
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return cleanText(b.String())
		case html.TextToken:
			b.Write(z.Text())
			b.WriteByte(' ')
		}
	}
}
