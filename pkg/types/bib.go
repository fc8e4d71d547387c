// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the citecheck engine:
// bibliography entries, source queries and records, cache entries,
// verification verdicts, and duplicate clusters.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// BibEntry is one parsed bibliography citation. Entries are immutable once
// parsed; the engine only reads them.
type BibEntry struct {
	// Key is the citation key, unique within a bibliography.
	Key string `json:"key" yaml:"key"`

	// Type is the entry type (e.g. "article", "inproceedings").
	Type string `json:"type" yaml:"type"`

	// Title is the entry title with BibTeX braces removed.
	Title string `json:"title" yaml:"title"`

	// Authors lists author names in bibliography order. A trailing "others"
	// or "et al." marks a truncated list.
	Authors []string `json:"authors" yaml:"authors"`

	// Year is the publication year, 0 when absent.
	Year int `json:"year" yaml:"year"`

	// Venue is the journal, booktitle, or publisher string.
	Venue string `json:"venue,omitempty" yaml:"venue,omitempty"`

	// DOI and ArxivID are carried through when the entry lists them.
	DOI     string `json:"doi,omitempty" yaml:"doi,omitempty"`
	ArxivID string `json:"arxiv_id,omitempty" yaml:"arxiv_id,omitempty"`

	// Fields holds every raw field from the source file.
	Fields map[string]string `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// SourceQuery is the lookup key derived from a BibEntry. It is a
// deterministic function of the entry content so identical entries always
// produce identical queries.
type SourceQuery struct {
	// Title is the normalized title.
	Title string `json:"title" yaml:"title"`

	// FirstAuthor is the first author's lowercased surname.
	FirstAuthor string `json:"first_author" yaml:"first_author"`

	// Year is the entry year, 0 when absent.
	Year int `json:"year" yaml:"year"`

	// RawTitle is the title as written, used to build search requests.
	// It does not participate in the hash.
	RawTitle string `json:"-" yaml:"-"`
}

// NewSourceQuery derives the query for an entry.
func NewSourceQuery(e *BibEntry) SourceQuery {
	q := SourceQuery{
		Title:    normalizeQueryText(e.Title),
		Year:     e.Year,
		RawTitle: strings.TrimSpace(e.Title),
	}
	for _, a := range e.Authors {
		if s := querySurname(a); s != "" {
			q.FirstAuthor = s
			break
		}
	}
	return q
}

// Hash returns a stable hex digest of the query fields.
func (q SourceQuery) Hash() string {
	h := sha256.New()
	h.Write([]byte(q.Title))
	h.Write([]byte{0})
	h.Write([]byte(q.FirstAuthor))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(q.Year)))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// IsEmpty reports whether the query has nothing to search for.
func (q SourceQuery) IsEmpty() bool {
	return q.Title == ""
}

// normalizeQueryText lowercases and strips punctuation, collapsing spaces.
func normalizeQueryText(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r), r == '-', r == '/':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// querySurname extracts a lowercased surname from "Last, First" or
// "First Last". Truncation markers yield "".
func querySurname(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	switch strings.ToLower(strings.Trim(name, ". ")) {
	case "others", "et al", "et. al":
		return ""
	}
	if i := strings.Index(name, ","); i >= 0 {
		name = name[:i]
	} else if parts := strings.Fields(name); len(parts) > 0 {
		name = parts[len(parts)-1]
	}
	return normalizeQueryText(name)
}

// SourceID names a bibliographic data source.
type SourceID string

const (
	SourceArxiv           SourceID = "arxiv"
	SourceCrossRef        SourceID = "crossref"
	SourceDBLP            SourceID = "dblp"
	SourceSemanticScholar SourceID = "semantic_scholar"
	SourceOpenAlex        SourceID = "openalex"
	SourceGoogleScholar   SourceID = "google_scholar"
)

// AllSources lists every known source in canonical order. Verdicts and
// reports list sources in this order.
var AllSources = []SourceID{
	SourceArxiv,
	SourceCrossRef,
	SourceDBLP,
	SourceSemanticScholar,
	SourceOpenAlex,
	SourceGoogleScholar,
}

// RecordStatus is the outcome of one source lookup.
type RecordStatus string

const (
	StatusFound    RecordStatus = "found"
	StatusNotFound RecordStatus = "not_found"
	StatusError    RecordStatus = "error"
)

// SourceRecord is a source's answer to a SourceQuery: a found record, an
// explicit not-found marker, or a classified error marker.
type SourceRecord struct {
	Source SourceID     `json:"source" yaml:"source"`
	Status RecordStatus `json:"status" yaml:"status"`

	Title   string   `json:"title,omitempty" yaml:"title,omitempty"`
	Authors []string `json:"authors,omitempty" yaml:"authors,omitempty"`
	Year    int      `json:"year,omitempty" yaml:"year,omitempty"`
	Venue   string   `json:"venue,omitempty" yaml:"venue,omitempty"`

	// VenueType is "journal", "conference", "arxiv", or "book" when the
	// source classifies its venues (DBLP).
	VenueType string `json:"venue_type,omitempty" yaml:"venue_type,omitempty"`

	// Identifier is the DOI, arXiv ID, or source-native key.
	Identifier string `json:"identifier,omitempty" yaml:"identifier,omitempty"`
	URL        string `json:"url,omitempty" yaml:"url,omitempty"`
	Abstract   string `json:"abstract,omitempty" yaml:"abstract,omitempty"`

	// AuthorsTruncated is set when the source itself abbreviates the list.
	AuthorsTruncated bool `json:"authors_truncated,omitempty" yaml:"authors_truncated,omitempty"`

	// Confidence is the source-specific match marker in [0,1]: the title
	// similarity of the chosen candidate against the query.
	Confidence float64 `json:"confidence,omitempty" yaml:"confidence,omitempty"`

	// ErrorKind and Message are set when Status is StatusError.
	ErrorKind ErrorKind `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Message   string    `json:"message,omitempty" yaml:"message,omitempty"`
}

// Found reports whether the record carries metadata.
func (r SourceRecord) Found() bool { return r.Status == StatusFound }

// NotFoundRecord returns a definitive not-found marker for source.
func NotFoundRecord(source SourceID) SourceRecord {
	return SourceRecord{Source: source, Status: StatusNotFound}
}

// ErrorRecord returns an error marker for source.
func ErrorRecord(source SourceID, kind ErrorKind, msg string) SourceRecord {
	return SourceRecord{Source: source, Status: StatusError, ErrorKind: kind, Message: msg}
}

// CacheEntry maps (source, query hash) to a SourceRecord with the time it
// was fetched.
type CacheEntry struct {
	// Version is the on-disk format version.
	Version   int          `json:"version" yaml:"version"`
	Source    SourceID     `json:"source" yaml:"source"`
	QueryHash string       `json:"query_hash" yaml:"query_hash"`
	Query     SourceQuery  `json:"query" yaml:"query"`
	Record    SourceRecord `json:"record" yaml:"record"`
	FetchedAt time.Time    `json:"fetched_at" yaml:"fetched_at"`
}
