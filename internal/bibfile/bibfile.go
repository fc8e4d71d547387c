// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package bibfile loads bibliography entries from BibTeX (.bib) files and
// from YAML entry lists (.yaml, .yml).
package bibfile

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/nickng/bibtex"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/citecheck/pkg/types"
)

var (
	authorSep = regexp.MustCompile(`(?i)\s+and\s+`)
	yearRe    = regexp.MustCompile(`\b(1[5-9]\d\d|20\d\d)\b`)
	arxivRe   = regexp.MustCompile(`(?i)arxiv(?:\.org/(?:abs|pdf)/|[:\s]+)(\d{4}\.\d{4,5}(?:v\d+)?)`)
)

// venueFields are tried in order to fill BibEntry.Venue.
var venueFields = []string{"journal", "booktitle", "publisher", "howpublished", "school", "institution"}

// Load reads a bibliography file, choosing the parser by extension.
func Load(path string) ([]types.BibEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening bibliography: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".bib", ".bibtex":
		return ParseBibTeX(f)
	case ".yaml", ".yml":
		return ParseYAML(f)
	default:
		return nil, fmt.Errorf("unsupported bibliography format %q (want .bib or .yaml)", filepath.Ext(path))
	}
}

// ParseBibTeX parses BibTeX source into entries in file order.
func ParseBibTeX(r io.Reader) ([]types.BibEntry, error) {
	bib, err := bibtex.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing BibTeX: %w", err)
	}

	entries := make([]types.BibEntry, 0, len(bib.Entries))
	for _, be := range bib.Entries {
		fields := make(map[string]string, len(be.Fields))
		for name, v := range be.Fields {
			if v == nil {
				continue
			}
			fields[strings.ToLower(name)] = Clean(v.String())
		}
		entries = append(entries, FromFields(be.CiteName, be.Type, fields))
	}
	if err := checkKeys(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// yamlFile accepts either a bare list of entries or an "entries" mapping.
type yamlFile struct {
	Entries []types.BibEntry `yaml:"entries"`
}

// ParseYAML parses a YAML list of entries.
func ParseYAML(r io.Reader) ([]types.BibEntry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading entries: %w", err)
	}

	var entries []types.BibEntry
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '-' {
		err = yaml.Unmarshal(data, &entries)
	} else {
		var f yamlFile
		err = yaml.Unmarshal(data, &f)
		entries = f.Entries
	}
	if err != nil {
		return nil, fmt.Errorf("parsing YAML entries: %w", err)
	}

	for i := range entries {
		e := &entries[i]
		e.Title = Clean(e.Title)
		e.Type = strings.ToLower(e.Type)
		if e.Key == "" {
			return nil, fmt.Errorf("entry %d has no key", i+1)
		}
	}
	if err := checkKeys(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// FromFields builds a BibEntry from lowercased BibTeX field values.
func FromFields(key, typ string, fields map[string]string) types.BibEntry {
	e := types.BibEntry{
		Key:    key,
		Type:   strings.ToLower(typ),
		Title:  fields["title"],
		Fields: fields,
	}
	if a := fields["author"]; a != "" {
		e.Authors = SplitAuthors(a)
	} else if ed := fields["editor"]; ed != "" {
		e.Authors = SplitAuthors(ed)
	}
	e.Year = ParseYear(fields["year"])
	if e.Year == 0 {
		e.Year = ParseYear(fields["date"])
	}
	for _, f := range venueFields {
		if v := fields[f]; v != "" {
			e.Venue = v
			break
		}
	}
	e.DOI = cleanDOI(fields["doi"])
	e.ArxivID = arxivID(fields)
	return e
}

// SplitAuthors splits a BibTeX author field on "and".
func SplitAuthors(s string) []string {
	var out []string
	for _, a := range authorSep.Split(strings.TrimSpace(s), -1) {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// ParseYear returns the first plausible four-digit year in s, or 0.
func ParseYear(s string) int {
	m := yearRe.FindString(s)
	if m == "" {
		return 0
	}
	y, _ := strconv.Atoi(m)
	return y
}

// Clean removes BibTeX grouping braces and collapses whitespace. LaTeX
// commands are left for the similarity layer to fold.
func Clean(s string) string {
	s = strings.NewReplacer("{", "", "}", "", "~", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

func cleanDOI(s string) string {
	s = strings.TrimSpace(s)
	for _, p := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "doi:"} {
		if len(s) >= len(p) && strings.EqualFold(s[:len(p)], p) {
			return s[len(p):]
		}
	}
	return s
}

// arxivID looks for an arXiv identifier in eprint, then in fields that
// commonly embed one.
func arxivID(fields map[string]string) string {
	if ep := fields["eprint"]; ep != "" {
		prefix := strings.ToLower(fields["archiveprefix"] + fields["eprinttype"])
		if prefix == "" || strings.Contains(prefix, "arxiv") {
			return strings.TrimPrefix(strings.TrimSpace(ep), "arXiv:")
		}
	}
	for _, f := range []string{"arxiv", "journal", "url", "note", "howpublished"} {
		v := fields[f]
		if f == "arxiv" && v != "" && !strings.Contains(strings.ToLower(v), "arxiv") {
			return strings.TrimSpace(v)
		}
		if m := arxivRe.FindStringSubmatch(v); m != nil {
			return m[1]
		}
	}
	return ""
}

func checkKeys(entries []types.BibEntry) error {
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if seen[e.Key] {
			return fmt.Errorf("duplicate citation key %q", e.Key)
		}
		seen[e.Key] = true
	}
	return nil
}
