// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package similarity

import (
	"strings"
	"unicode"
)

// Year scores two years: exact 1.0, within tolerance toleranceScore,
// otherwise 0. ok is false when either year is unknown.
func Year(bib, src, tolerance int, toleranceScore float64) (score float64, ok bool) {
	if bib <= 0 || src <= 0 {
		return 0, false
	}
	delta := bib - src
	if delta < 0 {
		delta = -delta
	}
	switch {
	case delta == 0:
		return 1, true
	case delta <= tolerance:
		return toleranceScore, true
	default:
		return 0, true
	}
}

// venueAliases maps canonical venue acronyms to known long forms.
var venueAliases = map[string][]string{
	"icml":    {"international conference on machine learning", "proc icml"},
	"neurips": {"neural information processing systems", "nips", "advances in neural information processing systems"},
	"iclr":    {"international conference on learning representations"},
	"acl":     {"association for computational linguistics", "annual meeting of the association for computational linguistics"},
	"emnlp":   {"empirical methods in natural language processing"},
	"naacl":   {"north american chapter of the association for computational linguistics"},
	"cvpr":    {"computer vision and pattern recognition", "ieee cvf conference on computer vision and pattern recognition"},
	"iccv":    {"international conference on computer vision"},
	"eccv":    {"european conference on computer vision"},
	"aaai":    {"aaai conference on artificial intelligence"},
	"ijcai":   {"international joint conference on artificial intelligence"},
	"kdd":     {"knowledge discovery and data mining"},
	"www":     {"the web conference", "world wide web"},
	"sigir":   {"special interest group on information retrieval", "research and development in information retrieval"},
	"colt":    {"conference on learning theory"},
	"aistats": {"artificial intelligence and statistics"},
	"uai":     {"uncertainty in artificial intelligence"},
	"jmlr":    {"journal of machine learning research"},
	"tacl":    {"transactions of the association for computational linguistics"},
	"tpami":   {"ieee transactions on pattern analysis and machine intelligence", "pattern analysis and machine intelligence"},
	"arxiv":   {"corr", "arxiv preprint", "computing research repository"},
}

// venueStopwords are dropped before comparing venue names.
var venueStopwords = map[string]bool{
	"proceedings": true, "proc": true, "of": true, "the": true, "in": true,
	"on": true, "and": true, "for": true, "annual": true, "international": true,
	"conference": true, "conf": true, "journal": true, "j": true, "ieee": true,
	"acm": true, "cvf": true, "advances": true, "workshop": true, "symposium": true,
	"th": true, "st": true, "nd": true, "rd": true,
}

// CanonicalVenue returns the alias-table acronym for venue, or "".
func CanonicalVenue(venue string) string {
	n := NormalizeTitle(venue)
	if n == "" {
		return ""
	}
	for _, tok := range strings.Fields(n) {
		if _, ok := venueAliases[tok]; ok {
			return tok
		}
	}
	// Longest alias wins so "transactions of the association for
	// computational linguistics" resolves to tacl, not acl.
	padded := " " + n + " "
	best, bestLen := "", 0
	for canon, aliases := range venueAliases {
		for _, a := range aliases {
			if len(a) > bestLen && strings.Contains(padded, " "+a+" ") {
				best, bestLen = canon, len(a)
			}
		}
	}
	return best
}

// Venue scores two venue strings. With lenient set, alias-table matches,
// acronym-vs-expansion pairs, and containment all score high.
func Venue(a, b string, lenient bool) float64 {
	na, nb := venueTokens(a), venueTokens(b)
	if len(na) == 0 || len(nb) == 0 {
		return 0
	}
	ja, jb := strings.Join(na, " "), strings.Join(nb, " ")
	if ja == jb {
		return 1
	}
	base := TokenDice(ja, jb)
	if !lenient {
		return base
	}

	if ca, cb := CanonicalVenue(a), CanonicalVenue(b); ca != "" && ca == cb {
		return 1
	}
	if acronymOf(na) == jb || acronymOf(nb) == ja {
		return 1
	}
	if strings.Contains(ja, jb) || strings.Contains(jb, ja) {
		return max(base, 0.9)
	}
	return base
}

// venueTokens normalizes a venue and drops stopwords, years, and ordinals.
func venueTokens(v string) []string {
	var out []string
	for _, tok := range strings.Fields(NormalizeTitle(v)) {
		if venueStopwords[tok] || isNumeric(tok) || isOrdinal(tok) {
			continue
		}
		out = append(out, tok)
	}
	return out
}

func acronymOf(tokens []string) string {
	if len(tokens) < 2 {
		return ""
	}
	var b strings.Builder
	for _, t := range tokens {
		b.WriteRune([]rune(t)[0])
	}
	return b.String()
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

// isOrdinal matches "31st", "2nd", "40th".
func isOrdinal(s string) bool {
	for _, suf := range []string{"st", "nd", "rd", "th"} {
		if strings.HasSuffix(s, suf) && isNumeric(strings.TrimSuffix(s, suf)) {
			return true
		}
	}
	return false
}
