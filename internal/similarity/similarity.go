// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package similarity provides the normalization and similarity primitives
// shared by reconciliation and duplicate detection. Every score is in [0,1].
package similarity

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// surnameMatchRatio is the edit-distance ratio at which two surnames are
// treated as the same person (transliteration and typo tolerance).
const surnameMatchRatio = 0.85

// Fold lowercases s and strips diacritics ("Schölkopf" -> "scholkopf").
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// NormalizeTitle folds s, drops BibTeX braces, LaTeX commands, and
// punctuation, and collapses whitespace.
func NormalizeTitle(s string) string {
	s = stripLaTeX(Fold(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r), r == '-', r == '/', r == ':':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// stripLaTeX removes "\command" tokens and braces.
func stripLaTeX(s string) string {
	var b strings.Builder
	inCmd := false
	for _, r := range s {
		switch {
		case r == '\\':
			inCmd = true
		case inCmd && unicode.IsLetter(r):
			// swallow command name
		case r == '{' || r == '}':
			inCmd = false
		default:
			inCmd = false
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Ratio is 1 - editDistance/maxLen over runes.
func Ratio(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len([]rune(a)), len([]rune(b))
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	if maxLen == 0 {
		return 1
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(maxLen)
}

// TokenDice is the Sørensen-Dice coefficient over whitespace tokens.
func TokenDice(a, b string) float64 {
	ta, tb := strings.Fields(a), strings.Fields(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	counts := make(map[string]int, len(ta))
	for _, t := range ta {
		counts[t]++
	}
	shared := 0
	for _, t := range tb {
		if counts[t] > 0 {
			counts[t]--
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(ta)+len(tb))
}

// Title scores two titles: the larger of the edit-distance ratio and the
// token overlap of their normalized forms. An empty title scores 0.
func Title(a, b string) float64 {
	na, nb := NormalizeTitle(a), NormalizeTitle(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	r := Ratio(na, nb)
	if d := TokenDice(na, nb); d > r {
		r = d
	}
	return r
}
