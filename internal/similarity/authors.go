// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package similarity

import "strings"

// IsTruncationMarker reports whether name stands for omitted authors
// ("others", "et al.").
func IsTruncationMarker(name string) bool {
	switch strings.ToLower(strings.Trim(strings.TrimSpace(name), ".… ")) {
	case "others", "et al", "et. al", "etal", "...":
		return true
	}
	return strings.TrimSpace(name) == "…"
}

// Surname extracts the normalized family name from "Last, First",
// "First Last", or "F. Last". Truncation markers yield "".
func Surname(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || IsTruncationMarker(name) {
		return ""
	}
	if i := strings.Index(name, ","); i >= 0 {
		name = name[:i]
	} else {
		parts := strings.Fields(name)
		name = parts[len(parts)-1]
		// "Vaswani et al." style single entries
		if len(parts) >= 3 && strings.EqualFold(parts[len(parts)-2], "et") {
			name = parts[len(parts)-3]
		}
	}
	return NormalizeTitle(name)
}

// Surnames returns the normalized surnames of names and whether the list
// was truncated with a marker.
func Surnames(names []string) (surnames []string, truncated bool) {
	for _, n := range names {
		if IsTruncationMarker(n) || strings.HasSuffix(strings.ToLower(strings.TrimSpace(n)), " et al.") {
			truncated = true
		}
		if s := Surname(n); s != "" {
			surnames = append(surnames, s)
		}
	}
	return surnames, truncated
}

// Authors scores two author lists by overlap of normalized surnames.
// When either side is truncated, the truncated side's surnames only need to
// be a subset of the other side: a full subset scores 1.0. Otherwise the
// score is matched / max(len).
func Authors(bib, src []string, srcTruncated bool) float64 {
	bs, bibTrunc := Surnames(bib)
	ss, st := Surnames(src)
	srcTruncated = srcTruncated || st
	if len(bs) == 0 || len(ss) == 0 {
		return 0
	}

	matched := matchSurnames(bs, ss)

	switch {
	case bibTrunc && srcTruncated:
		shorter := len(bs)
		if len(ss) < shorter {
			shorter = len(ss)
		}
		return clamp(float64(matched) / float64(shorter))
	case bibTrunc:
		return float64(matched) / float64(len(bs))
	case srcTruncated:
		return float64(matched) / float64(len(ss))
	}
	longer := len(bs)
	if len(ss) > longer {
		longer = len(ss)
	}
	return float64(matched) / float64(longer)
}

// matchSurnames greedily pairs each surname in a with an unused surname in
// b, returning the pair count.
func matchSurnames(a, b []string) int {
	used := make([]bool, len(b))
	matched := 0
	for _, x := range a {
		best, bestIdx := 0.0, -1
		for j, y := range b {
			if used[j] {
				continue
			}
			r := Ratio(x, y)
			if r > best {
				best, bestIdx = r, j
			}
			if r == 1 {
				break
			}
		}
		if bestIdx >= 0 && best >= surnameMatchRatio {
			used[bestIdx] = true
			matched++
		}
	}
	return matched
}

func clamp(f float64) float64 {
	if f > 1 {
		return 1
	}
	if f < 0 {
		return 0
	}
	return f
}
