// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package duplicate finds near-duplicate bibliography entries. Two entries
// link when their combined title and author similarity exceeds the
// threshold; clusters are the connected components of the link graph, so
// A and C share a cluster when both link to B even if A and C do not link.
package duplicate

import (
	"github.com/pdiddy/citecheck/internal/similarity"
	"github.com/pdiddy/citecheck/pkg/types"
)

// ScoreFunc scores a pair of entries in [0,1]. It must be symmetric.
type ScoreFunc func(a, b *types.BibEntry) float64

// Similarity combines title and author similarity with the configured title
// weight. When either entry has no authors only the title counts. The
// result is symmetric.
func Similarity(a, b *types.BibEntry, cfg types.DuplicateConfig) float64 {
	title := similarity.Title(a.Title, b.Title)
	if len(a.Authors) == 0 || len(b.Authors) == 0 {
		return title
	}
	authors := max(
		similarity.Authors(a.Authors, b.Authors, false),
		similarity.Authors(b.Authors, a.Authors, false),
	)
	w := cfg.TitleWeight
	return w*title + (1-w)*authors
}

// Detect returns the duplicate clusters in entries, using Similarity.
func Detect(entries []types.BibEntry, cfg types.DuplicateConfig) []types.DuplicateCluster {
	return DetectWith(entries, cfg.Threshold, func(a, b *types.BibEntry) float64 {
		return Similarity(a, b, cfg)
	})
}

// DetectWith clusters entries whose pairwise score exceeds threshold.
// Clusters list keys in bibliography order and are ordered by their first
// member; singletons are omitted.
func DetectWith(entries []types.BibEntry, threshold float64, score ScoreFunc) []types.DuplicateCluster {
	uf := newUnionFind(len(entries))
	strongest := make([]float64, len(entries))

	for i := range entries {
		for j := i + 1; j < len(entries); j++ {
			s := score(&entries[i], &entries[j])
			if s <= threshold {
				continue
			}
			uf.union(i, j)
			if s > strongest[i] {
				strongest[i] = s
			}
			if s > strongest[j] {
				strongest[j] = s
			}
		}
	}

	members := make(map[int][]int)
	var roots []int
	for i := range entries {
		r := uf.find(i)
		if _, ok := members[r]; !ok {
			roots = append(roots, r)
		}
		members[r] = append(members[r], i)
	}

	var out []types.DuplicateCluster
	for _, r := range roots {
		idx := members[r]
		if len(idx) < 2 {
			continue
		}
		c := types.DuplicateCluster{Keys: make([]string, 0, len(idx))}
		for _, i := range idx {
			c.Keys = append(c.Keys, entries[i].Key)
			if strongest[i] > c.MaxSimilarity {
				c.MaxSimilarity = strongest[i]
			}
		}
		out = append(out, c)
	}
	return out
}

// unionFind is a disjoint-set forest with path halving and union by size.
type unionFind struct {
	parent []int
	size   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), size: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
		uf.size[i] = 1
	}
	return uf
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.size[ra] < u.size[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	u.size[ra] += u.size[rb]
}
