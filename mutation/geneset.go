package mutation

import (
	"sort"
	"strings"
)

// GeneSet is an unordered set of genes kept in sorted canonical order.
type GeneSet []string

// NewGeneSet sorts and deduplicates genes.
func NewGeneSet(genes ...string) GeneSet {
	out := append(GeneSet(nil), genes...)
	sort.Strings(out)

	j := 0
	for i := range out {
		if i > 0 && out[i] == out[j-1] {
			continue
		}
		out[j] = out[i]
		j++
	}

	return out[:j]
}

// Key is a stable string form of the set, usable as a map key.
func (m GeneSet) Key() string {
	return strings.Join(m, ",")
}

func (m GeneSet) String() string {
	return m.Key()
}

// Combinations enumerates every k-subset of genes as a canonical GeneSet, in
// lexicographic order of the sorted gene list.
func Combinations(genes []string, k int) []GeneSet {
	pool := NewGeneSet(genes...)
	if k <= 0 || k > len(pool) {
		return nil
	}

	out := make([]GeneSet, 0)
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}

	for {
		set := make(GeneSet, k)
		for i, v := range idx {
			set[i] = pool[v]
		}
		out = append(out, set)

		// Advance the rightmost index that still has room.
		i := k - 1
		for i >= 0 && idx[i] == len(pool)-k+i {
			i--
		}
		if i < 0 {
			return out
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}
