package mutation

import "math/bits"

// Observation summarizes a gene set over one alteration dataset.
type Observation struct {
	// X is the number of altered patients per gene, in set order.
	X []int

	// T counts patients altered in exactly one gene of the set, Z those
	// altered in more than one.
	T int
	Z int

	// Table has 2^k cells indexed by the bitmask of altered genes, where bit
	// j stands for the j-th gene of the sorted set. Table[0] counts patients
	// altered in none of them.
	Table []int
}

// Observe builds the contingency table of M over geneToCases for a cohort of
// N patients. Only per-patient bitmasks are accumulated, so the result does
// not depend on map iteration order.
func Observe(M GeneSet, N int, geneToCases GeneCases) Observation {
	k := len(M)
	masks := make(map[string]int)
	obs := Observation{
		X:     make([]int, k),
		Table: make([]int, 1<<uint(k)),
	}

	for j, gene := range M {
		cases := geneToCases[gene]
		obs.X[j] = len(cases)
		for p := range cases {
			masks[p] |= 1 << uint(j)
		}
	}

	for _, mask := range masks {
		obs.Table[mask]++

		switch altered := bits.OnesCount(uint(mask)); {
		case altered == 1:
			obs.T++
		case altered > 1:
			obs.Z++
		}
	}

	obs.Table[0] = N - len(masks)

	return obs
}

// T computes only the exclusivity statistic, which is all the permutational
// test needs from each permuted dataset.
func T(M GeneSet, geneToCases GeneCases) int {
	counts := make(map[string]int)
	for _, gene := range M {
		for p := range geneToCases[gene] {
			counts[p]++
		}
	}

	t := 0
	for _, c := range counts {
		if c == 1 {
			t++
		}
	}

	return t
}

// Testable reports whether a set of k genes may be tested: there must be more
// exclusive than co-occurring patients, and every gene must have at least
// one exclusive alteration.
func Testable(k, T, Z int, tbl []int) bool {
	if T <= Z {
		return false
	}
	for i := 0; i < k; i++ {
		if tbl[1<<uint(i)] <= 0 {
			return false
		}
	}
	return true
}

// Testable applies the package-level predicate to o.
func (o Observation) Testable() bool {
	return Testable(len(o.X), o.T, o.Z, o.Table)
}
