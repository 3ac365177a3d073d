// Package fdr adjusts p-values for multiple testing.
package fdr

import (
	"fmt"
	"sort"
	"strings"
)

// Method names a false discovery rate procedure.
type Method string

const (
	// BenjaminiYekutieliMethod is valid under arbitrary dependence between
	// tests, which is the situation for overlapping gene sets.
	BenjaminiYekutieliMethod Method = "BY"

	// BenjaminiHochbergMethod assumes independent or positively dependent
	// tests.
	BenjaminiHochbergMethod Method = "BH"
)

// Adjust dispatches on method. The result is aligned with pvals.
func Adjust(pvals []float64, method Method) ([]float64, error) {
	switch Method(strings.ToUpper(string(method))) {
	case BenjaminiYekutieliMethod:
		return BenjaminiYekutieli(pvals), nil
	case BenjaminiHochbergMethod:
		return BenjaminiHochberg(pvals), nil
	}

	return nil, fmt.Errorf("Unknown FDR method %q", method)
}

// BenjaminiYekutieli returns q-values in input order.
func BenjaminiYekutieli(pvals []float64) []float64 {
	var c float64
	for i := 1; i <= len(pvals); i++ {
		c += 1 / float64(i)
	}

	return stepUp(pvals, c)
}

// BenjaminiHochberg returns q-values in input order.
func BenjaminiHochberg(pvals []float64) []float64 {
	return stepUp(pvals, 1)
}

// stepUp computes q_(i) = min over j >= i of min(1, m*c*p_(j)/j) on the
// ascending order statistics, then maps back to input positions.
func stepUp(pvals []float64, c float64) []float64 {
	m := len(pvals)
	out := make([]float64, m)
	if m == 0 {
		return out
	}

	order := make([]int, m)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return pvals[order[a]] < pvals[order[b]]
	})

	running := 1.0
	for rank := m; rank >= 1; rank-- {
		i := order[rank-1]
		q := pvals[i] * float64(m) * c / float64(rank)
		if q < running {
			running = q
		}
		out[i] = running
	}

	return out
}
