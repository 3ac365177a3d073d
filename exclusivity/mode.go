// Package exclusivity computes mutual exclusivity p-values for gene sets.
//
// Four test modes are available. The two weighted modes condition on each
// gene's alteration count and let every (gene, patient) cell carry its own
// alteration probability, taken from a permutation-calibrated weight matrix.
// The unweighted mode is the classical exact test in which a gene's
// alterations are equally likely to fall in any patient. The permutational
// mode compares the observed statistic with its value on permuted datasets.
package exclusivity

import (
	"fmt"
	"strings"
)

// Mode selects how a gene set's p-value is computed.
type Mode int

const (
	// WeightedExact enumerates the weighted null exactly.
	WeightedExact Mode = iota + 1

	// WeightedSaddlepoint approximates the weighted null's tail with a
	// conditional saddlepoint approximation.
	WeightedSaddlepoint

	// UnweightedExact ignores weights.
	UnweightedExact

	// Permutational uses an empirical null from permuted datasets.
	Permutational
)

var modeNames = map[Mode]string{
	WeightedExact:       "weighted-exact",
	WeightedSaddlepoint: "weighted-saddlepoint",
	UnweightedExact:     "unweighted-exact",
	Permutational:       "permutational",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Weighted reports whether the mode consumes a weight matrix.
func (m Mode) Weighted() bool {
	return m == WeightedExact || m == WeightedSaddlepoint
}

// ParseMode accepts the names produced by String, case-insensitively.
func ParseMode(s string) (Mode, error) {
	for m, name := range modeNames {
		if strings.EqualFold(s, name) {
			return m, nil
		}
	}

	return 0, fmt.Errorf("Unknown test mode %q. Options are weighted-exact, weighted-saddlepoint, unweighted-exact, permutational", s)
}

// Input is what a numeric primitive needs to know about one gene set.
type Input struct {
	// T is the observed exclusivity count.
	T int

	// X holds each gene's alteration count, in gene set order.
	X []int

	// Weights holds, for each gene in set order, the alteration probability
	// in each patient. Only the weighted modes read it.
	Weights [][]float64

	// N is the number of patients.
	N int
}

// Primitive turns an Input into the tail probability P(T' >= T | X) under
// the null model selected by mode.
type Primitive func(in Input, mode Mode) float64

// Tail is the built-in Primitive.
func Tail(in Input, mode Mode) float64 {
	switch mode {
	case WeightedExact:
		return WeightedExactTail(in.T, in.X, in.Weights)
	case WeightedSaddlepoint:
		return WeightedSaddlepointTail(in.T, in.X, in.Weights)
	case UnweightedExact:
		return UnweightedExactTail(in.T, in.X, in.N)
	}

	return nan
}
