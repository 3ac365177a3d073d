// Package weights turns permutation observation frequencies into a calibrated
// per-gene, per-patient alteration probability matrix.
package weights

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrMarginMismatch means a row or column of the weight matrix does not sum
// to the observed alteration count. It points at a broken permutation engine
// or too few permutations.
var ErrMarginMismatch = errors.New("weight matrix marginals do not match observed counts")

// Tolerance allows for floating point error accumulated over numPermutations
// permutations of an m x n matrix.
func Tolerance(m, n, numPermutations int) float64 {
	return 1e3 * float64(maxInt(m, n)) * float64(numPermutations) * epsilon
}

// epsilon is the float64 machine epsilon.
var epsilon = math.Nextafter(1, 2) - 1

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// CheckMarginals verifies that row i of P sums to r[i] and column j sums to
// s[j] within tol.
func CheckMarginals(P *mat.Dense, r, s []int, tol float64) error {
	m, n := P.Dims()
	if m != len(r) || n != len(s) {
		return fmt.Errorf("Matrix is %d x %d but there are %d gene and %d patient marginals", m, n, len(r), len(s))
	}

	for i := 0; i < m; i++ {
		if got := mat.Sum(P.RowView(i)); math.Abs(got-float64(r[i])) >= tol {
			return fmt.Errorf("%w: row %d sums to %g, expected %d (tolerance %g)", ErrMarginMismatch, i+1, got, r[i], tol)
		}
	}
	for j := 0; j < n; j++ {
		if got := mat.Sum(P.ColView(j)); math.Abs(got-float64(s[j])) >= tol {
			return fmt.Errorf("%w: column %d sums to %g, expected %d (tolerance %g)", ErrMarginMismatch, j+1, got, s[j], tol)
		}
	}

	return nil
}

type marginals struct {
	r, s int
}

// Postprocess calibrates the mean observation matrix P against the gene
// degrees r and patient degrees s. Cells that share a (r_i, s_j) pair are
// exchangeable under the null, so each is replaced by the mean of its group.
// Marginal sums are checked before and after averaging. Zero cells then get
// a pseudocount of 1/(2*numPermutations). P is not modified.
func Postprocess(P *mat.Dense, r, s []int, numPermutations int) (*mat.Dense, error) {
	m, n := P.Dims()
	tol := Tolerance(m, n, numPermutations)

	if err := CheckMarginals(P, r, s, tol); err != nil {
		return nil, fmt.Errorf("Before averaging: %w", err)
	}

	groups := make(map[marginals][]int)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			key := marginals{r: r[i], s: s[j]}
			groups[key] = append(groups[key], i*n+j)
		}
	}

	raw := P.RawMatrix()
	out := mat.NewDense(m, n, nil)
	values := make([]float64, 0)
	for _, cells := range groups {
		values = values[:0]
		for _, c := range cells {
			i, j := c/n, c%n
			values = append(values, raw.Data[i*raw.Stride+j])
		}

		mean := groupMean(values)
		for _, c := range cells {
			out.Set(c/n, c%n, mean)
		}
	}

	if err := CheckMarginals(out, r, s, tol); err != nil {
		return nil, fmt.Errorf("After averaging: %w", err)
	}

	pseudocount := 1 / (2 * float64(numPermutations))
	out.Apply(func(_, _ int, v float64) float64 {
		if v == 0 {
			return pseudocount
		}
		return v
	}, out)

	return out, nil
}

// groupMean returns the arithmetic mean of values, except that a group whose
// values are already identical keeps that value exactly. This makes a second
// pass over a postprocessed matrix a no-op.
func groupMean(values []float64) float64 {
	identical := true
	for _, v := range values[1:] {
		if v != values[0] {
			identical = false
			break
		}
	}
	if identical {
		return values[0]
	}

	return floats.Sum(values) / float64(len(values))
}
