package exclusivity

import (
	"math"
	"math/bits"
)

var nan = math.NaN()

// maskProbabilities returns, for patient j, the probability of each of the
// 2^k alteration patterns of the gene set when genes are altered
// independently with probabilities w[g][j].
func maskProbabilities(w [][]float64, j int, out []float64) {
	for b := range out {
		p := 1.0
		for g := range w {
			if b&(1<<uint(g)) != 0 {
				p *= w[g][j]
			} else {
				p *= 1 - w[g][j]
			}
		}
		out[b] = p
	}
}

// WeightedExactTail computes P(T >= t | X = x) exactly when gene g is altered
// in patient j independently with probability w[g][j].
//
// The joint law of (X, T) is built one patient at a time over states holding
// each gene's running alteration count (never above x_g) and the running
// exclusivity count capped at t, since everything at or above t belongs to
// the tail. States that can no longer reach x are pruned. The conditional
// tail is the mass at (x, t) over the total mass at x.
func WeightedExactTail(t int, x []int, w [][]float64) float64 {
	k := len(x)
	if k == 0 || len(w) != k {
		return nan
	}
	N := len(w[0])
	for _, row := range w {
		if len(row) != N {
			return nan
		}
	}
	if t <= 0 {
		return 1
	}

	// Mixed radix layout: gene counts first, exclusivity last.
	radix := make([]int, k+1)
	stride := make([]int, k+1)
	size := 1
	for g := 0; g < k; g++ {
		radix[g] = x[g] + 1
	}
	radix[k] = t + 1
	for d := range radix {
		stride[d] = size
		size *= radix[d]
	}

	masks := 1 << uint(k)
	exclusive := make([]bool, masks)
	shift := make([]int, masks)
	for b := 0; b < masks; b++ {
		exclusive[b] = bits.OnesCount(uint(b)) == 1
		for g := 0; g < k; g++ {
			if b&(1<<uint(g)) != 0 {
				shift[b] += stride[g]
			}
		}
	}

	cur := make([]float64, size)
	next := make([]float64, size)
	cur[0] = 1
	pb := make([]float64, masks)
	counts := make([]int, k)

	for j := 0; j < N; j++ {
		maskProbabilities(w, j, pb)
		remaining := N - j - 1

		for i := range next {
			next[i] = 0
		}

		for s, mass := range cur {
			if mass == 0 {
				continue
			}

			rest := s
			for g := 0; g < k; g++ {
				counts[g] = rest % radix[g]
				rest /= radix[g]
			}
			e := rest

		Masks:
			for b := 0; b < masks; b++ {
				if pb[b] == 0 {
					continue
				}
				for g := 0; g < k; g++ {
					c := counts[g]
					if b&(1<<uint(g)) != 0 {
						c++
					}
					if c > x[g] || c+remaining < x[g] {
						continue Masks
					}
				}

				dst := s + shift[b]
				if exclusive[b] && e < t {
					dst += stride[k]
				}
				next[dst] += mass * pb[b]
			}
		}

		cur, next = next, cur
	}

	at := 0
	for g := 0; g < k; g++ {
		at += x[g] * stride[g]
	}

	var total float64
	for e := 0; e <= t; e++ {
		total += cur[at+e*stride[k]]
	}
	if total == 0 {
		return nan
	}

	return cur[at+t*stride[k]] / total
}
