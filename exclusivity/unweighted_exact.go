package exclusivity

import (
	"math"

	"github.com/BenLubar/memoize"
	fet "github.com/glycerine/golang-fisher-exact"
)

var memoizedLnChoose = memoize.Memoize(lnChoose).(func(int, int) float64)

// lnChoose is log(n choose k), or -Inf when the coefficient is zero.
func lnChoose(n, k int) float64 {
	if k < 0 || k > n {
		return math.Inf(-1)
	}
	a, _ := math.Lgamma(float64(n + 1))
	b, _ := math.Lgamma(float64(k + 1))
	c, _ := math.Lgamma(float64(n - k + 1))
	return a - b - c
}

// UnweightedExactTail computes P(T >= t | X = x) when each gene's x_g
// alterations land on a uniformly random x_g-subset of the N patients,
// independently across genes. For two genes this is the one-sided Fisher
// exact test on the 2x2 table.
func UnweightedExactTail(t int, x []int, N int) float64 {
	for _, v := range x {
		if v < 0 || v > N {
			return nan
		}
	}

	switch len(x) {
	case 0:
		return nan
	case 1:
		// A single gene is exclusive wherever it is altered.
		if t <= x[0] {
			return 1
		}
		return 0
	case 2:
		return fisherTail(t, x[0], x[1], N)
	}

	return unweightedTail(t, x, N)
}

// fisherTail recovers the 2x2 table from t: co-occurrences are
// (x1+x2-t)/2, and more exclusivity means fewer co-occurrences, which is
// the left tail of Fisher's test.
func fisherTail(t, x1, x2, N int) float64 {
	if (x1+x2-t)%2 != 0 {
		return nan
	}
	both := (x1 + x2 - t) / 2
	onlyFirst := x1 - both
	onlySecond := x2 - both
	neither := N - x1 - x2 + both
	if both < 0 || onlyFirst < 0 || onlySecond < 0 || neither < 0 {
		return nan
	}

	_, leftp, _, _ := fet.FisherExactTest(both, onlyFirst, onlySecond, neither)

	return leftp
}

// unweightedTail adds one gene at a time to a distribution over how many
// patients carry exactly one alteration (a1) and how many carry two or more
// (a2); the remaining N-a1-a2 carry none. A gene with x alterations moves i
// patients from none to one and j from one to many, with hypergeometric
// probability C(a0,i) C(a1,j) C(a2,x-i-j) / C(N,x).
func unweightedTail(t int, x []int, N int) float64 {
	limit := 0
	for _, v := range x {
		limit += v
	}
	if limit > N {
		limit = N
	}
	width := limit + 1

	cur := make([]float64, width*width)
	next := make([]float64, width*width)
	cur[0] = 1

	for _, xg := range x {
		for i := range next {
			next[i] = 0
		}
		lnTotal := memoizedLnChoose(N, xg)

		for a1 := 0; a1 < width; a1++ {
			for a2 := 0; a1+a2 < width; a2++ {
				mass := cur[a1*width+a2]
				if mass == 0 {
					continue
				}
				a0 := N - a1 - a2

				for i := 0; i <= xg && i <= a0; i++ {
					for j := 0; i+j <= xg && j <= a1; j++ {
						l := xg - i - j
						if l > a2 {
							continue
						}

						lnP := memoizedLnChoose(a0, i) +
							memoizedLnChoose(a1, j) +
							memoizedLnChoose(a2, l) -
							lnTotal

						n1, n2 := a1+i-j, a2+j
						next[n1*width+n2] += mass * math.Exp(lnP)
					}
				}
			}
		}

		cur, next = next, cur
	}

	var tail float64
	for a1 := 0; a1 < width; a1++ {
		if a1 < t {
			continue
		}
		for a2 := 0; a1+a2 < width; a2++ {
			tail += cur[a1*width+a2]
		}
	}

	return tail
}
