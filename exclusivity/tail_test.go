package exclusivity

import (
	"math"
	"testing"
)

// bruteForceTail enumerates every alteration matrix.
func bruteForceTail(t int, x []int, w [][]float64) float64 {
	k, N := len(w), len(w[0])
	cells := uint(k * N)

	var num, den float64
	counts := make([]int, k)
	perPatient := make([]int, N)
	for a := 0; a < 1<<cells; a++ {
		for g := range counts {
			counts[g] = 0
		}
		for j := range perPatient {
			perPatient[j] = 0
		}

		p := 1.0
		for g := 0; g < k; g++ {
			for j := 0; j < N; j++ {
				if a>>uint(g*N+j)&1 == 1 {
					p *= w[g][j]
					counts[g]++
					perPatient[j]++
				} else {
					p *= 1 - w[g][j]
				}
			}
		}

		match := true
		for g := range x {
			if counts[g] != x[g] {
				match = false
			}
		}
		if !match {
			continue
		}

		exclusive := 0
		for _, c := range perPatient {
			if c == 1 {
				exclusive++
			}
		}

		den += p
		if exclusive >= t {
			num += p
		}
	}

	return num / den
}

// exampleWeights gives each cell a distinct probability in [0.1, 0.4].
func exampleWeights(k, N int) [][]float64 {
	w := make([][]float64, k)
	for g := range w {
		w[g] = make([]float64, N)
		for j := range w[g] {
			w[g][j] = 0.1 + 0.3*float64((7*j+3*g)%11)/10
		}
	}
	return w
}

func TestWeightedExactMatchesBruteForce(t *testing.T) {
	cases := []struct {
		x []int
		N int
	}{
		{x: []int{2, 3}, N: 6},
		{x: []int{1, 4}, N: 6},
		{x: []int{2, 2, 1}, N: 5},
		{x: []int{3, 1, 2}, N: 5},
	}

	for _, cs := range cases {
		w := exampleWeights(len(cs.x), cs.N)
		for tt := 0; tt <= cs.N; tt++ {
			expected := bruteForceTail(tt, cs.x, w)
			got := WeightedExactTail(tt, cs.x, w)
			if math.Abs(expected-got) > 1e-10 {
				t.Fatalf("x=%v t=%d: expected %v, got %v", cs.x, tt, expected, got)
			}
		}
	}
}

func TestWeightedExactBadInput(t *testing.T) {
	if p := WeightedExactTail(1, []int{1, 1}, [][]float64{{0.5, 0.5}}); !math.IsNaN(p) {
		t.Fatalf("Expected NaN for mismatched weights, got %v", p)
	}

	if p := WeightedExactTail(0, []int{1, 1}, exampleWeights(2, 4)); p != 1 {
		t.Fatalf("Expected 1 for t=0, got %v", p)
	}

	// x can't be reached with some weights fixed at zero.
	w := [][]float64{{0, 0, 0}, {0.5, 0.5, 0.5}}
	if p := WeightedExactTail(1, []int{1, 1}, w); !math.IsNaN(p) {
		t.Fatalf("Expected NaN for an impossible margin, got %v", p)
	}
}

// With a single probability per gene, every placement of x_g alterations is
// equally likely, so the weighted test reduces to the unweighted one.
func TestConstantWeightsMatchUnweighted(t *testing.T) {
	N := 12
	for _, x := range [][]int{{4, 5}, {3, 4, 5}, {2, 2, 3, 1}} {
		w := make([][]float64, len(x))
		for g := range w {
			w[g] = make([]float64, N)
			for j := range w[g] {
				w[g][j] = 0.2 + 0.1*float64(g)
			}
		}

		for tt := 0; tt <= N; tt++ {
			if len(x) == 2 && (x[0]+x[1]-tt)%2 != 0 {
				continue
			}
			if len(x) == 2 && tt > x[0]+x[1] {
				continue
			}

			expected := WeightedExactTail(tt, x, w)
			got := UnweightedExactTail(tt, x, N)
			if math.Abs(expected-got) > 1e-6 {
				t.Fatalf("x=%v t=%d: weighted %v, unweighted %v", x, tt, expected, got)
			}
		}
	}
}

func TestUnweightedExactEdges(t *testing.T) {
	if p := UnweightedExactTail(3, []int{3}, 10); p != 1 {
		t.Fatalf("Expected 1, got %v", p)
	}
	if p := UnweightedExactTail(4, []int{3}, 10); p != 0 {
		t.Fatalf("Expected 0, got %v", p)
	}
	if p := UnweightedExactTail(2, nil, 10); !math.IsNaN(p) {
		t.Fatalf("Expected NaN for an empty set, got %v", p)
	}
	if p := UnweightedExactTail(2, []int{11, 1}, 10); !math.IsNaN(p) {
		t.Fatalf("Expected NaN for x > N, got %v", p)
	}
	if p := UnweightedExactTail(2, []int{2, 1}, 10); !math.IsNaN(p) {
		t.Fatalf("Expected NaN for a T inconsistent with the margins, got %v", p)
	}
}

func TestSaddlepointTracksExact(t *testing.T) {
	N := 40
	for _, cs := range []struct {
		x   []int
		tol float64
	}{
		{[]int{10, 8}, 0.15},
		{[]int{12, 12}, 0.15},
		{[]int{8, 6, 7}, 0.25},
	} {
		w := exampleWeights(len(cs.x), N)

		compared := 0
		for tt := 1; tt <= N; tt++ {
			exact := WeightedExactTail(tt, cs.x, w)

			// Only thresholds that T can take.
			if exact-WeightedExactTail(tt+1, cs.x, w) <= 1e-12*exact {
				continue
			}
			if exact < 1e-4 || exact > 0.5 {
				continue
			}

			approx := WeightedSaddlepointTail(tt, cs.x, w)
			if math.IsNaN(approx) || math.Abs(approx-exact) > cs.tol*exact {
				t.Fatalf("x=%v t=%d: exact %v, saddlepoint %v", cs.x, tt, exact, approx)
			}
			compared++
		}

		if compared == 0 {
			t.Fatalf("x=%v: no thresholds were compared", cs.x)
		}
	}
}

func TestSaddlepointLattice(t *testing.T) {
	N := 40

	// T keeps the parity of x_1 + x_2, so an odd threshold has the same tail
	// as the even one above it.
	w := exampleWeights(2, N)
	for _, tt := range []int{15, 17, 19, 21} {
		odd := WeightedSaddlepointTail(tt, []int{12, 12}, w)
		even := WeightedSaddlepointTail(tt+1, []int{12, 12}, w)
		if math.IsNaN(odd) || odd != even {
			t.Fatalf("t=%d: got %v, expected the t=%d tail %v", tt, odd, tt+1, even)
		}
	}
	if p := WeightedSaddlepointTail(20, []int{12, 12}, w); math.IsNaN(p) || p <= 0 || p >= 1 {
		t.Fatalf("x=[12 12] t=20: got %v", p)
	}

	// Near the top of the range three genes skip values, and the exact tail
	// is used.
	w = exampleWeights(3, N)
	x := []int{8, 6, 7}
	for tt := 18; tt <= 22; tt++ {
		if got, want := WeightedSaddlepointTail(tt, x, w), WeightedExactTail(tt, x, w); got != want {
			t.Fatalf("x=%v t=%d: got %v, expected the exact tail %v", x, tt, got, want)
		}
	}
}

func TestSaddlepointBadInput(t *testing.T) {
	if p := WeightedSaddlepointTail(1, nil, nil); !math.IsNaN(p) {
		t.Fatalf("Expected NaN for an empty set, got %v", p)
	}
	if p := WeightedSaddlepointTail(0, []int{2, 2}, exampleWeights(2, 10)); p != 1 {
		t.Fatalf("Expected 1 for t=0, got %v", p)
	}
}

func TestTailDispatch(t *testing.T) {
	w := exampleWeights(2, 6)
	in := Input{T: 3, X: []int{2, 3}, Weights: w, N: 6}

	if Tail(in, WeightedExact) != WeightedExactTail(3, in.X, w) {
		t.Fatalf("Tail did not dispatch to the weighted exact test")
	}
	if Tail(in, UnweightedExact) != UnweightedExactTail(3, in.X, 6) {
		t.Fatalf("Tail did not dispatch to the unweighted exact test")
	}
	if p := Tail(in, Permutational); !math.IsNaN(p) {
		t.Fatalf("Expected NaN for the permutational mode, got %v", p)
	}
}

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{WeightedExact, WeightedSaddlepoint, UnweightedExact, Permutational} {
		parsed, err := ParseMode(m.String())
		if err != nil || parsed != m {
			t.Fatalf("Round trip of %v gave %v, %v", m, parsed, err)
		}
	}

	if _, err := ParseMode("bogus"); err == nil {
		t.Fatalf("Expected an error for an unknown mode")
	}

	if !WeightedSaddlepoint.Weighted() || UnweightedExact.Weighted() {
		t.Fatalf("Unexpected Weighted() classification")
	}
}
