package bipartite

import (
	"errors"
	"fmt"

	"golang.org/x/exp/rand"
)

// ErrNonConvergence is returned when the attempt budget runs out before the
// requested number of swaps was accepted.
var ErrNonConvergence = errors.New("edge swap did not converge")

// Swapper performs degree-preserving double-edge swaps.
type Swapper struct {
	// MaxSwaps is the number of accepted swaps to perform.
	MaxSwaps int

	// MaxTries bounds the total number of attempts, accepted or not.
	MaxTries int
}

// Swap returns a permuted copy of g with identical gene and patient degree
// sequences. Each attempt picks two distinct edges (g1,p1), (g2,p2) uniformly
// at random with g1 != g2 and p1 != p2, and replaces them with (g1,p2),
// (g2,p1) if neither replacement already exists. g is not modified.
func (s Swapper) Swap(g *Graph, rng *rand.Rand) (*Graph, error) {
	edges := g.Edges()
	out := &Graph{m: g.m, n: g.n, edges: edges}

	if s.MaxSwaps <= 0 {
		return out, nil
	}

	if len(edges) < 2 {
		return nil, fmt.Errorf("%w: %d edges can't be swapped", ErrNonConvergence, len(edges))
	}

	present := make(map[Edge]struct{}, len(edges))
	for _, e := range edges {
		present[e] = struct{}{}
	}

	swaps, tries := 0, 0
	for swaps < s.MaxSwaps && tries < s.MaxTries {
		tries++

		a := rng.Intn(len(edges))
		b := rng.Intn(len(edges))
		if a == b {
			continue
		}

		e1, e2 := edges[a], edges[b]
		if e1.Gene == e2.Gene || e1.Patient == e2.Patient {
			continue
		}

		r1 := Edge{Gene: e1.Gene, Patient: e2.Patient}
		r2 := Edge{Gene: e2.Gene, Patient: e1.Patient}
		if _, exists := present[r1]; exists {
			continue
		}
		if _, exists := present[r2]; exists {
			continue
		}

		delete(present, e1)
		delete(present, e2)
		present[r1] = struct{}{}
		present[r2] = struct{}{}
		edges[a], edges[b] = r1, r2

		swaps++
	}

	if swaps < s.MaxSwaps {
		return nil, fmt.Errorf("%w: %d of %d swaps accepted after %d tries", ErrNonConvergence, swaps, s.MaxSwaps, tries)
	}

	sortEdges(edges)

	return out, nil
}
