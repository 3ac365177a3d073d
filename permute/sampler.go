// Package permute draws degree-preserving permutations of an alteration
// graph, in parallel, and reduces them into an observation matrix and a list
// of permuted datasets.
package permute

import (
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/carbocation/wext/bipartite"
	"github.com/carbocation/wext/mutation"
	"github.com/rs/zerolog"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DefaultMaxTries bounds the attempts of each permutation's swap sequence.
const DefaultMaxTries = 1000000000

// Sampler runs NumPermutations independent edge-swap permutations.
type Sampler struct {
	NumPermutations int

	// StartIndex numbers the first permutation. Defaults to 1.
	StartIndex int

	// SwapMultiplier q sets the swap budget to q*|E| accepted swaps.
	SwapMultiplier int

	// MaxTries bounds attempts per permutation. Defaults to DefaultMaxTries.
	MaxTries int

	// Workers is the number of permutations run concurrently. Values below 1
	// mean runtime.NumCPU().
	Workers int

	// Seed is the top-level seed from which every permutation seed derives.
	Seed int64

	// KeepDatasets retains each permuted gene->patients mapping.
	KeepDatasets bool

	// Params is echoed into every permuted dataset.
	Params map[string]interface{}

	Logger *zerolog.Logger
}

// Result is the reduction of every worker's partial output.
type Result struct {
	// Observed[i][j] is the fraction of permutations in which gene i+1 is
	// altered in patient j+1.
	Observed *mat.Dense

	// Datasets are sorted by permutation index. Empty unless KeepDatasets.
	Datasets []Dataset

	NumPermutations int
}

// partial is what one worker hands back. It is never touched again by the
// worker after it returns.
type partial struct {
	counts   []float64
	datasets []Dataset
}

func (s Sampler) logger() *zerolog.Logger {
	if s.Logger == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return s.Logger
}

// Run permutes g. genes and patients translate the graph's indices back into
// labels for the permuted datasets. Any permutation that fails to converge
// aborts the whole run.
func (s Sampler) Run(g *bipartite.Graph, genes, patients *bipartite.Index) (*Result, error) {
	if s.NumPermutations < 1 {
		return nil, fmt.Errorf("NumPermutations must be positive, got %d", s.NumPermutations)
	}
	if g.Genes() == 0 || g.Patients() == 0 {
		return nil, fmt.Errorf("Cannot permute an empty %d x %d graph", g.Genes(), g.Patients())
	}
	if genes.Len() != g.Genes() || patients.Len() != g.Patients() {
		return nil, fmt.Errorf("Graph is %d x %d but indices are %d x %d", g.Genes(), g.Patients(), genes.Len(), patients.Len())
	}

	start := s.StartIndex
	if start < 1 {
		start = 1
	}
	maxTries := s.MaxTries
	if maxTries < 1 {
		maxTries = DefaultMaxTries
	}
	workers := s.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}

	swapper := bipartite.Swapper{
		MaxSwaps: s.SwapMultiplier * g.Len(),
		MaxTries: maxTries,
	}
	seeds := Seeds(s.Seed, start, s.NumPermutations)
	assignments := Partition(s.NumPermutations, workers)

	log := s.logger()
	log.Info().
		Int("permutations", s.NumPermutations).
		Int("workers", len(assignments)).
		Int("max_swaps", swapper.MaxSwaps).
		Msg("Permuting alteration graph")
	began := time.Now()

	partials := make([]partial, len(assignments))
	var eg errgroup.Group
	for w, positions := range assignments {
		w, positions := w, positions
		eg.Go(func() error {
			p, err := s.work(g, genes, patients, swapper, start, seeds, positions)
			if err != nil {
				return fmt.Errorf("Worker %d: %w", w, err)
			}
			partials[w] = p
			log.Debug().Int("worker", w).Int("permutations", len(positions)).Msg("Worker finished")
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	res := reduce(partials, g.Genes(), g.Patients(), s.NumPermutations)

	log.Info().Dur("elapsed", time.Since(began)).Msg("Permutations complete")

	return res, nil
}

func (s Sampler) work(g *bipartite.Graph, genes, patients *bipartite.Index, swapper bipartite.Swapper, start int, seeds []uint64, positions []int) (partial, error) {
	m, n := g.Genes(), g.Patients()
	out := partial{counts: make([]float64, m*n)}

	for _, pos := range positions {
		index := start + pos
		rng := rand.New(rand.NewSource(seeds[pos]))

		permuted, err := swapper.Swap(g, rng)
		if err != nil {
			return partial{}, fmt.Errorf("Permutation %d: %w", index, err)
		}

		edges := permuted.Edges()
		for _, e := range edges {
			out.counts[(e.Gene-1)*n+(e.Patient-1)]++
		}

		if s.KeepDatasets {
			gc := make(mutation.GeneCases)
			for _, e := range edges {
				gene := genes.Label(e.Gene)
				if gc[gene] == nil {
					gc[gene] = make(mutation.Cases)
				}
				gc[gene][patients.Label(e.Patient)] = struct{}{}
			}
			out.datasets = append(out.datasets, Dataset{
				Index:       index,
				Seed:        seeds[pos],
				GeneToCases: gc.Lists(),
				Params:      s.Params,
			})
		}
	}

	return out, nil
}

// reduce sums the integer counts of every partial before dividing by the
// permutation count, so the result is exact and independent of the order in
// which workers finished or of how permutations were split between them.
func reduce(partials []partial, m, n, numPermutations int) *Result {
	total := make([]float64, m*n)
	datasets := make([]Dataset, 0)
	for _, p := range partials {
		floats.Add(total, p.counts)
		datasets = append(datasets, p.datasets...)
	}
	floats.Scale(1/float64(numPermutations), total)

	sort.Slice(datasets, func(i, j int) bool { return datasets[i].Index < datasets[j].Index })

	return &Result{
		Observed:        mat.NewDense(m, n, total),
		Datasets:        datasets,
		NumPermutations: numPermutations,
	}
}
