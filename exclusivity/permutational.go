package exclusivity

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"cloud.google.com/go/storage"
	"github.com/carbocation/wext/fdr"
	"github.com/carbocation/wext/mutation"
	"github.com/carbocation/wext/permute"
	"github.com/montanaflynn/stats"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gopkg.in/guregu/null.v3"
)

// NullSource yields permuted datasets one at a time.
type NullSource interface {
	Len() int
	Load(ctx context.Context, i int) (mutation.GeneCases, error)
}

// FileSource reads permuted datasets from disk or Google Storage. Each group
// lists the files that together make up one permutation.
type FileSource struct {
	Client *storage.Client
	Groups [][]string
}

func (f FileSource) Len() int { return len(f.Groups) }

func (f FileSource) Load(ctx context.Context, i int) (mutation.GeneCases, error) {
	return permute.ReadGroup(ctx, f.Client, f.Groups[i])
}

// MemorySource holds permuted datasets that are already loaded.
type MemorySource []mutation.GeneCases

func (m MemorySource) Len() int { return len(m) }

func (m MemorySource) Load(ctx context.Context, i int) (mutation.GeneCases, error) {
	return m[i], nil
}

// DatasetSource wraps the datasets kept by a permute.Sampler.
func DatasetSource(datasets []permute.Dataset) MemorySource {
	out := make(MemorySource, len(datasets))
	for i, d := range datasets {
		out[i] = d.Cases()
	}
	return out
}

// PermutationalTester compares each set's exclusivity with its distribution
// over permuted datasets.
type PermutationalTester struct {
	N           int
	GeneToCases mutation.GeneCases
	Source      NullSource

	// Workers values below 1 mean runtime.NumCPU().
	Workers int

	// PTOL values of 0 or below mean DefaultPTOL.
	PTOL float64

	// FDRMethod defaults to Benjamini-Yekutieli.
	FDRMethod fdr.Method

	Logger *zerolog.Logger
}

func (p PermutationalTester) logger() *zerolog.Logger {
	if p.Logger == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return p.Logger
}

// nullPartial is one worker's view of the null: the statistic of every set on
// each permuted dataset it loaded, and the time spent per set.
type nullPartial struct {
	dist    map[string][]int
	runtime map[string]time.Duration
}

// TestSets computes p = #{d >= T} / np for every testable set. A p-value of 0
// carries an upper bound of 1/np.
func (p PermutationalTester) TestSets(ctx context.Context, sets []mutation.GeneSet) (*Report, error) {
	if p.Source == nil || p.Source.Len() < 1 {
		return nil, fmt.Errorf("The permutational test needs at least one permuted dataset")
	}
	if p.N < 1 {
		return nil, fmt.Errorf("Number of patients must be positive, got %d", p.N)
	}

	workers := p.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	np := p.Source.Len()

	var testable []SetResult
	untestable := 0
	for _, set := range sets {
		obs := mutation.Observe(set, p.N, p.GeneToCases)
		if !obs.Testable() {
			untestable++
			continue
		}
		testable = append(testable, SetResult{Set: set, Observation: obs})
	}

	log := p.logger()
	log.Info().
		Int("sets", len(testable)).
		Int("permutations", np).
		Int("workers", workers).
		Msg("Computing permutational null distributions")

	assignments := permute.Partition(np, workers)
	partials := make([]nullPartial, len(assignments))

	eg, ctx := errgroup.WithContext(ctx)
	for w, positions := range assignments {
		w, positions := w, positions
		eg.Go(func() error {
			out := nullPartial{
				dist:    make(map[string][]int, len(testable)),
				runtime: make(map[string]time.Duration, len(testable)),
			}
			for _, i := range positions {
				began := time.Now()
				gc, err := p.Source.Load(ctx, i)
				if err != nil {
					return fmt.Errorf("Permuted dataset %d: %w", i+1, err)
				}
				loading := time.Since(began)

				for _, r := range testable {
					key := r.Set.Key()
					began := time.Now()
					out.dist[key] = append(out.dist[key], mutation.T(r.Set, gc))
					out.runtime[key] += loading + time.Since(began)
				}
			}
			partials[w] = out
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	dist, runtimes := mergeNulls(partials)

	for i := range testable {
		r := &testable[i]
		key := r.Set.Key()
		d := dist[key]

		count := 0
		for _, v := range d {
			if v >= r.Observation.T {
				count++
			}
		}
		r.PValue = float64(count) / float64(np)
		if count == 0 {
			r.UpperBound = null.FloatFrom(1 / float64(np))
		}
		r.Runtime = runtimes[key]

		data := stats.LoadRawData(d)
		if data.Len() > 0 {
			if mean, err := data.Mean(); err == nil {
				r.NullMean = mean
			}
			if sd, err := data.StandardDeviation(); err == nil {
				r.NullSD = sd
			}
		}
	}

	ptol := p.PTOL
	if ptol <= 0 {
		ptol = DefaultPTOL
	}

	report, err := finish(Permutational, testable, ptol, p.FDRMethod)
	if err != nil {
		return nil, err
	}
	report.Untestable = untestable

	log.Info().
		Int("tested", report.Tested).
		Int("untestable", report.Untestable).
		Msg("Finished permutational test")

	return report, nil
}

// mergeNulls concatenates every worker's distribution for the same set and
// sums its runtimes.
func mergeNulls(partials []nullPartial) (map[string][]int, map[string]time.Duration) {
	dist := make(map[string][]int)
	runtimes := make(map[string]time.Duration)
	for _, p := range partials {
		for key, values := range p.dist {
			dist[key] = append(dist[key], values...)
		}
		for key, d := range p.runtime {
			runtimes[key] += d
		}
	}
	return dist, runtimes
}
