package exclusivity

import (
	"fmt"
	"math"
	"runtime"
	"sort"
	"time"

	"github.com/carbocation/wext/fdr"
	"github.com/carbocation/wext/mutation"
	"github.com/carbocation/wext/permute"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gopkg.in/guregu/null.v3"
)

// DefaultPTOL is how far outside [0, 1] a p-value may stray from rounding
// before it is rejected as invalid.
const DefaultPTOL = 1e-3

// SetResult is the outcome of testing one gene set.
type SetResult struct {
	Set         mutation.GeneSet
	Observation mutation.Observation

	// PValue is clamped into [0, 1] for accepted sets and left raw for
	// invalid ones.
	PValue float64
	QValue float64

	Runtime time.Duration

	// UpperBound is set by the permutational test when no permuted dataset
	// reached the observed statistic, in which case PValue is 0 and the true
	// p-value is only known to be below 1/np.
	UpperBound null.Float

	// NullMean and NullSD describe the permutational null of T.
	NullMean float64
	NullSD   float64
}

// Report collects the results of a batch of gene sets.
type Report struct {
	Mode Mode

	// Results holds accepted sets in ascending p-value order.
	Results []SetResult

	// Invalid holds sets whose p-value was NaN or out of range.
	Invalid []SetResult

	// Untestable counts sets skipped for having T <= Z or a gene without
	// exclusive alterations.
	Untestable int

	// Tested counts sets handed to the p-value computation.
	Tested int
}

// Tester evaluates gene sets under one of the analytic modes.
type Tester struct {
	Mode Mode

	// N is the number of patients.
	N int

	GeneToCases mutation.GeneCases

	// Weights maps a gene to its row of the weight matrix. Required by the
	// weighted modes for every gene in a tested set.
	Weights map[string][]float64

	// Primitive computes tail probabilities. Defaults to Tail.
	Primitive Primitive

	// Workers values below 1 mean runtime.NumCPU().
	Workers int

	// PTOL values of 0 or below mean DefaultPTOL.
	PTOL float64

	// FDRMethod defaults to Benjamini-Yekutieli.
	FDRMethod fdr.Method

	Logger *zerolog.Logger
}

func (t Tester) logger() *zerolog.Logger {
	if t.Logger == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return t.Logger
}

func (t Tester) validate(sets []mutation.GeneSet) error {
	switch t.Mode {
	case WeightedExact, WeightedSaddlepoint, UnweightedExact:
	case Permutational:
		return fmt.Errorf("The permutational mode needs permuted datasets; use PermutationalTester")
	default:
		return fmt.Errorf("Unknown test mode %v", t.Mode)
	}

	if t.N < 1 {
		return fmt.Errorf("Number of patients must be positive, got %d", t.N)
	}

	if !t.Mode.Weighted() {
		return nil
	}

	for _, set := range sets {
		for _, gene := range set {
			row, ok := t.Weights[gene]
			if !ok {
				return fmt.Errorf("Mode %v needs weights but gene %s has none", t.Mode, gene)
			}
			if len(row) != t.N {
				return fmt.Errorf("Gene %s has %d weights for %d patients", gene, len(row), t.N)
			}
		}
	}

	return nil
}

// TestSets computes p-values for every testable set, then q-values over the
// sets whose p-values are valid.
func (t Tester) TestSets(sets []mutation.GeneSet) (*Report, error) {
	if err := t.validate(sets); err != nil {
		return nil, err
	}

	primitive := t.Primitive
	if primitive == nil {
		primitive = Tail
	}
	workers := t.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}

	log := t.logger()
	log.Info().Stringer("mode", t.Mode).Int("sets", len(sets)).Int("workers", workers).Msg("Testing gene sets")

	assignments := permute.Partition(len(sets), workers)
	batches := make([][]SetResult, len(assignments))
	skipped := make([]int, len(assignments))

	var eg errgroup.Group
	for w, positions := range assignments {
		w, positions := w, positions
		eg.Go(func() error {
			for _, pos := range positions {
				set := sets[pos]
				obs := mutation.Observe(set, t.N, t.GeneToCases)
				if !obs.Testable() {
					skipped[w]++
					continue
				}

				began := time.Now()
				p := primitive(t.input(set, obs), t.Mode)
				batches[w] = append(batches[w], SetResult{
					Set:         set,
					Observation: obs,
					PValue:      p,
					Runtime:     time.Since(began),
				})
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var tested []SetResult
	untestable := 0
	for w := range batches {
		tested = append(tested, batches[w]...)
		untestable += skipped[w]
	}

	ptol := t.PTOL
	if ptol <= 0 {
		ptol = DefaultPTOL
	}

	report, err := finish(t.Mode, tested, ptol, t.FDRMethod)
	if err != nil {
		return nil, err
	}
	report.Untestable = untestable

	log.Info().
		Int("tested", report.Tested).
		Int("accepted", len(report.Results)).
		Int("invalid", len(report.Invalid)).
		Int("untestable", report.Untestable).
		Msg("Finished testing gene sets")

	return report, nil
}

func (t Tester) input(set mutation.GeneSet, obs mutation.Observation) Input {
	in := Input{
		T: obs.T,
		X: obs.X,
		N: t.N,
	}
	if t.Mode.Weighted() {
		in.Weights = make([][]float64, len(set))
		for g, gene := range set {
			in.Weights[g] = t.Weights[gene]
		}
	}
	return in
}

// finish splits off invalid p-values, clamps the rest into [0, 1], attaches
// q-values and sorts by p-value. A censored p-value enters the FDR step at
// its upper bound.
func finish(mode Mode, tested []SetResult, ptol float64, method fdr.Method) (*Report, error) {
	if method == "" {
		method = fdr.BenjaminiYekutieliMethod
	}

	report := &Report{
		Mode:   mode,
		Tested: len(tested),
	}

	for _, r := range tested {
		if math.IsNaN(r.PValue) || r.PValue < -ptol || r.PValue > 1+ptol {
			report.Invalid = append(report.Invalid, r)
			continue
		}
		r.PValue = math.Min(1, math.Max(0, r.PValue))
		report.Results = append(report.Results, r)
	}

	pvals := make([]float64, len(report.Results))
	for i, r := range report.Results {
		pvals[i] = r.PValue
		if r.UpperBound.Valid && r.UpperBound.Float64 > pvals[i] {
			pvals[i] = r.UpperBound.Float64
		}
	}
	qvals, err := fdr.Adjust(pvals, method)
	if err != nil {
		return nil, err
	}
	for i, q := range qvals {
		report.Results[i].QValue = q
	}

	sortResults(report.Results)
	sort.SliceStable(report.Invalid, func(i, j int) bool {
		return report.Invalid[i].Set.Key() < report.Invalid[j].Set.Key()
	})

	return report, nil
}

func sortResults(results []SetResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.PValue != b.PValue {
			return a.PValue < b.PValue
		}
		return a.Set.Key() < b.Set.Key()
	})
}
