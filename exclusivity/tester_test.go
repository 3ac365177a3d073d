package exclusivity

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/carbocation/wext/fdr"
	"github.com/carbocation/wext/mutation"
	"github.com/carbocation/wext/permute"
)

// exampleCases has ten patients and genes of distinct sizes. E duplicates A,
// so {A,E} has no exclusive alterations.
func exampleCases() mutation.GeneCases {
	return mutation.GeneCasesFromLists(map[string][]string{
		"A": {"p1", "p2", "p3"},
		"B": {"p4", "p5", "p6", "p7"},
		"C": {"p8", "p9"},
		"D": {"p10"},
		"E": {"p1", "p2", "p3"},
	})
}

func exampleSets() []mutation.GeneSet {
	return []mutation.GeneSet{
		mutation.NewGeneSet("A", "B"),
		mutation.NewGeneSet("A", "C"),
		mutation.NewGeneSet("B", "C"),
		mutation.NewGeneSet("A", "D"),
		mutation.NewGeneSet("A", "E"),
	}
}

func TestTesterInvalidAndUntestable(t *testing.T) {
	// Keyed by the margins, which differ between the example sets.
	fixed := map[string]float64{
		"[3 4] 7": 0.01,
		"[3 2] 5": math.NaN(),
		"[4 2] 6": 1.0005,
		"[3 1] 4": 1.01,
	}

	tester := Tester{
		Mode:        UnweightedExact,
		N:           10,
		GeneToCases: exampleCases(),
		Workers:     3,
		Primitive: func(in Input, mode Mode) float64 {
			if in.N != 10 || mode != UnweightedExact {
				return math.Inf(1)
			}
			return fixed[fmt.Sprintf("%v %d", in.X, in.T)]
		},
	}

	report, err := tester.TestSets(exampleSets())
	if err != nil {
		t.Fatal(err)
	}

	if report.Tested != 4 || report.Untestable != 1 {
		t.Fatalf("Expected 4 tested and 1 untestable, got %d and %d", report.Tested, report.Untestable)
	}

	if len(report.Invalid) != 2 || report.Invalid[0].Set.Key() != "A,C" || report.Invalid[1].Set.Key() != "A,D" {
		t.Fatalf("Unexpected invalid sets %+v", report.Invalid)
	}

	if len(report.Results) != 2 {
		t.Fatalf("Expected 2 accepted sets, got %+v", report.Results)
	}

	first, second := report.Results[0], report.Results[1]
	if first.Set.Key() != "A,B" || first.PValue != 0.01 || math.Abs(first.QValue-0.03) > 1e-12 {
		t.Fatalf("Unexpected first result %+v", first)
	}
	if second.Set.Key() != "B,C" || second.PValue != 1 || second.QValue != 1 {
		t.Fatalf("Expected a clamped p-value of 1, got %+v", second)
	}
}

func TestTesterWorkerCountInvariant(t *testing.T) {
	sets := exampleSets()
	var reports []*Report
	for _, workers := range []int{1, 4} {
		report, err := Tester{Mode: UnweightedExact, N: 10, GeneToCases: exampleCases(), Workers: workers}.TestSets(sets)
		if err != nil {
			t.Fatal(err)
		}
		reports = append(reports, report)
	}

	if len(reports[0].Results) != len(reports[1].Results) {
		t.Fatalf("Result counts differ between worker counts")
	}
	for i := range reports[0].Results {
		a, b := reports[0].Results[i], reports[1].Results[i]
		if a.Set.Key() != b.Set.Key() || a.PValue != b.PValue || a.QValue != b.QValue {
			t.Fatalf("Results differ: %+v vs %+v", a, b)
		}
	}
}

func TestTesterWeighted(t *testing.T) {
	gc := exampleCases()
	patients := []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8", "p9", "p10"}

	weights := make(map[string][]float64)
	for g, gene := range []string{"A", "B", "C", "D", "E"} {
		row := make([]float64, len(patients))
		for j := range row {
			row[j] = 0.1 + 0.05*float64((j+g)%5)
		}
		weights[gene] = row
	}

	set := mutation.NewGeneSet("A", "B")
	report, err := Tester{Mode: WeightedExact, N: 10, GeneToCases: gc, Weights: weights}.TestSets([]mutation.GeneSet{set})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Results) != 1 {
		t.Fatalf("Expected one result, got %+v", report)
	}

	expected := WeightedExactTail(7, []int{3, 4}, [][]float64{weights["A"], weights["B"]})
	if got := report.Results[0].PValue; math.Abs(got-expected) > 1e-15 {
		t.Fatalf("Expected %v, got %v", expected, got)
	}
}

func TestTesterConfigurationErrors(t *testing.T) {
	sets := exampleSets()

	if _, err := (Tester{Mode: WeightedSaddlepoint, N: 10, GeneToCases: exampleCases()}).TestSets(sets); err == nil {
		t.Fatalf("Expected an error for missing weights")
	}
	if _, err := (Tester{Mode: Permutational, N: 10, GeneToCases: exampleCases()}).TestSets(sets); err == nil {
		t.Fatalf("Expected an error for the permutational mode")
	}
	if _, err := (Tester{Mode: Mode(99), N: 10, GeneToCases: exampleCases()}).TestSets(sets); err == nil {
		t.Fatalf("Expected an error for an unknown mode")
	}
}

// permutedExample alternates between two permuted datasets. In both, A and B
// coincide; C and D are disjoint in even permutations only.
func permutedExample(np int) MemorySource {
	disjoint := mutation.GeneCasesFromLists(map[string][]string{
		"A": {"p1", "p2", "p3"},
		"B": {"p1", "p2", "p3"},
		"C": {"p8", "p9"},
		"D": {"p10"},
	})
	overlapping := mutation.GeneCasesFromLists(map[string][]string{
		"A": {"p1", "p2", "p3"},
		"B": {"p1", "p2", "p3"},
		"C": {"p8", "p9"},
		"D": {"p8"},
	})

	out := make(MemorySource, np)
	for i := range out {
		if i%2 == 0 {
			out[i] = disjoint
		} else {
			out[i] = overlapping
		}
	}
	return out
}

func TestPermutationalCensoring(t *testing.T) {
	sets := []mutation.GeneSet{mutation.NewGeneSet("A", "B"), mutation.NewGeneSet("C", "D")}

	// The censored set enters the FDR step at 1/1000.
	wantQ := fdr.BenjaminiYekutieli([]float64{0.001, 0.5})

	for _, cs := range []struct {
		workers int
		ptol    float64
	}{
		{1, 0},
		{3, 0},
		{2, 1e-9},
	} {
		report, err := PermutationalTester{
			N:           10,
			GeneToCases: exampleCases(),
			Source:      permutedExample(1000),
			Workers:     cs.workers,
			PTOL:        cs.ptol,
		}.TestSets(context.Background(), sets)
		if err != nil {
			t.Fatal(err)
		}

		if len(report.Results) != 2 || report.Mode != Permutational {
			t.Fatalf("Unexpected report %+v", report)
		}

		ab, cd := report.Results[0], report.Results[1]
		if ab.Set.Key() != "A,B" || ab.PValue != 0 || !ab.UpperBound.Valid || ab.UpperBound.Float64 != 0.001 {
			t.Fatalf("Expected a censored p-value below 1/1000, got %+v", ab)
		}
		if ab.QValue != wantQ[0] || ab.QValue < 0.003-1e-12 {
			t.Fatalf("Expected the censored q-value %v, got %v", wantQ[0], ab.QValue)
		}
		if cd.QValue != wantQ[1] {
			t.Fatalf("Expected q=%v for {C,D}, got %v", wantQ[1], cd.QValue)
		}

		// Observed T for {C,D} is 3; even permutations reach it.
		if cd.Set.Key() != "C,D" || cd.PValue != 0.5 || cd.UpperBound.Valid {
			t.Fatalf("Expected p=0.5, got %+v", cd)
		}
		if cd.NullMean != 2 || cd.NullSD != 1 {
			t.Fatalf("Expected null mean 2 and sd 1, got %v and %v", cd.NullMean, cd.NullSD)
		}
	}
}

func TestPermutationalFromFiles(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	var datasets []permute.Dataset
	for i, gc := range permutedExample(4) {
		d := permute.Dataset{Index: i + 1, GeneToCases: gc.Lists()}
		if err := permute.WriteDataset(ctx, nil, dir, d); err != nil {
			t.Fatal(err)
		}
		datasets = append(datasets, d)
	}

	listing, err := permute.ListDatasets(ctx, nil, dir)
	if err != nil {
		t.Fatal(err)
	}
	groups := permute.GroupDatasets(listing)
	if len(groups) != 4 || groups[0][0] != filepath.Join(dir, permute.FileName(1)) {
		t.Fatalf("Unexpected groups %v", groups)
	}

	sets := []mutation.GeneSet{mutation.NewGeneSet("C", "D")}
	fromFiles, err := PermutationalTester{N: 10, GeneToCases: exampleCases(), Source: FileSource{Groups: groups}, Workers: 2}.TestSets(ctx, sets)
	if err != nil {
		t.Fatal(err)
	}
	inMemory, err := PermutationalTester{N: 10, GeneToCases: exampleCases(), Source: DatasetSource(datasets), Workers: 2}.TestSets(ctx, sets)
	if err != nil {
		t.Fatal(err)
	}

	if fromFiles.Results[0].PValue != 0.5 || inMemory.Results[0].PValue != 0.5 {
		t.Fatalf("Expected p=0.5 from both sources, got %v and %v", fromFiles.Results[0].PValue, inMemory.Results[0].PValue)
	}
}

func TestPermutationalNeedsDatasets(t *testing.T) {
	if _, err := (PermutationalTester{N: 10, GeneToCases: exampleCases()}).TestSets(context.Background(), exampleSets()); err == nil {
		t.Fatalf("Expected an error without permuted datasets")
	}
}
