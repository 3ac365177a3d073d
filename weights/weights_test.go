package weights

import (
	"bytes"
	"errors"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func tiedExample() (*mat.Dense, []int, []int) {
	P := mat.NewDense(3, 4, []float64{
		0.6, 0.4, 0.6, 0.4,
		0.5, 0.5, 0.5, 0.5,
		0.9, 0.1, 0.9, 0.1,
	})
	r := []int{2, 2, 2}
	s := []int{2, 1, 2, 1}

	return P, r, s
}

func TestPostprocessMarginalsAndTies(t *testing.T) {
	P, r, s := tiedExample()

	out, err := Postprocess(P, r, s, 10)
	if err != nil {
		t.Fatal(err)
	}

	if err := CheckMarginals(out, r, s, Tolerance(3, 4, 10)); err != nil {
		t.Fatal(err)
	}

	// All rows share r=2, so every column with s=2 gets one value and every
	// column with s=1 another.
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			if out.At(i, j) != out.At(0, j%2) {
				t.Fatalf("Cell (%d,%d)=%f differs from its marginal group %f", i, j, out.At(i, j), out.At(0, j%2))
			}
		}
	}
	if got := out.At(0, 0); got < 2.0/3-1e-12 || got > 2.0/3+1e-12 {
		t.Fatalf("Expected 2/3, got %f", got)
	}

	if P.At(0, 0) != 0.6 {
		t.Fatalf("Input was modified")
	}
}

func TestPostprocessPseudocount(t *testing.T) {
	// Patient 3 is never altered, so its column stays zero after averaging.
	P := mat.NewDense(2, 3, []float64{
		0.5, 0.5, 0,
		0.5, 0.5, 0,
	})

	out, err := Postprocess(P, []int{1, 1}, []int{1, 1, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if got := out.At(i, 2); got != 0.25 {
			t.Fatalf("Expected pseudocount 1/(2*2) at row %d, got %f", i, got)
		}
		if got := out.At(i, 0); got != 0.5 {
			t.Fatalf("Expected 0.5 at row %d, got %f", i, got)
		}
	}
}

func TestPostprocessIdempotent(t *testing.T) {
	P, r, s := tiedExample()

	once, err := Postprocess(P, r, s, 100)
	if err != nil {
		t.Fatal(err)
	}
	twice, err := Postprocess(once, r, s, 100)
	if err != nil {
		t.Fatal(err)
	}

	if !mat.Equal(once, twice) {
		t.Fatalf("Second pass changed the matrix:\n%v\n%v", mat.Formatted(once), mat.Formatted(twice))
	}
}

func TestPostprocessMismatch(t *testing.T) {
	P := mat.NewDense(2, 2, []float64{
		1, 0,
		0, 1,
	})

	_, err := Postprocess(P, []int{1, 2}, []int{1, 1}, 10)
	if !errors.Is(err, ErrMarginMismatch) {
		t.Fatalf("Expected ErrMarginMismatch, got %v", err)
	}
}

func TestNPYRoundTrip(t *testing.T) {
	P := mat.NewDense(2, 3, []float64{
		0.1, 0.2, 0.3,
		0.4, 0.5, 0.6,
	})

	var buf bytes.Buffer
	if err := WriteNPY(&buf, P); err != nil {
		t.Fatal(err)
	}

	got, err := ReadNPY(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !mat.Equal(P, got) {
		t.Fatalf("Got\n%v", mat.Formatted(got))
	}
}

func TestByGene(t *testing.T) {
	P, _, _ := tiedExample()

	rows, err := ByGene(P, []string{"A", "B", "C"})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows["C"]) != 4 || rows["C"][1] != 0.1 || rows["A"][0] != 0.6 {
		t.Fatalf("Unexpected rows %v", rows)
	}

	if _, err := ByGene(P, []string{"A"}); err == nil {
		t.Fatalf("Expected an error for a short gene list")
	}
}
