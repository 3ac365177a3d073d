package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/carbocation/wext/exclusivity"
	"github.com/carbocation/wext/mutation"
	"gopkg.in/guregu/null.v3"
)

func TestWriteResults(t *testing.T) {
	report := &exclusivity.Report{
		Mode: exclusivity.Permutational,
		Results: []exclusivity.SetResult{
			{
				Set:         mutation.NewGeneSet("B", "A"),
				Observation: mutation.Observation{X: []int{2, 2}, T: 2, Z: 1, Table: []int{5, 1, 1, 1}},
				PValue:      0,
				QValue:      0,
				Runtime:     1500 * time.Millisecond,
				UpperBound:  null.FloatFrom(0.001),
			},
		},
	}

	var buf bytes.Buffer
	if err := writeResults(&buf, report); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected a header and one row, got %q", buf.String())
	}
	if lines[0] != "genes\tT\tZ\ttable\tpvalue\tqvalue\truntime\tpvalue_upper_bound" {
		t.Fatalf("Unexpected header %q", lines[0])
	}
	if lines[1] != "A,B\t2\t1\t5,1,1,1\t0\t0\t1.5\t0.001" {
		t.Fatalf("Unexpected row %q", lines[1])
	}
}

func TestNullFloatFormatter(t *testing.T) {
	if got := NullFloatFormatter(null.Float{}); got != "" {
		t.Fatalf("Expected an empty string, got %q", got)
	}
	if got := NullFloatFormatter(null.FloatFrom(0.25)); got != "0.25" {
		t.Fatalf("Expected 0.25, got %q", got)
	}
}

func TestFlagSlice(t *testing.T) {
	var f flagSlice
	f.Set("a")
	f.Set("b")
	if f.String() != "a,b" || len(f) != 2 {
		t.Fatalf("Unexpected flag slice %v", f)
	}
}
