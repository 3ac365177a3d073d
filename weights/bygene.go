package weights

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ByGene splits P into one row per gene. genes must list the row labels in
// matrix order. The rows share P's backing storage.
func ByGene(P *mat.Dense, genes []string) (map[string][]float64, error) {
	m, n := P.Dims()
	if m != len(genes) {
		return nil, fmt.Errorf("Weight matrix has %d rows but there are %d genes", m, len(genes))
	}

	out := make(map[string][]float64, m)
	for i, gene := range genes {
		out[gene] = P.RawRowView(i)[:n:n]
	}

	return out, nil
}
