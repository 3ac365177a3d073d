package weights

import (
	"bufio"
	"fmt"
	"io"

	"github.com/carbocation/pfx"
	"github.com/kshedden/gonpy"
	"gonum.org/v1/gonum/mat"
)

// nopCloser lets gonpy close its writer without closing the caller's.
type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// WriteNPY writes P as a row-major float64 .npy array. Rows are genes and
// columns are patients, both in input order.
func WriteNPY(w io.Writer, P mat.Matrix) error {
	m, n := P.Dims()
	data := make([]float64, 0, m*n)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			data = append(data, P.At(i, j))
		}
	}

	bufw := bufio.NewWriter(w)
	npw, err := gonpy.NewWriter(nopCloser{bufw})
	if err != nil {
		return pfx.Err(err)
	}
	npw.Shape = []int{m, n}
	if err := npw.WriteFloat64(data); err != nil {
		return pfx.Err(err)
	}

	if err := bufw.Flush(); err != nil {
		return pfx.Err(err)
	}

	return nil
}

// ReadNPY reads a two-dimensional float64 .npy array.
func ReadNPY(r io.Reader) (*mat.Dense, error) {
	npr, err := gonpy.NewReader(r)
	if err != nil {
		return nil, pfx.Err(err)
	}
	if len(npr.Shape) != 2 {
		return nil, fmt.Errorf("Expected a 2 dimensional array, got shape %v", npr.Shape)
	}

	data, err := npr.GetFloat64()
	if err != nil {
		return nil, pfx.Err(err)
	}

	m, n := npr.Shape[0], npr.Shape[1]
	if npr.ColumnMajor {
		return mat.DenseCopyOf(mat.NewDense(n, m, data).T()), nil
	}

	return mat.NewDense(m, n, data), nil
}
