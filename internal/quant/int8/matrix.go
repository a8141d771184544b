// Package int8 implements the per-column-scaled signed 8-bit weight matrix
// (C2) and the thin linear/embedding wrappers (C4) that present it as a
// linear operator or a row lookup.
package int8

import (
	"github.com/shardrunner/engine/internal/rpcerr"
	"github.com/shardrunner/engine/internal/tensor"
)

// Matrix is (scales[0..cols], values[0..rows*cols] as int8). Element (r,c)
// dequantizes to values[r*cols+c] * scales[c] / 127.
type Matrix struct {
	rows, cols int
	scales     []float32
	values     []int8
}

// NewMatrix constructs an INT8 matrix. len(values) must be a multiple of
// len(scales); rows is inferred as len(values)/len(scales).
func NewMatrix(scales []float32, values []int8) *Matrix {
	if len(scales) == 0 || len(values)%len(scales) != 0 {
		panic(rpcerr.Wrap(rpcerr.ErrInvariantViolation, "int8 matrix: len(values)=%d not a multiple of len(scales)=%d", len(values), len(scales)))
	}
	return &Matrix{
		rows:   len(values) / len(scales),
		cols:   len(scales),
		scales: scales,
		values: values,
	}
}

func (m *Matrix) Rows() int { return m.rows }
func (m *Matrix) Cols() int { return m.cols }

// Scales returns the per-column scale vector (length Cols()).
func (m *Matrix) Scales() []float32 { return m.scales }

// Values returns the raw row-major int8 backing store (length Rows()*Cols()).
func (m *Matrix) Values() []int8 { return m.values }

// GetRow returns the dequantized dense row r.
func (m *Matrix) GetRow(r int) []float32 {
	out := make([]float32, m.cols)
	base := r * m.cols
	for c := 0; c < m.cols; c++ {
		out[c] = float32(m.values[base+c]) * m.scales[c] / 127
	}
	return out
}

// Matmul multiplies the dense row x (length cols) against the matrix,
// returning a (1, rows) output. Dequantization is commuted out of the inner
// loop by scaling x element-wise by scales/127 first, so the hot loop over
// rows touches only int8 values and one float32 accumulator per row.
func (m *Matrix) Matmul(x []float32) *tensor.Matrix {
	if len(x) != m.cols {
		panic(rpcerr.Wrap(rpcerr.ErrInvariantViolation, "int8 matmul: input width %d != cols %d", len(x), m.cols))
	}

	scaled := make([]float32, m.cols)
	for c := range x {
		scaled[c] = x[c] * m.scales[c] / 127
	}

	out := make([]float32, m.rows)
	for r := 0; r < m.rows; r++ {
		base := r * m.cols
		var acc float32
		for c := 0; c < m.cols; c++ {
			acc += float32(m.values[base+c]) * scaled[c]
		}
		out[r] = acc
	}
	return tensor.NewRow(out)
}
