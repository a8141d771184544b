// Package tensor implements the row-major dense matrix view shared by every
// operator in the engine: construction from owned or borrowed backing,
// reshape, row/sample access, transpose, element-wise ops, and matmul.
//
// Operations that allocate a result never alias it with their inputs;
// Reshape and Row are the exceptions and return views over the same
// backing data. Shape mismatches are
// programming errors and panic with rpcerr.ErrInvariantViolation rather
// than being returned, matching the "INVARIANT_VIOLATION" failure mode
// described for this layer: callers are expected to maintain shapes
// correctly, not to recover from violations mid-operator.
package tensor

import (
	"fmt"

	"github.com/shardrunner/engine/internal/rpcerr"
	"gonum.org/v1/gonum/blas/blas32"
)

// Shape is a (rows, cols) pair.
type Shape struct {
	Rows, Cols int
}

// Matrix is a row-major view over a float32 backing slice. Data may be
// owned by the Matrix or borrowed from a caller; Matrix never mutates
// borrowed data in place through operations that "return" a new matrix.
type Matrix struct {
	shape Shape
	data  []float32
}

func invariant(cond bool, format string, args ...any) {
	if !cond {
		panic(rpcerr.Wrap(rpcerr.ErrInvariantViolation, format, args...))
	}
}

// New constructs a Matrix viewing data (owned or borrowed by the caller) as
// shape. len(data) must equal rows*cols.
func New(rows, cols int, data []float32) *Matrix {
	invariant(len(data) == rows*cols, "matrix: len(data)=%d != rows*cols=%d*%d", len(data), rows, cols)
	return &Matrix{shape: Shape{rows, cols}, data: data}
}

// NewRow constructs a (1, len(data)) matrix, the shape every operator input
// in this engine takes.
func NewRow(data []float32) *Matrix {
	return New(1, len(data), data)
}

// Zeros allocates a new owned (rows, cols) matrix of zeros.
func Zeros(rows, cols int) *Matrix {
	return New(rows, cols, make([]float32, rows*cols))
}

func (m *Matrix) Shape() Shape { return m.shape }
func (m *Matrix) Rows() int    { return m.shape.Rows }
func (m *Matrix) Cols() int    { return m.shape.Cols }
func (m *Matrix) Data() []float32 { return m.data }

// Row returns the backing slice for row r, a borrowed view (no copy).
func (m *Matrix) Row(r int) []float32 {
	invariant(r >= 0 && r < m.shape.Rows, "matrix: row %d out of range [0,%d)", r, m.shape.Rows)
	start := r * m.shape.Cols
	return m.data[start : start+m.shape.Cols]
}

// Reshape returns a new view over the same backing data with a different
// shape; element count must be preserved.
func (m *Matrix) Reshape(rows, cols int) *Matrix {
	invariant(rows*cols == len(m.data), "matrix: reshape %dx%d does not preserve %d elements", rows, cols, len(m.data))
	return &Matrix{shape: Shape{rows, cols}, data: m.data}
}

// Sample pulls a sub-matrix of the given shape by iterating rowStride
// elements per output row, starting colOffset elements into each stride
// window, and taking shape.Cols contiguous elements from there. This is
// used to pull one attention head's columns out of an interleaved
// multi-head buffer without copying the whole buffer up front.
func (m *Matrix) Sample(shape Shape, rowStride, colOffset int) *Matrix {
	out := Zeros(shape.Rows, shape.Cols)
	for r := 0; r < shape.Rows; r++ {
		base := r*rowStride + colOffset
		invariant(base+shape.Cols <= len(m.data), "matrix: sample row %d out of bounds", r)
		copy(out.Row(r), m.data[base:base+shape.Cols])
	}
	return out
}

// Transpose returns a new owned matrix that is the transpose of m.
func (m *Matrix) Transpose() *Matrix {
	out := Zeros(m.shape.Cols, m.shape.Rows)
	for r := 0; r < m.shape.Rows; r++ {
		for c := 0; c < m.shape.Cols; c++ {
			out.data[c*out.shape.Cols+r] = m.data[r*m.shape.Cols+c]
		}
	}
	return out
}

// BinaryOp applies f element-wise to (m, other), requiring identical shapes.
func (m *Matrix) BinaryOp(other *Matrix, f func(a, b float32) float32) *Matrix {
	invariant(m.shape == other.shape, "matrix: binary op shape mismatch %v vs %v", m.shape, other.shape)
	out := Zeros(m.shape.Rows, m.shape.Cols)
	for i := range m.data {
		out.data[i] = f(m.data[i], other.data[i])
	}
	return out
}

// BroadcastRow applies f element-wise between every row of m and the single
// row, which must have the same width as m.
func (m *Matrix) BroadcastRow(row []float32, f func(a, b float32) float32) *Matrix {
	invariant(len(row) == m.shape.Cols, "matrix: broadcast row width %d != cols %d", len(row), m.shape.Cols)
	out := Zeros(m.shape.Rows, m.shape.Cols)
	for r := 0; r < m.shape.Rows; r++ {
		src := m.Row(r)
		dst := out.Row(r)
		for c := range src {
			dst[c] = f(src[c], row[c])
		}
	}
	return out
}

// MapIndexed applies f(r, c, value) element-wise, returning a new matrix.
func (m *Matrix) MapIndexed(f func(r, c int, v float32) float32) *Matrix {
	out := Zeros(m.shape.Rows, m.shape.Cols)
	for r := 0; r < m.shape.Rows; r++ {
		for c := 0; c < m.shape.Cols; c++ {
			out.data[r*m.shape.Cols+c] = f(r, c, m.data[r*m.shape.Cols+c])
		}
	}
	return out
}

// EachRow calls f once per row with a mutable view onto a fresh output
// matrix seeded from m's row, letting callers write row-local kernels (e.g.
// softmax) without hand-rolling the row bookkeeping.
func (m *Matrix) EachRow(f func(row []float32)) *Matrix {
	out := Zeros(m.shape.Rows, m.shape.Cols)
	copy(out.data, m.data)
	for r := 0; r < out.shape.Rows; r++ {
		f(out.Row(r))
	}
	return out
}

// Matmul computes A(m,k) . B^T where b is passed in its natural (n,k) shape
// and is transposed implicitly, producing an (m,n) result. The contraction
// is delegated to gonum's float32 BLAS binding (blas32.Implementation().Sgemm) rather than a
// hand-rolled triple loop: this is the "external BLAS" the matrix layer is
// permitted, and expected, to reuse.
func (m *Matrix) Matmul(b *Matrix) *Matrix {
	invariant(m.shape.Cols == b.shape.Cols, "matrix: matmul inner dim mismatch %d vs %d", m.shape.Cols, b.shape.Cols)

	a := blas32.General{Rows: m.shape.Rows, Cols: m.shape.Cols, Stride: m.shape.Cols, Data: m.data}
	bg := blas32.General{Rows: b.shape.Rows, Cols: b.shape.Cols, Stride: b.shape.Cols, Data: b.data}
	out := blas32.General{Rows: m.shape.Rows, Cols: b.shape.Rows, Stride: b.shape.Rows, Data: make([]float32, m.shape.Rows*b.shape.Rows)}

	blas32.Implementation().Sgemm(blas32.NoTrans, blas32.Trans, m.shape.Rows, b.shape.Rows, m.shape.Cols, 1, a.Data, a.Stride, bg.Data, bg.Stride, 0, out.Data, out.Stride)

	return New(out.Rows, out.Cols, out.Data)
}

// CatRows concatenates one or more 1-row matrices along the feature axis
// into a single 1-row matrix. The engine's own single-row contract (see
// Attention and the coordinator's parallel linears) is the only shape this is exercised with; a
// theoretical multi-row contract is described by the original design but
// deliberately left unimplemented here (see DESIGN.md Open Question i).
func CatRows(shards ...*Matrix) *Matrix {
	invariant(len(shards) > 0, "matrix: cat_row requires at least one shard")
	total := 0
	for _, s := range shards {
		invariant(s.shape.Rows == 1, "matrix: cat_row only supports 1-row shards, got %dx%d", s.shape.Rows, s.shape.Cols)
		total += s.shape.Cols
	}
	out := Zeros(1, total)
	offset := 0
	for _, s := range shards {
		copy(out.data[offset:offset+s.shape.Cols], s.data)
		offset += s.shape.Cols
	}
	return out
}

func (s Shape) String() string {
	return fmt.Sprintf("(%d,%d)", s.Rows, s.Cols)
}
