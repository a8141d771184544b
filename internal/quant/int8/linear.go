package int8

import "github.com/shardrunner/engine/internal/tensor"

// Linear presents a Matrix as a linear operator: forward(x) = x . W^T,
// already dequantized via Matmul. shape() is (rows, cols) = (out_dim, in_dim).
type Linear struct {
	m *Matrix
}

func NewLinear(scales []float32, values []int8) *Linear {
	return &Linear{m: NewMatrix(scales, values)}
}

func (l *Linear) Shape() (rows, cols int) { return l.m.Rows(), l.m.Cols() }

// Scales returns the per-column scale vector backing this operator.
func (l *Linear) Scales() []float32 { return l.m.Scales() }

// Values returns the raw row-major int8 backing store.
func (l *Linear) Values() []int8 { return l.m.Values() }

// Forward requires a 1-row input matching Shape().cols and returns a
// (1, rows) matrix.
func (l *Linear) Forward(x *tensor.Matrix) *tensor.Matrix {
	return l.m.Matmul(x.Row(0))
}

// Embedding is a row lookup backed by an INT8 matrix: token ids index rows.
type Embedding struct {
	m *Matrix
}

func NewEmbedding(scales []float32, values []int8) *Embedding {
	return &Embedding{m: NewMatrix(scales, values)}
}

// GetRow returns the dequantized embedding row for tokenID.
func (e *Embedding) GetRow(tokenID int) []float32 {
	return e.m.GetRow(tokenID)
}

func (e *Embedding) Dim() int { return e.m.Cols() }
