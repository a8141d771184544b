package mlp

import (
	"math"
	"testing"

	"github.com/shardrunner/engine/internal/tensor"
)

func approxEqual(a, b, tol float32) bool {
	return math.Abs(float64(a-b)) <= float64(tol)
}

// fixedLinear ignores its input and always returns the same row.
type fixedLinear struct {
	row []float32
}

func (f fixedLinear) Forward(x *tensor.Matrix) *tensor.Matrix { return tensor.NewRow(f.row) }
func (f fixedLinear) Shape() (rows, cols int)                 { return len(f.row), len(f.row) }

// passthroughLinear returns its input unchanged, for checking that down's
// input really is silu(gate)*up.
type passthroughLinear struct{}

func (passthroughLinear) Forward(x *tensor.Matrix) *tensor.Matrix { return x }
func (passthroughLinear) Shape() (rows, cols int)                 { return 2, 2 }

func TestForwardAppliesSiluGateTimesUp(t *testing.T) {
	gate := fixedLinear{row: []float32{0, 1}}
	up := fixedLinear{row: []float32{2, 3}}

	m := New(gate, up, passthroughLinear{})
	out := m.Forward(tensor.NewRow([]float32{0, 0}))

	want := []float32{0 * 2, 0.7311 * 3}
	for i := range want {
		if !approxEqual(out.Row(0)[i], want[i], 1e-3) {
			t.Errorf("out[%d] = %v, want %v", i, out.Row(0)[i], want[i])
		}
	}
}
