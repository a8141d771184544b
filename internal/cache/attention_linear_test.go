package cache

import (
	"testing"

	"github.com/shardrunner/engine/internal/tensor"
)

// constLinear always returns the same row, regardless of input, so cache
// growth can be verified independently of any real projection math.
type constLinear struct {
	row []float32
}

func (c constLinear) Forward(x *tensor.Matrix) *tensor.Matrix { return tensor.NewRow(c.row) }
func (c constLinear) Shape() (rows, cols int)                 { return len(c.row), len(c.row) }

func TestForwardGrowsCacheByOneRowPerCall(t *testing.T) {
	a := New(constLinear{row: []float32{1, 2, 3}}, nil)
	x := tensor.NewRow([]float32{0, 0, 0})

	for i := 1; i <= 4; i++ {
		out := a.Forward(x)
		if out.Rows() != i {
			t.Fatalf("call %d: cached rows = %d, want %d", i, out.Rows(), i)
		}
		if a.NCachedTokens() != i {
			t.Fatalf("call %d: NCachedTokens = %d, want %d", i, a.NCachedTokens(), i)
		}
		for _, v := range out.Row(i - 1) {
			if v != 1 && v != 2 && v != 3 {
				t.Errorf("call %d: unexpected row contents %v", i, out.Row(i-1))
			}
		}
	}
}

func TestClearEmptiesCache(t *testing.T) {
	a := New(constLinear{row: []float32{1, 2}}, nil)
	x := tensor.NewRow([]float32{0, 0})
	a.Forward(x)
	a.Forward(x)
	if a.NCachedTokens() != 2 {
		t.Fatalf("NCachedTokens = %d, want 2", a.NCachedTokens())
	}
	a.Clear()
	if a.NCachedTokens() != 0 {
		t.Errorf("NCachedTokens after Clear = %d, want 0", a.NCachedTokens())
	}
}
