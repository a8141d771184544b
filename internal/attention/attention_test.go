package attention

import (
	"testing"

	"github.com/shardrunner/engine/internal/kernel"
	"github.com/shardrunner/engine/internal/tensor"
)

// fixedLinear ignores its input and always returns the same row, letting the
// test drive cache growth and shape bookkeeping without any real projection
// math.
type fixedLinear struct {
	row []float32
}

func (f fixedLinear) Forward(x *tensor.Matrix) *tensor.Matrix { return tensor.NewRow(f.row) }
func (f fixedLinear) Shape() (rows, cols int)                 { return len(f.row), len(f.row) }

func TestForwardKeepsKVCacheRowsInSync(t *testing.T) {
	// dim=4, nHeads=2, nKVHeads=1, headDim=2: q width 4, k/v width 2.
	qProj := fixedLinear{row: []float32{1, 0, 0, 1}}
	kProj := fixedLinear{row: []float32{1, 0}}
	vProj := fixedLinear{row: []float32{0, 1}}
	oProj := fixedLinear{row: []float32{1, 1, 1, 1}}

	a := New(qProj, kProj, vProj, oProj, 2, 1, 2, kernel.RotaryConfig{HeadDim: 2, NHeads: 2, Theta: 10000})
	x := tensor.NewRow([]float32{0, 0, 0, 0})

	for i := 1; i <= 3; i++ {
		out := a.Forward(x)
		if a.NCachedTokens() != i {
			t.Fatalf("step %d: NCachedTokens = %d, want %d", i, a.NCachedTokens(), i)
		}
		if out.Rows() != 1 || out.Cols() != 4 {
			t.Fatalf("step %d: output shape = %v, want (1,4)", i, out.Shape())
		}
	}
}

func TestClearCacheResetsBothCaches(t *testing.T) {
	qProj := fixedLinear{row: []float32{1, 0}}
	kProj := fixedLinear{row: []float32{1, 0}}
	vProj := fixedLinear{row: []float32{0, 1}}
	oProj := fixedLinear{row: []float32{1, 1}}

	a := New(qProj, kProj, vProj, oProj, 1, 1, 2, kernel.RotaryConfig{HeadDim: 2, NHeads: 1, Theta: 10000})
	x := tensor.NewRow([]float32{0, 0})
	a.Forward(x)
	a.Forward(x)

	a.ClearCache()
	if a.NCachedTokens() != 0 {
		t.Errorf("NCachedTokens after ClearCache = %d, want 0", a.NCachedTokens())
	}
}
