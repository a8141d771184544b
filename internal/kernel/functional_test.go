package kernel

import (
	"math"
	"testing"

	"github.com/shardrunner/engine/internal/tensor"
)

func approxEqual(a, b, tol float32) bool {
	return math.Abs(float64(a-b)) <= float64(tol)
}

func TestRMSNormExample(t *testing.T) {
	x := []float32{1, 2, 3, 4}
	w := []float32{1, 1, 1, 1}
	want := []float32{0.365, 0.730, 1.095, 1.461}

	got := RMSNorm(x, w, 0)
	for i := range want {
		if !approxEqual(got[i], want[i], 1e-3) {
			t.Errorf("out[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSiLUExample(t *testing.T) {
	x := []float32{0, 1, -1}
	want := []float32{0, 0.7311, -0.2689}

	got := SiLU(x)
	for i := range want {
		if !approxEqual(got[i], want[i], 1e-4) {
			t.Errorf("out[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSoftmaxRowSumsToOne(t *testing.T) {
	got := SoftmaxRow([]float32{1, 2, 3, 4})
	var sum float32
	for _, v := range got {
		sum += v
	}
	if !approxEqual(sum, 1, 1e-5) {
		t.Errorf("sum = %v, want 1", sum)
	}
	for i := 1; i < len(got); i++ {
		if got[i] <= got[i-1] {
			t.Errorf("expected strictly increasing probabilities for strictly increasing logits, got %v", got)
		}
	}
}

func TestArgMaxArgMin(t *testing.T) {
	x := []float32{3, 1, 4, 1, 5, 9, 2, 6}
	if got := ArgMax(x); got != 5 {
		t.Errorf("ArgMax = %d, want 5", got)
	}
	if got := ArgMin(x); got != 1 {
		t.Errorf("ArgMin = %d, want 1", got)
	}
}

func TestApplyRotaryAtOrigin(t *testing.T) {
	x := tensor.New(1, 4, []float32{1, 0, 0, 0})
	got := ApplyRotary(x, RotaryConfig{HeadDim: 4, NHeads: 1, Theta: 10000}, 0)
	want := []float32{1, 0, 0, 0}
	for i := range want {
		if !approxEqual(got.Row(0)[i], want[i], 1e-4) {
			t.Errorf("out[%d] = %v, want %v", i, got.Row(0)[i], want[i])
		}
	}
}

func TestApplyRotaryAtOffsetOne(t *testing.T) {
	x := tensor.New(1, 4, []float32{1, 0, 0, 0})
	got := ApplyRotary(x, RotaryConfig{HeadDim: 4, NHeads: 1, Theta: 10000}, 1)
	want := []float32{float32(math.Cos(1)), 0, float32(math.Sin(1)), 0}
	for i := range want {
		if !approxEqual(got.Row(0)[i], want[i], 1e-4) {
			t.Errorf("out[%d] = %v, want %v", i, got.Row(0)[i], want[i])
		}
	}
}
