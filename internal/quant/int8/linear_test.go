package int8

import (
	"math"
	"testing"

	"github.com/shardrunner/engine/internal/tensor"
)

func approxEqual(a, b, tol float32) bool {
	return math.Abs(float64(a-b)) <= float64(tol)
}

func TestNewMatrixRejectsNonMultiple(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for values length not a multiple of scales length")
		}
	}()
	NewMatrix([]float32{1, 2}, []int8{1, 2, 3})
}

func TestGetRowDequantizes(t *testing.T) {
	// 2 cols with scales 127 and 254, so raw value 127 dequantizes to the
	// column's scale itself and -127 to its negation.
	m := NewMatrix([]float32{127, 254}, []int8{127, -127, 0, 127})
	if got, want := m.Rows(), 2; got != want {
		t.Fatalf("rows = %d, want %d", got, want)
	}

	row0 := m.GetRow(0)
	if !approxEqual(row0[0], 127, 1e-3) || !approxEqual(row0[1], -254, 1e-3) {
		t.Errorf("row0 = %v, want [127, -254]", row0)
	}

	row1 := m.GetRow(1)
	if !approxEqual(row1[0], 0, 1e-3) || !approxEqual(row1[1], 254, 1e-3) {
		t.Errorf("row1 = %v, want [0, 254]", row1)
	}
}

func TestLinearForwardMatchesManualDequant(t *testing.T) {
	// Single output row, 2 input columns, unit scales: forward should equal
	// the plain dot product of x with the dequantized row.
	l := NewLinear([]float32{127, 127}, []int8{10, 20})
	x := []float32{1, 2}

	got := l.Forward(tensor.NewRow(x))
	dequantRow := NewMatrix([]float32{127, 127}, []int8{10, 20}).GetRow(0)
	var want float32
	for i := range x {
		want += x[i] * dequantRow[i]
	}

	if !approxEqual(got.Row(0)[0], want, 1e-3) {
		t.Errorf("forward = %v, want %v", got.Row(0)[0], want)
	}
}

func TestLinearShape(t *testing.T) {
	l := NewLinear([]float32{1, 1, 1}, []int8{1, 2, 3, 4, 5, 6})
	rows, cols := l.Shape()
	if rows != 2 || cols != 3 {
		t.Errorf("shape = (%d,%d), want (2,3)", rows, cols)
	}
}

func TestEmbeddingGetRowMatchesMatrix(t *testing.T) {
	e := NewEmbedding([]float32{127, 127}, []int8{1, 2, 3, 4})
	m := NewMatrix([]float32{127, 127}, []int8{1, 2, 3, 4})
	for tok := 0; tok < 2; tok++ {
		got := e.GetRow(tok)
		want := m.GetRow(tok)
		for i := range want {
			if !approxEqual(got[i], want[i], 1e-6) {
				t.Errorf("token %d col %d = %v, want %v", tok, i, got[i], want[i])
			}
		}
	}
}
