package aqlm

import (
	"math"
	"testing"

	"github.com/shardrunner/engine/internal/tensor"
)

func approxEqual(a, b, tol float32) bool {
	return math.Abs(float64(a-b)) <= float64(tol)
}

// singleEntryCodebooks builds the full (2*256*8) codebook buffer with exactly
// two non-zero codewords: bank 0 entry 0 and bank 1 entry 0, each a scaled
// unit vector along the first axis so the dot product with a one-hot input
// row reduces to a known scalar.
func singleEntryCodebooks(bank0Val, bank1Val float32) []float32 {
	buf := make([]float32, numCodebooks*codebookSize*codewordDim)
	buf[0] = bank0Val
	buf[(1*codebookSize+0)*codewordDim] = bank1Val
	return buf
}

func TestForwardSingleGroupSingleOutput(t *testing.T) {
	codebooks := singleEntryCodebooks(3, 5)
	scales := []float32{2}
	codes := []uint8{0, 0} // g=0: bank0->entry0, bank1->entry0

	l := NewLinear(codebooks, scales, codes, 1, 1)
	x := tensor.NewRow([]float32{1, 0, 0, 0, 0, 0, 0, 0})

	got := l.Forward(x)
	want := float32(16) // (3+5) * scale 2
	if !approxEqual(got.Row(0)[0], want, 1e-4) {
		t.Errorf("forward = %v, want %v", got.Row(0)[0], want)
	}
}

func TestShapeMatchesDeclaredDims(t *testing.T) {
	codebooks := singleEntryCodebooks(1, 1)
	l := NewLinear(codebooks, []float32{1, 1}, make([]uint8, 2*numCodebooks*2), 2, 2)
	rows, cols := l.Shape()
	if rows != 2 || cols != 16 {
		t.Errorf("shape = (%d,%d), want (2,16)", rows, cols)
	}
}

func TestNewLinearRejectsMismatchedLengths(t *testing.T) {
	tests := []struct {
		name       string
		codebooks  []float32
		scales     []float32
		codes      []uint8
		outDim     int
		inGroupDim int
	}{
		{"bad codebooks", make([]float32, 10), []float32{1}, []uint8{0, 0}, 1, 1},
		{"bad scales", singleEntryCodebooks(1, 1), []float32{1, 2}, []uint8{0, 0}, 1, 1},
		{"bad codes", singleEntryCodebooks(1, 1), []float32{1}, []uint8{0}, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic for malformed constructor arguments")
				}
			}()
			NewLinear(tt.codebooks, tt.scales, tt.codes, tt.outDim, tt.inGroupDim)
		})
	}
}
