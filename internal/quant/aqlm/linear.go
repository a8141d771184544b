// Package aqlm implements the two-codebook (2x256x8) additive-quantization
// linear operator (C3): a per-input lookup table followed by a
// gather-and-accumulate kernel over packed 8-bit code indices.
package aqlm

import (
	"github.com/shardrunner/engine/internal/rpcerr"
	"github.com/shardrunner/engine/internal/tensor"
)

const (
	numCodebooks   = 2
	codebookSize   = 256
	codewordDim    = 8
)

// Linear holds one AQLM-quantized weight matrix of shape (outDim, inDim)
// where inDim = inGroupDim * codewordDim.
//
// codes is indexed codes[(g*2+b)*outDim + o] -- outer axis input-group,
// middle axis codebook, inner axis output. This layout is load-bearing for
// the kernel's access pattern and must not be reordered.
type Linear struct {
	outDim     int
	inGroupDim int
	codebooks  []float32 // [2*256*8]
	scales     []float32 // [outDim]
	codes      []uint8   // [inGroupDim*2*outDim]
}

// NewLinear constructs an AQLM linear operator. Panics with
// ErrInvariantViolation if the slice lengths disagree with the declared shape.
func NewLinear(codebooks, scales []float32, codes []uint8, outDim, inGroupDim int) *Linear {
	if len(codebooks) != numCodebooks*codebookSize*codewordDim {
		panic(rpcerr.Wrap(rpcerr.ErrInvariantViolation, "aqlm: codebooks length %d != %d", len(codebooks), numCodebooks*codebookSize*codewordDim))
	}
	if len(scales) != outDim {
		panic(rpcerr.Wrap(rpcerr.ErrInvariantViolation, "aqlm: scales length %d != outDim %d", len(scales), outDim))
	}
	if len(codes) != inGroupDim*numCodebooks*outDim {
		panic(rpcerr.Wrap(rpcerr.ErrInvariantViolation, "aqlm: codes length %d != inGroupDim*2*outDim %d", len(codes), inGroupDim*numCodebooks*outDim))
	}
	return &Linear{
		outDim:     outDim,
		inGroupDim: inGroupDim,
		codebooks:  codebooks,
		scales:     scales,
		codes:      codes,
	}
}

// Shape returns (outDim, inGroupDim*8).
func (l *Linear) Shape() (rows, cols int) { return l.outDim, l.inGroupDim * codewordDim }

// Forward runs the AQLM kernel on a single input row of length
// inGroupDim*8, returning a (1, outDim) matrix.
//
// 1. Reshape x to (inGroupDim, 8) and matmul against the codebooks viewed
//    as (2*256, 8) to build the per-input lookup table lut of shape
//    (inGroupDim, 2*256).
// 2. Accumulate output[o] += sum over g, b of lut[g, b*256 + codes[(g*2+b)*outDim+o]].
// 3. Scale the result element-wise by scales and return as (1, outDim).
func (l *Linear) Forward(x *tensor.Matrix) *tensor.Matrix {
	inDim := l.inGroupDim * codewordDim
	row := x.Row(0)
	if len(row) != inDim {
		panic(rpcerr.Wrap(rpcerr.ErrInvariantViolation, "aqlm forward: input width %d != inDim %d", len(row), inDim))
	}

	xView := tensor.New(l.inGroupDim, codewordDim, append([]float32(nil), row...))
	codebookView := tensor.New(numCodebooks*codebookSize, codewordDim, l.codebooks)
	lut := xView.Matmul(codebookView) // (inGroupDim, 2*256)

	output := make([]float32, l.outDim)
	for g := 0; g < l.inGroupDim; g++ {
		lutRow := lut.Row(g)
		for b := 0; b < numCodebooks; b++ {
			lutBank := lutRow[b*codebookSize : (b+1)*codebookSize]
			codeBase := (g*numCodebooks + b) * l.outDim
			for o := 0; o < l.outDim; o++ {
				output[o] += lutBank[l.codes[codeBase+o]]
			}
		}
	}

	for o := range output {
		output[o] *= l.scales[o]
	}
	return tensor.NewRow(output)
}

// Codebooks, Scales and Codes expose the raw parameters so ParallelAQLMLinear
// can slice them per shard without reaching into package internals.
func (l *Linear) Codebooks() []float32 { return l.codebooks }
func (l *Linear) Scales() []float32    { return l.scales }
func (l *Linear) Codes() []uint8       { return l.codes }
func (l *Linear) OutDim() int          { return l.outDim }
func (l *Linear) InGroupDim() int      { return l.inGroupDim }
