// Package cache implements the cached attention linear wrapper (C6): an
// inner linear operator whose forward output is appended to a growing
// dequantized buffer on every call, optionally after rotary embedding.
package cache

import (
	"github.com/shardrunner/engine/internal/kernel"
	"github.com/shardrunner/engine/internal/rpcerr"
	"github.com/shardrunner/engine/internal/tensor"
)

// Linear is the capability every projection in this engine implements:
// forward a single input row to a single output row.
type Linear interface {
	Forward(x *tensor.Matrix) *tensor.Matrix
	Shape() (rows, cols int)
}

// AttentionLinear wraps an inner Linear, appending every forward's output
// to an append-only buffer (the KV cache for one of K or V) and returning
// the whole history on each call.
type AttentionLinear struct {
	inner  Linear
	rotary *kernel.RotaryConfig
	buf    []float32
}

// New wraps inner. If rotary is non-nil, newly produced rows are rotary-
// embedded (at tokenOffset = current cached row count) before being
// appended to the cache.
func New(inner Linear, rotary *kernel.RotaryConfig) *AttentionLinear {
	return &AttentionLinear{inner: inner, rotary: rotary}
}

// NCachedTokens returns the number of rows currently held in the cache.
func (a *AttentionLinear) NCachedTokens() int {
	if len(a.buf) == 0 {
		return 0
	}
	return len(a.buf) / a.outWidth()
}

func (a *AttentionLinear) outWidth() int {
	rows, _ := a.inner.Shape()
	return rows
}

// Forward runs the inner operator on x, optionally applies rotary
// embedding to the freshly produced row at tokenOffset = current cached
// row count, appends it to the cache, and returns the entire cache as a
// (cachedRows, outDim) view.
func (a *AttentionLinear) Forward(x *tensor.Matrix) *tensor.Matrix {
	out := a.inner.Forward(x)
	outDim := a.outWidth()
	if out.Rows() != 1 || out.Cols() != outDim {
		panic(rpcerr.Wrap(rpcerr.ErrInvariantViolation, "cached attention linear: unexpected forward shape %v", out.Shape()))
	}

	row := out
	if a.rotary != nil {
		row = kernel.ApplyRotary(out, *a.rotary, a.NCachedTokens())
	}

	a.buf = append(a.buf, row.Data()...)

	cachedRows := len(a.buf) / outDim
	return tensor.New(cachedRows, outDim, append([]float32(nil), a.buf...))
}

// Clear empties the cache.
func (a *AttentionLinear) Clear() {
	a.buf = a.buf[:0]
}
