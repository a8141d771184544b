// Package attention implements grouped-query attention over cached K/V
// plus a single new Q row (C7): the shape the engine actually exercises is
// strictly incremental, one generated token at a time.
package attention

import (
	"math"

	"github.com/shardrunner/engine/internal/cache"
	"github.com/shardrunner/engine/internal/kernel"
	"github.com/shardrunner/engine/internal/rpcerr"
	"github.com/shardrunner/engine/internal/tensor"
)

// Attention holds the four projections and the two KV caches for one
// transformer block's self-attention.
type Attention struct {
	qProj, oProj cache.Linear
	kCache, vCache *cache.AttentionLinear

	nHeads, nKVHeads, headDim int
	rotary                    kernel.RotaryConfig
}

// New wires q/o as plain linear operators and k/v as cached linear
// operators (v with no rotary, k with rotary using rotary's head dim and
// theta over nKVHeads heads).
func New(qProj, kProjInner, vProjInner, oProj cache.Linear, nHeads, nKVHeads, headDim int, rotary kernel.RotaryConfig) *Attention {
	kRotary := rotary
	kRotary.NHeads = nKVHeads
	return &Attention{
		qProj:    qProj,
		oProj:    oProj,
		kCache:   cache.New(kProjInner, &kRotary),
		vCache:   cache.New(vProjInner, nil),
		nHeads:   nHeads,
		nKVHeads: nKVHeads,
		headDim:  headDim,
		rotary:   rotary,
	}
}

// Forward runs one incremental step of attention on input row x (length
// nHeads*headDim).
func (a *Attention) Forward(x *tensor.Matrix) *tensor.Matrix {
	nCached := a.kCache.NCachedTokens()

	q := a.qProj.Forward(x)
	q = kernel.ApplyRotary(q, a.rotary, nCached)

	kAll := a.kCache.Forward(x) // (nTokens, nKVHeads*headDim), rotary applied to new row
	vAll := a.vCache.Forward(x) // (nTokens, nKVHeads*headDim), raw

	if a.kCache.NCachedTokens() != a.vCache.NCachedTokens() {
		panic(rpcerr.Wrap(rpcerr.ErrInvariantViolation, "attention: k cache rows %d != v cache rows %d", a.kCache.NCachedTokens(), a.vCache.NCachedTokens()))
	}

	nTokens := kAll.Rows()
	kvWidth := a.nKVHeads * a.headDim
	groupSize := a.nHeads / a.nKVHeads
	scale := float32(1 / math.Sqrt(float64(a.headDim)))

	headOutputs := make([]*tensor.Matrix, a.nHeads)
	for h := 0; h < a.nHeads; h++ {
		group := h / groupSize

		qH := q.Sample(tensor.Shape{Rows: 1, Cols: a.headDim}, a.headDim, h*a.headDim)
		kH := kAll.Sample(tensor.Shape{Rows: nTokens, Cols: a.headDim}, kvWidth, group*a.headDim)
		vH := vAll.Sample(tensor.Shape{Rows: nTokens, Cols: a.headDim}, kvWidth, group*a.headDim)

		scores := qH.Matmul(kH) // (1, nTokens)
		scaled := scores.MapIndexed(func(_, _ int, v float32) float32 { return v * scale })
		probs := kernel.Softmax(scaled)

		outH := probs.Matmul(vH.Transpose()) // (1, headDim)
		headOutputs[h] = outH
	}

	concatenated := tensor.CatRows(headOutputs...)
	return a.oProj.Forward(concatenated)
}

// ClearCache empties both the K and V caches.
func (a *Attention) ClearCache() {
	a.kCache.Clear()
	a.vCache.Clear()
}

func (a *Attention) NCachedTokens() int { return a.kCache.NCachedTokens() }
