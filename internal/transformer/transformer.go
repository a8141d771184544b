// Package transformer implements the pre-norm transformer block (C9) and
// the full model top (C10): embedding lookup through N blocks to logits.
package transformer

import (
	"github.com/shardrunner/engine/internal/attention"
	"github.com/shardrunner/engine/internal/cache"
	"github.com/shardrunner/engine/internal/kernel"
	"github.com/shardrunner/engine/internal/mlp"
	"github.com/shardrunner/engine/internal/tensor"
)

// NormFunc applies RMSNorm (or another row norm) to a row given its weight.
type NormFunc func(x []float32) []float32

// Block is h = x + attn(norm1(x)); y = h + mlp(norm2(h)).
type Block struct {
	inputNorm, postAttnNorm NormFunc
	attn                    *attention.Attention
	mlp                     *mlp.MLP
}

func NewBlock(inputNorm, postAttnNorm NormFunc, attn *attention.Attention, m *mlp.MLP) *Block {
	return &Block{inputNorm: inputNorm, postAttnNorm: postAttnNorm, attn: attn, mlp: m}
}

func (b *Block) Forward(x *tensor.Matrix) *tensor.Matrix {
	normed := tensor.NewRow(b.inputNorm(x.Row(0)))
	attnOut := b.attn.Forward(normed)
	h := x.BinaryOp(attnOut, func(a, c float32) float32 { return a + c })

	normed2 := tensor.NewRow(b.postAttnNorm(h.Row(0)))
	mlpOut := b.mlp.Forward(normed2)
	return h.BinaryOp(mlpOut, func(a, c float32) float32 { return a + c })
}

func (b *Block) ClearCache() { b.attn.ClearCache() }

// EmbeddingLookup returns the dense row for a token id.
type EmbeddingLookup interface {
	GetRow(tokenID int) []float32
}

// Head projects the final hidden state to vocabulary logits.
type Head interface {
	Forward(x *tensor.Matrix) *tensor.Matrix
}

// Model is the full transformer: embedding -> blocks -> final norm -> head.
type Model struct {
	embed     EmbeddingLookup
	blocks    []*Block
	finalNorm NormFunc
	head      Head
}

func New(embed EmbeddingLookup, blocks []*Block, finalNorm NormFunc, head Head) *Model {
	return &Model{embed: embed, blocks: blocks, finalNorm: finalNorm, head: head}
}

// Forward runs one token through the model, returning logits of length vocab.
func (m *Model) Forward(tokenID int) []float32 {
	x := tensor.NewRow(append([]float32(nil), m.embed.GetRow(tokenID)...))
	for _, block := range m.blocks {
		x = block.Forward(x)
	}
	normed := tensor.NewRow(m.finalNorm(x.Row(0)))
	logits := m.head.Forward(normed)
	return logits.Row(0)
}

// ClearCache broadcasts cache clearing to every block.
func (m *Model) ClearCache() {
	for _, block := range m.blocks {
		block.ClearCache()
	}
}

// RMSNormFunc builds a NormFunc bound to weight w and eps.
func RMSNormFunc(w []float32, eps float32) NormFunc {
	return func(x []float32) []float32 {
		return kernel.RMSNorm(x, w, eps)
	}
}
