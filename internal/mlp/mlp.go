// Package mlp implements the gated feed-forward block (C8):
// down(SiLU(gate(x)) * up(x)).
package mlp

import (
	"github.com/shardrunner/engine/internal/cache"
	"github.com/shardrunner/engine/internal/kernel"
	"github.com/shardrunner/engine/internal/tensor"
)

// MLP wires three linear operators into the SiLU-gated feed-forward used
// by every transformer block.
type MLP struct {
	gate, up, down cache.Linear
}

func New(gate, up, down cache.Linear) *MLP {
	return &MLP{gate: gate, up: up, down: down}
}

// Forward computes down(SiLU(gate(x)) * up(x)). gate and up run back to
// back on the same input; the present fan-out engine serializes them
// because ParallelAQLMLinear/ParallelINT8Linear hold the handles permit for each call, so no
// attempt is made here to overlap them.
func (m *MLP) Forward(x *tensor.Matrix) *tensor.Matrix {
	gated := m.gate.Forward(x)
	upped := m.up.Forward(x)

	activated := tensor.NewRow(kernel.SiLU(gated.Row(0)))
	merged := activated.BinaryOp(upped, func(a, b float32) float32 { return a * b })

	return m.down.Forward(merged)
}
