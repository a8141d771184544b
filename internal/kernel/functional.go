// Package kernel implements the functional building blocks shared by
// attention and the MLP: softmax, SiLU, RMSNorm, argmax/argmin, and rotary
// position embeddings.
package kernel

import (
	"math"

	"github.com/shardrunner/engine/internal/tensor"
)

// RMSNorm computes out[i] = x[i]*w[i]*inv where inv = 1/sqrt(mean(x^2)+eps).
func RMSNorm(x, w []float32, eps float32) []float32 {
	var sumSq float32
	for _, v := range x {
		sumSq += v * v
	}
	inv := float32(1 / math.Sqrt(float64(sumSq/float32(len(x))+eps)))
	out := make([]float32, len(x))
	for i := range x {
		out[i] = x[i] * w[i] * inv
	}
	return out
}

// SoftmaxRow subtracts the row max, exponentiates, and divides by the sum.
func SoftmaxRow(row []float32) []float32 {
	max := row[0]
	for _, v := range row[1:] {
		if v > max {
			max = v
		}
	}
	out := make([]float32, len(row))
	var sum float32
	for i, v := range row {
		e := float32(math.Exp(float64(v - max)))
		out[i] = e
		sum += e
	}
	if sum > 0 {
		for i := range out {
			out[i] /= sum
		}
	}
	return out
}

// Softmax applies SoftmaxRow to every row of m, returning a new matrix.
func Softmax(m *tensor.Matrix) *tensor.Matrix {
	return m.EachRow(func(row []float32) {
		copy(row, SoftmaxRow(row))
	})
}

// SiLU computes x / (1 + exp(-x)) element-wise.
func SiLU(x []float32) []float32 {
	out := make([]float32, len(x))
	for i, v := range x {
		out[i] = v / (1 + float32(math.Exp(float64(-v))))
	}
	return out
}

// ArgMax returns the index of the largest value in x.
func ArgMax(x []float32) int {
	best := 0
	for i, v := range x {
		if v > x[best] {
			best = i
		}
	}
	return best
}

// ArgMin returns the index of the smallest value in x.
func ArgMin(x []float32) int {
	best := 0
	for i, v := range x {
		if v < x[best] {
			best = i
		}
	}
	return best
}

// RotaryConfig parameterizes rotary position embedding application.
type RotaryConfig struct {
	HeadDim int
	NHeads  int
	Theta   float64
}

// rotateHalf produces the row whose first half is the negated second half
// of x and whose second half is the first half of x.
func rotateHalf(row []float32) []float32 {
	half := len(row) / 2
	out := make([]float32, len(row))
	for i := 0; i < half; i++ {
		out[i] = -row[i+half]
		out[i+half] = row[i]
	}
	return out
}

// ApplyRotary applies rotary position embedding to a view of shape
// (tokens, heads*headDim), reshaped internally to (tokens*heads, headDim).
// tokenOffset is the position of the first row in x within the overall
// sequence. The angle at position (y, col) is
// (y/heads + tokenOffset) / theta^((col mod headDim/2)/(headDim/2)).
func ApplyRotary(x *tensor.Matrix, cfg RotaryConfig, tokenOffset int) *tensor.Matrix {
	tokens := x.Rows()
	reshaped := x.Reshape(tokens*cfg.NHeads, cfg.HeadDim)

	half := cfg.HeadDim / 2
	out := tensor.Zeros(tokens*cfg.NHeads, cfg.HeadDim)
	for y := 0; y < tokens*cfg.NHeads; y++ {
		row := reshaped.Row(y)
		rotated := rotateHalf(row)
		dst := out.Row(y)

		tokenIdx := y / cfg.NHeads
		pos := float64(tokenIdx) + float64(tokenOffset)

		for col := 0; col < cfg.HeadDim; col++ {
			exponent := float64(col%half) / float64(half)
			freq := math.Pow(cfg.Theta, exponent)
			angle := pos / freq
			cosA := float32(math.Cos(angle))
			sinA := float32(math.Sin(angle))
			dst[col] = row[col]*cosA + rotated[col]*sinA
		}
	}
	return out.Reshape(tokens, cfg.NHeads*cfg.HeadDim)
}
