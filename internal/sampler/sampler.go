// Package sampler implements temperature and top-p (nucleus) sampling over
// a logit vector (C16's sampling half).
package sampler

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/shardrunner/engine/internal/rpcerr"
)

// Params bundles the two sampling knobs the generator applies per step.
type Params struct {
	Temperature float32
	TopP        float32
}

// Sample scales logits by temperature, softmaxes, keeps the minimal
// descending-sorted prefix whose cumulative mass reaches TopP (always
// keeping at least the top-1 token even if it alone exceeds TopP),
// renormalizes that prefix, and draws from it with a uniform [0, 1)
// variate. logits must contain at least one finite entry.
func Sample(logits []float32, p Params, rng *rand.Rand) int {
	if len(logits) == 0 {
		panic(rpcerr.Wrap(rpcerr.ErrInvariantViolation, "sampler: empty logit vector"))
	}

	probs := softmaxTemperature(logits, p.Temperature)

	order := make([]int, len(probs))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return probs[order[a]] > probs[order[b]] })

	kept := 0
	var cumBefore float32
	for i, idx := range order {
		if i == 0 || cumBefore < p.TopP {
			kept++
			cumBefore += probs[idx]
			continue
		}
		break
	}
	if kept == 0 {
		kept = 1
	}

	var total float32
	for _, idx := range order[:kept] {
		total += probs[idx]
	}
	if total <= 0 {
		panic(rpcerr.Wrap(rpcerr.ErrSamplerDegenerate, "sampler: nucleus mass is zero"))
	}

	draw := rng.Float32() * total
	var acc float32
	for _, idx := range order[:kept] {
		acc += probs[idx]
		if draw < acc {
			return idx
		}
	}
	return order[kept-1]
}

// softmaxTemperature divides logits by temperature and returns the
// softmax distribution over the result. Non-finite logits (e.g. -Inf
// masks) contribute zero probability.
func softmaxTemperature(logits []float32, temperature float32) []float32 {
	scaled := make([]float64, len(logits))
	maxV := math.Inf(-1)
	for i, v := range logits {
		scaled[i] = float64(v) / float64(temperature)
		if !math.IsInf(scaled[i], 0) && scaled[i] > maxV {
			maxV = scaled[i]
		}
	}
	if math.IsInf(maxV, -1) {
		panic(rpcerr.Wrap(rpcerr.ErrSamplerDegenerate, "sampler: no finite logit"))
	}

	out := make([]float32, len(logits))
	var sum float64
	exps := make([]float64, len(logits))
	for i, v := range scaled {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			exps[i] = 0
			continue
		}
		e := math.Exp(v - maxV)
		exps[i] = e
		sum += e
	}
	if sum <= 0 {
		panic(rpcerr.Wrap(rpcerr.ErrSamplerDegenerate, "sampler: zero-mass distribution"))
	}
	for i, e := range exps {
		out[i] = float32(e / sum)
	}
	return out
}
