// Package generator maintains the token sequence and KV cache and produces
// one next token per invocation (C16's sequence half; see internal/sampler
// for the temperature/top-p/multinomial half).
package generator

import (
	"math/rand/v2"

	"github.com/shardrunner/engine/internal/rpcerr"
	"github.com/shardrunner/engine/internal/sampler"
)

// Model is the subset of transformer.Model the generator depends on.
type Model interface {
	Forward(tokenID int) []float32
	ClearCache()
}

// Generator owns the token sequence for one conversation and drives Model
// one token at a time, keeping the KV cache consistent with the sequence.
type Generator struct {
	model  Model
	params sampler.Params
	rng    *rand.Rand
	tokens []int
}

// New builds a generator over model with the given sampling params and
// random source.
func New(model Model, params sampler.Params, rng *rand.Rand) *Generator {
	return &Generator{model: model, params: params, rng: rng}
}

// Tokens returns the current sequence (read-only view).
func (g *Generator) Tokens() []int { return g.tokens }

// AddTokens appends each token in ts, running the transformer forward for
// every token except the last before appending the next: this warms the KV
// cache through the preceding tokens but discards each of those produced
// next-token guesses, since ts supplies the real continuation.
func (g *Generator) AddTokens(ts []int) {
	for _, t := range ts {
		if len(g.tokens) > 0 {
			g.model.Forward(g.tokens[len(g.tokens)-1])
		}
		g.tokens = append(g.tokens, t)
	}
}

// SetTokens requires ts to start with the current sequence and appends the
// suffix via AddTokens. A ts that diverges from the current prefix is a
// programming error: the KV cache cannot be made consistent with it short
// of a full Clear.
func (g *Generator) SetTokens(ts []int) {
	if len(ts) < len(g.tokens) {
		panic(rpcerr.Wrap(rpcerr.ErrInvariantViolation, "generator: set_tokens shorter than current sequence (%d < %d)", len(ts), len(g.tokens)))
	}
	for i, t := range g.tokens {
		if ts[i] != t {
			panic(rpcerr.Wrap(rpcerr.ErrInvariantViolation, "generator: set_tokens diverges from current sequence at index %d", i))
		}
	}
	g.AddTokens(ts[len(g.tokens):])
}

// NextToken runs the transformer on the last current token, samples from
// the resulting logits, appends the sampled token, and returns it.
func (g *Generator) NextToken() int {
	if len(g.tokens) == 0 {
		panic(rpcerr.Wrap(rpcerr.ErrInvariantViolation, "generator: next_token called on an empty sequence"))
	}
	logits := g.model.Forward(g.tokens[len(g.tokens)-1])
	next := sampler.Sample(logits, g.params, g.rng)
	g.tokens = append(g.tokens, next)
	return next
}

// Clear empties the sequence and clears the model's KV cache.
func (g *Generator) Clear() {
	g.tokens = g.tokens[:0]
	g.model.ClearCache()
}
