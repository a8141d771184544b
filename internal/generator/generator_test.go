package generator

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/shardrunner/engine/internal/rpcerr"
	"github.com/shardrunner/engine/internal/sampler"
)

// countingModel records every token id passed to Forward and always returns
// a fixed logit vector whose argmax is deterministic.
type countingModel struct {
	forwardedTokens []int
	clearCalls      int
	nextLogits      []float32
}

func (m *countingModel) Forward(tokenID int) []float32 {
	m.forwardedTokens = append(m.forwardedTokens, tokenID)
	return m.nextLogits
}

func (m *countingModel) ClearCache() { m.clearCalls++ }

func newGenerator(m *countingModel) *Generator {
	return New(m, sampler.Params{Temperature: 1, TopP: 1}, rand.New(rand.NewPCG(1, 1)))
}

func TestAddTokensWarmsCacheButSkipsLastForward(t *testing.T) {
	m := &countingModel{nextLogits: []float32{1, 0}}
	g := newGenerator(m)

	g.AddTokens([]int{10, 20, 30})

	if got, want := len(m.forwardedTokens), 2; got != want {
		t.Fatalf("forward calls = %d, want %d", got, want)
	}
	if m.forwardedTokens[0] != 10 || m.forwardedTokens[1] != 20 {
		t.Errorf("forwarded tokens = %v, want [10 20]", m.forwardedTokens)
	}
	if got := g.Tokens(); len(got) != 3 || got[0] != 10 || got[1] != 20 || got[2] != 30 {
		t.Errorf("Tokens() = %v, want [10 20 30]", got)
	}
}

func TestSetTokensAppendsOnlyTheSuffix(t *testing.T) {
	m := &countingModel{nextLogits: []float32{1, 0}}
	g := newGenerator(m)
	g.AddTokens([]int{1, 2, 3})
	m.forwardedTokens = nil

	g.SetTokens([]int{1, 2, 3, 4, 5})

	if got, want := len(m.forwardedTokens), 2; got != want {
		t.Fatalf("forward calls for suffix = %d, want %d", got, want)
	}
	if m.forwardedTokens[0] != 3 || m.forwardedTokens[1] != 4 {
		t.Errorf("forwarded tokens = %v, want [3 4]", m.forwardedTokens)
	}
}

func TestSetTokensPanicsOnDivergence(t *testing.T) {
	m := &countingModel{nextLogits: []float32{1, 0}}
	g := newGenerator(m)
	g.AddTokens([]int{1, 2, 3})

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, rpcerr.ErrInvariantViolation) {
			t.Errorf("panic value = %v, want wrapping ErrInvariantViolation", r)
		}
	}()
	g.SetTokens([]int{1, 9, 3})
}

func TestSetTokensPanicsWhenShorterThanCurrent(t *testing.T) {
	m := &countingModel{nextLogits: []float32{1, 0}}
	g := newGenerator(m)
	g.AddTokens([]int{1, 2, 3})

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for shorter set_tokens")
		}
	}()
	g.SetTokens([]int{1, 2})
}

func TestNextTokenAppendsSampledToken(t *testing.T) {
	m := &countingModel{nextLogits: []float32{0, 100}} // at temperature 1 the mass sits entirely on index 1
	g := newGenerator(m)
	g.AddTokens([]int{1})

	next := g.NextToken()
	if next != 1 {
		t.Fatalf("NextToken = %d, want 1", next)
	}
	if got := g.Tokens(); len(got) != 2 || got[1] != 1 {
		t.Errorf("Tokens() = %v, want [1 1]", got)
	}
}

func TestClearResetsSequenceAndCache(t *testing.T) {
	m := &countingModel{nextLogits: []float32{1, 0}}
	g := newGenerator(m)
	g.AddTokens([]int{1, 2, 3})

	g.Clear()
	if len(g.Tokens()) != 0 {
		t.Errorf("Tokens() after Clear = %v, want empty", g.Tokens())
	}
	if m.clearCalls != 1 {
		t.Errorf("ClearCache calls = %d, want 1", m.clearCalls)
	}
}
