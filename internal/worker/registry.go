// Package worker implements the worker-side operator registry (C11): an
// in-process, name-indexed store of installed AQLM and INT8 operators that
// dispatches forward calls by name.
package worker

import (
	"fmt"
	"sync"

	"github.com/shardrunner/engine/internal/quant/aqlm"
	"github.com/shardrunner/engine/internal/quant/int8"
	"github.com/shardrunner/engine/internal/rpcerr"
	"github.com/shardrunner/engine/internal/tensor"
)

// Registry holds the two name-indexed operator mappings for one worker.
// A single worker processes one request at a time (see
// internal/transport), so Registry itself does not need internal
// synchronization for forward dispatch, but add/remove are still guarded
// in case a worker implementation chooses to serve requests from more than
// one goroutine.
type Registry struct {
	mu   sync.RWMutex
	aqlm map[string]*aqlm.Linear
	int8 map[string]*int8.Linear
}

func NewRegistry() *Registry {
	return &Registry{
		aqlm: make(map[string]*aqlm.Linear),
		int8: make(map[string]*int8.Linear),
	}
}

// AddAQLM installs an AQLM operator under name.
func (r *Registry) AddAQLM(name string, codebooks, scales []float32, codes []uint8, outDim, inGroupDim int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aqlm[name] = aqlm.NewLinear(codebooks, scales, codes, outDim, inGroupDim)
}

// AddINT8 installs an INT8 operator under name. There is no RemoveINT8:
// INT8 operators are installed once per worker lifetime and never removed
// (see DESIGN.md Open Question iii).
func (r *Registry) AddINT8(name string, scales []float32, values []int8) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.int8[name] = int8.NewLinear(scales, values)
}

// RemoveAQLM removes a previously installed AQLM operator. Removing a
// name that was never installed is a programming error.
func (r *Registry) RemoveAQLM(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.aqlm[name]; !ok {
		panic(rpcerr.Wrap(rpcerr.ErrInvariantViolation, "worker: remove_aqlm on unknown operator %q", name))
	}
	delete(r.aqlm, name)
}

// AQLMForward requires a 1-row input and returns a (1, chunkOutDim) matrix.
func (r *Registry) AQLMForward(name string, x *tensor.Matrix) (*tensor.Matrix, error) {
	if x.Rows() != 1 {
		return nil, fmt.Errorf("worker: aqlm_forward requires a 1-row input, got %d rows", x.Rows())
	}
	r.mu.RLock()
	op, ok := r.aqlm[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("worker: unknown aqlm operator %q", name)
	}
	return op.Forward(x), nil
}

// INT8Forward requires a 1-row input and returns a (1, chunkOutDim) matrix.
func (r *Registry) INT8Forward(name string, x *tensor.Matrix) (*tensor.Matrix, error) {
	if x.Rows() != 1 {
		return nil, fmt.Errorf("worker: int8_forward requires a 1-row input, got %d rows", x.Rows())
	}
	r.mu.RLock()
	op, ok := r.int8[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("worker: unknown int8 operator %q", name)
	}
	return op.Forward(x), nil
}
