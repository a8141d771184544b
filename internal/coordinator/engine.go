package coordinator

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ShapeKey identifies an AQLM operator shape for calibration purposes. Per
// the source behavior this engine preserves, the key is shape-only: two
// operators of the same shape but different codebook/code content share a
// calibrated shard count (see DESIGN.md Open Question ii).
type ShapeKey struct {
	OutDim     int
	InGroupDim int
}

// Engine is the explicit, non-global home for the handles pool and the
// calibration cache that the original design treats as process-wide
// singletons. Every operator that needs to fan out or calibrate receives
// an *Engine by reference; there is no package-level mutable state here.
type Engine struct {
	handles []*Handle

	handlesPermit *semaphore.Weighted

	calibMu      sync.Mutex // guards reads and writes of calibration below; calibPermit separately serializes whole-shape calibrations
	calibPermit  *semaphore.Weighted
	calibration  map[ShapeKey]int
}

// NewEngine builds an engine over a fixed, read-only-by-membership list of
// handles established once at load time.
func NewEngine(handles []*Handle) *Engine {
	return &Engine{
		handles:       handles,
		handlesPermit: semaphore.NewWeighted(1),
		calibPermit:   semaphore.NewWeighted(1),
		calibration:   make(map[ShapeKey]int),
	}
}

// Handles returns the whole handle list. Callers must hold the handles
// permit (via LockHandles) for the duration of any RPC fan-out using it.
func (e *Engine) Handles() []*Handle { return e.handles }

// LockHandles blocks until the handles permit is free and returns a
// release function. Every operator that sends RPCs (install, forward,
// remove) must hold this for the entire duration of its fan-out: this is
// the intentional, single process-wide serialization point that bounds
// peak wire bandwidth and in-flight working set.
func (e *Engine) LockHandles(ctx context.Context) (func(), error) {
	if err := e.handlesPermit.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { e.handlesPermit.Release(1) }, nil
}

// LockCalibration blocks until the calibration permit is free and returns
// a release function, held for the entire calibration of one shape.
func (e *Engine) LockCalibration(ctx context.Context) (func(), error) {
	if err := e.calibPermit.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { e.calibPermit.Release(1) }, nil
}

// CalibratedShards returns the cached shard count for key, if any.
func (e *Engine) CalibratedShards(key ShapeKey) (int, bool) {
	e.calibMu.Lock()
	defer e.calibMu.Unlock()
	n, ok := e.calibration[key]
	return n, ok
}

// SetCalibratedShards records the chosen shard count for key. Callers must
// hold the calibration permit (LockCalibration) while computing and
// setting this so two goroutines never race to calibrate the same shape.
func (e *Engine) SetCalibratedShards(key ShapeKey, n int) {
	e.calibMu.Lock()
	defer e.calibMu.Unlock()
	e.calibration[key] = n
}
