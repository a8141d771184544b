package coordinator

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/shardrunner/engine/internal/quant/int8"
	"github.com/shardrunner/engine/internal/rpc"
	"github.com/shardrunner/engine/internal/rpcerr"
	"github.com/shardrunner/engine/internal/tensor"
)

// ParallelINT8Linear splits an INT8 operator by output rows across N
// handles. Unlike AQLM, INT8 shard counts are not calibrated per shape;
// it simply uses as many handles as the engine has, since INT8's flat
// dequantize-then-dot-product cost scales evenly with row count and the
// shape-driven calibration machinery exists only for AQLM's lookup-table
// forward (see DESIGN.md Open Question ii).
type ParallelINT8Linear struct {
	engine  *Engine
	handles []*Handle
	name    string
	outDim  int
	inDim   int
}

// NewParallelINT8Linear installs a row-sharded copy of op across engine's
// handles under a shared operator name. INT8 operators have no uninstall
// step (see Registry.AddINT8), so there is no AsyncDrop here.
func NewParallelINT8Linear(ctx context.Context, engine *Engine, op *int8.Linear, name string) (*ParallelINT8Linear, error) {
	release, err := engine.LockHandles(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	handles := engine.Handles()
	outDim, inDim := op.Shape()
	plans := planShards(outDim, len(handles))
	used := handles[:len(plans)]

	g, gctx := errgroup.WithContext(ctx)
	for i, plan := range plans {
		i, plan := i, plan
		g.Go(func() error {
			scales, values := sliceINT8(op, plan, inDim)
			req := rpc.NewAddINT8Request(name, scales, values)
			resp, err := used[i].Send(gctx, req)
			if err != nil {
				return err
			}
			if resp.Kind() != req.Kind() {
				return rpcerr.Wrap(rpcerr.ErrProtocolFailed, "install int8 shard %d: unexpected response kind %s", i, resp.Kind())
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, rpcerr.Wrap(rpcerr.ErrTransportFailed, "installing int8 operator %q: %v", name, err)
	}

	return &ParallelINT8Linear{engine: engine, handles: used, name: name, outDim: outDim, inDim: inDim}, nil
}

// sliceINT8 slices an INT8 operator's rows for one output-row range.
// scales are per-column (over in_dim) and are broadcast unchanged to
// every shard; values are sliced as a contiguous chunk_size*in_dim run of
// the row-major backing store.
func sliceINT8(op *int8.Linear, plan shardPlan, inDim int) (scales []float32, values []int8) {
	scales = append([]float32(nil), op.Scales()...)
	full := op.Values()
	start := plan.start * inDim
	size := plan.size * inDim
	values = append([]int8(nil), full[start:start+size]...)
	return scales, values
}

// Shape returns (outDim, inDim) of the unsharded operator.
func (p *ParallelINT8Linear) Shape() (rows, cols int) { return p.outDim, p.inDim }

// Forward fans out one forward request per shard over a 1-row input,
// awaits all replies, and concatenates them in handle order into a
// (1, outDim) matrix.
func (p *ParallelINT8Linear) Forward(x *tensor.Matrix) *tensor.Matrix {
	ctx := context.Background()
	release, err := p.engine.LockHandles(ctx)
	if err != nil {
		panic(rpcerr.Wrap(rpcerr.ErrTransportFailed, "parallel int8 %q: acquire handles: %v", p.name, err))
	}
	defer release()

	shards := make([]*tensor.Matrix, len(p.handles))
	g, gctx := errgroup.WithContext(ctx)
	for i := range p.handles {
		i := i
		g.Go(func() error {
			req := rpc.NewINT8ForwardRequest(p.name, x)
			resp, err := p.handles[i].Send(gctx, req)
			if err != nil {
				return err
			}
			fr, ok := resp.(*rpc.INT8ForwardResponse)
			if !ok {
				return rpcerr.Wrap(rpcerr.ErrProtocolFailed, "parallel int8 %q shard %d: unexpected response type %T", p.name, i, resp)
			}
			shards[i] = fr.Y
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		panic(rpcerr.Wrap(rpcerr.ErrTransportFailed, "parallel int8 %q forward: %v", p.name, err))
	}

	return tensor.CatRows(shards...)
}
