package coordinator

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/shardrunner/engine/internal/quant/aqlm"
	"github.com/shardrunner/engine/internal/rpc"
	"github.com/shardrunner/engine/internal/rpcerr"
	"github.com/shardrunner/engine/internal/tensor"
)

// shardPlan describes one contiguous output-row range of an operator.
type shardPlan struct {
	start, size int
}

// planShards partitions outDim into at most n contiguous chunks of
// ceil(outDim/n), with the last chunk absorbing the remainder. When
// ceil(outDim/n)*(n-1) >= outDim, fewer than n chunks are returned
// (e.g. outDim=6, n=4 gives three chunks of 2).
func planShards(outDim, n int) []shardPlan {
	chunk := (outDim + n - 1) / n
	plans := make([]shardPlan, 0, n)
	for start := 0; start < outDim; start += chunk {
		size := chunk
		if start+size > outDim {
			size = outDim - start
		}
		plans = append(plans, shardPlan{start: start, size: size})
	}
	return plans
}

// ParallelAQLMLinear splits an AQLM operator by output rows across N
// handles, fans out forward requests, and concatenates the partial
// outputs in handle order.
type ParallelAQLMLinear struct {
	engine  *Engine
	handles []*Handle
	name    string
	outDim  int
	inDim   int
}

// NewParallelAQLMLinear installs a sharded copy of op across the first
// nWorkers handles of engine under a shared operator name, calibrating the
// shard count first if this shape has not been seen before.
func NewParallelAQLMLinear(ctx context.Context, engine *Engine, op *aqlm.Linear, name string) (*ParallelAQLMLinear, error) {
	n, err := calibrate(ctx, engine, op, name)
	if err != nil {
		return nil, err
	}

	release, err := engine.LockHandles(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	handles := engine.Handles()
	if n > len(handles) {
		n = len(handles)
	}

	outDim, inDim := op.Shape()
	plans := planShards(outDim, n)
	used := handles[:len(plans)]

	g, gctx := errgroup.WithContext(ctx)
	for i, plan := range plans {
		i, plan := i, plan
		g.Go(func() error {
			codebooks, scales, codes := sliceAQLM(op, plan)
			req := rpc.NewAddAQLMRequest(name, codebooks, scales, codes, int32(plan.size), int32(op.InGroupDim()))
			resp, err := used[i].Send(gctx, req)
			if err != nil {
				return err
			}
			if resp.Kind() != req.Kind() {
				return rpcerr.Wrap(rpcerr.ErrProtocolFailed, "install aqlm shard %d: unexpected response kind %s", i, resp.Kind())
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, rpcerr.Wrap(rpcerr.ErrTransportFailed, "installing aqlm operator %q: %v", name, err)
	}

	return &ParallelAQLMLinear{engine: engine, handles: used, name: name, outDim: outDim, inDim: inDim}, nil
}

// sliceAQLM slices an AQLM operator's parameters for one output-row range,
// respecting the (g, b, o) code layout and broadcasting codebooks
// unchanged.
func sliceAQLM(op *aqlm.Linear, plan shardPlan) (codebooks, scales []float32, codes []byte) {
	outDim := op.OutDim()
	inGroupDim := op.InGroupDim()
	fullCodes := op.Codes()

	scales = append([]float32(nil), op.Scales()[plan.start:plan.start+plan.size]...)
	codebooks = append([]float32(nil), op.Codebooks()...)

	codes = make([]byte, inGroupDim*2*plan.size)
	for g := 0; g < inGroupDim; g++ {
		for b := 0; b < 2; b++ {
			srcBase := (g*2 + b) * outDim
			dstBase := (g*2 + b) * plan.size
			copy(codes[dstBase:dstBase+plan.size], fullCodes[srcBase+plan.start:srcBase+plan.start+plan.size])
		}
	}
	return codebooks, scales, codes
}

// Shape returns (outDim, inDim) of the unsharded operator.
func (p *ParallelAQLMLinear) Shape() (rows, cols int) { return p.outDim, p.inDim }

// Forward fans out one forward request per shard over a 1-row input,
// awaits all replies, and concatenates them in handle order into a
// (1, outDim) matrix.
func (p *ParallelAQLMLinear) Forward(x *tensor.Matrix) *tensor.Matrix {
	ctx := context.Background()
	release, err := p.engine.LockHandles(ctx)
	if err != nil {
		panic(rpcerr.Wrap(rpcerr.ErrTransportFailed, "parallel aqlm %q: acquire handles: %v", p.name, err))
	}
	defer release()

	shards := make([]*tensor.Matrix, len(p.handles))
	g, gctx := errgroup.WithContext(ctx)
	for i := range p.handles {
		i := i
		g.Go(func() error {
			req := rpc.NewAQLMForwardRequest(p.name, x)
			resp, err := p.handles[i].Send(gctx, req)
			if err != nil {
				return err
			}
			fr, ok := resp.(*rpc.AQLMForwardResponse)
			if !ok {
				return rpcerr.Wrap(rpcerr.ErrProtocolFailed, "parallel aqlm %q shard %d: unexpected response type %T", p.name, i, resp)
			}
			shards[i] = fr.Y
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		panic(rpcerr.Wrap(rpcerr.ErrTransportFailed, "parallel aqlm %q forward: %v", p.name, err))
	}

	return tensor.CatRows(shards...)
}

// AsyncDrop sends RemoveAQLM to each participating shard under the
// operator's name.
func (p *ParallelAQLMLinear) AsyncDrop(ctx context.Context) error {
	release, err := p.engine.LockHandles(ctx)
	if err != nil {
		return err
	}
	defer release()

	g, gctx := errgroup.WithContext(ctx)
	for i := range p.handles {
		i := i
		g.Go(func() error {
			req := rpc.NewRemoveAQLMRequest(p.name)
			_, err := p.handles[i].Send(gctx, req)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("dropping aqlm operator %q: %w", p.name, err)
	}
	return nil
}
