package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shardrunner/engine/internal/quant/aqlm"
	"github.com/shardrunner/engine/internal/rpc"
	"github.com/shardrunner/engine/internal/rpcerr"
	"github.com/shardrunner/engine/internal/tensor"
)

const (
	calibrationWarmups = 1
	calibrationRepeats = 10
)

// calibrate returns the shard count to use for op, consulting and
// populating engine's calibration cache. The calibration key is
// shape-only (out_dim, in_group_dim): two operators of identical shape
// but different codebook/code content will share a chosen shard count.
// This mirrors the behavior being preserved here rather than a bug
// introduced by this port (see DESIGN.md Open Question ii).
func calibrate(ctx context.Context, engine *Engine, op *aqlm.Linear, namePrefix string) (int, error) {
	outDim, inGroupDim := op.OutDim(), op.InGroupDim()
	key := ShapeKey{OutDim: outDim, InGroupDim: inGroupDim}

	if n, ok := engine.CalibratedShards(key); ok {
		return n, nil
	}

	release, err := engine.LockCalibration(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	// Re-check after acquiring the permit: another caller may have
	// calibrated this shape while we were waiting.
	if n, ok := engine.CalibratedShards(key); ok {
		return n, nil
	}

	maxWorkers := len(engine.Handles())
	timings := make([]time.Duration, maxWorkers)

	probe := make([]float32, inGroupDim*8)
	for i := range probe {
		probe[i] = 3.0
	}
	probeInput := tensor.NewRow(probe)

	for n := 1; n <= maxWorkers; n++ {
		calibName := fmt.Sprintf("%s#calib#%d", namePrefix, n)

		elapsed, err := func() (time.Duration, error) {
			// Held for the whole install/warm-up/time/uninstall cycle: this
			// is one logical fan-out sequence and should not interleave
			// with an unrelated real forward on the same handles.
			release, err := engine.LockHandles(ctx)
			if err != nil {
				return 0, err
			}
			defer release()

			handles := installedShardHandles(engine, n)
			handles = handles[:len(planShards(outDim, len(handles)))]
			if err := installShardsLocked(ctx, handles, op, calibName); err != nil {
				return 0, fmt.Errorf("installing %d-way shard: %w", n, err)
			}

			if err := forwardAll(ctx, handles, calibName, probeInput, calibrationWarmups); err != nil {
				return 0, fmt.Errorf("warm-up at n=%d: %w", n, err)
			}

			start := time.Now()
			if err := forwardAll(ctx, handles, calibName, probeInput, calibrationRepeats); err != nil {
				return 0, fmt.Errorf("timing at n=%d: %w", n, err)
			}
			elapsed := time.Since(start)

			if err := dropCalibrationShards(ctx, handles, calibName); err != nil {
				return 0, fmt.Errorf("uninstalling %d-way shard: %w", n, err)
			}
			return elapsed, nil
		}()
		if err != nil {
			return 0, fmt.Errorf("calibration: %w", err)
		}
		timings[n-1] = elapsed
	}

	best := 0
	for i := 1; i < len(timings); i++ {
		if timings[i] < timings[best] {
			best = i
		}
	}
	chosen := best + 1

	slog.Debug("calibrated aqlm shape", "out_dim", outDim, "in_group_dim", inGroupDim, "chosen_shards", chosen, "timings", timings)
	engine.SetCalibratedShards(key, chosen)
	return chosen, nil
}

// installedShardHandles returns the first n handles of engine, capped to
// the handle count.
func installedShardHandles(engine *Engine, n int) []*Handle {
	handles := engine.Handles()
	if n > len(handles) {
		n = len(handles)
	}
	return handles[:n]
}

// installShardsLocked installs op across handles under name. Callers must
// already hold the engine's handles permit.
func installShardsLocked(ctx context.Context, handles []*Handle, op *aqlm.Linear, name string) error {
	plans := planShards(op.OutDim(), len(handles))

	g, gctx := errgroup.WithContext(ctx)
	for i, plan := range plans {
		i, plan := i, plan
		g.Go(func() error {
			codebooks, scales, codes := sliceAQLM(op, plan)
			req := rpc.NewAddAQLMRequest(name, codebooks, scales, codes, int32(plan.size), int32(op.InGroupDim()))
			_, err := handles[i].Send(gctx, req)
			return err
		})
	}
	return g.Wait()
}

func forwardAll(ctx context.Context, handles []*Handle, name string, x *tensor.Matrix, times int) error {
	for t := 0; t < times; t++ {
		g, gctx := errgroup.WithContext(ctx)
		for i := range handles {
			i := i
			g.Go(func() error {
				req := rpc.NewAQLMForwardRequest(name, x)
				resp, err := handles[i].Send(gctx, req)
				if err != nil {
					return err
				}
				if resp.Kind() != req.Kind() {
					return rpcerr.Wrap(rpcerr.ErrProtocolFailed, "calibration forward: unexpected response kind %s", resp.Kind())
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

// dropCalibrationShards uninstalls a calibration-scoped operator. Callers
// must already hold the engine's handles permit.
func dropCalibrationShards(ctx context.Context, handles []*Handle, name string) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := range handles {
		i := i
		g.Go(func() error {
			req := rpc.NewRemoveAQLMRequest(name)
			_, err := handles[i].Send(gctx, req)
			return err
		})
	}
	return g.Wait()
}
