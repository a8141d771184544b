// Package loader implements the weight loader (C17): it consumes a named
// blob store, decodes each weight's quantized format, installs sharded
// operators across a coordinator engine's worker handles (triggering
// shape-driven calibration along the way), and assembles the resulting
// transformer.Model. Grounded on the teacher's blob-download retry/backoff
// loop (server/download_blob.go) and its errgroup-based fan-out.
package loader

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shardrunner/engine/internal/attention"
	"github.com/shardrunner/engine/internal/blobstore"
	"github.com/shardrunner/engine/internal/cache"
	"github.com/shardrunner/engine/internal/config"
	"github.com/shardrunner/engine/internal/coordinator"
	"github.com/shardrunner/engine/internal/kernel"
	"github.com/shardrunner/engine/internal/mlp"
	"github.com/shardrunner/engine/internal/quant/aqlm"
	"github.com/shardrunner/engine/internal/quant/int8"
	"github.com/shardrunner/engine/internal/rpcerr"
	"github.com/shardrunner/engine/internal/transformer"
)

// maxRetries is the number of retries (not counting the first attempt) the
// loader allows per blob fetch before surfacing LOAD_FAILED.
const maxRetries = 2

// StatusKind distinguishes a textual progress update, the terminal
// completion sentinel, and a terminal load failure.
type StatusKind int

const (
	StatusProgress StatusKind = iota
	StatusDone
	StatusFailed
)

// Status is one message pushed to the loader's status channel.
type Status struct {
	Kind    StatusKind
	Message string
}

// Loader populates operators across engine's workers from store.
type Loader struct {
	store  blobstore.Store
	engine *coordinator.Engine
}

func New(store blobstore.Store, engine *coordinator.Engine) *Loader {
	return &Loader{store: store, engine: engine}
}

// Load fetches and installs every weight named by cfg's layer count,
// reporting progress on status, and returns the assembled model. Loading
// interleaves: the first half of blocks, then embedding/norm/head, then
// the remaining blocks, so early blocks can start streaming before every
// file has been fetched.
func (l *Loader) Load(ctx context.Context, cfg config.Hyperparams, status chan<- Status) (*transformer.Model, error) {
	defer close(status)

	half := cfg.NLayers / 2
	blocks := make([]*transformer.Block, cfg.NLayers)

	emit := func(format string, args ...any) {
		status <- Status{Kind: StatusProgress, Message: fmt.Sprintf(format, args...)}
	}

	for i := 0; i < half; i++ {
		emit("loading layer %d/%d", i+1, cfg.NLayers)
		b, err := l.loadBlock(ctx, cfg, i)
		if err != nil {
			status <- Status{Kind: StatusFailed, Message: err.Error()}
			return nil, err
		}
		blocks[i] = b
	}

	emit("loading embedding, norm, head")
	embed, err := l.loadEmbedding(ctx)
	if err != nil {
		status <- Status{Kind: StatusFailed, Message: err.Error()}
		return nil, err
	}
	finalNormW, err := l.loadPlainVector(ctx, "model.norm.weight.safetensors")
	if err != nil {
		status <- Status{Kind: StatusFailed, Message: err.Error()}
		return nil, err
	}
	head, err := l.loadHead(ctx)
	if err != nil {
		status <- Status{Kind: StatusFailed, Message: err.Error()}
		return nil, err
	}

	for i := half; i < cfg.NLayers; i++ {
		emit("loading layer %d/%d", i+1, cfg.NLayers)
		b, err := l.loadBlock(ctx, cfg, i)
		if err != nil {
			status <- Status{Kind: StatusFailed, Message: err.Error()}
			return nil, err
		}
		blocks[i] = b
	}

	model := transformer.New(embed, blocks, transformer.RMSNormFunc(finalNormW, cfg.RMSNormEps), head)
	status <- Status{Kind: StatusDone, Message: "load complete"}
	return model, nil
}

func (l *Loader) loadBlock(ctx context.Context, cfg config.Hyperparams, i int) (*transformer.Block, error) {
	base := fmt.Sprintf("model.layers.%d.", i)

	inputNormW, err := l.loadPlainVector(ctx, base+"input_layernorm.weight.safetensors")
	if err != nil {
		return nil, err
	}
	postNormW, err := l.loadPlainVector(ctx, base+"post_attention_layernorm.weight.safetensors")
	if err != nil {
		return nil, err
	}

	qProj, err := l.loadProjection(ctx, base+"self_attn.q_proj.", fmt.Sprintf("layer.%d.q_proj", i))
	if err != nil {
		return nil, err
	}
	kProj, err := l.loadProjection(ctx, base+"self_attn.k_proj.", fmt.Sprintf("layer.%d.k_proj", i))
	if err != nil {
		return nil, err
	}
	vProj, err := l.loadProjection(ctx, base+"self_attn.v_proj.", fmt.Sprintf("layer.%d.v_proj", i))
	if err != nil {
		return nil, err
	}
	oProj, err := l.loadProjection(ctx, base+"self_attn.o_proj.", fmt.Sprintf("layer.%d.o_proj", i))
	if err != nil {
		return nil, err
	}

	gateProj, err := l.loadProjection(ctx, base+"mlp.gate_proj.", fmt.Sprintf("layer.%d.gate_proj", i))
	if err != nil {
		return nil, err
	}
	upProj, err := l.loadProjection(ctx, base+"mlp.up_proj.", fmt.Sprintf("layer.%d.up_proj", i))
	if err != nil {
		return nil, err
	}
	downProj, err := l.loadProjection(ctx, base+"mlp.down_proj.", fmt.Sprintf("layer.%d.down_proj", i))
	if err != nil {
		return nil, err
	}

	rotary := kernel.RotaryConfig{HeadDim: cfg.HeadDim, NHeads: cfg.NHeads, Theta: cfg.RopeTheta}
	attn := attention.New(qProj, kProj, vProj, oProj, cfg.NHeads, cfg.NKVHeads, cfg.HeadDim, rotary)
	feedForward := mlp.New(gateProj, upProj, downProj)

	return transformer.NewBlock(
		transformer.RMSNormFunc(inputNormW, cfg.RMSNormEps),
		transformer.RMSNormFunc(postNormW, cfg.RMSNormEps),
		attn, feedForward,
	), nil
}

// loadProjection tries the AQLM file triad first, falling back to the
// INT8 pair if the codebooks file is absent: each converted projection
// picks exactly one of the two formats, and the blob store is the only
// place that records which.
func (l *Loader) loadProjection(ctx context.Context, base, name string) (cache.Linear, error) {
	codebooksRaw, err := l.fetch(ctx, base+"codebooks.safetensors")
	if err == nil {
		return l.loadAQLMProjection(ctx, base, name, codebooksRaw)
	}
	return l.loadINT8Projection(ctx, base, name)
}

func (l *Loader) loadAQLMProjection(ctx context.Context, base, name string, codebooksRaw []byte) (cache.Linear, error) {
	codebooks, err := decodeF32Blob(codebooksRaw)
	if err != nil {
		return nil, err
	}
	scalesRaw, err := l.fetch(ctx, base+"scales.safetensors")
	if err != nil {
		return nil, err
	}
	scales, err := decodeF32Blob(scalesRaw)
	if err != nil {
		return nil, err
	}
	codesRaw, err := l.fetch(ctx, base+"codes_120.safetensors")
	if err != nil {
		return nil, err
	}
	codes, err := decodeU8Blob(codesRaw)
	if err != nil {
		return nil, err
	}

	outDim := len(scales)
	inGroupDim := len(codes) / (2 * outDim)
	op := aqlm.NewLinear(codebooks, scales, codes, outDim, inGroupDim)
	return coordinator.NewParallelAQLMLinear(ctx, l.engine, op, name)
}

func (l *Loader) loadINT8Projection(ctx context.Context, base, name string) (cache.Linear, error) {
	scalesRaw, err := l.fetch(ctx, base+"weight_max_values.safetensors")
	if err != nil {
		return nil, err
	}
	scales, err := decodeF32Blob(scalesRaw)
	if err != nil {
		return nil, err
	}
	valuesRaw, err := l.fetch(ctx, base+"weight_int8.safetensors")
	if err != nil {
		return nil, err
	}
	values, err := decodeI8Blob(valuesRaw)
	if err != nil {
		return nil, err
	}

	op := int8.NewLinear(scales, values)
	return coordinator.NewParallelINT8Linear(ctx, l.engine, op, name)
}

func (l *Loader) loadEmbedding(ctx context.Context) (transformer.EmbeddingLookup, error) {
	scalesRaw, err := l.fetch(ctx, "model.embed_tokens.weight_max_values.safetensors")
	if err != nil {
		return nil, err
	}
	scales, err := decodeF32Blob(scalesRaw)
	if err != nil {
		return nil, err
	}
	valuesRaw, err := l.fetch(ctx, "model.embed_tokens.weight_int8.safetensors")
	if err != nil {
		return nil, err
	}
	values, err := decodeI8Blob(valuesRaw)
	if err != nil {
		return nil, err
	}
	return int8.NewEmbedding(scales, values), nil
}

func (l *Loader) loadHead(ctx context.Context) (transformer.Head, error) {
	scalesRaw, err := l.fetch(ctx, "lm_head.weight_max_values.safetensors")
	if err != nil {
		return nil, err
	}
	scales, err := decodeF32Blob(scalesRaw)
	if err != nil {
		return nil, err
	}
	valuesRaw, err := l.fetch(ctx, "lm_head.weight_int8.safetensors")
	if err != nil {
		return nil, err
	}
	values, err := decodeI8Blob(valuesRaw)
	if err != nil {
		return nil, err
	}
	op := int8.NewLinear(scales, values)
	return coordinator.NewParallelINT8Linear(ctx, l.engine, op, "lm_head")
}

func (l *Loader) loadPlainVector(ctx context.Context, name string) ([]float32, error) {
	raw, err := l.fetch(ctx, name)
	if err != nil {
		return nil, err
	}
	return decodeF32Blob(raw)
}

// fetch retrieves name from the blob store, retrying up to maxRetries
// times with exponential backoff before surfacing LOAD_FAILED.
func (l *Loader) fetch(ctx context.Context, name string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		data, err := l.store.GetFileByName(ctx, name)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if attempt < maxRetries {
			time.Sleep(time.Duration(math.Pow(2, float64(attempt))) * 10 * time.Millisecond)
		}
	}
	return nil, rpcerr.Wrap(rpcerr.ErrLoadFailed, "fetching %q: %v", name, lastErr)
}
