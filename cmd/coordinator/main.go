// Command coordinator drives the sharded inference engine: it loads
// weights across a set of worker addresses, then runs an interactive
// generation loop over stdin/stdout.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shardrunner/engine/internal/blobstore"
	"github.com/shardrunner/engine/internal/config"
	"github.com/shardrunner/engine/internal/coordinator"
	"github.com/shardrunner/engine/internal/generator"
	"github.com/shardrunner/engine/internal/loader"
	"github.com/shardrunner/engine/internal/sampler"
	"github.com/shardrunner/engine/internal/tokenizer"
	"github.com/shardrunner/engine/internal/transport"
)

func main() {
	var modelDir string
	var workerAddrs []string
	var configPath string
	var maxNewTokens int

	root := &cobra.Command{
		Use:           "coordinator",
		Short:         "Load a sharded model across workers and chat with it",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), modelDir, workerAddrs, configPath, maxNewTokens)
		},
	}
	root.Flags().StringVar(&modelDir, "model-dir", "", "directory holding the named weight files (required)")
	root.Flags().StringSliceVar(&workerAddrs, "workers", nil, "comma-separated worker base URLs, e.g. http://localhost:9100")
	root.Flags().StringVar(&configPath, "config", "", "optional YAML hyperparameters file; defaults are used if empty")
	root.Flags().IntVar(&maxNewTokens, "max-new-tokens", 256, "generation cutoff per turn")
	root.MarkFlagRequired("model-dir")
	root.MarkFlagRequired("workers")

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, modelDir string, workerAddrs []string, configPath string, maxNewTokens int) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	poster := transport.NewHTTPPoster(urlsByWorkerID(workerAddrs))
	handles := make([]*coordinator.Handle, len(workerAddrs))
	for i, addr := range workerAddrs {
		h := coordinator.NewHandle(addr, poster)
		poster.Register(addr, h)
		handles[i] = h
	}
	engine := coordinator.NewEngine(handles)

	store := blobstore.NewDisk(modelDir)
	ld := loader.New(store, engine)

	status := make(chan loader.Status, 16)
	go func() {
		for s := range status {
			slog.Info("load status", "kind", s.Kind, "message", s.Message)
		}
	}()

	model, err := ld.Load(ctx, cfg, status)
	if err != nil {
		return fmt.Errorf("coordinator: load: %w", err)
	}

	tok := tokenizer.NewSimpleTokenizer()
	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0xdeadbeef))
	gen := generator.New(model, sampler.Params{Temperature: cfg.Temperature, TopP: cfg.TopP}, rng)

	fmt.Println("ready. type a message and press enter.")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		prompt := tok.EncodeDialogPrompt([]tokenizer.Message{{Role: tokenizer.RoleUser, Content: line}})
		gen.AddTokens(prompt)

		var produced []int
		for i := 0; i < maxNewTokens; i++ {
			next := gen.NextToken()
			if tok.IsEOT(next) {
				break
			}
			produced = append(produced, next)
		}
		fmt.Println(tok.Decode(produced))
	}
	return scanner.Err()
}

func urlsByWorkerID(addrs []string) map[string]string {
	m := make(map[string]string, len(addrs))
	for _, a := range addrs {
		m[a] = a
	}
	return m
}
