// Command stategraph runs a graph definition from a YAML file against
// an initial JSON state and prints the final state.
//
// Node and router names in the definition resolve against the built-in
// demo bindings; real deployments embed the engine as a library and
// register their own functions.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/BaSui01/stategraph"
	"github.com/BaSui01/stategraph/config"
	"github.com/BaSui01/stategraph/graph"
	"github.com/BaSui01/stategraph/internal/metrics"
	"github.com/BaSui01/stategraph/internal/telemetry"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config YAML")
		graphPath  = flag.String("graph", "", "path to graph definition YAML")
		input      = flag.String("input", "{}", "initial state as a JSON object")
		resumeID   = flag.String("resume", "", "resume the run with this ID instead of starting a new one")
	)
	flag.Parse()

	cfg, err := config.NewLoader().WithConfigPath(*configPath).Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := stategraph.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Fatal("telemetry init failed", zap.Error(err))
	}
	defer providers.Shutdown(ctx)

	store, err := stategraph.OpenStore(cfg)
	if err != nil {
		logger.Fatal("checkpoint store init failed", zap.Error(err))
	}
	defer store.Close()

	if *graphPath == "" {
		logger.Fatal("missing -graph")
	}
	data, err := os.ReadFile(*graphPath)
	if err != nil {
		logger.Fatal("failed to read graph definition", zap.Error(err))
	}
	def, err := graph.DefinitionFromYAML(data)
	if err != nil {
		logger.Fatal("failed to parse graph definition", zap.Error(err))
	}

	b, err := graph.BuildDefinition(def, demoNodes(), demoRouters())
	if err != nil {
		logger.Fatal("failed to build graph", zap.Error(err))
	}
	opts := []graph.Option{graph.WithCheckpointStore(store)}
	if def.MaxSteps > 0 {
		opts = append(opts, graph.WithMaxSteps(def.MaxSteps))
	} else if cfg.Engine.MaxSteps > 0 {
		opts = append(opts, graph.WithMaxSteps(cfg.Engine.MaxSteps))
	}
	if cfg.Engine.StepTimeout > 0 {
		opts = append(opts, graph.WithStepTimeout(cfg.Engine.StepTimeout))
	}
	g, err := b.WithLogger(logger).Compile(opts...)
	if err != nil {
		logger.Fatal("failed to compile graph", zap.Error(err))
	}
	g.SetMetrics(metrics.NewCollector("stategraph", prometheus.DefaultRegisterer, logger))

	var run *graph.Run
	if *resumeID != "" {
		run, err = g.Resume(ctx, *resumeID)
	} else {
		initial := graph.NewState()
		if err := json.Unmarshal([]byte(*input), initial); err != nil {
			logger.Fatal("invalid -input", zap.Error(err))
		}
		run, err = g.Invoke(ctx, initial)
	}
	if err != nil {
		if run != nil {
			logger.Error("run failed",
				zap.String("run_id", run.ID),
				zap.Int("step", run.Step),
				zap.Error(err),
			)
		}
		os.Exit(1)
	}

	final, err := json.MarshalIndent(run.State, "", "  ")
	if err != nil {
		logger.Fatal("failed to render final state", zap.Error(err))
	}
	fmt.Printf("run %s: %s\n%s\n", run.ID, run.Status, final)
}

// demoNodes returns the node bindings available to definitions run
// through this command.
func demoNodes() map[string]graph.NodeFunc {
	return map[string]graph.NodeFunc{
		"uppercase": func(_ context.Context, state *graph.State) (*graph.State, error) {
			text, _ := state.GetOr("text", "").(string)
			u := graph.NewState()
			u.Set("text", strings.ToUpper(text))
			return u, nil
		},
		"word_count": func(_ context.Context, state *graph.State) (*graph.State, error) {
			text, _ := state.GetOr("text", "").(string)
			u := graph.NewState()
			u.Set("words", float64(len(strings.Fields(text))))
			return u, nil
		},
		"approval_gate": func(_ context.Context, _ *graph.State) (*graph.State, error) {
			return graph.MarkPause(graph.NewState()), nil
		},
		"noop": func(_ context.Context, _ *graph.State) (*graph.State, error) {
			return graph.NewState(), nil
		},
	}
}

// demoRouters returns the router bindings available to definitions.
func demoRouters() map[string]graph.RouterFunc {
	return map[string]graph.RouterFunc{
		"by_kind": func(_ context.Context, state *graph.State) (string, error) {
			kind, _ := state.GetOr("kind", "").(string)
			if kind == "" {
				return "", fmt.Errorf("state has no kind")
			}
			return kind, nil
		},
	}
}
