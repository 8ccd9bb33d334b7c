// Command taskctl drives a PRD's task graph to completion: load it, wire
// the plugin pipeline and model router from configuration, install a
// Signal Handler for graceful cancellation, and run the Orchestrator
// Facade. Exit code is 0 on a completed run, 130 on cancellation, 1 on
// any other failure, matching the CLI surface described for the service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/itsneelabh/taskctl/checkpoint"
	"github.com/itsneelabh/taskctl/core"
	"github.com/itsneelabh/taskctl/eventbus"
	"github.com/itsneelabh/taskctl/llm"
	"github.com/itsneelabh/taskctl/orchestrator"
	"github.com/itsneelabh/taskctl/plugin"
	"github.com/itsneelabh/taskctl/router"
	"github.com/itsneelabh/taskctl/session"
	"github.com/itsneelabh/taskctl/signal"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		prdPath       = flag.String("prd", "", "path to the PRD file (JSON or YAML)")
		runID         = flag.String("run-id", "", "run id to resume or start; defaults to a new uuid")
		model         = flag.String("model", "", "model name every tier resolves to")
		cliCommand    = flag.String("cli-backend", "", "CLI command to invoke for generation, e.g. \"claude\"")
		apiBaseURL    = flag.String("api-base-url", "", "HTTP base URL for an API backend; overrides -cli-backend")
		apiKey        = flag.String("api-key", os.Getenv("TASKCTL_API_KEY"), "API key for the HTTP backend")
		maxConcurrent = flag.Int("max-concurrency", 4, "maximum tasks run in parallel")
		typecheckCmd  = flag.String("typecheck-cmd", "", "command run as the final typecheck fix pass, e.g. \"npx tsc --noEmit\"")
		maxBudgetUSD  = flag.Float64("max-budget-usd", 0, "abort once spend exceeds this many dollars (0 = unlimited)")
	)
	flag.Parse()

	if *prdPath == "" {
		fmt.Fprintln(os.Stderr, "taskctl: -prd is required")
		return 1
	}
	if *model == "" {
		fmt.Fprintln(os.Stderr, "taskctl: -model is required")
		return 1
	}

	cfg, err := core.NewConfig(core.WithBudget(*maxBudgetUSD, 0, 0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "taskctl: config error: %v\n", err)
		return 1
	}
	logger := cfg.Logger()

	id := *runID
	if id == "" {
		id = uuid.NewString()
	}

	backend, err := buildBackend(*cliCommand, *apiBaseURL, *apiKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "taskctl: %v\n", err)
		return 1
	}

	tiers := router.TierModels{
		core.TierCheap:   {*model},
		core.TierMid:     {*model},
		core.TierPremium: {*model},
	}
	modelRouter := router.NewModelRouter(tiers, router.NewHistoryStore(), logger)
	fallback := router.NewFallbackRouter(modelRouter, router.NewHistoryStore(), router.ConnectProbe{}, logger)
	providers := map[string]llm.Backend{*model: backend}

	pipeline, err := buildPipeline(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "taskctl: %v\n", err)
		return 1
	}

	sessions, err := buildSessionStore(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "taskctl: %v\n", err)
		return 1
	}

	checkpointMgr, err := buildCheckpointManager(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "taskctl: %v\n", err)
		return 1
	}

	bus := eventbus.New(logger)
	bus.On(func(evt eventbus.Event) error {
		logger.Info("event", map[string]interface{}{"kind": string(evt.Kind), "run_id": evt.RunID, "task_id": evt.TaskID})
		return nil
	})

	facadeOpts := []orchestrator.Option{
		orchestrator.WithMaxConcurrency(*maxConcurrent),
		orchestrator.WithCheckpoints(checkpointMgr),
		orchestrator.WithEventBus(bus),
	}
	if *typecheckCmd != "" {
		facadeOpts = append(facadeOpts, orchestrator.WithTypecheckCommand(flagSplit(*typecheckCmd)))
	}
	facade := orchestrator.NewFacade(cfg, fallback, pipeline, providers, sessions, facadeOpts...)

	sigHandler := signal.NewHandler(logger)
	ctx := sigHandler.Install(context.Background(), func() {
		logger.Warn("cancellation requested, waiting for in-flight tasks to unwind", map[string]interface{}{"run_id": id})
	})
	defer sigHandler.Uninstall()

	state, runErr := facade.Run(ctx, *prdPath, id)

	if sigHandler.State() != signal.StateRunning {
		return 130
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "taskctl: run %s failed: %v\n", id, runErr)
		return 1
	}

	logger.Info("run completed", map[string]interface{}{
		"run_id": id, "completed": len(state.CompletedTasks), "failed": len(state.FailedTasks),
		"cost_usd": state.TotalCostUSD, "tokens": state.TotalTokensUsed,
	})
	return 0
}

func buildBackend(cliCommand, apiBaseURL, apiKey string) (llm.Backend, error) {
	if apiBaseURL != "" {
		return llm.NewAPIBackend(apiBaseURL, apiKey), nil
	}
	if cliCommand != "" {
		return llm.NewCLIBackend(cliCommand, nil), nil
	}
	return nil, fmt.Errorf("one of -cli-backend or -api-base-url is required")
}

func buildPipeline(cfg *core.Config, logger core.Logger) (*plugin.Pipeline, error) {
	plugins := []plugin.Plugin{
		plugin.NewRetryPlugin(3, logger),
		plugin.NewRateLimitPlugin(10, 5, 10*time.Second, logger),
	}

	cb, err := plugin.NewCircuitBreakerPlugin("taskctl", 5, 30*time.Second, logger)
	if err != nil {
		return nil, fmt.Errorf("build circuit breaker plugin: %w", err)
	}
	plugins = append(plugins, cb)

	if cfg.Budget.MaxUSD > 0 || cfg.Budget.MaxTokens > 0 {
		plugins = append(plugins, plugin.NewCostPlugin(plugin.DefaultPricingTable(), cfg.Budget.MaxUSD, cfg.Budget.MaxTokens, logger))
	}

	return plugin.NewPipeline(logger, plugins...), nil
}

func buildSessionStore(cfg *core.Config, logger core.Logger) (session.Store, error) {
	switch cfg.Session.Backend {
	case "file":
		return session.NewFileStore(cfg.Session.Dir, logger)
	case "memory", "":
		return session.NewMemoryStore(cfg.Session.TTL, logger), nil
	default:
		return nil, fmt.Errorf("unsupported session backend %q for the CLI; use memory or file", cfg.Session.Backend)
	}
}

func buildCheckpointManager(cfg *core.Config, logger core.Logger) (*checkpoint.Manager, error) {
	switch cfg.Checkpoint.Backend {
	case "file", "":
		dir := cfg.Checkpoint.Dir
		if dir == "" {
			dir = ".taskctl/checkpoints"
		}
		store, err := checkpoint.NewFileStore(dir)
		if err != nil {
			return nil, err
		}
		return checkpoint.NewManager(store, 20, logger), nil
	default:
		return nil, fmt.Errorf("unsupported checkpoint backend %q for the CLI; use file", cfg.Checkpoint.Backend)
	}
}

func flagSplit(s string) []string {
	var parts []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ' ' {
			if i > start {
				parts = append(parts, s[start:i])
			}
			start = i + 1
		}
	}
	return parts
}
