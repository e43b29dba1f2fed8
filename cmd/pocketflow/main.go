// Command pocketflow runs, validates and serves YAML flow definitions.
//
//	pocketflow run [-config file] [-input json] [-start id] [-path] flow.yaml
//	pocketflow validate flow.yaml...
//	pocketflow graph [-format dot|mermaid] flow.yaml
//	pocketflow serve [-config file]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/petrijr/pocketflow"
	"github.com/petrijr/pocketflow/internal/config"
	"github.com/petrijr/pocketflow/internal/definition"
	"github.com/petrijr/pocketflow/internal/engine"
	"github.com/petrijr/pocketflow/internal/server"
	"github.com/petrijr/pocketflow/pkg/api"
	"github.com/petrijr/pocketflow/pkg/nodes"
	"github.com/petrijr/pocketflow/pkg/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  pocketflow run [-config file] [-input json] [-start id] [-path] flow.yaml")
	fmt.Fprintln(w, "  pocketflow validate flow.yaml...")
	fmt.Fprintln(w, "  pocketflow graph [-format dot|mermaid] flow.yaml")
	fmt.Fprintln(w, "  pocketflow serve [-config file]")
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}

	var err error
	switch args[0] {
	case "run":
		err = runCmd(ctx, args[1:], stdout, stderr)
	case "validate":
		err = validateCmd(args[1:], stdout, stderr)
	case "graph":
		err = graphCmd(args[1:], stdout, stderr)
	case "serve":
		err = serveCmd(ctx, args[1:], stderr)
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		usage(stderr)
		return 2
	}
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

// loadConfig reads .env, then the config file at path or the default one.
func loadConfig(path string) (*config.Config, error) {
	config.LoadEnv()
	if path != "" {
		return config.Load(path)
	}
	return config.LoadDefault()
}

func buildOptions(cfg *config.Config, logger *slog.Logger) definition.BuildOptions {
	opts := definition.BuildOptions{
		Logger:       logger,
		Observer:     pocketflow.NewLoggingObserver(logger),
		MaxSteps:     cfg.Engine.MaxSteps,
		DefaultModel: cfg.LLM.Model,
	}
	if cfg.LLM.APIKey != "" || cfg.LLM.BaseURL != "" {
		opts.LLMClient = nodes.NewOpenAIClient(cfg.LLM.APIKey, cfg.LLM.BaseURL)
	}
	return opts
}

func runCmd(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "config file (default pocketflow.yaml if present)")
	input := fs.String("input", "", "JSON object written to the store before the run")
	start := fs.String("start", "", "node to start from instead of the flow's start node")
	showPath := fs.Bool("path", false, "draw the execution path on stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("run needs exactly one flow file")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := config.NewLogger(cfg.Log, stderr)

	def, err := definition.LoadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	flow, err := definition.Build(def, buildOptions(cfg, logger))
	if err != nil {
		return err
	}
	if err := flow.Validate(); err != nil {
		return err
	}

	backend, err := config.OpenStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer backend.Close()

	if *input != "" {
		var values map[string]any
		if err := json.Unmarshal([]byte(*input), &values); err != nil {
			return fmt.Errorf("parse -input: %w", err)
		}
		for k, v := range values {
			if err := backend.Store.Set(ctx, k, v); err != nil {
				return err
			}
		}
	}

	res, err := pocketflow.NewRunner().Run(ctx, pocketflow.RunRequest{Flow: flow, Store: backend.Store, StartNode: *start})
	if err != nil {
		return err
	}
	if *showPath {
		fmt.Fprint(stderr, engine.RenderPath(res.ExecutionPath))
	}
	snapshot, err := api.Snapshot(ctx, backend.Store)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"result": res.Record(), "store": snapshot})
}

func validateCmd(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return errors.New("validate needs at least one flow file")
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	failed := 0
	for _, path := range args {
		err := validateFile(path, logger)
		if err != nil {
			failed++
			fmt.Fprintf(stderr, "%s: %v\n", path, err)
			continue
		}
		fmt.Fprintf(stdout, "%s: ok\n", path)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d flow files invalid", failed, len(args))
	}
	return nil
}

func validateFile(path string, logger *slog.Logger) error {
	def, err := definition.LoadFile(path)
	if err != nil {
		return err
	}
	flow, err := definition.Build(def, definition.BuildOptions{Logger: logger})
	if err != nil {
		return err
	}
	return flow.Validate()
}

func graphCmd(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("graph", flag.ContinueOnError)
	fs.SetOutput(stderr)
	formatName := fs.String("format", "dot", "output format: dot or mermaid")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("graph needs exactly one flow file")
	}
	format, err := engine.ParseGraphFormat(*formatName)
	if err != nil {
		return err
	}

	def, err := definition.LoadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	flow, err := definition.Build(def, definition.BuildOptions{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	if err != nil {
		return err
	}
	return flow.WriteGraph(stdout, format)
}

func serveCmd(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "config file (default pocketflow.yaml if present)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := config.NewLogger(cfg.Log, stderr)
	slog.SetDefault(logger)

	backend, err := config.OpenStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer backend.Close()

	runner := pocketflow.NewRunner(
		pocketflow.WithConcurrency(cfg.Engine.Concurrency),
		pocketflow.WithRunnerLogger(logger),
	)
	build := buildOptions(cfg, logger)

	queue, err := config.OpenQueue(ctx, cfg)
	if err != nil {
		return err
	}
	defer queue.Close()

	opts := server.Options{
		Build:          build,
		Runner:         runner,
		Logger:         logger,
		SharedStore:    backend.Store,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}
	if queue != nil {
		opts.Queue = queue.Queue
		opts.RunStore = backend.Store
		opts.Worker = worker.Config{MaxAttempts: cfg.Queue.MaxAttempts, Backoff: cfg.Queue.Backoff}
	}
	srv := server.New(opts)
	if err := registerFlows(srv, cfg.Engine.FlowsDir, logger); err != nil {
		return err
	}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		if w := srv.Worker(); w != nil {
			logger.Info("starting queue workers", "backend", cfg.Queue.Backend, "workers", cfg.Queue.Workers)
			if err := w.Run(workerCtx, cfg.Queue.Workers); err != nil {
				logger.Error("queue workers stopped", "error", err)
			}
		}
	}()
	defer func() {
		stopWorkers()
		<-workersDone
	}()

	scheduler, err := newScheduler(cfg, build, runner, logger)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("starting pocketflow server", "addr", httpSrv.Addr, "flows", len(srv.Names()))
		errc <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down pocketflow server")
	return httpSrv.Shutdown(shutdownCtx)
}

func registerFlows(srv *server.Server, dir string, logger *slog.Logger) error {
	if dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		logger.Warn("flows directory not found", "dir", dir)
		return nil
	}
	defs, err := definition.LoadDir(dir)
	if err != nil {
		return err
	}
	for _, def := range defs {
		if err := srv.Register(def); err != nil {
			return fmt.Errorf("flow %q: %w", def.Name, err)
		}
	}
	return nil
}

// newScheduler registers every configured schedule. Each tick runs against
// a fresh memory store seeded from the schedule's store values.
func newScheduler(cfg *config.Config, build definition.BuildOptions, runner *pocketflow.Runner, logger *slog.Logger) (*pocketflow.Scheduler, error) {
	scheduler := pocketflow.NewScheduler(runner, logger)
	for _, sc := range cfg.Schedules {
		def, err := definition.LoadFile(sc.Flow)
		if err != nil {
			return nil, fmt.Errorf("schedule %q: %w", sc.Name, err)
		}
		flow, err := definition.Build(def, build)
		if err != nil {
			return nil, fmt.Errorf("schedule %q: %w", sc.Name, err)
		}
		values := sc.Store
		err = scheduler.Add(sc.Cron, sc.Name, func() (pocketflow.RunRequest, error) {
			return pocketflow.RunRequest{Flow: flow, Store: pocketflow.NewMemoryStoreFrom(values)}, nil
		})
		if err != nil {
			return nil, err
		}
	}
	return scheduler, nil
}
