// Package main runs the NextStep agent against a benchmark session.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Flagro/holosophos-erc3/pkg/agent"
	llmmetrics "github.com/Flagro/holosophos-erc3/pkg/agent/middleware/metrics"
	"github.com/Flagro/holosophos-erc3/pkg/config"
	"github.com/Flagro/holosophos-erc3/pkg/contextmgr"
	"github.com/Flagro/holosophos-erc3/pkg/corporate"
	"github.com/Flagro/holosophos-erc3/pkg/eventlog"
	"github.com/Flagro/holosophos-erc3/pkg/logx"
	"github.com/Flagro/holosophos-erc3/pkg/metrics"
	"github.com/Flagro/holosophos-erc3/pkg/nextstep"
	"github.com/Flagro/holosophos-erc3/pkg/persistence"
	"github.com/Flagro/holosophos-erc3/pkg/platform"
	"github.com/Flagro/holosophos-erc3/pkg/progress"
	"github.com/Flagro/holosophos-erc3/pkg/session"
	"github.com/Flagro/holosophos-erc3/pkg/telemetry"
	"github.com/Flagro/holosophos-erc3/pkg/utils"
	"github.com/Flagro/holosophos-erc3/pkg/version"
)

type options struct {
	configPath      string
	benchmark       string
	workspace       string
	model           string
	maxTurns        int
	dbPath          string
	metricsAddr     string
	metricsTextfile string
	traceDir        string
	noPlatformLog   bool
	debug           bool
	storeSecrets    bool
	queryTask       string
	prometheusURL   string
}

func main() {
	var (
		opts        options
		showVersion bool
	)
	flag.StringVar(&opts.configPath, "config", "", "Path to config file (default: "+config.DefaultConfigFile+" if present)")
	flag.StringVar(&opts.benchmark, "benchmark", "", "Benchmark to run (corporate)")
	flag.StringVar(&opts.workspace, "workspace", "", "Platform workspace")
	flag.StringVar(&opts.model, "model", "", "Model name (e.g. gpt-4o, claude-sonnet-4-5, gemini-2.5-pro, ollama:llama3.1)")
	flag.IntVar(&opts.maxTurns, "max-turns", 0, "Maximum decisions per task")
	flag.StringVar(&opts.dbPath, "db", "", "SQLite database for run history (empty keeps the configured path)")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	flag.StringVar(&opts.metricsTextfile, "metrics-textfile", "", "Write final metrics to this textfile on exit")
	flag.StringVar(&opts.traceDir, "trace-dir", "", "Append a JSONL decision trace to this directory")
	flag.BoolVar(&opts.noPlatformLog, "no-platform-log", false, "Do not report LLM usage to the platform")
	flag.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&opts.storeSecrets, "store-secrets", false, "Encrypt API keys from the environment into the secrets file and exit")
	flag.StringVar(&opts.queryTask, "query-task", "", "Print token and cost totals of a task from Prometheus and exit")
	flag.StringVar(&opts.prometheusURL, "prometheus-url", "http://localhost:9090", "Prometheus server used by -query-task")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.Parse()

	if showVersion {
		fmt.Printf("nextstep %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	os.Exit(run(opts))
}

func run(opts options) int {
	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}
	logx.SetDebugConfig(cfg.Logging.Debug, false, "")
	logx.SetDebugDomains(cfg.Logging.Domains)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case opts.storeSecrets:
		if err := storeSecrets(cfg.SecretsFile); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to store secrets: %v\n", err)
			return 1
		}
		fmt.Printf("✅ Secrets written to %s\n", cfg.SecretsFile)
		return 0
	case opts.queryTask != "":
		if err := queryTask(ctx, opts.prometheusURL, opts.queryTask); err != nil {
			fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
			return 1
		}
		return 0
	}

	if cfg.Platform.Benchmark != "corporate" {
		fmt.Fprintf(os.Stderr, "Unsupported benchmark: %s\n", cfg.Platform.Benchmark)
		return 1
	}
	if err := loadSecrets(cfg.SecretsFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load secrets: %v\n", err)
		return 1
	}

	if err := runSession(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Session failed: %v\n", err)
		return 1
	}
	return 0
}

func loadConfig(opts options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.benchmark != "" {
		cfg.Platform.Benchmark = opts.benchmark
	}
	if opts.workspace != "" {
		cfg.Platform.Workspace = opts.workspace
	}
	if opts.model != "" {
		cfg.Agent.Model = opts.model
	}
	if opts.maxTurns > 0 {
		cfg.Agent.MaxTurns = opts.maxTurns
	}
	if opts.dbPath != "" {
		cfg.Telemetry.DBPath = opts.dbPath
	}
	if opts.metricsAddr != "" {
		cfg.Telemetry.MetricsAddr = opts.metricsAddr
	}
	if opts.metricsTextfile != "" {
		cfg.Telemetry.TextfilePath = opts.metricsTextfile
	}
	if opts.traceDir != "" {
		cfg.Telemetry.TraceDir = opts.traceDir
	}
	if opts.noPlatformLog {
		cfg.Telemetry.LogToPlatform = false
	}
	if opts.debug {
		cfg.Logging.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runSession(ctx context.Context, cfg *config.Config) error {
	logger := logx.NewLogger("nextstep")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if cfg.Telemetry.TextfilePath != "" {
		defer func() {
			if err := metrics.WriteTextfile(cfg.Telemetry.TextfilePath, reg); err != nil {
				logger.Warn("Failed to write metrics textfile: %v", err)
			}
		}()
	}
	if cfg.Telemetry.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Telemetry.MetricsAddr, reg); err != nil {
				logger.Error("Metrics server failed: %v", err)
			}
		}()
	}

	client, err := agent.NewStructuredClient(cfg, llmmetrics.NewPrometheusRecorder(reg))
	if err != nil {
		return fmt.Errorf("create LLM client: %w", err)
	}

	apiKey, err := config.GetSecret(config.EnvPlatformAPIKey)
	if err != nil {
		return err
	}
	plat, err := platform.NewClient(cfg.Platform.BaseURL, apiKey, platform.WithTimeout(cfg.Platform.RequestTimeout))
	if err != nil {
		return fmt.Errorf("create platform client: %w", err)
	}

	sinks := []telemetry.Sink{telemetry.NewPrometheusSink(reg)}
	if cfg.Telemetry.LogToPlatform {
		sinks = append(sinks, plat)
	}

	var store session.Store
	if cfg.Telemetry.DBPath != "" {
		db, err := persistence.InitializeDatabase(cfg.Telemetry.DBPath)
		if err != nil {
			return fmt.Errorf("open run history: %w", err)
		}
		defer closeDB(db, logger)
		ops := persistence.NewDatabaseOperations(db, "")
		store = ops
		sinks = append(sinks, telemetry.NewStoreSink(ops))
	}

	var counter contextmgr.TokenCounter
	if tc, err := utils.NewTokenCounter(cfg.Agent.Model); err == nil {
		counter = tc
	} else {
		logger.Warn("History token estimates disabled: %v", err)
	}

	var trace agent.TaskObserverFactory
	if cfg.Telemetry.TraceDir != "" {
		w, err := eventlog.NewWriter(cfg.Telemetry.TraceDir)
		if err != nil {
			return fmt.Errorf("open decision trace: %w", err)
		}
		defer func() {
			if err := w.Close(); err != nil {
				logger.Warn("Failed to close decision trace: %v", err)
			}
		}()
		trace = w.ForTask
	}

	totals := telemetry.NewAggregator()
	runner, err := agent.NewRunner(agent.RunnerConfig{
		Requester:      nextstep.NewRequester(client, corporate.Catalog{}, logx.NewLogger("requester")),
		API:            plat.Corporate,
		Sink:           telemetry.Multi(sinks...),
		Observer:       progress.NewPrinter(os.Stdout),
		Trace:          trace,
		Totals:         totals,
		HistoryCounter: counter,
		Agent:          cfg.Agent,
	})
	if err != nil {
		return err
	}

	start := time.Now()
	summary, err := session.NewDriver(plat, runner, store, os.Stdout).Run(ctx, session.Config{
		StartRequest: session.StartRequest{
			Benchmark:    cfg.Platform.Benchmark,
			Workspace:    cfg.Platform.Workspace,
			Name:         cfg.Platform.SessionName,
			Architecture: cfg.Platform.Architecture,
		},
		Model: cfg.Agent.Model,
	})
	if summary != nil {
		t := totals.Session()
		logger.Info("📊 Session %s: %d/%d tasks attempted, %d failed, score %g, %d LLM calls, %d tokens, $%.4f, %s",
			summary.SessionID, summary.Attempted, summary.Tasks, summary.Failed, summary.Score,
			t.Requests, t.TotalTokens, t.CostUSD, time.Since(start).Round(time.Second))
	}
	return err
}

func closeDB(db *sql.DB, logger *logx.Logger) {
	if err := db.Close(); err != nil {
		logger.Warn("Failed to close database: %v", err)
	}
}

func queryTask(ctx context.Context, prometheusURL, taskID string) error {
	qs, err := metrics.NewQueryService(prometheusURL)
	if err != nil {
		return err
	}
	byModel, err := qs.GetTaskMetricsByModel(ctx, taskID)
	if err != nil {
		return err
	}
	total, err := qs.GetTaskMetrics(ctx, taskID)
	if err != nil {
		return err
	}
	for model, m := range byModel {
		fmt.Printf("%-32s %6d decisions %8d prompt %8d completion  $%.4f\n",
			model, m.Decisions, m.PromptTokens, m.CompletionTokens, m.TotalCost)
	}
	fmt.Printf("%-32s %6d decisions %8d tokens  $%.4f\n", "total", total.Decisions, total.TotalTokens, total.TotalCost)
	return nil
}
