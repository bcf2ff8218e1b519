// corolaria ingests Spanish (BOE) and EU (EUR-Lex) legislation into a
// property graph: typed content trees, article embeddings, and bulk-linked
// legal cross-references.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mhanii/corolaria/internal/config"
	"github.com/mhanii/corolaria/internal/logging"
	"github.com/mhanii/corolaria/internal/pipeline"
)

var (
	// Global flags
	configPath string
	workspace  string
	debug      bool

	// Single-document mode
	lawID      string
	dryRun     bool
	noTracing  bool
	outputJSON string

	// Batch mode
	batchFile        string
	cpuWorkers       int
	networkWorkers   int
	diskWorkers      int
	scatterChunkSize int
	skipEmbeddings   bool
	simulate         bool
	clean            bool
	semaphore        int

	// Rollback mode
	rollbackID string

	// Offline fixtures
	archiveDir string

	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "corolaria",
	Short: "Legal document ingestion engine for BOE and EUR-Lex",
	Long: `corolaria retrieves consolidated legislation from BOE and EUR-Lex,
parses it into versioned typed content trees, embeds every article,
persists the result to a property graph, and bulk-links the legal
cross-references between documents.

Modes:
  corolaria --law-id BOE-A-2015-10565        ingest one document
  corolaria --batch ids.txt                  ingest a batch (one id per line)
  corolaria --rollback BOE-A-2015-10565      remove a previously ingested document`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if workspace != "" {
			cfg.Workspace = workspace
		}
		if debug {
			cfg.Logging.Debug = true
		}
		applyFlagOverrides(cfg)

		if err := logging.Initialize(cfg.Workspace, cfg.Logging.Debug, cfg.Logging.Level); err != nil {
			return err
		}
		logging.SetTracing(!noTracing)

		zcfg := zap.NewProductionConfig()
		zcfg.Encoding = "console"
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		if cfg.Logging.Debug {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
	RunE: runRoot,
}

// applyFlagOverrides lets CLI flags win over file and environment.
func applyFlagOverrides(cfg *config.Config) {
	if cpuWorkers > 0 {
		cfg.Workers.CPU = cpuWorkers
	}
	if networkWorkers > 0 {
		cfg.Workers.Network = networkWorkers
	}
	if diskWorkers > 0 {
		cfg.Workers.Disk = diskWorkers
	}
	if semaphore > 0 {
		cfg.Workers.QueueCapacity = semaphore
	}
	if scatterChunkSize > 0 {
		cfg.Embedding.ScatterChunkSize = scatterChunkSize
	}
	if clean {
		cfg.Cache.Enabled = false
	}
	if simulate {
		cfg.Embedding.Provider = "simulated"
	}
}

func runRoot(cmd *cobra.Command, args []string) error {
	modes := 0
	for _, set := range []bool{lawID != "", batchFile != "", rollbackID != ""} {
		if set {
			modes++
		}
	}
	if modes == 0 {
		return cmd.Help()
	}
	if modes > 1 {
		return fmt.Errorf("--law-id, --batch and --rollback are mutually exclusive")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case rollbackID != "":
		return runRollback(rollbackID)
	case batchFile != "":
		return runBatch(ctx, batchFile)
	default:
		return runSingle(ctx, lawID)
	}
}

func runSingle(ctx context.Context, id string) error {
	svc, err := buildServices(buildOpts{dryRun: dryRun})
	if err != nil {
		return err
	}
	defer svc.Close()

	logger.Info("Ingesting document", zap.String("law_id", id), zap.Bool("dry_run", dryRun))
	res := svc.runner.Run(ctx, id)

	if err := emitJSON(res, outputJSON); err != nil {
		return err
	}
	if res.Status != "success" {
		step, _ := failedStep(res)
		return fmt.Errorf("ingestion of %s failed at %s", id, step)
	}
	// Single documents get their references linked immediately.
	if svc.orch != nil && svc.linker != nil {
		if links, err := svc.linker.Run(ctx); err != nil {
			logger.Warn("Reference linking failed", zap.Error(err))
		} else {
			logger.Info("Reference linking done", zap.Int("links", links))
		}
	}
	return nil
}

func runBatch(ctx context.Context, file string) error {
	ids, err := readBatchFile(file)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return fmt.Errorf("batch file %s contains no document ids", file)
	}

	svc, err := buildServices(buildOpts{dryRun: dryRun})
	if err != nil {
		return err
	}
	defer svc.Close()

	logger.Info("Starting batch ingestion",
		zap.Int("documents", len(ids)),
		zap.Int("cpu_workers", cfg.Workers.CPU),
		zap.Int("network_workers", cfg.Workers.Network),
		zap.Int("disk_workers", cfg.Workers.Disk))

	res := svc.orch.RunBatch(ctx, ids)

	if err := emitJSON(res, outputJSON); err != nil {
		return err
	}
	logger.Info("Batch done",
		zap.Int("successful", res.Successful),
		zap.Int("failed", res.Failed),
		zap.Int("reference_links", res.TotalReferenceLinks))

	if res.Successful == 0 && res.Total > 0 {
		return fmt.Errorf("every document in the batch failed")
	}
	return nil
}

func runRollback(id string) error {
	svc, err := buildServices(buildOpts{storeOnly: true})
	if err != nil {
		return err
	}
	defer svc.Close()

	deleted, err := svc.store.DeleteDocumentCascade(id)
	if err != nil {
		return fmt.Errorf("rollback of %s failed: %w", id, err)
	}
	logger.Info("Rollback done", zap.String("law_id", id), zap.Int64("nodes_removed", deleted))
	return nil
}

// readBatchFile loads one document id per line; blank lines and #-comments
// are skipped.
func readBatchFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}
	var ids []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	return ids, nil
}

// emitJSON writes the result to stdout and optionally to a file.
func emitJSON(v interface{}, path string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	if path != "" {
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return nil
}

func failedStep(res pipeline.DocumentResult) (string, string) {
	for _, step := range res.StepResults {
		if step.Status == "failed" {
			return step.StepName, step.ErrorMessage
		}
	}
	return "unknown", ""
}

func main() {
	rootCmd.Flags().StringVar(&lawID, "law-id", "", "Ingest a single document by id (BOE or CELEX)")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Run retrieval, parsing and embedding without touching the store")
	rootCmd.Flags().BoolVar(&noTracing, "no-tracing", false, "Disable per-operation trace spans")
	rootCmd.Flags().StringVar(&outputJSON, "output-json", "", "Also write the result JSON to this file")

	rootCmd.Flags().StringVar(&batchFile, "batch", "", "Ingest a batch from a file with one document id per line")
	rootCmd.Flags().IntVar(&cpuWorkers, "cpu-workers", 0, "Parse pool size (default 5)")
	rootCmd.Flags().IntVar(&networkWorkers, "network-workers", 0, "Embedding pool size (default 20)")
	rootCmd.Flags().IntVar(&diskWorkers, "disk-workers", 0, "Persistence pool size (default 2)")
	rootCmd.Flags().IntVar(&scatterChunkSize, "scatter-chunk-size", 0, "Articles per embedding scatter chunk (default 200)")
	rootCmd.Flags().BoolVar(&skipEmbeddings, "skip-embeddings", false, "Store zero-vector placeholders instead of calling the API")
	rootCmd.Flags().BoolVar(&simulate, "simulate", false, "Use the deterministic simulated embedding engine")
	rootCmd.Flags().BoolVar(&clean, "clean", false, "Disable the embedding cache")
	rootCmd.Flags().IntVar(&semaphore, "semaphore", 0, "Bounded queue capacity between pools (default 10)")

	rootCmd.Flags().StringVar(&rollbackID, "rollback", "", "Remove a previously ingested document and everything it owns")
	rootCmd.Flags().StringVar(&archiveDir, "archive-dir", "", "Read documents from an offline archive directory instead of the network")

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&workspace, "workspace", "", "Workspace directory for logs and databases")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable categorized debug logging")

	rootCmd.AddCommand(searchCmd, statsCmd, cacheCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
