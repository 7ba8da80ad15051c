package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/steveyegge/mediasift/internal/ai"
	"github.com/steveyegge/mediasift/internal/config"
	"github.com/steveyegge/mediasift/internal/coordinator"
	"github.com/steveyegge/mediasift/internal/media"
	"github.com/steveyegge/mediasift/internal/progress"
	"github.com/steveyegge/mediasift/internal/report"
	"github.com/steveyegge/mediasift/internal/storage"
	"github.com/steveyegge/mediasift/internal/storage/sqlite"
)

var errNoImages = errors.New("no images found")

var analyzeCmd = &cobra.Command{
	Use:   "analyze <dir>",
	Short: "Group and analyse every image under a directory",
	Long: `Scan a directory for images, group near-duplicates, analyse one
representative per group and propagate the result to the other members.

Progress is checkpointed; rerun with --resume to pick up an interrupted run.
Ctrl-C stops scheduling new work, lets in-flight calls finish and writes a
checkpoint.

Examples:
  mediasift analyze ./photos
  mediasift analyze ./photos --budget 2.50 --report out.json
  mediasift analyze ./photos --resume --store sqlite --store-path runs.db`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if err := applyAnalyzeFlags(cmd, cfg); err != nil {
			fatalf("%v", err)
		}

		router, err := newRouter(cfg, logger)
		if err != nil {
			fatalf("%v", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rep, err := runAnalyze(ctx, args[0], cfg, router)
		if errors.Is(err, errNoImages) {
			fmt.Printf("No images found under %s\n", args[0])
			return
		}
		if rep != nil {
			printSummary(os.Stdout, rep, cfg.Budget.Ceiling)
		}
		if err != nil {
			fatalf("%v", err)
		}

		reportPath, _ := cmd.Flags().GetString("report")
		if reportPath != "" {
			if err := rep.WriteFile(reportPath); err != nil {
				fatalf("%v", err)
			}
			fmt.Printf("Report written to %s\n", reportPath)
		}
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	addAnalyzeFlags(analyzeCmd)
}

func addAnalyzeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Int("concurrency", 0, "Maximum in-flight analyses")
	f.Duration("rate-interval", 0, "Minimum spacing between capability calls (0 disables)")
	f.Int("max-attempts", 0, "Attempts per item, first attempt included")
	f.Float64("budget", 0, "Spend ceiling in USD for the run (0 skips everything)")
	f.Bool("resume", false, "Resume from the checkpoint of a previous run")
	f.String("run-token", "", "Checkpoint key (default: derived from the item ids)")
	f.String("tier", "", "Start escalation at this tier")
	f.Duration("timeout", 0, "Timeout for each capability call")
	f.String("store", "", "Checkpoint backend: file or sqlite")
	f.String("store-path", "", "Checkpoint directory (file) or database (sqlite)")
	f.String("report", "", "Write the JSON report to this file")
}

// applyAnalyzeFlags overlays the flags the user set onto cfg
func applyAnalyzeFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	var err error
	if f.Changed("concurrency") {
		cfg.Coordinator.Concurrency, err = f.GetInt("concurrency")
	}
	if err == nil && f.Changed("rate-interval") {
		cfg.Coordinator.RateInterval, err = f.GetDuration("rate-interval")
	}
	if err == nil && f.Changed("max-attempts") {
		cfg.Coordinator.MaxAttempts, err = f.GetInt("max-attempts")
	}
	if err == nil && f.Changed("budget") {
		var ceiling float64
		ceiling, err = f.GetFloat64("budget")
		cfg.Budget = cfg.Budget.WithCeiling(ceiling)
	}
	if err == nil && f.Changed("resume") {
		cfg.Coordinator.Resume, err = f.GetBool("resume")
	}
	if err == nil && f.Changed("run-token") {
		cfg.Coordinator.RunToken, err = f.GetString("run-token")
	}
	if err == nil && f.Changed("tier") {
		cfg.Coordinator.PinnedTier, err = f.GetString("tier")
	}
	if err == nil && f.Changed("timeout") {
		cfg.Coordinator.CallTimeout, err = f.GetDuration("timeout")
	}
	if err == nil && f.Changed("store") {
		cfg.Checkpoint.Backend, err = f.GetString("store")
	}
	if err == nil && f.Changed("store-path") {
		cfg.Checkpoint.Path, err = f.GetString("store-path")
	}
	if err != nil {
		return fmt.Errorf("invalid flag: %w", err)
	}
	return cfg.Validate()
}

// newRouter registers a provider for every provider the tiers name.
// API keys come from the environment.
func newRouter(cfg *config.Config, logger *slog.Logger) (*ai.Router, error) {
	router := ai.NewRouter(cfg.Coordinator.Retry, logger)
	for _, name := range cfg.ProviderNames() {
		var (
			capability ai.Capability
			err        error
		)
		switch name {
		case ai.ProviderAnthropic:
			capability, err = ai.NewAnthropicCapability("")
		case ai.ProviderOpenAI:
			capability, err = ai.NewOpenAICapability("", cfg.Providers.OpenAIBaseURL)
		default:
			err = fmt.Errorf("unsupported provider (want %s or %s)", ai.ProviderAnthropic, ai.ProviderOpenAI)
		}
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}
		router.Register(name, capability)
	}
	return router, nil
}

// runAnalyze runs one batch over the images under dir. Cancelling ctx stops
// the run cooperatively; the partial report is still returned.
func runAnalyze(ctx context.Context, dir string, cfg *config.Config, capability ai.Capability) (*report.Report, error) {
	items, err := media.Scan(dir)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, errNoImages
	}

	run := cfg.Run()
	if run.RunToken == "" {
		run.RunToken = progress.TokenFor(items)
	}
	if err := storage.ValidateToken(run.RunToken); err != nil {
		return nil, err
	}

	store, err := storage.NewCheckpointStore(ctx, cfg.Checkpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	defer store.Close()

	if locks := lockDir(cfg.Checkpoint); locks != "" {
		lockPath, err := storage.AcquireRunLock(locks, run.RunToken)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := storage.ReleaseRunLock(lockPath); err != nil {
				logger.Warn("failed to release run lock", slog.Any("error", err))
			}
		}()
	}

	coord, err := coordinator.New(capability, media.FileSource{Root: dir}, store, run, logger)
	if err != nil {
		return nil, err
	}

	if ctx.Err() != nil {
		coord.Stop()
	}
	stopOnCancel := context.AfterFunc(ctx, func() {
		logger.Warn("stopping run; waiting for in-flight analyses")
		coord.Stop()
	})
	defer stopOnCancel()

	return coord.Run(context.WithoutCancel(ctx), items)
}

// lockDir returns where run locks live for a checkpoint configuration, or
// "" when checkpoints are not shared between processes.
func lockDir(cfg storage.Config) string {
	switch {
	case cfg.Backend == storage.BackendSQLite && cfg.Path == sqlite.MemoryPath:
		return ""
	case cfg.Backend == storage.BackendSQLite:
		return filepath.Dir(cfg.Path)
	default:
		return cfg.Path
	}
}
