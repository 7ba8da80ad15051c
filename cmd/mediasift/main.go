// Command mediasift analyses batches of images, sending one representative
// of each group of near-duplicates to a vision model and propagating its
// result to the rest of the group.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/mediasift/internal/config"
)

var (
	configPath string
	verbose    bool
	logger     = slog.Default()
)

var rootCmd = &cobra.Command{
	Use:   "mediasift",
	Short: "Similarity-grouped batch image analysis",
	Long: `mediasift groups perceptually similar images, analyses one representative
per group with a tiered vision model, and derives results for the rest.

Configuration is read from mediasift.yaml (or --config), then MEDIASIFT_*
environment variables, then command-line flags.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = newLogger(os.Stderr, verbose)
		slog.SetDefault(logger)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: mediasift.yaml if present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadConfig reads the configuration or exits
func loadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		fatalf("failed to load config: %v", err)
	}
	return cfg
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
