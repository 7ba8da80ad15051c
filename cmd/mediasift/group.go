package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/mediasift/internal/config"
	"github.com/steveyegge/mediasift/internal/grouping"
	"github.com/steveyegge/mediasift/internal/media"
)

var groupCmd = &cobra.Command{
	Use:   "group <dir>",
	Short: "Show how images would be grouped, without analysing them",
	Long: `Fingerprint every image under a directory and print the similarity
groups an analyze run would use. No capability calls are made.

Examples:
  mediasift group ./photos
  mediasift group ./photos --threshold 0.95
  mediasift group ./photos --json > groups.json`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if cmd.Flags().Changed("threshold") {
			cfg.Grouping.Threshold, _ = cmd.Flags().GetFloat64("threshold")
			if err := cfg.Validate(); err != nil {
				fatalf("%v", err)
			}
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		if err := runGroup(cmd.Context(), os.Stdout, args[0], cfg, asJSON); err != nil {
			fatalf("%v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(groupCmd)
	groupCmd.Flags().Float64("threshold", 0, "Minimum similarity (0.0-1.0) to join a group")
	groupCmd.Flags().Bool("json", false, "Print the grouping as JSON")
}

// runGroup groups the images under dir and writes the result to w
func runGroup(ctx context.Context, w io.Writer, dir string, cfg *config.Config, asJSON bool) error {
	items, err := media.Scan(dir)
	if err != nil {
		return err
	}
	grouper, err := grouping.NewGrouper(media.FileSource{Root: dir}, cfg.Grouping, logger)
	if err != nil {
		return err
	}
	result, err := grouper.Group(ctx, items)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	faint := color.New(color.FgHiBlack).SprintFunc()
	fmt.Fprintf(w, "\n%s\n\n", cyan("=== Grouping ==="))

	for i, g := range result.Groups {
		if g.Size() == 1 && !g.Forced {
			continue
		}
		label := fmt.Sprintf("Group %d", i+1)
		if g.Forced {
			label += " " + color.New(color.FgYellow).Sprint("(forced singleton: not fingerprinted)")
		}
		fmt.Fprintf(w, "%s\n", label)
		fmt.Fprintf(w, "  * %s\n", g.Representative)
		others := g.Others()
		sort.SliceStable(others, func(a, b int) bool {
			return g.Confidence[others[a]] > g.Confidence[others[b]]
		})
		for _, id := range others {
			fmt.Fprintf(w, "    %s %s\n", id, faint(fmt.Sprintf("%.3f", g.Confidence[id])))
		}
	}

	stats := result.Stats
	fmt.Fprintf(w, "\nItems:             %d\n", stats.Items)
	fmt.Fprintf(w, "Groups:            %d (%d singletons)\n", stats.Groups, stats.Singletons)
	fmt.Fprintf(w, "Forced singletons: %d\n", stats.FingerprintFailures)
	fmt.Fprintf(w, "Calls avoided:     %d", stats.CallsAvoided())
	if len(cfg.Tiers) > 0 {
		fmt.Fprintf(w, " (est. $%.4f at %s rates)", float64(stats.CallsAvoided())*cfg.Tiers[0].EstimatedCost, cfg.Tiers[0].Name)
	}
	fmt.Fprintf(w, "\nThreshold:         %.2f\n\n", cfg.Grouping.Threshold)
	return nil
}
