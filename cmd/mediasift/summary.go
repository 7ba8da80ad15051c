package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/steveyegge/mediasift/internal/report"
	"github.com/steveyegge/mediasift/internal/types"
)

// maxListed caps the failed and skipped items printed in a summary
const maxListed = 10

// printSummary renders a run report for the terminal
func printSummary(w io.Writer, rep *report.Report, ceiling *float64) {
	agg := rep.Aggregates
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Fprintf(w, "\n%s\n\n", cyan("=== Run Summary ==="))

	stateColor := color.New(color.FgGreen)
	stateIcon := "✓"
	switch {
	case rep.State == types.RunAborted:
		stateColor = color.New(color.FgYellow)
		stateIcon = "⚠️"
	case agg.Failed > 0:
		stateColor = color.New(color.FgRed, color.Bold)
		stateIcon = "✗"
	}
	fmt.Fprintf(w, "%s Run %s (%s)\n", stateIcon, stateColor.Sprint(string(rep.State)), rep.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  Run ID: %s\n", rep.RunID)
	fmt.Fprintf(w, "  Token:  %s\n\n", rep.Token)

	fmt.Fprintf(w, "%s\n", yellow("Items:"))
	fmt.Fprintf(w, "  Total:     %d\n", agg.Total)
	fmt.Fprintf(w, "  Analyzed:  %d\n", agg.Analyzed)
	fmt.Fprintf(w, "  Derived:   %d\n", agg.Derived)
	if agg.Resumed > 0 {
		fmt.Fprintf(w, "  Resumed:   %d\n", agg.Resumed)
	}
	fmt.Fprintf(w, "  Failed:    %d\n", agg.Failed)
	fmt.Fprintf(w, "  Skipped:   %d (%.1f%%)\n", agg.Skipped, agg.SkippedPercent())
	fmt.Fprintf(w, "  Groups:    %d\n\n", agg.Groups)

	fmt.Fprintf(w, "%s\n", yellow("Capability:"))
	fmt.Fprintf(w, "  Calls:     %d (%d retries)\n", agg.CapabilityCalls, agg.Retries)
	fmt.Fprintf(w, "  Avoided:   %d (est. $%.4f saved)\n", agg.CallsAvoided, agg.EstimatedSaved)
	fmt.Fprintf(w, "  Cost:      $%.4f this run, $%.4f cumulative\n", agg.Cost, agg.CumulativeCost)
	if ceiling != nil {
		percent := 100.0
		if *ceiling > 0 {
			percent = agg.CumulativeCost / *ceiling * 100
		}
		fmt.Fprintf(w, "  Budget:    $%.4f / $%.2f (%.1f%%) %s\n", agg.CumulativeCost, *ceiling, percent, rep.BudgetStatus)
		fmt.Fprintf(w, "             %s\n", renderProgressBar(percent, 40))
	}

	listOutcomes(w, "Failed:", rep.Failures())
	listOutcomes(w, "Skipped:", rep.Skips())

	if rep.ResumabilityCompromised {
		red := color.New(color.FgRed, color.Bold).SprintFunc()
		fmt.Fprintf(w, "\n%s checkpoints could not be read or written; a rerun may repeat paid work\n", red("🚨"))
	}
	if rep.State == types.RunAborted {
		fmt.Fprintf(w, "\nRerun with --resume --run-token %s to continue.\n", rep.Token)
	}
	fmt.Fprintln(w)
}

func listOutcomes(w io.Writer, title string, outcomes []report.ItemOutcome) {
	if len(outcomes) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s\n", color.New(color.FgYellow).Sprint(title))
	for i, o := range outcomes {
		if i == maxListed {
			fmt.Fprintf(w, "  ... and %d more\n", len(outcomes)-maxListed)
			break
		}
		fmt.Fprintf(w, "  %s: %s\n", o.ID, o.Reason)
	}
}

// renderProgressBar renders a width-character bar coloured by how full it is
func renderProgressBar(percent float64, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := int(percent / 100.0 * float64(width))

	var barColor *color.Color
	switch {
	case percent >= 100:
		barColor = color.New(color.FgRed, color.Bold)
	case percent >= 80:
		barColor = color.New(color.FgYellow)
	default:
		barColor = color.New(color.FgGreen)
	}

	var b strings.Builder
	b.WriteString(barColor.Sprint(strings.Repeat("█", filled)))
	b.WriteString(color.New(color.FgHiBlack).Sprint(strings.Repeat("░", width-filled)))
	return b.String()
}
