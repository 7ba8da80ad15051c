package main

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/steveyegge/mediasift/internal/report"
	"github.com/steveyegge/mediasift/internal/types"
)

func init() {
	color.NoColor = true
}

func sampleReport(state types.RunState) *report.Report {
	rep := report.New("run-1", "token-1", time.Now())
	rep.Add(report.ItemOutcome{ID: "a.png", Outcome: types.OutcomeSucceeded, Cost: 0.02})
	rep.Add(report.ItemOutcome{ID: "b.png", Outcome: types.OutcomeDerived})
	rep.Add(report.ItemOutcome{ID: "c.png", Outcome: types.OutcomeFailed, Reason: "rate limited"})
	rep.Add(report.ItemOutcome{ID: "d.png", Outcome: types.OutcomeSkipped, Reason: "budget exhausted"})
	items := []types.Item{{ID: "a.png"}, {ID: "b.png"}, {ID: "c.png"}, {ID: "d.png"}}
	rep.Aggregates.Cost = 0.02
	rep.Aggregates.CumulativeCost = 0.02
	rep.BudgetStatus = "HEALTHY"
	rep.Finalize(items, state, 1500*time.Millisecond)
	return rep
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	ceiling := 0.10
	printSummary(&buf, sampleReport(types.RunCompleted), &ceiling)
	out := buf.String()

	assert.Contains(t, out, "Run completed (1.5s)")
	assert.Contains(t, out, "Analyzed:  1")
	assert.Contains(t, out, "Derived:   1")
	assert.Contains(t, out, "Skipped:   1 (25.0%)")
	assert.Contains(t, out, "$0.0200 / $0.10 (20.0%) HEALTHY")
	assert.Contains(t, out, "c.png: rate limited")
	assert.Contains(t, out, "d.png: budget exhausted")
	assert.NotContains(t, out, "--resume")
}

func TestPrintSummaryAborted(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, sampleReport(types.RunAborted), nil)
	out := buf.String()

	assert.Contains(t, out, "Run aborted")
	assert.Contains(t, out, "--resume --run-token token-1")
	assert.NotContains(t, out, "Budget:")
}

func TestPrintSummaryTruncatesLists(t *testing.T) {
	rep := report.New("run-1", "token-1", time.Now())
	var items []types.Item
	for i := 0; i < maxListed+3; i++ {
		id := fmt.Sprintf("img-%02d.png", i)
		items = append(items, types.Item{ID: id})
		rep.Add(report.ItemOutcome{ID: id, Outcome: types.OutcomeFailed, Reason: "boom"})
	}
	rep.Finalize(items, types.RunCompleted, time.Second)

	var buf bytes.Buffer
	printSummary(&buf, rep, nil)
	assert.Contains(t, buf.String(), "... and 3 more")
	assert.Equal(t, maxListed, strings.Count(buf.String(), ": boom"))
}

func TestRenderProgressBar(t *testing.T) {
	tests := []struct {
		percent float64
		filled  int
	}{
		{-5, 0},
		{0, 0},
		{50, 20},
		{100, 40},
		{250, 40},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.percent), func(t *testing.T) {
			bar := renderProgressBar(tt.percent, 40)
			assert.Equal(t, 40, utf8.RuneCountInString(bar))
			assert.Equal(t, tt.filled, strings.Count(bar, "█"))
		})
	}
}
