// Package report builds the final summary of a batch run.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/steveyegge/mediasift/internal/types"
)

// ItemOutcome is the final status of one submitted item
type ItemOutcome struct {
	ID       string                `json:"id"`
	Outcome  types.Outcome         `json:"outcome"`
	Reason   string                `json:"reason,omitempty"`
	Resumed  bool                  `json:"resumed,omitempty"` // processed by an earlier run
	Attempts int                   `json:"attempts,omitempty"`
	Calls    int                   `json:"calls,omitempty"`
	Cost     float64               `json:"cost"`
	Result   *types.AnalysisResult `json:"result,omitempty"`
}

// Aggregates are the run totals
type Aggregates struct {
	Total    int `json:"total"`
	Analyzed int `json:"analyzed"` // succeeded in this run
	Derived  int `json:"derived"`
	Resumed  int `json:"resumed"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
	Groups   int `json:"groups"`
	Retries  int `json:"retries"`

	CapabilityCalls int     `json:"capability_calls"`
	CallsAvoided    int     `json:"calls_avoided"`
	Cost            float64 `json:"cost"`            // spent by this run
	CumulativeCost  float64 `json:"cumulative_cost"` // including resumed runs
	EstimatedSaved  float64 `json:"estimated_saved"`
}

// SkippedPercent returns the share of skipped items, 0-100
func (a Aggregates) SkippedPercent() float64 {
	if a.Total == 0 {
		return 0
	}
	return 100 * float64(a.Skipped) / float64(a.Total)
}

// Report is the structured result of a run
type Report struct {
	RunID     string         `json:"run_id"`
	Token     string         `json:"token"`
	State     types.RunState `json:"state"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration_ns"`

	Items      []ItemOutcome `json:"items"`
	Aggregates Aggregates    `json:"aggregates"`

	BudgetStatus string `json:"budget_status,omitempty"`

	// ResumabilityCompromised is set when a checkpoint could not be read or
	// written; a restart may repeat work already paid for.
	ResumabilityCompromised bool `json:"resumability_compromised"`

	mu sync.Mutex
}

// New starts an empty report
func New(runID, token string, startedAt time.Time) *Report {
	return &Report{
		RunID:     runID,
		Token:     token,
		State:     types.RunRunning,
		StartedAt: startedAt,
	}
}

// Add appends an outcome. Safe for concurrent use.
func (r *Report) Add(o ItemOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Items = append(r.Items, o)
}

// Outcome returns the recorded outcome for id
func (r *Report) Outcome(id string) (ItemOutcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.Items {
		if o.ID == id {
			return o, true
		}
	}
	return ItemOutcome{}, false
}

// Finalize orders items as submitted and computes the per-item aggregates.
// Cost, call and saving totals are owned by the caller.
func (r *Report) Finalize(items []types.Item, state types.RunState, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order := make(map[string]int, len(items))
	for i, item := range items {
		order[item.ID] = i
	}
	sort.SliceStable(r.Items, func(i, j int) bool {
		oi, iok := order[r.Items[i].ID]
		oj, jok := order[r.Items[j].ID]
		if iok != jok {
			return iok
		}
		return oi < oj
	})

	r.State = state
	r.Duration = duration

	agg := &r.Aggregates
	agg.Total = len(r.Items)
	agg.Analyzed, agg.Derived, agg.Resumed, agg.Failed, agg.Skipped = 0, 0, 0, 0, 0
	for _, o := range r.Items {
		switch {
		case o.Resumed:
			agg.Resumed++
		case o.Outcome == types.OutcomeSucceeded:
			agg.Analyzed++
		case o.Outcome == types.OutcomeDerived:
			agg.Derived++
		case o.Outcome == types.OutcomeFailed:
			agg.Failed++
		case o.Outcome == types.OutcomeSkipped:
			agg.Skipped++
		}
	}
}

// Validate checks that every submitted item appears exactly once with a
// valid outcome, and nothing else appears.
func (r *Report) Validate(items []types.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := make(map[string]bool, len(items))
	for _, item := range items {
		want[item.ID] = true
	}

	seen := make(map[string]bool, len(r.Items))
	for _, o := range r.Items {
		if !want[o.ID] {
			return fmt.Errorf("report contains unknown item %q", o.ID)
		}
		if seen[o.ID] {
			return fmt.Errorf("report lists item %q more than once", o.ID)
		}
		if !o.Outcome.IsValid() {
			return fmt.Errorf("item %q has invalid outcome %q", o.ID, o.Outcome)
		}
		seen[o.ID] = true
	}

	var missing []string
	for id := range want {
		if !seen[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("report is missing %d item(s): %s", len(missing), strings.Join(missing, ", "))
	}
	return nil
}

// Failures returns the failed items in report order
func (r *Report) Failures() []ItemOutcome {
	return r.filter(types.OutcomeFailed)
}

// Skips returns the skipped items in report order
func (r *Report) Skips() []ItemOutcome {
	return r.filter(types.OutcomeSkipped)
}

func (r *Report) filter(outcome types.Outcome) []ItemOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ItemOutcome
	for _, o := range r.Items {
		if o.Outcome == outcome {
			out = append(out, o)
		}
	}
	return out
}

// WriteJSON writes the report as indented JSON
func (r *Report) WriteJSON(w io.Writer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// WriteFile writes the report to path, creating parent directories
func (r *Report) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := r.WriteJSON(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Read decodes a report written by WriteJSON
func Read(rd io.Reader) (*Report, error) {
	var r Report
	if err := json.NewDecoder(rd).Decode(&r); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &r, nil
}
