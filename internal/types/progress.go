package types

import (
	"fmt"
	"sort"
	"time"
)

// Outcome is the final status of one submitted item
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded" // analysed directly
	OutcomeDerived   Outcome = "derived"   // result copied from its group representative
	OutcomeFailed    Outcome = "failed"    // dead-lettered
	OutcomeSkipped   Outcome = "skipped"   // budget, stop signal
)

// IsValid checks if the outcome value is valid
func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeSucceeded, OutcomeDerived, OutcomeFailed, OutcomeSkipped:
		return true
	}
	return false
}

// RunState is the lifecycle state of a progress ledger
type RunState string

const (
	RunFresh     RunState = "fresh"
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
	RunAborted   RunState = "aborted"
)

// Counts are the summary counters persisted with every checkpoint
type Counts struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Checkpoint is the persisted snapshot of run progress.
// It is always written wholesale; external tooling may read it.
type Checkpoint struct {
	ProcessedIdentifiers []string          `json:"processedIdentifiers"`
	FailedIdentifiers    map[string]string `json:"failedIdentifiers"`
	CumulativeCost       float64           `json:"cumulativeCost"`
	Counts               Counts            `json:"counts"`
	SavedAt              time.Time         `json:"savedAt"`
}

// Validate checks the checkpoint for internal consistency
func (c *Checkpoint) Validate() error {
	if c.CumulativeCost < 0 {
		return fmt.Errorf("cumulativeCost cannot be negative (got %.4f)", c.CumulativeCost)
	}
	seen := make(map[string]bool, len(c.ProcessedIdentifiers))
	for _, id := range c.ProcessedIdentifiers {
		if seen[id] {
			return fmt.Errorf("processedIdentifiers contains duplicate %q", id)
		}
		seen[id] = true
	}
	for id := range c.FailedIdentifiers {
		if seen[id] {
			return fmt.Errorf("item %q is both processed and failed", id)
		}
	}
	return nil
}

// ProgressState is the in-memory progress of a run
type ProgressState struct {
	Total          int               `json:"total"`
	Counts         Counts            `json:"counts"`
	CumulativeCost float64           `json:"cumulative_cost"`
	Processed      map[string]bool   `json:"processed"`
	Failed         map[string]string `json:"failed"`
}

// NewProgressState returns an empty progress state
func NewProgressState(total int) ProgressState {
	return ProgressState{
		Total:     total,
		Processed: make(map[string]bool),
		Failed:    make(map[string]string),
	}
}

// Checkpoint converts the state into its persisted form.
// Processed identifiers are sorted so identical states serialize identically.
func (s *ProgressState) Checkpoint(savedAt time.Time) *Checkpoint {
	processed := make([]string, 0, len(s.Processed))
	for id := range s.Processed {
		processed = append(processed, id)
	}
	sort.Strings(processed)

	failed := make(map[string]string, len(s.Failed))
	for id, reason := range s.Failed {
		failed[id] = reason
	}

	return &Checkpoint{
		ProcessedIdentifiers: processed,
		FailedIdentifiers:    failed,
		CumulativeCost:       s.CumulativeCost,
		Counts:               s.Counts,
		SavedAt:              savedAt,
	}
}

// Clone returns a deep copy of the state
func (s *ProgressState) Clone() ProgressState {
	out := ProgressState{
		Total:          s.Total,
		Counts:         s.Counts,
		CumulativeCost: s.CumulativeCost,
		Processed:      make(map[string]bool, len(s.Processed)),
		Failed:         make(map[string]string, len(s.Failed)),
	}
	for id := range s.Processed {
		out.Processed[id] = true
	}
	for id, reason := range s.Failed {
		out.Failed[id] = reason
	}
	return out
}

// CheckpointEntry summarizes one stored checkpoint for listing
type CheckpointEntry struct {
	Token          string    `json:"token"`
	SavedAt        time.Time `json:"savedAt"`
	Processed      int       `json:"processed"`
	Failed         int       `json:"failed"`
	CumulativeCost float64   `json:"cumulativeCost"`
}

// Entry returns the listing summary of the checkpoint under token
func (c *Checkpoint) Entry(token string) CheckpointEntry {
	return CheckpointEntry{
		Token:          token,
		SavedAt:        c.SavedAt,
		Processed:      len(c.ProcessedIdentifiers),
		Failed:         len(c.FailedIdentifiers),
		CumulativeCost: c.CumulativeCost,
	}
}
