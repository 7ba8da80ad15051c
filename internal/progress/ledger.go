// Package progress tracks per-run outcomes, spend and budget reservations,
// and persists them as checkpoints so an interrupted run can resume.
//
// The Ledger is the only state shared between concurrent analysis tasks.
// Every mutation goes through its mutex, including the cost of in-flight
// calls, so the budget check and the spend it guards cannot race.
//
// Lifecycle:
//
//	fresh --Start--> running --Complete--> completed
//	                    \------Abort-----> aborted
//
// Only succeeded and derived items are written to the processed set. Failed
// items are kept with their reason and are analysed again on resume; a later
// success clears them. Skipped items are not persisted.
package progress

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/steveyegge/mediasift/internal/cost"
	"github.com/steveyegge/mediasift/internal/types"
)

// ErrInvalidState is returned when a lifecycle method is called out of order
var ErrInvalidState = errors.New("invalid ledger state")

// Store persists checkpoints by run token.
// storage.CheckpointStore satisfies it.
type Store interface {
	Load(ctx context.Context, token string) (*types.Checkpoint, error)
	Save(ctx context.Context, token string, cp *types.Checkpoint) error
	Delete(ctx context.Context, token string) error
}

// DefaultInterval is the number of recorded items between checkpoints
const DefaultInterval = 10

// Ledger records run progress. It is safe for concurrent use.
type Ledger struct {
	store    Store // nil keeps progress in memory only
	budget   *cost.Budget
	interval int
	logger   *slog.Logger
	now      func() time.Time

	mu              sync.Mutex
	token           string
	runState        types.RunState
	state           types.ProgressState
	reserved        float64
	peaks           map[string]float64 // largest cost billed per reservation key
	runCost         float64
	sinceCheckpoint int
	checkpoints     int
	compromised     bool
	resumed         bool
}

// NewLedger creates a ledger in the fresh state.
// interval <= 0 uses DefaultInterval. A nil budget means unlimited.
func NewLedger(store Store, budget *cost.Budget, interval int, logger *slog.Logger) *Ledger {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if budget == nil {
		budget, _ = cost.NewBudget(cost.DefaultConfig())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:    store,
		budget:   budget,
		interval: interval,
		logger:   logger,
		now:      time.Now,
		runState: types.RunFresh,
		state:    types.NewProgressState(0),
	}
}

// TokenFor derives a run token from the item identifiers: the hex SHA-256 of
// the sorted ids. The same input set yields the same token in any order.
func TokenFor(items []types.Item) string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	sort.Strings(ids)

	h := sha256.New()
	for _, id := range ids {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Start moves the ledger to running. With resume set, a checkpoint stored
// under token is loaded so its processed items can be skipped.
// Failing to read the checkpoint is logged and the run starts fresh with
// resumability flagged as compromised.
func (l *Ledger) Start(ctx context.Context, token string, total int, resume bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.runState != types.RunFresh {
		return fmt.Errorf("%w: start called in state %s", ErrInvalidState, l.runState)
	}
	if token == "" {
		return fmt.Errorf("run token is required")
	}

	l.token = token
	l.state = types.NewProgressState(total)
	l.runState = types.RunRunning

	if !resume || l.store == nil {
		return nil
	}

	cp, err := l.store.Load(ctx, token)
	if err != nil {
		l.compromised = true
		l.logger.Warn("failed to load checkpoint, starting fresh",
			slog.String("token", token), slog.Any("error", err))
		return nil
	}
	if cp == nil {
		l.logger.Info("no checkpoint to resume", slog.String("token", token))
		return nil
	}
	if err := cp.Validate(); err != nil {
		l.compromised = true
		l.logger.Warn("ignoring invalid checkpoint",
			slog.String("token", token), slog.Any("error", err))
		return nil
	}

	for _, id := range cp.ProcessedIdentifiers {
		l.state.Processed[id] = true
	}
	for id, reason := range cp.FailedIdentifiers {
		l.state.Failed[id] = reason
	}
	l.state.CumulativeCost = cp.CumulativeCost
	l.state.Counts = types.Counts{
		Processed: len(cp.ProcessedIdentifiers) + len(cp.FailedIdentifiers),
		Succeeded: len(cp.ProcessedIdentifiers),
		Failed:    len(cp.FailedIdentifiers),
	}
	l.resumed = true

	l.logger.Info("resuming from checkpoint",
		slog.String("token", token),
		slog.Int("processed", len(cp.ProcessedIdentifiers)),
		slog.Int("failed", len(cp.FailedIdentifiers)),
		slog.Float64("cumulative_cost", cp.CumulativeCost),
		slog.Time("saved_at", cp.SavedAt))
	return nil
}

// IsProcessed reports whether id succeeded in this or a resumed run
func (l *Ledger) IsProcessed(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Processed[id]
}

// Reserve holds estimate against the budget for a call about to start.
// The amount held is the larger of estimate and the highest cost already
// billed under key, so a tier that costs more than estimated reserves what
// it really costs from then on.
// The returned release func must be called once with the cost actually
// incurred; it frees the reservation and adds actual to the spend.
// Returns an error wrapping cost.ErrBudgetExhausted when the budget cannot
// cover the amount.
func (l *Ledger) Reserve(key string, estimate float64) (func(actual float64), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	amount := max(estimate, l.peaks[key])
	if ok, reason := l.budget.CanAfford(l.state.CumulativeCost, l.reserved, amount); !ok {
		return nil, fmt.Errorf("%w: %s", cost.ErrBudgetExhausted, reason)
	}
	l.reserved += amount

	var once sync.Once
	return func(actual float64) {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.reserved -= amount
			if l.reserved < 0 {
				l.reserved = 0 // float drift
			}
			if actual > l.peaks[key] {
				if l.peaks == nil {
					l.peaks = make(map[string]float64)
				}
				l.peaks[key] = actual
			}
			if actual > amount {
				l.logger.Warn("call cost more than its reservation",
					slog.String("key", key),
					slog.Float64("reserved", amount),
					slog.Float64("actual", actual))
			}
			l.state.CumulativeCost += actual
			l.runCost += actual
		})
	}, nil
}

// Record stores the final outcome of id. Recording an item that already
// succeeded is a no-op; recording a previously failed item replaces its
// failure. A checkpoint is written every interval records.
func (l *Ledger) Record(ctx context.Context, id string, outcome types.Outcome, reason string) error {
	if !outcome.IsValid() {
		return fmt.Errorf("invalid outcome %q for %s", outcome, id)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.runState != types.RunRunning {
		return fmt.Errorf("%w: record called in state %s", ErrInvalidState, l.runState)
	}
	if l.state.Processed[id] {
		return nil
	}
	if _, failedBefore := l.state.Failed[id]; failedBefore {
		delete(l.state.Failed, id)
		l.state.Counts.Failed--
		l.state.Counts.Processed--
	}

	l.state.Counts.Processed++
	switch outcome {
	case types.OutcomeSucceeded, types.OutcomeDerived:
		l.state.Counts.Succeeded++
		l.state.Processed[id] = true
	case types.OutcomeFailed:
		l.state.Counts.Failed++
		l.state.Failed[id] = reason
	case types.OutcomeSkipped:
		l.state.Counts.Skipped++
	}

	l.sinceCheckpoint++
	if l.sinceCheckpoint >= l.interval {
		l.persistLocked(ctx)
	}
	return nil
}

// Checkpoint writes the current state immediately. It does nothing unless
// the run is in progress.
func (l *Ledger) Checkpoint(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.runState != types.RunRunning {
		return
	}
	l.persistLocked(ctx)
}

// Complete ends the run. The checkpoint is deleted when nothing failed and
// retained otherwise so failed items can be retried.
func (l *Ledger) Complete(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.runState != types.RunRunning {
		return fmt.Errorf("%w: complete called in state %s", ErrInvalidState, l.runState)
	}
	l.runState = types.RunCompleted

	if l.store == nil {
		return nil
	}
	if len(l.state.Failed) > 0 {
		l.persistLocked(ctx)
		return nil
	}
	if err := l.store.Delete(context.WithoutCancel(ctx), l.token); err != nil {
		l.logger.Warn("failed to delete checkpoint",
			slog.String("token", l.token), slog.Any("error", err))
	}
	return nil
}

// Abort ends the run early and writes a checkpoint
func (l *Ledger) Abort(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.runState != types.RunRunning {
		return fmt.Errorf("%w: abort called in state %s", ErrInvalidState, l.runState)
	}
	l.runState = types.RunAborted
	l.persistLocked(ctx)
	return nil
}

// persistLocked writes the checkpoint. Failures are logged and flag the run
// as compromised; the run continues in memory. Caller holds l.mu.
func (l *Ledger) persistLocked(ctx context.Context) {
	l.sinceCheckpoint = 0
	if l.store == nil {
		return
	}
	cp := l.state.Checkpoint(l.now())
	// stop signals cancel ctx, and the final checkpoint must still be written
	if err := l.store.Save(context.WithoutCancel(ctx), l.token, cp); err != nil {
		if !l.compromised {
			l.logger.Warn("failed to write checkpoint, continuing in memory",
				slog.String("token", l.token), slog.Any("error", err))
		}
		l.compromised = true
		return
	}
	l.checkpoints++
}

// Snapshot is a point-in-time copy of the ledger
type Snapshot struct {
	Token       string
	State       types.RunState
	Progress    types.ProgressState
	Reserved    float64
	RunCost     float64 // spent by this process, excluding resumed spend
	Checkpoints int
	Resumed     bool
	Compromised bool
	Budget      cost.BudgetStatus
}

// Snapshot returns a copy of the current state
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{
		Token:       l.token,
		State:       l.runState,
		Progress:    l.state.Clone(),
		Reserved:    l.reserved,
		RunCost:     l.runCost,
		Checkpoints: l.checkpoints,
		Resumed:     l.resumed,
		Compromised: l.compromised,
		Budget:      l.budget.Status(l.state.CumulativeCost),
	}
}
