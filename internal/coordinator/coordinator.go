// Package coordinator runs a batch of items through grouping, tiered
// analysis and result propagation.
//
// One analysis task is scheduled per group on a bounded semaphore. Each task
// analyses the group's representative, retrying failed attempts with backoff,
// then fans the result out to the other members. All shared state lives in a
// per-run progress.Ledger; nothing is process-global.
//
// Stop (or cancelling the context passed to Run) prevents new tasks from
// being scheduled. Capability calls already in flight finish under their own
// timeout so no paid work is thrown away. Items that never ran are reported
// as skipped, and the checkpoint is written so the run can be resumed.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/steveyegge/mediasift/internal/ai"
	"github.com/steveyegge/mediasift/internal/cost"
	"github.com/steveyegge/mediasift/internal/grouping"
	"github.com/steveyegge/mediasift/internal/media"
	"github.com/steveyegge/mediasift/internal/progress"
	"github.com/steveyegge/mediasift/internal/propagation"
	"github.com/steveyegge/mediasift/internal/report"
	"github.com/steveyegge/mediasift/internal/tiers"
	"github.com/steveyegge/mediasift/internal/types"
)

// Coordinator runs batches. A Coordinator runs one batch at a time.
type Coordinator struct {
	source   media.Source
	grouper  *grouping.Grouper
	selector *tiers.Selector
	store    progress.Store
	config   Config
	logger   *slog.Logger

	startTier int

	// replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	mu      sync.Mutex
	running bool
	stopped bool
	cancel  context.CancelFunc
	ledger  *progress.Ledger
}

// New creates a coordinator. Configuration problems are returned as
// *ConfigError. store may be nil to keep progress in memory only.
func New(capability ai.Capability, source media.Source, store progress.Store, cfg Config, logger *slog.Logger) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if capability == nil {
		return nil, fmt.Errorf("capability is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	grouper, err := grouping.NewGrouper(source, cfg.Grouping, logger)
	if err != nil {
		return nil, err
	}
	tiersCfg := cfg.tiersConfig()
	selector, err := tiers.NewSelector(capability, tiersCfg, logger)
	if err != nil {
		return nil, err
	}
	startTier := 0
	if cfg.PinnedTier != "" {
		startTier, _ = tiersCfg.TierIndex(cfg.PinnedTier) // checked by Validate
	}

	return &Coordinator{
		source:    source,
		grouper:   grouper,
		selector:  selector,
		store:     store,
		config:    cfg,
		logger:    logger,
		startTier: startTier,
		sleep:     sleepContext,
		now:       time.Now,
	}, nil
}

// Stop prevents further items from being scheduled and writes a checkpoint.
// In-flight analyses run to completion. Safe to call from any goroutine.
// A Stop issued while no run is active aborts the next Run only.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	c.stopped = true
	cancel, ledger := c.cancel, c.ledger
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ledger != nil {
		ledger.Checkpoint(context.Background())
	}
}

// run holds the state of one Run call
type run struct {
	ledger  *progress.Ledger
	report  *report.Report
	gate    *gate
	items   map[string]types.Item
	calls   atomic.Int64
	retries atomic.Int64
}

// Run analyses items and returns the report. Every item appears in the
// report exactly once. Errors are returned only for invalid configuration
// or input, before any capability call, or if the report is inconsistent.
func (c *Coordinator) Run(ctx context.Context, items []types.Item) (*report.Report, error) {
	if err := c.config.Validate(); err != nil {
		return nil, err
	}
	byID, err := indexItems(items)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	budget, err := cost.NewBudget(c.config.Budget)
	if err != nil {
		return nil, configErr("budget", "%v", err)
	}
	token := c.config.RunToken
	if token == "" {
		token = progress.TokenFor(items)
	}
	ledger := progress.NewLedger(c.store, budget, c.config.CheckpointInterval, c.logger)

	if err := c.begin(cancel, ledger); err != nil {
		return nil, err
	}
	defer c.end()

	if err := ledger.Start(ctx, token, len(items), c.config.Resume); err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}

	started := c.now()
	r := &run{
		ledger: ledger,
		report: report.New(uuid.NewString(), token, started),
		gate:   newGate(ledger, c.config.RateInterval),
		items:  byID,
	}

	pending := make([]types.Item, 0, len(items))
	for _, item := range items {
		if ledger.IsProcessed(item.ID) {
			r.report.Add(report.ItemOutcome{
				ID:      item.ID,
				Outcome: types.OutcomeSucceeded,
				Resumed: true,
				Reason:  "processed by an earlier run",
			})
			continue
		}
		pending = append(pending, item)
	}

	c.logger.Info("starting run",
		slog.String("run_id", r.report.RunID),
		slog.String("token", token),
		slog.Int("items", len(items)),
		slog.Int("pending", len(pending)))

	var groups []*types.Group
	if len(pending) > 0 {
		grouped, err := c.grouper.Group(runCtx, pending)
		if err != nil {
			c.logger.Warn("run interrupted while grouping", slog.Any("error", err))
			for _, item := range pending {
				c.finish(runCtx, r, item.ID, report.ItemOutcome{
					Outcome: types.OutcomeSkipped,
					Reason:  "run stopped before grouping finished",
				})
			}
		} else {
			groups = grouped.Groups
			c.logger.Info("grouped items",
				slog.Int("groups", grouped.Stats.Groups),
				slog.Int("calls_avoided", grouped.Stats.CallsAvoided()),
				slog.Int("forced_singletons", grouped.Stats.FingerprintFailures))
			c.schedule(runCtx, r, groups)
		}
	}

	state := types.RunCompleted
	if runCtx.Err() != nil {
		state = types.RunAborted
		if err := ledger.Abort(ctx); err != nil {
			c.logger.Warn("failed to abort ledger", slog.Any("error", err))
		}
	} else if err := ledger.Complete(ctx); err != nil {
		c.logger.Warn("failed to complete ledger", slog.Any("error", err))
	}

	snap := ledger.Snapshot()
	savings := cost.EstimateSavings(groups)
	agg := &r.report.Aggregates
	agg.Groups = len(groups)
	agg.CapabilityCalls = int(r.calls.Load())
	agg.Retries = int(r.retries.Load())
	agg.Cost = snap.RunCost
	agg.CumulativeCost = snap.Progress.CumulativeCost
	agg.CallsAvoided = savings.CallsAvoided
	agg.EstimatedSaved = savings.EstimatedSaved
	r.report.BudgetStatus = snap.Budget.String()
	r.report.ResumabilityCompromised = snap.Compromised
	r.report.Finalize(items, state, c.now().Sub(started))

	if snap.Budget != cost.BudgetHealthy {
		c.logger.Warn("budget alert",
			slog.String("status", snap.Budget.String()),
			slog.Float64("spent", snap.Progress.CumulativeCost),
			slog.Float64("ceiling", budget.Ceiling()))
	}
	c.logger.Info("run finished",
		slog.String("state", string(state)),
		slog.Int("analyzed", agg.Analyzed),
		slog.Int("derived", agg.Derived),
		slog.Int("failed", agg.Failed),
		slog.Int("skipped", agg.Skipped),
		slog.Int("calls", agg.CapabilityCalls),
		slog.Float64("cost", agg.Cost),
		slog.Duration("duration", r.report.Duration))

	if err := r.report.Validate(items); err != nil {
		return r.report, fmt.Errorf("report is inconsistent: %w", err)
	}
	return r.report, nil
}

func (c *Coordinator) begin(cancel context.CancelFunc, ledger *progress.Ledger) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("coordinator is already running a batch")
	}
	c.running = true
	c.cancel = cancel
	c.ledger = ledger
	if c.stopped {
		cancel()
	}
	return nil
}

func (c *Coordinator) end() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	c.cancel = nil
	c.ledger = nil
	// A stop applies to one run; the next Run starts fresh
	c.stopped = false
}

// schedule starts one task per group, at most Concurrency at a time.
// Groups that cannot be scheduled because the run stopped are skipped.
func (c *Coordinator) schedule(ctx context.Context, r *run, groups []*types.Group) {
	sem := semaphore.NewWeighted(int64(c.config.Concurrency))
	var wg sync.WaitGroup

	for _, g := range groups {
		if ctx.Err() != nil || sem.Acquire(ctx, 1) != nil {
			c.finishGroup(ctx, r, g, report.ItemOutcome{
				Outcome: types.OutcomeSkipped,
				Reason:  "run stopped before the item was scheduled",
			})
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			c.analyse(ctx, r, g)
		}()
	}
	wg.Wait()
}

// analyse runs the representative of g through the tiers, retrying up to
// MaxAttempts, and records the outcome of every member.
func (c *Coordinator) analyse(ctx context.Context, r *run, g *types.Group) {
	id := g.Representative
	data, err := c.source.Read(ctx, r.items[id])
	if err != nil {
		outcome := report.ItemOutcome{Outcome: types.OutcomeFailed, Reason: fmt.Sprintf("cannot read content: %v", err)}
		if ctx.Err() != nil {
			outcome = report.ItemOutcome{Outcome: types.OutcomeSkipped, Reason: "run stopped before analysis"}
		}
		c.finishGroup(ctx, r, g, outcome)
		return
	}

	var out report.ItemOutcome
	for attempt := 1; ; attempt++ {
		out.Attempts = attempt
		sel, err := c.selector.Select(ctx, id, data, c.startTier, r.gate)
		r.calls.Add(int64(sel.Calls()))
		out.Calls += sel.Calls()
		out.Cost += sel.Cost

		if err == nil {
			out.Outcome = types.OutcomeSucceeded
			out.Result = sel.Result
			out.Result.Cost = out.Cost
			break
		}

		if tiers.IsBudgetRefusal(err) {
			out.Outcome = types.OutcomeSkipped
			out.Reason = err.Error()
			break
		}

		var capErr *ai.CapabilityError
		if !errors.As(err, &capErr) {
			// interrupted while waiting for the gate
			out.Outcome = types.OutcomeSkipped
			out.Reason = fmt.Sprintf("interrupted: %v", err)
			break
		}
		if !capErr.Retryable() || attempt >= c.config.MaxAttempts {
			out.Outcome = types.OutcomeFailed
			out.Reason = err.Error()
			c.logger.Warn("dead-lettering item",
				slog.String("item", id),
				slog.Int("attempts", attempt),
				slog.String("type", capErr.Type.String()),
				slog.Any("error", err))
			break
		}

		wait := c.config.Retry.Wait(attempt, err)
		c.logger.Debug("retrying item",
			slog.String("item", id),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.String("type", capErr.Type.String()))
		if err := c.sleep(ctx, wait); err != nil {
			out.Outcome = types.OutcomeSkipped
			out.Reason = fmt.Sprintf("interrupted during backoff after %d attempt(s): %v", attempt, capErr)
			break
		}
		r.retries.Add(1)
	}

	if out.Outcome != types.OutcomeSucceeded {
		c.finishGroup(ctx, r, g, out)
		return
	}

	g.Result = out.Result
	c.finish(ctx, r, id, out)

	derived, err := propagation.Propagate(g)
	for _, member := range g.Others() {
		if err != nil {
			c.finish(ctx, r, member, report.ItemOutcome{
				Outcome: types.OutcomeFailed,
				Reason:  fmt.Sprintf("cannot derive from representative %s: %v", id, err),
			})
			continue
		}
		c.finish(ctx, r, member, report.ItemOutcome{
			Outcome: types.OutcomeDerived,
			Result:  derived[member],
		})
	}
}

// finishGroup records the same non-success outcome for every member of g.
// Members other than the representative get a reason naming it.
func (c *Coordinator) finishGroup(ctx context.Context, r *run, g *types.Group, out report.ItemOutcome) {
	c.finish(ctx, r, g.Representative, out)
	for _, member := range g.Others() {
		c.finish(ctx, r, member, report.ItemOutcome{
			Outcome: out.Outcome,
			Reason:  fmt.Sprintf("representative %s %s: %s", g.Representative, out.Outcome, out.Reason),
		})
	}
}

// finish records out for id in the ledger and the report
func (c *Coordinator) finish(ctx context.Context, r *run, id string, out report.ItemOutcome) {
	out.ID = id
	if err := r.ledger.Record(ctx, id, out.Outcome, out.Reason); err != nil {
		c.logger.Warn("failed to record outcome", slog.String("item", id), slog.Any("error", err))
	}
	r.report.Add(out)
}

func indexItems(items []types.Item) (map[string]types.Item, error) {
	byID := make(map[string]types.Item, len(items))
	for i, item := range items {
		if item.ID == "" {
			return nil, configErr("items", "item %d has no id", i)
		}
		if _, dup := byID[item.ID]; dup {
			return nil, configErr("items", "duplicate item id %q", item.ID)
		}
		byID[item.ID] = item
	}
	return byID, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
