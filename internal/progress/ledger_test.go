package progress

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/mediasift/internal/cost"
	"github.com/steveyegge/mediasift/internal/types"
)

// memStore is an in-memory Store that can be told to fail
type memStore struct {
	mu      sync.Mutex
	data    map[string]*types.Checkpoint
	saves   int
	deletes int
	saveErr error
	loadErr error
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]*types.Checkpoint)}
}

func (m *memStore) Load(_ context.Context, token string) (*types.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.data[token], nil
}

func (m *memStore) Save(_ context.Context, token string, cp *types.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.data[token] = cp
	return nil
}

func (m *memStore) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	delete(m.data, token)
	return nil
}

func limited(t *testing.T, ceiling float64) *cost.Budget {
	t.Helper()
	b, err := cost.NewBudget(cost.DefaultConfig().WithCeiling(ceiling))
	require.NoError(t, err)
	return b
}

func TestTokenFor(t *testing.T) {
	a := []types.Item{{ID: "x.jpg"}, {ID: "y.jpg"}, {ID: "z.jpg"}}
	b := []types.Item{{ID: "z.jpg"}, {ID: "x.jpg"}, {ID: "y.jpg"}}
	c := []types.Item{{ID: "x.jpg"}, {ID: "y.jpg"}}

	assert.Equal(t, TokenFor(a), TokenFor(b), "order does not matter")
	assert.NotEqual(t, TokenFor(a), TokenFor(c))
	assert.Len(t, TokenFor(a), 64)

	// separator keeps {"ab","c"} and {"a","bc"} apart
	assert.NotEqual(t,
		TokenFor([]types.Item{{ID: "ab"}, {ID: "c"}}),
		TokenFor([]types.Item{{ID: "a"}, {ID: "bc"}}))
}

func TestLedgerLifecycle(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(nil, nil, 0, nil)

	assert.ErrorIs(t, l.Record(ctx, "a", types.OutcomeSucceeded, ""), ErrInvalidState)
	require.NoError(t, l.Start(ctx, "tok", 3, false))
	assert.ErrorIs(t, l.Start(ctx, "tok", 3, false), ErrInvalidState)

	require.NoError(t, l.Record(ctx, "a", types.OutcomeSucceeded, ""))
	require.NoError(t, l.Record(ctx, "b", types.OutcomeDerived, ""))
	require.NoError(t, l.Record(ctx, "c", types.OutcomeSkipped, "budget"))
	assert.Error(t, l.Record(ctx, "d", types.Outcome("bogus"), ""))

	require.NoError(t, l.Complete(ctx))
	assert.ErrorIs(t, l.Abort(ctx), ErrInvalidState)

	snap := l.Snapshot()
	assert.Equal(t, types.RunCompleted, snap.State)
	assert.Equal(t, types.Counts{Processed: 3, Succeeded: 2, Skipped: 1}, snap.Progress.Counts)
	assert.True(t, snap.Progress.Processed["a"])
	assert.True(t, snap.Progress.Processed["b"])
	assert.False(t, snap.Progress.Processed["c"], "skips are not durable")
}

func TestLedgerCheckpointInterval(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	l := NewLedger(store, nil, 3, nil)
	require.NoError(t, l.Start(ctx, "tok", 7, false))

	for _, id := range []string{"a", "b"} {
		require.NoError(t, l.Record(ctx, id, types.OutcomeSucceeded, ""))
	}
	assert.Equal(t, 0, store.saves)

	require.NoError(t, l.Record(ctx, "c", types.OutcomeFailed, "fatal"))
	assert.Equal(t, 1, store.saves)

	cp := store.data["tok"]
	require.NotNil(t, cp)
	assert.Equal(t, []string{"a", "b"}, cp.ProcessedIdentifiers)
	assert.Equal(t, map[string]string{"c": "fatal"}, cp.FailedIdentifiers)
	assert.Equal(t, types.Counts{Processed: 3, Succeeded: 2, Failed: 1}, cp.Counts)

	for _, id := range []string{"d", "e", "f"} {
		require.NoError(t, l.Record(ctx, id, types.OutcomeSucceeded, ""))
	}
	assert.Equal(t, 2, store.saves)
	assert.Equal(t, 2, l.Snapshot().Checkpoints)
}

func TestLedgerCompleteDeletesWhenClean(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	l := NewLedger(store, nil, 1, nil)
	require.NoError(t, l.Start(ctx, "tok", 1, false))
	require.NoError(t, l.Record(ctx, "a", types.OutcomeSucceeded, ""))
	require.Contains(t, store.data, "tok")

	require.NoError(t, l.Complete(ctx))
	assert.NotContains(t, store.data, "tok")
	assert.Equal(t, 1, store.deletes)
}

func TestLedgerCompleteRetainsFailures(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	l := NewLedger(store, nil, 100, nil)
	require.NoError(t, l.Start(ctx, "tok", 2, false))
	require.NoError(t, l.Record(ctx, "a", types.OutcomeSucceeded, ""))
	require.NoError(t, l.Record(ctx, "b", types.OutcomeFailed, "auth_failure"))

	require.NoError(t, l.Complete(ctx))
	require.Contains(t, store.data, "tok")
	assert.Equal(t, 0, store.deletes)
	assert.Equal(t, "auth_failure", store.data["tok"].FailedIdentifiers["b"])
}

func TestLedgerAbortWritesCheckpoint(t *testing.T) {
	store := newMemStore()
	l := NewLedger(store, nil, 100, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, l.Start(ctx, "tok", 5, false))
	require.NoError(t, l.Record(ctx, "a", types.OutcomeSucceeded, ""))
	cancel()

	require.NoError(t, l.Abort(ctx))
	assert.Equal(t, types.RunAborted, l.Snapshot().State)
	require.Contains(t, store.data, "tok", "checkpoint written even after cancellation")
	assert.Equal(t, []string{"a"}, store.data["tok"].ProcessedIdentifiers)
}

func TestLedgerResume(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.data["tok"] = &types.Checkpoint{
		ProcessedIdentifiers: []string{"a", "b"},
		FailedIdentifiers:    map[string]string{"c": "transient"},
		CumulativeCost:       0.5,
		Counts:               types.Counts{Processed: 4, Succeeded: 2, Failed: 1, Skipped: 1},
	}

	l := NewLedger(store, limited(t, 1), 100, nil)
	require.NoError(t, l.Start(ctx, "tok", 4, true))

	assert.True(t, l.IsProcessed("a"))
	assert.True(t, l.IsProcessed("b"))
	assert.False(t, l.IsProcessed("c"), "failed items are retried")
	assert.False(t, l.IsProcessed("d"))

	snap := l.Snapshot()
	assert.True(t, snap.Resumed)
	assert.Equal(t, 0.5, snap.Progress.CumulativeCost)
	assert.Equal(t, types.Counts{Processed: 3, Succeeded: 2, Failed: 1}, snap.Progress.Counts)

	// retry of c succeeds and clears the failure
	require.NoError(t, l.Record(ctx, "c", types.OutcomeSucceeded, ""))
	require.NoError(t, l.Record(ctx, "a", types.OutcomeSucceeded, ""), "already processed is a no-op")
	snap = l.Snapshot()
	assert.Empty(t, snap.Progress.Failed)
	assert.Equal(t, types.Counts{Processed: 3, Succeeded: 3}, snap.Progress.Counts)

	// resumed spend counts against the ceiling
	_, err := l.Reserve("t", 0.6)
	assert.ErrorIs(t, err, cost.ErrBudgetExhausted)
}

func TestLedgerResumeWithoutFlagIgnoresCheckpoint(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.data["tok"] = &types.Checkpoint{ProcessedIdentifiers: []string{"a"}}

	l := NewLedger(store, nil, 100, nil)
	require.NoError(t, l.Start(ctx, "tok", 1, false))
	assert.False(t, l.IsProcessed("a"))
	assert.False(t, l.Snapshot().Resumed)
}

func TestLedgerStoreFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("save", func(t *testing.T) {
		store := newMemStore()
		store.saveErr = errors.New("disk full")
		l := NewLedger(store, nil, 1, nil)
		require.NoError(t, l.Start(ctx, "tok", 2, false))

		require.NoError(t, l.Record(ctx, "a", types.OutcomeSucceeded, ""), "write failure does not fail the run")
		require.NoError(t, l.Record(ctx, "b", types.OutcomeSucceeded, ""))
		snap := l.Snapshot()
		assert.True(t, snap.Compromised)
		assert.Equal(t, 2, snap.Progress.Counts.Succeeded)
		assert.Equal(t, 0, snap.Checkpoints)
	})

	t.Run("load", func(t *testing.T) {
		store := newMemStore()
		store.loadErr = errors.New("corrupt")
		l := NewLedger(store, nil, 1, nil)
		require.NoError(t, l.Start(ctx, "tok", 1, true))
		assert.True(t, l.Snapshot().Compromised)
	})

	t.Run("invalid checkpoint", func(t *testing.T) {
		store := newMemStore()
		store.data["tok"] = &types.Checkpoint{ProcessedIdentifiers: []string{"a", "a"}}
		l := NewLedger(store, nil, 1, nil)
		require.NoError(t, l.Start(ctx, "tok", 1, true))
		assert.False(t, l.IsProcessed("a"))
		assert.True(t, l.Snapshot().Compromised)
	})
}

func TestLedgerReserve(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(nil, limited(t, 1.0), 100, nil)
	require.NoError(t, l.Start(ctx, "tok", 10, false))

	r1, err := l.Reserve("t", 0.5)
	require.NoError(t, err)
	r2, err := l.Reserve("t", 0.5)
	require.NoError(t, err)

	_, err = l.Reserve("t", 0.25)
	assert.ErrorIs(t, err, cost.ErrBudgetExhausted, "reservations count against the ceiling")

	r1(0.25)
	r1(0.25) // second release is ignored
	snap := l.Snapshot()
	assert.Equal(t, 0.5, snap.Reserved)
	assert.Equal(t, 0.25, snap.Progress.CumulativeCost)

	r3, err := l.Reserve("t", 0.25)
	require.NoError(t, err)
	r3(0)
	r2(0.5)

	snap = l.Snapshot()
	assert.Equal(t, 0.0, snap.Reserved)
	assert.Equal(t, 0.75, snap.Progress.CumulativeCost)
	assert.Equal(t, 0.75, snap.RunCost)
}

func TestLedgerReserveRaisedByBilledCost(t *testing.T) {
	tests := []struct {
		name     string
		ceiling  float64
		billed   float64
		next     string
		wantNext bool
	}{
		{"billed above estimate raises the key", 0.06, 0.04, "t", false},
		{"other keys keep their estimate", 0.06, 0.04, "u", true},
		{"billed below estimate keeps the estimate", 0.06, 0.005, "t", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLedger(nil, limited(t, tt.ceiling), 100, nil)
			require.NoError(t, l.Start(context.Background(), "tok", 5, false))

			release, err := l.Reserve("t", 0.01)
			require.NoError(t, err)
			release(tt.billed)

			release, err = l.Reserve(tt.next, 0.01)
			if !tt.wantNext {
				assert.ErrorIs(t, err, cost.ErrBudgetExhausted)
				return
			}
			require.NoError(t, err)
			release(0)
		})
	}
}

func TestLedgerReserveZeroCeiling(t *testing.T) {
	l := NewLedger(nil, limited(t, 0), 100, nil)
	require.NoError(t, l.Start(context.Background(), "tok", 1, false))

	_, err := l.Reserve("t", 0)
	assert.ErrorIs(t, err, cost.ErrBudgetExhausted, "nothing may be spent under a zero ceiling")
}

func TestLedgerConcurrentRecords(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	l := NewLedger(store, nil, 7, nil)
	require.NoError(t, l.Start(ctx, "tok", 200, false))

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Reserve("t", 0.01)
			if err != nil {
				return
			}
			release(0.01)
			l.Record(ctx, string(rune('A'+i%26))+string(rune('a'+i/26)), types.OutcomeSucceeded, "")
		}()
	}
	wg.Wait()

	snap := l.Snapshot()
	assert.Equal(t, 200, snap.Progress.Counts.Succeeded)
	assert.InDelta(t, 2.0, snap.Progress.CumulativeCost, 1e-9)
}
