package grouping

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/mediasift/internal/imagehash"
	"github.com/steveyegge/mediasift/internal/media"
	"github.com/steveyegge/mediasift/internal/types"
)

// Result is the partition of a batch into similarity groups
type Result struct {
	// Groups in order of their representative's position in the input
	Groups []*types.Group `json:"groups"`

	// Fingerprints holds the computed fingerprints by item id.
	// Items that could not be fingerprinted are absent.
	Fingerprints map[string]imagehash.Set `json:"-"`

	Stats Stats `json:"stats"`
}

// Stats provides metrics about one grouping pass
type Stats struct {
	// Items is the number of items grouped
	Items int `json:"items"`

	// Groups is the number of groups produced (one capability call each)
	Groups int `json:"groups"`

	// Singletons is the number of groups with exactly one member,
	// forced singletons included
	Singletons int `json:"singletons"`

	// FingerprintFailures is the number of forced singletons
	FingerprintFailures int `json:"fingerprint_failures"`

	// ComparisonsMade is the number of pairwise similarity computations
	ComparisonsMade int `json:"comparisons_made"`

	// ProcessingTimeMs is the time taken for grouping in milliseconds
	ProcessingTimeMs int64 `json:"processing_time_ms"`
}

// CallsAvoided returns how many capability calls grouping saves
func (s Stats) CallsAvoided() int {
	return s.Items - s.Groups
}

// Validate checks that the groups form a partition of the grouped items
// and that the statistics agree with them.
func (r *Result) Validate() error {
	seen := make(map[string]string)
	singletons, forced, members := 0, 0, 0

	for i, g := range r.Groups {
		if g == nil {
			return fmt.Errorf("group %d is nil", i)
		}
		if len(g.Members) == 0 {
			return fmt.Errorf("group %d has no members", i)
		}
		if g.Members[0] != g.Representative {
			return fmt.Errorf("group %d: representative %s must be the first member", i, g.Representative)
		}
		if c := g.Confidence[g.Representative]; c != 1.0 {
			return fmt.Errorf("group %d: representative confidence must be 1.0 (got %.2f)", i, c)
		}
		if g.Forced && len(g.Members) != 1 {
			return fmt.Errorf("group %d: forced group must be a singleton (got %d members)", i, len(g.Members))
		}
		for _, id := range g.Members {
			if other, dup := seen[id]; dup {
				return fmt.Errorf("item %s is in groups of both %s and %s", id, other, g.Representative)
			}
			seen[id] = g.Representative
			c, ok := g.Confidence[id]
			if !ok {
				return fmt.Errorf("group %d: missing confidence for %s", i, id)
			}
			if c <= 0 || c > 1 {
				return fmt.Errorf("group %d: confidence for %s must be in (0, 1] (got %.2f)", i, id, c)
			}
		}
		members += len(g.Members)
		if len(g.Members) == 1 {
			singletons++
		}
		if g.Forced {
			forced++
		}
	}

	if r.Stats.Items != members {
		return fmt.Errorf("stats.items (%d) does not match total members (%d)", r.Stats.Items, members)
	}
	if r.Stats.Groups != len(r.Groups) {
		return fmt.Errorf("stats.groups (%d) does not match groups length (%d)", r.Stats.Groups, len(r.Groups))
	}
	if r.Stats.Singletons != singletons {
		return fmt.Errorf("stats.singletons (%d) does not match singleton groups (%d)", r.Stats.Singletons, singletons)
	}
	if r.Stats.FingerprintFailures != forced {
		return fmt.Errorf("stats.fingerprint_failures (%d) does not match forced groups (%d)",
			r.Stats.FingerprintFailures, forced)
	}
	return nil
}

// Covers reports an error unless every item appears in exactly one group
func (r *Result) Covers(items []types.Item) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if len(items) != r.Stats.Items {
		return fmt.Errorf("grouped %d items, expected %d", r.Stats.Items, len(items))
	}
	index := make(map[string]bool, r.Stats.Items)
	for _, g := range r.Groups {
		for _, id := range g.Members {
			index[id] = true
		}
	}
	for _, item := range items {
		if !index[item.ID] {
			return fmt.Errorf("item %s is not in any group", item.ID)
		}
	}
	return nil
}

// Grouper fingerprints items and clusters near-duplicates
type Grouper struct {
	source media.Source
	codec  *imagehash.Codec
	config Config
	logger *slog.Logger
}

// NewGrouper creates a grouper reading content from source
func NewGrouper(source media.Source, cfg Config, logger *slog.Logger) (*Grouper, error) {
	if source == nil {
		return nil, fmt.Errorf("media source is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid grouping config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Grouper{
		source: source,
		codec:  cfg.codec(),
		config: cfg,
		logger: logger,
	}, nil
}

// Fingerprint hashes every item in parallel. The returned slice is aligned
// with items; a nil entry means the item could not be fingerprinted.
// The only error is context cancellation.
func (g *Grouper) Fingerprint(ctx context.Context, items []types.Item) ([]imagehash.Set, error) {
	sets := make([]imagehash.Set, len(items))
	algs := g.config.Metric.Algorithms()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.config.Workers)

	for i, item := range items {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			data, err := g.source.Read(egCtx, item)
			if err != nil {
				if egCtx.Err() != nil {
					return egCtx.Err()
				}
				g.logger.Warn("cannot read item, grouping it alone",
					slog.String("item", item.ID), slog.Any("error", err))
				return nil
			}
			set, ok := g.codec.FromBytes(data, algs...)
			if !ok {
				g.logger.Warn("cannot fingerprint item, grouping it alone", slog.String("item", item.ID))
				return nil
			}
			sets[i] = set
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("fingerprinting interrupted: %w", err)
	}
	return sets, nil
}

// Group fingerprints and clusters items. The only error is context cancellation.
func (g *Grouper) Group(ctx context.Context, items []types.Item) (*Result, error) {
	start := time.Now()

	sets, err := g.Fingerprint(ctx, items)
	if err != nil {
		return nil, err
	}

	result := GroupFingerprints(items, sets, g.config.Metric, g.config.Threshold)
	result.Stats.ProcessingTimeMs = time.Since(start).Milliseconds()

	g.logger.Debug("grouping complete",
		slog.Int("items", result.Stats.Items),
		slog.Int("groups", result.Stats.Groups),
		slog.Int("forced", result.Stats.FingerprintFailures),
		slog.Int("comparisons", result.Stats.ComparisonsMade))

	return result, nil
}

// GroupFingerprints runs the greedy clustering pass over precomputed
// fingerprints. sets must be aligned with items; nil entries become forced
// singletons. A pair whose score cannot be computed is treated as dissimilar.
func GroupFingerprints(items []types.Item, sets []imagehash.Set, metric imagehash.Metric, threshold float64) *Result {
	result := &Result{
		Groups:       make([]*types.Group, 0),
		Fingerprints: make(map[string]imagehash.Set, len(items)),
	}
	for i, set := range sets {
		if set != nil {
			result.Fingerprints[items[i].ID] = set
		}
	}
	assigned := make([]bool, len(items))

	for i, item := range items {
		if assigned[i] {
			continue
		}
		assigned[i] = true

		group := &types.Group{
			Representative: item.ID,
			Members:        []string{item.ID},
			Confidence:     map[string]float64{item.ID: 1.0},
		}
		result.Groups = append(result.Groups, group)

		if sets[i] == nil {
			group.Forced = true
			result.Stats.FingerprintFailures++
			result.Stats.Singletons++
			continue
		}

		for j := i + 1; j < len(items); j++ {
			if assigned[j] || sets[j] == nil {
				continue
			}
			result.Stats.ComparisonsMade++
			score, err := metric.Score(sets[i], sets[j])
			if err != nil || score < threshold || score <= 0 {
				continue
			}
			assigned[j] = true
			group.Members = append(group.Members, items[j].ID)
			group.Confidence[items[j].ID] = score
		}

		if len(group.Members) == 1 {
			result.Stats.Singletons++
		}
	}

	result.Stats.Items = len(items)
	result.Stats.Groups = len(result.Groups)
	return result
}
