// Package grouping partitions a batch of images into near-duplicate groups.
//
// # Overview
//
// Analysing an image with a vision model is expensive. Batches of photos
// usually contain bursts, re-exports and resized copies of the same picture,
// and those copies do not need their own analysis. The grouper clusters such
// copies so that only one representative per group is sent to a capability;
// the other members receive a derived result (see package propagation).
//
// # Algorithm
//
// Grouping runs in two phases:
//
//  1. Fingerprinting: every item is read through a media.Source and hashed
//     with each algorithm that carries a positive weight in the metric. Items
//     are hashed in parallel with a bounded number of workers. A read or
//     decode failure never aborts the batch.
//  2. Clustering: a greedy pass over the items in input order. The first
//     unassigned item opens a group and becomes its representative; every
//     later unassigned item whose composite similarity to the representative
//     meets the threshold joins it, with that similarity as its confidence.
//
// Items that could not be fingerprinted become forced singletons. They are
// never merged with anything, since "no fingerprint" says nothing about
// content.
//
// The greedy pass is O(n²) in the number of items and the output is fully
// determined by the input order.
//
// # Configuration
//
//   - Threshold: 0.9 (composite similarity needed to join a group)
//   - Metric: frequency 0.7, difference 0.3
//   - Workers: 8 parallel fingerprinting workers
//
// See DefaultConfig() and ConfigFromEnv() for the full set.
//
// # Usage
//
//	grouper, err := grouping.NewGrouper(media.FileSource{}, grouping.DefaultConfig(), logger)
//	if err != nil {
//	    return err
//	}
//	result, err := grouper.Group(ctx, items)
//	if err != nil {
//	    return err // only context cancellation
//	}
//	for _, g := range result.Groups {
//	    fmt.Printf("%s: %d members\n", g.Representative, g.Size())
//	}
package grouping
