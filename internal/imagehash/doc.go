// Package imagehash computes perceptual fingerprints of images and compares them.
//
// Three hashing methods are supported, all working on a downscaled grayscale
// copy of the image:
//
//   - average (aHash): N×N pixels, one bit per pixel set when it is brighter
//     than the mean.
//   - difference (dHash): (N+1)×N pixels, one bit per pixel set when it is
//     brighter than its right neighbour.
//   - frequency (pHash): (N·F)×(N·F) pixels, 2D DCT-II with orthonormal
//     scaling, the top-left N×N low-frequency block thresholded at its median.
//
// Fingerprints are hex strings zero-padded to bits/4 characters, so two
// fingerprints produced with the same parameters always have the same length.
// Hamming distance and similarity operate on those strings directly.
//
// A Metric blends the similarities of several methods into one score; the
// default weights (frequency 0.7, difference 0.3) cover the blind spots of a
// single method, and are configuration rather than law.
package imagehash
