// Package shuffle produces random permutations of track id sequences.
package shuffle

import "math/rand"

// Permute returns a uniformly random permutation of ids without mutating
// the input. It must be re-invoked from scratch whenever the underlying id
// set changes; permutations are never patched incrementally.
func Permute(ids []int64) []int64 {
	out := make([]int64, len(ids))
	copy(out, ids)
	for i := len(out) - 1; i > 0; i-- {
		j := rand.Intn(i + 1) //nolint:gosec // playback order doesn't need crypto randomness
		out[i], out[j] = out[j], out[i]
	}
	return out
}
