// Package sample implements deterministic uniform sampling without
// replacement. Every sampling site constructs its own seeded generator, so a
// draw depends only on (n, k, seed) and the order of the input — never on
// global generator state or call ordering elsewhere in the process.
package sample

import (
	"math/rand"
	"sort"
)

// Pick selects k distinct indices from [0, n) uniformly at random and returns
// them sorted ascending, so applying the selection preserves input order.
// When k >= n every index is returned.
//
// Identical (n, k, seed) always yields the identical selection.
func Pick(n, k int, seed int64) []int {
	if n <= 0 || k <= 0 {
		return nil
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	if k >= n {
		return idx
	}

	// Partial Fisher-Yates: only the first k positions need to be settled.
	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < k; i++ {
		j := i + rng.Intn(n-i)
		idx[i], idx[j] = idx[j], idx[i]
	}

	selected := idx[:k]
	sort.Ints(selected)
	return selected
}

// Subset applies Pick to a slice, returning a new slice with the selected
// elements in their original relative order.
func Subset[T any](items []T, k int, seed int64) []T {
	if len(items) <= k {
		return items
	}
	selected := Pick(len(items), k, seed)
	out := make([]T, 0, len(selected))
	for _, i := range selected {
		out = append(out, items[i])
	}
	return out
}
