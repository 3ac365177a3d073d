package permute

import (
	"golang.org/x/exp/rand"
)

// Seeds returns one distinct, non-zero seed per permutation, for permutations
// numbered start..start+num-1. All seeds come from a single generator seeded
// with seed, and permutation i always receives element i-1 of that stream.
// A run split into batches by start index therefore reproduces the seeds of
// a single run, and the seeds never depend on the number of workers.
func Seeds(seed int64, start, num int) []uint64 {
	if start < 1 {
		start = 1
	}
	total := start - 1 + num

	rng := rand.New(rand.NewSource(uint64(seed)))
	seen := make(map[uint64]struct{}, total)
	stream := make([]uint64, 0, total)
	for len(stream) < total {
		s := rng.Uint64()
		if _, exists := seen[s]; exists || s == 0 {
			continue
		}
		seen[s] = struct{}{}
		stream = append(stream, s)
	}

	return stream[start-1:]
}

// Partition interleaves the positions 0..num-1 across workers round-robin:
// worker w receives w, w+workers, w+2*workers, ...
func Partition(num, workers int) [][]int {
	if workers < 1 {
		workers = 1
	}
	if workers > num && num > 0 {
		workers = num
	}

	out := make([][]int, workers)
	for i := 0; i < num; i++ {
		out[i%workers] = append(out[i%workers], i)
	}

	return out
}
