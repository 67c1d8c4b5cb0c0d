package tabular

import (
	"encoding/binary"
	"encoding/hex"
	"math/rand"
	"sort"
)

// Sampling band thresholds and sizes.
const (
	sampleAllThreshold = 100
	smallFileRows      = 1000
	mediumFileRows     = 10000
	headSampleSize     = 50
)

// Sample returns a deterministic analysis sample of the rows, seeded by the
// file fingerprint so repeated analyses of the same file see the same rows:
//
//	N <= 100:    all rows
//	N <= 1000:   first 50 + 50 uniformly random
//	N <= 10000:  first 50 + 150 evenly spaced
//	N >  10000:  first 50 + 450 evenly spaced
func Sample(rows []Row, fingerprint string) []Row {
	n := len(rows)
	if n <= sampleAllThreshold {
		out := make([]Row, n)
		copy(out, rows)
		return out
	}

	switch {
	case n <= smallFileRows:
		return headPlusRandom(rows, headSampleSize, 50, fingerprint)
	case n <= mediumFileRows:
		return headPlusStrided(rows, headSampleSize, 150)
	default:
		return headPlusStrided(rows, headSampleSize, 450)
	}
}

// headPlusRandom takes the first head rows plus k uniformly random rows from
// the remainder, seeded by the fingerprint.
func headPlusRandom(rows []Row, head, k int, fingerprint string) []Row {
	out := make([]Row, 0, head+k)
	out = append(out, rows[:head]...)

	rng := rand.New(rand.NewSource(seedFromFingerprint(fingerprint)))
	rest := len(rows) - head
	picked := make(map[int]struct{}, k)
	for len(picked) < k && len(picked) < rest {
		picked[head+rng.Intn(rest)] = struct{}{}
	}
	idx := make([]int, 0, len(picked))
	for i := range picked {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	for _, i := range idx {
		out = append(out, rows[i])
	}
	return out
}

// headPlusStrided takes the first head rows plus k evenly spaced rows from
// the remainder.
func headPlusStrided(rows []Row, head, k int) []Row {
	out := make([]Row, 0, head+k)
	out = append(out, rows[:head]...)

	rest := len(rows) - head
	if rest <= k {
		out = append(out, rows[head:]...)
		return out
	}
	stride := float64(rest) / float64(k)
	for i := 0; i < k; i++ {
		out = append(out, rows[head+int(float64(i)*stride)])
	}
	return out
}

// seedFromFingerprint derives a deterministic RNG seed from the first eight
// bytes of the hex fingerprint.
func seedFromFingerprint(fingerprint string) int64 {
	raw, err := hex.DecodeString(fingerprint)
	if err != nil || len(raw) < 8 {
		// Fall back to hashing the string bytes directly.
		var b [8]byte
		copy(b[:], fingerprint)
		return int64(binary.BigEndian.Uint64(b[:]))
	}
	return int64(binary.BigEndian.Uint64(raw[:8]))
}
