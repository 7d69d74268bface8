// Package simhash computes 64-bit SimHash fingerprints of ranking-table
// markup so a changed publisher layout can be told apart from a genuinely
// missing institution.
package simhash

import (
	"fmt"
	"hash/fnv"
	"math/bits"
	"strconv"
	"strings"
)

// Fingerprint computes a 64-bit SimHash of whitespace-separated tokens.
// Uses FNV-64a per token with bit vector accumulation.
func Fingerprint(text string) uint64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}

	var vector [64]int
	for _, word := range words {
		h := fnv.New64a()
		h.Write([]byte(word))
		hash := h.Sum64()

		for i := 0; i < 64; i++ {
			if hash&(1<<uint(i)) != 0 {
				vector[i]++
			} else {
				vector[i]--
			}
		}
	}

	var fingerprint uint64
	for i := 0; i < 64; i++ {
		if vector[i] > 0 {
			fingerprint |= 1 << uint(i)
		}
	}
	return fingerprint
}

// Distance returns the Hamming distance between two fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Similar reports whether the distance is within threshold.
func Similar(a, b uint64, threshold int) bool {
	return Distance(a, b) <= threshold
}

// Drifted reports whether a layout moved further than threshold from the
// previous run. A zero fingerprint on either side means "unknown" and
// never counts as drift.
func Drifted(prev, cur uint64, threshold int) bool {
	if prev == 0 || cur == 0 {
		return false
	}
	return !Similar(prev, cur, threshold)
}

// Format renders a fingerprint as 16 hex digits for the JSON record.
func Format(fp uint64) string {
	return fmt.Sprintf("%016x", fp)
}

// Parse reads a fingerprint written by Format.
func Parse(s string) (uint64, error) {
	fp, err := strconv.ParseUint(strings.TrimSpace(s), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("simhash: parse %q: %w", s, err)
	}
	return fp, nil
}
