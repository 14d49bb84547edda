// Package xrand centralizes randomness the way katzenpost's
// core/crypto/rand does: a crypto-grade Reader, which supplies the padding
// bytes, and a math/rand source, itself seeded from the crypto reader,
// which supplies every other draw (display IDs, spawn positions, crit
// rolls, pacing and padding jitter). Display IDs and crit rolls therefore
// come from a math/rand generator, not from Reader directly.
package xrand

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	mrand "math/rand"
)

// Reader is the CSPRNG used for anything where predictability would be a
// security or privacy problem.
var Reader io.Reader = rand.Reader

// NewMath returns a math/rand source seeded from Reader. Each call returns
// an independent generator; callers that need one per goroutine (avoiding
// shared-state contention) should call this once per goroutine rather than
// sharing a single instance.
func NewMath() *mrand.Rand {
	var seed [8]byte
	if _, err := io.ReadFull(Reader, seed[:]); err != nil {
		panic("xrand: failed to seed math/rand source: " + err.Error())
	}
	return mrand.New(mrand.NewSource(int64(binary.BigEndian.Uint64(seed[:]))))
}

// Int63n returns a uniform value in [0, n) from a fresh NewMath generator
// (seeded from Reader) for callers that
// need a one-off draw without keeping a generator around.
func Int63n(n int64) int64 {
	if n <= 0 {
		return 0
	}
	return NewMath().Int63n(n)
}
