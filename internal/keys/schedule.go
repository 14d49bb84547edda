// Package keys implements NymQuest's MAC key schedule (spec.md §4.2):
// epoch-numbered keys derived from a pre-shared master secret via
// HKDF-SHA256, rotated every 24h, with a short retention window so
// in-flight messages signed just before a rotation still verify.
//
// Grounded on stream/stream.go's use of golang.org/x/crypto/hkdf for frame
// key derivation.
package keys

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/hkdf"
)

// RetainedEpochs is how many epochs (current plus how many previous) a
// Schedule keeps derivable keys for. Resolves spec.md §9 Open Question (c)
// as a count-based policy rather than a wall-clock grace period: epoch
// boundaries already roll on a 24h wall-clock, so a second independent
// clock for retention would only add complexity without changing behavior
// in practice (any given epoch lives exactly RotationPeriod before a new
// one supersedes it).
const RetainedEpochs = 3

// RotationPeriod is how often a new epoch begins.
const RotationPeriod = 24 * time.Hour

var ErrUnknownEpoch = errors.New("keys: no retained key for epoch")

// Schedule derives and caches per-epoch MAC keys from a master secret.
type Schedule struct {
	mu       sync.RWMutex
	secret   []byte
	baseline time.Time
	cache    map[uint32][]byte
}

// NewSchedule creates a Schedule anchored at baseline (normally the fixed
// time.Unix(0, 0), so separate processes agree on epoch numbers); epoch 0
// begins at baseline and a new epoch begins every RotationPeriod thereafter.
func NewSchedule(masterSecret []byte, baseline time.Time) *Schedule {
	s := &Schedule{
		secret:   append([]byte(nil), masterSecret...),
		baseline: baseline,
		cache:    make(map[uint32][]byte),
	}
	return s
}

// EpochAt returns the epoch number in effect at t.
func (s *Schedule) EpochAt(t time.Time) uint32 {
	if t.Before(s.baseline) {
		return 0
	}
	return uint32(t.Sub(s.baseline) / RotationPeriod)
}

// CurrentEpoch returns the epoch in effect now.
func (s *Schedule) CurrentEpoch() uint32 {
	return s.EpochAt(time.Now())
}

// deriveLocked computes and caches key_n = HKDF-SHA256(master_secret, salt=n).
func (s *Schedule) deriveLocked(epoch uint32) []byte {
	if k, ok := s.cache[epoch]; ok {
		return k
	}
	var salt [4]byte
	binary.BigEndian.PutUint32(salt[:], epoch)
	kdf := hkdf.New(sha256.New, s.secret, salt[:], []byte("nymquest-envelope-mac"))
	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(kdf, key); err != nil {
		panic("keys: hkdf derivation failed: " + err.Error())
	}
	s.cache[epoch] = key
	s.evictLocked(epoch)
	return key
}

// evictLocked drops cached keys older than the retention window relative
// to epoch, so the cache doesn't grow unbounded across a long-running
// process.
func (s *Schedule) evictLocked(current uint32) {
	for e := range s.cache {
		if e+RetainedEpochs <= current {
			delete(s.cache, e)
		}
	}
}

// SigningKey returns the key senders should use right now: always the
// current epoch's key, per spec.md §4.2 ("Senders always sign with the
// current epoch").
func (s *Schedule) SigningKey() (key []byte, epoch uint32) {
	epoch = s.CurrentEpoch()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deriveLocked(epoch), epoch
}

// VerifyingKey returns the key for a specific epoch the receiver should try,
// or ErrUnknownEpoch if that epoch falls outside the retention window
// (current epoch minus RetainedEpochs-1 through current).
func (s *Schedule) VerifyingKey(epoch uint32) ([]byte, error) {
	current := s.CurrentEpoch()
	if epoch > current {
		return nil, ErrUnknownEpoch
	}
	if current-epoch >= RetainedEpochs {
		return nil, ErrUnknownEpoch
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deriveLocked(epoch), nil
}
