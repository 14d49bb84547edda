// Package replay implements the per-direction, per-session sliding replay
// window from spec.md §4.3: a bitmap of recently accepted sequence
// numbers with adaptive sizing driven by the observed out-of-order rate.
//
// No single teacher file implements this shape; it's built directly from
// spec.md's accept-rule pseudocode, following the same "small owned struct,
// mutex only where a goroutine boundary demands it" style as the rest of
// this module (see client2/connection.go's connection struct).
package replay

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrTooOld rejects a sequence number older than the current window.
	ErrTooOld = errors.New("replay: sequence too old")
	// ErrReplay rejects a sequence number already marked accepted.
	ErrReplay = errors.New("replay: duplicate sequence")
)

// Params configures a Window's adaptive sizing, all overridable via the
// NYMQUEST_REPLAY_PROTECTION_* environment variables (spec.md §6).
type Params struct {
	MinWindow          uint32
	MaxWindow          uint32
	InitialWindow      uint32
	Adaptive           bool
	AdjustmentCooldown time.Duration
}

// DefaultParams matches spec.md §4.3's defaults.
func DefaultParams() Params {
	return Params{
		MinWindow:          32,
		MaxWindow:          96,
		InitialWindow:      64,
		Adaptive:           true,
		AdjustmentCooldown: 60 * time.Second,
	}
}

// capacity is the fixed physical bitmap size backing every Window; it must
// be >= any Params.MaxWindow a caller configures.
const capacity = 128

// EMA tuning for the out-of-order rate that drives adaptive resizing.
const (
	emaAlpha        = 0.2
	growThreshold   = 6.0
	shrinkThreshold = 1.5
)

// Window is a sliding bitmap of accepted sequence numbers for one
// direction of one session.
type Window struct {
	mu sync.Mutex

	params Params
	size   uint32

	hasSeen     bool
	highestSeen uint64
	bits        [capacity]bool // bits[i] == sequence (highestSeen - i) was accepted

	outOfOrderEMA float64
	lastResizeAt  time.Time
}

// New creates a Window with the given params.
func New(params Params) *Window {
	if params.InitialWindow < params.MinWindow {
		params.InitialWindow = params.MinWindow
	}
	if params.InitialWindow > params.MaxWindow {
		params.InitialWindow = params.MaxWindow
	}
	return &Window{
		params:       params,
		size:         params.InitialWindow,
		lastResizeAt: time.Time{},
	}
}

// HighestSeen returns the highest sequence number accepted so far.
func (w *Window) HighestSeen() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.highestSeen
}

// Size returns the window's current size.
func (w *Window) Size() uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// Accept applies the spec.md §4.3 accept rule to seq, returning nil if
// accepted, or ErrTooOld/ErrReplay if rejected.
func (w *Window) Accept(seq uint64, now time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.hasSeen {
		w.hasSeen = true
		w.highestSeen = seq
		w.bits[0] = true
		return nil
	}

	switch {
	case seq > w.highestSeen:
		delta := seq - w.highestSeen
		w.shiftLocked(delta)
		w.highestSeen = seq
		w.bits[0] = true
		return nil

	case w.highestSeen-seq >= uint64(w.size):
		return ErrTooOld

	default:
		offset := w.highestSeen - seq
		if w.bits[offset] {
			return ErrReplay
		}
		w.bits[offset] = true
		w.recordOutOfOrderLocked(offset, now)
		return nil
	}
}

// shiftLocked shifts the bitmap left by delta bits, discarding bits that
// fall outside physical capacity. Bits that remain within the (possibly
// resized) window stay set, per spec.md §4.3 "Resize preserves already-set
// bits that still fall in window" — shifting and resizing share this same
// preserve-in-place array, so no special casing is needed at resize time.
func (w *Window) shiftLocked(delta uint64) {
	if delta >= capacity {
		w.bits = [capacity]bool{}
		return
	}
	d := int(delta)
	copy(w.bits[d:], w.bits[:capacity-d])
	for i := 0; i < d; i++ {
		w.bits[i] = false
	}
}

// recordOutOfOrderLocked updates the out-of-order EMA and, if adaptive
// sizing is enabled and the cooldown has elapsed, grows or shrinks the
// window per spec.md §4.3.
func (w *Window) recordOutOfOrderLocked(delta uint64, now time.Time) {
	w.outOfOrderEMA = emaAlpha*float64(delta) + (1-emaAlpha)*w.outOfOrderEMA

	if !w.params.Adaptive {
		return
	}
	if w.lastResizeAt.IsZero() {
		w.lastResizeAt = now
	}
	if now.Sub(w.lastResizeAt) < w.params.AdjustmentCooldown {
		return
	}

	switch {
	case w.outOfOrderEMA > growThreshold && w.size < w.params.MaxWindow:
		w.size++
		w.lastResizeAt = now
	case w.outOfOrderEMA < shrinkThreshold && w.size > w.params.MinWindow:
		w.size--
		w.lastResizeAt = now
	}
}
