// Package pacing implements the client send pacer and server processing
// pacer from spec.md §4.5: a minimum inter-event gap with
// priority-dependent randomized jitter, resisting timing correlation
// without any shared mutable state beyond the single pacer instance each
// side owns.
//
// Grounded on server/internal/decoy/decoy.go's worker loop, which sleeps a
// randomized interval between its own wake-ups in exactly this
// single-goroutine, no-lock-needed shape.
package pacing

import (
	"time"

	"github.com/nymquest/nymquest/internal/wire"
	"github.com/nymquest/nymquest/internal/xrand"
)

// Priority classes messages for pacing jitter, spec.md §4.5.
type Priority uint8

const (
	Critical Priority = iota
	High
	Medium
	Low
)

// PriorityOf maps a message kind to its pacing priority class.
func PriorityOf(k wire.Kind) Priority {
	switch k {
	case wire.KindDisconnect, wire.KindAck:
		return Critical
	case wire.KindRegister, wire.KindHeartbeat:
		return High
	case wire.KindMove, wire.KindAttack:
		return Medium
	case wire.KindChat, wire.KindEmote:
		return Low
	default:
		return Medium
	}
}

// Params configures a Pacer. It is not read from the environment; the
// client uses DefaultClientParams.
type Params struct {
	BaseInterval time.Duration
	MaxJitter    time.Duration // client send pacer: jitter(p) upper bound for Low
}

// DefaultClientParams matches spec.md §4.5's client send pacer defaults.
func DefaultClientParams() Params {
	return Params{
		BaseInterval: 100 * time.Millisecond,
		MaxJitter:    150 * time.Millisecond,
	}
}

// jitterFraction is how far into [0, MaxJitter] each priority class's
// randomized gap may reach, Critical narrowest and Low widest (the full
// MaxJitter).
var jitterFraction = map[Priority]float64{
	Critical: 0.05,
	High:     0.25,
	Medium:   0.6,
	Low:      1.0,
}

// Pacer is the client send pacer: it owns the "time of last send" and
// computes how long the caller must still wait before its next send.
type Pacer struct {
	params   Params
	lastSend time.Time
	hasSent  bool
}

// NewPacer creates a client send Pacer.
func NewPacer(params Params) *Pacer {
	return &Pacer{params: params}
}

// Gap returns how long the caller must sleep before sending an envelope of
// priority p at time now; zero if it may send immediately. It does not
// itself sleep or mutate state — call Sent once the send actually happens.
func (p *Pacer) Gap(priority Priority, now time.Time) time.Duration {
	if !p.hasSent {
		return 0
	}
	required := p.requiredGap(priority)
	elapsed := now.Sub(p.lastSend)
	if elapsed >= required {
		return 0
	}
	return required - elapsed
}

// Sent records that a send happened at time now, for future Gap calls.
func (p *Pacer) Sent(now time.Time) {
	p.lastSend = now
	p.hasSent = true
}

func (p *Pacer) requiredGap(priority Priority) time.Duration {
	frac := jitterFraction[priority]
	jitter := time.Duration(frac * float64(p.params.MaxJitter) * xrand.NewMath().Float64())
	return p.params.BaseInterval + jitter
}

// ServerParams configures the server processing pacer, spec.md §4.5.
type ServerParams struct {
	BaseInterval time.Duration
	JitterPct    float64 // e.g. 0.25 for 25%
}

// DefaultServerParams matches spec.md §4.5's server processing pacer
// defaults.
func DefaultServerParams() ServerParams {
	return ServerParams{
		BaseInterval: 100 * time.Millisecond,
		JitterPct:    0.25,
	}
}

// ServerPacer enforces the minimum gap between dequeuing two inbound
// messages on the server's single event-loop goroutine.
type ServerPacer struct {
	params ServerParams
}

// NewServerPacer creates a ServerPacer.
func NewServerPacer(params ServerParams) *ServerPacer {
	return &ServerPacer{params: params}
}

// NextDelay returns base_interval + uniform(0, base*jitter_pct), the
// duration the event loop should wait before dequeuing the next inbound
// message.
func (s *ServerPacer) NextDelay() time.Duration {
	jitterCeiling := float64(s.params.BaseInterval) * s.params.JitterPct
	return s.params.BaseInterval + time.Duration(xrand.NewMath().Float64()*jitterCeiling)
}
