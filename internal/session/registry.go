// Package session implements the server's session registry (spec.md §3,
// §4.6, §9): the map from transport tag to a session's per-connection
// state — negotiated protocol version, replay window, outbound sequence
// counter, and liveness timestamp. Like internal/game, this is owned
// exclusively by the event loop goroutine and does no locking of its own.
//
// Grounded on client2/connection.go's connection struct: a handful of
// plain fields (pkiEpoch, isConnected, retryDelay) mutated only from the
// goroutine that owns the connection, with cross-goroutine reads (if any)
// going through an explicit accessor rather than a shared mutex.
package session

import (
	"errors"
	"time"

	"github.com/nymquest/nymquest/internal/replay"
)

var ErrUnknownSession = errors.New("session: unknown transport tag")

// Session is one client's connection-level state, spec.md §3's Session
// record. Player identity (if registered) lives in internal/game.State,
// keyed by the same transport tag.
type Session struct {
	TransportTag      string
	RegisteredAt      time.Time
	LastInboundAt     time.Time
	NegotiatedVersion uint16
	InboundWindow     *replay.Window
	OutboundSeq       uint64
}

// NextOutboundSeq returns the next outbound sequence number for this
// session and advances the counter, used by the server's broadcast/send
// path.
func (s *Session) NextOutboundSeq() uint64 {
	seq := s.OutboundSeq
	s.OutboundSeq++
	return seq
}

// Registry is the event loop's map of live sessions, keyed by transport
// tag.
type Registry struct {
	sessions     map[string]*Session
	replayParams replay.Params
}

// New creates an empty Registry. replayParams seeds every new Session's
// inbound replay window.
func New(replayParams replay.Params) *Registry {
	return &Registry{
		sessions:     make(map[string]*Session),
		replayParams: replayParams,
	}
}

// Open creates (or returns the existing) Session for tag, called the
// first time a transport tag is observed — typically right before a
// Register attempt, but a session may exist pre-registration so envelope
// decode/replay/rate-limit checks have somewhere to keep state even for
// an unregistered sender.
func (r *Registry) Open(tag string, now time.Time) *Session {
	if s, ok := r.sessions[tag]; ok {
		return s
	}
	s := &Session{
		TransportTag:  tag,
		RegisteredAt:  now,
		LastInboundAt: now,
		InboundWindow: replay.New(r.replayParams),
	}
	r.sessions[tag] = s
	return s
}

// Get returns the session for tag without creating one.
func (r *Registry) Get(tag string) (*Session, bool) {
	s, ok := r.sessions[tag]
	return s, ok
}

// Touch updates a session's liveness timestamp, called once per accepted
// inbound envelope regardless of payload kind.
func (r *Registry) Touch(tag string, now time.Time) error {
	s, ok := r.sessions[tag]
	if !ok {
		return ErrUnknownSession
	}
	s.LastInboundAt = now
	return nil
}

// SetNegotiatedVersion records the version a Register exchange settled on.
func (r *Registry) SetNegotiatedVersion(tag string, version uint16) error {
	s, ok := r.sessions[tag]
	if !ok {
		return ErrUnknownSession
	}
	s.NegotiatedVersion = version
	return nil
}

// Close removes a session, e.g. on Disconnect or reap.
func (r *Registry) Close(tag string) {
	delete(r.sessions, tag)
}

// All returns every live session.
func (r *Registry) All() []*Session {
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// StaleTags returns the transport tags whose last inbound activity
// predates the timeout, for the event loop's reap tick (spec.md §4.6).
func (r *Registry) StaleTags(now time.Time, timeout time.Duration) []string {
	var tags []string
	for tag, s := range r.sessions {
		if now.Sub(s.LastInboundAt) >= timeout {
			tags = append(tags, tag)
		}
	}
	return tags
}

// Len reports how many sessions are currently tracked.
func (r *Registry) Len() int {
	return len(r.sessions)
}
