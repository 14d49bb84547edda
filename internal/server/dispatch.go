package server

import (
	"time"

	"github.com/nymquest/nymquest/internal/envelope"
	"github.com/nymquest/nymquest/internal/game"
	"github.com/nymquest/nymquest/internal/transport"
	"github.com/nymquest/nymquest/internal/wire"
)

// handleInbound runs one transport packet through spec.md §4.1 -> §4.4's
// chain (decode, replay, rate-limit) before dispatching the decoded
// message to game state. Pacing (§4.5) is applied by the caller before
// this is invoked, since it gates dequeuing, not a single packet's
// handling.
func (s *Server) handleInbound(pkt transport.Packet, now time.Time) {
	tag := pkt.Tag
	sess := s.sessions.Open(tag, now)

	decoded, err := s.codec.Decode(pkt.Payload, s.keys, now)
	if err != nil {
		if s.log != nil {
			s.log.Debug("envelope rejected", "tag", tag, "err", err)
		}
		s.countEnvelopeFailure(tag, now)
		return
	}

	if err := sess.InboundWindow.Accept(decoded.Sequence, now); err != nil {
		if s.log != nil {
			s.log.Debug("replay window rejected", "tag", tag, "seq", decoded.Sequence, "err", err)
		}
		s.countEnvelopeFailure(tag, now)
		return
	}

	s.sessions.Touch(tag, now)
	s.state.Heartbeat(tag, now)

	if !s.limiter.Allow(tag, now) {
		s.sendTo(tag, &wire.ErrorMessage{Code: wire.ErrCodeRateLimited, Text: "rate limited"}, now)
		return
	}

	s.dispatch(tag, decoded.Message, now)
}

// countEnvelopeFailure tracks a decode/replay rejection toward the
// per-session suspect threshold (spec.md §7, §9 Open Question a) and
// tears the session down once it's crossed.
func (s *Server) countEnvelopeFailure(tag string, now time.Time) {
	if s.macTrack.record(tag, now) {
		if s.log != nil {
			s.log.Warn("session exceeded envelope failure threshold, dropping", "tag", tag)
		}
		s.teardownSession(tag)
	}
}

// dispatch applies the decoded message to game state and broadcasts or
// replies as spec.md §4.7 requires.
func (s *Server) dispatch(tag string, msg wire.Message, now time.Time) {
	switch m := msg.(type) {
	case *wire.Register:
		s.handleRegister(tag, m, now)

	case *wire.Move:
		player, err := s.state.Move(tag, toGameDirection(m.Direction))
		if err != nil {
			s.replyErr(tag, err, now)
			return
		}
		s.broadcastEvents([]game.Event{game.PlayerMoved{
			DisplayID: player.DisplayID,
			Position:  player.Position,
		}}, "", now)

	case *wire.Attack:
		events, err := s.state.Attack(tag, m.TargetDisplayID, now, rollCrit)
		if err != nil {
			s.replyErr(tag, err, now)
			return
		}
		s.broadcastEvents(events, "", now)

	case *wire.Chat:
		player, err := s.state.Chat(tag, m.Text)
		if err != nil {
			s.replyErr(tag, err, now)
			return
		}
		s.broadcastEvents([]game.Event{game.ChatBroadcast{
			FromDisplayID: player.DisplayID,
			Text:          m.Text,
		}}, "", now)

	case *wire.Emote:
		kind := toGameEmote(m.EmoteKind)
		player, err := s.state.Emote(tag, kind)
		if err != nil {
			s.replyErr(tag, err, now)
			return
		}
		s.broadcastEvents([]game.Event{game.EmoteBroadcast{
			FromDisplayID: player.DisplayID,
			Kind:          kind,
		}}, "", now)

	case *wire.HeartbeatResponse:
		// Liveness was already recorded above for every accepted envelope.

	case *wire.Disconnect:
		s.sendTo(tag, &wire.Ack{}, now)
		s.teardownSession(tag)

	default:
		if s.log != nil {
			s.log.Warn("unexpected inbound message kind", "tag", tag, "kind", msg.Kind())
		}
	}
}

func (s *Server) handleRegister(tag string, m *wire.Register, now time.Time) {
	faction := toGameFaction(m.Faction)
	player, err := s.state.Register(tag, m.Name, faction,
		m.ClientMinVersion, m.ClientCurrentVersion,
		envelope.MinSupportedVersion, envelope.CurrentVersion, now)
	if err != nil {
		s.replyErr(tag, err, now)
		return
	}

	// Register already validated the version range as part of its
	// SessionConflict -> NameTaken -> IncompatibleVersion precedence
	// (spec.md §4.7, internal/game/state.go's Register), so negotiation
	// here can't fail.
	negotiated, err := envelope.NegotiateVersion(m.ClientMinVersion, m.ClientCurrentVersion)
	if err != nil {
		s.replyErr(tag, game.ErrIncompatibleVersion, now)
		return
	}

	if err := s.sessions.SetNegotiatedVersion(tag, negotiated); err != nil && s.log != nil {
		s.log.Error("set negotiated version failed", "tag", tag, "err", err)
	}

	s.sendTo(tag, &wire.RegisterResponse{
		DisplayID:          player.DisplayID,
		NegotiatedVersion:  negotiated,
		World:              s.worldConfig(),
		InternalFactionIdx: uint8(faction),
		Position:           wire.Vec2{X: player.Position.X, Y: player.Position.Y},
		HP:                 player.HP,
		HPMax:              player.HPMax(),
		Level:              player.Level,
		XP:                 player.XP,
	}, now)
	s.sendTo(tag, s.fullStateFor(), now)
}

// replyErr translates a game-logic error into a coarse, typed
// ErrorMessage reply to the originator only, per spec.md §7.
func (s *Server) replyErr(tag string, err error, now time.Time) {
	code, text := gameErrorToWire(err)
	s.sendTo(tag, &wire.ErrorMessage{Code: code, Text: text}, now)
}

func gameErrorToWire(err error) (wire.ErrorCode, string) {
	switch err {
	case game.ErrSessionConflict:
		return wire.ErrCodeSessionConflict, "session already registered"
	case game.ErrNameTaken:
		return wire.ErrCodeNameTaken, "name or display id already in use"
	case game.ErrIncompatibleVersion:
		return wire.ErrCodeIncompatibleVersion, "incompatible protocol version"
	case game.ErrNoSuchTarget:
		return wire.ErrCodeNoSuchTarget, "no such target"
	case game.ErrOnCooldown:
		return wire.ErrCodeOnCooldown, "attack on cooldown"
	case game.ErrOutOfRange:
		return wire.ErrCodeOutOfRange, "target out of range"
	case game.ErrBlocked:
		return wire.ErrCodeBlocked, "move blocked"
	case game.ErrChatTooLong:
		return wire.ErrCodeMalformed, "chat message too long"
	case game.ErrInvalidEmote:
		return wire.ErrCodeMalformed, "invalid emote"
	case game.ErrUnknownSession:
		return wire.ErrCodeAuthenticationFailed, "not registered"
	default:
		return wire.ErrCodeInternal, "internal error"
	}
}
