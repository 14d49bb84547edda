package server

import (
	"time"

	"github.com/nymquest/nymquest/internal/game"
	"github.com/nymquest/nymquest/internal/wire"
)

// eventToWire translates a game.Event into the wire message spec.md §4.7
// names for it.
func eventToWire(ev game.Event) wire.Message {
	switch e := ev.(type) {
	case game.PlayerMoved:
		return &wire.PlayerMoved{DisplayID: e.DisplayID, Position: wire.Vec2{X: e.Position.X, Y: e.Position.Y}}
	case game.PlayerLeft:
		return &wire.PlayerLeft{DisplayID: e.DisplayID}
	case game.AttackResolved:
		return &wire.AttackResolved{
			AttackerDisplayID: e.AttackerDisplayID,
			TargetDisplayID:   e.TargetDisplayID,
			Damage:            e.Damage,
			Crit:              e.Crit,
			TargetHP:          e.TargetHP,
		}
	case game.PlayerDefeated:
		return &wire.PlayerDefeated{
			DisplayID:       e.DisplayID,
			RespawnPosition: wire.Vec2{X: e.RespawnPosition.X, Y: e.RespawnPosition.Y},
		}
	case game.PlayerLevelUp:
		return &wire.PlayerLevelUp{DisplayID: e.DisplayID, NewLevel: e.NewLevel, NewHPMax: e.NewHPMax}
	case game.ChatBroadcast:
		return &wire.Chat{Text: e.Text, From: e.FromDisplayID}
	case game.EmoteBroadcast:
		return &wire.Emote{EmoteKind: toWireEmote(e.Kind), From: e.FromDisplayID}
	default:
		return nil
	}
}

func toWireEmote(k game.EmoteKind) wire.EmoteKind {
	switch k {
	case game.EmoteWave:
		return wire.EmoteWave
	case game.EmoteDance:
		return wire.EmoteDance
	case game.EmoteTaunt:
		return wire.EmoteTaunt
	case game.EmoteBow:
		return wire.EmoteBow
	case game.EmoteLaugh:
		return wire.EmoteLaugh
	default:
		return wire.EmoteWave
	}
}

func toGameEmote(k wire.EmoteKind) game.EmoteKind {
	switch k {
	case wire.EmoteWave:
		return game.EmoteWave
	case wire.EmoteDance:
		return game.EmoteDance
	case wire.EmoteTaunt:
		return game.EmoteTaunt
	case wire.EmoteBow:
		return game.EmoteBow
	case wire.EmoteLaugh:
		return game.EmoteLaugh
	default:
		return game.EmoteWave
	}
}

func toGameDirection(d wire.Direction) game.Direction {
	switch d {
	case wire.DirNorth:
		return game.DirectionUp
	case wire.DirSouth:
		return game.DirectionDown
	case wire.DirWest:
		return game.DirectionLeft
	case wire.DirEast:
		return game.DirectionRight
	case wire.DirNorthWest:
		return game.DirectionUpLeft
	case wire.DirNorthEast:
		return game.DirectionUpRight
	case wire.DirSouthWest:
		return game.DirectionDownLeft
	case wire.DirSouthEast:
		return game.DirectionDownRight
	default:
		return game.DirectionUp
	}
}

func toWireFaction(f game.Faction) uint8 { return uint8(f) }

func toGameFaction(f uint8) game.Faction { return game.Faction(f) }

// broadcastEvents encodes and enqueues every event to every live session
// except excludeTag (pass "" to exclude none).
func (s *Server) broadcastEvents(events []game.Event, excludeTag string, now time.Time) {
	for _, ev := range events {
		msg := eventToWire(ev)
		if msg == nil {
			continue
		}
		for _, sess := range s.sessions.All() {
			if sess.TransportTag == excludeTag {
				continue
			}
			s.sendTo(sess.TransportTag, msg, now)
		}
	}
}

// fullStateFor builds a GameStateFull snapshot of every live player, for
// sending to a session right after it registers.
func (s *Server) fullStateFor() *wire.GameStateFull {
	players := s.state.Players()
	views := make([]wire.PlayerView, 0, len(players))
	for _, p := range players {
		views = append(views, wire.PlayerView{
			DisplayID: p.DisplayID,
			Faction:   toWireFaction(p.Faction),
			Position:  wire.Vec2{X: p.Position.X, Y: p.Position.Y},
			HP:        p.HP,
			HPMax:     p.HPMax(),
			Level:     p.Level,
		})
	}
	return &wire.GameStateFull{Players: views}
}
