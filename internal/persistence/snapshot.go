// Package persistence implements NymQuest's crash-safe state snapshot
// (spec.md §4.9): atomic JSON writes with backup rotation, and a loader
// that falls back to the backup file, drops stale players, clamps
// out-of-bounds positions, and refuses to load a snapshot whose world
// configuration fingerprint doesn't match the running server's.
//
// Grounded on disk.go's StateWriter: a dedicated worker goroutine
// draining a channel of encoded state, writing to ".tmp", rotating the
// previous file to a backup suffix, then renaming into place. Adapted to
// plain JSON (encoding/json) instead of argon2+secretbox-sealed cbor,
// since this spec's Non-goals explicitly drop persistence of
// transport/session secrets — there's no secret left to encrypt.
package persistence

import (
	"time"

	"github.com/nymquest/nymquest/internal/game"
)

// PlayerRecord is one player's persisted fields, spec.md §3's "Persisted
// snapshot" — internal_id, transport_tag, and sequence counters are
// deliberately absent.
type PlayerRecord struct {
	Name       string `json:"name"`
	DisplayID  string `json:"display_id"`
	Faction    string `json:"faction"`
	Position   Vec2   `json:"position"`
	HP         int    `json:"hp"`
	XP         int    `json:"xp"`
	Level      int    `json:"level"`
	LastSeenMs int64  `json:"last_seen_ms"`
}

// Vec2 mirrors game.Vec2 for a stable on-disk shape independent of the
// in-memory type's evolution.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Snapshot is the full persisted document, spec.md §3/§4.9.
type Snapshot struct {
	SchemaVersion          int            `json:"schema_version"`
	WorldConfigFingerprint string         `json:"world_config_fingerprint"`
	Players                []PlayerRecord `json:"players"`
}

// CurrentSchemaVersion is bumped whenever Snapshot's shape changes
// incompatibly.
const CurrentSchemaVersion = 1

// FromState builds a Snapshot from live game state.
func FromState(s *game.State, world game.World, now time.Time) Snapshot {
	players := s.Players()
	records := make([]PlayerRecord, 0, len(players))
	for _, p := range players {
		records = append(records, PlayerRecord{
			Name:       p.Name,
			DisplayID:  p.DisplayID,
			Faction:    p.Faction.String(),
			Position:   Vec2{X: p.Position.X, Y: p.Position.Y},
			HP:         p.HP,
			XP:         p.XP,
			Level:      p.Level,
			LastSeenMs: now.UnixMilli(),
		})
	}
	return Snapshot{
		SchemaVersion:          CurrentSchemaVersion,
		WorldConfigFingerprint: world.Fingerprint(),
		Players:                records,
	}
}
