package game

import (
	"time"

	"github.com/google/uuid"
)

// State is the authoritative game state. It is mutated exclusively by the
// server event loop goroutine (spec.md §5, §9) and does no internal
// locking — callers on any other goroutine would race.
type State struct {
	World World

	byTag       map[string]*Player
	byDisplayID map[string]*Player
	byName      map[string]*Player

	restored map[string]SnapshotPlayer
}

// NewState creates an empty State for the given world configuration.
func NewState(world World) *State {
	return &State{
		World:       world,
		byTag:       make(map[string]*Player),
		byDisplayID: make(map[string]*Player),
		byName:      make(map[string]*Player),
		restored:    make(map[string]SnapshotPlayer),
	}
}

// ByTag returns the live player for a transport tag, if any.
func (s *State) ByTag(tag string) (*Player, bool) {
	p, ok := s.byTag[tag]
	return p, ok
}

// ByDisplayID returns the live player with the given display id, if any.
func (s *State) ByDisplayID(displayID string) (*Player, bool) {
	p, ok := s.byDisplayID[displayID]
	return p, ok
}

// Players returns every live player. The returned slice is a fresh copy
// of the pointers; callers must not mutate State through it outside the
// event loop.
func (s *State) Players() []*Player {
	out := make([]*Player, 0, len(s.byTag))
	for _, p := range s.byTag {
		out = append(out, p)
	}
	return out
}

func (s *State) occupiedPositions() []Vec2 {
	positions := make([]Vec2, 0, len(s.byTag))
	for _, p := range s.byTag {
		positions = append(positions, p.Position)
	}
	return positions
}

// Register implements spec.md §4.7's Register operation.
func (s *State) Register(tag, name string, faction Faction, clientMin, clientCurrent, serverMin, serverCurrent uint16, now time.Time) (*Player, error) {
	if _, exists := s.byTag[tag]; exists {
		return nil, ErrSessionConflict
	}
	if _, taken := s.byName[name]; taken {
		return nil, ErrNameTaken
	}
	if clientCurrent < serverMin || clientMin > serverCurrent {
		return nil, ErrIncompatibleVersion
	}

	if saved, ok := s.restored[name]; ok {
		delete(s.restored, name)
		player := &Player{
			InternalID:      uuid.New(),
			DisplayID:       saved.DisplayID,
			Name:            name,
			Faction:         faction,
			Position:        saved.Position,
			HP:              saved.HP,
			Level:           saved.Level,
			XP:              saved.XP,
			LastHeartbeatAt: now,
			TransportTag:    tag,
		}
		if _, taken := s.byDisplayID[player.DisplayID]; taken {
			player.DisplayID = ""
		}
		if player.DisplayID == "" {
			if id, err := s.allocateDisplayID(); err == nil {
				player.DisplayID = id
			}
		}
		if player.DisplayID != "" {
			s.byTag[tag] = player
			s.byDisplayID[player.DisplayID] = player
			s.byName[name] = player
			return player, nil
		}
	}

	displayID, err := s.allocateDisplayID()
	if err != nil {
		return nil, err
	}

	spawn := s.World.RandomFreePosition(s.occupiedPositions(), 50)
	player := NewPlayer(uuid.New(), displayID, name, faction, spawn, tag, now)

	s.byTag[tag] = player
	s.byDisplayID[displayID] = player
	s.byName[name] = player
	return player, nil
}

// allocateDisplayID generates a display id not currently in use, retrying
// up to MaxDisplayIDAttempts times on collision.
func (s *State) allocateDisplayID() (string, error) {
	for attempt := 0; attempt < MaxDisplayIDAttempts; attempt++ {
		candidate := GenerateDisplayID()
		if _, taken := s.byDisplayID[candidate]; !taken {
			return candidate, nil
		}
	}
	return "", ErrNameTaken
}

// Move implements spec.md §4.7's Move operation.
func (s *State) Move(tag string, dir Direction) (*Player, error) {
	player, ok := s.byTag[tag]
	if !ok {
		return nil, ErrUnknownSession
	}

	candidate := s.World.StepFrom(player.Position, dir)
	if !s.World.InBounds(candidate) {
		return nil, ErrBlocked
	}
	for _, other := range s.byTag {
		if other == player {
			continue
		}
		if Distance(candidate, other.Position) < s.World.CollisionRadius {
			return nil, ErrBlocked
		}
	}

	player.Position = candidate
	return player, nil
}

// Attack implements spec.md §4.7's Attack operation. On success it
// returns the events to broadcast, in order: AttackResolved, then any
// PlayerDefeated, then any PlayerLevelUp entries.
func (s *State) Attack(tag, targetDisplayID string, now time.Time, rollCrit func(prob float64) bool) ([]Event, error) {
	attacker, ok := s.byTag[tag]
	if !ok {
		return nil, ErrUnknownSession
	}
	target, ok := s.byDisplayID[targetDisplayID]
	if !ok {
		return nil, ErrNoSuchTarget
	}
	if attacker.HasAttacked && now.Sub(attacker.LastAttackAt) < s.World.AttackCooldown {
		return nil, ErrOnCooldown
	}
	if Distance(attacker.Position, target.Position) > s.World.AttackRange {
		return nil, ErrOutOfRange
	}

	attacker.LastAttackAt = now
	attacker.HasAttacked = true

	crit := rollCrit(s.World.CritProb)
	damage := s.World.BaseDamage + 2*(attacker.Level-1)
	if crit {
		damage *= 2
	}
	if damage > target.HP {
		damage = target.HP
	}
	target.HP -= damage

	events := []Event{AttackResolved{
		AttackerDisplayID: attacker.DisplayID,
		TargetDisplayID:   target.DisplayID,
		Damage:            damage,
		Crit:              crit,
		TargetHP:          target.HP,
	}}

	attacker.XP += damage
	if target.HP <= 0 {
		attacker.XP += 20
		respawn := s.World.RandomFreePosition(s.occupiedPositions(), 50)
		target.Position = respawn
		target.HP = target.HPMax()
		events = append(events, PlayerDefeated{
			DisplayID:       target.DisplayID,
			RespawnPosition: respawn,
		})
	}

	events = append(events, s.applyLevelUps(attacker)...)
	return events, nil
}

// applyLevelUps drains attacker's XP into levels per spec.md §4.7's
// level-up loop, returning one PlayerLevelUp event per level gained.
func (s *State) applyLevelUps(p *Player) []Event {
	var events []Event
	for p.XP >= XPToNext(p.Level) {
		p.XP -= XPToNext(p.Level)
		p.Level++
		p.HP += 5
		events = append(events, PlayerLevelUp{
			DisplayID: p.DisplayID,
			NewLevel:  p.Level,
			NewHPMax:  p.HPMax(),
		})
	}
	return events
}

// Chat implements spec.md §4.7's Chat validation.
func (s *State) Chat(tag, text string) (*Player, error) {
	player, ok := s.byTag[tag]
	if !ok {
		return nil, ErrUnknownSession
	}
	if len(text) > MaxChatLength {
		return nil, ErrChatTooLong
	}
	return player, nil
}

// Emote implements spec.md §4.7's Emote validation.
func (s *State) Emote(tag string, kind EmoteKind) (*Player, error) {
	player, ok := s.byTag[tag]
	if !ok {
		return nil, ErrUnknownSession
	}
	if !ValidEmoteKind(kind) {
		return nil, ErrInvalidEmote
	}
	return player, nil
}

// Heartbeat implements spec.md §4.7's HeartbeatResponse: updates
// last_inbound_at only. Note this updates last-inbound tracking for ANY
// accepted inbound message, not only explicit Heartbeat payloads; callers
// should invoke it once per accepted envelope regardless of kind.
func (s *State) Heartbeat(tag string, now time.Time) {
	if player, ok := s.byTag[tag]; ok {
		player.LastHeartbeatAt = now
	}
}

// Disconnect implements spec.md §4.7's Disconnect operation, removing the
// player and returning the PlayerLeft event to broadcast.
func (s *State) Disconnect(tag string) (Event, error) {
	player, ok := s.byTag[tag]
	if !ok {
		return nil, ErrUnknownSession
	}
	s.removeLocked(player)
	return PlayerLeft{DisplayID: player.DisplayID}, nil
}

// ReapStale removes every player whose last heartbeat predates the
// timeout, returning one PlayerLeft event per removed player, spec.md
// §4.6's reap tick.
func (s *State) ReapStale(now time.Time, timeout time.Duration) []Event {
	var events []Event
	for _, player := range s.Players() {
		if now.Sub(player.LastHeartbeatAt) >= timeout {
			s.removeLocked(player)
			events = append(events, PlayerLeft{DisplayID: player.DisplayID})
		}
	}
	return events
}

// SnapshotPlayer is the subset of a persisted player record Register
// needs to restore a reconnecting player's progress, spec.md §4.9.
// Transport tag and sequence counters are deliberately absent: spec.md
// §1's Non-goals exclude migrating in-flight sessions across restarts,
// only the player's own progress survives.
type SnapshotPlayer struct {
	Name      string
	DisplayID string
	Faction   Faction
	Position  Vec2
	HP        int
	XP        int
	Level     int
}

// RestoreFromSnapshot stages persisted players for reclaim on their next
// Register: a client that re-registers under the same name picks its
// saved display_id, position, hp, level, and xp back up rather than
// spawning fresh. Nothing becomes "live" until that reconnect happens,
// so restored records never occupy a name/display_id slot permanently or
// appear in broadcasts.
func (s *State) RestoreFromSnapshot(records []SnapshotPlayer, now time.Time) {
	for _, r := range records {
		r.Position = s.World.Clamp(r.Position)
		s.restored[r.Name] = r
	}
}

func (s *State) removeLocked(p *Player) {
	delete(s.byTag, p.TransportTag)
	delete(s.byDisplayID, p.DisplayID)
	delete(s.byName, p.Name)
}
