package game

import (
	"testing"
	"time"
)

func testWorld() World {
	w := DefaultWorld()
	w.MinX, w.MaxX = 0, 100
	w.MinY, w.MaxY = 0, 100
	return w
}

func mustRegister(t *testing.T, s *State, tag, name string) *Player {
	t.Helper()
	p, err := s.Register(tag, name, FactionNyms, 1, 1, 1, 1, time.Now())
	if err != nil {
		t.Fatalf("Register(%s): %v", name, err)
	}
	return p
}

func TestRegisterRejectsSessionConflict(t *testing.T) {
	s := NewState(testWorld())
	mustRegister(t, s, "tag-a", "Alice")
	if _, err := s.Register("tag-a", "Bob", FactionCipher, 1, 1, 1, 1, time.Now()); err != ErrSessionConflict {
		t.Errorf("err = %v, want ErrSessionConflict", err)
	}
}

func TestRegisterRejectsNameTaken(t *testing.T) {
	s := NewState(testWorld())
	mustRegister(t, s, "tag-a", "Alice")
	if _, err := s.Register("tag-b", "Alice", FactionCipher, 1, 1, 1, 1, time.Now()); err != ErrNameTaken {
		t.Errorf("err = %v, want ErrNameTaken", err)
	}
}

func TestRegisterRejectsIncompatibleVersion(t *testing.T) {
	s := NewState(testWorld())
	if _, err := s.Register("tag-a", "Alice", FactionNyms, 5, 9, 1, 2, time.Now()); err != ErrIncompatibleVersion {
		t.Errorf("err = %v, want ErrIncompatibleVersion", err)
	}
}

func TestMoveUpdatesPositionWithinBounds(t *testing.T) {
	s := NewState(testWorld())
	p := mustRegister(t, s, "tag-a", "Alice")
	p.Position = Vec2{X: 50, Y: 50}

	moved, err := s.Move("tag-a", DirectionRight)
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if moved.Position.X != 64 || moved.Position.Y != 50 {
		t.Errorf("Position = %+v, want (64,50)", moved.Position)
	}
}

func TestMoveBlockedOutOfBounds(t *testing.T) {
	s := NewState(testWorld())
	p := mustRegister(t, s, "tag-a", "Alice")
	p.Position = Vec2{X: 99, Y: 99}

	if _, err := s.Move("tag-a", DirectionUpRight); err != ErrBlocked {
		t.Errorf("err = %v, want ErrBlocked", err)
	}
}

func TestMoveBlockedByCollision(t *testing.T) {
	s := NewState(testWorld())
	a := mustRegister(t, s, "tag-a", "Alice")
	b := mustRegister(t, s, "tag-b", "Bob")
	a.Position = Vec2{X: 50, Y: 50}
	b.Position = Vec2{X: 66, Y: 50}

	if _, err := s.Move("tag-a", DirectionRight); err != ErrBlocked {
		t.Errorf("err = %v, want ErrBlocked (collision)", err)
	}
}

func TestAttackRespectsCooldown(t *testing.T) {
	s := NewState(testWorld())
	b := mustRegister(t, s, "tag-b", "Bravo")
	c := mustRegister(t, s, "tag-c", "Charlie")
	b.Position = Vec2{X: 0, Y: 0}
	c.Position = Vec2{X: 10, Y: 0}

	noCrit := func(float64) bool { return false }
	now := time.Unix(0, 0)

	if _, err := s.Attack("tag-b", "NoSuchDisplayID999", now, noCrit); err != ErrNoSuchTarget {
		t.Errorf("err = %v, want ErrNoSuchTarget", err)
	}

	if _, err := s.Attack("tag-b", c.DisplayID, now, noCrit); err != nil {
		t.Fatalf("first attack: %v", err)
	}
	if c.HP != 90 {
		t.Errorf("target hp = %d, want 90", c.HP)
	}

	if _, err := s.Attack("tag-b", c.DisplayID, now.Add(1500*time.Millisecond), noCrit); err != ErrOnCooldown {
		t.Errorf("err = %v, want ErrOnCooldown", err)
	}
	if c.HP != 90 {
		t.Errorf("target hp after rejected attack = %d, want unchanged 90", c.HP)
	}
}

func TestAttackOutOfRange(t *testing.T) {
	s := NewState(testWorld())
	b := mustRegister(t, s, "tag-b", "Bravo")
	c := mustRegister(t, s, "tag-c", "Charlie")
	b.Position = Vec2{X: 0, Y: 0}
	c.Position = Vec2{X: 50, Y: 50}

	noCrit := func(float64) bool { return false }
	if _, err := s.Attack("tag-b", c.DisplayID, time.Now(), noCrit); err != ErrOutOfRange {
		t.Errorf("err = %v, want ErrOutOfRange", err)
	}
}

func TestAttackCritDoublesDamage(t *testing.T) {
	s := NewState(testWorld())
	b := mustRegister(t, s, "tag-b", "Bravo")
	c := mustRegister(t, s, "tag-c", "Charlie")
	b.Position = Vec2{X: 0, Y: 0}
	c.Position = Vec2{X: 5, Y: 0}

	alwaysCrit := func(float64) bool { return true }
	if _, err := s.Attack("tag-b", c.DisplayID, time.Now(), alwaysCrit); err != nil {
		t.Fatalf("attack: %v", err)
	}
	if c.HP != 80 {
		t.Errorf("target hp = %d, want 80 (crit damage 20)", c.HP)
	}
}

func TestDefeatTriggersRespawnAndBonusXP(t *testing.T) {
	s := NewState(testWorld())
	b := mustRegister(t, s, "tag-b", "Bravo")
	c := mustRegister(t, s, "tag-c", "Charlie")
	b.Position = Vec2{X: 0, Y: 0}
	c.Position = Vec2{X: 5, Y: 0}
	c.HP = 5

	noCrit := func(float64) bool { return false }
	events, err := s.Attack("tag-b", c.DisplayID, time.Now(), noCrit)
	if err != nil {
		t.Fatalf("attack: %v", err)
	}
	if c.HP != c.HPMax() {
		t.Errorf("defeated target hp = %d, want full %d", c.HP, c.HPMax())
	}

	sawDefeat := false
	for _, e := range events {
		if _, ok := e.(PlayerDefeated); ok {
			sawDefeat = true
		}
	}
	if !sawDefeat {
		t.Error("expected a PlayerDefeated event")
	}
	if b.XP != 5+20 {
		t.Errorf("attacker xp = %d, want 25 (5 damage dealt + 20 kill bonus)", b.XP)
	}
}

func TestLevelUpInvariantHoldsAfterXPGain(t *testing.T) {
	s := NewState(testWorld())
	b := mustRegister(t, s, "tag-b", "Bravo")
	b.XP = 105
	b.Level = 1

	events := s.applyLevelUps(b)
	if len(events) != 1 {
		t.Fatalf("level-up events = %d, want 1", len(events))
	}
	if b.XP >= XPToNext(b.Level) {
		t.Errorf("xp invariant violated: xp=%d xp_to_next(%d)=%d", b.XP, b.Level, XPToNext(b.Level))
	}
	if b.HP > b.HPMax() {
		t.Errorf("hp invariant violated: hp=%d hp_max=%d", b.HP, b.HPMax())
	}
}

func TestChatRejectsOverlongText(t *testing.T) {
	s := NewState(testWorld())
	mustRegister(t, s, "tag-a", "Alice")
	long := make([]byte, MaxChatLength+1)
	for i := range long {
		long[i] = 'x'
	}
	if _, err := s.Chat("tag-a", string(long)); err != ErrChatTooLong {
		t.Errorf("err = %v, want ErrChatTooLong", err)
	}
}

func TestEmoteRejectsInvalidKind(t *testing.T) {
	s := NewState(testWorld())
	mustRegister(t, s, "tag-a", "Alice")
	if _, err := s.Emote("tag-a", EmoteKind(200)); err != ErrInvalidEmote {
		t.Errorf("err = %v, want ErrInvalidEmote", err)
	}
}

func TestDisconnectRemovesPlayer(t *testing.T) {
	s := NewState(testWorld())
	mustRegister(t, s, "tag-a", "Alice")
	if _, err := s.Disconnect("tag-a"); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if _, ok := s.ByTag("tag-a"); ok {
		t.Error("player still present after Disconnect")
	}
}

func TestReapStaleRemovesTimedOutSessions(t *testing.T) {
	s := NewState(testWorld())
	p := mustRegister(t, s, "tag-a", "Alice")
	p.LastHeartbeatAt = time.Now().Add(-2 * time.Minute)

	events := s.ReapStale(time.Now(), 90*time.Second)
	if len(events) != 1 {
		t.Fatalf("reap events = %d, want 1", len(events))
	}
	if _, ok := s.ByTag("tag-a"); ok {
		t.Error("player still present after reap")
	}
}

func TestNoLiveDisplayIDCollisions(t *testing.T) {
	s := NewState(testWorld())
	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		p := mustRegister(t, s, string(rune('a'+i)), string(rune('A'+i)))
		if seen[p.DisplayID] {
			t.Fatalf("duplicate display id %q", p.DisplayID)
		}
		seen[p.DisplayID] = true
	}
}

func TestRestoreFromSnapshotReclaimsProgressOnReconnect(t *testing.T) {
	s := NewState(testWorld())
	s.RestoreFromSnapshot([]SnapshotPlayer{{
		Name:      "Alice",
		DisplayID: "AX12",
		Faction:   FactionCipher,
		Position:  Vec2{X: 10, Y: 20},
		HP:        42,
		XP:        7,
		Level:     3,
	}}, time.Now())

	p := mustRegister(t, s, "tag-new", "Alice")
	if p.DisplayID != "AX12" || p.HP != 42 || p.XP != 7 || p.Level != 3 {
		t.Errorf("restored player = %+v, want display AX12 hp 42 xp 7 level 3", p)
	}
	if p.Position != (Vec2{X: 10, Y: 20}) {
		t.Errorf("restored position = %+v, want (10,20)", p.Position)
	}
}

func TestRestoreFromSnapshotDoesNotBlockNameReuseUntilReconnect(t *testing.T) {
	s := NewState(testWorld())
	s.RestoreFromSnapshot([]SnapshotPlayer{{
		Name: "Alice", DisplayID: "AX12", Faction: FactionNyms,
		Position: Vec2{X: 1, Y: 1}, HP: 100, Level: 1,
	}}, time.Now())

	// A staged restore must not occupy byTag/byDisplayID/byName, or it
	// would be a permanent ghost: never broadcast, never reaped, and
	// blocking this very name from ever registering again.
	if len(s.Players()) != 0 {
		t.Fatalf("Players() = %d, want 0 before any reconnect", len(s.Players()))
	}
	if events := s.ReapStale(time.Now().Add(time.Hour), time.Minute); len(events) != 0 {
		t.Errorf("ReapStale produced %d events for a staged-only restore, want 0", len(events))
	}

	p := mustRegister(t, s, "tag-a", "Alice")
	if p.DisplayID != "AX12" {
		t.Fatalf("DisplayID = %q, want AX12", p.DisplayID)
	}
	if _, err := s.Register("tag-b", "Alice", FactionNyms, 1, 1, 1, 1, time.Now()); err != ErrNameTaken {
		t.Errorf("second Register for same name err = %v, want ErrNameTaken", err)
	}
}

func TestRestoreFromSnapshotFallsBackToFreshDisplayIDOnCollision(t *testing.T) {
	s := NewState(testWorld())
	live := mustRegister(t, s, "tag-live", "Bob")
	s.RestoreFromSnapshot([]SnapshotPlayer{{
		Name: "Alice", DisplayID: live.DisplayID, Faction: FactionNyms,
		Position: Vec2{X: 1, Y: 1}, HP: 100, Level: 1,
	}}, time.Now())

	p := mustRegister(t, s, "tag-alice", "Alice")
	if p.DisplayID == live.DisplayID {
		t.Fatalf("restored player collided with live display id %q", live.DisplayID)
	}
	if p.DisplayID == "" {
		t.Error("expected a freshly allocated display id, got empty")
	}
}
