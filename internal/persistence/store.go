package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nymquest/nymquest/internal/game"
	"github.com/nymquest/nymquest/internal/worker"
)

// ErrSchemaMismatch is returned by Load when a snapshot's world
// configuration fingerprint doesn't match the running server's, per
// spec.md §4.9.
var ErrSchemaMismatch = errors.New("persistence: world config fingerprint mismatch")

// StaleAfter is how old last_seen_ms may be before Load drops a player,
// spec.md §4.9.
const StaleAfter = 5 * time.Minute

// Store owns the on-disk snapshot and a worker goroutine that performs
// writes off the event-loop goroutine, communicating over a channel
// exactly as disk.go's StateWriter does, minus the encryption.
type Store struct {
	worker.Worker

	log *log.Logger

	dir      string
	filename string

	writeCh chan Snapshot
	errCh   chan error
}

// New creates a Store rooted at dir, persisting to filename (typically
// "game_state.json").
func New(dir, filename string, logger *log.Logger) *Store {
	return &Store{
		log:      logger,
		dir:      dir,
		filename: filename,
		writeCh:  make(chan Snapshot, 1),
		errCh:    make(chan error, 1),
	}
}

func (s *Store) targetPath() string { return filepath.Join(s.dir, s.filename) }
func (s *Store) bakPath() string    { return s.targetPath() + ".bak" }
func (s *Store) tmpPath() string    { return s.targetPath() + ".tmp" }

// Start launches the background write worker.
func (s *Store) Start() {
	if s.log != nil {
		s.log.Debug("persistence store starting worker")
	}
	s.Go(s.loop)
}

func (s *Store) loop() {
	for {
		select {
		case <-s.HaltCh():
			return
		case snap := <-s.writeCh:
			err := s.writeAtomic(snap)
			if err != nil && s.log != nil {
				s.log.Error("snapshot write failed", "err", err)
			}
			select {
			case s.errCh <- err:
			default:
			}
		}
	}
}

// Save enqueues snap for writing. It does not block on completion;
// callers that need to know the outcome should drain Errors().
func (s *Store) Save(snap Snapshot) {
	select {
	case s.writeCh <- snap:
	default:
		// A write is already pending; the event loop's persist tick runs
		// far slower than the channel can drain, so drop rather than block
		// the caller (the next tick will carry a fresher snapshot anyway).
		if s.log != nil {
			s.log.Warn("dropping snapshot, previous write still pending")
		}
	}
}

// Errors returns the channel the write worker reports outcomes on.
func (s *Store) Errors() <-chan error { return s.errCh }

// writeAtomic implements spec.md §4.9's write sequence: serialize to
// .tmp, fsync, rotate the current target to .bak, rename .tmp into
// place. If the .tmp write itself fails, .bak is left untouched (spec.md
// §7: "refuse to overwrite .bak if tmp write fails").
func (s *Store) writeAtomic(snap Snapshot) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("persistence: mkdir: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("persistence: marshal: %w", err)
	}

	f, err := os.OpenFile(s.tmpPath(), os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("persistence: open tmp: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("persistence: write tmp: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("persistence: fsync tmp: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("persistence: close tmp: %w", err)
	}

	if _, err := os.Stat(s.targetPath()); err == nil {
		if err := os.Rename(s.targetPath(), s.bakPath()); err != nil {
			return fmt.Errorf("persistence: rotate backup: %w", err)
		}
	}
	if err := os.Rename(s.tmpPath(), s.targetPath()); err != nil {
		return fmt.Errorf("persistence: rename into place: %w", err)
	}
	return nil
}

// Load reads the on-disk snapshot, falling back to the backup file if
// the primary is missing or fails to parse, per spec.md §4.9. It drops
// players stale by more than StaleAfter and clamps out-of-bounds
// positions to the given world. A fingerprint mismatch returns
// ErrSchemaMismatch without reading player data, so the caller can
// archive the file and start fresh.
func Load(dir, filename string, world game.World, now time.Time) (*Snapshot, error) {
	target := filepath.Join(dir, filename)
	data, err := os.ReadFile(target)
	var snap Snapshot
	if err == nil {
		err = json.Unmarshal(data, &snap)
	}
	if err != nil {
		bak := target + ".bak"
		bakData, bakErr := os.ReadFile(bak)
		if bakErr != nil {
			return nil, fmt.Errorf("persistence: load failed, no usable backup: %w", err)
		}
		if err := json.Unmarshal(bakData, &snap); err != nil {
			return nil, fmt.Errorf("persistence: backup also unparsable: %w", err)
		}
	}

	if snap.WorldConfigFingerprint != world.Fingerprint() {
		return nil, ErrSchemaMismatch
	}

	filtered := make([]PlayerRecord, 0, len(snap.Players))
	for _, p := range snap.Players {
		age := now.Sub(time.UnixMilli(p.LastSeenMs))
		if age > StaleAfter {
			continue
		}
		pos := world.Clamp(game.Vec2{X: p.Position.X, Y: p.Position.Y})
		p.Position = Vec2{X: pos.X, Y: pos.Y}
		filtered = append(filtered, p)
	}
	snap.Players = filtered
	return &snap, nil
}

// ArchiveStale renames a schema-mismatched snapshot out of the way so a
// fresh one can be written, per spec.md §4.9.
func ArchiveStale(dir, filename string, now time.Time) error {
	target := filepath.Join(dir, filename)
	if _, err := os.Stat(target); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	archived := fmt.Sprintf("%s.schema-mismatch.%d", target, now.UnixNano())
	return os.Rename(target, archived)
}
