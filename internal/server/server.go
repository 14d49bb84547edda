// Package server implements NymQuest's server-side event loop (spec.md
// §4.6): the single goroutine that owns game state and the session
// registry, multiplexing inbound transport frames against heartbeat,
// reap, persist, and key-rotation timers plus a shutdown signal.
//
// Grounded on client2/connection.go and server/internal/decoy/decoy.go's
// single-select-loop shape: one goroutine owns all mutable state, every
// other goroutine (transport I/O, persistence writes) talks to it only
// through channels.
package server

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nymquest/nymquest/internal/config"
	"github.com/nymquest/nymquest/internal/envelope"
	"github.com/nymquest/nymquest/internal/game"
	"github.com/nymquest/nymquest/internal/keys"
	"github.com/nymquest/nymquest/internal/pacing"
	"github.com/nymquest/nymquest/internal/persistence"
	"github.com/nymquest/nymquest/internal/ratelimit"
	"github.com/nymquest/nymquest/internal/replay"
	"github.com/nymquest/nymquest/internal/session"
	"github.com/nymquest/nymquest/internal/transport"
	"github.com/nymquest/nymquest/internal/wire"
	"github.com/nymquest/nymquest/internal/xrand"
)

const (
	reapTickInterval       = 15 * time.Second
	persistTickInterval    = 120 * time.Second
	keyRotateTickInterval  = time.Hour
	shutdownCountdownSecs  = 5
	persistShutdownTimeout = 2 * time.Second
)

// keyScheduleBaseline anchors epoch 0 for every NymQuest process sharing a
// master secret, server and client alike — using each process's own
// startup time as the baseline (as a literal reading of spec.md §4.2
// might suggest) would desynchronize epoch numbering between peers that
// started at different times. Fixed at the Unix epoch so two processes
// that never coordinate a start time still agree on which epoch is
// current, since both derive it from the same absolute reference.
var keyScheduleBaseline = time.Unix(0, 0)

// Server owns every piece of state the event loop mutates.
type Server struct {
	cfg   config.Config
	world game.World

	state    *game.State
	sessions *session.Registry
	limiter  *ratelimit.Limiter
	pacer    *pacing.ServerPacer
	keys     *keys.Schedule
	codec    *envelope.Codec

	transport transport.Transport
	store     *persistence.Store
	outbox    *outbox
	macTrack  *macFailTracker

	log *log.Logger
}

// New builds a Server ready to Run. masterSecret seeds the MAC key
// schedule; it is operator-provisioned and out of scope for this module
// (spec.md §4.2).
func New(cfg config.Config, tr transport.Transport, masterSecret []byte, logger *log.Logger) *Server {
	defaults := game.DefaultWorld()
	world := game.World{
		MinX: cfg.WorldMinX, MaxX: cfg.WorldMaxX,
		MinY: cfg.WorldMinY, MaxY: cfg.WorldMaxY,
		Step:            cfg.MovementSpeed,
		CollisionRadius: cfg.PlayerCollisionRadius,
		AttackRange:     defaults.AttackRange,
		CritProb:        defaults.CritProb,
		BaseDamage:      defaults.BaseDamage,
		AttackCooldown:  defaults.AttackCooldown,
	}

	replayParams := replayParamsFromConfig(cfg)
	limiterParams := ratelimit.Params{
		BurstCapacity: int64(cfg.MessageBurstSize),
		RefillPerSec:  int64(cfg.MessageRateLimit),
		IdleGCAfter:   ratelimit.DefaultParams().IdleGCAfter,
	}

	var store *persistence.Store
	if !cfg.DisablePersistence {
		store = persistence.New(cfg.StateDirectory, cfg.StateFilename, logger)
	}

	return &Server{
		cfg:   cfg,
		world: world,

		state:    game.NewState(world),
		sessions: session.New(replayParams),
		limiter:  ratelimit.New(limiterParams),
		pacer: pacing.NewServerPacer(pacing.ServerParams{
			BaseInterval: time.Duration(cfg.ProcessingIntervalMs) * time.Millisecond,
			JitterPct:    float64(cfg.ProcessingJitterPercent) / 100.0,
		}),
		keys:  keys.NewSchedule(masterSecret, keyScheduleBaseline),
		codec: envelope.NewCodec(),

		transport: tr,
		store:     store,
		outbox:    newOutbox(logger),
		macTrack:  newMACFailTracker(cfg.MACFailureThreshold, time.Duration(cfg.MACFailureWindowSeconds)*time.Second),

		log: logger,
	}
}

func replayParamsFromConfig(cfg config.Config) replay.Params {
	return replay.Params{
		MinWindow:          uint32(cfg.ReplayMinWindow),
		MaxWindow:          uint32(cfg.ReplayMaxWindow),
		InitialWindow:      uint32(cfg.ReplayWindowSize),
		Adaptive:           cfg.ReplayAdaptive,
		AdjustmentCooldown: cfg.ReplayAdjustmentCooldown,
	}
}

// Run loads any persisted snapshot, binds the event loop, and runs until
// ctx is canceled, at which point it performs the graceful shutdown
// sequence of spec.md §4.6 step 5 before returning.
func (s *Server) Run(ctx context.Context) error {
	s.loadSnapshot()

	if s.store != nil {
		s.store.Start()
	}

	inboundCh := make(chan transport.Packet, 256)
	go s.readLoop(ctx, inboundCh)
	go runSender(ctx, s.outbox, s.transport, s.log)

	heartbeatTicker := time.NewTicker(time.Duration(s.cfg.HeartbeatIntervalSeconds) * time.Second)
	defer heartbeatTicker.Stop()
	reapTicker := time.NewTicker(reapTickInterval)
	defer reapTicker.Stop()
	keyRotateTicker := time.NewTicker(keyRotateTickInterval)
	defer keyRotateTicker.Stop()

	var persistCh <-chan time.Time
	if s.store != nil {
		persistTicker := time.NewTicker(persistTickInterval)
		defer persistTicker.Stop()
		persistCh = persistTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil

		case pkt := <-inboundCh:
			now := time.Now()
			if s.cfg.EnableProcessingPacing {
				if !s.sleepPacingGap(ctx) {
					s.shutdown()
					return nil
				}
			}
			s.handleInbound(pkt, now)

		case now := <-heartbeatTicker.C:
			s.broadcastHeartbeat(now)

		case now := <-reapTicker.C:
			s.reapStaleSessions(now)

		case now := <-persistCh:
			s.persistSnapshot(now)

		case <-keyRotateTicker.C:
			s.keys.SigningKey()
		}
	}
}

// sleepPacingGap waits out the server processing pacer's inter-dequeue
// gap, returning false if ctx was canceled first.
func (s *Server) sleepPacingGap(ctx context.Context) bool {
	timer := time.NewTimer(s.pacer.NextDelay())
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Server) readLoop(ctx context.Context, out chan<- transport.Packet) {
	for {
		pkt, err := s.transport.Recv(ctx)
		if err != nil {
			if s.log != nil {
				s.log.Debug("transport recv stopped", "err", err)
			}
			return
		}
		select {
		case out <- pkt:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) broadcastHeartbeat(now time.Time) {
	msg := &wire.Heartbeat{ServerTimeMs: now.UnixMilli()}
	for _, sess := range s.sessions.All() {
		s.sendTo(sess.TransportTag, msg, now)
	}
}

// reapStaleSessions implements spec.md §4.6 step 3: sessions silent
// longer than heartbeat_timeout are dropped and PlayerLeft is broadcast.
func (s *Server) reapStaleSessions(now time.Time) {
	timeout := time.Duration(s.cfg.HeartbeatTimeoutSeconds) * time.Second

	events := s.state.ReapStale(now, timeout)
	if len(events) > 0 {
		s.broadcastEvents(events, "", now)
	}

	for _, tag := range s.sessions.StaleTags(now, timeout) {
		s.teardownSession(tag)
	}
	s.limiter.GC(now)
}

func (s *Server) persistSnapshot(now time.Time) {
	if s.store == nil {
		return
	}
	s.store.Save(persistence.FromState(s.state, s.world, now))
}

func (s *Server) loadSnapshot() {
	if s.store == nil {
		return
	}
	now := time.Now()
	snap, err := persistence.Load(s.cfg.StateDirectory, s.cfg.StateFilename, s.world, now)
	if err != nil {
		if s.log != nil {
			s.log.Warn("no usable persisted snapshot, starting fresh", "err", err)
		}
		if err == persistence.ErrSchemaMismatch {
			if archErr := persistence.ArchiveStale(s.cfg.StateDirectory, s.cfg.StateFilename, now); archErr != nil && s.log != nil {
				s.log.Error("failed to archive mismatched snapshot", "err", archErr)
			}
		}
		return
	}
	records := make([]game.SnapshotPlayer, 0, len(snap.Players))
	for _, p := range snap.Players {
		faction, ok := game.ParseFaction(p.Faction)
		if !ok {
			if s.log != nil {
				s.log.Warn("dropping restored player with unknown faction", "name", p.Name, "faction", p.Faction)
			}
			continue
		}
		records = append(records, game.SnapshotPlayer{
			Name:      p.Name,
			DisplayID: p.DisplayID,
			Faction:   faction,
			Position:  game.Vec2{X: p.Position.X, Y: p.Position.Y},
			HP:        p.HP,
			XP:        p.XP,
			Level:     p.Level,
		})
	}
	s.state.RestoreFromSnapshot(records, now)
	if s.log != nil {
		s.log.Info("restored persisted snapshot", "players", len(records))
	}
}

// shutdown implements spec.md §4.6 step 5: announce, wait out the
// countdown, persist a final snapshot, and release the transport.
func (s *Server) shutdown() {
	now := time.Now()
	msg := &wire.ServerShutdown{CountdownSecs: shutdownCountdownSecs}
	for _, sess := range s.sessions.All() {
		s.sendTo(sess.TransportTag, msg, now)
	}
	// runSender stops with the canceled ctx, so the announcement is flushed
	// to the transport here.
	for _, m := range s.outbox.drain() {
		if err := s.transport.Send(context.Background(), m.tag, m.payload); err != nil && s.log != nil {
			s.log.Debug("shutdown announcement send failed", "tag", m.tag, "err", err)
		}
	}

	time.Sleep(shutdownCountdownSecs * time.Second)

	if s.store != nil {
		s.store.Save(persistence.FromState(s.state, s.world, time.Now()))
		select {
		case err := <-s.store.Errors():
			if err != nil && s.log != nil {
				s.log.Error("final snapshot write failed", "err", err)
			}
		case <-time.After(persistShutdownTimeout):
			if s.log != nil {
				s.log.Warn("final snapshot write timed out")
			}
		}
		s.store.Halt()
		s.store.Wait()
	}

	if err := s.transport.Close(); err != nil && s.log != nil {
		s.log.Error("transport close failed", "err", err)
	}
}

// teardownSession removes every trace of tag's session: the game player
// (if registered), the session record, the rate limiter bucket, and any
// queued outbound messages.
func (s *Server) teardownSession(tag string) {
	if _, ok := s.state.ByTag(tag); ok {
		if ev, err := s.state.Disconnect(tag); err == nil {
			s.broadcastEvents([]game.Event{ev}, tag, time.Now())
		}
	}
	s.sessions.Close(tag)
	s.limiter.Remove(tag)
	s.macTrack.forget(tag)
	s.outbox.dropSession(tag)
}

// sendTo encodes msg for tag's session with its negotiated version and
// next outbound sequence number, then hands it to the outbox.
func (s *Server) sendTo(tag string, msg wire.Message, now time.Time) {
	sess, ok := s.sessions.Get(tag)
	if !ok {
		return
	}
	version := sess.NegotiatedVersion
	if version == 0 {
		version = envelope.CurrentVersion
	}
	key, epoch := s.keys.SigningKey()
	seq := sess.NextOutboundSeq()

	payload, err := s.codec.Encode(msg, seq, version, key, epoch, now)
	if err != nil {
		if s.log != nil {
			s.log.Error("encode outbound failed", "kind", msg.Kind(), "err", err)
		}
		return
	}
	s.outbox.enqueue(tag, payload)
}

func (s *Server) worldConfig() wire.WorldConfig {
	return wire.WorldConfig{
		MinX: s.world.MinX, MaxX: s.world.MaxX,
		MinY: s.world.MinY, MaxY: s.world.MaxY,
		Step:             s.world.Step,
		CollisionRadius:  s.world.CollisionRadius,
		AttackRange:      s.world.AttackRange,
		CritProbability:  s.world.CritProb,
		BaseDamage:       s.world.BaseDamage,
		AttackCooldownMs: s.world.AttackCooldown.Milliseconds(),
	}
}

func rollCrit(prob float64) bool {
	return xrand.NewMath().Float64() < prob
}
