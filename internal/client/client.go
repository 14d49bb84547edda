// Package client implements NymQuest's client-side mirror of the
// envelope/pacing/rate-limit machinery (spec.md §2's "Client-side
// mirrors..." paragraph, SPEC_FULL.md §4.12): outbound pacing with its
// own token-bucket precheck, envelope encode/decode under the negotiated
// protocol version, and an inbound replay window. The full terminal UI
// remains external per spec.md §1; commands.go stands in with a minimal
// line-oriented producer.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nymquest/nymquest/internal/envelope"
	"github.com/nymquest/nymquest/internal/keys"
	"github.com/nymquest/nymquest/internal/pacing"
	"github.com/nymquest/nymquest/internal/ratelimit"
	"github.com/nymquest/nymquest/internal/replay"
	"github.com/nymquest/nymquest/internal/transport"
	"github.com/nymquest/nymquest/internal/wire"
)

// selfBucketTag is the single key under which the client mirrors the
// server's rate limiter against its own outbound traffic, spec.md §4.4:
// "Client mirrors the bucket at 8/s, burst 15."
const selfBucketTag = "self"

// keyScheduleBaseline must match internal/server's: see server.go's
// comment for why it's the Unix epoch rather than process start time.
var keyScheduleBaseline = time.Unix(0, 0)

// selfLimiterParams implements spec.md §4.4's client-side precheck.
func selfLimiterParams() ratelimit.Params {
	return ratelimit.Params{
		BurstCapacity: 15,
		RefillPerSec:  8,
		IdleGCAfter:   24 * time.Hour,
	}
}

// Client is one player's connection to the server.
type Client struct {
	tr        transport.Transport
	serverTag string

	pacer        *pacing.Pacer
	pacingActive bool
	selfLimiter  *ratelimit.Limiter
	keys         *keys.Schedule
	codec        *envelope.Codec
	inboundWin   *replay.Window

	mu                sync.Mutex
	negotiatedVersion uint16
	outboundSeq       uint64
	displayID         string

	log *log.Logger

	// Events delivers every server->client message this client doesn't
	// consume internally (Heartbeat), for a UI to render.
	Events chan wire.Message
}

// New creates a Client ready to Register. masterSecret must match the
// server's; pacingEnabled is what the caller passes, and cmd/nymquest-client
// passes NYMQUEST_ENABLE_MESSAGE_PROCESSING_PACING, whose default in
// config.Default is false for the client as for the server.
func New(tr transport.Transport, serverTag string, masterSecret []byte, pacingEnabled bool, logger *log.Logger) *Client {
	return &Client{
		tr:           tr,
		serverTag:    serverTag,
		pacer:        pacing.NewPacer(pacing.DefaultClientParams()),
		pacingActive: pacingEnabled,
		selfLimiter:  ratelimit.New(selfLimiterParams()),
		keys:         keys.NewSchedule(masterSecret, keyScheduleBaseline),
		codec:        envelope.NewCodec(),
		inboundWin:   replay.New(replay.DefaultParams()),
		log:          logger,
		Events:       make(chan wire.Message, 64),
	}
}

// ErrLocallyThrottled is returned by Send when the client's own
// precheck bucket is empty, before anything reaches the wire.
var ErrLocallyThrottled = fmt.Errorf("client: locally rate-limited")

// Send paces, precheck-throttles, encodes, and transmits msg.
func (c *Client) Send(ctx context.Context, msg wire.Message, now time.Time) error {
	priority := pacing.PriorityOf(msg.Kind())

	if c.pacingActive {
		if gap := c.pacer.Gap(priority, now); gap > 0 {
			timer := time.NewTimer(gap)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return ctx.Err()
			}
			now = time.Now()
		}
	}

	if !c.selfLimiter.Allow(selfBucketTag, now) {
		return ErrLocallyThrottled
	}

	c.mu.Lock()
	version := c.negotiatedVersion
	if version == 0 {
		version = envelope.CurrentVersion
	}
	seq := c.outboundSeq
	c.outboundSeq++
	c.mu.Unlock()

	key, epoch := c.keys.SigningKey()
	payload, err := c.codec.Encode(msg, seq, version, key, epoch, now)
	if err != nil {
		return fmt.Errorf("client: encode: %w", err)
	}
	if err := c.tr.Send(ctx, c.serverTag, payload); err != nil {
		return fmt.Errorf("client: send: %w", err)
	}
	if c.pacingActive {
		c.pacer.Sent(now)
	}
	return nil
}

// Register sends a Register request and blocks until the matching
// RegisterResponse (or an ErrorMessage) arrives.
func (c *Client) Register(ctx context.Context, name string, faction uint8) (*wire.RegisterResponse, error) {
	req := &wire.Register{
		Name:                 name,
		Faction:              faction,
		ClientMinVersion:     envelope.MinSupportedVersion,
		ClientCurrentVersion: envelope.CurrentVersion,
	}
	if err := c.Send(ctx, req, time.Now()); err != nil {
		return nil, err
	}

	for {
		pkt, err := c.tr.Recv(ctx)
		if err != nil {
			return nil, fmt.Errorf("client: recv: %w", err)
		}
		decoded, msg, ok := c.decodeAccepted(pkt, time.Now())
		if !ok {
			continue
		}
		switch m := msg.(type) {
		case *wire.RegisterResponse:
			c.mu.Lock()
			c.negotiatedVersion = decoded.Version
			c.displayID = m.DisplayID
			c.mu.Unlock()
			return m, nil
		case *wire.ErrorMessage:
			return nil, fmt.Errorf("client: register rejected: %s", m.Text)
		default:
			// A stray broadcast arriving before our own RegisterResponse;
			// surface it and keep waiting.
			c.deliver(msg)
		}
	}
}

// Run drains inbound packets until ctx is canceled, decoding, replay
// checking, answering Heartbeats, and forwarding everything else to
// Events.
func (c *Client) Run(ctx context.Context) {
	for {
		pkt, err := c.tr.Recv(ctx)
		if err != nil {
			if c.log != nil {
				c.log.Debug("client recv stopped", "err", err)
			}
			close(c.Events)
			return
		}
		_, msg, ok := c.decodeAccepted(pkt, time.Now())
		if !ok {
			continue
		}
		if hb, isHB := msg.(*wire.Heartbeat); isHB {
			_ = hb
			_ = c.Send(ctx, &wire.HeartbeatResponse{}, time.Now())
			continue
		}
		c.deliver(msg)
	}
}

func (c *Client) deliver(msg wire.Message) {
	select {
	case c.Events <- msg:
	default:
		if c.log != nil {
			c.log.Warn("dropping event, consumer too slow", "kind", msg.Kind())
		}
	}
}

// decodeAccepted decodes and replay-checks one inbound packet, logging
// and dropping on any failure per spec.md §5's "inbound decode failure
// never cancels the loop."
func (c *Client) decodeAccepted(pkt transport.Packet, now time.Time) (*envelope.Decoded, wire.Message, bool) {
	decoded, err := c.codec.Decode(pkt.Payload, c.keys, now)
	if err != nil {
		if c.log != nil {
			c.log.Debug("envelope rejected", "err", err)
		}
		return nil, nil, false
	}
	if err := c.inboundWin.Accept(decoded.Sequence, now); err != nil {
		if c.log != nil {
			c.log.Debug("replay window rejected", "seq", decoded.Sequence, "err", err)
		}
		return nil, nil, false
	}
	return decoded, decoded.Message, true
}

// DisplayID returns this client's display id once Register has
// succeeded, or "" before then.
func (c *Client) DisplayID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.displayID
}

// Disconnect sends a Disconnect; it does not wait for the server's Ack.
func (c *Client) Disconnect(ctx context.Context) error {
	return c.Send(ctx, &wire.Disconnect{}, time.Now())
}
