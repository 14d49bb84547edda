// Package transport defines the abstract boundary NymQuest talks to the
// anonymous mix network through (spec.md §6): send/recv addressed by
// opaque transport tags, with no ordering, reliability, or identity
// guarantees. The real mix-net client lives outside this module entirely;
// internal/transport/udp.go is a concrete, runnable stand-in used for
// local testing and development, grounded on sockatz/common/conn.go's
// worker-goroutine-backed net.PacketConn wrapper.
package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned by Send/Recv once the transport has been closed.
var ErrClosed = errors.New("transport: closed")

// ErrUnknownTag is returned by Send when tag doesn't name any peer this
// transport has ever received from.
var ErrUnknownTag = errors.New("transport: unknown tag")

// Packet is one inbound datagram, tagged with its opaque sender handle.
type Packet struct {
	Tag     string
	Payload []byte
}

// Transport is the external collaborator boundary from spec.md §6:
// `{ send(tag, bytes) -> ok|err; recv() -> (tag, bytes); local_address()
// -> str; close() }`.
type Transport interface {
	// Send addresses bytes to tag's return path. tag must have been seen
	// in a prior Recv (the mix network anonymizes senders; there is no
	// way to address a peer the transport hasn't already heard from).
	Send(ctx context.Context, tag string, payload []byte) error

	// Recv blocks until the next inbound packet or ctx is canceled.
	Recv(ctx context.Context) (Packet, error)

	// LocalAddress reports this transport's own bind address, published
	// via internal/discovery.
	LocalAddress() string

	// Close releases the transport's underlying resources.
	Close() error
}
