package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/nymquest/nymquest/internal/worker"
)

// UDPTransport is a concrete Transport over UDP datagrams: each observed
// remote address becomes an opaque transport tag (its string form), so
// the rest of the module never touches a net.Addr directly. It stands in
// for the real mix-net client during local development.
//
// Grounded on sockatz/common/conn.go's QUICProxyConn: a worker.Worker
// embedding a background read loop that feeds a channel, with Send/Recv
// as the only public surface.
type UDPTransport struct {
	worker.Worker

	conn *net.UDPConn

	mu        sync.RWMutex
	tagToAddr map[string]*net.UDPAddr

	incoming chan Packet
}

const inboundQueueDepth = 256

// ListenUDP binds a UDP socket at addr (e.g. ":9321") and starts its
// background read loop.
func ListenUDP(addr string) (*UDPTransport, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %q: %w", addr, err)
	}

	t := &UDPTransport{
		conn:      conn,
		tagToAddr: make(map[string]*net.UDPAddr),
		incoming:  make(chan Packet, inboundQueueDepth),
	}
	t.Go(t.readLoop)
	return t, nil
}

// DialUDP binds an ephemeral local UDP socket and pre-registers
// serverAddr's tag, so a client can Send to it before ever receiving a
// reply. Real mix-net clients don't need this (the first hop is already
// known out of band); it's UDPTransport-specific since plain UDP has no
// return-path discovery of its own.
func DialUDP(serverAddr string) (t *UDPTransport, serverTag string, err error) {
	t, err = ListenUDP(":0")
	if err != nil {
		return nil, "", err
	}
	addr, err := net.ResolveUDPAddr("udp", serverAddr)
	if err != nil {
		t.Close()
		return nil, "", fmt.Errorf("transport: resolve server addr %q: %w", serverAddr, err)
	}
	tag := addr.String()
	t.mu.Lock()
	t.tagToAddr[tag] = addr
	t.mu.Unlock()
	return t, tag, nil
}

func (t *UDPTransport) readLoop() {
	buf := make([]byte, 65535)
	for {
		select {
		case <-t.HaltCh():
			return
		default:
		}

		n, addr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-t.HaltCh():
				return
			default:
				continue
			}
		}

		tag := addr.String()
		t.mu.Lock()
		t.tagToAddr[tag] = addr
		t.mu.Unlock()

		payload := make([]byte, n)
		copy(payload, buf[:n])

		select {
		case t.incoming <- Packet{Tag: tag, Payload: payload}:
		case <-t.HaltCh():
			return
		}
	}
}

// Send implements Transport.
func (t *UDPTransport) Send(ctx context.Context, tag string, payload []byte) error {
	t.mu.RLock()
	addr, ok := t.tagToAddr[tag]
	t.mu.RUnlock()
	if !ok {
		return ErrUnknownTag
	}
	_, err := t.conn.WriteToUDP(payload, addr)
	return err
}

// Recv implements Transport.
func (t *UDPTransport) Recv(ctx context.Context) (Packet, error) {
	select {
	case pkt, ok := <-t.incoming:
		if !ok {
			return Packet{}, ErrClosed
		}
		return pkt, nil
	case <-t.HaltCh():
		return Packet{}, ErrClosed
	case <-ctx.Done():
		return Packet{}, ctx.Err()
	}
}

// LocalAddress implements Transport.
func (t *UDPTransport) LocalAddress() string {
	return t.conn.LocalAddr().String()
}

// Close implements Transport.
func (t *UDPTransport) Close() error {
	t.Halt()
	err := t.conn.Close()
	t.Wait()
	return err
}
