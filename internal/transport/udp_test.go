package transport

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestUDPTransportRoundTrip(t *testing.T) {
	server, err := ListenUDP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenUDP server: %v", err)
	}
	defer server.Close()

	client, err := ListenUDP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenUDP client: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// The client has no tag for the server yet (never received from it),
	// so it must dial a raw send first via its own socket's knowledge of
	// the server's address — simulated here by a raw send from the
	// client's socket, after which the server replies to the tag it learned.
	if err := sendRaw(client, server.LocalAddress(), []byte("hello")); err != nil {
		t.Fatalf("sendRaw: %v", err)
	}

	pkt, err := server.Recv(ctx)
	if err != nil {
		t.Fatalf("server Recv: %v", err)
	}
	if string(pkt.Payload) != "hello" {
		t.Errorf("payload = %q, want hello", pkt.Payload)
	}

	if err := server.Send(ctx, pkt.Tag, []byte("world")); err != nil {
		t.Fatalf("server Send: %v", err)
	}

	reply, err := client.Recv(ctx)
	if err != nil {
		t.Fatalf("client Recv: %v", err)
	}
	if string(reply.Payload) != "world" {
		t.Errorf("reply payload = %q, want world", reply.Payload)
	}
}

func TestSendToUnknownTagFails(t *testing.T) {
	tr, err := ListenUDP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer tr.Close()

	ctx := context.Background()
	if err := tr.Send(ctx, "never-seen", []byte("x")); err != ErrUnknownTag {
		t.Errorf("err = %v, want ErrUnknownTag", err)
	}
}

// sendRaw bypasses the tag-based Send so the test can bootstrap the
// client's knowledge of the server without already having a tag for it,
// mirroring how a real client dials a known server address on its first
// message.
func sendRaw(t *UDPTransport, addr string, payload []byte) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	_, err = t.conn.WriteToUDP(payload, udpAddr)
	return err
}
