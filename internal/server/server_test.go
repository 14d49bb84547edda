package server_test

import (
	"context"
	"testing"
	"time"

	"github.com/nymquest/nymquest/internal/client"
	"github.com/nymquest/nymquest/internal/config"
	"github.com/nymquest/nymquest/internal/logging"
	"github.com/nymquest/nymquest/internal/server"
	"github.com/nymquest/nymquest/internal/transport"
	"github.com/nymquest/nymquest/internal/wire"
)

const testSecret = "integration-test-master-secret"

func startTestServer(t *testing.T) (addr string, cancel context.CancelFunc) {
	t.Helper()
	cfg := config.Default()
	cfg.DisablePersistence = true
	cfg.ServerAddressFile = ""
	cfg.HeartbeatIntervalSeconds = 3600 // quiet during the test
	cfg.HeartbeatTimeoutSeconds = 3600
	cfg.EnableProcessingPacing = false

	tr, err := transport.ListenUDP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}

	srv := server.New(cfg, tr, []byte(testSecret), logging.NewLevel("test-server", 100))

	ctx, cancel := context.WithCancel(context.Background())
	go srv.Run(ctx)

	t.Cleanup(cancel)
	return tr.LocalAddress(), cancel
}

func dialTestClient(t *testing.T, serverAddr string) *client.Client {
	t.Helper()
	tr, tag, err := transport.DialUDP(serverAddr)
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	return client.New(tr, tag, []byte(testSecret), false, logging.NewLevel("test-client", 100))
}

// TestRegisterAndMoveBroadcastsToOtherSession covers scenario S1: two
// players register, one moves, and the other observes the broadcast.
func TestRegisterAndMoveBroadcastsToOtherSession(t *testing.T) {
	addr, _ := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := dialTestClient(t, addr)
	aliceResp, err := alice.Register(ctx, "Alice", 0)
	if err != nil {
		t.Fatalf("Alice Register: %v", err)
	}

	bob := dialTestClient(t, addr)
	if _, err := bob.Register(ctx, "Bob", 1); err != nil {
		t.Fatalf("Bob Register: %v", err)
	}

	go alice.Run(ctx)
	go bob.Run(ctx)

	if err := alice.Send(ctx, &wire.Move{Direction: wire.DirEast}, time.Now()); err != nil {
		t.Fatalf("Alice Send Move: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case msg, ok := <-bob.Events:
			if !ok {
				t.Fatal("Bob's event stream closed before observing the move")
			}
			if moved, ok := msg.(*wire.PlayerMoved); ok && moved.DisplayID == aliceResp.DisplayID {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for Bob to observe Alice's move")
		}
	}
}

// TestServerAppliesEachDistinctMoveExactlyOnce is an end-to-end
// complement to internal/envelope and internal/replay's own replay-window
// unit tests (which cover the duplicate-sequence-number rejection path
// directly): across the full client/server stack, two distinct moves in
// a row each produce exactly one broadcast, with no duplication or loss.
func TestServerAppliesEachDistinctMoveExactlyOnce(t *testing.T) {
	addr, _ := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := dialTestClient(t, addr)
	if _, err := alice.Register(ctx, "Alice", 0); err != nil {
		t.Fatalf("Register: %v", err)
	}
	go alice.Run(ctx)

	if err := alice.Send(ctx, &wire.Move{Direction: wire.DirNorth}, time.Now()); err != nil {
		t.Fatalf("Send first move: %v", err)
	}
	if err := alice.Send(ctx, &wire.Move{Direction: wire.DirEast}, time.Now()); err != nil {
		t.Fatalf("Send second move: %v", err)
	}

	var positions []wire.Vec2
	deadline := time.After(3 * time.Second)
	for len(positions) < 2 {
		select {
		case msg, ok := <-alice.Events:
			if !ok {
				t.Fatal("event stream closed before observing both moves")
			}
			if moved, isMoved := msg.(*wire.PlayerMoved); isMoved {
				positions = append(positions, moved.Position)
			}
		case <-deadline:
			t.Fatalf("timed out after observing %d of 2 expected moves", len(positions))
		}
	}
	if positions[0] == positions[1] {
		t.Errorf("both PlayerMoved broadcasts carry position %+v, want one broadcast per distinct move", positions[0])
	}
}

// TestGracefulShutdownNotifiesClientsAndExits covers scenario S6: the
// server announces ServerShutdown and Run returns once ctx is canceled.
func TestGracefulShutdownNotifiesClientsAndExits(t *testing.T) {
	cfg := config.Default()
	cfg.DisablePersistence = true
	cfg.ServerAddressFile = ""
	cfg.HeartbeatIntervalSeconds = 3600
	cfg.HeartbeatTimeoutSeconds = 3600

	tr, err := transport.ListenUDP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	srv := server.New(cfg, tr, []byte(testSecret), logging.NewLevel("test-server", 100))

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- srv.Run(ctx) }()

	alice := dialTestClient(t, tr.LocalAddress())
	regCtx, regCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer regCancel()
	if _, err := alice.Register(regCtx, "Alice", 0); err != nil {
		t.Fatalf("Register: %v", err)
	}

	runCtx, runCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer runCancel()
	go alice.Run(runCtx)

	cancel()

	sawShutdown := false
	for !sawShutdown {
		select {
		case msg, ok := <-alice.Events:
			if !ok {
				t.Fatal("event stream closed before ServerShutdown arrived")
			}
			_, sawShutdown = msg.(*wire.ServerShutdown)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for ServerShutdown")
		}
	}

	select {
	case <-runDone:
	case <-time.After(10 * time.Second):
		t.Fatal("server did not exit after ctx cancellation within the shutdown countdown")
	}
}
