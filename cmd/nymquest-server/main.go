// Command nymquest-server runs the NymQuest authoritative game server:
// it binds a transport, loads configuration and any persisted snapshot,
// publishes its address for discovery, and runs the event loop until
// interrupted (spec.md §4.6, §6).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nymquest/nymquest/internal/config"
	"github.com/nymquest/nymquest/internal/discovery"
	"github.com/nymquest/nymquest/internal/logging"
	"github.com/nymquest/nymquest/internal/server"
	"github.com/nymquest/nymquest/internal/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "nymquest-server:", err)
		os.Exit(1)
	}
}

func run() error {
	logger := logging.New("server")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	masterSecret, err := cfg.ResolveMasterSecret()
	if err != nil {
		return fmt.Errorf("resolve master secret: %w", err)
	}

	tr, err := transport.ListenUDP(cfg.ServerListenAddress)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	if cfg.ServerAddressFile != "" {
		if err := discovery.Publish(cfg.ServerAddressFile, tr.LocalAddress()); err != nil {
			logger.Warn("failed to publish discovery file", "err", err)
		} else {
			logger.Info("published discovery file", "path", cfg.ServerAddressFile, "address", tr.LocalAddress())
		}
	}

	srv := server.New(cfg, tr, masterSecret, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("listening", "address", tr.LocalAddress())
	return srv.Run(ctx)
}
