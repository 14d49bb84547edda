// Command nymquest-client is a minimal line-oriented terminal client for
// NymQuest: it discovers the server's address, registers a player, and
// drives a read-eval-print loop over internal/client's Command parser.
// The full terminal UI is explicitly out of scope (spec.md §1); this is
// the stand-in producer SPEC_FULL.md §4.12 calls for.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nymquest/nymquest/internal/client"
	"github.com/nymquest/nymquest/internal/config"
	"github.com/nymquest/nymquest/internal/discovery"
	"github.com/nymquest/nymquest/internal/logging"
	"github.com/nymquest/nymquest/internal/transport"
)

// factionNames mirrors game.Faction's closed set and wire ordinal
// encoding; kept independent of the game package since a client has no
// business importing server-side authoritative state types.
var factionNames = []string{"Nyms", "Corporate", "Cipher", "Monks", "Independent"}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "nymquest-client:", err)
		os.Exit(1)
	}
}

func run() error {
	name := flag.String("name", "", "player name")
	factionName := flag.String("faction", "Nyms", "faction: Nyms, Corporate, Cipher, Monks, Independent")
	flag.Parse()

	if *name == "" {
		return fmt.Errorf("-name is required")
	}
	faction, ok := factionIndex(*factionName)
	if !ok {
		return fmt.Errorf("unknown faction %q (want one of %s)", *factionName, strings.Join(factionNames, ", "))
	}

	logger := logging.New("client")
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	masterSecret, err := cfg.ResolveMasterSecret()
	if err != nil {
		return fmt.Errorf("resolve master secret: %w", err)
	}

	serverAddr, err := discovery.Read(cfg.ServerAddressFile)
	if err != nil {
		return fmt.Errorf("discover server address: %w", err)
	}

	tr, serverTag, err := transport.DialUDP(serverAddr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", serverAddr, err)
	}
	defer tr.Close()

	c := client.New(tr, serverTag, masterSecret, cfg.EnableProcessingPacing, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resp, err := c.Register(ctx, *name, faction)
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	fmt.Printf("registered as %s (hp %d/%d, level %d)\n", resp.DisplayID, resp.HP, resp.HPMax, resp.Level)
	fmt.Println(client.HelpText)

	go printEvents(c)
	go c.Run(ctx)

	repl(ctx, c)
	return nil
}

func factionIndex(name string) (uint8, bool) {
	for i, n := range factionNames {
		if n == name {
			return uint8(i), true
		}
	}
	return 0, false
}

func printEvents(c *client.Client) {
	for msg := range c.Events {
		fmt.Println(client.FormatEvent(msg))
	}
}

func repl(ctx context.Context, c *client.Client) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		cmd, err := client.ParseCommand(line)
		if err != nil {
			fmt.Println("error:", err)
			continue
		}
		switch cmd.Kind {
		case client.CmdHelp:
			fmt.Println(client.HelpText)
			continue
		case client.CmdQuit:
			_ = c.Disconnect(ctx)
			return
		}
		msg, err := cmd.ToWire()
		if err != nil {
			fmt.Println("error:", err)
			continue
		}
		if err := c.Send(ctx, msg, time.Now()); err != nil {
			fmt.Println("error:", err)
		}
	}
}
