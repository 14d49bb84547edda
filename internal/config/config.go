// Package config loads NymQuest's frozen configuration record from the
// process environment (spec.md §6). Parsing happens once at startup;
// nothing downstream touches os.Getenv again, matching spec.md §9's
// "global mutable state avoided" design note.
//
// Built on os.Getenv/strconv directly rather than a dotenv-file parser
// (such as hashicorp/go-envparse, seen in the pack's R2Northstar-Atlas
// go.mod) because NymQuest's contract is reading variables the process
// environment already has, not parsing a .env file — a dotenv parser
// solves a different problem. Justified stdlib use.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the frozen record passed into the server or client event
// loop at construction time.
type Config struct {
	MessageRateLimit float64
	MessageBurstSize int

	EnableProcessingPacing  bool
	ProcessingIntervalMs    int
	ProcessingJitterPercent int

	ReplayWindowSize         int
	ReplayAdaptive           bool
	ReplayMinWindow          int
	ReplayMaxWindow          int
	ReplayAdjustmentCooldown time.Duration

	HeartbeatIntervalSeconds int
	HeartbeatTimeoutSeconds  int

	StateDirectory     string
	StateFilename      string
	DisablePersistence bool

	MovementSpeed         float64
	PlayerCollisionRadius float64
	WorldMinX, WorldMaxX  float64
	WorldMinY, WorldMaxY  float64

	ServerAddressFile string
	ServerListenAddress string

	MACFailureThreshold     int
	MACFailureWindowSeconds int

	// MasterSecretHex and MasterSecretFile locate the MAC key schedule's
	// seed (spec.md §4.2: "operator-provisioned, out of scope"). Exactly
	// one should be set; MasterSecretHex wins if both are.
	MasterSecretHex  string
	MasterSecretFile string
}

// Default returns spec.md §6's documented defaults, resolving Open
// Question (a) by making the MAC-failure suspect threshold a first-class,
// separately documented configuration knob (see SPEC_FULL.md §7/§9)
// instead of an undocumented constant.
func Default() Config {
	return Config{
		MessageRateLimit: 10.0,
		MessageBurstSize: 20,

		EnableProcessingPacing:  false,
		ProcessingIntervalMs:    100,
		ProcessingJitterPercent: 25,

		ReplayWindowSize:         64,
		ReplayAdaptive:           true,
		ReplayMinWindow:          32,
		ReplayMaxWindow:          96,
		ReplayAdjustmentCooldown: 60 * time.Second,

		HeartbeatIntervalSeconds: 30,
		HeartbeatTimeoutSeconds:  90,

		StateDirectory:     defaultStateDirectory(),
		StateFilename:      "game_state.json",
		DisablePersistence: false,

		MovementSpeed:         14.0,
		PlayerCollisionRadius: 7.0,
		WorldMinX:             0, WorldMaxX: 100,
		WorldMinY: 0, WorldMaxY: 100,

		ServerAddressFile:   defaultServerAddressFile(),
		ServerListenAddress: ":9321",

		MACFailureThreshold:     10,
		MACFailureWindowSeconds: 60,

		MasterSecretHex:  "",
		MasterSecretFile: "",
	}
}

func defaultStateDirectory() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return xdg + "/nymquest/server"
	}
	if home := os.Getenv("HOME"); home != "" {
		return home + "/.local/share/nymquest/server"
	}
	return "./nymquest-state"
}

func defaultServerAddressFile() string {
	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
		return xdg + "/nymquest-server.addr"
	}
	if home := os.Getenv("HOME"); home != "" {
		return home + "/.local/share/nymquest/server.addr"
	}
	return "./nymquest-server.addr"
}

// Load builds a Config from Default() overridden by any recognized
// NYMQUEST_* environment variables set in the process environment.
func Load() (Config, error) {
	c := Default()

	var err error
	if c.MessageRateLimit, err = getFloat("NYMQUEST_MESSAGE_RATE_LIMIT", c.MessageRateLimit); err != nil {
		return c, err
	}
	if c.MessageBurstSize, err = getInt("NYMQUEST_MESSAGE_BURST_SIZE", c.MessageBurstSize); err != nil {
		return c, err
	}
	if c.EnableProcessingPacing, err = getBool("NYMQUEST_ENABLE_MESSAGE_PROCESSING_PACING", c.EnableProcessingPacing); err != nil {
		return c, err
	}
	if c.ProcessingIntervalMs, err = getIntRange("NYMQUEST_MESSAGE_PROCESSING_INTERVAL_MS", c.ProcessingIntervalMs, 1, 10000); err != nil {
		return c, err
	}
	if c.ProcessingJitterPercent, err = getIntRange("NYMQUEST_MESSAGE_PROCESSING_JITTER_PERCENT", c.ProcessingJitterPercent, 0, 100); err != nil {
		return c, err
	}
	if c.ReplayWindowSize, err = getIntRange("NYMQUEST_REPLAY_PROTECTION_WINDOW_SIZE", c.ReplayWindowSize, 16, 128); err != nil {
		return c, err
	}
	if c.ReplayAdaptive, err = getBool("NYMQUEST_REPLAY_PROTECTION_ADAPTIVE", c.ReplayAdaptive); err != nil {
		return c, err
	}
	if c.ReplayMinWindow, err = getInt("NYMQUEST_REPLAY_PROTECTION_MIN_WINDOW", c.ReplayMinWindow); err != nil {
		return c, err
	}
	if c.ReplayMaxWindow, err = getInt("NYMQUEST_REPLAY_PROTECTION_MAX_WINDOW", c.ReplayMaxWindow); err != nil {
		return c, err
	}
	cooldownSec, err := getInt("NYMQUEST_REPLAY_PROTECTION_ADJUSTMENT_COOLDOWN", int(c.ReplayAdjustmentCooldown/time.Second))
	if err != nil {
		return c, err
	}
	c.ReplayAdjustmentCooldown = time.Duration(cooldownSec) * time.Second
	if c.HeartbeatIntervalSeconds, err = getInt("NYMQUEST_HEARTBEAT_INTERVAL_SECONDS", c.HeartbeatIntervalSeconds); err != nil {
		return c, err
	}
	if c.HeartbeatTimeoutSeconds, err = getInt("NYMQUEST_HEARTBEAT_TIMEOUT_SECONDS", c.HeartbeatTimeoutSeconds); err != nil {
		return c, err
	}
	c.StateDirectory = getString("NYMQUEST_STATE_DIRECTORY", c.StateDirectory)
	c.StateFilename = getString("NYMQUEST_STATE_FILENAME", c.StateFilename)
	if c.DisablePersistence, err = getBool("NYMQUEST_DISABLE_PERSISTENCE", c.DisablePersistence); err != nil {
		return c, err
	}
	if c.MovementSpeed, err = getFloat("NYMQUEST_MOVEMENT_SPEED", c.MovementSpeed); err != nil {
		return c, err
	}
	if c.PlayerCollisionRadius, err = getFloat("NYMQUEST_PLAYER_COLLISION_RADIUS", c.PlayerCollisionRadius); err != nil {
		return c, err
	}
	if c.WorldMinX, err = getFloat("NYMQUEST_WORLD_MIN_X", c.WorldMinX); err != nil {
		return c, err
	}
	if c.WorldMaxX, err = getFloat("NYMQUEST_WORLD_MAX_X", c.WorldMaxX); err != nil {
		return c, err
	}
	if c.WorldMinY, err = getFloat("NYMQUEST_WORLD_MIN_Y", c.WorldMinY); err != nil {
		return c, err
	}
	if c.WorldMaxY, err = getFloat("NYMQUEST_WORLD_MAX_Y", c.WorldMaxY); err != nil {
		return c, err
	}
	c.ServerAddressFile = getString("NYMQUEST_SERVER_ADDRESS_FILE", c.ServerAddressFile)
	c.ServerListenAddress = getString("NYMQUEST_SERVER_LISTEN_ADDRESS", c.ServerListenAddress)

	if c.MACFailureThreshold, err = getInt("NYMQUEST_MAC_FAILURE_THRESHOLD", c.MACFailureThreshold); err != nil {
		return c, err
	}
	if c.MACFailureWindowSeconds, err = getInt("NYMQUEST_MAC_FAILURE_WINDOW_SECONDS", c.MACFailureWindowSeconds); err != nil {
		return c, err
	}

	c.MasterSecretHex = getString("NYMQUEST_MASTER_SECRET", c.MasterSecretHex)
	c.MasterSecretFile = getString("NYMQUEST_MASTER_SECRET_FILE", c.MasterSecretFile)

	return c, nil
}

// ResolveMasterSecret reads the MAC key schedule seed from whichever of
// MasterSecretHex/MasterSecretFile is set, per spec.md §4.2. If neither is
// set it returns ErrNoMasterSecret.
func (c Config) ResolveMasterSecret() ([]byte, error) {
	if c.MasterSecretHex != "" {
		secret, err := hex.DecodeString(c.MasterSecretHex)
		if err != nil {
			return nil, fmt.Errorf("config: NYMQUEST_MASTER_SECRET: %w", err)
		}
		return secret, nil
	}
	if c.MasterSecretFile != "" {
		raw, err := os.ReadFile(c.MasterSecretFile)
		if err != nil {
			return nil, fmt.Errorf("config: NYMQUEST_MASTER_SECRET_FILE: %w", err)
		}
		secret, err := hex.DecodeString(strings.TrimSpace(string(raw)))
		if err != nil {
			return nil, fmt.Errorf("config: NYMQUEST_MASTER_SECRET_FILE contents: %w", err)
		}
		return secret, nil
	}
	return nil, ErrNoMasterSecret
}

// ErrNoMasterSecret is returned by ResolveMasterSecret when neither
// NYMQUEST_MASTER_SECRET nor NYMQUEST_MASTER_SECRET_FILE is set.
var ErrNoMasterSecret = errors.New("config: no master secret configured (set NYMQUEST_MASTER_SECRET or NYMQUEST_MASTER_SECRET_FILE)")

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return f, nil
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func getIntRange(key string, fallback, min, max int) (int, error) {
	n, err := getInt(key, fallback)
	if err != nil {
		return 0, err
	}
	if n < min || n > max {
		return 0, fmt.Errorf("config: %s: %d outside range [%d,%d]", key, n, min, max)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}
