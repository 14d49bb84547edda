package client

import (
	"testing"

	"github.com/nymquest/nymquest/internal/wire"
)

func TestParseCommandMove(t *testing.T) {
	cmd, err := ParseCommand("move ne")
	if err != nil {
		t.Fatalf("ParseCommand: %v", err)
	}
	if cmd.Kind != CmdMove || cmd.Move != wire.DirNorthEast {
		t.Errorf("cmd = %+v, want CmdMove/DirNorthEast", cmd)
	}
	msg, err := cmd.ToWire()
	if err != nil {
		t.Fatalf("ToWire: %v", err)
	}
	move, ok := msg.(*wire.Move)
	if !ok || move.Direction != wire.DirNorthEast {
		t.Errorf("ToWire() = %+v, want *wire.Move{DirNorthEast}", msg)
	}
}

func TestParseCommandRejectsUnknownDirection(t *testing.T) {
	if _, err := ParseCommand("move upward"); err == nil {
		t.Error("expected error for unknown direction")
	}
}

func TestParseCommandAttack(t *testing.T) {
	cmd, err := ParseCommand("attack XQ99")
	if err != nil {
		t.Fatalf("ParseCommand: %v", err)
	}
	if cmd.Kind != CmdAttack || cmd.Target != "XQ99" {
		t.Errorf("cmd = %+v, want CmdAttack/XQ99", cmd)
	}
}

func TestParseCommandChatJoinsRemainingWords(t *testing.T) {
	cmd, err := ParseCommand("say hello there friend")
	if err != nil {
		t.Fatalf("ParseCommand: %v", err)
	}
	if cmd.Text != "hello there friend" {
		t.Errorf("Text = %q, want %q", cmd.Text, "hello there friend")
	}
}

func TestParseCommandEmote(t *testing.T) {
	cmd, err := ParseCommand("emote Wave")
	if err != nil {
		t.Fatalf("ParseCommand: %v", err)
	}
	if cmd.Emote != wire.EmoteWave {
		t.Errorf("Emote = %v, want EmoteWave", cmd.Emote)
	}
}

func TestParseCommandQuitAndHelpHaveNoWireForm(t *testing.T) {
	for _, line := range []string{"quit", "help"} {
		cmd, err := ParseCommand(line)
		if err != nil {
			t.Fatalf("ParseCommand(%q): %v", line, err)
		}
		if _, err := cmd.ToWire(); err == nil {
			t.Errorf("ToWire() for %q should error, has no wire representation", line)
		}
	}
}

func TestParseCommandRejectsEmptyAndUnknown(t *testing.T) {
	if _, err := ParseCommand(""); err == nil {
		t.Error("expected error for empty input")
	}
	if _, err := ParseCommand("fly north"); err == nil {
		t.Error("expected error for unrecognized verb")
	}
}

func TestFormatEventRendersKnownKinds(t *testing.T) {
	cases := []wire.Message{
		&wire.PlayerMoved{DisplayID: "A1", Position: wire.Vec2{X: 1, Y: 2}},
		&wire.AttackResolved{AttackerDisplayID: "A1", TargetDisplayID: "B2", Damage: 5, TargetHP: 10},
		&wire.Chat{From: "A1", Text: "hi"},
		&wire.ErrorMessage{Code: wire.ErrCodeOnCooldown, Text: "wait"},
	}
	for _, msg := range cases {
		if out := FormatEvent(msg); out == "" {
			t.Errorf("FormatEvent(%T) returned empty string", msg)
		}
	}
}
