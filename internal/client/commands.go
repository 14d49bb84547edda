package client

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nymquest/nymquest/internal/wire"
)

// Command is one parsed line of user input, ready to hand to a Client
// method. The full terminal UI lives outside this module (spec.md §1);
// this is the minimal producer standing in for it.
type Command struct {
	Kind  CommandKind
	Move  wire.Direction
	Target string
	Text  string
	Emote wire.EmoteKind
}

type CommandKind uint8

const (
	CmdMove CommandKind = iota
	CmdAttack
	CmdChat
	CmdEmote
	CmdQuit
	CmdHelp
)

var directionWords = map[string]wire.Direction{
	"n": wire.DirNorth, "north": wire.DirNorth,
	"ne": wire.DirNorthEast, "northeast": wire.DirNorthEast,
	"e": wire.DirEast, "east": wire.DirEast,
	"se": wire.DirSouthEast, "southeast": wire.DirSouthEast,
	"s": wire.DirSouth, "south": wire.DirSouth,
	"sw": wire.DirSouthWest, "southwest": wire.DirSouthWest,
	"w": wire.DirWest, "west": wire.DirWest,
	"nw": wire.DirNorthWest, "northwest": wire.DirNorthWest,
}

var emoteWords = map[string]wire.EmoteKind{
	"wave":  wire.EmoteWave,
	"dance": wire.EmoteDance,
	"taunt": wire.EmoteTaunt,
	"bow":   wire.EmoteBow,
	"laugh": wire.EmoteLaugh,
}

// ParseCommand turns one line of raw input into a Command. Unrecognized
// or malformed input is reported as an error rather than silently
// dropped, so a caller driving a REPL can echo it back to the user.
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("empty command")
	}

	verb := strings.ToLower(fields[0])
	args := fields[1:]

	switch verb {
	case "move", "go", "walk":
		if len(args) != 1 {
			return Command{}, fmt.Errorf("usage: move <direction>")
		}
		dir, ok := directionWords[strings.ToLower(args[0])]
		if !ok {
			return Command{}, fmt.Errorf("unknown direction %q", args[0])
		}
		return Command{Kind: CmdMove, Move: dir}, nil

	case "attack", "hit":
		if len(args) != 1 {
			return Command{}, fmt.Errorf("usage: attack <display_id>")
		}
		return Command{Kind: CmdAttack, Target: args[0]}, nil

	case "say", "chat":
		if len(args) == 0 {
			return Command{}, fmt.Errorf("usage: say <message>")
		}
		return Command{Kind: CmdChat, Text: strings.Join(args, " ")}, nil

	case "emote":
		if len(args) != 1 {
			return Command{}, fmt.Errorf("usage: emote <wave|dance|taunt|bow|laugh>")
		}
		kind, ok := emoteWords[strings.ToLower(args[0])]
		if !ok {
			return Command{}, fmt.Errorf("unknown emote %q", args[0])
		}
		return Command{Kind: CmdEmote, Emote: kind}, nil

	case "quit", "exit", "disconnect":
		return Command{Kind: CmdQuit}, nil

	case "help", "?":
		return Command{Kind: CmdHelp}, nil

	default:
		return Command{}, fmt.Errorf("unrecognized command %q (try: move/attack/say/emote/quit/help)", verb)
	}
}

// HelpText is printed for the "help" command.
const HelpText = `commands:
  move <n|ne|e|se|s|sw|w|nw>   step one unit in a direction
  attack <display_id>          attack a visible player
  say <message>                 broadcast a chat line
  emote <wave|dance|taunt|bow|laugh>
  quit                          disconnect and exit
  help                          show this text`

// ToWire converts a parsed Command into the wire message Client.Send
// expects, for the commands that produce one (CmdQuit and CmdHelp do
// not reach the wire).
func (c Command) ToWire() (wire.Message, error) {
	switch c.Kind {
	case CmdMove:
		return &wire.Move{Direction: c.Move}, nil
	case CmdAttack:
		return &wire.Attack{TargetDisplayID: c.Target}, nil
	case CmdChat:
		return &wire.Chat{Text: c.Text}, nil
	case CmdEmote:
		return &wire.Emote{EmoteKind: c.Emote}, nil
	default:
		return nil, fmt.Errorf("command has no wire representation")
	}
}

// FormatEvent renders a server->client broadcast or reply as one
// human-readable line, for the minimal CLI to print.
func FormatEvent(msg wire.Message) string {
	switch m := msg.(type) {
	case *wire.PlayerMoved:
		return fmt.Sprintf("%s moved to (%.1f, %.1f)", m.DisplayID, m.Position.X, m.Position.Y)
	case *wire.PlayerLeft:
		return fmt.Sprintf("%s left", m.DisplayID)
	case *wire.AttackResolved:
		crit := ""
		if m.Crit {
			crit = " (critical!)"
		}
		return fmt.Sprintf("%s hit %s for %d%s, %s now at %d hp", m.AttackerDisplayID, m.TargetDisplayID, m.Damage, crit, m.TargetDisplayID, m.TargetHP)
	case *wire.PlayerDefeated:
		return fmt.Sprintf("%s was defeated and respawned at (%.1f, %.1f)", m.DisplayID, m.RespawnPosition.X, m.RespawnPosition.Y)
	case *wire.PlayerLevelUp:
		return fmt.Sprintf("%s reached level %d (%d max hp)", m.DisplayID, m.NewLevel, m.NewHPMax)
	case *wire.Chat:
		return fmt.Sprintf("%s: %s", m.From, m.Text)
	case *wire.Emote:
		return fmt.Sprintf("%s %s", m.From, emoteVerb(m.EmoteKind))
	case *wire.ErrorMessage:
		return fmt.Sprintf("error: %s (code %d)", m.Text, m.Code)
	case *wire.ServerShutdown:
		return fmt.Sprintf("server is shutting down in %ds", m.CountdownSecs)
	case *wire.GameStateFull:
		return fmt.Sprintf("%d players online", len(m.Players))
	default:
		return fmt.Sprintf("unhandled event kind %d", m.Kind())
	}
}

func emoteVerb(k wire.EmoteKind) string {
	for word, kind := range emoteWords {
		if kind == k {
			return word + "s"
		}
	}
	return "emotes(" + strconv.Itoa(int(k)) + ")"
}
