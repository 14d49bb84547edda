// Package wire defines NymQuest's typed message union and its cbor framing.
// Every envelope payload (spec.md §3, §6) is one of these messages.
//
// Grounded on server/cborplugin/client.go's Request/Response types (each with
// its own Marshal/Unmarshal pair) and their tagged dispatch via cbor.TagSet.
package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Kind names a payload type, per spec.md §6's message catalog.
type Kind uint8

const (
	KindRegister Kind = iota + 1
	KindRegisterResponse
	KindMove
	KindAttack
	KindChat
	KindEmote
	KindHeartbeat
	KindHeartbeatResponse
	KindGameStateFull
	KindErrorMessage
	KindDisconnect
	KindServerShutdown
	KindPlayerMoved
	KindPlayerLeft
	KindAttackResolved
	KindPlayerDefeated
	KindPlayerLevelUp
	KindAck
)

func (k Kind) String() string {
	switch k {
	case KindRegister:
		return "Register"
	case KindRegisterResponse:
		return "RegisterResponse"
	case KindMove:
		return "Move"
	case KindAttack:
		return "Attack"
	case KindChat:
		return "Chat"
	case KindEmote:
		return "Emote"
	case KindHeartbeat:
		return "Heartbeat"
	case KindHeartbeatResponse:
		return "HeartbeatResponse"
	case KindGameStateFull:
		return "GameStateFull"
	case KindErrorMessage:
		return "ErrorMessage"
	case KindDisconnect:
		return "Disconnect"
	case KindServerShutdown:
		return "ServerShutdown"
	case KindPlayerMoved:
		return "PlayerMoved"
	case KindPlayerLeft:
		return "PlayerLeft"
	case KindAttackResolved:
		return "AttackResolved"
	case KindPlayerDefeated:
		return "PlayerDefeated"
	case KindPlayerLevelUp:
		return "PlayerLevelUp"
	case KindAck:
		return "Ack"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Message is implemented by every payload type.
type Message interface {
	Kind() Kind
}

// envelope is the on-the-wire cbor shape: a kind tag plus the raw encoded
// body, so that decoding is a two-step "read kind, then decode body as the
// matching Go type" dispatch, mirroring cborplugin's per-command Marshal.
type envelope struct {
	Kind Kind
	Body cbor.RawMessage
}

// Marshal serializes msg into its tagged cbor form.
func Marshal(msg Message) ([]byte, error) {
	body, err := cbor.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal body: %w", err)
	}
	return cbor.Marshal(envelope{Kind: msg.Kind(), Body: body})
}

// Unmarshal decodes a tagged cbor payload into its concrete Go type.
func Unmarshal(raw []byte) (Message, error) {
	var env envelope
	if err := cbor.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("wire: unmarshal envelope: %w", err)
	}
	factory, ok := factories[env.Kind]
	if !ok {
		return nil, fmt.Errorf("wire: unknown kind %v", env.Kind)
	}
	msg := factory()
	if err := cbor.Unmarshal(env.Body, msg); err != nil {
		return nil, fmt.Errorf("wire: unmarshal %v body: %w", env.Kind, err)
	}
	return msg, nil
}

var factories = map[Kind]func() Message{
	KindRegister:          func() Message { return new(Register) },
	KindRegisterResponse:  func() Message { return new(RegisterResponse) },
	KindMove:              func() Message { return new(Move) },
	KindAttack:            func() Message { return new(Attack) },
	KindChat:              func() Message { return new(Chat) },
	KindEmote:             func() Message { return new(Emote) },
	KindHeartbeat:         func() Message { return new(Heartbeat) },
	KindHeartbeatResponse: func() Message { return new(HeartbeatResponse) },
	KindGameStateFull:     func() Message { return new(GameStateFull) },
	KindErrorMessage:      func() Message { return new(ErrorMessage) },
	KindDisconnect:        func() Message { return new(Disconnect) },
	KindServerShutdown:    func() Message { return new(ServerShutdown) },
	KindPlayerMoved:       func() Message { return new(PlayerMoved) },
	KindPlayerLeft:        func() Message { return new(PlayerLeft) },
	KindAttackResolved:    func() Message { return new(AttackResolved) },
	KindPlayerDefeated:    func() Message { return new(PlayerDefeated) },
	KindPlayerLevelUp:     func() Message { return new(PlayerLevelUp) },
	KindAck:               func() Message { return new(Ack) },
}
