// Package envelope implements NymQuest's authenticated, versioned,
// size-normalized wire frame (spec.md §3 "Envelope", §4.1, §6).
//
// Grounded on stream/stream.go's Frame type (typed, sequence+payload framed
// unit) and server/cborplugin/client.go's per-type Marshal/Unmarshal
// methods; the MAC/versioning/expiration machinery has no single teacher
// analog and is built directly from spec.md's contract.
package envelope

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/nymquest/nymquest/internal/wire"
)

// CurrentVersion and MinSupportedVersion bound the protocol versions this
// build of NymQuest accepts (spec.md §4.1).
const (
	CurrentVersion      uint16 = 1
	MinSupportedVersion uint16 = 1
)

const macSize = 32

var (
	ErrMalformedFrame        = errors.New("envelope: malformed frame")
	ErrUnknownVersion        = errors.New("envelope: unknown protocol version")
	ErrUnknownKeyEpoch       = errors.New("envelope: unknown key epoch")
	ErrMacMismatch           = errors.New("envelope: mac mismatch")
	ErrExpired               = errors.New("envelope: expired")
	ErrOversizeBeforePadding = errors.New("envelope: oversize before padding")
)

// TTL per payload category, spec.md §4.1.
const (
	ttlCritical = 10 * time.Second
	ttlGameplay = 30 * time.Second
	ttlSocial   = 60 * time.Second
)

func ttlFor(k wire.Kind) time.Duration {
	switch k {
	case wire.KindDisconnect, wire.KindAck, wire.KindServerShutdown,
		wire.KindErrorMessage, wire.KindRegister, wire.KindRegisterResponse:
		return ttlCritical
	case wire.KindChat, wire.KindEmote:
		return ttlSocial
	default:
		return ttlGameplay
	}
}

// Decoded is the result of a successful Decode.
type Decoded struct {
	Message     wire.Message
	Sequence    uint64
	TimestampMs int64
	KeyEpoch    uint32
	Version     uint16
}

// KeyLookup resolves a key_epoch to the MAC key that should verify it.
// internal/keys.Schedule satisfies this.
type KeyLookup interface {
	VerifyingKey(epoch uint32) ([]byte, error)
}

// Codec encodes and decodes envelopes, maintaining the padding strategy
// rotation state across calls (spec.md §4.1).
type Codec struct {
	pad *padder
}

// NewCodec returns a ready-to-use Codec.
func NewCodec() *Codec {
	return &Codec{pad: newPadder()}
}

// Encode serializes msg into a fully framed, MAC'd, padded envelope signed
// for key_epoch with key. version is the session's negotiated version.
func (c *Codec) Encode(msg wire.Message, seq uint64, version uint16, key []byte, epoch uint32, now time.Time) ([]byte, error) {
	payload, err := wire.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("envelope: encode payload: %w", err)
	}
	if len(payload) > MaxPayloadSize {
		return nil, ErrOversizeBeforePadding
	}

	target, err := c.pad.targetSize(len(payload))
	if err != nil {
		return nil, err
	}
	padding, err := randomPadding(target - len(payload))
	if err != nil {
		return nil, fmt.Errorf("envelope: generate padding: %w", err)
	}

	header := make([]byte, 2+8+8+4+4)
	binary.BigEndian.PutUint16(header[0:2], version)
	binary.BigEndian.PutUint64(header[2:10], seq)
	binary.BigEndian.PutUint64(header[10:18], uint64(now.UnixMilli()))
	binary.BigEndian.PutUint32(header[18:22], epoch)
	binary.BigEndian.PutUint32(header[22:26], uint32(len(payload)))

	paddingLenField := make([]byte, 4)
	binary.BigEndian.PutUint32(paddingLenField, uint32(len(padding)))

	mac := computeMAC(key, header, payload, paddingLenField)

	out := make([]byte, 0, len(header)+len(payload)+len(paddingLenField)+len(padding)+macSize)
	out = append(out, header...)
	out = append(out, payload...)
	out = append(out, paddingLenField...)
	out = append(out, padding...)
	out = append(out, mac...)

	c.pad.onAccepted()
	return out, nil
}

// Decode parses and authenticates raw, looking up the MAC key for the
// frame's claimed key_epoch via lookup, and rejecting frames whose
// timestamp has exceeded the payload-type TTL relative to now.
func (c *Codec) Decode(raw []byte, lookup KeyLookup, now time.Time) (*Decoded, error) {
	const headerLen = 2 + 8 + 8 + 4 + 4
	if len(raw) < headerLen+4+macSize {
		return nil, ErrMalformedFrame
	}

	version := binary.BigEndian.Uint16(raw[0:2])
	seq := binary.BigEndian.Uint64(raw[2:10])
	tsMs := binary.BigEndian.Uint64(raw[10:18])
	epoch := binary.BigEndian.Uint32(raw[18:22])
	payloadLen := binary.BigEndian.Uint32(raw[22:26])

	if version < MinSupportedVersion || version > CurrentVersion {
		return nil, ErrUnknownVersion
	}

	offset := headerLen
	if uint64(offset)+uint64(payloadLen)+4+macSize > uint64(len(raw)) {
		return nil, ErrMalformedFrame
	}
	payload := raw[offset : offset+int(payloadLen)]
	offset += int(payloadLen)

	paddingLenField := raw[offset : offset+4]
	paddingLen := binary.BigEndian.Uint32(paddingLenField)
	offset += 4
	if uint64(offset)+uint64(paddingLen)+macSize != uint64(len(raw)) {
		return nil, ErrMalformedFrame
	}
	offset += int(paddingLen)

	mac := raw[offset : offset+macSize]

	key, err := lookup.VerifyingKey(epoch)
	if err != nil {
		return nil, ErrUnknownKeyEpoch
	}

	header := raw[0:headerLen]
	expectedMAC := computeMAC(key, header, payload, paddingLenField)
	if !hmac.Equal(mac, expectedMAC) {
		return nil, ErrMacMismatch
	}

	msg, err := wire.Unmarshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	age := now.UnixMilli() - int64(tsMs)
	if age < 0 {
		age = -age
	}
	if time.Duration(age)*time.Millisecond > ttlFor(msg.Kind()) {
		return nil, ErrExpired
	}

	c.pad.onAccepted()
	return &Decoded{
		Message:     msg,
		Sequence:    seq,
		TimestampMs: int64(tsMs),
		KeyEpoch:    epoch,
		Version:     version,
	}, nil
}

// computeMAC computes HMAC-SHA256 over
// version||seq||timestamp||key_epoch||payload_len||payload||padding_len,
// per spec.md §3.
func computeMAC(key, header, payload, paddingLenField []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(header)
	mac.Write(payload)
	mac.Write(paddingLenField)
	return mac.Sum(nil)
}

// NegotiateVersion resolves the session's wire version from the client's
// advertised (min, current) range and this server's own range, per spec.md
// §4.1: "the session negotiates min(client.current, server.current)".
func NegotiateVersion(clientMin, clientCurrent uint16) (uint16, error) {
	if clientCurrent < MinSupportedVersion || clientMin > CurrentVersion {
		return 0, ErrUnknownVersion
	}
	negotiated := clientCurrent
	if CurrentVersion < negotiated {
		negotiated = CurrentVersion
	}
	if negotiated < MinSupportedVersion || negotiated < clientMin {
		return 0, ErrUnknownVersion
	}
	return negotiated, nil
}
