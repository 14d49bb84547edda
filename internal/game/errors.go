package game

import "errors"

// Game-logic errors, spec.md §4.7/§7. Rate-limiting lives outside this
// package (internal/ratelimit); these are the errors a game operation
// itself can produce.
var (
	ErrSessionConflict     = errors.New("game: session already has a live player")
	ErrNameTaken           = errors.New("game: name or display id already in use")
	ErrIncompatibleVersion = errors.New("game: client version range incompatible")
	ErrNoSuchTarget        = errors.New("game: no such target")
	ErrOnCooldown          = errors.New("game: attack on cooldown")
	ErrOutOfRange          = errors.New("game: target out of attack range")
	ErrBlocked             = errors.New("game: move blocked")
	ErrChatTooLong         = errors.New("game: chat message too long")
	ErrInvalidEmote        = errors.New("game: invalid emote kind")
	ErrUnknownSession      = errors.New("game: unknown transport tag")
)

// MaxChatLength is spec.md §4.7's chat length bound.
const MaxChatLength = 256
