package game

import (
	"fmt"

	"github.com/nymquest/nymquest/internal/xrand"
)

// adjectives and nouns are combined with a 3-digit suffix to produce
// display IDs like "Shadow042", spec.md §3.
var adjectives = []string{
	"Shadow", "Crimson", "Silent", "Rogue", "Arcane", "Hidden", "Swift",
	"Obsidian", "Phantom", "Feral", "Glacial", "Ember", "Veiled", "Lunar",
	"Static", "Wired", "Hollow", "Iron", "Cipher", "Drift",
}

var nouns = []string{
	"Wolf", "Raven", "Ghost", "Nomad", "Hawk", "Viper", "Specter", "Fox",
	"Drone", "Echo", "Wraith", "Falcon", "Badger", "Lynx", "Crow",
	"Serpent", "Owl", "Jackal", "Mantis", "Hare",
}

// GenerateDisplayID draws a random "AdjectiveNoun###" candidate. Callers
// retry on collision against the set of live display IDs, per spec.md
// §4.7 ("retry up to N times on collision").
func GenerateDisplayID() string {
	r := xrand.NewMath()
	adj := adjectives[r.Intn(len(adjectives))]
	noun := nouns[r.Intn(len(nouns))]
	num := r.Intn(1000)
	return fmt.Sprintf("%s%s%03d", adj, noun, num)
}

// MaxDisplayIDAttempts bounds the retry loop in Register before giving up.
const MaxDisplayIDAttempts = 25
