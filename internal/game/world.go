package game

import (
	"fmt"
	"math"
	"time"

	"github.com/nymquest/nymquest/internal/xrand"
)

// World holds the static configuration in effect for the lifetime of a
// server process, spec.md §3.
type World struct {
	MinX, MaxX      float64
	MinY, MaxY      float64
	Step            float64
	CollisionRadius float64
	AttackRange     float64
	CritProb        float64
	BaseDamage      int
	AttackCooldown  time.Duration
}

// DefaultWorld matches spec.md §4.7 / §6's documented defaults.
func DefaultWorld() World {
	return World{
		MinX: 0, MaxX: 100,
		MinY: 0, MaxY: 100,
		Step:            14.0,
		CollisionRadius: 7.0,
		AttackRange:     28.0,
		CritProb:        0.15,
		BaseDamage:      10,
		AttackCooldown:  3 * time.Second,
	}
}

// Fingerprint is a stable identifier of this world's configuration, used
// to detect schema drift against a persisted snapshot (spec.md §4.9).
func (w World) Fingerprint() string {
	return fmt.Sprintf("%.2f:%.2f:%.2f:%.2f:%.2f:%.2f:%.2f:%.4f:%d",
		w.MinX, w.MaxX, w.MinY, w.MaxY, w.Step, w.CollisionRadius, w.AttackRange, w.CritProb, w.BaseDamage)
}

// InBounds reports whether p falls within the world's rectangle.
func (w World) InBounds(p Vec2) bool {
	return p.X >= w.MinX && p.X <= w.MaxX && p.Y >= w.MinY && p.Y <= w.MaxY
}

// Clamp moves p to the nearest point inside the world's rectangle.
func (w World) Clamp(p Vec2) Vec2 {
	return Vec2{
		X: clampFloat(p.X, w.MinX, w.MaxX),
		Y: clampFloat(p.Y, w.MinY, w.MaxY),
	}
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Distance returns the Euclidean distance between two positions.
func Distance(a, b Vec2) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// RandomFreePosition draws a uniformly random position inside bounds that
// is not within CollisionRadius of any position in occupied, retrying up
// to maxAttempts times before giving up and returning the last draw
// regardless (spec.md §4.7 doesn't bound registration by world capacity).
func (w World) RandomFreePosition(occupied []Vec2, maxAttempts int) Vec2 {
	r := xrand.NewMath()
	var candidate Vec2
	for attempt := 0; attempt < maxAttempts; attempt++ {
		candidate = Vec2{
			X: w.MinX + r.Float64()*(w.MaxX-w.MinX),
			Y: w.MinY + r.Float64()*(w.MaxY-w.MinY),
		}
		if !w.collidesWithAny(candidate, occupied) {
			return candidate
		}
	}
	return candidate
}

func (w World) collidesWithAny(p Vec2, occupied []Vec2) bool {
	for _, o := range occupied {
		if Distance(p, o) < w.CollisionRadius {
			return true
		}
	}
	return false
}

// directionUnits maps each 8-way Direction to its unit vector, spec.md
// §4.7. Diagonals use 1/sqrt(2) so diagonal step length matches
// cardinal step length.
var directionUnits = map[Direction]Vec2{
	DirectionUp:        {X: 0, Y: 1},
	DirectionDown:      {X: 0, Y: -1},
	DirectionLeft:      {X: -1, Y: 0},
	DirectionRight:     {X: 1, Y: 0},
	DirectionUpLeft:    {X: -invSqrt2, Y: invSqrt2},
	DirectionUpRight:   {X: invSqrt2, Y: invSqrt2},
	DirectionDownLeft:  {X: -invSqrt2, Y: -invSqrt2},
	DirectionDownRight: {X: invSqrt2, Y: -invSqrt2},
}

const invSqrt2 = 0.7071067811865476

// StepFrom returns the candidate position after moving one step in dir from
// from.
func (w World) StepFrom(from Vec2, dir Direction) Vec2 {
	u := directionUnits[dir]
	return Vec2{X: from.X + u.X*w.Step, Y: from.Y + u.Y*w.Step}
}
