package pacing

import (
	"testing"
	"time"
)

func TestFirstSendHasNoGap(t *testing.T) {
	p := NewPacer(DefaultClientParams())
	if gap := p.Gap(Critical, time.Now()); gap != 0 {
		t.Errorf("first Gap = %v, want 0", gap)
	}
}

func TestGapShrinksAsTimePasses(t *testing.T) {
	p := NewPacer(DefaultClientParams())
	now := time.Now()
	p.Sent(now)

	immediate := p.Gap(Low, now)
	if immediate <= 0 {
		t.Fatal("expected a positive gap right after sending")
	}

	later := p.Gap(Low, now.Add(500*time.Millisecond))
	if later != 0 {
		t.Errorf("Gap after 500ms = %v, want 0 (base_interval is 100ms)", later)
	}
}

func TestCriticalPriorityHasNarrowerJitterThanLow(t *testing.T) {
	params := DefaultClientParams()
	now := time.Now()

	var maxCritical, maxLow time.Duration
	for i := 0; i < 200; i++ {
		pc := NewPacer(params)
		pc.Sent(now)
		if g := pc.Gap(Critical, now); g > maxCritical {
			maxCritical = g
		}
		pl := NewPacer(params)
		pl.Sent(now)
		if g := pl.Gap(Low, now); g > maxLow {
			maxLow = g
		}
	}
	if maxCritical >= maxLow {
		t.Errorf("maxCritical=%v should be well below maxLow=%v", maxCritical, maxLow)
	}
}

func TestServerPacerDelayWithinBounds(t *testing.T) {
	sp := NewServerPacer(DefaultServerParams())
	for i := 0; i < 50; i++ {
		d := sp.NextDelay()
		if d < sp.params.BaseInterval {
			t.Errorf("delay %v below base interval %v", d, sp.params.BaseInterval)
		}
		ceiling := sp.params.BaseInterval + time.Duration(float64(sp.params.BaseInterval)*sp.params.JitterPct)
		if d > ceiling {
			t.Errorf("delay %v exceeds ceiling %v", d, ceiling)
		}
	}
}
