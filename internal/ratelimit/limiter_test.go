package ratelimit

import (
	"testing"
	"time"
)

func TestAllowsUpToBurstCapacity(t *testing.T) {
	l := New(DefaultParams())
	now := time.Now()

	for i := int64(0); i < DefaultParams().BurstCapacity; i++ {
		if !l.Allow("tag-a", now) {
			t.Fatalf("message %d unexpectedly rate-limited", i)
		}
	}
	if l.Allow("tag-a", now) {
		t.Error("message beyond burst capacity was allowed")
	}
}

func TestRefillsOverTime(t *testing.T) {
	params := DefaultParams()
	l := New(params)
	now := time.Now()

	for i := int64(0); i < params.BurstCapacity; i++ {
		l.Allow("tag-b", now)
	}
	if l.Allow("tag-b", now) {
		t.Fatal("expected exhausted bucket to reject")
	}

	later := now.Add(time.Second)
	if !l.Allow("tag-b", later) {
		t.Error("expected bucket to have refilled after 1s")
	}
}

func TestBucketsAreIndependentPerTag(t *testing.T) {
	l := New(DefaultParams())
	now := time.Now()

	for i := int64(0); i < DefaultParams().BurstCapacity; i++ {
		l.Allow("busy-tag", now)
	}
	if !l.Allow("quiet-tag", now) {
		t.Error("a different tag's bucket should be unaffected")
	}
}

func TestGCRemovesIdleBuckets(t *testing.T) {
	params := DefaultParams()
	params.IdleGCAfter = time.Minute
	l := New(params)
	now := time.Now()

	l.Allow("idle-tag", now)
	if l.Len() != 1 {
		t.Fatalf("Len = %d, want 1", l.Len())
	}

	removed := l.GC(now.Add(2 * time.Minute))
	if removed != 1 {
		t.Errorf("GC removed = %d, want 1", removed)
	}
	if l.Len() != 0 {
		t.Errorf("Len after GC = %d, want 0", l.Len())
	}
}

func TestRemoveDropsBucketImmediately(t *testing.T) {
	l := New(DefaultParams())
	now := time.Now()
	l.Allow("session-tag", now)
	l.Remove("session-tag")
	if l.Len() != 0 {
		t.Errorf("Len after Remove = %d, want 0", l.Len())
	}
}
