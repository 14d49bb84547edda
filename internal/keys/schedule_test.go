package keys

import (
	"testing"
	"time"
)

func TestEpochAtBeforeBaselineClampsToZero(t *testing.T) {
	baseline := time.Unix(1_000_000, 0)
	s := NewSchedule([]byte("secret"), baseline)
	if got := s.EpochAt(baseline.Add(-time.Hour)); got != 0 {
		t.Errorf("EpochAt before baseline = %d, want 0", got)
	}
}

func TestEpochAtAdvancesByRotationPeriod(t *testing.T) {
	baseline := time.Unix(0, 0)
	s := NewSchedule([]byte("secret"), baseline)

	if got := s.EpochAt(baseline); got != 0 {
		t.Errorf("EpochAt(baseline) = %d, want 0", got)
	}
	if got := s.EpochAt(baseline.Add(RotationPeriod)); got != 1 {
		t.Errorf("EpochAt(baseline+period) = %d, want 1", got)
	}
	if got := s.EpochAt(baseline.Add(2*RotationPeriod + time.Minute)); got != 2 {
		t.Errorf("EpochAt(baseline+2*period+1m) = %d, want 2", got)
	}
}

// TestTwoSchedulesSharingBaselineAgree guards the bug this session fixed:
// two independently constructed Schedules (standing in for a server and a
// client process) anchored at the same fixed baseline must derive
// identical epoch numbers and keys at the same wall-clock time, even
// though neither ever started at the same moment.
func TestTwoSchedulesSharingBaselineAgree(t *testing.T) {
	baseline := time.Unix(0, 0)
	secret := []byte("shared-master-secret")

	serverSide := NewSchedule(secret, baseline)
	clientSide := NewSchedule(secret, baseline)

	now := time.Now() // well past one rotation since the Unix-epoch baseline

	serverEpoch := serverSide.EpochAt(now)
	clientEpoch := clientSide.EpochAt(now)
	if serverEpoch != clientEpoch {
		t.Fatalf("epoch mismatch: server=%d client=%d", serverEpoch, clientEpoch)
	}

	serverKey, err := serverSide.VerifyingKey(serverEpoch)
	if err != nil {
		t.Fatalf("server VerifyingKey: %v", err)
	}
	clientKey, err := clientSide.VerifyingKey(clientEpoch)
	if err != nil {
		t.Fatalf("client VerifyingKey: %v", err)
	}
	if string(serverKey) != string(clientKey) {
		t.Errorf("derived keys differ between two schedules sharing a baseline and secret")
	}
}

func TestVerifyingKeyRejectsOutsideRetentionWindow(t *testing.T) {
	// Baseline far in the past means CurrentEpoch() (pinned to time.Now())
	// is a large number; epoch 0 is then long outside the retention window.
	s := NewSchedule([]byte("secret"), time.Unix(0, 0))

	if _, err := s.VerifyingKey(0); err != ErrUnknownEpoch {
		t.Errorf("VerifyingKey(0) err = %v, want ErrUnknownEpoch (epoch too old)", err)
	}

	current := s.CurrentEpoch()
	if _, err := s.VerifyingKey(current + 1); err != ErrUnknownEpoch {
		t.Errorf("VerifyingKey(current+1) err = %v, want ErrUnknownEpoch (epoch ahead of current)", err)
	}
	if _, err := s.VerifyingKey(current); err != nil {
		t.Errorf("VerifyingKey(current) err = %v, want nil", err)
	}
}
