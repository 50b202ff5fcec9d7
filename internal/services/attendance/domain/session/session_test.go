package session

import (
	"testing"
	"time"
)

func TestIsActiveWindow(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s := Session{State: StateActive, StartedAt: start, Duration: 300 * time.Second}

	for _, offset := range []time.Duration{0, time.Second, 299 * time.Second, 299*time.Second + 999*time.Millisecond} {
		if !IsActive(s, start.Add(offset)) {
			t.Fatalf("expected active at +%s", offset)
		}
	}
	for _, offset := range []time.Duration{300 * time.Second, 301 * time.Second, time.Hour} {
		if IsActive(s, start.Add(offset)) {
			t.Fatalf("expected inactive at +%s", offset)
		}
	}
}

func TestIsActiveRequiresActiveState(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	for _, state := range []State{StatePending, StateExpired, StateClosed} {
		s := Session{State: state, StartedAt: start, Duration: time.Minute}
		if IsActive(s, start.Add(time.Second)) {
			t.Fatalf("state %q should not accept scans", state)
		}
	}
}

func TestObserved(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s := Session{State: StateActive, StartedAt: start, Duration: time.Minute}

	if got := s.Observed(start.Add(59 * time.Second)).State; got != StateActive {
		t.Fatalf("state before deadline = %q", got)
	}
	if got := s.Observed(start.Add(time.Minute)).State; got != StateExpired {
		t.Fatalf("state at deadline = %q", got)
	}
	if s.State != StateActive {
		t.Fatal("Observed must not mutate the receiver")
	}

	closed := Session{State: StateClosed, StartedAt: start, Duration: time.Minute}
	if got := closed.Observed(start.Add(time.Hour)).State; got != StateClosed {
		t.Fatalf("closed session observed as %q", got)
	}
}

func TestStateTerminal(t *testing.T) {
	t.Parallel()

	if StatePending.Terminal() || StateActive.Terminal() {
		t.Fatal("pending and active are not terminal")
	}
	if !StateExpired.Terminal() || !StateClosed.Terminal() {
		t.Fatal("expired and closed are terminal")
	}
}
