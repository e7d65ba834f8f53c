package clock

import (
	"testing"
	"time"
)

// TestRealClock verifies RealClock tracks wall time.
func TestRealClock(t *testing.T) {
	before := time.Now()
	got := RealClock{}.Now()
	if got.Before(before) {
		t.Errorf("RealClock.Now() = %v, before %v", got, before)
	}
}

// TestMockAdvance verifies the mock clock only moves when told to.
func TestMockAdvance(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	m := NewMock(start)

	if !m.Now().Equal(start) {
		t.Fatalf("Now() = %v, want %v", m.Now(), start)
	}

	m.Advance(90 * time.Second)
	if want := start.Add(90 * time.Second); !m.Now().Equal(want) {
		t.Errorf("after Advance, Now() = %v, want %v", m.Now(), want)
	}

	m.Set(start)
	if !m.Now().Equal(start) {
		t.Errorf("after Set, Now() = %v, want %v", m.Now(), start)
	}
}
