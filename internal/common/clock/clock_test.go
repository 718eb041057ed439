package clock

import (
	"testing"
	"time"
)

func TestMockClock_Advance(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	c.Advance(90 * time.Second)

	if got := c.Now(); !got.Equal(start.Add(90 * time.Second)) {
		t.Errorf("expected %v, got %v", start.Add(90*time.Second), got)
	}
	if got := c.Since(start); got != 90*time.Second {
		t.Errorf("expected 90s since start, got %v", got)
	}
}

func TestMockClock_SetTime(t *testing.T) {
	c := NewMockClock(time.Time{})
	target := time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC)

	c.SetTime(target)

	if !c.Now().Equal(target) {
		t.Errorf("expected %v, got %v", target, c.Now())
	}
}
