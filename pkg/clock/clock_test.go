package clock

import (
	"testing"
	"time"
)

func TestMockClockAdvance(t *testing.T) {
	start := time.Date(2025, 12, 31, 23, 59, 0, 0, time.UTC)
	c := NewMockClock(start)
	c.Advance(2 * time.Minute)
	if got := c.Now().Year(); got != 2026 {
		t.Fatalf("expected year rollover to 2026, got %d", got)
	}
	c.Set(start)
	if !c.Now().Equal(start) {
		t.Fatalf("expected Set to reset time")
	}
}

func TestRealClockIsUTC(t *testing.T) {
	if loc := NewRealClock().Now().Location(); loc != time.UTC {
		t.Fatalf("expected UTC, got %v", loc)
	}
}
