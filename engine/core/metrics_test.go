package core

import (
	"testing"
	"time"
)

func TestStatsString(t *testing.T) {
	StatsReset()
	StatsBegin(12, 4096)
	StatsRecordBake(1.5)

	want := "CPU time: 1.500ms\nSurface count: 12\nPixel count: 4 K"
	if got := StatsString(); got != want {
		t.Errorf("StatsString() = %q, want %q", got, want)
	}
}

func TestStatsAverage(t *testing.T) {
	StatsReset()
	for i := 0; i < int(AVG_COUNT); i++ {
		StatsRecordBake(2)
	}
	if got := StatsAverageMS(); got != 2 {
		t.Errorf("average = %f, want 2", got)
	}
}

func TestClockAccumulates(t *testing.T) {
	c := NewClock()
	c.ResetAndClock()
	time.Sleep(2 * time.Millisecond)
	c.Unclock()
	first := c.Accumulated()
	if first <= 0 {
		t.Fatalf("accumulated = %v, want > 0", first)
	}

	c.Clock()
	time.Sleep(2 * time.Millisecond)
	c.Unclock()
	if c.Accumulated() <= first {
		t.Errorf("second span was not added: %v <= %v", c.Accumulated(), first)
	}

	// Unclock without a running span is ignored.
	total := c.Accumulated()
	c.Unclock()
	if c.Accumulated() != total {
		t.Errorf("unclock of a stopped clock changed the total")
	}

	c.ResetAndClock()
	c.Unclock()
	if c.Accumulated() >= total {
		t.Errorf("ResetAndClock did not clear the total")
	}
}
