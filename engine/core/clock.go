package core

import "time"

type Clock struct {
	startTime time.Time
	elapsed   time.Duration
	// Accumulated by Unclock since the last ResetAndClock.
	accumulated time.Duration
}

func NewClock() *Clock {
	return &Clock{}
}

// Updates the provided clock. Should be called just before checking elapsed time.
// Has no effect on non-started clocks.
func (c *Clock) Update() {
	if !c.startTime.IsZero() {
		c.elapsed = time.Since(c.startTime)
	}
}

// Starts the provided clock. Resets elapsed time.
func (c *Clock) Start() {
	c.startTime = time.Now()
	c.elapsed = 0
}

// Stops the provided clock. Does not reset elapsed time.
func (c *Clock) Stop() {
	c.startTime = time.Time{}
}

func (c *Clock) Elapsed() time.Duration {
	return c.elapsed
}

// ResetAndClock clears the accumulated time and starts measuring a new span.
func (c *Clock) ResetAndClock() {
	c.accumulated = 0
	c.Start()
}

// Clock starts measuring a span without clearing what was accumulated.
func (c *Clock) Clock() {
	c.Start()
}

// Unclock closes the current span and adds it to the accumulated time.
func (c *Clock) Unclock() {
	if c.startTime.IsZero() {
		return
	}
	c.Update()
	c.accumulated += c.elapsed
	c.Stop()
}

func (c *Clock) Accumulated() time.Duration {
	return c.accumulated
}

func (c *Clock) TimeMS() float64 {
	return float64(c.accumulated) / float64(time.Millisecond)
}

func (c *Clock) Reset() {
	c.Stop()
	c.elapsed = 0
	c.accumulated = 0
}
