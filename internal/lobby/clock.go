package lobby

const DefaultPeriod = 140

// Clock is the lobby countdown. Tick is driven once per second by the orchestrator.
type Clock struct {
	period    int
	remaining int
}

func NewClock(period int) *Clock {
	if period <= 0 {
		period = DefaultPeriod
	}

	return &Clock{
		period:    period,
		remaining: period,
	}
}

// Tick decrements the countdown. When it reaches zero it resets to the period
// and reports expired, whether or not a pairing pass can run.
func (c *Clock) Tick() (remaining int, expired bool) {
	c.remaining--
	if c.remaining <= 0 {
		c.remaining = c.period
		return c.remaining, true
	}

	return c.remaining, false
}

func (c *Clock) Remaining() int {
	return c.remaining
}

func (c *Clock) Period() int {
	return c.period
}
