package poller

// Channel is the single-flight guard of one synchronization channel.
// A tick that finds a request outstanding is dropped, never queued.
// Channels are used only from the event loop.
type Channel struct {
	name     string
	inFlight bool
	issued   int
	skipped  int
}

// NewChannel creates an idle channel guard.
func NewChannel(name string) *Channel {
	return &Channel{name: name}
}

// Name returns the channel label used in logs and metrics.
func (c *Channel) Name() string {
	return c.name
}

// TryAcquire marks the channel busy. It returns false, and counts a skip,
// when a request is already outstanding.
func (c *Channel) TryAcquire() bool {
	if c.inFlight {
		c.skipped++
		return false
	}
	c.inFlight = true
	c.issued++
	return true
}

// Release marks the outstanding request as completed.
func (c *Channel) Release() {
	c.inFlight = false
}

// InFlight reports whether a request is outstanding.
func (c *Channel) InFlight() bool {
	return c.inFlight
}

// Issued returns how many requests were started.
func (c *Channel) Issued() int {
	return c.issued
}

// Skipped returns how many ticks were dropped while busy.
func (c *Channel) Skipped() int {
	return c.skipped
}
