package handle

import "sync/atomic"

// LiveCounter tracks how many live-count units a factory has handed out.
// It replaces what the wrapped library models as a process-global count:
// every factory value carries its own counter, so two factories never
// see each other's instances.
//
// Construction acquires a weight and destruction releases the same
// weight. Plain classes weigh one unit; derived classes may weigh more
// when their construction registers with the factory more than once.
type LiveCounter struct {
	n atomic.Int64
}

// Acquire adds weight units to the live count.
func (c *LiveCounter) Acquire(weight int64) {
	c.n.Add(weight)
}

// Release gives weight units back.
func (c *LiveCounter) Release(weight int64) {
	c.n.Add(-weight)
}

// Live returns the current live count.
func (c *LiveCounter) Live() int64 {
	return c.n.Load()
}
