package tl2

import "sync/atomic"

// clock is the region's single monotone version counter. Every read-write
// transaction that commits with a non-empty write-set advances it exactly
// once, and the returned value becomes that transaction's write-version.
type clock struct {
	v atomic.Uint64
}

// sample returns the current clock value, establishing a transaction's
// read-version at begin.
func (c *clock) sample() uint64 {
	return c.v.Load()
}

// advance atomically increments the clock and returns the new value. The
// caller must use this as the write-version directly; it must be strictly
// greater than any read-version sampled before this call returned.
func (c *clock) advance() uint64 {
	return c.v.Add(1)
}
