package tl2

import "sync"

// shadow is a transaction-private staging cell for a speculative write: the
// new value sits here, invisible to every other transaction, until commit's
// Phase 4 copies it into the Word's payload under lock.
type shadow struct {
	value uint64
}

var shadowPool = sync.Pool{New: func() any { return new(shadow) }}

// newShadow and releaseShadow are Region methods, not package-level
// functions, so a Region can track live shadow count for the "no leaks"
// testable property: every shadow taken from the pool during Write is
// returned exactly once, by the transaction that took it, in finish.
func (r *Region) newShadow(value uint64) *shadow {
	s := shadowPool.Get().(*shadow)
	s.value = value
	r.liveShadows.Add(1)
	return s
}

func (r *Region) releaseShadow(s *shadow) {
	s.value = 0
	shadowPool.Put(s)
	r.liveShadows.Add(-1)
}
