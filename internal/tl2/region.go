package tl2

import "sync/atomic"

// Region is one TL2 transactional memory domain: a Store of addressable
// words, the global version clock guarding them, and the configuration
// every Transaction born from it shares. Callers normally obtain a Region
// once per process (or per isolated memory domain under test) and Begin
// transactions against it concurrently from any number of goroutines.
type Region struct {
	store       Store
	clock       clock
	cfg         config
	liveShadows atomic.Int64
}

// NewRegion wires a Store to the TL2 protocol. The Store is typically an
// internal/segment.Table; tests may supply a minimal fake.
func NewRegion(store Store, opts ...Option) *Region {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Region{store: store, cfg: cfg}
}

// Begin starts a new transaction, sampling the current clock value as its
// read-version. readOnly transactions commit trivially (§4.5) and, with
// WithExtendedValidation, may extend their snapshot on a stale-but-unlocked
// read instead of aborting (§4.3).
func (r *Region) Begin(readOnly bool) *Transaction {
	r.cfg.registrar.Enter()
	return &Transaction{
		region:      r,
		readVersion: r.clock.sample(),
		readOnly:    readOnly,
		readSet:     make(map[Address]struct{}),
		writeSet:    make(map[Address]*shadow),
	}
}

// LiveShadows reports the number of speculative-write buffers currently
// checked out of the region's pool.
func (r *Region) LiveShadows() int64 {
	return r.liveShadows.Load()
}
