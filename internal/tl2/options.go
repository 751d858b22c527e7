package tl2

import "go.uber.org/zap"

// Recorder receives commit-pipeline outcomes for observability. Its methods
// are called only at transaction boundaries — never inside the speculative
// read/write/validate loops — so implementations cannot perturb the memory
// model described in the region's concurrency design.
//
// internal/telemetry provides the Prometheus-backed implementation used by
// cmd/stmbench; tests are free to pass nil, which Region treats as a no-op.
type Recorder interface {
	ObserveCommit(readOnly bool, writeSetSize int)
	ObserveAbort(readOnly bool)
}

type noopRecorder struct{}

func (noopRecorder) ObserveCommit(bool, int) {}
func (noopRecorder) ObserveAbort(bool)       {}

// Registrar lets a Store track how many transactions are currently live
// against it, without the core knowing anything about segment reclamation.
// internal/segment.Table implements this to gate its reclamation sweep
// behind a barrier: a segment freed by a transaction cannot be physically
// reused while any transaction that began before the free is still live.
type Registrar interface {
	Enter()
	Exit()
}

type noopRegistrar struct{}

func (noopRegistrar) Enter() {}
func (noopRegistrar) Exit()  {}

type config struct {
	logger             *zap.Logger
	recorder           Recorder
	registrar          Registrar
	extendedValidation bool
}

func defaultConfig() config {
	return config{
		logger:    zap.NewNop(),
		recorder:  noopRecorder{},
		registrar: noopRegistrar{},
	}
}

// Option customizes a Region.
type Option func(*config)

// WithLogger installs a structured logger used for fatal invariant
// violations and, at Debug level, the terminal outcome (commit or abort)
// of every transaction. The default is a no-op logger; the core never logs
// inside Read, Write or the commit pipeline's validation loops.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRecorder installs a Recorder for commit/abort telemetry.
func WithRecorder(r Recorder) Option {
	return func(c *config) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithRegistrar installs a Registrar notified once per transaction: Enter
// when Region.Begin starts it, Exit when it reaches a terminal state. The
// default is a no-op, appropriate for a Store with no reclamation to gate.
func WithRegistrar(r Registrar) Option {
	return func(c *config) {
		if r != nil {
			c.registrar = r
		}
	}
}

// WithExtendedValidation enables the GV5-style optimization by which a
// read-only transaction, on observing a stale-but-unlocked word, may
// extend its snapshot instead of aborting (spec §4.3). Off by default,
// matching the reference implementation this package ports.
func WithExtendedValidation(enabled bool) Option {
	return func(c *config) {
		c.extendedValidation = enabled
	}
}
