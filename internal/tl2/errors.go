package tl2

import "go.uber.org/zap"

// invariantViolation is the panic value for conditions spec §7.3 calls
// fatal rather than transient: an impossible version number, or a
// setVersion CAS failing while the caller believes it holds the lock.
type invariantViolation struct {
	msg string
}

func (e invariantViolation) Error() string { return "tl2: invariant violation: " + e.msg }

// fatalf logs through the configured logger, then panics. The panic is an
// explicit call rather than relying on zap's own Panic-level behavior,
// because zap.NewNop() — the default logger, and the one every test in
// this package uses — treats every level as disabled and never triggers
// its usual write-then-panic side effect; an invariant violation must be
// unrecoverable regardless of whether a caller ever installed a real
// logger.
func fatalf(logger *zap.Logger, msg string) {
	logger.Sugar().Errorw("tl2: invariant violation", "detail", msg)
	panic(invariantViolation{msg: msg})
}
