package tl2

import "go.uber.org/zap"

// txResult tracks a Transaction's terminal state so that Commit is callable
// more than once — a transaction that aborted inside Read or Write must
// still be "ended" by its caller, and that end call simply reports the
// outcome the transaction already reached.
type txResult uint8

const (
	txPending txResult = iota
	txCommitted
	txAborted
)

// Transaction is one TL2 speculative execution: a snapshot at read-version,
// a read-set of addresses validated against that snapshot, and a write-set
// of shadowed values not yet visible to any other transaction. Callers
// drive it through Read/Write calls and a single terminal Commit; a
// Transaction is not safe for concurrent use by more than one goroutine.
type Transaction struct {
	region *Region

	readOnly     bool
	readVersion  uint64
	writeVersion uint64

	readSet  map[Address]struct{}
	writeSet map[Address]*shadow
	// writeOrder is the write-set in first-write order. Phase 1 acquires
	// locks in this order and, on partial failure, must release exactly
	// the prefix it acquired in the same order (spec §4.5) — a map alone
	// cannot give that guarantee since Go randomizes map iteration.
	writeOrder []Address

	result txResult
}

// Read returns the current value visible to this transaction at addr: its
// own prior write if any, else a validated snapshot read (spec §4.3). The
// second return is false exactly when the transaction aborts — either
// during this call or previously; the transaction must not be used for
// further Read/Write after that, only Commit.
func (tx *Transaction) Read(addr Address) (uint64, bool) {
	if tx.result != txPending {
		return 0, false
	}
	if s, ok := tx.writeSet[addr]; ok {
		return s.value, true
	}

	word := tx.region.store.WordAt(addr)
	extendable := tx.readOnly && tx.region.cfg.extendedValidation

	for {
		preLocked, preVersion := word.lock.sample()
		if preLocked {
			tx.abort()
			return 0, false
		}
		if preVersion > tx.readVersion && !extendable {
			tx.abort()
			return 0, false
		}

		value := word.Payload.Load()

		postLocked, postVersion := word.lock.sample()
		if postLocked || postVersion != preVersion {
			tx.abort()
			return 0, false
		}

		if postVersion <= tx.readVersion {
			tx.readSet[addr] = struct{}{}
			return value, true
		}

		// postVersion > tx.readVersion, word stable and unlocked: only
		// reachable when extendable, since otherwise preVersion already
		// aborted above. Try to extend the snapshot (GV5, spec §4.3) and
		// re-validate this same word against it.
		if !tx.extendSnapshot() {
			tx.abort()
			return 0, false
		}
	}
}

// extendSnapshot re-samples the clock and checks every address already in
// the read-set is still unlocked and unchanged since the current
// read-version, adopting the new sample as read-version on success. Only
// called for read-only transactions with WithExtendedValidation enabled.
func (tx *Transaction) extendSnapshot() bool {
	candidate := tx.region.clock.sample()
	for addr := range tx.readSet {
		locked, version := tx.region.store.WordAt(addr).lock.sample()
		if locked || version > tx.readVersion {
			return false
		}
	}
	tx.readVersion = candidate
	return true
}

// Write stages a new value for addr in the transaction's private write-set.
// No shared memory is touched and the call cannot abort the transaction —
// the new value becomes visible to other transactions only if and when
// Commit succeeds (spec §4.4).
func (tx *Transaction) Write(addr Address, value uint64) bool {
	if tx.result != txPending {
		return false
	}
	if s, ok := tx.writeSet[addr]; ok {
		s.value = value
		return true
	}
	tx.writeSet[addr] = tx.region.newShadow(value)
	tx.writeOrder = append(tx.writeOrder, addr)
	// A word this transaction itself will lock during commit must not also
	// sit in the read-set, or Phase 3 validation would see its own pending
	// lock and reject a transaction that is not in conflict with anyone.
	delete(tx.readSet, addr)
	return true
}

// Commit runs the four-phase commit protocol (spec §4.5) and reports
// whether the transaction committed. Read-only transactions, and
// read-write transactions with an empty write-set, commit trivially: no
// lock is acquired and the clock is not advanced. Calling Commit again
// after a transaction has already committed or aborted is safe and simply
// returns the outcome already reached.
func (tx *Transaction) Commit() bool {
	if tx.result != txPending {
		return tx.result == txCommitted
	}

	if len(tx.writeSet) == 0 {
		tx.finish(txCommitted)
		return true
	}

	// Phase 1: acquire every write-set lock in a fixed order.
	acquired := 0
	for _, addr := range tx.writeOrder {
		if !tx.region.store.WordAt(addr).lock.tryLock() {
			for i := 0; i < acquired; i++ {
				tx.region.store.WordAt(tx.writeOrder[i]).lock.release()
			}
			tx.finish(txAborted)
			return false
		}
		acquired++
	}

	// Phase 2: advance the clock once; the result is this transaction's
	// write-version, strictly greater than any read-version sampled before
	// this point returned.
	tx.writeVersion = tx.region.clock.advance()
	if tx.writeVersion > maxVersion {
		fatalf(tx.region.cfg.logger, "global clock advanced past the 63-bit version field")
	}

	// Phase 3: validate the read-set, unless the fast path applies — no
	// other transaction committed between this one's begin and its own
	// write-version, so every previously validated read is still good.
	if tx.readVersion+1 != tx.writeVersion {
		for addr := range tx.readSet {
			locked, version := tx.region.store.WordAt(addr).lock.sample()
			if locked || version > tx.readVersion {
				for _, waddr := range tx.writeOrder {
					tx.region.store.WordAt(waddr).lock.release()
				}
				tx.finish(txAborted)
				return false
			}
		}
	}

	// Phase 4: publish every shadowed value and release its lock at the
	// transaction's write-version in the same fixed order used to acquire.
	for _, addr := range tx.writeOrder {
		word := tx.region.store.WordAt(addr)
		word.Payload.Store(tx.writeSet[addr].value)
		if !word.lock.setVersion(tx.writeVersion) {
			fatalf(tx.region.cfg.logger, "setVersion failed on a word this transaction holds locked")
		}
	}

	tx.finish(txCommitted)
	return true
}

func (tx *Transaction) abort() {
	if tx.result == txPending {
		tx.finish(txAborted)
	}
}

// finish releases every shadow buffer back to the region's pool, records
// telemetry, and marks the transaction terminal. Read-set and write-set
// are dropped so a finished Transaction retains no reference to region
// state beyond the region pointer itself.
func (tx *Transaction) finish(result txResult) {
	writeSetSize := len(tx.writeSet)
	for _, s := range tx.writeSet {
		tx.region.releaseShadow(s)
	}
	tx.readSet = nil
	tx.writeSet = nil
	tx.writeOrder = nil
	tx.result = result

	if result == txCommitted {
		tx.region.cfg.recorder.ObserveCommit(tx.readOnly, writeSetSize)
		tx.region.cfg.logger.Debug("transaction committed",
			zap.Bool("read_only", tx.readOnly),
			zap.Int("write_set_size", writeSetSize),
		)
	} else {
		tx.region.cfg.recorder.ObserveAbort(tx.readOnly)
		tx.region.cfg.logger.Debug("transaction aborted",
			zap.Bool("read_only", tx.readOnly),
		)
	}
	tx.region.cfg.registrar.Exit()
}
