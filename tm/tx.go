package tm

import "github.com/matteosz/stm-tl2/internal/tl2"

// Tx is an opaque transaction handle, returned by Begin and threaded back
// into every subsequent Region call, mirroring tm_begin's tx_t.
type Tx struct {
	inner *tl2.Transaction
}

// Begin starts a new transaction on the region, mirroring tm_begin.
func (r *Region) Begin(readOnly bool) *Tx {
	return &Tx{inner: r.core.Begin(readOnly)}
}

// End ends the given transaction, reporting whether it committed. Calling
// End again on a transaction that has already committed or aborted simply
// reports that same outcome, mirroring tm_end's idempotence under the
// reference implementation's thread-local reuse.
func (r *Region) End(tx *Tx) bool {
	return tx.inner.Commit()
}

// Read copies size bytes starting at source, in the shared region, into
// target, in the caller's private memory, mirroring tm_read. size must be
// a positive multiple of Align, and target must be at least that long. It
// reports whether the transaction can continue; false means it has
// aborted and tx must not be used again except to call End.
func (r *Region) Read(tx *Tx, source Address, size int, target []byte) bool {
	return readWords(tx.inner, source, size, target)
}

// Write copies size bytes starting at source, in the caller's private
// memory, into target, in the shared region, mirroring tm_write. size
// must be a positive multiple of Align, and source must be at least that
// long. Unlike Read, this never fails on a live transaction — the write
// only becomes visible, or is discarded, at End.
func (r *Region) Write(tx *Tx, source []byte, size int, target Address) bool {
	return writeWords(tx.inner, source, size, target)
}

// Alloc reserves a new segment of size bytes within the transaction and
// returns the address of its first byte, mirroring tm_alloc. size must be
// a positive multiple of Align; otherwise the error is ErrInvalidSize. Any
// other non-nil error means the region has exhausted its configured
// segment capacity (segment.ErrOutOfMemory) — the
// transaction itself may still continue and later End normally, exactly
// as the reference implementation's Alloc::nomem case allows.
func (r *Region) Alloc(tx *Tx, size int) (Address, error) {
	words, ok := wordsIn(size)
	if !ok {
		return 0, ErrInvalidSize
	}
	return r.store.Allocate(words)
}

// Free deallocates the segment previously returned by Alloc at target,
// mirroring tm_free. The reference implementation's first segment is
// never freeable; passing its address here returns false rather than
// silently succeeding.
func (r *Region) Free(tx *Tx, target Address) bool {
	return r.store.Free(target) == nil
}
