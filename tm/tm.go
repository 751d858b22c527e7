// Package tm is the boundary adapter between an external caller — a
// compiler-generated instrumentation layer, a benchmark driver, anything
// speaking in raw memory addresses and byte ranges — and the tl2/segment
// engine underneath. It is a thin, non-generic translation of the
// reference implementation's tm_create/tm_begin/tm_read/tm_write/tm_end/
// tm_alloc/tm_free table (original_source/template/tm.cpp,
// original_source/360013/tm.cpp) into Go idiom: explicit error returns
// where the original used a tri-state Alloc enum, no context.Context since
// nothing here blocks.
//
// tm contains no algorithmic logic of its own; every operation delegates
// straight to internal/tl2 and internal/segment.
package tm

import (
	"encoding/binary"
	"errors"

	"go.uber.org/zap"

	"github.com/matteosz/stm-tl2/internal/segment"
	"github.com/matteosz/stm-tl2/internal/telemetry"
	"github.com/matteosz/stm-tl2/internal/tl2"
)

// Address is the opaque handle a caller passes back into Read, Write,
// Free, and receives from Start and Alloc. It carries no meaning outside
// this package's Region.
type Address = tl2.Address

// ErrInvalidSize is returned by Create when size or align is not a
// positive multiple of segment.WordBytes.
var ErrInvalidSize = errors.New("tm: size and align must be positive multiples of the word size")

// Region is one shared memory region: an address space plus the TL2
// engine guarding it. The zero Region is not usable; construct one with
// Create.
type Region struct {
	store    *segment.Table
	core     *tl2.Region
	recorder *telemetry.Recorder
}

// Option customizes Create.
type Option func(*options)

type options struct {
	logger             *zap.Logger
	extendedValidation bool
	wordsPerSegment    int
	maxSegments        int
}

// WithLogger installs a structured logger for fatal invariant violations.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithExtendedValidation enables the GV5-style read-only revalidation
// optimization (tl2.WithExtendedValidation).
func WithExtendedValidation(enabled bool) Option {
	return func(o *options) { o.extendedValidation = enabled }
}

// WithWordsPerSegment sets the segment table's default segment word count.
// Alloc always passes its explicit, positive size, so this option does not
// change the size of segments Alloc creates.
func WithWordsPerSegment(n int) Option {
	return func(o *options) { o.wordsPerSegment = n }
}

// WithMaxSegments bounds the number of live segments Alloc may create
// beyond the region's first, fixed segment.
func WithMaxSegments(n int) Option {
	return func(o *options) { o.maxSegments = n }
}

// Create allocates a new shared memory region with one first,
// non-freeable segment of the requested size and alignment, mirroring
// tm_create. size and align must each be a positive multiple of
// segment.WordBytes; align beyond that is accepted but not otherwise used,
// since every word is independently addressable at word granularity.
func Create(size, align int, opts ...Option) (*Region, error) {
	if size <= 0 || align <= 0 || size%segment.WordBytes != 0 || align%segment.WordBytes != 0 {
		return nil, ErrInvalidSize
	}
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	segOpts := []segment.Option{segment.WithLogger(o.logger)}
	if o.wordsPerSegment > 0 {
		segOpts = append(segOpts, segment.WithWordsPerSegment(o.wordsPerSegment))
	}
	if o.maxSegments > 0 {
		segOpts = append(segOpts, segment.WithMaxSegments(o.maxSegments))
	}
	store := segment.NewTable(size/segment.WordBytes, segOpts...)

	recorder := telemetry.NewRecorder()
	core := tl2.NewRegion(
		store,
		tl2.WithLogger(o.logger),
		tl2.WithRegistrar(store),
		tl2.WithRecorder(recorder),
		tl2.WithExtendedValidation(o.extendedValidation),
	)
	return &Region{store: store, core: core, recorder: recorder}, nil
}

// Destroy releases a region with no running transaction. Every allocation
// here is ordinary Go heap memory, so there is nothing to explicitly free
// beyond letting the garbage collector reclaim it once the caller drops
// its last reference; Destroy exists to mirror tm_destroy's place in the
// boundary and as a point to unregister telemetry, should that ever be
// needed.
func (r *Region) Destroy() {}

// Start returns the address of the first word of the region's first
// segment.
func (r *Region) Start() Address {
	return r.store.Start()
}

// Size returns the size, in bytes, of the region's first segment.
func (r *Region) Size() int {
	return r.store.FirstSegmentWords() * segment.WordBytes
}

// Align returns the alignment, in bytes, of every memory access on this
// region.
func (r *Region) Align() int {
	return segment.WordBytes
}

// Recorder exposes the region's Prometheus-backed commit/abort recorder
// for a caller (typically cmd/stmbench) that wants to register it with a
// metrics registry.
func (r *Region) Recorder() *telemetry.Recorder {
	return r.recorder
}

// Reclaim runs one reclamation sweep over segments freed by Free,
// returning the number of segments retired. It is safe to call
// concurrently with live transactions; it simply waits for any
// transaction registered before the call to finish before touching
// their addresses.
func (r *Region) Reclaim() int {
	return r.store.Reclaim()
}

func wordsIn(size int) (int, bool) {
	if size <= 0 || size%segment.WordBytes != 0 {
		return 0, false
	}
	return size / segment.WordBytes, true
}

func offsetAddress(base Address, words int) Address {
	return Address(uint64(base) + uint64(words))
}

// readWords and writeWords translate between a byte-oriented caller and
// the word-oriented tl2.Transaction, mirroring rw_read/tm_write's
// ALIGN-sized loop over a byte range.
func readWords(tx *tl2.Transaction, source Address, size int, target []byte) bool {
	words, ok := wordsIn(size)
	if !ok || len(target) < size {
		return false
	}
	for i := 0; i < words; i++ {
		v, ok := tx.Read(offsetAddress(source, i))
		if !ok {
			return false
		}
		binary.LittleEndian.PutUint64(target[i*segment.WordBytes:], v)
	}
	return true
}

func writeWords(tx *tl2.Transaction, source []byte, size int, target Address) bool {
	words, ok := wordsIn(size)
	if !ok || len(source) < size {
		return false
	}
	for i := 0; i < words; i++ {
		v := binary.LittleEndian.Uint64(source[i*segment.WordBytes:])
		if !tx.Write(offsetAddress(target, i), v) {
			return false
		}
	}
	return true
}
