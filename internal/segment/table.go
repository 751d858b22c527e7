package segment

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/matteosz/stm-tl2/internal/tl2"
)

// Segment is one contiguous run of words sharing an id. The first segment,
// id firstSegmentID, is never freed — it backs tm.Start's fixed region.
type Segment struct {
	id    uint32
	words []tl2.Word
}

type config struct {
	wordsPerSegment int
	maxSegments     int
	logger          *zap.Logger
}

func defaultConfig() config {
	return config{wordsPerSegment: 1500, logger: zap.NewNop()}
}

// Option customizes a Table.
type Option func(*config)

// WithWordsPerSegment sets the word count of a segment allocated with a
// zero or negative size hint. Default 1500, matching the reference
// implementation's OFF constant.
func WithWordsPerSegment(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.wordsPerSegment = n
		}
	}
}

// WithMaxSegments bounds how many segments may be live at once; Allocate
// returns ErrOutOfMemory past this limit. Zero (the default) is unbounded.
func WithMaxSegments(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxSegments = n
		}
	}
}

// WithLogger installs a structured logger used to report segment
// reclamation. The default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// Table is the Store backing a tl2.Region: a growable, id-indexed array of
// segments. WordAt is lock-free — it dereferences an atomically-published
// snapshot of the segment array. Allocate and Reclaim mutate that snapshot
// under a mutex that only structural changes ever contend on; Free never
// blocks a live transaction, it only enqueues a segment id for a later
// Reclaim sweep (spec's reclamation-barrier resolution, see barrier.go).
type Table struct {
	cfg   config
	alloc *idAllocator

	growMu   sync.Mutex
	segments atomic.Pointer[[]*Segment]

	freeMu      sync.Mutex
	pendingFree []uint32

	barrier barrier
}

// NewTable creates a Table with one non-freeable first segment of
// firstSegmentWords words (or the configured default, if zero or
// negative).
func NewTable(firstSegmentWords int, opts ...Option) *Table {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if firstSegmentWords <= 0 {
		firstSegmentWords = cfg.wordsPerSegment
	}
	t := &Table{
		cfg:     cfg,
		alloc:   newIDAllocator(cfg.maxSegments),
		barrier: newBarrier(),
	}
	first := &Segment{id: firstSegmentID, words: make([]tl2.Word, firstSegmentWords)}
	segs := []*Segment{first}
	t.segments.Store(&segs)
	return t
}

// WordAt implements tl2.Store. An address naming no live segment or an
// out-of-range offset is a caller bug — the boundary adapter is
// responsible for rejecting such addresses before they reach the core —
// so this panics rather than threading an error through an interface the
// hot path calls on every access.
func (t *Table) WordAt(addr tl2.Address) *tl2.Word {
	id, offset := decodeAddress(addr)
	segs := *t.segments.Load()
	if int(id) >= len(segs) || segs[id] == nil {
		panic(invalidAddressError{id: id})
	}
	seg := segs[id]
	if int(offset) >= len(seg.words) {
		panic(invalidAddressError{id: id})
	}
	return &seg.words[offset]
}

// Allocate reserves a new segment of wordCount words (or the configured
// default, if zero or negative) and returns the address of its first
// word.
func (t *Table) Allocate(wordCount int) (tl2.Address, error) {
	if wordCount <= 0 {
		wordCount = t.cfg.wordsPerSegment
	}
	id, ok := t.alloc.claim()
	if !ok {
		return 0, tableFullError{max: t.cfg.maxSegments}
	}
	seg := &Segment{id: id, words: make([]tl2.Word, wordCount)}

	t.growMu.Lock()
	old := *t.segments.Load()
	next := old
	if int(id) >= len(old) {
		next = make([]*Segment, id+1)
		copy(next, old)
	}
	next[id] = seg
	t.segments.Store(&next)
	t.growMu.Unlock()

	return encodeAddress(id, 0), nil
}

// Free marks a previously allocated segment for reclamation. The segment
// id is not returned to the allocator, nor is its backing slice dropped,
// until a subsequent Reclaim sweep observes no transaction registered
// before this call is still live.
func (t *Table) Free(addr tl2.Address) error {
	id, _ := decodeAddress(addr)
	if id == firstSegmentID {
		return invalidAddressError{id: id}
	}
	segs := *t.segments.Load()
	if int(id) >= len(segs) || segs[id] == nil {
		return invalidAddressError{id: id}
	}
	t.freeMu.Lock()
	t.pendingFree = append(t.pendingFree, id)
	t.freeMu.Unlock()
	return nil
}

// Reclaim retires every segment id freed since the last call, blocking
// until every transaction registered before this call returns. It returns
// the number of segments actually reclaimed. Nothing in this module calls
// it automatically; callers (tm.Region.Reclaim, tests) invoke it directly.
func (t *Table) Reclaim() int {
	t.freeMu.Lock()
	pending := t.pendingFree
	t.pendingFree = nil
	t.freeMu.Unlock()
	if len(pending) == 0 {
		return 0
	}

	t.barrier.lock()
	t.growMu.Lock()
	old := *t.segments.Load()
	next := make([]*Segment, len(old))
	copy(next, old)
	for _, id := range pending {
		next[id] = nil
	}
	t.segments.Store(&next)
	t.growMu.Unlock()
	t.barrier.unlock()

	for _, id := range pending {
		t.alloc.release(id)
	}
	t.cfg.logger.Debug("segments reclaimed",
		zap.Int("count", len(pending)),
		zap.Uint32s("ids", pending),
	)
	return len(pending)
}

// Enter and Exit implement tl2.Registrar, letting Reclaim's barrier track
// live transactions without the core knowing about segment reclamation.
func (t *Table) Enter() { t.barrier.enter() }
func (t *Table) Exit()  { t.barrier.exit() }

// Start returns the address of the first word of the table's non-freeable
// first segment.
func (t *Table) Start() tl2.Address {
	return encodeAddress(firstSegmentID, 0)
}

// FirstSegmentWords reports the word count of the first segment.
func (t *Table) FirstSegmentWords() int {
	segs := *t.segments.Load()
	return len(segs[firstSegmentID].words)
}

// WordBytes is the fixed size in bytes of a single addressable word — the
// alignment tm.Align reports, matching the reference implementation's
// ALIGN constant.
const WordBytes = 8

