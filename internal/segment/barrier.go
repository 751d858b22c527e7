package segment

// barrier gates a Table's reclamation sweep against live transactions:
// every transaction begun against the table holds it as a reader for its
// entire lifetime (via the tl2.Registrar hook, not per-word-access — word
// access through WordAt stays lock-free), and Reclaim holds it as a
// writer while it physically retires freed segment ids. A segment can
// therefore never be handed back to the allocator while a transaction that
// started before its Free could still hold the address.
//
// Adapted from this package's teacher's channel-based rwMutex
// (internal/db/lock.go), which credits
// https://blogtitle.github.io/go-advanced-concurrency-patterns-part-3-channels/#read-write-mutexes
// for the design.
type barrier struct {
	writer  chan struct{}
	readers chan uint
}

func newBarrier() barrier {
	return barrier{
		writer:  make(chan struct{}, 1),
		readers: make(chan uint, 1),
	}
}

// enter registers one more live transaction. Called once per transaction,
// from Region.Begin via the Registrar hook.
func (b barrier) enter() {
	var readers uint
	select {
	case b.writer <- struct{}{}:
	case readers = <-b.readers:
	}
	readers++
	b.readers <- readers
}

// exit unregisters a transaction that has reached a terminal state.
func (b barrier) exit() {
	readers := <-b.readers
	readers--
	if readers == 0 {
		<-b.writer
		return
	}
	b.readers <- readers
}

func (b barrier) lock() {
	b.writer <- struct{}{}
}

func (b barrier) unlock() {
	<-b.writer
}
