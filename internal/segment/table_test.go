package segment

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddressRoundTrip(t *testing.T) {
	addr := encodeAddress(3, 17)
	id, offset := decodeAddress(addr)
	require.Equal(t, uint32(3), id)
	require.Equal(t, uint32(17), offset)
}

func TestFirstSegmentWordAccess(t *testing.T) {
	table := NewTable(4)
	w := table.WordAt(table.Start())
	require.NotNil(t, w)
	require.Equal(t, 4, table.FirstSegmentWords())
}

func TestAllocateThenWordAt(t *testing.T) {
	table := NewTable(4)
	addr, err := table.Allocate(8)
	require.NoError(t, err)
	w := table.WordAt(addr)
	require.NotNil(t, w)
	w.Payload.Store(99)
	require.Equal(t, uint64(99), table.WordAt(addr).Payload.Load())
}

func TestAllocateRespectsMaxSegments(t *testing.T) {
	table := NewTable(4, WithMaxSegments(1))
	_, err := table.Allocate(4)
	require.NoError(t, err)
	_, err = table.Allocate(4)
	require.True(t, errors.Is(err, ErrOutOfMemory))
}

func TestFreeThenReclaimReturnsIDForReuse(t *testing.T) {
	table := NewTable(4, WithMaxSegments(1))
	addr, err := table.Allocate(4)
	require.NoError(t, err)

	require.NoError(t, table.Free(addr))
	// Not reclaimed yet: the id must still be unavailable to a new
	// Allocate until a sweep actually retires it.
	_, err = table.Allocate(4)
	require.True(t, errors.Is(err, ErrOutOfMemory))

	require.Equal(t, 1, table.Reclaim())
	newAddr, err := table.Allocate(4)
	require.NoError(t, err)
	require.Equal(t, addr, newAddr, "a reclaimed id is handed out again by the next Allocate")
}

func TestFreeFirstSegmentIsRejected(t *testing.T) {
	table := NewTable(4)
	err := table.Free(table.Start())
	require.True(t, errors.Is(err, ErrInvalidAddress))
}

func TestWordAtUnknownSegmentPanics(t *testing.T) {
	table := NewTable(4)
	require.Panics(t, func() {
		table.WordAt(encodeAddress(999, 0))
	})
}

func TestReclaimBlocksOnLiveTransaction(t *testing.T) {
	table := NewTable(4)
	addr, err := table.Allocate(4)
	require.NoError(t, err)

	table.Enter() // simulate a transaction begun before the free
	require.NoError(t, table.Free(addr))

	done := make(chan struct{})
	go func() {
		table.Reclaim()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Reclaim must not complete while a registered transaction is still live")
	default:
	}

	table.Exit()
	<-done
}
