package tm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateRejectsBadSize(t *testing.T) {
	_, err := Create(0, 8)
	require.ErrorIs(t, err, ErrInvalidSize)

	_, err = Create(8, 3)
	require.ErrorIs(t, err, ErrInvalidSize)
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	region, err := Create(64*8, 8)
	require.NoError(t, err)
	defer region.Destroy()

	tx := region.Begin(false)
	addr := region.Start()

	src := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	require.True(t, region.Write(tx, src, 8, addr))

	dst := make([]byte, 8)
	require.True(t, region.Read(tx, addr, 8, dst))
	require.Equal(t, src, dst)
	require.True(t, region.End(tx))

	verify := region.Begin(true)
	out := make([]byte, 8)
	require.True(t, region.Read(verify, addr, 8, out))
	require.Equal(t, src, out)
	require.True(t, region.End(verify))
}

func TestAllocAndFreeRoundTrip(t *testing.T) {
	region, err := Create(8*8, 8, WithMaxSegments(1))
	require.NoError(t, err)
	defer region.Destroy()

	tx := region.Begin(false)
	addr, err := region.Alloc(tx, 8)
	require.NoError(t, err)

	payload := []byte{9, 9, 9, 9, 9, 9, 9, 9}
	require.True(t, region.Write(tx, payload, 8, addr))
	require.True(t, region.End(tx))

	full := region.Begin(false)
	_, err = region.Alloc(full, 8)
	require.Error(t, err, "the segment table is configured for only one extra segment")
	// Reclaim waits for every live transaction, so this one must end first.
	region.End(full)

	free := region.Begin(false)
	require.True(t, region.Free(free, addr))
	require.True(t, region.End(free))
	region.Reclaim()

	again, err := region.Alloc(region.Begin(false), 8)
	require.NoError(t, err)
	require.NotZero(t, again)
}

func TestFreeFirstSegmentFails(t *testing.T) {
	region, err := Create(8*8, 8)
	require.NoError(t, err)
	defer region.Destroy()

	tx := region.Begin(false)
	require.False(t, region.Free(tx, region.Start()))
}

func TestSizeAndAlign(t *testing.T) {
	region, err := Create(16*8, 8)
	require.NoError(t, err)
	defer region.Destroy()

	require.Equal(t, 16*8, region.Size())
	require.Equal(t, 8, region.Align())
}
