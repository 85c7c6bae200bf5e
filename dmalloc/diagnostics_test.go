package dmalloc_test

import (
	"fmt"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/dmalloc/dmalloc"
)

func TestFreeNotInHeap(t *testing.T) {
	allocator := newTestAllocator(t, dmalloc.CreateOptions{})

	allocator.Free(dmalloc.Address(16), "test.c", 7)
	require.Equal(t, "MEMORY BUG: test.c:7: invalid free of pointer 0x10, not in heap\n", allocator.diagnostics.String())

	addr := allocator.Malloc(8, "test.c", 8)
	allocator.diagnostics.Reset()
	allocator.Free(dmalloc.Address(16), "test.c", 9)
	require.Equal(t, "MEMORY BUG: test.c:9: invalid free of pointer 0x10, not in heap\n", allocator.diagnostics.String())

	requireStatistics(t, allocator, 1, 1, 0, 8, 8, 0)
	allocator.Free(addr, "test.c", 10)
	require.NoError(t, allocator.Close())
}

func TestWildFreeInsideBlock(t *testing.T) {
	for _, offset := range []uint64{1, 127, 128, 2000} {
		t.Run(fmt.Sprintf("%d", offset), func(t *testing.T) {
			allocator := newTestAllocator(t, dmalloc.CreateOptions{})

			addr := allocator.Malloc(2001, "wild.c", 12)
			wild := addr.Add(offset)
			allocator.Free(wild, "wild.c", 20)

			expected := fmt.Sprintf("MEMORY BUG: wild.c:20: invalid free of pointer %s, not allocated\n"+
				"wild.c:12: %s is %d bytes inside a 2001 byte region allocated here\n", wild, wild, offset)
			require.Equal(t, expected, allocator.diagnostics.String())

			// The block is still live and can be released normally
			requireStatistics(t, allocator, 1, 1, 0, 2001, 2001, 0)
			allocator.diagnostics.Reset()
			allocator.Free(addr, "wild.c", 21)
			require.Empty(t, allocator.diagnostics.String())
			require.NoError(t, allocator.Close())
		})
	}
}

func TestFreeNotAllocated(t *testing.T) {
	allocator := newTestAllocator(t, dmalloc.CreateOptions{GuardBytes: 16})

	addr := allocator.Malloc(32, "test.c", 1)

	// Allocate until something lands above the first block so that its guard bytes lie in the heap
	var others []dmalloc.Address
	for len(others) == 0 || others[len(others)-1] < addr {
		require.Less(t, len(others), 1000)
		others = append(others, allocator.Malloc(32, "test.c", 2))
	}

	// The first guard byte belongs to no live block
	gap := addr.Add(32)
	allocator.Free(gap, "test.c", 3)
	require.Equal(t, fmt.Sprintf("MEMORY BUG: test.c:3: invalid free of pointer %s, not allocated\n", gap), allocator.diagnostics.String())
	requireStatistics(t, allocator, uint64(len(others)+1), uint64(len(others)+1), 0, uint64(32*(len(others)+1)), uint64(32*(len(others)+1)), 0)

	allocator.Free(addr, "test.c", 4)
	for _, other := range others {
		allocator.Free(other, "test.c", 5)
	}
	require.NoError(t, allocator.Close())
}

func TestDoubleFree(t *testing.T) {
	allocator := newTestAllocator(t, dmalloc.CreateOptions{})

	keep := allocator.Malloc(8, "double.c", 1)
	addr := allocator.Malloc(24, "double.c", 2)
	allocator.Free(addr, "double.c", 3)
	allocator.Free(addr, "double.c", 4)

	expected := fmt.Sprintf("MEMORY BUG: double.c:4: invalid free of pointer %s, not allocated\n"+
		"double.c:2: %s is a 24 byte region allocated here and already freed at double.c:3\n", addr, addr)
	require.Equal(t, expected, allocator.diagnostics.String())
	requireStatistics(t, allocator, 1, 2, 0, 8, 32, 0)

	allocator.Free(keep, "double.c", 5)
	require.NoError(t, allocator.Close())
}

func TestDoubleFreeWithoutHistory(t *testing.T) {
	allocator := newTestAllocator(t, dmalloc.CreateOptions{FreedHistory: -1})

	keep := allocator.Malloc(8, "double.c", 1)
	addr := allocator.Malloc(24, "double.c", 2)
	allocator.Free(addr, "double.c", 3)
	allocator.Free(addr, "double.c", 4)

	require.Equal(t, fmt.Sprintf("MEMORY BUG: double.c:4: invalid free of pointer %s, not allocated\n", addr), allocator.diagnostics.String())

	allocator.Free(keep, "double.c", 5)
	require.NoError(t, allocator.Close())
}

func TestReallocatedAddressIsNotADoubleFree(t *testing.T) {
	allocator := newTestAllocator(t, dmalloc.CreateOptions{ReusePercent: 100})

	first := allocator.Malloc(32, "reuse.c", 1)
	allocator.Free(first, "reuse.c", 2)

	second := allocator.Malloc(32, "reuse.c", 3)
	require.Equal(t, first, second)
	allocator.Free(second, "reuse.c", 4)
	require.Empty(t, allocator.diagnostics.String())

	allocator.Free(second, "reuse.c", 5)
	require.Contains(t, allocator.diagnostics.String(), "already freed at reuse.c:4")
	require.NoError(t, allocator.Close())
}

func TestGuardBytesDetectWildWrite(t *testing.T) {
	allocator := newTestAllocator(t, dmalloc.CreateOptions{GuardBytes: 16})

	addr := allocator.Malloc(10, "guard.c", 1)
	payload := allocator.Bytes(addr)
	require.Len(t, payload, 10)

	overrun := unsafe.Slice(unsafe.SliceData(payload), len(payload)+1)
	overrun[len(payload)] = 0

	allocator.Free(addr, "guard.c", 2)
	require.Equal(t, fmt.Sprintf("MEMORY BUG: guard.c:2: detected wild write during free of pointer %s\n", addr), allocator.diagnostics.String())

	// The damaged block is still released
	requireStatistics(t, allocator, 0, 1, 0, 0, 10, 0)
	require.NoError(t, allocator.Close())
}

func TestGuardBytesUndisturbed(t *testing.T) {
	allocator := newTestAllocator(t, dmalloc.CreateOptions{GuardBytes: 16})

	addr := allocator.Calloc(4, 4, "guard.c", 1)
	payload := allocator.Bytes(addr)
	for i := range payload {
		payload[i] = 0xEE
	}

	allocator.Free(addr, "guard.c", 2)
	require.Empty(t, allocator.diagnostics.String())
	require.NoError(t, allocator.Close())
}
