package dmalloc_test

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/dmalloc/dmalloc"
	"golang.org/x/exp/slices"
)

func TestLeakReport(t *testing.T) {
	allocator := newTestAllocator(t, dmalloc.CreateOptions{})

	sites := map[dmalloc.Address]int{}
	for i := 1; i <= 5; i++ {
		addr := allocator.Malloc(uint64(i*10), "leak.c", i)
		sites[addr] = i
	}
	freed := allocator.Malloc(99, "leak.c", 99)
	allocator.Free(freed, "leak.c", 100)

	addrs := make([]dmalloc.Address, 0, len(sites))
	for addr := range sites {
		addrs = append(addrs, addr)
	}
	slices.Sort(addrs)

	var expected strings.Builder
	for _, addr := range addrs {
		line := sites[addr]
		expected.WriteString(fmt.Sprintf("LEAK CHECK: leak.c:%d: allocated object %s with size %d\n", line, addr, line*10))
	}

	allocator.PrintLeakReport()
	require.Equal(t, expected.String(), allocator.output.String())

	for _, addr := range addrs {
		allocator.Free(addr, "leak.c", 200)
	}
	allocator.output.Reset()
	allocator.PrintLeakReport()
	require.Empty(t, allocator.output.String())
	require.NoError(t, allocator.Close())
}

func TestCloseReportsLeaks(t *testing.T) {
	allocator := newTestAllocator(t, dmalloc.CreateOptions{})

	allocator.Malloc(8, "close.c", 1)
	allocator.Malloc(4, "close.c", 2)

	err := allocator.Close()
	require.ErrorContains(t, err, "2 allocations (12 bytes) were not freed")

	require.NoError(t, allocator.Close())
}

type statsDocument struct {
	Total struct {
		ActiveCount int
		TotalCount  int
		FailCount   int
		ActiveSize  int
		TotalSize   int
		FailSize    int
		HeapMin     string
		HeapMax     string
	}
	Registry struct {
		LiveBlocks     int
		LiveBytes      int
		FreedHistory   int
		RecycledBlocks int
		Blocks         []struct {
			Address string
			Size    int
			Site    string
		}
	}
}

func TestBuildStatsString(t *testing.T) {
	allocator := newTestAllocator(t, dmalloc.CreateOptions{Flags: dmalloc.AllocatorCreateExternallySynchronized})

	kept := allocator.Malloc(40, "json.c", 1)
	freed := allocator.Malloc(2, "json.c", 2)
	allocator.Free(freed, "json.c", 3)
	allocator.Calloc(1<<62, 8, "json.c", 4)

	var doc statsDocument
	require.NoError(t, json.Unmarshal([]byte(allocator.BuildStatsString(false)), &doc))
	require.Equal(t, 1, doc.Total.ActiveCount)
	require.Equal(t, 2, doc.Total.TotalCount)
	require.Equal(t, 1, doc.Total.FailCount)
	require.Equal(t, 40, doc.Total.ActiveSize)
	require.Equal(t, 42, doc.Total.TotalSize)
	require.Equal(t, 0, doc.Total.FailSize)
	stats := allocator.Statistics()
	require.Equal(t, stats.HeapMin.String(), doc.Total.HeapMin)
	require.Equal(t, stats.HeapMax.String(), doc.Total.HeapMax)
	require.Equal(t, 1, doc.Registry.LiveBlocks)
	require.Equal(t, 40, doc.Registry.LiveBytes)
	require.Equal(t, 1, doc.Registry.FreedHistory)
	require.Equal(t, 1, doc.Registry.RecycledBlocks)
	require.Nil(t, doc.Registry.Blocks)

	doc = statsDocument{}
	require.NoError(t, json.Unmarshal([]byte(allocator.BuildStatsString(true)), &doc))
	require.Len(t, doc.Registry.Blocks, 1)
	require.Equal(t, kept.String(), doc.Registry.Blocks[0].Address)
	require.Equal(t, 40, doc.Registry.Blocks[0].Size)
	require.Equal(t, "json.c:1", doc.Registry.Blocks[0].Site)

	allocator.Free(kept, "json.c", 5)
	require.NoError(t, allocator.Close())
}

func TestConcurrentUse(t *testing.T) {
	allocator := newTestAllocator(t, dmalloc.CreateOptions{})

	var wg sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			addrs := make([]dmalloc.Address, 0, 100)
			for i := 0; i < 100; i++ {
				addrs = append(addrs, allocator.Malloc(uint64(worker+i), "worker.c", worker))
			}
			for _, addr := range addrs {
				allocator.Free(addr, "worker.c", worker)
			}
		}(worker)
	}
	wg.Wait()

	stats := allocator.Statistics()
	require.Equal(t, uint64(0), stats.ActiveCount)
	require.Equal(t, uint64(800), stats.TotalCount)
	require.Empty(t, allocator.diagnostics.String())
	require.NoError(t, allocator.Validate())
	require.NoError(t, allocator.Close())
}
