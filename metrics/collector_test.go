package metrics_test

import (
	"io"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/dmalloc/dmalloc"
	"github.com/vkngwrapper/dmalloc/memutils"
	"github.com/vkngwrapper/dmalloc/metrics"
)

type fixedSource memutils.Statistics

func (s fixedSource) Statistics() memutils.Statistics {
	return memutils.Statistics(s)
}

func TestCollectorExportsCounters(t *testing.T) {
	source := fixedSource{
		ActiveCount: 5,
		TotalCount:  10,
		ActiveSize:  40,
		TotalSize:   55,
		FailCount:   1,
		FailSize:    16,
	}

	collector := metrics.NewCollector(source, "dmalloc")
	registry := prometheus.NewPedanticRegistry()
	require.NoError(t, registry.Register(collector))

	require.Equal(t, 8, testutil.CollectAndCount(collector))

	expected := `
# HELP dmalloc_active_allocations Number of live allocations.
# TYPE dmalloc_active_allocations gauge
dmalloc_active_allocations 5
# HELP dmalloc_active_bytes Number of bytes in live allocations.
# TYPE dmalloc_active_bytes gauge
dmalloc_active_bytes 40
# HELP dmalloc_allocations_total Number of successful allocations.
# TYPE dmalloc_allocations_total counter
dmalloc_allocations_total 10
# HELP dmalloc_failed_allocations_total Number of refused allocation attempts.
# TYPE dmalloc_failed_allocations_total counter
dmalloc_failed_allocations_total 1
`
	err := testutil.GatherAndCompare(registry, strings.NewReader(expected),
		"dmalloc_active_allocations",
		"dmalloc_active_bytes",
		"dmalloc_allocations_total",
		"dmalloc_failed_allocations_total",
	)
	require.NoError(t, err)
}

func TestCollectorReadsAllocator(t *testing.T) {
	allocator, err := dmalloc.New(nil, dmalloc.CreateOptions{Diagnostics: io.Discard, Output: io.Discard})
	require.NoError(t, err)

	collector := metrics.NewCollector(allocator, "heap")

	addr := allocator.Malloc(32, "collector_test.go", 1)
	require.NotEqual(t, dmalloc.NullAddress, addr)

	expected := `
# HELP heap_active_bytes Number of bytes in live allocations.
# TYPE heap_active_bytes gauge
heap_active_bytes 32
`
	require.NoError(t, testutil.CollectAndCompare(collector, strings.NewReader(expected), "heap_active_bytes"))

	allocator.Free(addr, "collector_test.go", 2)
	require.NoError(t, allocator.Close())
}
