// Package metrics exports an allocator's statistics as Prometheus metrics
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/vkngwrapper/dmalloc/memutils"
)

// StatisticsSource is anything that can produce a statistics snapshot, such as *dmalloc.Allocator
type StatisticsSource interface {
	Statistics() memutils.Statistics
}

// Collector reads a StatisticsSource each time it is scraped
type Collector struct {
	source StatisticsSource

	activeCount *prometheus.Desc
	activeSize  *prometheus.Desc
	totalCount  *prometheus.Desc
	totalSize   *prometheus.Desc
	failCount   *prometheus.Desc
	failSize    *prometheus.Desc
	heapMin     *prometheus.Desc
	heapMax     *prometheus.Desc
}

var _ prometheus.Collector = &Collector{}

// NewCollector creates a Collector whose metric names are prefixed with namespace
func NewCollector(source StatisticsSource, namespace string) *Collector {
	return &Collector{
		source: source,

		activeCount: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "active_allocations"),
			"Number of live allocations.", nil, nil),
		activeSize: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "active_bytes"),
			"Number of bytes in live allocations.", nil, nil),
		totalCount: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "allocations_total"),
			"Number of successful allocations.", nil, nil),
		totalSize: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "allocated_bytes_total"),
			"Number of bytes successfully allocated.", nil, nil),
		failCount: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "failed_allocations_total"),
			"Number of refused allocation attempts.", nil, nil),
		failSize: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "failed_bytes_total"),
			"Number of bytes requested by refused allocation attempts.", nil, nil),
		heapMin: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "heap_min"),
			"Lowest address ever returned by the allocator.", nil, nil),
		heapMax: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "heap_max"),
			"One past the highest allocated byte ever returned by the allocator.", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeCount
	ch <- c.activeSize
	ch <- c.totalCount
	ch <- c.totalSize
	ch <- c.failCount
	ch <- c.failSize
	ch <- c.heapMin
	ch <- c.heapMax
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.source.Statistics()

	ch <- prometheus.MustNewConstMetric(c.activeCount, prometheus.GaugeValue, float64(stats.ActiveCount))
	ch <- prometheus.MustNewConstMetric(c.activeSize, prometheus.GaugeValue, float64(stats.ActiveSize))
	ch <- prometheus.MustNewConstMetric(c.totalCount, prometheus.CounterValue, float64(stats.TotalCount))
	ch <- prometheus.MustNewConstMetric(c.totalSize, prometheus.CounterValue, float64(stats.TotalSize))
	ch <- prometheus.MustNewConstMetric(c.failCount, prometheus.CounterValue, float64(stats.FailCount))
	ch <- prometheus.MustNewConstMetric(c.failSize, prometheus.CounterValue, float64(stats.FailSize))
	ch <- prometheus.MustNewConstMetric(c.heapMin, prometheus.GaugeValue, float64(stats.HeapMin))
	ch <- prometheus.MustNewConstMetric(c.heapMax, prometheus.GaugeValue, float64(stats.HeapMax))
}
