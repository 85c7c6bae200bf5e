package dmalloc

import (
	"context"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/dmalloc/memutils/metadata"
	"golang.org/x/exp/slog"
)

// Statistics returns a snapshot of the allocator's counters. Before the first allocation every field
// is zero.
func (a *Allocator) Statistics() Statistics {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	return a.state.stats
}

// PrintStatistics writes the allocator's counters to the output writer
func (a *Allocator) PrintStatistics() {
	err := a.FprintStatistics(a.output)
	if err != nil {
		a.logger.Error("failed to print statistics", slog.Any("error", err))
	}
}

// FprintStatistics writes the allocator's counters to w in the layout
//
//	alloc count: active <n>   total <n>   fail <n>
//	alloc size:  active <n>   total <n>   fail <n>
func (a *Allocator) FprintStatistics(w io.Writer) error {
	stats := a.Statistics()
	return stats.Fprint(w)
}

// PrintLeakReport writes one line for every live allocation to the output writer
func (a *Allocator) PrintLeakReport() {
	err := a.FprintLeakReport(a.output)
	if err != nil {
		a.logger.Error("failed to print leak report", slog.Any("error", err))
	}
}

// FprintLeakReport writes one line for every live allocation to w, in address order:
//
//	LEAK CHECK: <file>:<line>: allocated object <address> with size <n>
func (a *Allocator) FprintLeakReport(w io.Writer) error {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	return a.state.registry.VisitAll(func(block *metadata.Block) error {
		_, err := fmt.Fprintf(w, "LEAK CHECK: %s: allocated object %s with size %d\n", block.Site, block.Address, block.Size)
		return err
	})
}

// BuildStatsString returns a JSON document describing the allocator's counters and, if detailedMap
// is true, every live allocation
func (a *Allocator) BuildStatsString(detailedMap bool) string {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	writer := jwriter.NewWriter()
	obj := writer.Object()

	stats := a.state.stats
	total := obj.Name("Total").Object()
	total.Name("ActiveCount").Int(int(stats.ActiveCount))
	total.Name("TotalCount").Int(int(stats.TotalCount))
	total.Name("FailCount").Int(int(stats.FailCount))
	total.Name("ActiveSize").Int(int(stats.ActiveSize))
	total.Name("TotalSize").Int(int(stats.TotalSize))
	total.Name("FailSize").Int(int(stats.FailSize))
	total.Name("HeapMin").String(stats.HeapMin.String())
	total.Name("HeapMax").String(stats.HeapMax.String())
	total.End()

	registry := obj.Name("Registry").Object()
	a.state.registry.BlockJsonData(&registry)
	registry.Name("FreedHistory").Int(a.state.history.Len())
	registry.Name("RecycledBlocks").Int(a.state.base.FreeCount())
	if detailedMap {
		a.state.registry.PrintDetailedMap(&registry)
	}
	registry.End()

	obj.End()

	return string(writer.Bytes())
}

// Close tears the allocator down. Every live allocation is logged as unreleased memory and left in
// place, and recycled blocks are returned to the system allocator. An error is returned if any
// allocations were still live. Close may be called more than once.
func (a *Allocator) Close() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true
	a.logger.Debug("Allocator::Close")

	_ = a.state.registry.VisitAll(func(block *metadata.Block) error {
		a.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED MEMORY] unfreed allocation",
			slog.String("address", block.Address.String()),
			slog.Uint64("size", block.Size),
			slog.String("site", block.Site.String()),
		)
		return nil
	})

	err := a.state.base.Close()
	if a.state.registry.Len() > 0 {
		err = errors.CombineErrors(err, errors.Newf("%d allocations (%d bytes) were not freed before the allocator was closed", a.state.registry.Len(), a.state.registry.Bytes()))
	}

	return err
}
