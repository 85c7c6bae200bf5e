// Package dmalloc is a debugging heap allocator. It stands in for malloc, calloc, realloc and free,
// tracks every live allocation along with the call site that requested it, reports invalid releases
// with as much context as it can derive, and keeps statistics about everything it has done.
//
// Misuse is detected and reported, never repaired: invalid releases are written to the diagnostic
// writer as MEMORY BUG lines and otherwise ignored, and failed allocations return NullAddress.
package dmalloc

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/dmalloc/basealloc"
	"github.com/vkngwrapper/dmalloc/internal/utils"
	"github.com/vkngwrapper/dmalloc/memutils"
	"github.com/vkngwrapper/dmalloc/memutils/metadata"
	"golang.org/x/exp/slog"
)

// Address is the location of an allocation. NullAddress is never returned from a successful allocation.
type Address = memutils.Address

// NullAddress is returned from failed allocations. Releasing it is a no-op.
const NullAddress = memutils.NullAddress

// Statistics is a snapshot of the allocator's counters
type Statistics = memutils.Statistics

// heapState is everything the allocator's mutex guards
type heapState struct {
	registry *metadata.Registry
	history  *metadata.FreedHistory
	base     *basealloc.Allocator
	stats    memutils.Statistics
}

// Validate checks that the registry, the base allocator and the counters agree with one another
func (s *heapState) Validate() error {
	err := s.registry.Validate()
	if err != nil {
		return err
	}

	err = s.base.Validate()
	if err != nil {
		return err
	}

	if s.stats.ActiveCount != uint64(s.registry.Len()) {
		return errors.Newf("statistics report %d active allocations, but %d blocks are registered", s.stats.ActiveCount, s.registry.Len())
	}

	if s.stats.ActiveSize != s.registry.Bytes() {
		return errors.Newf("statistics report %d active bytes, but registered blocks hold %d", s.stats.ActiveSize, s.registry.Bytes())
	}

	return s.registry.VisitAll(func(block *metadata.Block) error {
		if _, freed := s.history.Lookup(block.Address); freed {
			return errors.Newf("live block at %s is also recorded as freed", block.Address)
		}

		if !s.base.Disabled() {
			if _, ok := s.base.Size(block.Address); !ok {
				return errors.Newf("live block at %s is not live in the base allocator", block.Address)
			}
		}

		return nil
	})
}

// Allocator is a debugging heap allocator. Unless it was created with
// AllocatorCreateExternallySynchronized, every method is a single critical section and the
// allocator may be used from multiple goroutines.
type Allocator struct {
	mutex       utils.OptionalRWMutex
	logger      *slog.Logger
	createFlags CreateFlags
	guardBytes  int
	diagnostics io.Writer
	output      io.Writer
	closed      bool

	state heapState
}

// Malloc allocates size bytes and returns the address of the first one. A size of 0 still produces a
// distinct, releasable address. NullAddress is returned if the memory could not be obtained.
func (a *Allocator) Malloc(size uint64, file string, line int) Address {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	site := metadata.Site{File: file, Line: line}
	a.logger.Debug("Allocator::Malloc", slog.Uint64("Size", size), slog.String("Site", site.String()))

	addr := a.allocate(size, site, false)
	memutils.DebugValidate(&a.state)
	return addr
}

// Calloc allocates count elements of elemSize bytes each, all set to zero. If count*elemSize cannot
// be represented the request fails without allocating anything.
func (a *Allocator) Calloc(count, elemSize uint64, file string, line int) Address {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	site := metadata.Site{File: file, Line: line}
	a.logger.Debug("Allocator::Calloc", slog.Uint64("Count", count), slog.Uint64("ElementSize", elemSize), slog.String("Site", site.String()))

	size, overflow := memutils.CheckedMul(count, elemSize)
	if overflow {
		a.logger.LogAttrs(context.Background(), slog.LevelDebug, "Allocator::Calloc size overflow",
			slog.Uint64("Count", count),
			slog.Uint64("ElementSize", elemSize),
			slog.Any("error", memutils.ErrSizeOverflow),
		)
		a.state.stats.AddFailure(size)
		return NullAddress
	}

	addr := a.allocate(size, site, true)
	memutils.DebugValidate(&a.state)
	return addr
}

// Realloc moves the allocation at addr into a new allocation of newSize bytes, preserving as much of
// its contents as fits. A null addr behaves like Malloc. If the new allocation cannot be made,
// NullAddress is returned and the old allocation is left untouched; otherwise the old address is
// released exactly as Free would release it.
func (a *Allocator) Realloc(addr Address, newSize uint64, file string, line int) Address {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	site := metadata.Site{File: file, Line: line}
	a.logger.Debug("Allocator::Realloc", slog.String("Address", addr.String()), slog.Uint64("Size", newSize), slog.String("Site", site.String()))

	newAddr := a.allocate(newSize, site, false)
	if newAddr == NullAddress || addr == NullAddress {
		memutils.DebugValidate(&a.state)
		return newAddr
	}

	if old, ok := a.state.registry.Get(addr); ok {
		moved, _ := a.state.registry.Get(newAddr)
		copy(moved.Payload(), old.Payload())
	}

	a.free(addr, site)
	memutils.DebugValidate(&a.state)
	return newAddr
}

// Free releases the allocation at addr. Releasing NullAddress does nothing. Releasing anything
// that is not the address of a live allocation is reported to the diagnostic writer and otherwise
// ignored.
func (a *Allocator) Free(addr Address, file string, line int) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	site := metadata.Site{File: file, Line: line}
	a.logger.Debug("Allocator::Free", slog.String("Address", addr.String()), slog.String("Site", site.String()))

	a.free(addr, site)
	memutils.DebugValidate(&a.state)
}

// Bytes returns the contents of the live allocation at addr. The slice aliases the allocation and
// must not be used after the allocation is released. Nil is returned for addresses that are not live.
func (a *Allocator) Bytes(addr Address) []byte {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	block, ok := a.state.registry.Get(addr)
	if !ok {
		return nil
	}

	return block.Payload()
}

// Validate performs internal consistency checks on the allocator's bookkeeping. When the allocator
// is functioning correctly, it should not be possible for this method to return an error.
func (a *Allocator) Validate() error {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	return a.state.Validate()
}

func (a *Allocator) allocate(size uint64, site metadata.Site, zero bool) Address {
	total, overflow := memutils.CheckedAdd(size, uint64(a.guardBytes))
	if overflow || total > math.MaxInt {
		a.logger.LogAttrs(context.Background(), slog.LevelDebug, "Allocator::allocate size overflow",
			slog.Uint64("Size", size),
			slog.Int("GuardBytes", a.guardBytes),
			slog.Any("error", memutils.ErrSizeOverflow),
		)
		a.state.stats.AddFailure(size)
		return NullAddress
	}

	request := int(total)
	if request == 0 {
		// Every block needs its own address, even an empty one
		request = 1
	}

	buf, err := a.state.base.Allocate(request)
	if err != nil {
		a.logger.LogAttrs(context.Background(), slog.LevelDebug, "Allocator::allocate refused",
			slog.Uint64("Size", size),
			slog.String("Site", site.String()),
			slog.Any("error", err),
		)
		a.state.stats.AddFailure(size)
		return NullAddress
	}

	block := &metadata.Block{
		Address: memutils.AddressOf(buf),
		Size:    size,
		Site:    site,
		Data:    buf[:total],
	}

	err = a.state.registry.Insert(block)
	if err != nil {
		a.logger.LogAttrs(context.Background(), slog.LevelError, "base allocator returned an address that overlaps a live block",
			slog.Any("error", err))
		_ = a.state.base.Free(buf)
		a.state.stats.AddFailure(size)
		return NullAddress
	}

	if zero {
		payload := block.Payload()
		for i := range payload {
			payload[i] = 0
		}
	}
	memutils.WriteMagicValue(block.Guard())

	a.state.history.Forget(block.Address)
	a.state.stats.AddAllocation(block.Address, size)
	return block.Address
}

func (a *Allocator) free(addr Address, site metadata.Site) {
	if addr == NullAddress {
		return
	}

	block, ok := a.state.registry.Get(addr)
	if !ok {
		a.reportInvalidFree(addr, site)
		return
	}

	if !memutils.ValidateMagicValue(block.Guard()) {
		a.reportBug(site, fmt.Sprintf("detected wild write during free of pointer %s", addr), "",
			slog.String("AllocatedAt", block.Site.String()),
			slog.Uint64("Size", block.Size),
		)
	}

	a.state.registry.Remove(addr)
	a.state.stats.RemoveAllocation(block.Size)
	a.state.history.Add(metadata.FreedBlock{
		Address: block.Address,
		Size:    block.Size,
		Site:    block.Site,
		FreedAt: site,
	})

	err := a.state.base.Free(block.Data)
	if err != nil {
		a.logger.LogAttrs(context.Background(), slog.LevelError, "failed to return memory to the system allocator",
			slog.String("Address", addr.String()),
			slog.Any("error", err))
	}
}
