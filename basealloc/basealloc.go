// Package basealloc is an allocator that never hands out an address while it is still live and
// deliberately recycles released addresses, so that code which keeps using memory after releasing it
// is likely to see that memory change underneath it.
//
// Released blocks are not returned to the underlying system allocator. They go onto a free list, and a
// later request is satisfied from that list most of the time: a bounded number of randomly chosen
// entries are probed for one that is large enough, and a hit is reused verbatim without being split.
// The rest of the time, or when no probe hits, fresh memory is requested from the system allocator so
// that genuine leaks still show up as a growing heap.
package basealloc

import (
	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/dmalloc/memutils"
	"github.com/vkngwrapper/dmalloc/memutils/system"
	"golang.org/x/exp/rand"
	"golang.org/x/exp/slog"
)

const (
	// DefaultSeed is the seed used for reuse decisions when Options.Seed is 0
	DefaultSeed uint64 = 8973443640547502487
	// DefaultReuseAttempts is the number of free list entries probed per request when
	// Options.ReuseAttempts is 0
	DefaultReuseAttempts = 10
	// DefaultReusePercent is the chance, in percent, that a request probes the free list at all
	// when Options.ReusePercent is 0
	DefaultReusePercent = 75
)

// Options contains optional settings for an Allocator. It is valid to leave all fields blank.
type Options struct {
	// Seed seeds the random source behind reuse decisions. The same seed and the same sequence of
	// calls produce the same addresses.
	Seed uint64
	// ReuseAttempts is the maximum number of free list entries examined per request
	ReuseAttempts int
	// ReusePercent is the chance, in percent, that a request tries the free list before asking the
	// system allocator for fresh memory
	ReusePercent int
	// DisableReuse makes every request go to the system allocator. Released blocks are still kept
	// on the free list.
	DisableReuse bool
}

// Allocator is the base allocator. It is not safe for concurrent use.
type Allocator struct {
	logger *slog.Logger
	system system.Allocator
	rng    *rand.Rand

	reuseAttempts int
	reusePercent  int

	disabled int
	live     *swiss.Map[memutils.Address, []byte]
	frees    [][]byte
}

// New creates an Allocator that takes fresh memory from sys
func New(logger *slog.Logger, sys system.Allocator, options Options) *Allocator {
	seed := options.Seed
	if seed == 0 {
		seed = DefaultSeed
	}

	reuseAttempts := options.ReuseAttempts
	if reuseAttempts <= 0 {
		reuseAttempts = DefaultReuseAttempts
	}

	reusePercent := options.ReusePercent
	if reusePercent <= 0 {
		reusePercent = DefaultReusePercent
	}
	if options.DisableReuse {
		reusePercent = 0
	}

	return &Allocator{
		logger:        logger,
		system:        sys,
		rng:           rand.New(rand.NewSource(seed)),
		reuseAttempts: reuseAttempts,
		reusePercent:  reusePercent,
		live:          swiss.NewMap[memutils.Address, []byte](64),
	}
}

// Disable toggles pass-through mode. While disabled, Allocate and Free go straight to the system
// allocator and nothing is tracked. Calls nest: each Disable(true) must be matched by a
// Disable(false).
func (a *Allocator) Disable(disable bool) {
	if disable {
		a.disabled++
	} else if a.disabled > 0 {
		a.disabled--
	}
}

// Disabled reports whether the allocator is currently in pass-through mode
func (a *Allocator) Disabled() bool {
	return a.disabled > 0
}

// Allocate returns a block of at least size bytes. A recycled block is returned with the length it was
// originally allocated with, which may be larger than size, and with whatever contents it was released
// with.
func (a *Allocator) Allocate(size int) ([]byte, error) {
	if size < 0 {
		return nil, errors.Newf("attempted to allocate a negative number of bytes: %d", size)
	}

	if a.disabled > 0 {
		return a.system.Allocate(size)
	}

	a.Disable(true)
	defer a.Disable(false)

	if buf := a.tryReuse(size); buf != nil {
		a.live.Put(memutils.AddressOf(buf), buf)
		return buf, nil
	}

	if size == 0 {
		size = 1
	}

	buf, err := a.system.Allocate(size)
	if err != nil {
		return nil, err
	}

	a.live.Put(memutils.AddressOf(buf), buf)
	return buf, nil
}

func (a *Allocator) tryReuse(size int) []byte {
	if a.rng.Intn(100) >= a.reusePercent {
		return nil
	}

	for tries := 0; tries < a.reuseAttempts && tries < len(a.frees); tries++ {
		index := a.rng.Intn(len(a.frees))
		candidate := a.frees[index]
		if len(candidate) < size {
			continue
		}

		last := len(a.frees) - 1
		a.frees[index] = a.frees[last]
		a.frees[last] = nil
		a.frees = a.frees[:last]

		return candidate
	}

	return nil
}

// Free releases a block returned from Allocate. The buffer may have been resliced as long as it
// still starts at the same address. Releasing a nil buffer or a buffer this allocator does not
// consider live does nothing; detecting misuse is the caller's job.
func (a *Allocator) Free(buf []byte) error {
	addr := memutils.AddressOf(buf)
	if a.disabled > 0 || addr == memutils.NullAddress {
		if addr == memutils.NullAddress {
			return nil
		}
		return a.system.Free(buf)
	}

	a.Disable(true)
	defer a.Disable(false)

	stored, ok := a.live.Get(addr)
	if !ok {
		a.logger.Debug("BaseAllocator::Free ignored an address that is not live", slog.String("Address", addr.String()))
		return nil
	}

	a.live.Delete(addr)
	a.frees = append(a.frees, stored)
	return nil
}

// Size returns the size a live block was allocated with
func (a *Allocator) Size(addr memutils.Address) (int, bool) {
	buf, ok := a.live.Get(addr)
	if !ok {
		return 0, false
	}

	return len(buf), true
}

// LiveCount returns the number of live blocks
func (a *Allocator) LiveCount() int {
	return a.live.Count()
}

// FreeCount returns the number of released blocks waiting to be recycled
func (a *Allocator) FreeCount() int {
	return len(a.frees)
}

// Validate performs internal consistency checks: no address may be both live and on the free list,
// and no address may be on the free list twice.
func (a *Allocator) Validate() error {
	seen := swiss.NewMap[memutils.Address, struct{}](uint32(len(a.frees)))
	for _, buf := range a.frees {
		addr := memutils.AddressOf(buf)
		if a.live.Has(addr) {
			return errors.Newf("address %s is both live and on the free list", addr)
		}
		if seen.Has(addr) {
			return errors.Newf("address %s is on the free list more than once", addr)
		}
		seen.Put(addr, struct{}{})
	}

	return nil
}

// Close returns every block on the free list to the system allocator. Live blocks are left alone:
// they belong to callers, and leaving them in place keeps real leaks visible. Close may be called
// more than once.
func (a *Allocator) Close() error {
	var err error
	for _, buf := range a.frees {
		err = errors.CombineErrors(err, a.system.Free(buf))
	}

	a.frees = nil
	return err
}
