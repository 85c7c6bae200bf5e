package memutils

import (
	"fmt"
	"io"
)

// Statistics is a snapshot of an allocator's counters. Counts and sizes are cumulative except for
// ActiveCount and ActiveSize, which fall again when allocations are released.
type Statistics struct {
	// ActiveCount is the number of allocations that are currently live
	ActiveCount uint64
	// TotalCount is the number of successful allocations ever made
	TotalCount uint64
	// FailCount is the number of allocation attempts that were refused
	FailCount uint64

	// ActiveSize is the number of bytes in live allocations
	ActiveSize uint64
	// TotalSize is the number of bytes ever successfully allocated
	TotalSize uint64
	// FailSize is the number of bytes requested by refused allocation attempts
	FailSize uint64

	// HeapMin is the lowest address ever returned by the allocator
	HeapMin Address
	// HeapMax is one past the highest byte of any allocation ever returned by the allocator
	HeapMax Address
}

func (s *Statistics) Clear() {
	*s = Statistics{}
}

// AddAllocation records a successful allocation of size bytes at addr
func (s *Statistics) AddAllocation(addr Address, size uint64) {
	s.ActiveCount++
	s.TotalCount++
	s.ActiveSize += size
	s.TotalSize += size

	end := addr.Add(size)
	if s.HeapMin == NullAddress || addr < s.HeapMin {
		s.HeapMin = addr
	}
	if end > s.HeapMax {
		s.HeapMax = end
	}
}

// AddFailure records a refused allocation attempt of size bytes
func (s *Statistics) AddFailure(size uint64) {
	s.FailCount++
	s.FailSize += size
}

// RemoveAllocation records the release of a live allocation of size bytes
func (s *Statistics) RemoveAllocation(size uint64) {
	s.ActiveCount--
	s.ActiveSize -= size
}

// InHeap reports whether addr lies within [HeapMin, HeapMax)
func (s *Statistics) InHeap(addr Address) bool {
	return s.TotalCount > 0 && addr >= s.HeapMin && addr < s.HeapMax
}

// Fprint writes the counters in the two-line layout consumed by output-comparison harnesses
func (s *Statistics) Fprint(w io.Writer) error {
	_, err := fmt.Fprintf(w, "alloc count: active %10d   total %10d   fail %10d\n",
		s.ActiveCount, s.TotalCount, s.FailCount)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "alloc size:  active %10d   total %10d   fail %10d\n",
		s.ActiveSize, s.TotalSize, s.FailSize)
	return err
}
