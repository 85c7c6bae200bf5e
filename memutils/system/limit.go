package system

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/dmalloc/memutils"
)

// DefaultMaxAllocationSize is the largest single request a Limit passes on when it is not
// given a MaxAllocationSize. It keeps impossible requests from reaching the Go runtime, which
// aborts the process instead of failing when it cannot satisfy make.
const DefaultMaxAllocationSize = 1 << 30

// Limit wraps an Allocator and refuses requests that are too large, either on their own or
// because they would push the number of held bytes past a budget. Refused requests return an
// error wrapping memutils.ErrOutOfMemory.
type Limit struct {
	Allocator
	// MaxAllocationSize is the largest request that will be passed on. 0 means DefaultMaxAllocationSize.
	MaxAllocationSize int
	// MaxTotalBytes is the largest number of bytes that may be held at once. 0 means no budget.
	MaxTotalBytes int64
}

var _ Allocator = &Limit{}

// NewLimit wraps allocator with the default per-request limit and no total budget
func NewLimit(allocator Allocator) *Limit {
	return &Limit{Allocator: allocator}
}

func (l *Limit) maxAllocationSize() int {
	if l.MaxAllocationSize == 0 {
		return DefaultMaxAllocationSize
	}
	return l.MaxAllocationSize
}

func (l *Limit) Allocate(size int) ([]byte, error) {
	if size > l.maxAllocationSize() {
		return nil, errors.Wrapf(memutils.ErrOutOfMemory, "request for %d bytes exceeds the %d byte allocation limit", size, l.maxAllocationSize())
	}

	if l.MaxTotalBytes > 0 && l.Allocator.Bytes()+int64(size) > l.MaxTotalBytes {
		return nil, errors.Wrapf(memutils.ErrOutOfMemory, "request for %d bytes would exceed the %d byte budget (%d held)", size, l.MaxTotalBytes, l.Allocator.Bytes())
	}

	return l.Allocator.Allocate(size)
}
