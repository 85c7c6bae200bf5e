package system

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// DefaultMmapCutoff is the allocation size at and above which Heap uses anonymous mappings
// instead of the Go heap, on platforms that support them
const DefaultMmapCutoff = 128 * 1024

// Heap allocates small buffers from the Go heap and large buffers from anonymous memory
// mappings. Go heap objects do not move, so a buffer's address is stable for as long as the
// buffer is referenced.
type Heap struct {
	cutoff    int
	allocated int64
}

var _ Allocator = &Heap{}

// NewHeap creates a Heap that maps allocations of at least mmapCutoff bytes. A cutoff of 0 uses
// DefaultMmapCutoff, a negative cutoff never maps.
func NewHeap(mmapCutoff int) *Heap {
	if mmapCutoff == 0 {
		mmapCutoff = DefaultMmapCutoff
	}

	return &Heap{cutoff: mmapCutoff}
}

func (h *Heap) mapped(size int) bool {
	return h.cutoff > 0 && size >= h.cutoff && mmapSupported
}

func (h *Heap) Allocate(size int) ([]byte, error) {
	if size < 0 {
		return nil, errors.Newf("attempted to allocate a negative number of bytes: %d", size)
	}

	if !h.mapped(size) {
		atomic.AddInt64(&h.allocated, int64(size))
		return make([]byte, size), nil
	}

	buf, err := mmapAllocate(size)
	if err != nil {
		return nil, err
	}

	atomic.AddInt64(&h.allocated, int64(mmapFootprint(cap(buf))))
	return buf[:size], nil
}

func (h *Heap) Free(buf []byte) error {
	if !h.mapped(cap(buf)) {
		atomic.AddInt64(&h.allocated, -int64(cap(buf)))
		return nil
	}

	err := mmapFree(buf)
	if err != nil {
		return err
	}

	atomic.AddInt64(&h.allocated, -int64(mmapFootprint(cap(buf))))
	return nil
}

func (h *Heap) Bytes() int64 {
	return atomic.LoadInt64(&h.allocated)
}
