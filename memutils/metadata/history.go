package metadata

import (
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/dmalloc/memutils"
)

// FreedBlock is a record of a block that was released
type FreedBlock struct {
	Address memutils.Address
	Size    uint64
	// Site is where the block was allocated
	Site Site
	// FreedAt is where the block was released
	FreedAt Site
}

// FreedHistory remembers a bounded number of recently released blocks, so that a second release of the
// same address can be told apart from the release of an address that was never handed out. When the
// history is full, the oldest record is forgotten.
type FreedHistory struct {
	ring  []FreedBlock
	valid []bool
	next  int
	index *swiss.Map[memutils.Address, int]
}

// NewFreedHistory creates a FreedHistory that keeps up to capacity records. A capacity of 0 keeps
// nothing.
func NewFreedHistory(capacity int) *FreedHistory {
	if capacity < 0 {
		capacity = 0
	}

	return &FreedHistory{
		ring:  make([]FreedBlock, capacity),
		valid: make([]bool, capacity),
		index: swiss.NewMap[memutils.Address, int](uint32(capacity)),
	}
}

// Capacity returns the maximum number of records kept
func (h *FreedHistory) Capacity() int {
	return len(h.ring)
}

// Len returns the number of records currently kept
func (h *FreedHistory) Len() int {
	return h.index.Count()
}

// Add records a released block, replacing any older record for the same address
func (h *FreedHistory) Add(freed FreedBlock) {
	if len(h.ring) == 0 {
		return
	}

	h.Forget(freed.Address)

	if h.valid[h.next] {
		h.index.Delete(h.ring[h.next].Address)
	}

	h.ring[h.next] = freed
	h.valid[h.next] = true
	h.index.Put(freed.Address, h.next)
	h.next = (h.next + 1) % len(h.ring)
}

// Lookup retrieves the record for a released block that started at addr
func (h *FreedHistory) Lookup(addr memutils.Address) (FreedBlock, bool) {
	slot, ok := h.index.Get(addr)
	if !ok {
		return FreedBlock{}, false
	}

	return h.ring[slot], true
}

// Forget drops the record for addr, if any. It is called when addr is handed out again.
func (h *FreedHistory) Forget(addr memutils.Address) {
	slot, ok := h.index.Get(addr)
	if !ok {
		return
	}

	h.index.Delete(addr)
	h.valid[slot] = false
	h.ring[slot] = FreedBlock{}
}
