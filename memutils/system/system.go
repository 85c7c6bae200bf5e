// Package system contains the allocators that hand out memory from outside the debugging layers:
// the Go heap for ordinary sizes, anonymous mappings for large ones, and a wrapper that refuses
// requests past configured limits.
package system

//go:generate mockgen -destination=mocks/allocator.go -package=mocks github.com/vkngwrapper/dmalloc/memutils/system Allocator

// Allocator is the underlying source of memory for the allocators in this module
type Allocator interface {
	// Allocate returns a zeroed buffer of exactly size bytes, or an error if the memory cannot be
	// provided
	Allocate(size int) ([]byte, error)
	// Free returns a buffer previously returned from Allocate. The buffer may have been resliced, but
	// its capacity must be unchanged.
	Free(buf []byte) error
	// Bytes returns the number of bytes currently held from this allocator
	Bytes() int64
}
