package dmalloc

import (
	"sync"

	"github.com/vkngwrapper/dmalloc/memutils/metadata"
)

var (
	defaultOnce      sync.Once
	defaultAllocator *Allocator
)

// Default returns the process-wide allocator behind the package-level functions, creating it with
// default options on first use
func Default() *Allocator {
	defaultOnce.Do(func() {
		allocator, err := New(nil, CreateOptions{})
		if err != nil {
			panic(err)
		}
		defaultAllocator = allocator
	})

	return defaultAllocator
}

// Malloc allocates from the process-wide allocator. See Allocator.Malloc.
func Malloc(size uint64, file string, line int) Address {
	return Default().Malloc(size, file, line)
}

// Calloc allocates zeroed memory from the process-wide allocator. See Allocator.Calloc.
func Calloc(count, elemSize uint64, file string, line int) Address {
	return Default().Calloc(count, elemSize, file, line)
}

// Realloc resizes an allocation made by the process-wide allocator. See Allocator.Realloc.
func Realloc(addr Address, newSize uint64, file string, line int) Address {
	return Default().Realloc(addr, newSize, file, line)
}

// Free releases an allocation made by the process-wide allocator. See Allocator.Free.
func Free(addr Address, file string, line int) {
	Default().Free(addr, file, line)
}

// MallocHere is Malloc with the caller's source location as the call site
func MallocHere(size uint64) Address {
	site := metadata.CallerSite(1)
	return Default().Malloc(size, site.File, site.Line)
}

// CallocHere is Calloc with the caller's source location as the call site
func CallocHere(count, elemSize uint64) Address {
	site := metadata.CallerSite(1)
	return Default().Calloc(count, elemSize, site.File, site.Line)
}

// ReallocHere is Realloc with the caller's source location as the call site
func ReallocHere(addr Address, newSize uint64) Address {
	site := metadata.CallerSite(1)
	return Default().Realloc(addr, newSize, site.File, site.Line)
}

// FreeHere is Free with the caller's source location as the call site
func FreeHere(addr Address) {
	site := metadata.CallerSite(1)
	Default().Free(addr, site.File, site.Line)
}

// Bytes returns the contents of a live allocation made by the process-wide allocator
func Bytes(addr Address) []byte {
	return Default().Bytes(addr)
}

// GetStatistics returns the process-wide allocator's counters
func GetStatistics() Statistics {
	return Default().Statistics()
}

// PrintStatistics writes the process-wide allocator's counters to standard output
func PrintStatistics() {
	Default().PrintStatistics()
}

// PrintLeakReport writes every live allocation of the process-wide allocator to standard output
func PrintLeakReport() {
	Default().PrintLeakReport()
}

// Shutdown tears down the process-wide allocator; call it as the process exits. Live allocations are
// reported and left alone, recycled memory is returned to the system.
func Shutdown() error {
	return Default().Close()
}
