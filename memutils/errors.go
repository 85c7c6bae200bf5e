package memutils

import "github.com/pkg/errors"

// ErrOutOfMemory is the error returned from a system allocator when it refuses to hand out memory
var ErrOutOfMemory error = errors.New("out of memory")

// ErrSizeOverflow is the error returned when a byte count cannot be represented
var ErrSizeOverflow error = errors.New("allocation size overflows the addressable range")

// ErrGuardBytes is the error returned when a guard byte count is not a multiple of 4
var ErrGuardBytes error = errors.New("guard bytes must be a non-negative multiple of 4")
