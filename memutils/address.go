package memutils

import (
	"fmt"
	"unsafe"
)

// Address is the location of a byte in the process address space. Addresses handed out by the
// allocators in this module are the address of the first byte of an allocation.
type Address uintptr

// NullAddress is the address that is never handed out by an allocator. Releasing it is always a no-op.
const NullAddress Address = 0

// AddressOf returns the address of the first element of buf's backing array. A nil slice has the
// address NullAddress.
func AddressOf(buf []byte) Address {
	return Address(unsafe.Pointer(unsafe.SliceData(buf)))
}

// Add returns the address offset bytes past a
func (a Address) Add(offset uint64) Address {
	return a + Address(offset)
}

func (a Address) String() string {
	return fmt.Sprintf("0x%x", uintptr(a))
}
