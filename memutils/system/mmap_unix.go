//go:build unix

package system

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/dmalloc/memutils"
	"golang.org/x/sys/unix"
)

const mmapSupported = true

var pageSize = uint(unix.Getpagesize())

// mmapFootprint is the number of bytes a mapping of size bytes actually occupies
func mmapFootprint(size int) int {
	return memutils.AlignUp(size, pageSize)
}

func mmapAllocate(size int) ([]byte, error) {
	buf, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to map %d bytes", size)
	}

	return buf, nil
}

func mmapFree(buf []byte) error {
	err := unix.Munmap(buf[:cap(buf)])
	if err != nil {
		return errors.Wrapf(err, "failed to unmap %d bytes", cap(buf))
	}

	return nil
}
