//go:build !unix

package system

import "github.com/cockroachdb/errors"

const mmapSupported = false

func mmapFootprint(size int) int {
	return size
}

func mmapAllocate(size int) ([]byte, error) {
	return nil, errors.New("anonymous mappings are not supported on this platform")
}

func mmapFree(buf []byte) error {
	return errors.New("anonymous mappings are not supported on this platform")
}
