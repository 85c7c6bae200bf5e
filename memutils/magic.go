package memutils

import "encoding/binary"

const (
	// corruptionDetectionMagicValue is a 4-byte pattern that is copied into the guard bytes placed
	// after each allocation
	corruptionDetectionMagicValue uint32 = 0x7F84E666
	magicValueSize                       = 4
)

// WriteMagicValue fills guard with an easy-to-identify marker. Trailing bytes that do not make up a
// whole marker are left alone.
func WriteMagicValue(guard []byte) {
	for len(guard) >= magicValueSize {
		binary.LittleEndian.PutUint32(guard, corruptionDetectionMagicValue)
		guard = guard[magicValueSize:]
	}
}

// ValidateMagicValue verifies that the marker written by WriteMagicValue is still present.
// It returns true if the value is still present and false otherwise.
func ValidateMagicValue(guard []byte) bool {
	for len(guard) >= magicValueSize {
		if binary.LittleEndian.Uint32(guard) != corruptionDetectionMagicValue {
			return false
		}
		guard = guard[magicValueSize:]
	}

	return true
}
