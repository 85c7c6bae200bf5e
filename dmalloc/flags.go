package dmalloc

import "strings"

// CreateFlags indicate specific allocator behaviors to activate or deactivate
type CreateFlags int32

const (
	// AllocatorCreateExternallySynchronized ensures that this allocator will not be synchronized
	// internally. The consumer must guarantee it is used from only one goroutine at a time or is
	// synchronized by some other mechanism.
	AllocatorCreateExternallySynchronized CreateFlags = 1 << iota
	// AllocatorCreateDirectRelease puts the base allocator in pass-through mode: released blocks go
	// straight back to the system allocator and addresses are never deliberately recycled.
	AllocatorCreateDirectRelease
)

var createFlagsMapping = []struct {
	flag CreateFlags
	name string
}{
	{AllocatorCreateExternallySynchronized, "AllocatorCreateExternallySynchronized"},
	{AllocatorCreateDirectRelease, "AllocatorCreateDirectRelease"},
}

func (f CreateFlags) String() string {
	if f == 0 {
		return "None"
	}

	var names []string
	for _, mapping := range createFlagsMapping {
		if f&mapping.flag != 0 {
			names = append(names, mapping.name)
			f &^= mapping.flag
		}
	}

	if f != 0 {
		names = append(names, "Unknown")
	}

	return strings.Join(names, "|")
}
