//go:build debug_mem_utils

package memutils

const (
	// DebugMargin is the default number of guard bytes placed after each allocation by the debugging
	// allocator. Allocators may override it through their options.
	DebugMargin int = 16
)

// DebugValidate will call Validate on the provided object and panics if any errors are returned. This
// method no-ops unless the debug_mem_utils build tag is present
func DebugValidate(validatable Validatable) {
	err := validatable.Validate()
	if err != nil {
		panic(err)
	}
}
