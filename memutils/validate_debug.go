//go:build debug_mem_utils

package memutils

// DebugValidate panics if v fails its consistency check. It only runs in builds with the debug_mem_utils
// tag; allocators call it after every operation that changes their layout.
func DebugValidate(v Validator) {
	err := v.Validate()
	if err != nil {
		panic(err)
	}
}

// DebugCheckPow2 panics if value is not a power of two. It only runs in builds with the debug_mem_utils tag.
func DebugCheckPow2[T Number](value T, name string) {
	err := CheckPow2[T](value, name)
	if err != nil {
		panic(err)
	}
}
