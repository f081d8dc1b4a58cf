//go:build !debug_mem_utils

package memutils

func DebugValidate(v Validator) {}

func DebugCheckPow2[T Number](value T, name string) {}
