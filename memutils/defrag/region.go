package defrag

import "github.com/evekit/ramg/memutils/metadata"

// Region is the memory object a MetadataDefragContext compacts. T is the consumer's own allocation type.
type Region[T any] interface {
	// Metadata returns the bookkeeping for the region. Allocations made by the context carry the context
	// itself as their user data.
	Metadata() metadata.BlockMetadata
	// MoveDataForUserData maps the user data of a live allocation back to the consumer's allocation. It
	// returns false if the allocation must not be relocated.
	MoveDataForUserData(userData any) (T, bool)
}
