package domain

import "context"

// IndexRegistry is the persisted lowercased-address to derivation-index
// map. It is strictly a write-through cache in front of the authoritative
// deterministic derivation: scan results rebuild it, they are never a
// source of truth. Entries are inserted by the issuer and merged by
// healing scans; they are never deleted, so a retired index can never be
// handed out again.
type IndexRegistry interface {
	Lookup(ctx context.Context, address string) (uint32, bool, error)
	Put(ctx context.Context, address string, index uint32) error
	// Merge adds every mapping that is not already present. Existing
	// entries are never overwritten, making concurrent merges commutative
	// and idempotent.
	Merge(ctx context.Context, mappings map[string]uint32) error
	MaxIndex(ctx context.Context) (uint32, bool, error)
	All(ctx context.Context) (map[string]uint32, error)
}
