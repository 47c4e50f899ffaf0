package storage

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record was modified concurrently")
)

// Storage keeps lease records as opaque payloads addressed by a dense,
// zero-based id. Append assigns the next id; ids are never reused.
//
// Get returns the record with its current version. Put only succeeds while
// the stored version still equals the one passed in, otherwise it fails
// with ErrConflict.
type Storage interface {
	Append(ctx context.Context, data []byte) (uint64, error)
	Get(ctx context.Context, id uint64) ([]byte, uint64, error)
	Put(ctx context.Context, id uint64, data []byte, version uint64) error
	Count(ctx context.Context) (uint64, error)
	Close() error
}
