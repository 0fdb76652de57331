package repository

import (
	"context"
	"errors"

	"bookingsync-service/internal/domain/entity"
)

// ErrNotFound is returned when a referenced record id does not exist.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned by CompareAndSwap when the record was modified by
// a concurrent writer since it was read.
var ErrConflict = errors.New("record modified concurrently")

// RecordStore is the single source of truth for all records. Every mutation
// goes through CompareAndSwap; there is no blind overwrite. Each successful
// Create or CompareAndSwap appends exactly one event to the change feed
// before returning, in commit order.
type RecordStore interface {
	// Get returns a copy of the record, or ErrNotFound.
	Get(ctx context.Context, collection string, id int64) (entity.Record, error)

	// List returns copies of every record in the collection, ordered by id.
	List(ctx context.Context, collection string) ([]entity.Record, error)

	// Create persists the record under a store-assigned id that is unique
	// even under concurrent creates, and returns the stored copy.
	Create(ctx context.Context, collection string, rec entity.Record) (entity.Record, error)

	// CompareAndSwap writes the record only if its stored version still
	// equals rec's embedded version, returning ErrConflict otherwise and
	// ErrNotFound if the id is absent. On success the stored version has
	// advanced past rec's.
	CompareAndSwap(ctx context.Context, collection string, rec entity.Record) (entity.Record, error)
}

// ChangeAppender receives one event per committed store write. Append must
// not block: a store calls it while holding its commit lock.
type ChangeAppender interface {
	Append(ev entity.ChangeEvent)
}
