package entity

import "fmt"

// Collection names as persisted by the record store.
const (
	CollectionUsers     = "users"
	CollectionCities    = "cities"
	CollectionAircrafts = "aircrafts"
	CollectionFlights   = "flights"
	CollectionBookings  = "bookedFlights"
)

// Meta carries the identity and concurrency token shared by every record.
// Version is store-internal: it advances on every committed write and is
// compared by CompareAndSwap to detect concurrent modification.
type Meta struct {
	ID      int64 `json:"id" bson:"_id"`
	Version int64 `json:"-" bson:"version"`
}

// GetMeta exposes the embedded Meta so the store can read and stamp
// id/version without knowing the concrete record type.
func (m *Meta) GetMeta() *Meta {
	return m
}

// Record is a typed, identifiable unit of persisted state.
type Record interface {
	GetMeta() *Meta
	Clone() Record
}

// NewRecord returns an empty record of the concrete type persisted in the
// given collection, for stores that decode from a serialized form.
func NewRecord(collection string) (Record, error) {
	switch collection {
	case CollectionUsers:
		return &User{}, nil
	case CollectionCities:
		return &City{}, nil
	case CollectionAircrafts:
		return &Aircraft{}, nil
	case CollectionFlights:
		return &Flight{}, nil
	case CollectionBookings:
		return &Booking{}, nil
	default:
		return nil, fmt.Errorf("unknown collection %q", collection)
	}
}
