package repository

import (
	"context"
	"sort"
	"sync"

	"bookingsync-service/internal/domain/entity"
	"bookingsync-service/internal/domain/repository"
)

// MemoryStore is the in-process RecordStore. All access is serialized by one
// mutex; records are deep-copied on the way in and out so callers never share
// memory with the canonical copy. Feed events are appended while the commit
// lock is held, which makes feed order equal commit order.
type MemoryStore struct {
	mu     sync.Mutex
	data   map[string]map[int64]entity.Record
	nextID map[string]int64
	feed   repository.ChangeAppender
}

// NewMemoryStore creates an empty in-process store publishing to feed.
func NewMemoryStore(feed repository.ChangeAppender) *MemoryStore {
	return &MemoryStore{
		data:   make(map[string]map[int64]entity.Record),
		nextID: make(map[string]int64),
		feed:   feed,
	}
}

// Get returns a copy of the record, or repository.ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, collection string, id int64) (entity.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.data[collection][id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return rec.Clone(), nil
}

// List returns copies of every record in the collection, ordered by id.
func (s *MemoryStore) List(ctx context.Context, collection string) ([]entity.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := make([]entity.Record, 0, len(s.data[collection]))
	for _, rec := range s.data[collection] {
		recs = append(recs, rec.Clone())
	}
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].GetMeta().ID < recs[j].GetMeta().ID
	})
	return recs, nil
}

// Create persists the record under the collection's next counter value.
// The counter only ever advances under the store lock, so concurrent creates
// can never be handed the same id.
func (s *MemoryStore) Create(ctx context.Context, collection string, rec entity.Record) (entity.Record, error) {
	if _, err := entity.NewRecord(collection); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID[collection]++
	stored := rec.Clone()
	meta := stored.GetMeta()
	meta.ID = s.nextID[collection]
	meta.Version = 1

	if s.data[collection] == nil {
		s.data[collection] = make(map[int64]entity.Record)
	}
	s.data[collection][meta.ID] = stored

	s.append(entity.ChangeEvent{
		Collection: collection,
		ID:         meta.ID,
		Op:         entity.OpCreate,
		Snapshot:   stored.Clone(),
	})
	return stored.Clone(), nil
}

// CompareAndSwap writes the record only if its version is still current.
func (s *MemoryStore) CompareAndSwap(ctx context.Context, collection string, rec entity.Record) (entity.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := rec.GetMeta().ID
	current, ok := s.data[collection][id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if current.GetMeta().Version != rec.GetMeta().Version {
		return nil, repository.ErrConflict
	}

	stored := rec.Clone()
	stored.GetMeta().Version = rec.GetMeta().Version + 1
	s.data[collection][id] = stored

	s.append(entity.ChangeEvent{
		Collection: collection,
		ID:         id,
		Op:         entity.OpUpdate,
		Snapshot:   stored.Clone(),
	})
	return stored.Clone(), nil
}

func (s *MemoryStore) append(ev entity.ChangeEvent) {
	if s.feed != nil {
		s.feed.Append(ev)
	}
}
