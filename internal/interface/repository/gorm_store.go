package repository

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"

	"bookingsync-service/internal/domain/entity"
	"bookingsync-service/internal/domain/repository"

	"gorm.io/gorm"
)

// createAttempts bounds the collision-checked random id draw. The id space is
// 2^62, so more than a couple of attempts means something is wrong with the
// database, not the draw.
const createAttempts = 5

// recordRow is the single table backing every collection: one row per record,
// the record body as jsonb, the version alongside it for conditional updates.
type recordRow struct {
	Collection string `gorm:"primaryKey;column:collection"`
	ID         int64  `gorm:"primaryKey;column:id"`
	Version    int64  `gorm:"column:version"`
	Data       []byte `gorm:"column:data;type:jsonb"`
}

func (recordRow) TableName() string {
	return "records"
}

// GormStore implements RecordStore on PostgreSQL via gorm. CAS is an UPDATE
// conditioned on the version column; ids are collision-checked random draws
// guarded by the primary key, never derived from the collection size.
//
// The commit mutex keeps feed order equal to commit order, same as the other
// backends; the database itself needs no cross-row transaction.
type GormStore struct {
	db       *gorm.DB
	feed     repository.ChangeAppender
	commitMu sync.Mutex
}

// NewGormStore migrates the records table and returns a postgres-backed
// store publishing to feed. The gorm.DB must be opened with
// TranslateError so duplicate-key violations surface as
// gorm.ErrDuplicatedKey.
func NewGormStore(db *gorm.DB, feed repository.ChangeAppender) (*GormStore, error) {
	if err := db.AutoMigrate(&recordRow{}); err != nil {
		return nil, err
	}
	return &GormStore{db: db, feed: feed}, nil
}

// Get returns the record, or repository.ErrNotFound.
func (s *GormStore) Get(ctx context.Context, collection string, id int64) (entity.Record, error) {
	var row recordRow
	err := s.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeRow(collection, row)
}

// List returns every record in the collection, ordered by id.
func (s *GormStore) List(ctx context.Context, collection string) ([]entity.Record, error) {
	if _, err := entity.NewRecord(collection); err != nil {
		return nil, err
	}
	var rows []recordRow
	err := s.db.WithContext(ctx).
		Where("collection = ?", collection).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	recs := make([]entity.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := decodeRow(collection, row)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Create persists the record under a random id, retrying the draw if the
// primary key already holds it.
func (s *GormStore) Create(ctx context.Context, collection string, rec entity.Record) (entity.Record, error) {
	if _, err := entity.NewRecord(collection); err != nil {
		return nil, err
	}

	stored := rec.Clone()
	meta := stored.GetMeta()
	meta.Version = 1

	for attempt := 0; attempt < createAttempts; attempt++ {
		meta.ID = 1 + rand.Int63n(1<<62)
		data, err := json.Marshal(stored)
		if err != nil {
			return nil, err
		}
		row := recordRow{
			Collection: collection,
			ID:         meta.ID,
			Version:    meta.Version,
			Data:       data,
		}

		s.commitMu.Lock()
		err = s.db.WithContext(ctx).Create(&row).Error
		if err == nil {
			s.append(entity.ChangeEvent{
				Collection: collection,
				ID:         meta.ID,
				Op:         entity.OpCreate,
				Snapshot:   stored.Clone(),
			})
			s.commitMu.Unlock()
			return stored, nil
		}
		s.commitMu.Unlock()

		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
	}
	return nil, repository.ErrConflict
}

// CompareAndSwap updates the row only if the version column still matches.
func (s *GormStore) CompareAndSwap(ctx context.Context, collection string, rec entity.Record) (entity.Record, error) {
	stored := rec.Clone()
	meta := stored.GetMeta()
	expected := meta.Version
	meta.Version = expected + 1

	data, err := json.Marshal(stored)
	if err != nil {
		return nil, err
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	res := s.db.WithContext(ctx).
		Model(&recordRow{}).
		Where("collection = ? AND id = ? AND version = ?", collection, meta.ID, expected).
		Updates(map[string]any{"version": meta.Version, "data": data})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		err := s.db.WithContext(ctx).
			Model(&recordRow{}).
			Where("collection = ? AND id = ?", collection, meta.ID).
			Count(&count).Error
		if err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, repository.ErrNotFound
		}
		return nil, repository.ErrConflict
	}

	s.append(entity.ChangeEvent{
		Collection: collection,
		ID:         meta.ID,
		Op:         entity.OpUpdate,
		Snapshot:   stored.Clone(),
	})
	return stored, nil
}

func decodeRow(collection string, row recordRow) (entity.Record, error) {
	rec, err := entity.NewRecord(collection)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(row.Data, rec); err != nil {
		return nil, err
	}
	meta := rec.GetMeta()
	meta.ID = row.ID
	meta.Version = row.Version
	return rec, nil
}

func (s *GormStore) append(ev entity.ChangeEvent) {
	if s.feed != nil {
		s.feed.Append(ev)
	}
}
