package repository

import (
	"context"
	"errors"
	"sync"

	"bookingsync-service/internal/domain/entity"
	"bookingsync-service/internal/domain/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements RecordStore on MongoDB. Each logical collection maps
// to a mongo collection of the same name; ids come from a shared counters
// collection advanced with $inc, and CAS is an update conditioned on the
// stored version field.
//
// The engine serves a single logical inventory from one process, so a small
// commit mutex around write+append keeps feed order equal to commit order
// without a server-side transaction.
type MongoStore struct {
	db       *mongo.Database
	counters *mongo.Collection
	feed     repository.ChangeAppender
	commitMu sync.Mutex
}

// NewMongoStore creates a mongo-backed store publishing to feed.
func NewMongoStore(db *mongo.Database, feed repository.ChangeAppender) *MongoStore {
	return &MongoStore{
		db:       db,
		counters: db.Collection("counters"),
		feed:     feed,
	}
}

// Get returns the record, or repository.ErrNotFound.
func (s *MongoStore) Get(ctx context.Context, collection string, id int64) (entity.Record, error) {
	rec, err := entity.NewRecord(collection)
	if err != nil {
		return nil, err
	}
	err = s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns every record in the collection, ordered by id.
func (s *MongoStore) List(ctx context.Context, collection string) ([]entity.Record, error) {
	if _, err := entity.NewRecord(collection); err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(bson.M{"_id": 1})
	cur, err := s.db.Collection(collection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var recs []entity.Record
	for cur.Next(ctx) {
		rec, err := entity.NewRecord(collection)
		if err != nil {
			return nil, err
		}
		if err := cur.Decode(rec); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, cur.Err()
}

// Create persists the record under the next value of the collection's
// counter. FindOneAndUpdate with $inc is atomic on the server, so two
// concurrent creates always draw distinct ids.
func (s *MongoStore) Create(ctx context.Context, collection string, rec entity.Record) (entity.Record, error) {
	if _, err := entity.NewRecord(collection); err != nil {
		return nil, err
	}

	id, err := s.nextID(ctx, collection)
	if err != nil {
		return nil, err
	}

	stored := rec.Clone()
	meta := stored.GetMeta()
	meta.ID = id
	meta.Version = 1

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	if _, err := s.db.Collection(collection).InsertOne(ctx, stored); err != nil {
		return nil, err
	}
	s.append(entity.ChangeEvent{
		Collection: collection,
		ID:         id,
		Op:         entity.OpCreate,
		Snapshot:   stored.Clone(),
	})
	return stored, nil
}

// CompareAndSwap replaces the document only if the stored version still
// matches the record's.
func (s *MongoStore) CompareAndSwap(ctx context.Context, collection string, rec entity.Record) (entity.Record, error) {
	stored := rec.Clone()
	meta := stored.GetMeta()
	expected := meta.Version
	meta.Version = expected + 1

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	res, err := s.db.Collection(collection).ReplaceOne(
		ctx,
		bson.M{"_id": meta.ID, "version": expected},
		stored,
	)
	if err != nil {
		return nil, err
	}
	if res.MatchedCount == 0 {
		// Distinguish a lost race from a missing record.
		count, err := s.db.Collection(collection).CountDocuments(ctx, bson.M{"_id": meta.ID})
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

func (s *MongoStore) nextID(ctx context.Context, collection string) (int64, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(
		ctx,
		bson.M{"_id": collection},
		bson.M{"$inc": bson.M{"seq": 1}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, err
	}
	return counter.Seq, nil
}

func (s *MongoStore) append(ev entity.ChangeEvent) {
	if s.feed != nil {
		s.feed.Append(ev)
	}
}
