package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore is a store backed by one MongoDB collection. Each entry is a
// document keyed by "<prefix>:<key>" with the value kept as JSON text, so
// reads return the same shapes as the other persistent backends.
type MongoStore struct {
	coll   *mongo.Collection
	prefix string
}

type mongoEntryDoc struct {
	ID        string    `bson:"_id"`
	Prefix    string    `bson:"prefix"`
	Key       string    `bson:"key"`
	Value     string    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// NewMongoStore creates a Mongo-backed store.
// dbName defaults to "pocketflow" if empty, collName defaults to "store".
func NewMongoStore(client *mongo.Client, dbName, collName, prefix string) *MongoStore {
	if dbName == "" {
		dbName = "pocketflow"
	}
	if collName == "" {
		collName = "store"
	}
	return &MongoStore{
		coll:   client.Database(dbName).Collection(collName),
		prefix: prefixOrDefault(prefix),
	}
}

func (s *MongoStore) id(key string) string {
	return s.prefix + ":" + key
}

func (s *MongoStore) Set(ctx context.Context, key string, value any) error {
	encoded, err := EncodeValue(value)
	if err != nil {
		return err
	}
	update := bson.M{
		"$set": bson.M{
			"prefix":     s.prefix,
			"key":        key,
			"value":      encoded,
			"updated_at": time.Now().UTC(),
		},
	}
	_, err = s.coll.UpdateOne(ctx, bson.M{"_id": s.id(key)}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo upsert %q: %w", key, err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, key string) (any, bool, error) {
	var doc mongoEntryDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": s.id(key)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("mongo find %q: %w", key, err)
	}
	v, err := DecodeValue(doc.Value)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *MongoStore) Remove(ctx context.Context, key string) (any, bool, error) {
	var doc mongoEntryDoc
	err := s.coll.FindOneAndDelete(ctx, bson.M{"_id": s.id(key)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("mongo delete %q: %w", key, err)
	}
	v, err := DecodeValue(doc.Value)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *MongoStore) ContainsKey(ctx context.Context, key string) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"_id": s.id(key)}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("mongo count %q: %w", key, err)
	}
	return n > 0, nil
}

func (s *MongoStore) Keys(ctx context.Context) ([]string, error) {
	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := s.coll.Find(ctx, bson.M{"prefix": s.prefix}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo find keys: %w", err)
	}
	defer cur.Close(ctx)

	keys := make([]string, 0)
	for cur.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo decode key: %w", err)
		}
		keys = append(keys, strings.TrimPrefix(doc.ID, s.prefix+":"))
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("mongo find keys: %w", err)
	}
	return keys, nil
}

func (s *MongoStore) Clear(ctx context.Context) error {
	if _, err := s.coll.DeleteMany(ctx, bson.M{"prefix": s.prefix}); err != nil {
		return fmt.Errorf("mongo clear: %w", err)
	}
	return nil
}

func (s *MongoStore) Len(ctx context.Context) (int, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"prefix": s.prefix})
	if err != nil {
		return 0, fmt.Errorf("mongo count: %w", err)
	}
	return int(n), nil
}
