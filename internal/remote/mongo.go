package remote

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const opTimeout = 10 * time.Second

// MongoStore implements Store on a MongoDB database, one collection per
// synced collection name.
type MongoStore struct {
	db *mongo.Database
}

func NewMongoStore(db *mongo.Database) *MongoStore { return &MongoStore{db: db} }

func (s *MongoStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := s.db.Client().Ping(ctx, readpref.Primary()); err != nil {
		return classify(err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc Document
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	return &doc, nil
}

func (s *MongoStore) Upsert(ctx context.Context, collection string, doc Document) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter := bson.M{"_id": doc.ID}
	update := bson.M{"$set": bson.M{
		"revision":   doc.Revision,
		"updated_at": doc.UpdatedAt,
		"device_id":  doc.DeviceID,
		"deleted":    doc.Deleted,
		"data":       doc.Data,
	}}
	opts := options.Update().SetUpsert(true)
	if _, err := s.db.Collection(collection).UpdateOne(ctx, filter, update, opts); err != nil {
		return classify(err)
	}
	return nil
}

func (s *MongoStore) ListChangedSince(ctx context.Context, collection string, since time.Time, deviceID string) ([]Document, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter := bson.M{
		"updated_at": bson.M{"$gt": since},
		"device_id":  bson.M{"$ne": deviceID},
	}
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: 1}})
	cur, err := s.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, classify(err)
	}
	defer cur.Close(ctx)

	var docs []Document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, classify(err)
	}
	return docs, nil
}

func (s *MongoStore) CountChangedSince(ctx context.Context, collection string, since time.Time, deviceID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter := bson.M{
		"updated_at": bson.M{"$gt": since},
		"device_id":  bson.M{"$ne": deviceID},
	}
	n, err := s.db.Collection(collection).CountDocuments(ctx, filter)
	if err != nil {
		return 0, classify(err)
	}
	return int(n), nil
}
