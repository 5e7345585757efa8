package store

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type mongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	closed atomic.Bool
}

// mongoRecord adds the _id the driver needs to ContactMessage.
type mongoRecord struct {
	ID             primitive.ObjectID `bson:"_id"`
	ContactMessage `bson:",inline"`
}

func openMongo(ctx context.Context, cfg Config) (*mongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.DSN))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	name := cfg.Name
	if name == "" {
		name = "dojod"
	}
	coll := client.Database(name).Collection(table)
	if cfg.Migrate {
		_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: "created_at", Value: 1}},
		})
		if err != nil {
			client.Disconnect(context.Background())
			return nil, fmt.Errorf("mongo index: %w", err)
		}
	}
	return &mongoStore{client: client, coll: coll}, nil
}

func (s *mongoStore) CreateContactMessage(ctx context.Context, m *ContactMessage) error {
	if s.closed.Load() {
		return ErrClosed
	}
	rec := mongoRecord{ID: primitive.NewObjectID(), ContactMessage: *m}
	rec.CreatedAt = now().Truncate(time.Millisecond)
	if _, err := s.coll.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("mongo insert: %w", err)
	}
	m.ID = rec.ID.Hex()
	m.CreatedAt = rec.CreatedAt
	return nil
}

func (s *mongoStore) ContactMessages(ctx context.Context) ([]ContactMessage, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo find: %w", err)
	}
	defer cur.Close(ctx)

	var out []ContactMessage
	for cur.Next(ctx) {
		var rec mongoRecord
		if err := cur.Decode(&rec); err != nil {
			return nil, fmt.Errorf("mongo decode: %w", err)
		}
		m := rec.ContactMessage
		m.ID = rec.ID.Hex()
		m.CreatedAt = m.CreatedAt.UTC()
		out = append(out, m)
	}
	return out, cur.Err()
}

func (s *mongoStore) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *mongoStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
