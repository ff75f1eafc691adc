// Package mongostore is the MongoDB document backend. Documents are kept as
// {_id, version, data} so the version can be compared atomically.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"memorabilia-service/internal/docstore"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

type record struct {
	ID      string `bson:"_id"`
	Version int64  `bson:"version"`
	Data    bson.M `bson:"data"`
}

// Connect opens a client and selects the database
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	return &Store{client: client, db: client.Database(database)}, nil
}

// Close disconnects the client
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping checks connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	var rec record
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return docstore.Document{}, fmt.Errorf("get %s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	if err != nil {
		return docstore.Document{}, err
	}
	return rec.document(), nil
}

func (s *Store) Query(ctx context.Context, collection string, filters []docstore.Filter, order *docstore.Order) ([]docstore.Document, error) {
	filter := bson.M{}
	for _, f := range filters {
		filter["data."+f.Field] = toBSON(f.Value)
	}

	opts := options.Find()
	if order != nil {
		dir := 1
		if order.Descending {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: "data." + order.Field, Value: dir}, {Key: "_id", Value: 1}})
	} else {
		opts.SetSort(bson.D{{Key: "_id", Value: 1}})
	}

	cur, err := s.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var recs []record
	if err := cur.All(ctx, &recs); err != nil {
		return nil, err
	}

	docs := make([]docstore.Document, 0, len(recs))
	for _, rec := range recs {
		docs = append(docs, rec.document())
	}
	return docs, nil
}

func (s *Store) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := uuid.New().String()
	_, err := s.db.Collection(collection).InsertOne(ctx, bson.M{
		"_id":     id,
		"version": int64(1),
		"data":    toBSON(data),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create document: %w", err)
	}
	return id, nil
}

func (s *Store) CreateWithID(ctx context.Context, collection, id string, data map[string]any) error {
	_, err := s.db.Collection(collection).InsertOne(ctx, bson.M{
		"_id":     id,
		"version": int64(1),
		"data":    toBSON(data),
	})
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("create %s/%s: %w", collection, id, docstore.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, collection, id string, partial map[string]any) error {
	set := bson.M{}
	for k, v := range partial {
		set["data."+k] = toBSON(v)
	}

	update := bson.M{"$inc": bson.M{"version": int64(1)}}
	if len(set) > 0 {
		update["$set"] = set
	}

	res, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("update %s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("delete %s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	return nil
}

func (s *Store) ConditionalUpdate(ctx context.Context, collection, id string, expectedVersion int64, data map[string]any) error {
	coll := s.db.Collection(collection)
	res, err := coll.UpdateOne(ctx,
		bson.M{"_id": id, "version": expectedVersion},
		bson.M{
			"$set": bson.M{"data": toBSON(data)},
			"$inc": bson.M{"version": int64(1)},
		})
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("conditional update %s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	return fmt.Errorf("conditional update %s/%s at version %d: %w", collection, id, expectedVersion, docstore.ErrConflict)
}

func (r record) document() docstore.Document {
	data, _ := fromBSON(r.Data).(map[string]any)
	if data == nil {
		data = map[string]any{}
	}
	return docstore.Document{ID: r.ID, Version: r.Version, Data: data}
}

// toBSON converts values the driver cannot marshal directly
func toBSON(v any) any {
	switch t := v.(type) {
	case *time.Time:
		if t == nil {
			return nil
		}
		return primitive.NewDateTimeFromTime(*t)
	case time.Time:
		return primitive.NewDateTimeFromTime(t)
	case map[string]any:
		out := bson.M{}
		for k, item := range t {
			out[k] = toBSON(item)
		}
		return out
	case []map[string]any:
		out := bson.A{}
		for _, item := range t {
			out = append(out, toBSON(item))
		}
		return out
	case []any:
		out := bson.A{}
		for _, item := range t {
			out = append(out, toBSON(item))
		}
		return out
	case fmt.Stringer:
		return t.String()
	default:
		return v
	}
}

// fromBSON flattens driver container types into plain maps and slices.
// primitive.DateTime is left as is and normalized by the readers.
func fromBSON(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = fromBSON(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = fromBSON(item)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = fromBSON(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = fromBSON(item)
		}
		return out
	default:
		return v
	}
}
