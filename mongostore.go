package distill

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoCloseTimeout = 5 * time.Second

// MongoStore is a MetadataStore backed by a MongoDB collection. Records are
// stored one document per cache entry with an index on the identity triple
// and on last_accessed for eviction scans.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoStore connects to MongoDB and returns a store over the named
// collection.
func NewMongoStore(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}
	if database == "" {
		return nil, errors.New("mongo database name is required")
	}
	if collection == "" {
		return nil, errors.New("mongo collection name is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

// NewMongoStoreWithCollection wraps an existing collection handle. The caller
// keeps ownership of the client.
func NewMongoStoreWithCollection(collection *mongo.Collection) *MongoStore {
	return &MongoStore{collection: collection}
}

// EnsureIndexes creates the identity and LRU indexes.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "checksum", Value: 1},
				{Key: "engine", Value: 1},
				{Key: "options_hash", Value: 1},
			},
			Options: options.Index().SetName("identity").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "last_accessed", Value: 1}},
			Options: options.Index().SetName("last_accessed"),
		},
		{
			Keys:    bson.D{{Key: "file_uri", Value: 1}},
			Options: options.Index().SetName("file_uri"),
		},
	}
	_, err := s.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// Find implements the MetadataStore interface.
func (s *MongoStore) Find(ctx context.Context, filter RecordFilter, opts FindOptions) ([]Record, error) {
	findOpts := options.Find()
	if opts.SortByLastAccessed {
		findOpts.SetSort(bson.D{{Key: "last_accessed", Value: 1}})
	}
	cursor, err := s.collection.Find(ctx, filterToBSON(filter), findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []Record
	for cursor.Next(ctx) {
		var rec Record
		if err := cursor.Decode(&rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, cursor.Err()
}

// FindOne implements the MetadataStore interface.
func (s *MongoStore) FindOne(ctx context.Context, filter RecordFilter) (Record, bool, error) {
	var rec Record
	err := s.collection.FindOne(ctx, filterToBSON(filter)).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

// InsertOne implements the MetadataStore interface.
func (s *MongoStore) InsertOne(ctx context.Context, rec Record) error {
	_, err := s.collection.InsertOne(ctx, rec)
	return err
}

// UpdateOne implements the MetadataStore interface.
func (s *MongoStore) UpdateOne(ctx context.Context, filter RecordFilter, update RecordUpdate) error {
	_, err := s.collection.UpdateOne(ctx, filterToBSON(filter), updateToBSON(update))
	return err
}

// UpdateMany implements the MetadataStore interface.
func (s *MongoStore) UpdateMany(ctx context.Context, filter RecordFilter, update RecordUpdate) (int64, error) {
	res, err := s.collection.UpdateMany(ctx, filterToBSON(filter), updateToBSON(update))
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// DeleteMany implements the MetadataStore interface.
func (s *MongoStore) DeleteMany(ctx context.Context, filter RecordFilter) (int64, error) {
	res, err := s.collection.DeleteMany(ctx, filterToBSON(filter))
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// Close releases the underlying client, if this store owns one.
func (s *MongoStore) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), mongoCloseTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// filterToBSON translates a RecordFilter into a Mongo filter document.
func filterToBSON(f RecordFilter) bson.M {
	filter := bson.M{}
	if f.Checksum != nil {
		filter["checksum"] = *f.Checksum
	}
	if f.Engine != nil {
		filter["engine"] = *f.Engine
	}
	if f.OptionsHash != nil {
		filter["options_hash"] = *f.OptionsHash
	}
	if f.FileURI != nil {
		filter["file_uri"] = *f.FileURI
	}
	return filter
}

// updateToBSON translates a RecordUpdate into a $set document.
func updateToBSON(u RecordUpdate) bson.M {
	set := bson.M{}
	if u.LastAccessed != nil {
		set["last_accessed"] = *u.LastAccessed
	}
	if u.FileURI != nil {
		set["file_uri"] = *u.FileURI
	}
	if u.CacheLocation != nil {
		set["cache_location"] = *u.CacheLocation
	}
	if u.SizeBytes != nil {
		set["size_bytes"] = *u.SizeBytes
	}
	return bson.M{"$set": set}
}
