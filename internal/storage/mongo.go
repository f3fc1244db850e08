package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/recordbase/recordbase/internal/record"
)

const mongoOpTimeout = 5 * time.Second

// MongoStore implements the contract over MongoDB. One Mongo document per
// record, keyed by (collection, recordId), plus a registry collection so
// empty record collections still show up in stats. Selected only by an
// explicit storage-type override; it never takes part in failover.
type MongoStore struct {
	client   *mongo.Client
	database string
	uri      string
	timeout  time.Duration

	records  *mongo.Collection
	registry *mongo.Collection
}

// mongoRecord is the persisted shape: the schema-less record nested under a
// fixed key so its fields cannot clash with ours.
type mongoRecord struct {
	Collection string        `bson:"collection"`
	RecordID   string        `bson:"recordId"`
	Record     record.Record `bson:"record"`
}

// NewMongoStore creates a mongo backend for the given URI and database.
// Call Init before first use; Init establishes the connection.
func NewMongoStore(uri, database string, timeout time.Duration) *MongoStore {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MongoStore{uri: uri, database: database, timeout: timeout}
}

func (s *MongoStore) Type() string { return TypeMongo }

// Init connects, pings, ensures indexes and seeds the collection registry.
// Safe to call twice: the second call reuses the existing connection.
func (s *MongoStore) Init() error {
	if s.client != nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(s.uri))
	if err != nil {
		return &InitError{Backend: TypeMongo, Err: fmt.Errorf("connect: %w", err)}
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return &InitError{Backend: TypeMongo, Err: fmt.Errorf("ping: %w", err)}
	}
	s.client = client
	s.records = client.Database(s.database).Collection("records")
	s.registry = client.Database(s.database).Collection("collections")

	idx := mongo.IndexModel{
		Keys:    bson.D{{Key: "collection", Value: 1}, {Key: "recordId", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := s.records.Indexes().CreateOne(ctx, idx); err != nil {
		return &InitError{Backend: TypeMongo, Err: fmt.Errorf("ensure index: %w", err)}
	}
	for _, name := range record.DefaultCollections {
		if err := s.registerCollection(ctx, name); err != nil {
			return &InitError{Backend: TypeMongo, Err: err}
		}
	}
	return nil
}

// Close disconnects the client. Not part of the Store contract; main calls
// it on shutdown.
func (s *MongoStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) registerCollection(ctx context.Context, name string) error {
	_, err := s.registry.UpdateOne(ctx,
		bson.M{"name": name},
		bson.M{"$set": bson.M{"name": name}},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("register collection %q: %w", name, err)
	}
	return nil
}

func (s *MongoStore) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), mongoOpTimeout)
}

func (s *MongoStore) GetCollection(name string) ([]record.Record, error) {
	ctx, cancel := s.opCtx()
	defer cancel()
	opts := options.Find().SetSort(bson.D{{Key: "record.createdAt", Value: 1}, {Key: "recordId", Value: 1}})
	cur, err := s.records.Find(ctx, bson.M{"collection": name}, opts)
	if err != nil {
		return nil, &PersistenceError{Backend: TypeMongo, Op: "getCollection", Err: err}
	}
	defer cur.Close(ctx)
	out := []record.Record{}
	for cur.Next(ctx) {
		var mr mongoRecord
		if err := cur.Decode(&mr); err != nil {
			return nil, &PersistenceError{Backend: TypeMongo, Op: "getCollection", Err: err}
		}
		out = append(out, mr.Record)
	}
	if err := cur.Err(); err != nil {
		return nil, &PersistenceError{Backend: TypeMongo, Op: "getCollection", Err: err}
	}
	return out, nil
}

func (s *MongoStore) GetRecord(name, id string) (record.Record, error) {
	ctx, cancel := s.opCtx()
	defer cancel()
	var mr mongoRecord
	err := s.records.FindOne(ctx, bson.M{"collection": name, "recordId": id}).Decode(&mr)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, &PersistenceError{Backend: TypeMongo, Op: "getRecord", Err: err}
	}
	return mr.Record, nil
}

func (s *MongoStore) CreateRecord(name string, data record.Record) (record.Record, error) {
	ctx, cancel := s.opCtx()
	defer cancel()
	stored := record.New(data)
	mr := mongoRecord{Collection: name, RecordID: stored.ID(), Record: stored}
	if _, err := s.records.InsertOne(ctx, mr); err != nil {
		return nil, &PersistenceError{Backend: TypeMongo, Op: "createRecord", Err: err}
	}
	if err := s.registerCollection(ctx, name); err != nil {
		return nil, &PersistenceError{Backend: TypeMongo, Op: "createRecord", Err: err}
	}
	return stored, nil
}

func (s *MongoStore) UpdateRecord(name, id string, patch record.Record) (record.Record, error) {
	existing, err := s.GetRecord(name, id)
	if err != nil {
		return nil, err
	}
	updated := existing.ApplyPatch(patch)

	ctx, cancel := s.opCtx()
	defer cancel()
	res, err := s.records.UpdateOne(ctx,
		bson.M{"collection": name, "recordId": id},
		bson.M{"$set": bson.M{"record": updated}})
	if err != nil {
		return nil, &PersistenceError{Backend: TypeMongo, Op: "updateRecord", Err: err}
	}
	if res.MatchedCount == 0 {
		return nil, ErrNotFound
	}
	return updated, nil
}

func (s *MongoStore) DeleteRecord(name, id string) (bool, error) {
	ctx, cancel := s.opCtx()
	defer cancel()
	res, err := s.records.DeleteOne(ctx, bson.M{"collection": name, "recordId": id})
	if err != nil {
		return false, &PersistenceError{Backend: TypeMongo, Op: "deleteRecord", Err: err}
	}
	return res.DeletedCount > 0, nil
}

func (s *MongoStore) Stats() (Stats, error) {
	names, err := s.collectionNames()
	if err != nil {
		return Stats{}, err
	}
	ctx, cancel := s.opCtx()
	defer cancel()
	counts := make(map[string]int, len(names))
	total := 0
	for _, name := range names {
		n, err := s.records.CountDocuments(ctx, bson.M{"collection": name})
		if err != nil {
			return Stats{}, &PersistenceError{Backend: TypeMongo, Op: "stats", Err: err}
		}
		counts[name] = int(n)
		total += int(n)
	}
	return Stats{
		StorageType:      TypeMongo,
		TotalCollections: len(names),
		TotalRecords:     total,
		Collections:      counts,
		Persistent:       true,
		Database:         s.database,
	}, nil
}

func (s *MongoStore) Backup() (Backup, error) {
	names, err := s.collectionNames()
	if err != nil {
		return Backup{}, err
	}
	doc := make(record.Document, len(names))
	for _, name := range names {
		recs, err := s.GetCollection(name)
		if err != nil {
			return Backup{}, err
		}
		doc[name] = recs
	}
	stats, err := s.Stats()
	if err != nil {
		return Backup{}, err
	}
	return Backup{
		Data: doc,
		Metadata: BackupMetadata{
			CreatedAt:   record.Timestamp(),
			StorageType: TypeMongo,
			Stats:       stats,
		},
	}, nil
}

// Clear removes every record and resets the registry to the default
// collections.
func (s *MongoStore) Clear() error {
	ctx, cancel := s.opCtx()
	defer cancel()
	if _, err := s.records.DeleteMany(ctx, bson.M{}); err != nil {
		return &PersistenceError{Backend: TypeMongo, Op: "clear", Err: err}
	}
	if _, err := s.registry.DeleteMany(ctx, bson.M{}); err != nil {
		return &PersistenceError{Backend: TypeMongo, Op: "clear", Err: err}
	}
	for _, name := range record.DefaultCollections {
		if err := s.registerCollection(ctx, name); err != nil {
			return &PersistenceError{Backend: TypeMongo, Op: "clear", Err: err}
		}
	}
	return nil
}

func (s *MongoStore) HealthCheck() bool {
	if s.client == nil {
		return false
	}
	return healthRoundTrip(s, s.dropCollection)
}

func (s *MongoStore) dropCollection(name string) {
	ctx, cancel := s.opCtx()
	defer cancel()
	_, _ = s.records.DeleteMany(ctx, bson.M{"collection": name})
	_, _ = s.registry.DeleteOne(ctx, bson.M{"name": name})
}

func (s *MongoStore) collectionNames() ([]string, error) {
	ctx, cancel := s.opCtx()
	defer cancel()
	cur, err := s.registry.Find(ctx, bson.M{})
	if err != nil {
		return nil, &PersistenceError{Backend: TypeMongo, Op: "collections", Err: err}
	}
	defer cur.Close(ctx)
	var names []string
	for cur.Next(ctx) {
		var entry struct {
			Name string `bson:"name"`
		}
		if err := cur.Decode(&entry); err != nil {
			return nil, &PersistenceError{Backend: TypeMongo, Op: "collections", Err: err}
		}
		names = append(names, entry.Name)
	}
	if err := cur.Err(); err != nil {
		return nil, &PersistenceError{Backend: TypeMongo, Op: "collections", Err: err}
	}
	return names, nil
}
