// Package mongo is the cloud document-store backend. Documents keep snake_case
// field names, use string uuids as _id and store timestamps as BSON dates.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"inventory-admin/internal/store"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	_ store.Backend        = (*Store)(nil)
	_ store.Watcher        = (*Store)(nil)
	_ store.ContainsFinder = (*Store)(nil)
	_ store.Counter        = (*Store)(nil)
	_ store.BatchWriter    = (*Store)(nil)
)

const opTimeout = 10 * time.Second

// Connect opens a client for uri and pings the primary.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	if uri == "" {
		return nil, fmt.Errorf("MONGO_URI not set")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// Store is a mongo-driver store.Backend over one database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	now    func() time.Time
}

// NewStore uses database dbName on client.
func NewStore(client *mongo.Client, dbName string) *Store {
	return &Store{client: client, db: client.Database(dbName), now: time.Now}
}

func (s *Store) coll(collection string) (*mongo.Collection, error) {
	if err := store.CheckCollection(collection); err != nil {
		return nil, err
	}
	return s.db.Collection(collection), nil
}

func (s *Store) List(ctx context.Context, collection string) ([]store.Record, error) {
	return s.find(ctx, collection, bson.M{})
}

func (s *Store) Get(ctx context.Context, collection, id string) (store.Record, error) {
	c, err := s.coll(collection)
	if err != nil {
		return nil, err
	}
	var doc bson.M
	if err := c.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get %s %s: %w", collection, id, err)
	}
	return fromDocument(doc), nil
}

func (s *Store) Insert(ctx context.Context, collection string, rec store.Record) (store.Record, error) {
	c, err := s.coll(collection)
	if err != nil {
		return nil, err
	}
	doc := s.newDocument("", rec, time.Time{}, time.Time{})
	if _, err := c.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert %s: %w", collection, err)
	}
	return fromDocument(doc), nil
}

func (s *Store) Update(ctx context.Context, collection, id string, patch store.Record) (store.Record, error) {
	c, err := s.coll(collection)
	if err != nil {
		return nil, err
	}
	set := bson.M{}
	for k, v := range store.StripSystemFields(patch) {
		set[k] = v
	}
	set[store.FieldUpdatedAt] = s.now().UTC()

	var doc bson.M
	err = c.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("update %s %s: %w", collection, id, err)
	}
	return fromDocument(doc), nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	c, err := s.coll(collection)
	if err != nil {
		return err
	}
	res, err := c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", collection, id, err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Find(ctx context.Context, collection, field string, value any) ([]store.Record, error) {
	return s.find(ctx, collection, bson.M{field: value})
}

// FindContaining matches on a dotted path into the embedded array.
func (s *Store) FindContaining(ctx context.Context, collection, arrayField, elemField string, value any) ([]store.Record, error) {
	return s.find(ctx, collection, bson.M{arrayField + "." + elemField: value})
}

func (s *Store) find(ctx context.Context, collection string, filter bson.M) ([]store.Record, error) {
	c, err := s.coll(collection)
	if err != nil {
		return nil, err
	}
	cursor, err := c.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: store.FieldCreatedAt, Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", collection, err)
	}
	out := make([]store.Record, 0, len(docs))
	for _, d := range docs {
		out = append(out, fromDocument(d))
	}
	return out, nil
}

// Increment upserts the counters document for entityType with $inc.
func (s *Store) Increment(ctx context.Context, entityType string) (int64, error) {
	now := s.now().UTC()
	var doc bson.M
	err := s.db.Collection("counters").FindOneAndUpdate(ctx,
		bson.M{"entity_type": entityType},
		bson.M{
			"$inc":         bson.M{"value": int64(1)},
			"$set":         bson.M{store.FieldUpdatedAt: now},
			"$setOnInsert": bson.M{"_id": uuid.NewString(), store.FieldCreatedAt: now},
		},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("increment counter %s: %w", entityType, err)
	}
	v, ok := store.AsInt64(doc["value"])
	if !ok {
		return 0, fmt.Errorf("counter %s: unexpected value %v", entityType, doc["value"])
	}
	return v, nil
}

// WriteBatch commits every entry in one multi-document transaction. Mongo
// only supports transactions on replica sets and sharded clusters.
func (s *Store) WriteBatch(ctx context.Context, entries []store.BatchEntry) error {
	for _, e := range entries {
		if err := store.CheckCollection(e.Collection); err != nil {
			return err
		}
	}
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		grouped := make(map[string][]interface{})
		for _, e := range entries {
			if e.Collection == "counters" {
				_, err := s.db.Collection("counters").UpdateOne(sc,
					bson.M{"entity_type": e.Record["entity_type"]},
					bson.M{
						"$max":         bson.M{"value": e.Record["value"]},
						"$setOnInsert": bson.M{"_id": uuid.NewString(), store.FieldCreatedAt: s.now().UTC()},
					},
					options.Update().SetUpsert(true))
				if err != nil {
					return nil, fmt.Errorf("merge counter %v: %w", e.Record["entity_type"], err)
				}
				continue
			}
			created, _ := e.Record[store.FieldCreatedAt].(time.Time)
			updated, _ := e.Record[store.FieldUpdatedAt].(time.Time)
			grouped[e.Collection] = append(grouped[e.Collection], s.newDocument(e.ID, e.Record, created, updated))
		}
		for collection, docs := range grouped {
			if _, err := s.db.Collection(collection).InsertMany(sc, docs); err != nil {
				return nil, fmt.Errorf("insert %d %s: %w", len(docs), collection, err)
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("batch write: %w", err)
	}
	return nil
}

// Watch follows the collection's change stream until ctx is done.
func (s *Store) Watch(ctx context.Context, collection string, onChange func()) error {
	c, err := s.coll(collection)
	if err != nil {
		return err
	}
	stream, err := c.Watch(ctx, mongo.Pipeline{})
	if err != nil {
		return fmt.Errorf("open change stream %s: %w", collection, err)
	}
	defer stream.Close(context.Background())

	for stream.Next(ctx) {
		onChange()
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return stream.Err()
}

func (s *Store) newDocument(id string, rec store.Record, created, updated time.Time) bson.M {
	now := s.now().UTC()
	if created.IsZero() {
		created = now
	}
	if updated.IsZero() {
		updated = created
	}
	doc := bson.M{}
	for k, v := range store.StripSystemFields(rec) {
		doc[k] = v
	}
	if id == "" {
		id = uuid.NewString()
	}
	doc["_id"] = id
	doc[store.FieldCreatedAt] = created
	doc[store.FieldUpdatedAt] = updated
	return doc
}

// fromDocument turns a decoded BSON document into a plain Record.
func fromDocument(doc bson.M) store.Record {
	rec := store.Record{}
	for k, v := range doc {
		if k == "_id" {
			rec[store.FieldID] = plain(v)
			continue
		}
		rec[k] = plain(v)
	}
	return rec
}

// plain converts driver-specific BSON types into the map/slice/time values the
// rest of the code expects.
func plain(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = plain(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = plain(val)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = plain(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = plain(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = plain(val)
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.ObjectID:
		return t.Hex()
	case primitive.Decimal128:
		return t.String()
	case int32:
		return int64(t)
	default:
		return v
	}
}
