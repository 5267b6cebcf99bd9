package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Protocol-Lattice/story-memory/src/memory/model"
)

const mongoCloseTimeout = 5 * time.Second

// MongoConfig configures a MongoStore. VectorIndex names an Atlas vector search
// index; without one, similarity is computed in-process over the filtered set.
type MongoConfig struct {
	URI         string
	Database    string
	Collection  string
	Namespace   string
	VectorIndex string
	// ScanLimit bounds the in-process similarity scan.
	ScanLimit int64
}

type MongoStore struct {
	client      *mongo.Client
	collection  *mongo.Collection
	namespace   string
	vectorIndex string
	scanLimit   int64
}

var (
	_ VectorStore       = (*MongoStore)(nil)
	_ SchemaInitializer = (*MongoStore)(nil)
)

type mongoDoc struct {
	Key       string         `bson:"_id"`
	RecordID  string         `bson:"record_id"`
	Namespace string         `bson:"namespace"`
	Embedding []float64      `bson:"embedding"`
	Metadata  model.Metadata `bson:"metadata"`
	UpdatedAt time.Time      `bson:"updated_at"`
}

func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongo uri is required")
	}
	if cfg.Database == "" {
		return nil, errors.New("mongo database name is required")
	}
	if cfg.Collection == "" {
		return nil, errors.New("mongo collection name is required")
	}
	if cfg.ScanLimit <= 0 {
		cfg.ScanLimit = 5000
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return &MongoStore{
		client:      client,
		collection:  client.Database(cfg.Database).Collection(cfg.Collection),
		namespace:   cfg.Namespace,
		vectorIndex: cfg.VectorIndex,
		scanLimit:   cfg.ScanLimit,
	}, nil
}

// EnsureSchema creates the secondary indexes used by filters and neutral queries.
func (ms *MongoStore) EnsureSchema(ctx context.Context) error {
	_, err := ms.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "namespace", Value: 1}, {Key: "metadata.type", Value: 1}, {Key: "metadata.timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "namespace", Value: 1}, {Key: "metadata.userId", Value: 1}}},
		{Keys: bson.D{{Key: "namespace", Value: 1}, {Key: "record_id", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	return err
}

func (ms *MongoStore) key(id string) string { return ms.namespace + "/" + id }

func (ms *MongoStore) Upsert(ctx context.Context, records ...model.Record) error {
	if len(records) == 0 {
		return nil
	}
	writes := make([]mongo.WriteModel, 0, len(records))
	now := time.Now().UTC()
	for _, r := range records {
		doc := mongoDoc{
			Key:       ms.key(r.ID),
			RecordID:  r.ID,
			Namespace: ms.namespace,
			Embedding: float64Embedding(r.Vector),
			Metadata:  r.Metadata,
			UpdatedAt: now,
		}
		writes = append(writes, mongo.NewReplaceOneModel().
			SetFilter(bson.D{{Key: "_id", Value: doc.Key}}).
			SetReplacement(doc).
			SetUpsert(true))
	}
	_, err := ms.collection.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(true))
	return err
}

func (ms *MongoStore) Fetch(ctx context.Context, id string) (*model.Record, error) {
	var doc mongoDoc
	err := ms.collection.FindOne(ctx, bson.D{{Key: "_id", Value: ms.key(id)}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &model.Record{ID: doc.RecordID, Vector: float32Embedding(doc.Embedding), Metadata: doc.Metadata}, nil
}

func (ms *MongoStore) Update(ctx context.Context, id string, metadata model.Metadata) error {
	res, err := ms.collection.UpdateByID(ctx, ms.key(id), bson.D{{Key: "$set", Value: bson.D{
		{Key: "metadata", Value: metadata},
		{Key: "updated_at", Value: time.Now().UTC()},
	}}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (ms *MongoStore) Query(ctx context.Context, q Query) ([]model.Match, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	filter := ms.compileFilter(q.Filter)
	switch {
	case model.IsZeroVector(q.Vector):
		return ms.recent(ctx, filter, q.TopK)
	case ms.vectorIndex != "":
		return ms.vectorSearch(ctx, filter, q)
	default:
		return ms.scan(ctx, filter, q)
	}
}

func (ms *MongoStore) recent(ctx context.Context, filter bson.D, topK int) ([]model.Match, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "metadata.timestamp", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(topK)).
		SetProjection(bson.D{{Key: "embedding", Value: 0}})
	cursor, err := ms.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var out []model.Match
	for cursor.Next(ctx) {
		var doc mongoDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, model.Match{ID: doc.RecordID, Metadata: doc.Metadata})
	}
	return out, cursor.Err()
}

// vectorSearch uses Atlas $vectorSearch, then re-applies the full filter because
// pre-filters cannot express every operator.
func (ms *MongoStore) vectorSearch(ctx context.Context, filter bson.D, q Query) ([]model.Match, error) {
	candidates := int64(q.TopK * 20)
	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: ms.vectorIndex},
			{Key: "path", Value: "embedding"},
			{Key: "queryVector", Value: float64Embedding(q.Vector)},
			{Key: "numCandidates", Value: candidates},
			{Key: "limit", Value: candidates},
			{Key: "filter", Value: bson.D{{Key: "namespace", Value: ms.namespace}}},
		}}},
		{{Key: "$addFields", Value: bson.D{{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}}}}},
		{{Key: "$match", Value: filter}},
		{{Key: "$limit", Value: int64(q.TopK)}},
		{{Key: "$project", Value: bson.D{{Key: "embedding", Value: 0}}}},
	}
	cursor, err := ms.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var out []model.Match
	for cursor.Next(ctx) {
		var doc struct {
			mongoDoc `bson:",inline"`
			Score    float64 `bson:"score"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, model.Match{ID: doc.RecordID, Score: doc.Score, Metadata: doc.Metadata})
	}
	return out, cursor.Err()
}

func (ms *MongoStore) scan(ctx context.Context, filter bson.D, q Query) ([]model.Match, error) {
	cursor, err := ms.collection.Find(ctx, filter, options.Find().SetLimit(ms.scanLimit))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var out []model.Match
	for cursor.Next(ctx) {
		var doc mongoDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		score := model.CosineSimilarity(q.Vector, float32Embedding(doc.Embedding))
		out = append(out, model.Match{ID: doc.RecordID, Score: score, Metadata: doc.Metadata})
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > q.TopK {
		out = out[:q.TopK]
	}
	return out, nil
}

func (ms *MongoStore) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = ms.key(id)
	}
	_, err := ms.collection.DeleteMany(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: keys}}}})
	return err
}

func (ms *MongoStore) DeleteWhere(ctx context.Context, filter model.Filter) error {
	if err := filter.Validate(); err != nil {
		return err
	}
	_, err := ms.collection.DeleteMany(ctx, ms.compileFilter(filter))
	return err
}

func (ms *MongoStore) Close() error {
	if ms.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), mongoCloseTimeout)
	defer cancel()
	return ms.client.Disconnect(ctx)
}

// compileFilter maps the filter grammar to a MongoDB query document. Array fields
// match $eq and $in element-wise natively.
func (ms *MongoStore) compileFilter(f model.Filter) bson.D {
	out := bson.D{{Key: "namespace", Value: ms.namespace}}
	for _, c := range f {
		key := "metadata." + c.Field
		switch c.Op {
		case model.OpEq:
			out = append(out, bson.E{Key: key, Value: bson.D{{Key: "$eq", Value: c.Values[0].Any()}}})
		case model.OpIn:
			vals := make(bson.A, len(c.Values))
			for i, v := range c.Values {
				vals[i] = v.Any()
			}
			out = append(out, bson.E{Key: key, Value: bson.D{{Key: "$in", Value: vals}}})
		case model.OpNotExists:
			out = append(out, bson.E{Key: "$or", Value: bson.A{
				bson.D{{Key: key, Value: bson.D{{Key: "$exists", Value: false}}}},
				bson.D{{Key: key, Value: nil}},
				bson.D{{Key: key, Value: bson.A{}}},
			}})
		case model.OpGte:
			out = append(out, bson.E{Key: key, Value: bson.D{{Key: "$gte", Value: c.Values[0].Num}}})
		}
	}
	return wrapAnd(out)
}

// wrapAnd folds repeated $or keys into an explicit $and so each survives.
func wrapAnd(d bson.D) bson.D {
	ors := 0
	for _, e := range d {
		if e.Key == "$or" {
			ors++
		}
	}
	if ors <= 1 {
		return d
	}
	clauses := make(bson.A, 0, len(d))
	for _, e := range d {
		clauses = append(clauses, bson.D{e})
	}
	return bson.D{{Key: "$and", Value: clauses}}
}

func float64Embedding(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func float32Embedding(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
