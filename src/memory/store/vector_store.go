package store

import (
	"context"
	"errors"

	"github.com/Protocol-Lattice/story-memory/src/memory/model"
)

// ErrNotFound is returned by Update when the id does not exist. Fetch reports absence
// with a nil record instead.
var ErrNotFound = errors.New("record not found")

// Query describes a filtered top-K similarity search. A zero Vector asks for
// metadata-only retrieval; backends then order by timestamp, newest first.
type Query struct {
	Vector []float32
	TopK   int
	Filter model.Filter
}

// VectorStore persists (vector, metadata) records by id within one namespace.
type VectorStore interface {
	// Upsert writes records, replacing any existing record with the same id.
	Upsert(ctx context.Context, records ...model.Record) error
	// Fetch returns the record or nil when it does not exist.
	Fetch(ctx context.Context, id string) (*model.Record, error)
	// Update replaces the metadata of an existing record, keeping its vector.
	Update(ctx context.Context, id string, metadata model.Metadata) error
	// Query runs a filtered similarity search ordered best-first.
	Query(ctx context.Context, q Query) ([]model.Match, error)
	// Delete removes ids; absent ids are ignored.
	Delete(ctx context.Context, ids ...string) error
	// DeleteWhere removes every record matching filter.
	DeleteWhere(ctx context.Context, filter model.Filter) error
}

// SchemaInitializer is implemented by stores that can create their backing schema.
type SchemaInitializer interface {
	EnsureSchema(ctx context.Context) error
}

// StoryGraph records which memories fed which stories.
type StoryGraph interface {
	StoriesForMemory(ctx context.Context, memoryID string) ([]string, error)
	MemoriesForStory(ctx context.Context, storyID string) ([]string, error)
}

func validateQuery(q Query) error {
	if q.TopK <= 0 {
		return errors.New("topK must be positive")
	}
	return q.Filter.Validate()
}
