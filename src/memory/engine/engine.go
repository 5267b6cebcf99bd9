package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Protocol-Lattice/story-memory/src/memory/embed"
	"github.com/Protocol-Lattice/story-memory/src/memory/lock"
	"github.com/Protocol-Lattice/story-memory/src/memory/model"
	"github.com/Protocol-Lattice/story-memory/src/memory/store"
)

const defaultSimilarLimit = 5

// Engine owns the read-modify-write protocol over records held in a VectorStore.
// It keeps no copies between calls: every mutation re-fetches the record first.
type Engine struct {
	store    store.VectorStore
	opts     Options
	embedder embed.Embedder
	locker   lock.Locker
	metrics  *Metrics
	logger   *log.Logger
	clock    func() time.Time
}

// NewEngine constructs a memory engine on top of a VectorStore implementation.
// Without WithEmbedder the engine uses the offline DummyEmbedder.
func NewEngine(vs store.VectorStore, opts Options) *Engine {
	opts = opts.withDefaults()
	return &Engine{
		store:    vs,
		opts:     opts,
		embedder: embed.DummyEmbedder{Dim: opts.Dimension},
		locker:   opts.Locker,
		metrics:  &Metrics{},
		logger:   log.New(os.Stderr, "story-memory: ", log.LstdFlags),
		clock:    opts.Clock,
	}
}

// WithEmbedder overrides the default embedder.
func (e *Engine) WithEmbedder(embedder embed.Embedder) *Engine {
	if embedder != nil {
		e.embedder = embedder
	}
	return e
}

// WithLogger overrides the default logger.
func (e *Engine) WithLogger(logger *log.Logger) *Engine {
	if logger != nil {
		e.logger = logger
	}
	return e
}

func (e *Engine) logf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}

// MetricsSnapshot returns a copy of the runtime counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// Now returns the engine clock in UTC.
func (e *Engine) Now() time.Time {
	return e.clock().UTC()
}

// Dimension is the size of the neutral query vector.
func (e *Engine) Dimension() int {
	if e.opts.Dimension > 0 {
		return e.opts.Dimension
	}
	return embed.DimensionOf(e.embedder, embed.DefaultDimension)
}

// Store embeds text and upserts it under a fresh `mem_<ms>_<random>` id.
func (e *Engine) Store(ctx context.Context, text string, metadata model.Metadata) (string, error) {
	id := NewMemoryID(e.Now())
	if err := e.StoreWithID(ctx, id, text, metadata); err != nil {
		return "", err
	}
	return id, nil
}

// StoreWithID is Store with a caller-chosen id. An existing record with the same id
// is overwritten. content and timestamp are always set by the engine.
func (e *Engine) StoreWithID(ctx context.Context, id, text string, metadata model.Metadata) error {
	if e.store == nil {
		return errors.New("memory engine has no store")
	}
	if id == "" {
		return errors.New("record id is required")
	}
	vec, err := e.embedder.Embed(ctx, text)
	if err == nil && len(vec) == 0 {
		err = embed.ErrEmptyEmbedding
	}
	if err != nil {
		return &model.EmbeddingError{Op: "store", Err: err}
	}
	meta := metadata.Clone()
	if meta.Type == "" {
		meta.Type = model.TypeMemory
	}
	meta.Content = text
	meta.Timestamp = model.FormatTimestamp(e.Now())
	if err := e.store.Upsert(ctx, model.Record{ID: id, Vector: vec, Metadata: meta}); err != nil {
		return &model.StoreError{Op: "upsert", ID: id, Err: err}
	}
	e.metrics.IncStored()
	return nil
}

// Fetch returns the record with id, or nil when it does not exist.
func (e *Engine) Fetch(ctx context.Context, id string) (*model.Record, error) {
	rec, err := e.store.Fetch(ctx, id)
	if err != nil {
		return nil, &model.StoreError{Op: "fetch", ID: id, Err: err}
	}
	return rec, nil
}

// IncrementInteractionCount bumps interactionCount and lastInteraction. A missing
// record is a no-op.
func (e *Engine) IncrementInteractionCount(ctx context.Context, id string) error {
	now := model.FormatTimestamp(e.Now())
	return e.mutate(ctx, "increment", id, func(m *model.Metadata) {
		m.InteractionCount++
		m.LastInteraction = now
	}, e.metrics.IncIncrements)
}

// AttachStoryReference records that storyID used this memory. The id is appended
// once; repeated calls only refresh lastReferenced. A missing record is a no-op.
func (e *Engine) AttachStoryReference(ctx context.Context, id, storyID string) error {
	if storyID == "" {
		return errors.New("story id is required")
	}
	now := model.FormatTimestamp(e.Now())
	return e.mutate(ctx, "attach", id, func(m *model.Metadata) {
		if !m.HasStory(storyID) {
			m.UsedInStories = append(m.UsedInStories, storyID)
		}
		m.LastReferenced = now
	}, e.metrics.IncReferences)
}

// Locked runs fn while holding the per-id lock used by the engine's own
// fetch-then-write operations.
func (e *Engine) Locked(ctx context.Context, id string, fn func(context.Context) error) error {
	unlock, err := e.locker.Lock(ctx, id)
	if err != nil {
		return fmt.Errorf("lock %s: %w", id, err)
	}
	defer unlock()
	return fn(ctx)
}

// mutate applies a fetch-then-update under the id lock. applied runs only once
// the update has been written.
func (e *Engine) mutate(ctx context.Context, op, id string, apply func(*model.Metadata), applied func()) error {
	return e.Locked(ctx, id, func(ctx context.Context) error {
		rec, err := e.store.Fetch(ctx, id)
		if err != nil {
			return &model.StoreError{Op: op, ID: id, Err: err}
		}
		if rec == nil {
			e.metrics.IncMisses()
			return nil
		}
		meta := rec.Metadata.Clone()
		apply(&meta)
		err = e.store.Update(ctx, id, meta)
		switch {
		case errors.Is(err, store.ErrNotFound):
			// Deleted between fetch and update.
			e.metrics.IncLostRaces()
			e.logf("%s %s: record vanished before update", op, id)
			return nil
		case err != nil:
			return &model.StoreError{Op: op, ID: id, Err: err}
		}
		applied()
		return nil
	})
}

// FindByFilter runs a filtered top-K query. An empty queryText issues a neutral
// zero-vector query, which ranks by metadata alone and makes no embedding call.
// Matches come back in store order.
func (e *Engine) FindByFilter(ctx context.Context, filter model.Filter, topK int, queryText string) ([]model.Match, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	var vec []float32
	if queryText == "" {
		vec = model.ZeroVector(e.Dimension())
	} else {
		v, err := e.embedder.Embed(ctx, queryText)
		if err == nil && len(v) == 0 {
			err = embed.ErrEmptyEmbedding
		}
		if err != nil {
			return nil, &model.EmbeddingError{Op: "query", Err: err}
		}
		vec = v
	}
	matches, err := e.store.Query(ctx, store.Query{Vector: vec, TopK: topK, Filter: filter})
	if err != nil {
		return nil, &model.StoreError{Op: "query", Err: err}
	}
	e.metrics.IncQueries()
	e.metrics.IncRetrieved(len(matches))
	return matches, nil
}

// FindSimilar queries by text with an equality filter on every non-empty scalar
// field of match.
func (e *Engine) FindSimilar(ctx context.Context, text string, limit int, match model.Metadata) ([]model.Match, error) {
	if limit <= 0 {
		limit = defaultSimilarLimit
	}
	return e.FindByFilter(ctx, EqualityFilter(match), limit, text)
}

// SearchByUser returns the most recent records whose user field is username.
func (e *Engine) SearchByUser(ctx context.Context, username string, limit int) ([]model.Match, error) {
	if limit <= 0 {
		limit = e.opts.DefaultLimit
	}
	return e.FindSimilar(ctx, "", limit, model.Metadata{User: username})
}

// FindRecurringCharacters returns records with at least minInteractions
// interactions, optionally restricted to one platform.
func (e *Engine) FindRecurringCharacters(ctx context.Context, minInteractions int, platform model.Platform) ([]model.Match, error) {
	if minInteractions <= 0 {
		minInteractions = 3
	}
	filter := model.Where(model.Gte(model.FieldInteractionCount, float64(minInteractions)))
	if platform != "" {
		filter = filter.And(model.Eq(model.FieldPlatform, model.String(string(platform))))
	}
	return e.FindByFilter(ctx, filter, e.opts.RecurringLimit, "")
}

// UnusedIdeas returns records that no story has referenced yet.
func (e *Engine) UnusedIdeas(ctx context.Context, limit int) ([]model.Match, error) {
	if limit <= 0 {
		limit = e.opts.DefaultLimit
	}
	return e.FindByFilter(ctx, model.Where(model.NotExists(model.FieldUsedInStories)), limit, "")
}

// Delete removes a record. Deleting a missing id succeeds and is not counted.
func (e *Engine) Delete(ctx context.Context, id string) error {
	rec, err := e.store.Fetch(ctx, id)
	if err != nil {
		return &model.StoreError{Op: "delete", ID: id, Err: err}
	}
	if err := e.store.Delete(ctx, id); err != nil {
		return &model.StoreError{Op: "delete", ID: id, Err: err}
	}
	if rec != nil {
		e.metrics.IncDeleted(1)
	}
	return nil
}

// DeleteWhere removes every record matching filter.
func (e *Engine) DeleteWhere(ctx context.Context, filter model.Filter) error {
	if err := filter.Validate(); err != nil {
		return err
	}
	if err := e.store.DeleteWhere(ctx, filter); err != nil {
		return &model.StoreError{Op: "delete_where", Err: err}
	}
	return nil
}

// EqualityFilter turns the non-empty scalar fields of m into eq conditions.
func EqualityFilter(m model.Metadata) model.Filter {
	fields := []string{
		model.FieldType, model.FieldUser, model.FieldUserID, model.FieldUsername,
		model.FieldPlatform, model.FieldInteractionType, model.FieldSentiment,
		model.FieldCharacterRole, model.FieldTheme, model.FieldFormat,
	}
	var f model.Filter
	for _, field := range fields {
		if vals, ok := m.Values(field); ok {
			f = append(f, model.Eq(field, vals[0]))
		}
	}
	return f
}
