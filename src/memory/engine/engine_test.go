package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	embedpkg "github.com/Protocol-Lattice/story-memory/src/memory/embed"
	"github.com/Protocol-Lattice/story-memory/src/memory/model"
	storepkg "github.com/Protocol-Lattice/story-memory/src/memory/store"
)

type countingEmbedder struct {
	calls atomic.Int64
	err   error
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return embedpkg.DummyEmbedding(text, 8), nil
}

// flakyStore lets tests inject failures around an InMemoryStore.
type flakyStore struct {
	*storepkg.InMemoryStore
	upsertErr error
	updateErr error
	vanish    bool
}

func (f *flakyStore) Upsert(ctx context.Context, records ...model.Record) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	return f.InMemoryStore.Upsert(ctx, records...)
}

func (f *flakyStore) Update(ctx context.Context, id string, metadata model.Metadata) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	if f.vanish {
		_ = f.InMemoryStore.Delete(ctx, id)
	}
	return f.InMemoryStore.Update(ctx, id, metadata)
}

func newTestEngine(opts Options) (*Engine, *storepkg.InMemoryStore) {
	memStore := storepkg.NewInMemoryStore()
	opts.Dimension = 8
	return NewEngine(memStore, opts).WithEmbedder(embedpkg.DummyEmbedder{Dim: 8}), memStore
}

func TestEngineStoreAndIncrement(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	engine, _ := newTestEngine(Options{Clock: func() time.Time { return now }})
	ctx := context.Background()

	id, err := engine.Store(ctx, "alice found a map", model.Metadata{User: "alice", Platform: model.PlatformTwitter})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if !strings.HasPrefix(id, "mem_1709283600000_") {
		t.Fatalf("unexpected id %q", id)
	}
	for range 2 {
		if err := engine.IncrementInteractionCount(ctx, id); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}

	rec, err := engine.Fetch(ctx, id)
	if err != nil || rec == nil {
		t.Fatalf("fetch: %v, %v", rec, err)
	}
	if rec.Metadata.InteractionCount != 2 {
		t.Fatalf("expected interactionCount 2, got %d", rec.Metadata.InteractionCount)
	}
	if rec.Metadata.Content != "alice found a map" || rec.Metadata.User != "alice" || rec.Metadata.Platform != model.PlatformTwitter {
		t.Fatalf("fields not preserved: %#v", rec.Metadata)
	}
	if rec.Metadata.Type != model.TypeMemory {
		t.Fatalf("expected default type memory, got %q", rec.Metadata.Type)
	}
	if rec.Metadata.LastInteraction != model.FormatTimestamp(now) {
		t.Fatalf("lastInteraction not set: %q", rec.Metadata.LastInteraction)
	}
}

func TestEngineIncrementAndDeleteOnAbsentAreNoops(t *testing.T) {
	engine, memStore := newTestEngine(Options{})
	ctx := context.Background()

	if err := engine.IncrementInteractionCount(ctx, "ghost"); err != nil {
		t.Fatalf("increment on absent id: %v", err)
	}
	if err := engine.AttachStoryReference(ctx, "ghost", "story-1"); err != nil {
		t.Fatalf("attach on absent id: %v", err)
	}
	if err := engine.Delete(ctx, "ghost"); err != nil {
		t.Fatalf("delete on absent id: %v", err)
	}
	if memStore.Len() != 0 {
		t.Fatalf("no record should have been created")
	}
	snap := engine.MetricsSnapshot()
	if snap.Misses != 2 {
		t.Fatalf("expected 2 misses, got %d", snap.Misses)
	}
	if snap.Increments != 0 || snap.References != 0 || snap.Deleted != 0 {
		t.Fatalf("absent ids must not be counted: %+v", snap)
	}
}

func TestEngineAttachStoryReferenceIsIdempotent(t *testing.T) {
	engine, _ := newTestEngine(Options{})
	ctx := context.Background()
	id, err := engine.Store(ctx, "a dragon appears", model.Metadata{User: "bob"})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	for _, sid := range []string{"story-1", "story-1", "story-2"} {
		if err := engine.AttachStoryReference(ctx, id, sid); err != nil {
			t.Fatalf("attach: %v", err)
		}
	}
	rec, _ := engine.Fetch(ctx, id)
	got := rec.Metadata.UsedInStories
	if len(got) != 2 || got[0] != "story-1" || got[1] != "story-2" {
		t.Fatalf("unexpected usedInStories: %v", got)
	}
	if rec.Metadata.LastReferenced == "" {
		t.Fatalf("lastReferenced not set")
	}
}

func TestEngineConcurrentIncrementsAreSerialized(t *testing.T) {
	engine, _ := newTestEngine(Options{})
	ctx := context.Background()
	id, err := engine.Store(ctx, "popular memory", model.Metadata{})
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	const n = 50
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := engine.IncrementInteractionCount(ctx, id); err != nil {
				t.Errorf("increment: %v", err)
			}
		}()
	}
	wg.Wait()

	rec, _ := engine.Fetch(ctx, id)
	if rec.Metadata.InteractionCount != n {
		t.Fatalf("expected %d increments, got %d", n, rec.Metadata.InteractionCount)
	}
}

func TestEngineStoreEmbeddingFailure(t *testing.T) {
	memStore := storepkg.NewInMemoryStore()
	emb := &countingEmbedder{err: errors.New("provider down")}
	engine := NewEngine(memStore, Options{Dimension: 8}).WithEmbedder(emb)

	_, err := engine.Store(context.Background(), "text", model.Metadata{})
	var embErr *model.EmbeddingError
	if !errors.As(err, &embErr) {
		t.Fatalf("expected EmbeddingError, got %v", err)
	}
	if !model.IsRetryable(err) {
		t.Fatalf("embedding errors should be retryable")
	}
	if memStore.Len() != 0 {
		t.Fatalf("failed store must not leave a record")
	}
}

func TestEngineStoreUpsertFailure(t *testing.T) {
	fs := &flakyStore{InMemoryStore: storepkg.NewInMemoryStore(), upsertErr: errors.New("connection reset")}
	engine := NewEngine(fs, Options{Dimension: 8})

	_, err := engine.Store(context.Background(), "text", model.Metadata{})
	var storeErr *model.StoreError
	if !errors.As(err, &storeErr) || storeErr.Op != "upsert" {
		t.Fatalf("expected upsert StoreError, got %v", err)
	}
	if fs.Len() != 0 {
		t.Fatalf("failed upsert must not leave a record")
	}
}

func TestEngineUpdateAfterConcurrentDelete(t *testing.T) {
	fs := &flakyStore{InMemoryStore: storepkg.NewInMemoryStore()}
	engine := NewEngine(fs, Options{Dimension: 8})
	ctx := context.Background()
	id, err := engine.Store(ctx, "short lived", model.Metadata{})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	fs.vanish = true
	if err := engine.IncrementInteractionCount(ctx, id); err != nil {
		t.Fatalf("increment after delete should be a no-op: %v", err)
	}
	snap := engine.MetricsSnapshot()
	if snap.LostRaces != 1 {
		t.Fatalf("expected one lost race, got %d", snap.LostRaces)
	}
	if snap.Increments != 0 {
		t.Fatalf("lost update counted as increment: %d", snap.Increments)
	}
}

func TestEngineFailedUpdateIsNotCounted(t *testing.T) {
	fs := &flakyStore{InMemoryStore: storepkg.NewInMemoryStore()}
	engine := NewEngine(fs, Options{Dimension: 8})
	ctx := context.Background()
	id, err := engine.Store(ctx, "fragile", model.Metadata{})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	fs.updateErr = errors.New("connection reset")
	if err := engine.IncrementInteractionCount(ctx, id); err == nil {
		t.Fatalf("expected update failure")
	}
	if err := engine.AttachStoryReference(ctx, id, "story-1"); err == nil {
		t.Fatalf("expected update failure")
	}
	snap := engine.MetricsSnapshot()
	if snap.Increments != 0 || snap.References != 0 {
		t.Fatalf("failed updates were counted: %+v", snap)
	}

	fs.updateErr = nil
	if err := engine.IncrementInteractionCount(ctx, id); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := engine.Delete(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	snap = engine.MetricsSnapshot()
	if snap.Increments != 1 || snap.Deleted != 1 {
		t.Fatalf("unexpected counters: %+v", snap)
	}
}

func TestEngineNeutralQuerySkipsEmbedding(t *testing.T) {
	memStore := storepkg.NewInMemoryStore()
	emb := &countingEmbedder{}
	engine := NewEngine(memStore, Options{Dimension: 8}).WithEmbedder(emb)
	ctx := context.Background()

	if _, err := engine.Store(ctx, "hello", model.Metadata{User: "carol"}); err != nil {
		t.Fatalf("store: %v", err)
	}
	before := emb.calls.Load()
	matches, err := engine.SearchByUser(ctx, "carol", 0)
	if err != nil {
		t.Fatalf("search by user: %v", err)
	}
	if len(matches) != 1 || matches[0].Metadata.User != "carol" {
		t.Fatalf("unexpected matches: %#v", matches)
	}
	if emb.calls.Load() != before {
		t.Fatalf("neutral query must not call the embedder")
	}
}

func TestEngineRecurringCharactersAndUnusedIdeas(t *testing.T) {
	engine, _ := newTestEngine(Options{})
	ctx := context.Background()

	frequent, _ := engine.Store(ctx, "regular visitor", model.Metadata{User: "dana", Platform: model.PlatformDiscord})
	rare, _ := engine.Store(ctx, "one time visitor", model.Metadata{User: "eli", Platform: model.PlatformDiscord})
	other, _ := engine.Store(ctx, "tweet regular", model.Metadata{User: "fay", Platform: model.PlatformTwitter})
	for range 3 {
		_ = engine.IncrementInteractionCount(ctx, frequent)
		_ = engine.IncrementInteractionCount(ctx, other)
	}
	_ = engine.IncrementInteractionCount(ctx, rare)
	_ = engine.AttachStoryReference(ctx, other, "story-9")

	recurring, err := engine.FindRecurringCharacters(ctx, 3, model.PlatformDiscord)
	if err != nil {
		t.Fatalf("recurring: %v", err)
	}
	if len(recurring) != 1 || recurring[0].ID != frequent {
		t.Fatalf("unexpected recurring characters: %#v", recurring)
	}

	unused, err := engine.UnusedIdeas(ctx, 10)
	if err != nil {
		t.Fatalf("unused ideas: %v", err)
	}
	if len(unused) != 2 {
		t.Fatalf("expected 2 unused ideas, got %d", len(unused))
	}
	for _, m := range unused {
		if m.ID == other {
			t.Fatalf("referenced memory reported as unused")
		}
	}
}

func TestEngineFindSimilarAppliesEqualityFilter(t *testing.T) {
	engine, _ := newTestEngine(Options{})
	ctx := context.Background()
	_, _ = engine.Store(ctx, "castle siege at dawn", model.Metadata{User: "gus", Platform: model.PlatformArena})
	_, _ = engine.Store(ctx, "castle siege at dawn", model.Metadata{User: "hal", Platform: model.PlatformTwitter})

	matches, err := engine.FindSimilar(ctx, "castle siege", 0, model.Metadata{Platform: model.PlatformArena})
	if err != nil {
		t.Fatalf("find similar: %v", err)
	}
	if len(matches) != 1 || matches[0].Metadata.User != "gus" {
		t.Fatalf("unexpected matches: %#v", matches)
	}
}

func TestEngineDeleteWhere(t *testing.T) {
	engine, memStore := newTestEngine(Options{})
	ctx := context.Background()
	_, _ = engine.Store(ctx, "one", model.Metadata{User: "ivy"})
	_, _ = engine.Store(ctx, "two", model.Metadata{User: "jon"})

	if err := engine.DeleteWhere(ctx, model.Where(model.Eq(model.FieldUser, model.String("ivy")))); err != nil {
		t.Fatalf("delete where: %v", err)
	}
	if memStore.Len() != 1 {
		t.Fatalf("expected one record left, got %d", memStore.Len())
	}
	if err := engine.DeleteWhere(ctx, model.Where(model.Condition{Field: "user", Op: "like"})); err == nil {
		t.Fatalf("expected validation error for unknown operator")
	}
}

func TestEqualityFilterSkipsEmptyFields(t *testing.T) {
	f := EqualityFilter(model.Metadata{User: "kim", Type: model.TypeInteraction})
	if len(f) != 2 {
		t.Fatalf("expected 2 conditions, got %d: %v", len(f), f)
	}
	if len(EqualityFilter(model.Metadata{})) != 0 {
		t.Fatalf("empty metadata should yield an empty filter")
	}
}
