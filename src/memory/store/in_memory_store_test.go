package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Protocol-Lattice/story-memory/src/memory/model"
)

func rec(id string, vec []float32, meta model.Metadata) model.Record {
	return model.Record{ID: id, Vector: vec, Metadata: meta}
}

func TestInMemoryStoreFetchReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	meta := model.Metadata{Type: model.TypeMemory, UsedInStories: []string{"s1"}}
	if err := store.Upsert(ctx, rec("a", []float32{1, 0}, meta)); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	got, err := store.Fetch(ctx, "a")
	if err != nil || got == nil {
		t.Fatalf("Fetch = %v, %v", got, err)
	}
	got.Metadata.UsedInStories[0] = "mutated"
	got.Vector[0] = 42

	again, _ := store.Fetch(ctx, "a")
	if again.Metadata.UsedInStories[0] != "s1" || again.Vector[0] != 1 {
		t.Fatalf("store state was aliased: %#v", again)
	}

	missing, err := store.Fetch(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil record for missing id, got %#v, %v", missing, err)
	}
}

func TestInMemoryStoreUpdateMissing(t *testing.T) {
	store := NewInMemoryStore()
	err := store.Update(context.Background(), "ghost", model.Metadata{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInMemoryStoreUpdateReplacesMetadataKeepsVector(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	_ = store.Upsert(ctx, rec("a", []float32{0, 1}, model.Metadata{Type: model.TypeMemory, Content: "x"}))

	if err := store.Update(ctx, "a", model.Metadata{Type: model.TypeMemory, InteractionCount: 3}); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	got, _ := store.Fetch(ctx, "a")
	if got.Metadata.Content != "" || got.Metadata.InteractionCount != 3 {
		t.Fatalf("metadata not replaced: %#v", got.Metadata)
	}
	if got.Vector[1] != 1 {
		t.Fatalf("vector changed: %v", got.Vector)
	}
}

func TestInMemoryStoreQueryRanksByCosine(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	_ = store.Upsert(ctx,
		rec("far", []float32{0, 1}, model.Metadata{Type: model.TypeMemory}),
		rec("near", []float32{1, 0.1}, model.Metadata{Type: model.TypeMemory}),
		rec("other", []float32{1, 0}, model.Metadata{Type: model.TypeInteraction}),
	)

	matches, err := store.Query(ctx, Query{
		Vector: []float32{1, 0},
		TopK:   5,
		Filter: model.Where(model.Eq(model.FieldType, model.String(string(model.TypeMemory)))),
	})
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].ID != "near" || matches[1].ID != "far" {
		t.Fatalf("unexpected order: %s, %s", matches[0].ID, matches[1].ID)
	}
	if matches[0].Score <= matches[1].Score {
		t.Fatalf("scores not descending: %v", matches)
	}
}

func TestInMemoryStoreNeutralQueryOrdersByRecency(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_ = store.Upsert(ctx,
		rec("old", []float32{1, 0}, model.Metadata{Timestamp: model.FormatTimestamp(base)}),
		rec("new", []float32{0, 1}, model.Metadata{Timestamp: model.FormatTimestamp(base.Add(time.Hour))}),
		rec("mid", []float32{1, 1}, model.Metadata{Timestamp: model.FormatTimestamp(base.Add(time.Minute))}),
	)

	matches, err := store.Query(ctx, Query{Vector: model.ZeroVector(2), TopK: 2})
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if len(matches) != 2 || matches[0].ID != "new" || matches[1].ID != "mid" {
		t.Fatalf("unexpected neutral order: %#v", matches)
	}
}

func TestInMemoryStoreQueryRejectsBadTopK(t *testing.T) {
	store := NewInMemoryStore()
	if _, err := store.Query(context.Background(), Query{Vector: []float32{1}, TopK: 0}); err == nil {
		t.Fatalf("expected error for topK 0")
	}
}

func TestInMemoryStoreDeleteWhere(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	_ = store.Upsert(ctx,
		rec("a", []float32{1}, model.Metadata{Type: model.TypeMemory, UserID: "u1"}),
		rec("b", []float32{1}, model.Metadata{Type: model.TypeMemory, UserID: "u2"}),
		rec("c", []float32{1}, model.Metadata{Type: model.TypeInteraction, UserID: "u1"}),
	)

	err := store.DeleteWhere(ctx, model.Where(
		model.Eq(model.FieldType, model.String(string(model.TypeMemory))),
		model.Eq(model.FieldUserID, model.String("u1")),
	))
	if err != nil {
		t.Fatalf("DeleteWhere returned error: %v", err)
	}
	if store.Len() != 2 {
		t.Fatalf("expected 2 remaining records, got %d", store.Len())
	}
	if got, _ := store.Fetch(ctx, "a"); got != nil {
		t.Fatalf("record a should be gone")
	}

	if err := store.Delete(ctx, "b", "b", "missing"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 remaining record, got %d", store.Len())
	}
}
