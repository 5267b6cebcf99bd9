package store

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/Protocol-Lattice/story-memory/src/memory/model"
)

func TestMongoCompileFilter(t *testing.T) {
	ms := &MongoStore{namespace: "bot"}
	got := ms.compileFilter(model.Where(
		model.Eq(model.FieldType, model.String("memory")),
		model.Gte(model.FieldInteractionCount, 2),
	))
	if len(got) != 3 {
		t.Fatalf("expected 3 elements, got %#v", got)
	}
	if got[0].Key != "namespace" || got[0].Value != "bot" {
		t.Fatalf("namespace should come first: %#v", got[0])
	}
	if got[1].Key != "metadata.type" {
		t.Fatalf("unexpected key: %s", got[1].Key)
	}
	gte := got[2].Value.(bson.D)
	if gte[0].Key != "$gte" || gte[0].Value != float64(2) {
		t.Fatalf("unexpected gte clause: %#v", gte)
	}
}

func TestMongoCompileFilterWrapsMultipleOr(t *testing.T) {
	ms := &MongoStore{namespace: "bot"}
	got := ms.compileFilter(model.Where(
		model.NotExists(model.FieldUsedInStories),
		model.NotExists(model.FieldLastReferenced),
	))
	if len(got) != 1 || got[0].Key != "$and" {
		t.Fatalf("expected $and wrapper, got %#v", got)
	}
	if clauses := got[0].Value.(bson.A); len(clauses) != 3 {
		t.Fatalf("expected 3 clauses, got %d", len(clauses))
	}
}

func TestMongoEmbeddingConversion(t *testing.T) {
	in := []float32{0.25, -1}
	out := float32Embedding(float64Embedding(in))
	if len(out) != 2 || out[0] != 0.25 || out[1] != -1 {
		t.Fatalf("unexpected conversion: %v", out)
	}
}
