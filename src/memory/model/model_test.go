package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"
)

func TestFilterMatch(t *testing.T) {
	meta := Metadata{
		Type:             TypeInteraction,
		UserID:           "alice",
		Platform:         PlatformArena,
		InteractionCount: 3,
		Characters:       []string{"alice", "bob"},
	}
	cases := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty", nil, true},
		{"eq", Where(Eq(FieldType, String(string(TypeInteraction)))), true},
		{"eq mismatch", Where(Eq(FieldType, String(string(TypeCharacterProfile)))), false},
		{"in", Where(In(FieldUserID, Strings("carol", "alice")...)), true},
		{"in miss", Where(In(FieldUserID, Strings("carol")...)), false},
		{"list eq", Where(Eq(FieldCharacters, String("bob"))), true},
		{"list in", Where(In(FieldCharacters, Strings("zed", "alice")...)), true},
		{"not exists", Where(NotExists(FieldUsedInStories)), true},
		{"not exists present", Where(NotExists(FieldUserID)), false},
		{"gte", Where(Gte(FieldInteractionCount, 3)), true},
		{"gte miss", Where(Gte(FieldInteractionCount, 4)), false},
		{"and", Where(Eq(FieldUserID, String("alice")), Eq(FieldPlatform, String("arena"))), true},
		{"and miss", Where(Eq(FieldUserID, String("alice")), Eq(FieldPlatform, String("discord"))), false},
		{"unknown field", Where(Eq("nope", String("x"))), false},
	}
	for _, tc := range cases {
		if got := tc.filter.Match(meta); got != tc.want {
			t.Fatalf("%s: Match = %v, want %v (filter %s)", tc.name, got, tc.want, tc.filter)
		}
	}
}

func TestFilterValidate(t *testing.T) {
	bad := []Filter{
		Where(Condition{Field: "", Op: OpEq, Values: []Value{String("x")}}),
		Where(Condition{Field: "a", Op: OpEq}),
		Where(Condition{Field: "a", Op: OpIn}),
		Where(Condition{Field: "a", Op: OpGte, Values: []Value{String("x")}}),
		Where(Condition{Field: "a", Op: "regex", Values: []Value{String("x")}}),
	}
	for i, f := range bad {
		if err := f.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error for %s", i, f)
		}
	}
	good := Where(Eq(FieldType, String("memory")), In(FieldUserID, Strings("a")...), NotExists(FieldUsedInStories), Gte(FieldInteractionCount, 1))
	if err := good.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFilterAndDoesNotAlias(t *testing.T) {
	base := make(Filter, 1, 4)
	base[0] = Eq(FieldType, String("memory"))
	a := base.And(Eq(FieldUser, String("a")))
	b := base.And(Eq(FieldUser, String("b")))
	if a[1].Values[0].Str != "a" || b[1].Values[0].Str != "b" {
		t.Fatalf("And shares backing storage: %s %s", a, b)
	}
}

func TestMetadataClone(t *testing.T) {
	m := Metadata{UsedInStories: []string{"s1"}}
	c := m.Clone()
	c.UsedInStories[0] = "changed"
	if m.UsedInStories[0] != "s1" {
		t.Fatalf("clone aliases slice")
	}
	if !m.HasStory("s1") || m.HasStory("s2") {
		t.Fatalf("HasStory mismatch")
	}
}

func TestDecodeProfile(t *testing.T) {
	payload, err := EncodeProfile(CharacterProfile{UserID: "alice", Username: "Alice", Interests: []string{"defi"}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	p, err := DecodeProfile("profile-alice", payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Username != "Alice" || len(p.Interests) != 1 {
		t.Fatalf("unexpected profile: %+v", p)
	}

	for _, bad := range []string{"", "{not json", `{"username":"x"}`} {
		_, err := DecodeProfile("profile-x", bad)
		var corrupt *CorruptProfileError
		if !errors.As(err, &corrupt) {
			t.Fatalf("payload %q: expected CorruptProfileError, got %v", bad, err)
		}
		if IsRetryable(err) {
			t.Fatalf("corrupt profile must not be retryable")
		}
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(&EmbeddingError{Op: "embed", Err: errors.New("boom")}) {
		t.Fatalf("embedding errors are retryable")
	}
	if !IsRetryable(fmt.Errorf("wrapped: %w", &StoreError{Op: "upsert", Err: errors.New("boom")})) {
		t.Fatalf("store errors are retryable through wrapping")
	}
	if !IsRetryable(context.DeadlineExceeded) {
		t.Fatalf("deadline exceeded is retryable")
	}
	if IsRetryable(errors.New("plain")) || IsRetryable(nil) {
		t.Fatalf("plain errors are not retryable")
	}
}

func TestParseTimestamp(t *testing.T) {
	now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	if got := ParseTimestamp(FormatTimestamp(now)); !got.Equal(now) {
		t.Fatalf("round trip = %v", got)
	}
	if got := ParseTimestamp("1714979289000"); got.Unix() != 1714979289 {
		t.Fatalf("millis = %v", got)
	}
	if !ParseTimestamp("garbage").IsZero() {
		t.Fatalf("garbage should be zero")
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := CosineSimilarity([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Fatalf("identical vectors = %v", got)
	}
	if got := CosineSimilarity([]float32{0, 0}, []float32{1, 0}); got != 0 {
		t.Fatalf("zero vector = %v", got)
	}
	if !IsZeroVector(ZeroVector(4)) || IsZeroVector([]float32{0, 1}) {
		t.Fatalf("IsZeroVector mismatch")
	}
}
