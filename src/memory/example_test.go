package memory

import (
	"context"
	"fmt"
)

func ExampleNewEngine() {
	store := NewInMemoryStore()
	engine := NewEngine(store, Options{Dimension: 32}).WithEmbedder(DummyEmbedder{Dim: 32})
	ctx := context.Background()

	id, _ := engine.Store(ctx, "found a portal behind the bakery", Metadata{User: "alice"})
	engine.IncrementInteractionCount(ctx, id)
	engine.IncrementInteractionCount(ctx, id)

	rec, _ := engine.Fetch(ctx, id)
	fmt.Println(rec.Metadata.InteractionCount)

	matches, _ := engine.SearchByUser(ctx, "alice", 5)
	fmt.Println(len(matches))
	// Output:
	// 2
	// 1
}
