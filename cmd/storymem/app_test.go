package main

import (
	"context"
	"testing"

	"github.com/Protocol-Lattice/story-memory/src/config"
	"github.com/Protocol-Lattice/story-memory/src/memory/model"
	"github.com/Protocol-Lattice/story-memory/src/memory/store"
	"github.com/Protocol-Lattice/story-memory/src/story"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Embedder.Provider = "dummy"
	cfg.Embedder.Dimension = 16
	return cfg
}

func TestNewAppWiresInMemoryStack(t *testing.T) {
	ctx := context.Background()
	a, err := newApp(ctx, testConfig(t))
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.Close()

	if _, err := a.manager.StoreInteraction(ctx, model.Interaction{
		UserID: "u1", Username: "alice", Content: "gm frens, who wants to explore space", Platform: model.PlatformDiscord,
	}); err != nil {
		t.Fatalf("StoreInteraction: %v", err)
	}
	p, err := a.profiles.Get(ctx, "u1")
	if err != nil || p == nil {
		t.Fatalf("profile = %v, %v", p, err)
	}

	format, err := a.publisher.Formats().Lookup(story.DiscordEpic)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	s, err := a.publisher.Generate(ctx, []string{"u1"}, story.NewTemplate(story.DiscordEpic))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !story.ValidateLength(s, format) {
		t.Fatalf("generated story exceeds %d characters", format.MaxLength)
	}
	if a.graph != nil {
		t.Fatalf("graph should be disabled without a neo4j uri")
	}
}

func TestNewAppUnserializedLock(t *testing.T) {
	cfg := testConfig(t)
	cfg.Lock.Backend = "none"
	a, err := newApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.Close()
	if _, err := a.engine.Store(context.Background(), "idea", model.Metadata{User: "bob"}); err != nil {
		t.Fatalf("Store: %v", err)
	}
}

func TestNewAppModelGenerator(t *testing.T) {
	cfg := testConfig(t)
	cfg.Story.Generator = "model"
	cfg.LLM.Provider = "dummy"
	a, err := newApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.Close()

	s, err := a.publisher.Generate(context.Background(), nil, story.NewTemplate(story.TweetSeries))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(s.Chapters) != 20 {
		t.Fatalf("expected 20 chapters, got %d", len(s.Chapters))
	}
}

type closeTrackingDriver struct {
	store.Neo4jDriver
	closed int
}

func (d *closeTrackingDriver) Close(context.Context) error {
	d.closed++
	return nil
}

func TestAttachGraphClosesDriverOnFailure(t *testing.T) {
	a, err := newApp(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.Close()

	driver := &closeTrackingDriver{}
	if _, err := a.attachGraph(context.Background(), nil, driver); err == nil {
		t.Fatalf("expected error for a nil base store")
	}
	if driver.closed != 1 {
		t.Fatalf("driver closed %d times, want 1", driver.closed)
	}

	graph, err := a.attachGraph(context.Background(), store.NewInMemoryStore(), driver)
	if err != nil {
		t.Fatalf("attachGraph: %v", err)
	}
	if graph == nil || driver.closed != 1 {
		t.Fatalf("driver must stay open once the graph is built")
	}
}
