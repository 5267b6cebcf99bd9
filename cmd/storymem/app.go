package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/Protocol-Lattice/story-memory/src/config"
	"github.com/Protocol-Lattice/story-memory/src/memory/embed"
	"github.com/Protocol-Lattice/story-memory/src/memory/engine"
	"github.com/Protocol-Lattice/story-memory/src/memory/lock"
	"github.com/Protocol-Lattice/story-memory/src/memory/store"
	"github.com/Protocol-Lattice/story-memory/src/models"
	"github.com/Protocol-Lattice/story-memory/src/social"
	"github.com/Protocol-Lattice/story-memory/src/story"
)

// app holds every component built from one configuration.
type app struct {
	cfg       *config.Config
	logger    *log.Logger
	store     store.VectorStore
	graph     store.StoryGraph
	engine    *engine.Engine
	profiles  *social.Profiles
	assembler *social.Assembler
	manager   *social.Manager
	publisher *story.Publisher
	closers   []io.Closer
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, logger: log.New(os.Stderr, "storymem: ", log.LstdFlags)}

	embedder := embed.AutoEmbedder(ctx, embed.Config{
		Provider:  cfg.Embedder.Provider,
		Model:     cfg.Embedder.Model,
		Dimension: cfg.Embedder.Dimension,
	})
	if cfg.Embedder.CacheSize > 0 {
		embedder = embed.NewCached(embedder, cfg.Embedder.CacheSize, cfg.Embedder.CacheTTL, cfg.Embedder.Provider+":"+cfg.Embedder.Model)
	}
	embedder = embed.RateLimited(embedder, cfg.Embedder.RatePerSecond, cfg.Embedder.Burst)
	dim := cfg.Embedder.Dimension
	if dim <= 0 {
		dim = embed.DimensionOf(embedder, embed.DefaultDimension)
	}

	vs, err := a.openStore(ctx, dim)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = vs

	opts := engine.Options{
		Dimension:      dim,
		RecurringLimit: cfg.Engine.RecurringLimit,
		DefaultLimit:   cfg.Engine.DefaultLimit,
	}
	switch cfg.Lock.Backend {
	case "none":
		opts.Unserialized = true
	case "redis":
		rl, err := lock.NewRedisLocker(ctx, lock.RedisConfig{
			Addr:      cfg.Lock.RedisAddr,
			Password:  cfg.Lock.Password,
			KeyPrefix: cfg.Lock.KeyPrefix,
			TTL:       cfg.Lock.TTL,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis lock: %w", err)
		}
		a.closers = append(a.closers, rl)
		opts.Locker = rl.WithLogger(a.logger)
	default:
		opts.Locker = lock.NewLocalLocker()
	}

	a.engine = engine.NewEngine(vs, opts).WithEmbedder(embedder).WithLogger(a.logger)
	a.profiles = social.NewProfiles(a.engine, social.NewKeywordExtractor()).WithLogger(a.logger)
	a.assembler = social.NewAssembler(a.engine, a.profiles).WithSetting(social.SettingByInterests).WithLogger(a.logger)
	a.manager = social.NewManager(a.engine, a.profiles)

	gen, err := a.generator(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.publisher = story.NewPublisher(a.engine, a.profiles, a.assembler, gen).
		WithConcurrency(cfg.Story.Concurrency).
		WithLogger(a.logger)
	return a, nil
}

func (a *app) openStore(ctx context.Context, dim int) (store.VectorStore, error) {
	sc := a.cfg.Store
	var (
		vs  store.VectorStore
		err error
	)
	switch sc.Backend {
	case "qdrant":
		var qs *store.QdrantStore
		qs, err = store.NewQdrantStore(store.QdrantConfig{
			BaseURL:    sc.Qdrant.URL,
			APIKey:     sc.Qdrant.APIKey,
			Collection: sc.Qdrant.Collection,
			Namespace:  sc.Namespace,
			Dimension:  dim,
		})
		if err == nil {
			vs = qs.WithLogger(a.logger)
		}
	case "postgres":
		vs, err = store.NewPostgresStore(ctx, store.PostgresConfig{
			DSN:       sc.Postgres.DSN,
			Table:     sc.Postgres.Table,
			Namespace: sc.Namespace,
			Dimension: dim,
		})
	case "mongo":
		vs, err = store.NewMongoStore(ctx, store.MongoConfig{
			URI:        sc.Mongo.URI,
			Database:   sc.Mongo.Database,
			Collection: sc.Mongo.Collection,
			Namespace:  sc.Namespace,
		})
	default:
		vs = store.NewInMemoryStore()
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", sc.Backend, err)
	}

	if sc.Neo4j.URI != "" {
		driver, err := store.OpenNeo4jDriver(ctx, sc.Neo4j.URI, sc.Neo4j.User, sc.Neo4j.Password)
		if err != nil {
			closeQuietly(vs)
			return nil, fmt.Errorf("open neo4j: %w", err)
		}
		graph, err := a.attachGraph(ctx, vs, driver)
		if err != nil {
			closeQuietly(vs)
			return nil, err
		}
		vs = graph
		a.graph = graph
	}

	if init, ok := vs.(store.SchemaInitializer); ok {
		if err := init.EnsureSchema(ctx); err != nil {
			closeQuietly(vs)
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
	}
	if c, ok := vs.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	return vs, nil
}

// attachGraph decorates base with the Neo4j story graph. The driver is closed
// when the decorator cannot be built.
func (a *app) attachGraph(ctx context.Context, base store.VectorStore, driver store.Neo4jDriver) (*store.Neo4jStore, error) {
	graph, err := store.NewNeo4jStore(base, driver, a.cfg.Store.Neo4j.Database, a.cfg.Store.Neo4j.Strict)
	if err != nil {
		if cerr := driver.Close(ctx); cerr != nil {
			a.logger.Printf("close neo4j driver: %v", cerr)
		}
		return nil, fmt.Errorf("neo4j store: %w", err)
	}
	return graph.WithLogger(a.logger), nil
}

func (a *app) generator(ctx context.Context) (story.Generator, error) {
	if a.cfg.Story.Generator != "model" {
		return story.TemplateGenerator{}, nil
	}
	m, err := models.NewLLMProvider(ctx, a.cfg.LLM.Provider, a.cfg.LLM.Model, a.cfg.LLM.Prefix)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	return story.NewModelGenerator(models.TryCreateCachedLLM(m)), nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func closeQuietly(v any) {
	if c, ok := v.(io.Closer); ok {
		_ = c.Close()
	}
}
