// Package memory re-exports the pieces most callers need to run the memory
// engine without importing every subpackage.
package memory

import (
	embedpkg "github.com/Protocol-Lattice/story-memory/src/memory/embed"
	memengine "github.com/Protocol-Lattice/story-memory/src/memory/engine"
	lockpkg "github.com/Protocol-Lattice/story-memory/src/memory/lock"
	"github.com/Protocol-Lattice/story-memory/src/memory/model"
	storepkg "github.com/Protocol-Lattice/story-memory/src/memory/store"
)

type (
	Engine          = memengine.Engine
	Options         = memengine.Options
	Metrics         = memengine.Metrics
	MetricsSnapshot = memengine.MetricsSnapshot

	Record           = model.Record
	Match            = model.Match
	Metadata         = model.Metadata
	Filter           = model.Filter
	RecordType       = model.RecordType
	Platform         = model.Platform
	Interaction      = model.Interaction
	CharacterProfile = model.CharacterProfile
	StoryContext     = model.StoryContext

	VectorStore       = storepkg.VectorStore
	SchemaInitializer = storepkg.SchemaInitializer
	StoryGraph        = storepkg.StoryGraph
	Query             = storepkg.Query

	InMemoryStore = storepkg.InMemoryStore
	PostgresStore = storepkg.PostgresStore
	QdrantStore   = storepkg.QdrantStore
	MongoStore    = storepkg.MongoStore
	Neo4jStore    = storepkg.Neo4jStore

	Locker = lockpkg.Locker

	Embedder      = embedpkg.Embedder
	DummyEmbedder = embedpkg.DummyEmbedder
)

const (
	TypeMemory           = model.TypeMemory
	TypeInteraction      = model.TypeInteraction
	TypeCharacterProfile = model.TypeCharacterProfile
	TypeStoryContext     = model.TypeStoryContext
	TypeLongformStory    = model.TypeLongformStory
)

var (
	ErrNotSupported = embedpkg.ErrNotSupported
	ErrNotFound     = storepkg.ErrNotFound

	NewEngine      = memengine.NewEngine
	DefaultOptions = memengine.DefaultOptions
	IsRetryable    = model.IsRetryable

	AutoEmbedder = embedpkg.AutoEmbedder

	NewInMemoryStore = storepkg.NewInMemoryStore
	NewPostgresStore = storepkg.NewPostgresStore
	NewQdrantStore   = storepkg.NewQdrantStore
	NewMongoStore    = storepkg.NewMongoStore

	NewLocalLocker = lockpkg.NewLocalLocker
	NewRedisLocker = lockpkg.NewRedisLocker
)
