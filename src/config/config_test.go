package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "default", cfg.Store.Namespace)
	assert.Equal(t, "http://localhost:6333", cfg.Store.Qdrant.URL)
	assert.Empty(t, cfg.Store.Qdrant.APIKey)
	assert.Empty(t, cfg.Store.Neo4j.URI)
	assert.Equal(t, "local", cfg.Lock.Backend)
	assert.Equal(t, 30*time.Second, cfg.Lock.TTL)
	assert.Equal(t, 10*time.Minute, cfg.Embedder.CacheTTL)
	assert.Equal(t, 100, cfg.Engine.RecurringLimit)
	assert.Equal(t, "ARENA_LONG", cfg.Story.Format)
	assert.Equal(t, "template", cfg.Story.Generator)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storymem.yaml")
	yaml := `
store:
  backend: qdrant
  qdrant:
    url: http://qdrant:6333
    collection: tales
lock:
  backend: redis
  ttl: 5s
embedder:
  provider: openai
  dimension: 1536
story:
  format: TWEET_SERIES
  style: noir
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "qdrant", cfg.Store.Backend)
	assert.Equal(t, "http://qdrant:6333", cfg.Store.Qdrant.URL)
	assert.Equal(t, "tales", cfg.Store.Qdrant.Collection)
	assert.Equal(t, "redis", cfg.Lock.Backend)
	assert.Equal(t, 5*time.Second, cfg.Lock.TTL)
	assert.Equal(t, "openai", cfg.Embedder.Provider)
	assert.Equal(t, 1536, cfg.Embedder.Dimension)
	assert.Equal(t, "TWEET_SERIES", cfg.Story.Format)
	assert.Equal(t, "noir", cfg.Story.Style)
	assert.Equal(t, "default", cfg.Store.Namespace)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("STORYMEM_STORE_BACKEND", "Postgres")
	t.Setenv("STORYMEM_STORE_POSTGRES_DSN", "postgres://localhost/story")
	t.Setenv("STORYMEM_STORE_QDRANT_API_KEY", "secret")
	t.Setenv("STORYMEM_ENGINE_RECURRING_LIMIT", "25")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Backend)
	assert.Equal(t, "postgres://localhost/story", cfg.Store.Postgres.DSN)
	assert.Equal(t, "secret", cfg.Store.Qdrant.APIKey)
	assert.Equal(t, 25, cfg.Engine.RecurringLimit)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	t.Run("store backend", func(t *testing.T) {
		t.Setenv("STORYMEM_STORE_BACKEND", "pinecone")
		_, err := Load("")
		assert.ErrorContains(t, err, "unknown store backend")
	})
	t.Run("postgres without dsn", func(t *testing.T) {
		t.Setenv("STORYMEM_STORE_BACKEND", "postgres")
		_, err := Load("")
		assert.ErrorContains(t, err, "dsn is required")
	})
	t.Run("lock backend", func(t *testing.T) {
		t.Setenv("STORYMEM_LOCK_BACKEND", "zookeeper")
		_, err := Load("")
		assert.ErrorContains(t, err, "unknown lock backend")
	})
	t.Run("generator", func(t *testing.T) {
		t.Setenv("STORYMEM_STORY_GENERATOR", "oracle")
		_, err := Load("")
		assert.ErrorContains(t, err, "unknown story generator")
	})
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
