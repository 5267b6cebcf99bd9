// Package config loads story-memory settings from an optional YAML file and
// STORYMEM_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "STORYMEM"

type Config struct {
	Embedder EmbedderConfig `mapstructure:"embedder"`
	Store    StoreConfig    `mapstructure:"store"`
	Lock     LockConfig     `mapstructure:"lock"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Story    StoryConfig    `mapstructure:"story"`
	LLM      LLMConfig      `mapstructure:"llm"`
}

type EmbedderConfig struct {
	Provider      string        `mapstructure:"provider"`
	Model         string        `mapstructure:"model"`
	Dimension     int           `mapstructure:"dimension"`
	CacheSize     int           `mapstructure:"cache_size"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
}

type StoreConfig struct {
	Backend   string         `mapstructure:"backend"`
	Namespace string         `mapstructure:"namespace"`
	Qdrant    QdrantConfig   `mapstructure:"qdrant"`
	Postgres  PostgresConfig `mapstructure:"postgres"`
	Mongo     MongoConfig    `mapstructure:"mongo"`
	Neo4j     Neo4jConfig    `mapstructure:"neo4j"`
}

type QdrantConfig struct {
	URL        string `mapstructure:"url"`
	APIKey     string `mapstructure:"api_key"`
	Collection string `mapstructure:"collection"`
}

type PostgresConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

// Neo4jConfig enables the story lineage graph when URI is set.
type Neo4jConfig struct {
	URI      string `mapstructure:"uri"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	Strict   bool   `mapstructure:"strict"`
}

type LockConfig struct {
	Backend   string        `mapstructure:"backend"`
	RedisAddr string        `mapstructure:"redis_addr"`
	Password  string        `mapstructure:"redis_password"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

type EngineConfig struct {
	RecurringLimit int `mapstructure:"recurring_limit"`
	DefaultLimit   int `mapstructure:"default_limit"`
}

type StoryConfig struct {
	Format      string `mapstructure:"format"`
	Style       string `mapstructure:"style"`
	Generator   string `mapstructure:"generator"`
	Concurrency int    `mapstructure:"concurrency"`
}

type LLMConfig struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	Prefix   string `mapstructure:"prefix"`
}

var defaults = map[string]any{
	"embedder.provider":        "",
	"embedder.model":           "",
	"embedder.dimension":       0,
	"embedder.cache_size":      1024,
	"embedder.cache_ttl":       10 * time.Minute,
	"embedder.rate_per_second": 0.0,
	"embedder.burst":           1,
	"store.backend":            "memory",
	"store.namespace":          "default",
	"store.qdrant.url":         "http://localhost:6333",
	"store.qdrant.collection":  "story_memories",
	"store.postgres.table":     "story_memories",
	"store.mongo.uri":          "mongodb://localhost:27017",
	"store.mongo.database":     "storymem",
	"store.mongo.collection":   "memories",
	"store.neo4j.user":         "neo4j",
	"store.neo4j.database":     "neo4j",
	"store.neo4j.strict":       false,
	"lock.backend":             "local",
	"lock.redis_addr":          "localhost:6379",
	"lock.key_prefix":          "storymem:lock:",
	"lock.ttl":                 30 * time.Second,
	"engine.recurring_limit":   100,
	"engine.default_limit":     10,
	"story.format":             "ARENA_LONG",
	"story.style":              "epic",
	"story.generator":          "template",
	"story.concurrency":        4,
	"llm.provider":             "dummy",
	"llm.model":                "",
	"llm.prefix":               "",
}

// Secrets have no defaults and are only read from the file or the environment.
var secrets = []string{
	"store.qdrant.api_key",
	"store.postgres.dsn",
	"store.neo4j.uri",
	"store.neo4j.password",
	"lock.redis_password",
}

// Load reads path (skipped when empty) over the defaults, then applies
// STORYMEM_* overrides such as STORYMEM_STORE_BACKEND.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range secrets {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks backend names and numeric bounds.
func (c *Config) Validate() error {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	switch c.Store.Backend {
	case "memory", "qdrant", "postgres", "mongo":
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Backend == "postgres" && c.Store.Postgres.DSN == "" {
		return fmt.Errorf("config: store.postgres.dsn is required for the postgres backend")
	}

	c.Lock.Backend = strings.ToLower(strings.TrimSpace(c.Lock.Backend))
	switch c.Lock.Backend {
	case "local", "redis", "none":
	default:
		return fmt.Errorf("config: unknown lock backend %q", c.Lock.Backend)
	}

	if c.Embedder.Dimension < 0 {
		return fmt.Errorf("config: embedder.dimension must not be negative")
	}
	switch c.Story.Generator {
	case "template", "model":
	default:
		return fmt.Errorf("config: unknown story generator %q", c.Story.Generator)
	}
	return nil
}
