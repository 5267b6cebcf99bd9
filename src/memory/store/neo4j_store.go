package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Protocol-Lattice/story-memory/src/memory/model"
)

// Neo4jAccessMode controls whether a session is opened for read or write operations.
type Neo4jAccessMode string

const (
	AccessModeWrite Neo4jAccessMode = "write"
	AccessModeRead  Neo4jAccessMode = "read"
)

// Neo4jSessionConfig mirrors the minimal subset of Neo4j session configuration we require.
type Neo4jSessionConfig struct {
	AccessMode   Neo4jAccessMode
	DatabaseName string
}

// Neo4jDriver is the part of the neo4j driver the graph store uses.
type Neo4jDriver interface {
	NewSession(ctx context.Context, config Neo4jSessionConfig) (neo4jSession, error)
	Close(ctx context.Context) error
}

type neo4jSession interface {
	BeginTransaction(ctx context.Context) (neo4jTransaction, error)
	Run(ctx context.Context, query string, params map[string]any) (neo4jResult, error)
	Close(ctx context.Context) error
}

type neo4jTransaction interface {
	Run(ctx context.Context, query string, params map[string]any) (neo4jResult, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Close(ctx context.Context) error
}

type neo4jResult interface {
	Next(ctx context.Context) bool
	Record() neo4jRecord
	Err() error
	Close(ctx context.Context) error
}

type neo4jRecord interface {
	Get(key string) (any, bool)
}

// Neo4jStore decorates a VectorStore and mirrors story lineage into Neo4j:
// which memories were used in which stories, and which characters appear in them.
// Vectors and metadata stay in the base store, which remains the source of truth.
type Neo4jStore struct {
	base     VectorStore
	driver   Neo4jDriver
	database string
	strict   bool
	logger   *log.Logger
	nowFn    func() time.Time
}

var (
	_ VectorStore = (*Neo4jStore)(nil)
	_ StoryGraph  = (*Neo4jStore)(nil)
)

// ErrNeo4jUnavailable is returned when graph operations are attempted without a configured driver.
var ErrNeo4jUnavailable = errors.New("neo4j driver not configured")

// NewNeo4jStore wraps base. Graph write failures are logged and do not fail the
// primary write unless strict is set.
func NewNeo4jStore(base VectorStore, driver Neo4jDriver, database string, strict bool) (*Neo4jStore, error) {
	if base == nil {
		return nil, errors.New("base vector store is nil")
	}
	if driver == nil {
		return nil, ErrNeo4jUnavailable
	}
	return &Neo4jStore{
		base:     base,
		driver:   driver,
		database: database,
		strict:   strict,
		logger:   log.New(os.Stderr, "neo4j: ", log.LstdFlags),
		nowFn:    time.Now,
	}, nil
}

// WithLogger overrides the default logger.
func (s *Neo4jStore) WithLogger(l *log.Logger) *Neo4jStore {
	if l != nil {
		s.logger = l
	}
	return s
}

func (s *Neo4jStore) Upsert(ctx context.Context, records ...model.Record) error {
	if err := s.base.Upsert(ctx, records...); err != nil {
		return err
	}
	for _, r := range records {
		if err := s.syncRecord(ctx, r.ID, r.Metadata); err != nil {
			if err := s.graphFailure("upsert", r.ID, err); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Neo4jStore) Fetch(ctx context.Context, id string) (*model.Record, error) {
	return s.base.Fetch(ctx, id)
}

func (s *Neo4jStore) Update(ctx context.Context, id string, metadata model.Metadata) error {
	if err := s.base.Update(ctx, id, metadata); err != nil {
		return err
	}
	if err := s.syncRecord(ctx, id, metadata); err != nil {
		return s.graphFailure("update", id, err)
	}
	return nil
}

func (s *Neo4jStore) Query(ctx context.Context, q Query) ([]model.Match, error) {
	return s.base.Query(ctx, q)
}

func (s *Neo4jStore) Delete(ctx context.Context, ids ...string) error {
	if err := s.base.Delete(ctx, ids...); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	err := s.write(ctx, func(ctx context.Context, tx neo4jTransaction) error {
		return run(ctx, tx, neo4jDeleteCypher, map[string]any{"ids": ids})
	})
	if err != nil {
		return s.graphFailure("delete", fmt.Sprint(ids), err)
	}
	return nil
}

// DeleteWhere only touches the base store. Graph nodes of the removed records
// remain until they are deleted by id.
func (s *Neo4jStore) DeleteWhere(ctx context.Context, filter model.Filter) error {
	return s.base.DeleteWhere(ctx, filter)
}

// EnsureSchema delegates to the base store and creates the graph constraints.
func (s *Neo4jStore) EnsureSchema(ctx context.Context) error {
	if init, ok := s.base.(SchemaInitializer); ok {
		if err := init.EnsureSchema(ctx); err != nil {
			return err
		}
	}
	return s.write(ctx, func(ctx context.Context, tx neo4jTransaction) error {
		for _, q := range []string{
			"CREATE CONSTRAINT IF NOT EXISTS FOR (r:Record) REQUIRE r.id IS UNIQUE",
			"CREATE CONSTRAINT IF NOT EXISTS FOR (c:Character) REQUIRE c.name IS UNIQUE",
		} {
			if err := run(ctx, tx, q, nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// StoriesForMemory lists the stories a memory contributed to.
func (s *Neo4jStore) StoriesForMemory(ctx context.Context, memoryID string) ([]string, error) {
	return s.readIDs(ctx, neo4jStoriesForMemoryCypher, memoryID)
}

// MemoriesForStory lists the memories a story drew from.
func (s *Neo4jStore) MemoriesForStory(ctx context.Context, storyID string) ([]string, error) {
	return s.readIDs(ctx, neo4jMemoriesForStoryCypher, storyID)
}

// Close releases both the base store (when it implements Close) and the driver.
func (s *Neo4jStore) Close() error {
	var errs []error
	if closer, ok := s.base.(interface{ Close() error }); ok {
		errs = append(errs, closer.Close())
	}
	errs = append(errs, s.driver.Close(context.Background()))
	return errors.Join(errs...)
}

func (s *Neo4jStore) syncRecord(ctx context.Context, id string, meta model.Metadata) error {
	isStory := meta.Type == model.TypeStoryContext || meta.Type == model.TypeLongformStory
	characters := append(append([]string(nil), meta.Characters...), meta.Participants...)
	stories := meta.UsedInStories
	if stories == nil {
		stories = []string{}
	}
	return s.write(ctx, func(ctx context.Context, tx neo4jTransaction) error {
		params := map[string]any{
			"id":       id,
			"type":     string(meta.Type),
			"user":     firstNonEmpty(meta.UserID, meta.User),
			"is_story": isStory,
			"stories":  stories,
			"now":      model.FormatTimestamp(s.nowFn()),
		}
		if err := run(ctx, tx, neo4jSyncRecordCypher, params); err != nil {
			return err
		}
		if len(characters) == 0 {
			return nil
		}
		return run(ctx, tx, neo4jFeatureCypher, map[string]any{"id": id, "characters": characters})
	})
}

func (s *Neo4jStore) write(ctx context.Context, fn func(context.Context, neo4jTransaction) error) error {
	session, err := s.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: AccessModeWrite, DatabaseName: s.database})
	if err != nil {
		return fmt.Errorf("neo4j new session: %w", err)
	}
	defer session.Close(ctx)
	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		return fmt.Errorf("neo4j begin tx: %w", err)
	}
	defer tx.Close(ctx)
	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("neo4j commit: %w", err)
	}
	return nil
}

func (s *Neo4jStore) readIDs(ctx context.Context, query, id string) ([]string, error) {
	session, err := s.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: AccessModeRead, DatabaseName: s.database})
	if err != nil {
		return nil, fmt.Errorf("neo4j new session: %w", err)
	}
	defer session.Close(ctx)
	res, err := session.Run(ctx, query, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("neo4j query: %w", err)
	}
	defer res.Close(ctx)
	var ids []string
	for res.Next(ctx) {
		rec := res.Record()
		if rec == nil {
			continue
		}
		if v, ok := rec.Get("id"); ok {
			if s, ok := v.(string); ok {
				ids = append(ids, s)
			}
		}
	}
	return ids, res.Err()
}

func (s *Neo4jStore) graphFailure(op, id string, err error) error {
	if s.strict {
		return fmt.Errorf("neo4j %s %s: %w", op, id, err)
	}
	if s.logger != nil {
		s.logger.Printf("lineage %s %s failed: %v", op, id, err)
	}
	return nil
}

func run(ctx context.Context, tx neo4jTransaction, query string, params map[string]any) error {
	res, err := tx.Run(ctx, query, params)
	if err != nil {
		return err
	}
	if res != nil {
		return res.Close(ctx)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

const (
	neo4jSyncRecordCypher = `
MERGE (r:Record {id: $id})
SET r.type = $type, r.user = $user, r.updated_at = $now
FOREACH (_ IN CASE WHEN $is_story THEN [1] ELSE [] END | SET r:Story)
WITH r
UNWIND $stories AS sid
MERGE (s:Record {id: sid})
ON CREATE SET s:Story
MERGE (r)-[:USED_IN]->(s)
`
	neo4jFeatureCypher = `
MATCH (s:Record {id: $id})
UNWIND $characters AS name
MERGE (c:Character {name: name})
MERGE (c)-[:FEATURED_IN]->(s)
`
	neo4jDeleteCypher = `
MATCH (r:Record) WHERE r.id IN $ids
DETACH DELETE r
`
	neo4jStoriesForMemoryCypher = `
MATCH (:Record {id: $id})-[:USED_IN]->(s:Record)
RETURN s.id AS id ORDER BY id
`
	neo4jMemoriesForStoryCypher = `
MATCH (m:Record)-[:USED_IN]->(:Record {id: $id})
RETURN m.id AS id ORDER BY id
`
)
