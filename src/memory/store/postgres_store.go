package store

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"github.com/pkg/errors"

	"github.com/Protocol-Lattice/story-memory/src/memory/model"
)

// PostgresConfig configures a PostgresStore.
type PostgresConfig struct {
	DSN       string
	Table     string
	Namespace string
	Dimension int
}

// PostgresStore implements VectorStore using Postgres + pgvector. Metadata lives in a
// JSONB column; filters are compiled to JSONB predicates.
type PostgresStore struct {
	DB        *pgxpool.Pool
	table     string
	namespace string
	dimension int
}

var (
	_ VectorStore       = (*PostgresStore)(nil)
	_ SchemaInitializer = (*PostgresStore)(nil)
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// NewPostgresStore connects to Postgres and registers the pgvector types on every connection.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.Table == "" {
		cfg.Table = "story_memory"
	}
	if !tableNamePattern.MatchString(cfg.Table) {
		return nil, errors.Errorf("invalid table name %q", cfg.Table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse Postgres DSN")
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	db, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to Postgres")
	}
	return &PostgresStore{DB: db, table: cfg.Table, namespace: cfg.Namespace, dimension: cfg.Dimension}, nil
}

// EnsureSchema creates the pgvector extension, the table and its indexes.
func (ps *PostgresStore) EnsureSchema(ctx context.Context) error {
	if ps.dimension <= 0 {
		return errors.New("postgres: dimension is required to create the table")
	}
	for _, stmt := range postgresSchema(ps.table, ps.dimension) {
		if _, err := ps.DB.Exec(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to apply schema statement %q", firstLine(stmt))
		}
	}
	return nil
}

func postgresSchema(table string, dim int) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
        namespace  TEXT NOT NULL DEFAULT '',
        id         TEXT NOT NULL,
        embedding  vector(%[2]d) NOT NULL,
        metadata   JSONB NOT NULL DEFAULT '{}'::jsonb,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        PRIMARY KEY (namespace, id)
)`, table, dim),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_type_idx ON %[1]s ((metadata->>'type'))`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_user_idx ON %[1]s ((metadata->>'userId'))`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_embedding_idx ON %[1]s USING hnsw (embedding vector_cosine_ops)`, table),
	}
}

func (ps *PostgresStore) Upsert(ctx context.Context, records ...model.Record) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	stmt := fmt.Sprintf(`
        INSERT INTO %s (namespace, id, embedding, metadata)
        VALUES ($1, $2, $3, $4::jsonb)
        ON CONFLICT (namespace, id) DO UPDATE
        SET embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata, updated_at = now()`, ps.table)
	for _, r := range records {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return errors.Wrap(err, "failed to marshal metadata")
		}
		batch.Queue(stmt, ps.namespace, r.ID, pgvector.NewVector(r.Vector), string(meta))
	}
	if err := ps.DB.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Wrap(err, "failed to upsert records")
	}
	return nil
}

func (ps *PostgresStore) Fetch(ctx context.Context, id string) (*model.Record, error) {
	var (
		vec  pgvector.Vector
		meta []byte
	)
	err := ps.DB.QueryRow(ctx,
		fmt.Sprintf(`SELECT embedding, metadata FROM %s WHERE namespace = $1 AND id = $2`, ps.table),
		ps.namespace, id).Scan(&vec, &meta)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch record")
	}
	rec := &model.Record{ID: id, Vector: vec.Slice()}
	if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal metadata")
	}
	return rec, nil
}

func (ps *PostgresStore) Update(ctx context.Context, id string, metadata model.Metadata) error {
	meta, err := json.Marshal(metadata)
	if err != nil {
		return errors.Wrap(err, "failed to marshal metadata")
	}
	tag, err := ps.DB.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET metadata = $3::jsonb, updated_at = now() WHERE namespace = $1 AND id = $2`, ps.table),
		ps.namespace, id, string(meta))
	if err != nil {
		return errors.Wrap(err, "failed to update metadata")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (ps *PostgresStore) Query(ctx context.Context, q Query) ([]model.Match, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	args := []any{ps.namespace}
	where, args := compilePostgresFilter(q.Filter, args)

	var sql string
	if model.IsZeroVector(q.Vector) {
		args = append(args, q.TopK)
		sql = fmt.Sprintf(`
        SELECT id, metadata, 0::float8 AS score
        FROM %s
        WHERE namespace = $1%s
        ORDER BY metadata->>'timestamp' DESC NULLS LAST, id
        LIMIT $%d`, ps.table, where, len(args))
	} else {
		args = append(args, pgvector.NewVector(q.Vector), q.TopK)
		sql = fmt.Sprintf(`
        SELECT id, metadata, 1 - (embedding <=> $%[3]d) AS score
        FROM %[1]s
        WHERE namespace = $1%[2]s
        ORDER BY embedding <=> $%[3]d
        LIMIT $%[4]d`, ps.table, where, len(args)-1, len(args))
	}

	rows, err := ps.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query records")
	}
	defer rows.Close()

	var matches []model.Match
	for rows.Next() {
		var (
			m    model.Match
			meta []byte
		)
		if err := rows.Scan(&m.ID, &meta, &m.Score); err != nil {
			return nil, errors.Wrap(err, "failed to scan match")
		}
		if err := json.Unmarshal(meta, &m.Metadata); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal metadata")
		}
		matches = append(matches, m)
	}
	return matches, errors.Wrap(rows.Err(), "failed to iterate matches")
}

func (ps *PostgresStore) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := ps.DB.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE namespace = $1 AND id = ANY($2)`, ps.table), ps.namespace, ids)
	return errors.Wrap(err, "failed to delete records")
}

func (ps *PostgresStore) DeleteWhere(ctx context.Context, filter model.Filter) error {
	if err := filter.Validate(); err != nil {
		return err
	}
	where, args := compilePostgresFilter(filter, []any{ps.namespace})
	_, err := ps.DB.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE namespace = $1%s`, ps.table, where), args...)
	return errors.Wrap(err, "failed to delete by filter")
}

func (ps *PostgresStore) Close() error {
	if ps.DB != nil {
		ps.DB.Close()
	}
	return nil
}

// compilePostgresFilter appends one " AND ..." predicate per condition. Field names
// travel as parameters so they never reach the SQL text.
func compilePostgresFilter(f model.Filter, args []any) (string, []any) {
	var sb strings.Builder
	param := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	for _, c := range f {
		field := param(c.Field) + "::text"
		sb.WriteString(" AND ")
		switch c.Op {
		case model.OpEq:
			v := c.Values[0]
			switch {
			case model.IsListField(c.Field):
				fmt.Fprintf(&sb, "jsonb_exists(metadata->%s, %s::text)", field, param(v.Str))
			case v.Kind == model.KindNumber:
				fmt.Fprintf(&sb, "(metadata->>%s)::numeric = %s::numeric", field, param(v.Num))
			case v.Kind == model.KindBool:
				fmt.Fprintf(&sb, "(metadata->>%s)::boolean = %s::boolean", field, param(v.Bool))
			default:
				fmt.Fprintf(&sb, "metadata->>%s = %s::text", field, param(v.Str))
			}
		case model.OpIn:
			vals := make([]string, len(c.Values))
			for i, v := range c.Values {
				if v.Kind == model.KindString {
					vals[i] = v.Str
				} else {
					vals[i] = v.String()
				}
			}
			if model.IsListField(c.Field) {
				fmt.Fprintf(&sb, "jsonb_exists_any(metadata->%s, %s::text[])", field, param(vals))
			} else {
				fmt.Fprintf(&sb, "metadata->>%s = ANY(%s::text[])", field, param(vals))
			}
		case model.OpNotExists:
			fmt.Fprintf(&sb, "COALESCE(metadata->%[1]s, 'null'::jsonb) IN ('null'::jsonb, '[]'::jsonb, '\"\"'::jsonb)", field)
		case model.OpGte:
			fmt.Fprintf(&sb, "(metadata->>%s)::numeric >= %s::numeric", field, param(c.Values[0].Num))
		}
	}
	return sb.String(), args
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
