package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"manifold/internal/config"
	"manifold/internal/ragerr"
	"manifold/internal/ragmeta"
)

// PGVector is a Backend storing one table per space in Postgres via the
// pgvector extension, metadata as JSONB. Grounded on
// internal/persistence/databases/postgres_vector.go, generalized from a
// single fixed "embeddings" table to one table per space key and from
// map[string]string metadata to the richer map[string]any documents
// carry.
type PGVector struct {
	pool   *pgxpool.Pool
	metric string
}

// NewPGVector opens a pool against cfg's PG* fields. Table creation is
// deferred to EnsureSpace, per space.
func NewPGVector(ctx context.Context, cfg config.StoreConfig) (*PGVector, error) {
	dsn := fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s sslmode=disable",
		cfg.PGHost, cfg.PGPort, cfg.PGDatabase, cfg.PGUser, cfg.PGPassword)
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, ragerr.NewStoreError("open postgres pool", err)
	}
	return &PGVector{pool: pool, metric: "cosine"}, nil
}

func (p *PGVector) Name() string { return "pgvector" }

func (p *PGVector) tableName(spaceKey string) string {
	return "embeddings_" + sanitizeTable(spaceKey)
}

// sanitizeTable keeps only ascii alnum/underscore so a space key can be
// used as a SQL identifier suffix.
func sanitizeTable(spaceKey string) string {
	b := strings.Builder{}
	for _, r := range spaceKey {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.ToLower(b.String())
}

func (p *PGVector) EnsureSpace(ctx context.Context, spaceKey string, dimensions int) error {
	if _, err := p.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return ragerr.NewStoreError("create vector extension", err)
	}
	vecType := "vector"
	if dimensions > 0 {
		vecType = fmt.Sprintf("vector(%d)", dimensions)
	}
	table := p.tableName(spaceKey)
	stmt := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  vec %s,
  payload TEXT NOT NULL DEFAULT '',
  metadata JSONB NOT NULL DEFAULT '{}'::jsonb
);`, table, vecType)
	if _, err := p.pool.Exec(ctx, stmt); err != nil {
		return ragerr.NewStoreError("create embeddings table", err)
	}
	return nil
}

func (p *PGVector) AddDocuments(ctx context.Context, spaceKey string, docs []ragmeta.Document, vectors [][]float32, ids []string) error {
	table := p.tableName(spaceKey)
	for i, d := range docs {
		metaJSON, err := json.Marshal(d.Metadata)
		if err != nil {
			return ragerr.NewStoreError("marshal metadata", err)
		}
		vecLit := toVectorLiteral(vectors[i])
		stmt := fmt.Sprintf(`
INSERT INTO %s(id, vec, payload, metadata) VALUES($1, $2::vector, $3, $4)
ON CONFLICT (id) DO UPDATE SET vec=EXCLUDED.vec, payload=EXCLUDED.payload, metadata=EXCLUDED.metadata`, table)
		if _, err := p.pool.Exec(ctx, stmt, ids[i], vecLit, d.Payload, metaJSON); err != nil {
			return ragerr.NewStoreError("upsert document", err)
		}
	}
	return nil
}

func (p *PGVector) DeleteDocuments(ctx context.Context, spaceKey string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	table := p.tableName(spaceKey)
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, table)
	if _, err := p.pool.Exec(ctx, stmt, ids); err != nil {
		return ragerr.NewStoreError("delete documents", err)
	}
	return nil
}

func (p *PGVector) SimilaritySearchByVector(ctx context.Context, spaceKey string, vector []float32, topK int, filter map[string]any) ([]ragmeta.Document, error) {
	if topK <= 0 {
		topK = 10
	}
	table := p.tableName(spaceKey)
	op := "<=>"
	switch p.metric {
	case "l2", "euclidean":
		op = "<->"
	case "ip", "dot":
		op = "<#>"
	}
	vecLit := toVectorLiteral(vector)
	where := ""
	args := []any{vecLit, topK}
	if len(filter) > 0 {
		filterJSON, err := json.Marshal(filter)
		if err != nil {
			return nil, ragerr.NewStoreError("marshal filter", err)
		}
		where = "WHERE metadata @> $3"
		args = append(args, filterJSON)
	}
	query := fmt.Sprintf(`SELECT payload, metadata FROM %s %s ORDER BY vec %s $1::vector LIMIT $2`, table, where, op)
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, ragerr.NewStoreError("similarity search", err)
	}
	defer rows.Close()

	out := make([]ragmeta.Document, 0, topK)
	for rows.Next() {
		var payload string
		var metaJSON []byte
		if err := rows.Scan(&payload, &metaJSON); err != nil {
			return nil, ragerr.NewStoreError("scan search row", err)
		}
		var meta map[string]any
		if err := json.Unmarshal(metaJSON, &meta); err != nil {
			return nil, ragerr.NewStoreError("unmarshal metadata", err)
		}
		out = append(out, ragmeta.Document{Payload: payload, Metadata: meta})
	}
	return out, rows.Err()
}

func (p *PGVector) ListMetadata(ctx context.Context, spaceKey string, limit int) ([]map[string]any, error) {
	if limit <= 0 {
		limit = 10000
	}
	table := p.tableName(spaceKey)
	stmt := fmt.Sprintf(`SELECT metadata FROM %s LIMIT $1`, table)
	rows, err := p.pool.Query(ctx, stmt, limit)
	if err != nil {
		// a not-yet-created table means an empty cache, not an error
		return nil, nil
	}
	defer rows.Close()

	out := make([]map[string]any, 0, limit)
	for rows.Next() {
		var metaJSON []byte
		if err := rows.Scan(&metaJSON); err != nil {
			return nil, ragerr.NewStoreError("scan metadata row", err)
		}
		var meta map[string]any
		if err := json.Unmarshal(metaJSON, &meta); err != nil {
			return nil, ragerr.NewStoreError("unmarshal metadata", err)
		}
		out = append(out, meta)
	}
	return out, rows.Err()
}

func (p *PGVector) Close() {
	p.pool.Close()
}

func toVectorLiteral(v []float32) string {
	if len(v) == 0 {
		return "[]"
	}
	b := strings.Builder{}
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(fmt.Sprintf("%g", x))
	}
	b.WriteByte(']')
	return b.String()
}
