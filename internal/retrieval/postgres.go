package retrieval

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore backs both the VectorIndex and the SourceStore with a single
// database. Embeddings are stored as JSONB float arrays and ranked in-process
// with the same cosine scoring as the in-memory index, so both backends
// produce identical orderings for identical data.
type PostgresStore struct {
	db *sql.DB

	schemaOnce sync.Once
	schemaErr  error
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS embeddings (
  id TEXT PRIMARY KEY,
  vector JSONB NOT NULL,
  metadata JSONB NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS sources (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL DEFAULT '',
  url TEXT NOT NULL DEFAULT '',
  content_type TEXT NOT NULL DEFAULT '',
  content TEXT NOT NULL DEFAULT '',
  numbers JSONB NOT NULL DEFAULT '{}',
  images JSONB NOT NULL DEFAULT '[]'
);
`)
	})
	return s.schemaErr
}

func (s *PostgresStore) Upsert(ctx context.Context, records []VectorRecord) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	for _, r := range records {
		if r.ID == "" {
			continue
		}
		vec, err := json.Marshal(r.Values)
		if err != nil {
			return err
		}
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, `
INSERT INTO embeddings (id, vector, metadata) VALUES ($1,$2,$3)
ON CONFLICT (id) DO UPDATE SET vector=EXCLUDED.vector, metadata=EXCLUDED.metadata`,
			r.ID, vec, meta); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]SearchHit, error) {
	if topK <= 0 {
		topK = 10
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	query := `SELECT id, vector, metadata FROM embeddings`
	args := []any{}
	if len(filter) > 0 {
		f, err := json.Marshal(filter)
		if err != nil {
			return nil, err
		}
		query += ` WHERE metadata @> $1`
		args = append(args, f)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var (
			id   string
			vec  []byte
			meta []byte
		)
		if err := rows.Scan(&id, &vec, &meta); err != nil {
			return nil, err
		}
		var values []float32
		if err := json.Unmarshal(vec, &values); err != nil {
			return nil, err
		}
		metadata := map[string]string{}
		if err := json.Unmarshal(meta, &metadata); err != nil {
			return nil, err
		}
		hits = append(hits, SearchHit{ID: id, Score: CosineSimilarity(vector, values), Metadata: metadata})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (s *PostgresStore) Put(ctx context.Context, records []SourceRecord) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	for _, r := range records {
		if r.ID == "" {
			continue
		}
		numbers, err := json.Marshal(r.Numbers)
		if err != nil {
			return err
		}
		images, err := json.Marshal(r.Images)
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, `
INSERT INTO sources (id, title, url, content_type, content, numbers, images)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, url=EXCLUDED.url,
  content_type=EXCLUDED.content_type, content=EXCLUDED.content,
  numbers=EXCLUDED.numbers, images=EXCLUDED.images`,
			r.ID, r.Title, r.URL, r.ContentType, r.Content, numbers, images); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) GetByIDs(ctx context.Context, ids []string) ([]SourceRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "$" + strconv.Itoa(i+1)
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, url, content_type, content, numbers, images FROM sources WHERE id IN (`+
			strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := map[string]SourceRecord{}
	for rows.Next() {
		var (
			r       SourceRecord
			numbers []byte
			images  []byte
		)
		if err := rows.Scan(&r.ID, &r.Title, &r.URL, &r.ContentType, &r.Content, &numbers, &images); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(numbers, &r.Numbers); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(images, &r.Images); err != nil {
			return nil, err
		}
		byID[r.ID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Preserve input order, skip missing ids.
	out := make([]SourceRecord, 0, len(ids))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}
