package page

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/jackc/pgx/v5/stdlib"

	"pageforge/internal/classify"
	"pageforge/internal/content"
	"pageforge/internal/layout"
)

// PostgresStore persists pages in a single JSONB-backed table. Lookups by id
// go through a small LRU since assembled pages are immutable apart from image
// backfill (which invalidates the cached entry).
type PostgresStore struct {
	db *sql.DB

	schemaOnce sync.Once
	schemaErr  error

	byID *lru.Cache[string, *GeneratedPage]
}

func NewPostgresStore(dsn string, cacheSize int) (*PostgresStore, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cache, err := lru.New[string, *GeneratedPage](cacheSize)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db, byID: cache}, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS generated_pages (
  id TEXT PRIMARY KEY,
  query TEXT NOT NULL,
  normalized_query TEXT NOT NULL,
  content_type TEXT NOT NULL,
  metadata JSONB NOT NULL DEFAULT '{}',
  content_atoms JSONB NOT NULL DEFAULT '[]',
  layout_blocks JSONB NOT NULL DEFAULT '[]',
  images_ready BOOLEAN NOT NULL DEFAULT FALSE,
  image_status TEXT NOT NULL DEFAULT 'pending',
  rag_source_ids JSONB NOT NULL DEFAULT '[]',
  session_id TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_generated_pages_normalized_query
  ON generated_pages (normalized_query, created_at DESC);
`)
	})
	return s.schemaErr
}

func (s *PostgresStore) Insert(ctx context.Context, p *GeneratedPage) error {
	if p == nil || p.ID == "" {
		return errors.New("page: insert requires an id")
	}
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	meta, err := json.Marshal(p.Metadata)
	if err != nil {
		return err
	}
	atoms, err := json.Marshal(p.ContentAtoms)
	if err != nil {
		return err
	}
	blocks, err := json.Marshal(p.LayoutBlocks)
	if err != nil {
		return err
	}
	sources, err := json.Marshal(p.RAGSourceIDs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO generated_pages (
  id, query, normalized_query, content_type, metadata, content_atoms,
  layout_blocks, images_ready, image_status, rag_source_ids, session_id, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		p.ID, p.Query, p.NormalizedQuery, string(p.ContentType), meta, atoms,
		blocks, p.ImagesReady, string(p.ImageStatus), sources, p.SessionID, p.CreatedAt)
	if err != nil {
		return err
	}
	cp := *p
	s.byID.Add(p.ID, &cp)
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, id string, u Update) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	sets := make([]string, 0, 3)
	args := make([]any, 0, 4)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if u.ContentAtoms != nil {
		atoms, err := json.Marshal(*u.ContentAtoms)
		if err != nil {
			return err
		}
		sets = append(sets, "content_atoms = "+arg(atoms))
	}
	if u.ImagesReady != nil {
		sets = append(sets, "images_ready = "+arg(*u.ImagesReady))
	}
	if u.ImageStatus != nil {
		sets = append(sets, "image_status = "+arg(string(*u.ImageStatus)))
	}
	if len(sets) == 0 {
		return nil
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE generated_pages SET "+strings.Join(sets, ", ")+" WHERE id = "+arg(id), args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	s.byID.Remove(id)
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (*GeneratedPage, error) {
	if p, ok := s.byID.Get(id); ok {
		cp := *p
		return &cp, nil
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, selectColumns+" WHERE id = $1", id)
	p, err := scanPage(row)
	if err != nil {
		return nil, err
	}
	s.byID.Add(id, p)
	cp := *p
	return &cp, nil
}

func (s *PostgresStore) FindByNormalizedQuery(ctx context.Context, normalized string, minCreatedAt time.Time) (*GeneratedPage, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, selectColumns+`
 WHERE normalized_query = $1 AND created_at >= $2
 ORDER BY created_at DESC LIMIT 1`, normalized, minCreatedAt)
	return scanPage(row)
}

const selectColumns = `SELECT id, query, normalized_query, content_type, metadata,
 content_atoms, layout_blocks, images_ready, image_status, rag_source_ids,
 session_id, created_at FROM generated_pages`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPage(row rowScanner) (*GeneratedPage, error) {
	var (
		p           GeneratedPage
		contentType string
		imageStatus string
		meta        []byte
		atoms       []byte
		blocks      []byte
		sources     []byte
	)
	err := row.Scan(&p.ID, &p.Query, &p.NormalizedQuery, &contentType, &meta,
		&atoms, &blocks, &p.ImagesReady, &imageStatus, &sources, &p.SessionID, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.ContentType = classify.ContentType(contentType)
	p.ImageStatus = ImageStatus(imageStatus)
	if err := json.Unmarshal(meta, &p.Metadata); err != nil {
		return nil, err
	}
	p.ContentAtoms = []content.Atom{}
	if err := json.Unmarshal(atoms, &p.ContentAtoms); err != nil {
		return nil, err
	}
	p.LayoutBlocks = []layout.Block{}
	if err := json.Unmarshal(blocks, &p.LayoutBlocks); err != nil {
		return nil, err
	}
	p.RAGSourceIDs = []string{}
	if err := json.Unmarshal(sources, &p.RAGSourceIDs); err != nil {
		return nil, err
	}
	return &p, nil
}
