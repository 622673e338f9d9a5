// Package vectorstore persists document embeddings in SQLite and answers
// nearest-neighbour queries by cosine distance.
package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"cinemind/internal/logger"
	"cinemind/models"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

// SpaceCosine is the only distance space the index supports.
const SpaceCosine = "cosine"

const dbFileName = "index.db"

var (
	ErrLengthMismatch = errors.New("texts, vectors, metadatas and ids must have equal length")
	ErrEmptyVector    = errors.New("vector is empty")
)

// Hit is one search result. Distance is 1 - cosine similarity, in [0,2].
type Hit struct {
	ID       string
	Document string
	Metadata map[string]any
	Distance float64
}

// Record is a stored row as returned by the inspection paths.
type Record struct {
	ID        string         `json:"id"`
	Document  string         `json:"document"`
	Metadata  map[string]any `json:"metadata"`
	Embedding []float32      `json:"embedding,omitempty"`
}

type Option func(*Store)

// WithDimensions sets the expected vector size.
func WithDimensions(n int) Option {
	return func(s *Store) { s.dims = n }
}

// WithMismatchHook is called for every vector written with the wrong size.
func WithMismatchHook(fn func(got, want int)) Option {
	return func(s *Store) { s.onMismatch = fn }
}

// Store is a single named collection inside a SQLite file.
type Store struct {
	db         *sql.DB
	path       string
	collection string
	dims       int
	onMismatch func(got, want int)
	log        *slog.Logger
}

// Open creates dir if needed and opens (or creates) the collection.
func Open(dir, collection string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	dbPath := filepath.Join(dir, dbFileName)

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}

	s := &Store{
		db:         db,
		path:       dbPath,
		collection: collection,
		dims:       models.EmbeddingDimensions,
		log:        logger.With("component", "vectorstore", "collection", collection),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.ensureCollection(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS collections (
			name       TEXT PRIMARY KEY,
			space      TEXT NOT NULL,
			dimensions INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS embeddings (
			collection TEXT NOT NULL,
			id         TEXT NOT NULL,
			document   TEXT NOT NULL,
			metadata   TEXT NOT NULL DEFAULT '{}',
			embedding  BLOB NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (collection, id)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating index schema: %w", err)
	}
	return nil
}

func (s *Store) ensureCollection(ctx context.Context) error {
	var space string
	err := s.db.QueryRowContext(ctx, `SELECT space FROM collections WHERE name = ?`, s.collection).Scan(&space)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO collections (name, space, dimensions, created_at) VALUES (?, ?, ?, ?)`,
			s.collection, SpaceCosine, s.dims, time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("creating collection %s: %w", s.collection, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("reading collection %s: %w", s.collection, err)
	case space != SpaceCosine:
		return fmt.Errorf("collection %s uses unsupported space %q", s.collection, space)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Path() string { return s.path }

func (s *Store) Collection() string { return s.collection }

// Add upserts rows. ids and metadatas may be nil; ids then default to fresh
// UUIDs. Every non-nil slice must match len(texts). The generated or given ids
// are returned in input order.
func (s *Store) Add(ctx context.Context, texts []string, vectors [][]float32, metadatas []map[string]any, ids []string) ([]string, error) {
	n := len(texts)
	if len(vectors) != n || (metadatas != nil && len(metadatas) != n) || (ids != nil && len(ids) != n) {
		return nil, fmt.Errorf("%w: texts=%d vectors=%d metadatas=%d ids=%d",
			ErrLengthMismatch, n, len(vectors), len(metadatas), len(ids))
	}
	if n == 0 {
		return nil, nil
	}

	if ids == nil {
		ids = make([]string, n)
		for i := range ids {
			ids[i] = uuid.NewString()
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin add: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO embeddings (collection, id, document, metadata, embedding, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			document = excluded.document,
			metadata = excluded.metadata,
			embedding = excluded.embedding,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return nil, fmt.Errorf("prepare add: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for i := 0; i < n; i++ {
		vec := vectors[i]
		if len(vec) == 0 {
			return nil, fmt.Errorf("%w: id %s", ErrEmptyVector, ids[i])
		}
		if len(vec) != s.dims {
			s.log.Warn("embedding dimension mismatch on write", "id", ids[i], "got", len(vec), "want", s.dims)
			if s.onMismatch != nil {
				s.onMismatch(len(vec), s.dims)
			}
		}

		var meta map[string]any
		if metadatas != nil {
			meta = metadatas[i]
		}
		metaJSON, err := encodeMetadata(meta)
		if err != nil {
			return nil, fmt.Errorf("encode metadata for %s: %w", ids[i], err)
		}

		if _, err := stmt.ExecContext(ctx, s.collection, ids[i], texts[i], metaJSON, EncodeVector(vec), now); err != nil {
			return nil, fmt.Errorf("write %s: %w", ids[i], err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit add: %w", err)
	}
	return ids, nil
}

// Search returns up to limit hits ordered by ascending cosine distance. Only
// rows whose metadata equals every filter entry are considered. Rows with a
// vector size different from the query are skipped. Backend failures are
// logged and yield no hits.
func (s *Store) Search(ctx context.Context, vector []float32, limit int, filter map[string]any) []Hit {
	if limit <= 0 || len(vector) == 0 {
		return []Hit{}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document, metadata, embedding FROM embeddings WHERE collection = ?`, s.collection)
	if err != nil {
		s.log.Error("search query failed", "error", err)
		return []Hit{}
	}
	defer rows.Close()

	hits := make([]Hit, 0, limit)
	skipped := 0
	for rows.Next() {
		var (
			id, doc, metaJSON string
			blob              []byte
		)
		if err := rows.Scan(&id, &doc, &metaJSON, &blob); err != nil {
			s.log.Error("search scan failed", "error", err)
			return []Hit{}
		}
		meta := decodeMetadata(metaJSON)
		if !matches(meta, filter) {
			continue
		}
		emb := DecodeVector(blob)
		if len(emb) != len(vector) {
			skipped++
			continue
		}
		hits = append(hits, Hit{
			ID:       id,
			Document: doc,
			Metadata: meta,
			Distance: 1 - cosineSimilarity(vector, emb),
		})
	}
	if err := rows.Err(); err != nil {
		s.log.Error("search iteration failed", "error", err)
		return []Hit{}
	}
	if skipped > 0 {
		s.log.Warn("skipped rows with mismatched dimension", "count", skipped, "query_dim", len(vector))
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// GetByID returns the row stored under id.
func (s *Store) GetByID(ctx context.Context, id string) (Record, bool) {
	var (
		doc, metaJSON string
		blob          []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT document, metadata, embedding FROM embeddings WHERE collection = ? AND id = ?`,
		s.collection, id).Scan(&doc, &metaJSON, &blob)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.log.Error("get by id failed", "id", id, "error", err)
		}
		return Record{}, false
	}
	return Record{ID: id, Document: doc, Metadata: decodeMetadata(metaJSON), Embedding: DecodeVector(blob)}, true
}

// List returns rows in insertion order matching filter. limit <= 0 means all.
func (s *Store) List(ctx context.Context, limit int, filter map[string]any) []Record {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document, metadata FROM embeddings WHERE collection = ? ORDER BY rowid`, s.collection)
	if err != nil {
		s.log.Error("list query failed", "error", err)
		return []Record{}
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var id, doc, metaJSON string
		if err := rows.Scan(&id, &doc, &metaJSON); err != nil {
			s.log.Error("list scan failed", "error", err)
			return []Record{}
		}
		meta := decodeMetadata(metaJSON)
		if !matches(meta, filter) {
			continue
		}
		out = append(out, Record{ID: id, Document: doc, Metadata: meta})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		s.log.Error("list iteration failed", "error", err)
	}
	return out
}

// CountBy tallies rows by the string form of one metadata key. Rows without
// the key are counted under "".
func (s *Store) CountBy(ctx context.Context, key string) map[string]int {
	counts := map[string]int{}
	for _, r := range s.List(ctx, 0, nil) {
		v, ok := r.Metadata[key]
		if !ok {
			counts[""]++
			continue
		}
		counts[fmt.Sprint(v)]++
	}
	return counts
}

// Count returns the number of rows, or 0 when the backend cannot answer.
func (s *Store) Count(ctx context.Context) int {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM embeddings WHERE collection = ?`, s.collection).Scan(&n); err != nil {
		s.log.Error("count failed", "error", err)
		return 0
	}
	return n
}

func (s *Store) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM embeddings WHERE collection = ? AND id = ?`, s.collection, id); err != nil {
			return fmt.Errorf("delete %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// Reset drops the collection and recreates it empty with the same space.
func (s *Store) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings WHERE collection = ?`, s.collection); err != nil {
		return fmt.Errorf("clear collection: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, s.collection); err != nil {
		return fmt.Errorf("drop collection: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reset: %w", err)
	}
	s.log.Info("collection reset")
	return s.ensureCollection(ctx)
}

func matches(meta, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := meta[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func encodeMetadata(meta map[string]any) (string, error) {
	if meta == nil {
		return "{}", nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeMetadata(raw string) map[string]any {
	meta := map[string]any{}
	if raw == "" {
		return meta
	}
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return map[string]any{}
	}
	return meta
}

// EncodeVector packs v as little-endian float32s.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector is the inverse of EncodeVector. A malformed blob gives nil.
func DecodeVector(data []byte) []float32 {
	if len(data)%4 != 0 {
		return nil
	}
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
