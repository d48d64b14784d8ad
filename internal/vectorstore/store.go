package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Document is one chunked unit to add (spec.md §3's ContentChunk, as seen
// by C4's Add operation).
type Document struct {
	Text               string
	Metadata           map[string]any
	IsFromUploadedDoc  bool
	OriginalDocumentID string
}

// SearchResult is one row of Search's output.
type SearchResult struct {
	ID          int64
	TextContent string
	Metadata    map[string]any
	Distance    float64
	Similarity  float64
}

// SearchOptions configures Search's query shape: vector-only, FTS-only, or
// hybrid, plus an optional group and metadata-equality filter.
type SearchOptions struct {
	Vector         []float32
	TopK           int
	GroupID        string
	FTSQuery       string
	MetadataFilter map[string]any
}

// Store is the SQLite-backed hybrid vector + full-text table.
type Store struct {
	db        *sql.DB
	dimension int
	path      string
}

// Open creates or opens the persistent table at path with a fixed vector
// dimension, and (re)creates the FTS5 index under an inter-process file
// lock so that concurrent instances of the service don't race on schema
// creation, per spec.md §4.4's initialization step.
func Open(path string, dimension int) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: open sqlite: %w", err)
	}

	unlock, err := acquireFileLock(path + ".lock")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("vectorstore: acquire schema lock: %w", err)
	}
	defer unlock()

	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("vectorstore: create schema: %w", err)
	}
	if _, err := db.Exec(ftsDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("vectorstore: create fts index: %w", err)
	}
	if _, err := db.Exec(ftsTriggersDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("vectorstore: create fts triggers: %w", err)
	}

	return &Store{db: db, dimension: dimension, path: path}, nil
}

func (s *Store) Close() error { return s.db.Close() }

const schemaDDL = `
CREATE TABLE IF NOT EXISTS vector_documents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	vector BLOB NOT NULL,
	chat_id TEXT NOT NULL,
	source TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	text_content TEXT NOT NULL,
	is_from_uploaded_doc INTEGER NOT NULL DEFAULT 0,
	original_document_id TEXT
);
CREATE INDEX IF NOT EXISTS idx_vector_documents_chat_id ON vector_documents(chat_id);
`

const ftsDDL = `
CREATE VIRTUAL TABLE IF NOT EXISTS vector_documents_fts USING fts5(
	text_content, content='vector_documents', content_rowid='id'
);
`

const ftsTriggersDDL = `
CREATE TRIGGER IF NOT EXISTS vector_documents_ai AFTER INSERT ON vector_documents BEGIN
	INSERT INTO vector_documents_fts(rowid, text_content) VALUES (new.id, new.text_content);
END;
CREATE TRIGGER IF NOT EXISTS vector_documents_ad AFTER DELETE ON vector_documents BEGIN
	INSERT INTO vector_documents_fts(vector_documents_fts, rowid, text_content) VALUES ('delete', old.id, old.text_content);
END;
CREATE TRIGGER IF NOT EXISTS vector_documents_au AFTER UPDATE ON vector_documents BEGIN
	INSERT INTO vector_documents_fts(vector_documents_fts, rowid, text_content) VALUES ('delete', old.id, old.text_content);
	INSERT INTO vector_documents_fts(rowid, text_content) VALUES (new.id, new.text_content);
END;
`

// Add chunks each document's text, embeds the chunks via embedder,
// packages metadata (plus a stable _doc_id) as a JSON source string, and
// appends rows. Chunks whose embedding dimension doesn't match the table
// are skipped with a log line, per spec.md §4.4.
func (s *Store) Add(ctx context.Context, groupID string, documents []Document, embedder *Embedder, chunkSize, chunkOverlap int) (int, error) {
	inserted := 0
	for _, doc := range documents {
		chunks := Chunk(doc.Text, chunkSize, chunkOverlap)
		if len(chunks) == 0 {
			continue
		}
		vectors, err := embedder.Embed(ctx, chunks)
		if err != nil {
			return inserted, fmt.Errorf("vectorstore: embed document: %w", err)
		}

		docID := uuid.NewString()
		meta := cloneMeta(doc.Metadata)
		meta["_doc_id"] = docID

		sourceJSON, err := json.Marshal(meta)
		if err != nil {
			return inserted, fmt.Errorf("vectorstore: marshal source metadata: %w", err)
		}

		for idx, chunkText := range chunks {
			if idx >= len(vectors) || vectors[idx] == nil {
				log.Warn().Str("doc_id", docID).Int("chunk", idx).Msg("vectorstore: missing embedding, skipping chunk")
				continue
			}
			if len(vectors[idx]) != s.dimension {
				log.Warn().Str("doc_id", docID).Int("chunk", idx).
					Int("got_dim", len(vectors[idx])).Int("want_dim", s.dimension).
					Msg("vectorstore: embedding dimension mismatch, skipping chunk")
				continue
			}
			_, err := s.db.ExecContext(ctx, `
				INSERT INTO vector_documents
					(vector, chat_id, source, chunk_index, text_content, is_from_uploaded_doc, original_document_id)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				encodeVector(vectors[idx]), groupID, string(sourceJSON), idx, chunkText,
				boolToInt(doc.IsFromUploadedDoc), doc.OriginalDocumentID)
			if err != nil {
				return inserted, fmt.Errorf("vectorstore: insert chunk: %w", err)
			}
			inserted++
		}
	}
	return inserted, nil
}

// Search builds a vector-only, FTS-only, or hybrid query depending on
// which of opts.Vector/opts.FTSQuery are set, applying an optional
// group_id + metadata-filter WHERE clause, and returns results ordered by
// similarity (1 - distance) descending.
func (s *Store) Search(ctx context.Context, opts SearchOptions) ([]SearchResult, error) {
	if opts.TopK <= 0 {
		opts.TopK = 10
	}

	where, args := buildWhereClause(opts.GroupID, opts.MetadataFilter)

	switch {
	case len(opts.Vector) > 0 && opts.FTSQuery != "":
		return s.hybridSearch(ctx, opts, where, args)
	case len(opts.Vector) > 0:
		return s.vectorSearch(ctx, opts, where, args)
	case opts.FTSQuery != "":
		return s.ftsSearch(ctx, opts, where, args)
	default:
		return nil, fmt.Errorf("vectorstore: search requires a vector, an fts query, or both")
	}
}

func (s *Store) vectorSearch(ctx context.Context, opts SearchOptions, where string, args []any) ([]SearchResult, error) {
	rows, err := s.queryCandidates(ctx, where, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.vector, &r.source, &r.text); err != nil {
			return nil, err
		}
		vec := decodeVector(r.vector)
		dist := cosineDistance(opts.Vector, vec)
		results = append(results, toResult(r, dist))
	}
	return topK(results, opts.TopK), nil
}

func (s *Store) ftsSearch(ctx context.Context, opts SearchOptions, where string, args []any) ([]SearchResult, error) {
	query := quoteFTSQuery(opts.FTSQuery)
	if query == "" {
		return nil, nil
	}
	sqlText := `
		SELECT v.id, v.vector, v.source, v.text_content, bm25(vector_documents_fts) AS rank
		FROM vector_documents v
		JOIN vector_documents_fts f ON f.rowid = v.id
		WHERE f.text_content MATCH ?` + appendWhere(where) + `
		ORDER BY rank LIMIT ?`
	queryArgs := append([]any{query}, args...)
	queryArgs = append(queryArgs, opts.TopK)

	rows, err := s.db.QueryContext(ctx, sqlText, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: fts search: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r row
		var rank float64
		if err := rows.Scan(&r.id, &r.vector, &r.source, &r.text, &rank); err != nil {
			return nil, err
		}
		// bm25 is unbounded and lower-is-better; normalize to a
		// distance-like value in [0,1] via a logistic squashing so the
		// result shape matches the vector path's {distance, similarity}.
		dist := 1 / (1 + math.Exp(-rank))
		results = append(results, toResult(r, dist))
	}
	return results, nil
}

func (s *Store) hybridSearch(ctx context.Context, opts SearchOptions, where string, args []any) ([]SearchResult, error) {
	vecResults, err := s.vectorSearch(ctx, opts, where, args)
	if err != nil {
		return nil, err
	}
	ftsResults, err := s.ftsSearch(ctx, opts, where, args)
	if err != nil {
		return nil, err
	}

	merged := make(map[int64]SearchResult, len(vecResults)+len(ftsResults))
	for _, r := range vecResults {
		merged[r.ID] = r
	}
	for _, r := range ftsResults {
		if existing, ok := merged[r.ID]; ok {
			// average the two distance signals when both match.
			existing.Distance = (existing.Distance + r.Distance) / 2
			existing.Similarity = 1 - existing.Distance
			merged[r.ID] = existing
		} else {
			merged[r.ID] = r
		}
	}

	out := make([]SearchResult, 0, len(merged))
	for _, r := range merged {
		out = append(out, r)
	}
	return topK(out, opts.TopK), nil
}

func (s *Store) queryCandidates(ctx context.Context, where string, args []any) (*sql.Rows, error) {
	sqlText := `SELECT id, vector, source, text_content FROM vector_documents` + appendWhere(where)
	return s.db.QueryContext(ctx, sqlText, args...)
}

type row struct {
	id     int64
	vector []byte
	source string
	text   string
}

func toResult(r row, distance float64) SearchResult {
	var meta map[string]any
	_ = json.Unmarshal([]byte(r.source), &meta)
	return SearchResult{
		ID:          r.id,
		TextContent: r.text,
		Metadata:    meta,
		Distance:    distance,
		Similarity:  1 - distance,
	}
}

func topK(results []SearchResult, k int) []SearchResult {
	for i := 1; i < len(results); i++ {
		j := i
		for j > 0 && results[j-1].Distance > results[j].Distance {
			results[j-1], results[j] = results[j], results[j-1]
			j--
		}
	}
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// DeleteByGroup issues a single chat_id = ? predicate delete, per
// spec.md §4.4.
func (s *Store) DeleteByGroup(ctx context.Context, groupID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM vector_documents WHERE chat_id = ?`, groupID)
	if err != nil {
		return fmt.Errorf("vectorstore: delete by group: %w", err)
	}
	return nil
}

// buildWhereClause assembles an optional group_id + metadata-filter WHERE
// clause. Metadata equality supports string, int, float, and bool values
// (json_extract comparison); unsupported value types are dropped with a
// warning rather than erroring the whole query.
func buildWhereClause(groupID string, filter map[string]any) (string, []any) {
	var clauses []string
	var args []any

	if groupID != "" {
		clauses = append(clauses, "chat_id = ?")
		args = append(args, groupID)
	}

	for key, val := range filter {
		switch v := val.(type) {
		case string:
			clauses = append(clauses, fmt.Sprintf("json_extract(source, '$.%s') = ?", key))
			args = append(args, v)
		case bool:
			clauses = append(clauses, fmt.Sprintf("json_extract(source, '$.%s') = ?", key))
			args = append(args, boolToInt(v))
		case int, int32, int64:
			clauses = append(clauses, fmt.Sprintf("json_extract(source, '$.%s') = ?", key))
			args = append(args, v)
		case float32, float64:
			clauses = append(clauses, fmt.Sprintf("json_extract(source, '$.%s') = ?", key))
			args = append(args, v)
		default:
			log.Warn().Str("key", key).Msg("vectorstore: unsupported metadata filter value type, dropped")
		}
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return strings.Join(clauses, " AND "), args
}

func appendWhere(where string) string {
	if where == "" {
		return ""
	}
	return " AND " + where
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	n := len(b) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4 : i*4+4]))
	}
	return out
}

// cosineDistance returns 1 - cosine_similarity(a, b); inputs are assumed
// L2-normalized (the Embedder normalizes on the way in), so the dot
// product alone equals cosine similarity.
func cosineDistance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return 1 - dot
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func cloneMeta(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// acquireFileLock takes an exclusive advisory lock on path (creating it if
// needed) so that concurrent service instances don't race while creating
// the FTS5 schema, per spec.md §4.4. No cross-platform file-locking
// library exists anywhere in the corpus, so this uses the POSIX
// syscall.Flock primitive directly; acceptable since the service targets
// Linux deployment per the teacher's own container-first posture.
func acquireFileLock(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		return nil, err
	}
	return func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		_ = f.Close()
	}, nil
}
