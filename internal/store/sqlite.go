package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite" // pure Go driver

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
	"github.com/Aman-CERP/amankb/internal/store/migrations"
)

// DatabaseFile is the SQLite file name inside the data directory.
const DatabaseFile = "amankb.db"

// readerConns bounds concurrent read connections. Readers see WAL snapshots
// and never wait on the writer.
const readerConns = 4

// SQLiteStore implements ChunkStore on a single SQLite database. Documents,
// chunks, FTS rows and vectors for one document change in one transaction.
type SQLiteStore struct {
	writer *sql.DB
	reader *sql.DB
	path   string

	writes atomic.Int64
}

var _ ChunkStore = (*SQLiteStore)(nil)

// OpenSQLiteStore opens (creating if needed) the database at path. An empty
// path opens a private in-memory database.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	s := &SQLiteStore{path: path}

	if path == "" {
		db, err := openDB("file::memory:", "", 1)
		if err != nil {
			return nil, err
		}
		s.writer, s.reader = db, db
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		if err := clearIfCorrupt(path); err != nil {
			return nil, err
		}

		writer, err := openDB("file:"+path, "&_txlock=immediate", 1)
		if err != nil {
			return nil, err
		}
		reader, err := openDB("file:"+path, "", readerConns)
		if err != nil {
			_ = writer.Close()
			return nil, err
		}
		s.writer, s.reader = writer, reader
	}

	if err := s.migrate(migrations.FS); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func openDB(base, extra string, conns int) (*sql.DB, error) {
	// _pragma is applied to every new connection, which matters for
	// foreign_keys since it is per-connection state.
	dsn := base + "?_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=cache_size(-65536)" +
		"&_pragma=temp_store(MEMORY)" + extra

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, kberrors.StorageError("failed to open database", err)
	}
	db.SetMaxOpenConns(conns)
	db.SetMaxIdleConns(conns)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, kberrors.StorageError("failed to open database", err)
	}
	return db, nil
}

// clearIfCorrupt removes a database that fails PRAGMA integrity_check. The
// store is rebuilt by re-ingesting.
func clearIfCorrupt(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	validErr := func() error {
		db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		var result string
		if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
			return err
		}
		if result != "ok" {
			return fmt.Errorf("integrity check: %s", result)
		}
		return nil
	}()
	if validErr == nil {
		return nil
	}

	slog.Warn("chunk_store_corrupted",
		slog.String("path", path),
		slog.String("error", validErr.Error()))

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return kberrors.New(kberrors.ErrCodeCorruptIndex,
			fmt.Sprintf("database corrupted at %s and cannot be removed", path), err)
	}
	_ = os.Remove(path + "-wal")
	_ = os.Remove(path + "-shm")

	slog.Info("chunk_store_cleared",
		slog.String("path", path),
		slog.String("reason", "corruption detected, re-ingest required"))
	return nil
}

// migrate applies embedded NNN_name.up.sql files newer than the recorded version.
func (s *SQLiteStore) migrate(fsys fs.FS) error {
	if _, err := s.writer.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at INTEGER NOT NULL
		)`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.writer.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}
	var upFiles []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			upFiles = append(upFiles, e.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil || version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		tx, err := s.writer.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations(version, applied_at) VALUES (?, ?)`,
			version, time.Now().UnixNano()); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// DB exposes the write handle for packages that own tables in this database
// (feedback log, quality cache).
func (s *SQLiteStore) DB() *sql.DB { return s.writer }

// ReadDB exposes the read pool.
func (s *SQLiteStore) ReadDB() *sql.DB { return s.reader }

// Path returns the database file path ("" for in-memory).
func (s *SQLiteStore) Path() string { return s.path }

// WriteCount returns the number of committed write transactions issued by
// document and namespace operations since open.
func (s *SQLiteStore) WriteCount() int64 { return s.writes.Load() }

// Close closes both pools, checkpointing the WAL first.
func (s *SQLiteStore) Close() error {
	var errs []error
	if s.writer != nil {
		_, _ = s.writer.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		errs = append(errs, s.writer.Close())
	}
	if s.reader != nil && s.reader != s.writer {
		errs = append(errs, s.reader.Close())
	}
	return errors.Join(errs...)
}

// PutDocument replaces every chunk, FTS row and vector of doc in one
// transaction. On any failure nothing is changed and a StorageError is returned.
func (s *SQLiteStore) PutDocument(ctx context.Context, doc *Document, chunks []*Chunk, vectors [][]float32, model string) (*Replacement, error) {
	if vectors != nil && len(vectors) != len(chunks) {
		return nil, kberrors.ValidationError(
			fmt.Sprintf("vectors and chunks length mismatch: %d vs %d", len(vectors), len(chunks)), nil)
	}

	fail := func(op string, err error) (*Replacement, error) {
		return nil, kberrors.StorageError("put document: "+op, err).
			WithDetail("document", doc.ID).
			WithDetail("namespace", doc.Namespace)
	}

	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return fail("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	var nsCount int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM namespaces WHERE id = ?`, doc.Namespace).Scan(&nsCount); err != nil {
		return fail("check namespace", err)
	}
	if nsCount == 0 {
		return nil, kberrors.NamespaceNotFound(doc.Namespace)
	}

	removed, err := queryStrings(ctx, tx, `SELECT id FROM chunks WHERE document_id = ? ORDER BY ordinal`, doc.ID)
	if err != nil {
		return fail("list old chunks", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunk_fts WHERE rowid IN (SELECT rowid FROM chunks WHERE document_id = ?)`, doc.ID); err != nil {
		return fail("delete fts rows", err)
	}
	// vectors cascade
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, doc.ID); err != nil {
		return fail("delete chunks", err)
	}

	doc.ChunkCount = len(chunks)
	if doc.Category == "" {
		doc.Category = CategoryGeneral
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents (id, namespace, source_type, source_uri, content_hash, title, category, indexed_at, chunk_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source_type  = excluded.source_type,
			content_hash = excluded.content_hash,
			title        = excluded.title,
			category     = excluded.category,
			indexed_at   = excluded.indexed_at,
			chunk_count  = excluded.chunk_count`,
		doc.ID, doc.Namespace, string(doc.SourceType), doc.SourceURI, doc.ContentHash,
		doc.Title, string(doc.Category), doc.IndexedAt.UnixNano(), doc.ChunkCount); err != nil {
		return fail("upsert document", err)
	}

	chunkStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, namespace, ordinal, heading_path, content, word_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fail("prepare chunk insert", err)
	}
	defer func() { _ = chunkStmt.Close() }()

	ftsStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunk_fts (rowid, chunk_id, namespace, content) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fail("prepare fts insert", err)
	}
	defer func() { _ = ftsStmt.Close() }()

	vecStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO vectors (chunk_id, namespace, model, dim, embedding) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fail("prepare vector insert", err)
	}
	defer func() { _ = vecStmt.Close() }()

	for i, c := range chunks {
		res, err := chunkStmt.ExecContext(ctx, c.ID, doc.ID, doc.Namespace, c.Ordinal, c.HeadingPath, c.Content, c.WordCount)
		if err != nil {
			return fail("insert chunk", err)
		}
		rowid, err := res.LastInsertId()
		if err != nil {
			return fail("chunk rowid", err)
		}
		if _, err := ftsStmt.ExecContext(ctx, rowid, c.ID, doc.Namespace, ftsContent(doc.Title, c)); err != nil {
			return fail("insert fts row", err)
		}
		if vectors != nil {
			if _, err := vecStmt.ExecContext(ctx, c.ID, doc.Namespace, model, len(vectors[i]), encodeVector(vectors[i])); err != nil {
				return fail("insert vector", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fail("commit", err)
	}
	s.writes.Add(1)

	return &Replacement{
		Namespace:  doc.Namespace,
		Title:      doc.Title,
		RemovedIDs: removed,
		Added:      chunks,
		Vectors:    vectors,
	}, nil
}

// ftsContent is what the lexical index sees for a chunk: title, heading
// breadcrumb and body.
func ftsContent(title string, c *Chunk) string {
	return strings.Join(IndexTerms(title+" "+c.HeadingPath+" "+c.Content), " ")
}

// DeleteDocument removes a document with its chunks, FTS rows and vectors.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) (*Replacement, error) {
	fail := func(op string, err error) (*Replacement, error) {
		return nil, kberrors.StorageError("delete document: "+op, err).WithDetail("document", id)
	}

	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return fail("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	var ns string
	err = tx.QueryRowContext(ctx, `SELECT namespace FROM documents WHERE id = ?`, id).Scan(&ns)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kberrors.New(kberrors.ErrCodeDocumentNotFound, "document not found: "+id, nil)
	}
	if err != nil {
		return fail("lookup", err)
	}

	removed, err := queryStrings(ctx, tx, `SELECT id FROM chunks WHERE document_id = ?`, id)
	if err != nil {
		return fail("list chunks", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunk_fts WHERE rowid IN (SELECT rowid FROM chunks WHERE document_id = ?)`, id); err != nil {
		return fail("delete fts rows", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fail("delete document", err)
	}
	if err := tx.Commit(); err != nil {
		return fail("commit", err)
	}
	s.writes.Add(1)

	return &Replacement{Namespace: ns, RemovedIDs: removed}, nil
}

const documentColumns = `id, namespace, source_type, source_uri, content_hash, title, category, indexed_at, chunk_count`

func scanDocument(row interface{ Scan(...any) error }) (*Document, error) {
	var d Document
	var sourceType, category string
	var indexedAt int64
	if err := row.Scan(&d.ID, &d.Namespace, &sourceType, &d.SourceURI, &d.ContentHash,
		&d.Title, &category, &indexedAt, &d.ChunkCount); err != nil {
		return nil, err
	}
	d.SourceType = SourceType(sourceType)
	d.Category = Category(category)
	d.IndexedAt = time.Unix(0, indexedAt).UTC()
	return &d, nil
}

// GetDocument returns a document or ERR_202_DOCUMENT_NOT_FOUND.
func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.reader.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kberrors.New(kberrors.ErrCodeDocumentNotFound, "document not found: "+id, nil)
	}
	if err != nil {
		return nil, kberrors.StorageError("get document", err)
	}
	return d, nil
}

// GetDocumentBySource looks a document up by its natural key.
func (s *SQLiteStore) GetDocumentBySource(ctx context.Context, namespace, sourceURI string) (*Document, error) {
	return s.GetDocument(ctx, DocumentID(namespace, sourceURI))
}

// GetDocuments returns the documents that exist among ids, keyed by ID.
func (s *SQLiteStore) GetDocuments(ctx context.Context, ids []string) (map[string]*Document, error) {
	out := make(map[string]*Document, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders, args := inClause(ids)
	rows, err := s.reader.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, kberrors.StorageError("get documents", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, kberrors.StorageError("scan document", err)
		}
		out[d.ID] = d
	}
	return out, rows.Err()
}

// ListDocuments returns the documents of a namespace ordered by source URI.
func (s *SQLiteStore) ListDocuments(ctx context.Context, namespace string) ([]*Document, error) {
	rows, err := s.reader.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE namespace = ? ORDER BY source_uri`, namespace)
	if err != nil {
		return nil, kberrors.StorageError("list documents", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []*Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, kberrors.StorageError("scan document", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

const chunkColumns = `id, document_id, namespace, ordinal, heading_path, content, word_count`

func scanChunk(row interface{ Scan(...any) error }) (*Chunk, error) {
	var c Chunk
	if err := row.Scan(&c.ID, &c.DocumentID, &c.Namespace, &c.Ordinal, &c.HeadingPath, &c.Content, &c.WordCount); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetChunk returns a chunk or ERR_203_CHUNK_NOT_FOUND.
func (s *SQLiteStore) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	row := s.reader.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, id)
	c, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kberrors.New(kberrors.ErrCodeChunkNotFound, "chunk not found: "+id, nil)
	}
	if err != nil {
		return nil, kberrors.StorageError("get chunk", err)
	}
	return c, nil
}

// GetChunks returns the chunks that exist among ids. Missing IDs are skipped.
func (s *SQLiteStore) GetChunks(ctx context.Context, ids []string) ([]*Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(ids)
	rows, err := s.reader.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, kberrors.StorageError("get chunks", err)
	}
	defer func() { _ = rows.Close() }()

	var chunks []*Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, kberrors.StorageError("scan chunk", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// ChunkIDsByDocument returns chunk IDs of a document in ordinal order.
func (s *SQLiteStore) ChunkIDsByDocument(ctx context.Context, documentID string) ([]string, error) {
	ids, err := queryStrings(ctx, s.reader, `SELECT id FROM chunks WHERE document_id = ? ORDER BY ordinal`, documentID)
	if err != nil {
		return nil, kberrors.StorageError("list chunk ids", err)
	}
	return ids, nil
}

// ListByNamespace streams the chunks of a namespace in document/ordinal order.
func (s *SQLiteStore) ListByNamespace(ctx context.Context, namespace string) iter.Seq2[*Chunk, error] {
	return func(yield func(*Chunk, error) bool) {
		rows, err := s.reader.QueryContext(ctx,
			`SELECT `+chunkColumns+` FROM chunks WHERE namespace = ? ORDER BY document_id, ordinal`, namespace)
		if err != nil {
			yield(nil, kberrors.StorageError("list chunks", err))
			return
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			c, err := scanChunk(rows)
			if err != nil {
				yield(nil, kberrors.StorageError("scan chunk", err))
				return
			}
			if !yield(c, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, kberrors.StorageError("list chunks", err))
		}
	}
}

// AllChunkIDs returns every chunk ID with its namespace.
func (s *SQLiteStore) AllChunkIDs(ctx context.Context) (map[string]string, error) {
	return queryPairs(ctx, s.reader, `SELECT id, namespace FROM chunks`)
}

// VectorChunkIDs returns every chunk ID that has a stored vector.
func (s *SQLiteStore) VectorChunkIDs(ctx context.Context) (map[string]string, error) {
	return queryPairs(ctx, s.reader, `SELECT chunk_id, namespace FROM vectors`)
}

// LoadVectors streams every stored vector.
func (s *SQLiteStore) LoadVectors(ctx context.Context) iter.Seq2[StoredVector, error] {
	return func(yield func(StoredVector, error) bool) {
		rows, err := s.reader.QueryContext(ctx, `SELECT chunk_id, namespace, embedding FROM vectors ORDER BY rowid`)
		if err != nil {
			yield(StoredVector{}, kberrors.StorageError("load vectors", err))
			return
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var v StoredVector
			var blob []byte
			if err := rows.Scan(&v.ChunkID, &v.Namespace, &blob); err != nil {
				yield(StoredVector{}, kberrors.StorageError("scan vector", err))
				return
			}
			v.Vector = decodeVector(blob)
			if !yield(v, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(StoredVector{}, kberrors.StorageError("load vectors", err))
		}
	}
}

// ReplaceVectors upserts vectors for existing chunks (model change rebuild and
// consistency repair). Chunks deleted in the meantime are skipped.
func (s *SQLiteStore) ReplaceVectors(ctx context.Context, ids []string, vectors [][]float32, model string) error {
	if len(ids) != len(vectors) {
		return kberrors.ValidationError("ids and vectors length mismatch", nil)
	}
	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return kberrors.StorageError("replace vectors", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO vectors (chunk_id, namespace, model, dim, embedding)
		SELECT id, namespace, ?, ?, ? FROM chunks WHERE id = ?
		ON CONFLICT(chunk_id) DO UPDATE SET
			model = excluded.model, dim = excluded.dim, embedding = excluded.embedding`)
	if err != nil {
		return kberrors.StorageError("replace vectors", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, id := range ids {
		if _, err := stmt.ExecContext(ctx, model, len(vectors[i]), encodeVector(vectors[i]), id); err != nil {
			return kberrors.StorageError("replace vectors", err).WithDetail("chunk", id)
		}
	}
	if err := tx.Commit(); err != nil {
		return kberrors.StorageError("replace vectors", err)
	}
	return nil
}

// DeleteAllVectors drops every stored vector (before a model change rebuild).
func (s *SQLiteStore) DeleteAllVectors(ctx context.Context) error {
	if _, err := s.writer.ExecContext(ctx, `DELETE FROM vectors`); err != nil {
		return kberrors.StorageError("delete vectors", err)
	}
	return nil
}

// DeleteVectors removes vectors by chunk ID.
func (s *SQLiteStore) DeleteVectors(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders, args := inClause(ids)
	if _, err := s.writer.ExecContext(ctx, `DELETE FROM vectors WHERE chunk_id IN (`+placeholders+`)`, args...); err != nil {
		return kberrors.StorageError("delete vectors", err)
	}
	return nil
}

// GetState reads a value from index_state; missing keys return "".
func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, error) {
	var v string
	err := s.reader.QueryRowContext(ctx, `SELECT value FROM index_state WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", kberrors.StorageError("get state", err)
	}
	return v, nil
}

// SetState writes a value to index_state.
func (s *SQLiteStore) SetState(ctx context.Context, key, value string) error {
	if _, err := s.writer.ExecContext(ctx, `
		INSERT INTO index_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value); err != nil {
		return kberrors.StorageError("set state", err)
	}
	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryStrings(ctx context.Context, q querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func queryPairs(ctx context.Context, q querier, query string, args ...any) (map[string]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, kberrors.StorageError("query ids", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, kberrors.StorageError("scan ids", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

func inClause(ids []string) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}

// encodeVector stores float32 values little-endian.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
