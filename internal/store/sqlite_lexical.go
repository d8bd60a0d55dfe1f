package store

import (
	"context"
	"strings"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
)

// SQLiteLexicalIndex implements LexicalIndex over the chunk_fts FTS5 table
// that SQLiteStore maintains inside its document transactions.
type SQLiteLexicalIndex struct {
	store *SQLiteStore
}

var _ LexicalIndex = (*SQLiteLexicalIndex)(nil)

// NewSQLiteLexicalIndex returns the FTS5 index backed by store.
func NewSQLiteLexicalIndex(store *SQLiteStore) *SQLiteLexicalIndex {
	return &SQLiteLexicalIndex{store: store}
}

// InStore reports that writes to this index already happen inside
// PutDocument, so callers need not Apply replacements.
func (s *SQLiteLexicalIndex) InStore() bool { return true }

// Search ranks chunks by FTS5 bm25(). Quoted phrases must match as adjacent
// tokens; other terms are OR-combined.
func (s *SQLiteLexicalIndex) Search(ctx context.Context, query, namespace string, limit int) ([]*LexicalResult, error) {
	parsed := ParseQuery(query)
	if parsed.Empty() || limit <= 0 {
		return []*LexicalResult{}, nil
	}

	// bm25() is negative, lower = better
	sqlText := `
		SELECT chunk_id, content, bm25(chunk_fts) AS score
		FROM chunk_fts
		WHERE chunk_fts MATCH ?`
	args := []any{parsed.FTS5()}
	if namespace != "" {
		sqlText += ` AND namespace = ?`
		args = append(args, namespace)
	}
	sqlText += ` ORDER BY score, chunk_id LIMIT ?`
	args = append(args, limit)

	rows, err := s.store.reader.QueryContext(ctx, sqlText, args...)
	if err != nil {
		// a malformed MATCH expression is an empty result, not a failure
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return []*LexicalResult{}, nil
		}
		return nil, kberrors.StorageError("lexical search", err)
	}
	defer func() { _ = rows.Close() }()

	terms := parsed.AllTerms()
	results := make([]*LexicalResult, 0, limit)
	for rows.Next() {
		var id, content string
		var score float64
		if err := rows.Scan(&id, &content, &score); err != nil {
			return nil, kberrors.StorageError("scan lexical result", err)
		}
		results = append(results, &LexicalResult{
			ChunkID:      id,
			Score:        -score,
			MatchedTerms: matchedTerms(terms, content),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, kberrors.StorageError("lexical search", err)
	}
	return results, nil
}

// matchedTerms returns the query terms present in already-tokenized content.
func matchedTerms(terms []string, content string) []string {
	present := make(map[string]struct{})
	for _, t := range strings.Fields(content) {
		present[t] = struct{}{}
	}
	var out []string
	for _, t := range terms {
		if _, ok := present[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Apply rewrites the FTS rows of a replacement. PutDocument already does
// this transactionally; Apply exists for consistency repair.
func (s *SQLiteLexicalIndex) Apply(ctx context.Context, r *Replacement) error {
	if r == nil {
		return nil
	}
	tx, err := s.store.writer.BeginTx(ctx, nil)
	if err != nil {
		return kberrors.StorageError("apply lexical", err)
	}
	defer func() { _ = tx.Rollback() }()

	del, err := tx.PrepareContext(ctx, `DELETE FROM chunk_fts WHERE chunk_id = ?`)
	if err != nil {
		return kberrors.StorageError("apply lexical", err)
	}
	defer func() { _ = del.Close() }()

	for _, id := range r.RemovedIDs {
		if _, err := del.ExecContext(ctx, id); err != nil {
			return kberrors.StorageError("apply lexical", err).WithDetail("chunk", id)
		}
	}

	for _, c := range r.Added {
		if _, err := del.ExecContext(ctx, c.ID); err != nil {
			return kberrors.StorageError("apply lexical", err).WithDetail("chunk", c.ID)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chunk_fts (rowid, chunk_id, namespace, content)
			SELECT rowid, id, namespace, ? FROM chunks WHERE id = ?`,
			ftsContent(r.Title, c), c.ID); err != nil {
			return kberrors.StorageError("apply lexical", err).WithDetail("chunk", c.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return kberrors.StorageError("apply lexical", err)
	}
	return nil
}

// AllIDs returns every chunk ID present in chunk_fts.
func (s *SQLiteLexicalIndex) AllIDs(ctx context.Context) ([]string, error) {
	ids, err := queryStrings(ctx, s.store.reader, `SELECT chunk_id FROM chunk_fts ORDER BY chunk_id`)
	if err != nil {
		return nil, kberrors.StorageError("list fts ids", err)
	}
	return ids, nil
}

// Close is a no-op; the store owns the database.
func (s *SQLiteLexicalIndex) Close() error { return nil }
