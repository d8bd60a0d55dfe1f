package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
)

// CreateNamespace registers ns. Creating an existing namespace is a no-op.
func (s *SQLiteStore) CreateNamespace(ctx context.Context, ns *Namespace) error {
	if err := ValidateNamespace(ns.ID); err != nil {
		return err
	}
	if ns.DisplayName == "" {
		ns.DisplayName = ns.ID
	}
	if ns.CreatedAt.IsZero() {
		ns.CreatedAt = time.Now().UTC()
	}

	res, err := s.writer.ExecContext(ctx, `
		INSERT INTO namespaces (id, display_name, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		ns.ID, ns.DisplayName, ns.CreatedAt.UnixNano())
	if err != nil {
		return kberrors.StorageError("create namespace", err).WithDetail("namespace", ns.ID)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.writes.Add(1)
	}
	return nil
}

// GetNamespace returns ns or ERR_404_NAMESPACE_NOT_FOUND.
func (s *SQLiteStore) GetNamespace(ctx context.Context, id string) (*Namespace, error) {
	var ns Namespace
	var created int64
	err := s.reader.QueryRowContext(ctx,
		`SELECT id, display_name, created_at FROM namespaces WHERE id = ?`, id).
		Scan(&ns.ID, &ns.DisplayName, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kberrors.NamespaceNotFound(id)
	}
	if err != nil {
		return nil, kberrors.StorageError("get namespace", err)
	}
	ns.CreatedAt = time.Unix(0, created).UTC()
	return &ns, nil
}

// ListNamespaces returns every namespace ordered by ID.
func (s *SQLiteStore) ListNamespaces(ctx context.Context) ([]*Namespace, error) {
	rows, err := s.reader.QueryContext(ctx, `SELECT id, display_name, created_at FROM namespaces ORDER BY id`)
	if err != nil {
		return nil, kberrors.StorageError("list namespaces", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Namespace
	for rows.Next() {
		var ns Namespace
		var created int64
		if err := rows.Scan(&ns.ID, &ns.DisplayName, &created); err != nil {
			return nil, kberrors.StorageError("scan namespace", err)
		}
		ns.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, &ns)
	}
	return out, rows.Err()
}

// DeleteNamespace removes a namespace and everything it owns in one
// transaction. Feedback rows are kept.
func (s *SQLiteStore) DeleteNamespace(ctx context.Context, id string) (*Replacement, error) {
	fail := func(op string, err error) (*Replacement, error) {
		return nil, kberrors.StorageError("delete namespace: "+op, err).WithDetail("namespace", id)
	}

	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return fail("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM namespaces WHERE id = ?`, id).Scan(&n); err != nil {
		return fail("lookup", err)
	}
	if n == 0 {
		return nil, kberrors.NamespaceNotFound(id)
	}

	removed, err := queryStrings(ctx, tx, `SELECT id FROM chunks WHERE namespace = ?`, id)
	if err != nil {
		return fail("list chunks", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunk_fts WHERE rowid IN (SELECT rowid FROM chunks WHERE namespace = ?)`, id); err != nil {
		return fail("delete fts rows", err)
	}
	// documents, chunks and vectors cascade
	if _, err := tx.ExecContext(ctx, `DELETE FROM namespaces WHERE id = ?`, id); err != nil {
		return fail("delete namespace", err)
	}
	if err := tx.Commit(); err != nil {
		return fail("commit", err)
	}
	s.writes.Add(1)

	return &Replacement{Namespace: id, RemovedIDs: removed}, nil
}

// NamespaceStats counts documents, chunks and vectors of a namespace.
func (s *SQLiteStore) NamespaceStats(ctx context.Context, id string) (*NamespaceStats, error) {
	if _, err := s.GetNamespace(ctx, id); err != nil {
		return nil, err
	}
	st := &NamespaceStats{Namespace: id}
	err := s.reader.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM documents WHERE namespace = ?),
			(SELECT COUNT(*) FROM chunks WHERE namespace = ?),
			(SELECT COUNT(*) FROM vectors WHERE namespace = ?)`,
		id, id, id).Scan(&st.Documents, &st.Chunks, &st.Vectors)
	if err != nil {
		return nil, kberrors.StorageError("namespace stats", err)
	}
	return st, nil
}
