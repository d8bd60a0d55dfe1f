package feedback

import (
	"context"
	"database/sql"
	"strings"
	"time"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
	"github.com/Aman-CERP/amankb/internal/store"
)

// SQLiteLog implements Log on the feedback and quality_cache tables of the
// chunk store's database. Append-only triggers reject any UPDATE or DELETE
// on feedback rows.
type SQLiteLog struct {
	writer *sql.DB
	reader *sql.DB
}

var _ Log = (*SQLiteLog)(nil)

// NewSQLiteLog shares s's connections.
func NewSQLiteLog(s *store.SQLiteStore) *SQLiteLog {
	return &SQLiteLog{writer: s.DB(), reader: s.ReadDB()}
}

// Append inserts r.
func (l *SQLiteLog) Append(ctx context.Context, r *Record) error {
	if _, err := l.writer.ExecContext(ctx, `
		INSERT INTO feedback (id, target_id, rating, signal, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.TargetID, string(r.Rating), r.Signal, r.Comment, r.CreatedAt.UnixNano()); err != nil {
		return kberrors.StorageError("append feedback", err).WithDetail("target", r.TargetID)
	}
	return nil
}

// Summarize counts and averages one target's signals.
func (l *SQLiteLog) Summarize(ctx context.Context, targetID string) (Summary, error) {
	s := Summary{TargetID: targetID}
	var mean sql.NullFloat64
	err := l.reader.QueryRowContext(ctx,
		`SELECT COUNT(*), AVG(signal) FROM feedback WHERE target_id = ?`, targetID).
		Scan(&s.Samples, &mean)
	if err != nil {
		return s, kberrors.StorageError("summarize feedback", err)
	}
	s.Mean = mean.Float64
	return s, nil
}

// SummarizeAll aggregates every target, ordered by target ID.
func (l *SQLiteLog) SummarizeAll(ctx context.Context) ([]Summary, error) {
	rows, err := l.reader.QueryContext(ctx, `
		SELECT target_id, COUNT(*), AVG(signal)
		FROM feedback GROUP BY target_id ORDER BY target_id`)
	if err != nil {
		return nil, kberrors.StorageError("summarize feedback", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.TargetID, &s.Samples, &s.Mean); err != nil {
			return nil, kberrors.StorageError("scan feedback summary", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// History returns up to limit records of targetID, newest first.
func (l *SQLiteLog) History(ctx context.Context, targetID string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.reader.QueryContext(ctx, `
		SELECT id, target_id, rating, signal, comment, created_at
		FROM feedback WHERE target_id = ?
		ORDER BY created_at DESC, id LIMIT ?`, targetID, limit)
	if err != nil {
		return nil, kberrors.StorageError("feedback history", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Record
	for rows.Next() {
		var r Record
		var rating string
		var created int64
		if err := rows.Scan(&r.ID, &r.TargetID, &rating, &r.Signal, &r.Comment, &created); err != nil {
			return nil, kberrors.StorageError("scan feedback", err)
		}
		r.Rating = Rating(rating)
		r.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, &r)
	}
	return out, rows.Err()
}

// PutQuality upserts one cache row.
func (l *SQLiteLog) PutQuality(ctx context.Context, q Quality) error {
	if _, err := l.writer.ExecContext(ctx, `
		INSERT INTO quality_cache (target_id, multiplier, samples, computed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(target_id) DO UPDATE SET
			multiplier  = excluded.multiplier,
			samples     = excluded.samples,
			computed_at = excluded.computed_at`,
		q.TargetID, q.Multiplier, q.Samples, q.ComputedAt.UnixNano()); err != nil {
		return kberrors.StorageError("put quality", err).WithDetail("target", q.TargetID)
	}
	return nil
}

// ReplaceQualities rebuilds the cache. Rows for targets absent from qs are
// dropped.
func (l *SQLiteLog) ReplaceQualities(ctx context.Context, qs []Quality) error {
	tx, err := l.writer.BeginTx(ctx, nil)
	if err != nil {
		return kberrors.StorageError("replace qualities: begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM quality_cache`); err != nil {
		return kberrors.StorageError("replace qualities: clear", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO quality_cache (target_id, multiplier, samples, computed_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return kberrors.StorageError("replace qualities: prepare", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, q := range qs {
		if _, err := stmt.ExecContext(ctx, q.TargetID, q.Multiplier, q.Samples, q.ComputedAt.UnixNano()); err != nil {
			return kberrors.StorageError("replace qualities: insert", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return kberrors.StorageError("replace qualities: commit", err)
	}
	return nil
}

// Qualities looks up cached rows for ids.
func (l *SQLiteLog) Qualities(ctx context.Context, ids []string) (map[string]Quality, error) {
	out := make(map[string]Quality, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	rows, err := l.reader.QueryContext(ctx, `
		SELECT target_id, multiplier, samples, computed_at
		FROM quality_cache WHERE target_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, kberrors.StorageError("get qualities", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var q Quality
		var computed int64
		if err := rows.Scan(&q.TargetID, &q.Multiplier, &q.Samples, &computed); err != nil {
			return nil, kberrors.StorageError("scan quality", err)
		}
		q.ComputedAt = time.Unix(0, computed).UTC()
		out[q.TargetID] = q
	}
	if err := rows.Err(); err != nil {
		return nil, kberrors.StorageError("get qualities", err)
	}
	return out, nil
}
