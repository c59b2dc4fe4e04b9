package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/YinkaFoster/fostertours-sub001/internal/core/domain"
)

// CallRecordRepository implements port.CallRecordRepository. Timestamps are
// stored as unix nanoseconds so ordering is exact.
type CallRecordRepository struct {
	db *sql.DB
}

func NewCallRecordRepository(db *DB) *CallRecordRepository {
	return &CallRecordRepository{db: db.Conn}
}

const recordColumns = `id, caller_id, receiver_id, call_type, status, created_at, answered_at, ended_at, duration`

func (r *CallRecordRepository) Create(ctx context.Context, rec *domain.CallRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO call_records (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CallerID, rec.ReceiverID, rec.Type, rec.Status,
		rec.CreatedAt.UnixNano(), nanos(rec.AnsweredAt), nanos(rec.EndedAt), rec.Duration,
	)
	if err != nil {
		return fmt.Errorf("failed to create call record: %w", err)
	}
	return nil
}

func (r *CallRecordRepository) Get(ctx context.Context, id domain.CallID) (*domain.CallRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM call_records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get call record: %w", err)
	}
	return rec, nil
}

func (r *CallRecordRepository) Update(ctx context.Context, rec *domain.CallRecord) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE call_records SET status = ?, answered_at = ?, ended_at = ?, duration = ? WHERE id = ?`,
		rec.Status, nanos(rec.AnsweredAt), nanos(rec.EndedAt), rec.Duration, rec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update call record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *CallRecordRepository) ListForUser(ctx context.Context, userID domain.UserID, limit int) ([]domain.CallRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM call_records
		 WHERE caller_id = ? OR receiver_id = ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		userID, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list call records: %w", err)
	}
	defer rows.Close()

	var out []domain.CallRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call record: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*domain.CallRecord, error) {
	var (
		out                domain.CallRecord
		created            int64
		answered, finished sql.NullInt64
	)
	if err := s.Scan(&out.ID, &out.CallerID, &out.ReceiverID, &out.Type, &out.Status,
		&created, &answered, &finished, &out.Duration); err != nil {
		return nil, err
	}
	out.CreatedAt = time.Unix(0, created).UTC()
	out.AnsweredAt = fromNanos(answered)
	out.EndedAt = fromNanos(finished)
	return &out, nil
}

func nanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64).UTC()
	return &t
}
