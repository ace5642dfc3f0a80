// Package audit keeps an append-only activity log (unlocks, saves, remote
// transfers) in a local SQLite database. Databases are identified by the
// hash of their db_key; the log never stores a path or file name.
//
// Logging is best effort: a failed insert is logged and swallowed so it
// can never break the operation being recorded.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/okpass/mobilecore/internal/dbx"
)

// Event classifies a logged activity.
type Event string

const (
	EventUnlock      Event = "unlock"
	EventCreate      Event = "create"
	EventSave        Event = "save"
	EventSaveError   Event = "save_error"
	EventRemoteRead  Event = "remote_read"
	EventRemoteWrite Event = "remote_write"
)

// Record is one logged activity.
type Record struct {
	ID        int64
	DbKeyHash string
	Event     Event
	Detail    string
	CreatedAt int64 // unix seconds
}

// Repository describes the activity log persistence operations.
type Repository interface {
	// Insert appends one record.
	Insert(ctx context.Context, r *Record) error

	// RecentByDb returns the newest records for one database hash,
	// newest first.
	RecentByDb(ctx context.Context, dbKeyHash string, limit int) ([]Record, error)

	// Recent returns the newest records across all databases, newest first.
	Recent(ctx context.Context, limit int) ([]Record, error)

	// DeleteOlderThan removes records created before cutoff (unix seconds)
	// and returns how many were removed.
	DeleteOlderThan(ctx context.Context, cutoff int64) (int64, error)
}

// SQLiteRepository implements Repository over a dbx.DBTX (either *sql.DB
// or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Insert(ctx context.Context, rec *Record) error {
	query := `INSERT INTO audit_log (db_key_hash, event, detail, created_at) VALUES (?, ?, ?, ?)`
	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().Unix()
	}
	res, err := r.db.ExecContext(ctx, query, rec.DbKeyHash, rec.Event, rec.Detail, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		rec.ID = id
	}
	return nil
}

func (r *SQLiteRepository) RecentByDb(ctx context.Context, dbKeyHash string, limit int) ([]Record, error) {
	query := `SELECT id, db_key_hash, event, detail, created_at FROM audit_log
			WHERE db_key_hash = ? ORDER BY created_at DESC, id DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, dbKeyHash, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select audit records: %w", err)
	}
	return scanRecords(rows)
}

func (r *SQLiteRepository) Recent(ctx context.Context, limit int) ([]Record, error) {
	query := `SELECT id, db_key_hash, event, detail, created_at FROM audit_log
			ORDER BY created_at DESC, id DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select audit records: %w", err)
	}
	return scanRecords(rows)
}

func (r *SQLiteRepository) DeleteOlderThan(ctx context.Context, cutoff int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM audit_log WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete audit records: %w", err)
	}
	return res.RowsAffected()
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()
	var result []Record
	for rows.Next() {
		var item Record
		if err := rows.Scan(&item.ID, &item.DbKeyHash, &item.Event, &item.Detail, &item.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
