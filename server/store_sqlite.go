package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const runSQLiteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	source TEXT NOT NULL,
	instruction TEXT,
	payload BLOB,
	result BLOB NOT NULL,
	node_count INTEGER NOT NULL DEFAULT 0,
	warning_count INTEGER NOT NULL DEFAULT 0,
	error_count INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_created
ON runs(created_at);`

// Fixed-width UTC timestamps so created_at compares lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

const runSelectColumns = `id, source, instruction, payload, result, node_count, warning_count, error_count, created_at`

// SQLiteStoreConfig configures the SQLite run store.
type SQLiteStoreConfig struct {
	DSN string
}

// SQLiteStore persists run records in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite-backed run store.
func NewSQLiteStore(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("run store sqlite dsn is required")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("run sqlite store open: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run sqlite store set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run sqlite store set busy timeout: %w", err)
	}
	if _, err := db.Exec(runSQLiteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run sqlite store create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, rec RunRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO runs (id, source, instruction, payload, result, node_count, warning_count, error_count, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Source,
		nullIfEmpty(rec.Instruction),
		[]byte(rec.Payload),
		[]byte(rec.Result),
		rec.NodeCount,
		rec.WarningCount,
		rec.ErrorCount,
		rec.CreatedAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("run sqlite store create: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (RunRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runSelectColumns+` FROM runs WHERE id = ?`, id)
	rec, err := scanRunRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunRecord{}, false, nil
		}
		return RunRecord{}, false, err
	}
	return rec, true, nil
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `SELECT ` + runSelectColumns + ` FROM runs ORDER BY seq DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("run sqlite store list: %w", err)
	}
	defer rows.Close()

	records := make([]RunRecord, 0)
	for rows.Next() {
		rec, err := scanRunRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("run sqlite store list rows: %w", err)
	}
	return records, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("run sqlite store delete: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("run sqlite store delete affected rows: %w", err)
	}
	if affected == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE created_at < ?`,
		cutoff.UTC().Format(sqliteTimeLayout))
	if err != nil {
		return 0, fmt.Errorf("run sqlite store prune: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("run sqlite store prune affected rows: %w", err)
	}
	return affected, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type runScanner interface {
	Scan(dest ...any) error
}

func scanRunRecord(scanner runScanner) (RunRecord, error) {
	var (
		rec         RunRecord
		instruction sql.NullString
		payload     []byte
		result      []byte
		createdAt   string
	)
	if err := scanner.Scan(&rec.ID, &rec.Source, &instruction, &payload, &result,
		&rec.NodeCount, &rec.WarningCount, &rec.ErrorCount, &createdAt); err != nil {
		return RunRecord{}, err
	}

	created, err := time.Parse(sqliteTimeLayout, createdAt)
	if err != nil {
		return RunRecord{}, fmt.Errorf("run sqlite store parse created_at: %w", err)
	}
	rec.Instruction = instruction.String
	if len(payload) > 0 {
		rec.Payload = append([]byte(nil), payload...)
	}
	rec.Result = append([]byte(nil), result...)
	rec.CreatedAt = created
	return rec, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
