package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/pavel-fokin/dropcode/internal/content"
)

// Repository implements content.Repository using SQLite
type Repository struct {
	db *sql.DB
}

// NewRepository opens (or creates) the database at dbPath. A "sqlite://"
// prefix is accepted and stripped.
func NewRepository(dbPath string) (*Repository, error) {
	dbPath = strings.TrimPrefix(dbPath, "sqlite://")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serialises writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	repo := &Repository{db: db}

	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return repo, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// initSchema creates the contents table. Timestamps are unix milliseconds.
func (r *Repository) initSchema() error {
	createTableQuery := `
	CREATE TABLE IF NOT EXISTS contents (
		code TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL,
		content TEXT NOT NULL,
		filename TEXT,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);`
	if _, err := r.db.Exec(createTableQuery); err != nil {
		return fmt.Errorf("failed to create contents table: %w", err)
	}

	createIndexQuery := `CREATE INDEX IF NOT EXISTS idx_contents_expires_at ON contents(expires_at);`
	if _, err := r.db.Exec(createIndexQuery); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

// Create stores a record. An expired text row holding the same code is
// replaced. A live row, or an expired file row still waiting for the sweep
// to remove its blob, yields content.ErrCodeTaken.
func (r *Repository) Create(ctx context.Context, rec *content.Record) error {
	kind, body, filename := content.EncodePayload(rec.Payload)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM contents WHERE code = ? AND expires_at <= ? AND type = 'text'`,
		rec.Code, rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to replace expired record: %w", err)
	}

	query := `
	INSERT INTO contents (code, type, content, filename, created_at, expires_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query,
		rec.Code,
		string(kind),
		body,
		sql.NullString{String: filename, Valid: kind == content.KindFile},
		rec.CreatedAt.UnixMilli(),
		rec.ExpiresAt.UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return content.ErrCodeTaken
		}
		return fmt.Errorf("failed to create content record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit content record: %w", err)
	}
	return nil
}

// FindByCode retrieves the live record holding code
func (r *Repository) FindByCode(ctx context.Context, code string, now time.Time) (*content.Record, error) {
	query := `
	SELECT code, type, content, filename, created_at, expires_at
	FROM contents
	WHERE code = ? AND expires_at > ?
	`

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, code, now.UnixMilli()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, content.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find content: %w", err)
	}
	return rec, nil
}

// Exists reports whether code is held by a live record or by an unswept
// file record
func (r *Repository) Exists(ctx context.Context, code string, now time.Time) (bool, error) {
	query := `
	SELECT EXISTS (
		SELECT 1 FROM contents
		WHERE code = ? AND (expires_at > ? OR type = 'file')
	)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, code, now.UnixMilli()).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check code: %w", err)
	}
	return exists, nil
}

// DeleteAll removes every record
func (r *Repository) DeleteAll(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM contents`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete content records: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// DeleteExpired removes and returns the records expired at now
func (r *Repository) DeleteExpired(ctx context.Context, now time.Time) ([]*content.Record, error) {
	query := `
	DELETE FROM contents
	WHERE expires_at <= ?
	RETURNING code, type, content, filename, created_at, expires_at
	`

	rows, err := r.db.QueryContext(ctx, query, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to delete expired records: %w", err)
	}
	defer rows.Close()

	var expired []*content.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan content row: %w", err)
		}
		expired = append(expired, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating content rows: %w", err)
	}

	return expired, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*content.Record, error) {
	var (
		code, kind, body     string
		filename             sql.NullString
		createdAt, expiresAt int64
	)
	if err := row.Scan(&code, &kind, &body, &filename, &createdAt, &expiresAt); err != nil {
		return nil, err
	}

	payload, err := content.DecodePayload(content.Kind(kind), body, filename.String)
	if err != nil {
		return nil, err
	}

	return &content.Record{
		Code:      code,
		Payload:   payload,
		CreatedAt: time.UnixMilli(createdAt).UTC(),
		ExpiresAt: time.UnixMilli(expiresAt).UTC(),
	}, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
