// Package postgres stores content records in PostgreSQL through pgxpool.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pavel-fokin/dropcode/internal/content"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// IsURL reports whether url selects this store.
func IsURL(url string) bool {
	return strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://")
}

// Migrate applies the embedded migrations to the database at url.
func Migrate(url string) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, migrateURL(url))
	if err != nil {
		return fmt.Errorf("failed to init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// migrateURL switches the scheme to the one golang-migrate's pgx/v5 driver registers.
func migrateURL(url string) string {
	for _, scheme := range []string{"postgresql://", "postgres://"} {
		if rest, ok := strings.CutPrefix(url, scheme); ok {
			return "pgx5://" + rest
		}
	}
	return url
}

// Repository implements content.Repository using PostgreSQL
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository migrates the schema, connects and pings the database.
func NewRepository(ctx context.Context, url string) (*Repository, error) {
	if err := Migrate(url); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return &Repository{pool: pool}, nil
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

// Create stores a record, replacing an expired text row with the same code.
// Expired file rows keep their code until SweepExpired returns them.
func (r *Repository) Create(ctx context.Context, rec *content.Record) error {
	kind, body, filename := content.EncodePayload(rec.Payload)

	var name *string
	if kind == content.KindFile {
		name = &filename
	}

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`DELETE FROM contents WHERE code = $1 AND expires_at <= $2 AND type = 'text'`,
			rec.Code, rec.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to replace expired record: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO contents (code, type, content, filename, created_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			rec.Code, string(kind), body, name, rec.CreatedAt, rec.ExpiresAt,
		)
		return err
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return content.ErrCodeTaken
		}
		return fmt.Errorf("failed to create content record: %w", err)
	}
	return nil
}

func (r *Repository) FindByCode(ctx context.Context, code string, now time.Time) (*content.Record, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT code, type, content, filename, created_at, expires_at
		FROM contents
		WHERE code = $1 AND expires_at > $2`,
		code, now,
	)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, content.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find content: %w", err)
	}
	return rec, nil
}

func (r *Repository) Exists(ctx context.Context, code string, now time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM contents WHERE code = $1 AND (expires_at > $2 OR type = 'file'))`,
		code, now,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check code: %w", err)
	}
	return exists, nil
}

func (r *Repository) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM contents`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete content records: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) DeleteExpired(ctx context.Context, now time.Time) ([]*content.Record, error) {
	rows, err := r.pool.Query(ctx, `
		DELETE FROM contents
		WHERE expires_at <= $1
		RETURNING code, type, content, filename, created_at, expires_at`,
		now,
	)
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

func scanRecord(row pgx.Row) (*content.Record, error) {
	var (
		code, kind, body     string
		filename             *string
		createdAt, expiresAt time.Time
	)
	if err := row.Scan(&code, &kind, &body, &filename, &createdAt, &expiresAt); err != nil {
		return nil, err
	}

	var name string
	if filename != nil {
		name = *filename
	}
	payload, err := content.DecodePayload(content.Kind(kind), body, name)
	if err != nil {
		return nil, err
	}

	return &content.Record{
		Code:      code,
		Payload:   payload,
		CreatedAt: createdAt.UTC(),
		ExpiresAt: expiresAt.UTC(),
	}, nil
}
