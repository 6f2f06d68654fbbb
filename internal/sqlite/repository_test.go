package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavel-fokin/dropcode/internal/content"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func record(code string, payload content.Payload, created time.Time) *content.Record {
	return &content.Record{
		Code:      code,
		Payload:   payload,
		CreatedAt: created,
		ExpiresAt: created.Add(24 * time.Hour),
	}
}

func TestRepository(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

	text := record("4821", content.Text{Body: "hello world"}, now)
	file := record("1234", content.File{StorageRef: "1-2-report.pdf", Filename: "report.pdf"}, now)
	require.NoError(t, repo.Create(ctx, text))
	require.NoError(t, repo.Create(ctx, file))

	t.Run("find text", func(t *testing.T) {
		got, err := repo.FindByCode(ctx, "4821", now)
		require.NoError(t, err)
		assert.Equal(t, text, got)
	})

	t.Run("find file", func(t *testing.T) {
		got, err := repo.FindByCode(ctx, "1234", now)
		require.NoError(t, err)
		assert.Equal(t, file, got)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := repo.FindByCode(ctx, "9999", now)
		assert.ErrorIs(t, err, content.ErrNotFound)
	})

	t.Run("expired is hidden", func(t *testing.T) {
		_, err := repo.FindByCode(ctx, "4821", now.Add(24*time.Hour))
		assert.ErrorIs(t, err, content.ErrNotFound)

		exists, err := repo.Exists(ctx, "4821", now.Add(24*time.Hour))
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("exists", func(t *testing.T) {
		exists, err := repo.Exists(ctx, "4821", now)
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = repo.Exists(ctx, "9999", now)
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("duplicate live code", func(t *testing.T) {
		err := repo.Create(ctx, record("4821", content.Text{Body: "other"}, now.Add(time.Minute)))
		assert.ErrorIs(t, err, content.ErrCodeTaken)
	})

	t.Run("expired code is reusable", func(t *testing.T) {
		later := now.Add(25 * time.Hour)
		reused := record("4821", content.Text{Body: "again"}, later)
		require.NoError(t, repo.Create(ctx, reused))

		got, err := repo.FindByCode(ctx, "4821", later)
		require.NoError(t, err)
		assert.Equal(t, content.Text{Body: "again"}, got.Payload)
	})
}

func TestRepositoryDeleteAll(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, repo.Create(ctx, record("1000", content.Text{Body: "a"}, now)))
	require.NoError(t, repo.Create(ctx, record("1001", content.Text{Body: "b"}, now)))

	n, err := repo.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = repo.FindByCode(ctx, "1000", now)
	assert.ErrorIs(t, err, content.ErrNotFound)
}

func TestRepositoryDeleteExpired(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

	old := record("1000", content.File{StorageRef: "old.bin", Filename: "old.bin"}, now)
	fresh := record("1001", content.Text{Body: "fresh"}, now.Add(12*time.Hour))
	require.NoError(t, repo.Create(ctx, old))
	require.NoError(t, repo.Create(ctx, fresh))

	expired, err := repo.DeleteExpired(ctx, now.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, old, expired[0])

	got, err := repo.FindByCode(ctx, "1001", now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, fresh, got)

	expired, err = repo.DeleteExpired(ctx, now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestRepositoryExpiredFileKeepsCode(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

	old := record("4821", content.File{StorageRef: "1-2-old.bin", Filename: "old.bin"}, now.Add(-48*time.Hour))
	require.NoError(t, repo.Create(ctx, old))

	exists, err := repo.Exists(ctx, "4821", now)
	require.NoError(t, err)
	assert.True(t, exists)

	err = repo.Create(ctx, record("4821", content.Text{Body: "new"}, now))
	assert.ErrorIs(t, err, content.ErrCodeTaken)

	expired, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, content.File{StorageRef: "1-2-old.bin", Filename: "old.bin"}, expired[0].Payload)

	require.NoError(t, repo.Create(ctx, record("4821", content.Text{Body: "new"}, now)))
}

func TestNewRepositoryAcceptsURLPrefix(t *testing.T) {
	repo, err := NewRepository("sqlite://" + filepath.Join(t.TempDir(), "prefixed.db"))
	require.NoError(t, err)
	assert.NoError(t, repo.Close())
}
