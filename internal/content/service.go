package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// DefaultRetention is how long a record stays live after creation.
const DefaultRetention = 24 * time.Hour

// Service provides the code-issuance and retrieval workflow
type Service struct {
	storage   BlobStorage
	repo      Repository
	codes     *CodeGenerator
	cache     *Cache
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithCache puts a record cache in front of the repository.
func WithCache(c *Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithLogger sets the logger used for best-effort failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
		s.codes.now = now
	}
}

// NewService creates a new content service
func NewService(storage BlobStorage, repo Repository, retention time.Duration, opts ...Option) *Service {
	if retention <= 0 {
		retention = DefaultRetention
	}
	s := &Service{
		storage:   storage,
		repo:      repo,
		codes:     NewCodeGenerator(repo),
		retention: retention,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "content")
	return s
}

// UploadRequest represents a file upload
type UploadRequest struct {
	Filename string
	Content  io.Reader
}

// PurgeResult summarises a bulk purge.
type PurgeResult struct {
	BlobsDeleted   int
	BlobErrors     int
	RecordsDeleted int64
}

// SweepResult summarises an expiry sweep.
type SweepResult struct {
	RecordsDeleted int
	BlobsDeleted   int
	BlobErrors     int
}

// UploadText stores body inline and returns the new record. Empty text is
// accepted.
func (s *Service) UploadText(ctx context.Context, body string) (*Record, error) {
	rec, err := s.create(ctx, Text{Body: body})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Text uploaded", "code", rec.Code, "size", humanize.Bytes(uint64(len(body))))
	return rec, nil
}

// UploadFile writes the blob first and only then inserts the record, so a
// failed write never leaves a record behind.
func (s *Service) UploadFile(ctx context.Context, req *UploadRequest) (*Record, error) {
	name := storageName(s.now(), req.Filename)

	size, err := s.storage.Save(name, req.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to save blob: %w", err)
	}

	rec, err := s.create(ctx, File{StorageRef: name, Filename: req.Filename})
	if err != nil {
		// Clean up blob if metadata save fails
		if derr := s.storage.Delete(name); derr != nil {
			s.logger.Error("Failed to remove orphaned blob", "error", derr, "blob", name)
		}
		return nil, err
	}

	s.logger.Info("File uploaded",
		"code", rec.Code,
		"filename", req.Filename,
		"blob", name,
		"size", humanize.Bytes(uint64(size)),
	)
	return rec, nil
}

func (s *Service) create(ctx context.Context, payload Payload) (*Record, error) {
	for range maxCodeAttempts {
		code, err := s.codes.Generate(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to generate code: %w", err)
		}

		now := s.now().UTC().Truncate(time.Millisecond)
		rec := &Record{
			Code:      code,
			Payload:   payload,
			CreatedAt: now,
			ExpiresAt: now.Add(s.retention),
		}

		err = s.repo.Create(ctx, rec)
		if errors.Is(err, ErrCodeTaken) {
			// Lost the race against a concurrent upload; draw again.
			codeCollisionsTotal.Inc()
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to save record: %w", err)
		}

		// The code may have belonged to a purged or expired record.
		s.cache.Remove(code)
		uploadsTotal.WithLabelValues(string(payload.Kind())).Inc()
		return rec, nil
	}
	return nil, ErrCodeSpaceExhausted
}

// Get returns the live record for code.
func (s *Service) Get(ctx context.Context, code string) (*Record, error) {
	if !ValidCode(code) {
		return nil, ErrNotFound
	}

	now := s.now()
	if rec, ok := s.cache.Get(code, now); ok {
		return rec, nil
	}

	gen := s.cache.Generation()
	rec, err := s.repo.FindByCode(ctx, code, now)
	if err != nil {
		return nil, err
	}
	s.cache.Set(rec, gen)
	return rec, nil
}

// Download resolves code to its file record and opens the blob. The caller
// must close the blob.
func (s *Service) Download(ctx context.Context, code string) (*Record, *Blob, error) {
	rec, err := s.Get(ctx, code)
	if err != nil {
		return nil, nil, err
	}

	file, ok := rec.Payload.(File)
	if !ok {
		return nil, nil, ErrNotAFile
	}

	blob, err := s.storage.Open(file.StorageRef)
	if err != nil {
		return nil, nil, err
	}
	return rec, blob, nil
}

// PurgeAll removes every blob and then every record. Individual blob
// failures are logged and counted; only listing or clearing the
// repository fails the purge.
func (s *Service) PurgeAll(ctx context.Context) (*PurgeResult, error) {
	names, err := s.storage.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list blobs: %w", err)
	}

	result := &PurgeResult{}
	for _, name := range names {
		if err := s.storage.Delete(name); err != nil {
			s.logger.Error("Failed to delete blob", "error", err, "blob", name)
			blobDeleteErrorsTotal.Inc()
			result.BlobErrors++
			continue
		}
		result.BlobsDeleted++
	}

	n, err := s.repo.DeleteAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to delete records: %w", err)
	}
	result.RecordsDeleted = n
	s.cache.Purge()
	purgesTotal.Inc()

	s.logger.Info("Purged all content",
		"blobs_deleted", result.BlobsDeleted,
		"blob_errors", result.BlobErrors,
		"records_deleted", result.RecordsDeleted,
	)
	return result, nil
}

// SweepExpired removes expired records together with their blobs.
func (s *Service) SweepExpired(ctx context.Context) (*SweepResult, error) {
	expired, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to delete expired records: %w", err)
	}

	result := &SweepResult{RecordsDeleted: len(expired)}
	for _, rec := range expired {
		s.cache.Remove(rec.Code)

		file, ok := rec.Payload.(File)
		if !ok {
			continue
		}
		if err := s.storage.Delete(file.StorageRef); err != nil {
			s.logger.Error("Failed to delete expired blob", "error", err, "blob", file.StorageRef, "code", rec.Code)
			blobDeleteErrorsTotal.Inc()
			result.BlobErrors++
			continue
		}
		result.BlobsDeleted++
	}
	expiredRecordsTotal.Add(float64(result.RecordsDeleted))

	if result.RecordsDeleted > 0 {
		s.logger.Info("Swept expired content",
			"records_deleted", result.RecordsDeleted,
			"blobs_deleted", result.BlobsDeleted,
			"blob_errors", result.BlobErrors,
		)
	}
	return result, nil
}

// storageName builds "<epoch-ms>-<random>-<name>" from the client file name.
func storageName(now time.Time, filename string) string {
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" +
		strconv.Itoa(rand.IntN(1e9)) + "-" +
		sanitizeFilename(filename)
}

// sanitizeFilename reduces a client supplied name to a single path element.
func sanitizeFilename(filename string) string {
	name := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	switch name {
	case ".", "..", "/", "":
		return "file"
	}
	return name
}
