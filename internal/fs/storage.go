package fs

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/pavel-fokin/dropcode/internal/content"
)

// tmpPrefix marks uploads still being written. Names starting with a dot
// are never valid blob names, so these files are hidden from List, Open and
// HTTPFileSystem.
const tmpPrefix = ".tmp-"

// Storage implements content.BlobStorage on a flat afero filesystem
type Storage struct {
	fs afero.Fs
}

// NewStorage creates a storage on the root of fs.
func NewStorage(fs afero.Fs) *Storage {
	return &Storage{fs: fs}
}

// NewDiskStorage creates a storage rooted at dataDir on the OS filesystem,
// creating the directory if needed.
func NewDiskStorage(dataDir string) (*Storage, error) {
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return NewStorage(afero.NewBasePathFs(afero.NewOsFs(), abs)), nil
}

// HTTPFileSystem exposes the stored blobs read-only for http.FileServer.
// Unfinished uploads are not visible.
func (s *Storage) HTTPFileSystem() http.FileSystem {
	return hiddenFileSystem{afero.NewHttpFs(afero.NewReadOnlyFs(s.fs))}
}

type hiddenFileSystem struct {
	http.FileSystem
}

func (h hiddenFileSystem) Open(name string) (http.File, error) {
	if strings.HasPrefix(path.Base(name), ".") {
		return nil, os.ErrNotExist
	}
	return h.FileSystem.Open(name)
}

// Save writes content to a temporary file and renames it into place.
func (s *Storage) Save(name string, content io.Reader) (int64, error) {
	if err := validateName(name); err != nil {
		return 0, err
	}
	dst := blobPath(name)
	tmpPath := blobPath(tmpPrefix + name)

	file, err := s.fs.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}

	size, err := io.Copy(file, content)
	if err != nil {
		file.Close()
		s.fs.Remove(tmpPath)
		return 0, fmt.Errorf("failed to write file content: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		s.fs.Remove(tmpPath)
		return 0, fmt.Errorf("failed to sync file: %w", err)
	}

	if err := file.Close(); err != nil {
		s.fs.Remove(tmpPath)
		return 0, fmt.Errorf("failed to close file: %w", err)
	}

	if err := s.fs.Rename(tmpPath, dst); err != nil {
		s.fs.Remove(tmpPath)
		return 0, fmt.Errorf("failed to rename file: %w", err)
	}

	return size, nil
}

// Open returns the blob stored under ref
func (s *Storage) Open(ref string) (*content.Blob, error) {
	if err := validateName(ref); err != nil {
		return nil, content.ErrBlobNotFound
	}

	file, err := s.fs.Open(blobPath(ref))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, content.ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		file.Close()
		return nil, content.ErrBlobNotFound
	}

	return &content.Blob{
		ReadSeekCloser: file,
		Name:           ref,
		Size:           info.Size(),
		ModTime:        info.ModTime(),
	}, nil
}

// Delete removes a blob
func (s *Storage) Delete(ref string) error {
	if err := validateName(ref); err != nil {
		return err
	}

	if err := s.fs.Remove(blobPath(ref)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil // File already deleted
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}

// List returns the names of every stored blob sorted by name. Unfinished
// uploads are skipped.
func (s *Storage) List() ([]string, error) {
	entries, err := afero.ReadDir(s.fs, "/")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// blobPath roots name so that MemMapFs, BasePathFs and HttpFs agree on it.
func blobPath(name string) string {
	return "/" + name
}

// validateName rejects names that would leave the flat storage directory
// or collide with unfinished uploads.
func validateName(name string) error {
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid blob name %q", name)
	}
	return nil
}
