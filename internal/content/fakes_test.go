package content

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
	"time"
)

type memRepository struct {
	mu      sync.Mutex
	records map[string]*Record

	createErr error
	// takenOnce makes the next Create fail with ErrCodeTaken.
	takenOnce bool
	creates   int
	// afterFind runs once, after FindByCode has read and released the lock.
	afterFind func()
}

func newMemRepository() *memRepository {
	return &memRepository{records: make(map[string]*Record)}
}

func (m *memRepository) Create(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.createErr != nil {
		return m.createErr
	}
	if m.takenOnce {
		m.takenOnce = false
		return ErrCodeTaken
	}
	if old, ok := m.records[rec.Code]; ok && holdsCode(old, rec.CreatedAt) {
		return ErrCodeTaken
	}
	m.records[rec.Code] = rec
	return nil
}

func (m *memRepository) FindByCode(_ context.Context, code string, now time.Time) (*Record, error) {
	m.mu.Lock()
	rec, ok := m.records[code]
	hook := m.afterFind
	m.afterFind = nil
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	if !ok || !rec.Live(now) {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (m *memRepository) Exists(_ context.Context, code string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[code]
	return ok && holdsCode(rec, now), nil
}

// holdsCode mirrors the SQL stores: expired file records keep their code
// until DeleteExpired hands them back.
func holdsCode(rec *Record, now time.Time) bool {
	if rec.Live(now) {
		return true
	}
	_, isFile := rec.Payload.(File)
	return isFile
}

func (m *memRepository) DeleteAll(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.records))
	m.records = make(map[string]*Record)
	return n, nil
}

func (m *memRepository) DeleteExpired(_ context.Context, now time.Time) ([]*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expired []*Record
	for code, rec := range m.records {
		if !rec.Live(now) {
			expired = append(expired, rec)
			delete(m.records, code)
		}
	}
	return expired, nil
}

type memStorage struct {
	mu    sync.Mutex
	blobs map[string][]byte

	saveErr   error
	deleteErr map[string]error
}

func newMemStorage() *memStorage {
	return &memStorage{blobs: make(map[string][]byte), deleteErr: make(map[string]error)}
}

func (s *memStorage) Save(name string, content io.Reader) (int64, error) {
	if s.saveErr != nil {
		return 0, s.saveErr
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[name] = data
	return int64(len(data)), nil
}

type nopCloser struct{ io.ReadSeeker }

func (nopCloser) Close() error { return nil }

func (s *memStorage) Open(ref string) (*Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[ref]
	if !ok {
		return nil, ErrBlobNotFound
	}
	return &Blob{
		ReadSeekCloser: nopCloser{bytes.NewReader(data)},
		Name:           ref,
		Size:           int64(len(data)),
	}, nil
}

func (s *memStorage) Delete(ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.deleteErr[ref]; err != nil {
		return err
	}
	delete(s.blobs, ref)
	return nil
}

func (s *memStorage) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.blobs))
	for name := range s.blobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *memStorage) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}

// clock is a settable time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
