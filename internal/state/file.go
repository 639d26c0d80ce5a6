package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"

	"github.com/neo4j-partners/neo4j-deploy/internal/deployment"
)

const (
	recordExt   = ".json"
	locksDir    = ".locks"
	lockRetry   = 10 * time.Millisecond
	lockTimeout = 30 * time.Second
)

// FileStore keeps one JSON document per record in a directory. Writes go
// through a temp file and rename. A per-record file lock plus an in-process
// mutex serialise the compare-and-swap window across goroutines and
// processes.
type FileStore struct {
	dir      string
	attempts int
	local    KeyedMutex
}

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithUpdateAttempts bounds the Update retry loop.
func WithUpdateAttempts(n int) FileOption {
	return func(s *FileStore) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// NewFileStore opens (creating if needed) a file store rooted at dir.
func NewFileStore(dir string, opts ...FileOption) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, locksDir), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	s := &FileStore{dir: dir, attempts: DefaultUpdateAttempts}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+recordExt)
}

// lock takes the in-process and cross-process locks for id.
func (s *FileStore) lock(ctx context.Context, id string) (func(), error) {
	release := s.local.Lock(id)

	ctx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	fl := flock.New(filepath.Join(s.dir, locksDir, id+".lock"))
	ok, err := fl.TryLockContext(ctx, lockRetry)
	if err != nil || !ok {
		release()
		if err == nil {
			err = errors.New("lock not acquired")
		}
		return nil, fmt.Errorf("failed to lock deployment %s: %w", id, err)
	}

	return func() {
		_ = fl.Unlock()
		release()
	}, nil
}

func validID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return fmt.Errorf("invalid deployment id %q", id)
	}
	return nil
}

// Create implements Store.
func (s *FileStore) Create(ctx context.Context, rec deployment.Record) error {
	if err := validID(rec.ID); err != nil {
		return err
	}
	unlock, err := s.lock(ctx, rec.ID)
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := os.Stat(s.path(rec.ID)); err == nil {
		return conflict(rec.ID)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to stat deployment %s: %w", rec.ID, err)
	}

	rec.Version = 1
	return s.write(rec)
}

// Get implements Store.
func (s *FileStore) Get(_ context.Context, id string) (deployment.Record, error) {
	if err := validID(id); err != nil {
		return deployment.Record{}, err
	}
	return s.read(s.path(id), id)
}

// Update implements Store.
func (s *FileStore) Update(ctx context.Context, id string, mutate MutateFunc) (deployment.Record, error) {
	if err := validID(id); err != nil {
		return deployment.Record{}, err
	}
	return CompareAndSwap(ctx, s, s.attempts, id, mutate)
}

// LoadRecord implements CASBackend.
func (s *FileStore) LoadRecord(_ context.Context, id string) (deployment.Record, error) {
	return s.read(s.path(id), id)
}

// CommitRecord implements CASBackend.
func (s *FileStore) CommitRecord(ctx context.Context, expected int64, next deployment.Record) (bool, error) {
	unlock, err := s.lock(ctx, next.ID)
	if err != nil {
		return false, err
	}
	defer unlock()

	current, err := s.read(s.path(next.ID), next.ID)
	if err != nil {
		return false, err
	}
	if current.Version != expected {
		return false, nil
	}
	return true, s.write(next)
}

// List implements Store.
func (s *FileStore) List(_ context.Context, f Filter) ([]deployment.Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list state directory: %w", err)
	}

	var recs []deployment.Record
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, recordExt) || strings.HasPrefix(name, ".") {
			continue
		}
		id := strings.TrimSuffix(name, recordExt)
		rec, err := s.read(filepath.Join(s.dir, name), id)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		if f.Match(rec) {
			recs = append(recs, rec)
		}
	}
	SortRecords(recs)
	return recs, nil
}

// Delete implements Store.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	if err := validID(id); err != nil {
		return err
	}
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.Remove(s.path(id)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return notFound(id)
		}
		return fmt.Errorf("failed to delete deployment %s: %w", id, err)
	}
	_ = os.Remove(filepath.Join(s.dir, locksDir, id+".lock"))
	return nil
}

// Close implements Store.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) read(path, id string) (deployment.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return deployment.Record{}, notFound(id)
		}
		return deployment.Record{}, fmt.Errorf("failed to read deployment %s: %w", id, err)
	}
	var rec deployment.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return deployment.Record{}, fmt.Errorf("failed to decode deployment %s: %w", id, err)
	}
	return rec, nil
}

func (s *FileStore) write(rec deployment.Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode deployment %s: %w", rec.ID, err)
	}
	if err := atomic.WriteFile(s.path(rec.ID), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write deployment %s: %w", rec.ID, err)
	}
	return nil
}
