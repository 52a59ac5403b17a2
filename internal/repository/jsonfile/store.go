package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"polegrid/internal/model"
	"polegrid/internal/repository"
)

// fileMode is applied to the document file; CreateTemp alone would leave it 0600.
const fileMode fs.FileMode = 0o644

// Store is a flat-file implementation of repository.RecordStore.
// The whole document lives in one JSON file that is rewritten on every mutation.
// A single mutex serializes access, so read-modify-write cycles never interleave.
type Store struct {
	mu   sync.Mutex
	path string
}

var _ repository.RecordStore = (*Store)(nil)

// New opens the document at path, creating it with empty collections if absent.
func New(path string) (*Store, error) {
	s := &Store{path: path}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	_, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := s.writeLocked(model.NewDocument()); err != nil {
			return nil, fmt.Errorf("initialize store: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("stat store: %w", err)
	}
	return s, nil
}

// Path returns the backing file location.
func (s *Store) Path() string { return s.path }

// Read loads the full document.
func (s *Store) Read(ctx context.Context) (model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

// Write replaces the document on disk.
func (s *Store) Write(ctx context.Context, doc model.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(doc.Normalize())
}

// Append reads the document, adds rec to collection and writes it back under the lock.
func (s *Store) Append(ctx context.Context, collection string, rec model.Record) error {
	if !repository.KnownCollection(collection) {
		return fmt.Errorf("%w: %s", repository.ErrUnknownCollection, collection)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readLocked()
	if err != nil {
		return err
	}
	doc[collection] = append(doc[collection], rec)
	return s.writeLocked(doc)
}

// List returns the records of one collection.
func (s *Store) List(ctx context.Context, collection string) ([]model.Record, error) {
	if !repository.KnownCollection(collection) {
		return nil, fmt.Errorf("%w: %s", repository.ErrUnknownCollection, collection)
	}
	doc, err := s.Read(ctx)
	if err != nil {
		return nil, err
	}
	return doc[collection], nil
}

// Ping checks that the document is still readable.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := os.Stat(s.path)
	return err
}

func (s *Store) readLocked() (model.Document, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read store: %w", err)
	}
	var doc model.Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode store: %w", err)
	}
	return doc.Normalize(), nil
}

// writeLocked writes to a temp file next to the target and renames it into place.
func (s *Store) writeLocked(doc model.Document) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err := tmp.Chmod(fileMode); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}
