// Package file persists the key-value document to a single JSON file,
// replaced atomically on every write so that separate processes (the API
// daemon and the background checker) never observe a torn file. Every
// read-modify-write holds an advisory lock on a sibling ".lock" file so a
// write from one process cannot drop another process's change to a
// different key.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/multierr"
)

type Store struct {
	mu   sync.Mutex
	path string
	lock *flock.Flock
}

// New ensures the parent directory exists. The file itself is created on
// first write.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure data directory: %w", err)
	}
	return &Store{path: path, lock: flock.New(path + ".lock")}, nil
}

// locked runs fn holding both the in-process mutex and the file lock,
// shared for reads and exclusive for writes.
func (s *Store) locked(ctx context.Context, exclusive bool, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		ok  bool
		err error
	)
	if exclusive {
		ok, err = s.lock.TryLockContext(ctx, 10*time.Millisecond)
	} else {
		ok, err = s.lock.TryRLockContext(ctx, 10*time.Millisecond)
	}
	if err != nil {
		return fmt.Errorf("lock store: %w", err)
	}
	if !ok {
		return fmt.Errorf("lock store: %s busy", s.lock.Path())
	}
	return multierr.Append(fn(), s.lock.Unlock())
}

func (s *Store) Path() string { return s.path }

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		v  json.RawMessage
		ok bool
	)
	err := s.locked(ctx, false, func() error {
		doc, err := s.load()
		if err != nil {
			return err
		}
		v, ok = doc[key]
		return nil
	})
	if err != nil || !ok {
		return nil, false, err
	}
	return []byte(v), true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.locked(ctx, true, func() error {
		doc, err := s.load()
		if err != nil {
			return err
		}
		doc[key] = json.RawMessage(append([]byte(nil), value...))
		return s.persist(doc)
	})
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.locked(ctx, true, func() error {
		doc, err := s.load()
		if err != nil {
			return err
		}
		if _, ok := doc[key]; !ok {
			return nil
		}
		delete(doc, key)
		return s.persist(doc)
	})
}

// load reads the whole document. A value that is not valid JSON is kept
// as a JSON string so the typed reader can fall back to its default.
func (s *Store) load() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]json.RawMessage{}, nil
		}
		return nil, fmt.Errorf("read store: %w", err)
	}
	if len(data) == 0 {
		return map[string]json.RawMessage{}, nil
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse store: %w", err)
	}
	if doc == nil {
		doc = map[string]json.RawMessage{}
	}
	return doc, nil
}

func (s *Store) persist(doc map[string]json.RawMessage) error {
	for k, v := range doc {
		if !json.Valid(v) {
			quoted, _ := json.Marshal(string(v))
			doc[k] = quoted
		}
	}
	bytes, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}

	tmpPath := fmt.Sprintf("%s.%d.tmp", s.path, time.Now().UnixNano())
	if err := os.WriteFile(tmpPath, bytes, 0o644); err != nil {
		return fmt.Errorf("write temp store: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return multierr.Append(
			fmt.Errorf("replace store file: %w", err),
			os.Remove(tmpPath),
		)
	}
	return nil
}
