// Package filestore persists command records as a single JSON document in a
// private directory, using atomic replace and an advisory lock file.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hyperifyio/cmdbot/internal/store"
)

const fileName = "commands.json"

// document is the on-disk layout of commands.json.
type document struct {
	Version  string         `json:"version"`
	Commands []store.Record `json:"commands"`
}

// Store is a file-backed store.Store.
type Store struct {
	dir string
	mu  sync.Mutex
}

var _ store.Store = (*Store)(nil)

// Open validates dir and returns a Store rooted there.
func Open(dir string) (*Store, error) {
	if err := ensureSecureDir(dir); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// FindAll returns all records ordered by name.
func (s *Store) FindAll(_ context.Context) ([]store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.read()
	if err != nil {
		return nil, err
	}
	out := make([]store.Record, 0, len(recs))
	for _, r := range recs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// FindByKey returns the record stored under name.
func (s *Store) FindByKey(_ context.Context, name string) (store.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.read()
	if err != nil {
		return store.Record{}, false, err
	}
	r, ok := recs[name]
	return r, ok, nil
}

// Upsert inserts or replaces the record with the same name.
func (s *Store) Upsert(_ context.Context, rec store.Record) error {
	rec.Name = strings.TrimSpace(rec.Name)
	if rec.Name == "" {
		return store.ErrNameRequired
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	return s.modify(func(recs map[string]store.Record) {
		recs[rec.Name] = rec
	})
}

// Delete removes the record stored under name.
func (s *Store) Delete(_ context.Context, name string) error {
	return s.modify(func(recs map[string]store.Record) {
		delete(recs, name)
	})
}

func (s *Store) modify(fn func(map[string]store.Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := acquireLock(s.dir)
	if err != nil {
		return err
	}
	defer unlock()

	recs, err := s.read()
	if err != nil {
		return err
	}
	fn(recs)

	doc := document{Version: "1", Commands: make([]store.Record, 0, len(recs))}
	for _, r := range recs {
		doc.Commands = append(doc.Commands, r)
	}
	sort.Slice(doc.Commands, func(i, j int) bool { return doc.Commands[i].Name < doc.Commands[j].Name })
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.dir, filepath.Join(s.dir, fileName), b)
}

func (s *Store) read() (map[string]store.Record, error) {
	b, err := os.ReadFile(filepath.Join(s.dir, fileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]store.Record{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", fileName, err)
	}
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", fileName, err)
	}
	if doc.Version != "1" {
		return nil, fmt.Errorf("unsupported %s version %q", fileName, doc.Version)
	}
	recs := make(map[string]store.Record, len(doc.Commands))
	for _, r := range doc.Commands {
		recs[r.Name] = r
	}
	return recs, nil
}
