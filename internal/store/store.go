// Package store defines the descriptor store contract consumed by the
// dispatcher and the administrative commands, plus an in-memory
// implementation used by tests and the console mode.
package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrNameRequired is returned when a record or key has an empty name.
var ErrNameRequired = errors.New("command name is required")

// Record is the persisted form of a user-defined command. Exactly one of
// Script or Template is expected to be populated; the registry decides what
// to do with records that violate that.
type Record struct {
	Name        string    `json:"name" yaml:"name"`
	Script      string    `json:"script,omitempty" yaml:"script,omitempty"`
	Template    string    `json:"template,omitempty" yaml:"template,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"-"`
}

// Store is key-value CRUD over command records keyed by name. No
// multi-key transactions are assumed.
type Store interface {
	FindAll(ctx context.Context) ([]Record, error)
	FindByKey(ctx context.Context, name string) (Record, bool, error)
	Upsert(ctx context.Context, rec Record) error
	Delete(ctx context.Context, name string) error
}

// Memory is a concurrency-safe in-memory Store.
type Memory struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemory returns an empty Memory store seeded with recs.
func NewMemory(recs ...Record) *Memory {
	m := &Memory{records: make(map[string]Record, len(recs))}
	for _, r := range recs {
		m.records[r.Name] = r
	}
	return m
}

// FindAll returns all records ordered by name.
func (m *Memory) FindAll(_ context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// FindByKey returns the record stored under name.
func (m *Memory) FindByKey(_ context.Context, name string) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[name]
	return r, ok, nil
}

// Upsert inserts or replaces the record with the same name.
func (m *Memory) Upsert(_ context.Context, rec Record) error {
	rec.Name = strings.TrimSpace(rec.Name)
	if rec.Name == "" {
		return ErrNameRequired
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.Name] = rec
	return nil
}

// Delete removes the record stored under name. Missing keys are not an error.
func (m *Memory) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, name)
	return nil
}
