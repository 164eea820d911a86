package rowstore

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for tests and single-process dev
// deployments. Rows keep insertion order, which gives FindOpenings its
// deterministic tie-break.
type MemoryStore struct {
	mu     sync.Mutex
	keys   map[string]string // table -> key field
	tables map[string][]Row
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore builds an empty store. keyFields maps each table name to
// the field that addresses its rows.
func NewMemoryStore(keyFields map[string]string) *MemoryStore {
	if len(keyFields) == 0 {
		panic("rowstore: key fields required")
	}
	keys := make(map[string]string, len(keyFields))
	for t, f := range keyFields {
		keys[t] = f
	}
	return &MemoryStore{
		keys:   keys,
		tables: make(map[string][]Row),
	}
}

func (s *MemoryStore) keyField(table string) string {
	f, ok := s.keys[table]
	if !ok {
		panic("rowstore: unknown table " + table)
	}
	return f
}

// ScanAll returns copies of every row in insertion order.
func (s *MemoryStore) ScanAll(_ context.Context, table string) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.tables[table]
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Clone())
	}
	return out, nil
}

// FindByKey returns a copy of the first row whose field equals value.
func (s *MemoryStore) FindByKey(_ context.Context, table, field, value string) (Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.tables[table] {
		if r[field] == value {
			return r.Clone(), nil
		}
	}
	return nil, ErrRowNotFound
}

// Update overwrites the row addressed by key.
func (s *MemoryStore) Update(_ context.Context, table, key string, row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaceLocked(table, key, row, "", "", false)
}

// UpdateIf overwrites the row only while condField still holds condValue.
func (s *MemoryStore) UpdateIf(_ context.Context, table, key string, row Row, condField, condValue string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaceLocked(table, key, row, condField, condValue, true)
}

func (s *MemoryStore) replaceLocked(table, key string, row Row, condField, condValue string, conditional bool) error {
	field := s.keyField(table)
	for i, r := range s.tables[table] {
		if r[field] != key {
			continue
		}
		if conditional && r[condField] != condValue {
			return ErrConditionFailed
		}
		s.tables[table][i] = row.Clone()
		return nil
	}
	return ErrRowNotFound
}

// Append inserts a new row, rejecting duplicate keys.
func (s *MemoryStore) Append(_ context.Context, table string, row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	field := s.keyField(table)
	key := row[field]
	for _, r := range s.tables[table] {
		if r[field] == key {
			return ErrConditionFailed
		}
	}
	s.tables[table] = append(s.tables[table], row.Clone())
	return nil
}
