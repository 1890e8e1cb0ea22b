// Package storage holds the physical tables of an engine process.
package storage

import (
	"sort"
	"sync"

	"github.com/razeghi71/dqflow/errs"
	"github.com/razeghi71/dqflow/ref"
	"github.com/razeghi71/dqflow/table"
)

// Key locates a stored table. Persistent tables have an empty Session.
type Key struct {
	Session ref.SessionID
	Name    string
}

// Persistent returns the key of a persistent table.
func Persistent(name string) Key { return Key{Name: name} }

// Temporary returns the key of a temporary table owned by id.
func Temporary(id ref.SessionID, name string) Key { return Key{Session: id, Name: name} }

// IsTemporary reports whether k belongs to a session.
func (k Key) IsTemporary() bool { return k.Session != "" }

// String renders the key for logs and errors.
func (k Key) String() string {
	if k.IsTemporary() {
		return string(k.Session) + "/" + k.Name
	}
	return k.Name
}

// Memory is a concurrency-safe in-memory table store. Stored tables are
// treated as immutable; callers must not modify a table after Create or
// after receiving it from Get.
type Memory struct {
	mu     sync.RWMutex
	tables map[Key]*table.Table
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{tables: make(map[Key]*table.Table)}
}

// Create stores t under k. It fails with Conflict if k is taken.
func (m *Memory) Create(k Key, t *table.Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[k]; ok {
		return errs.Conflict("table %q already exists", k.Name)
	}
	m.tables[k] = t
	return nil
}

// Get returns the table stored under k.
func (m *Memory) Get(k Key) (*table.Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[k]
	if !ok {
		return nil, errs.NotFound("table %q not found", k.Name)
	}
	return t, nil
}

// Exists reports whether k holds a table.
func (m *Memory) Exists(k Key) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.tables[k]
	return ok
}

// Drop removes k. Dropping a missing table is a NotFound error.
func (m *Memory) Drop(k Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[k]; !ok {
		return errs.NotFound("table %q not found", k.Name)
	}
	delete(m.tables, k)
	return nil
}

// Rename moves the table at from to to in one step. Of two concurrent
// renames onto the same key exactly one succeeds; the other gets Conflict.
func (m *Memory) Rename(from, to Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[from]
	if !ok {
		return errs.NotFound("table %q not found", from.Name)
	}
	if _, taken := m.tables[to]; taken {
		return errs.Conflict("table %q already exists", to.Name)
	}
	delete(m.tables, from)
	m.tables[to] = t
	return nil
}

// Names returns the sorted names of the tables owned by session, or of the
// persistent tables when session is empty.
func (m *Memory) Names(session ref.SessionID) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for k := range m.tables {
		if k.Session == session {
			names = append(names, k.Name)
		}
	}
	sort.Strings(names)
	return names
}

// Len returns the number of stored tables.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tables)
}
