package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
)

type memoryEntry struct {
	body    json.RawMessage
	version int64
}

// MemoryStore is the in-process Store used by tests and as the zero-config
// default when no database is configured. Transactions use the same
// optimistic versioning as the postgres store, so contention behaves the
// same way in both.
type MemoryStore struct {
	mu       sync.RWMutex
	docs     map[string]*memoryEntry
	notifier *notifier
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:     make(map[string]*memoryEntry),
		notifier: newNotifier(),
	}
}

func (m *MemoryStore) Get(ctx context.Context, path string) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.docs[path]
	if !ok {
		return nil, ErrNotFound
	}
	return append(json.RawMessage(nil), entry.body...), nil
}

func (m *MemoryStore) Set(ctx context.Context, path string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	m.mu.Lock()
	entry, ok := m.docs[path]
	if !ok {
		entry = &memoryEntry{}
		m.docs[path] = entry
	}
	entry.body = body
	entry.version++
	m.mu.Unlock()

	m.notifier.notify(path, body)
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, path string, fields map[string]any) error {
	return m.Transaction(ctx, path, func(current json.RawMessage) (any, error) {
		if current == nil {
			return nil, ErrNotFound
		}
		return mergeFields(current, fields)
	})
}

// Transaction reads the document, applies fn outside the lock, and commits
// only if no other writer got in between. A lost race surfaces as
// ErrConflict for the caller's retry loop.
func (m *MemoryStore) Transaction(ctx context.Context, path string, fn MutateFn) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.RLock()
	var current json.RawMessage
	var readVersion int64
	if entry, ok := m.docs[path]; ok {
		current = append(json.RawMessage(nil), entry.body...)
		readVersion = entry.version
	}
	m.mu.RUnlock()

	doc, err := fn(current)
	if err != nil {
		return err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	m.mu.Lock()
	entry, ok := m.docs[path]
	switch {
	case !ok && readVersion == 0:
		m.docs[path] = &memoryEntry{body: body, version: 1}
	case ok && entry.version == readVersion:
		entry.body = body
		entry.version++
	default:
		m.mu.Unlock()
		return ErrConflict
	}
	m.mu.Unlock()

	m.notifier.notify(path, body)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	_, ok := m.docs[path]
	delete(m.docs, path)
	m.mu.Unlock()

	if ok {
		m.notifier.notify(path, nil)
	}
	return nil
}

func (m *MemoryStore) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	paths := make([]string, 0)
	for path := range m.docs {
		if strings.HasPrefix(path, prefix) {
			paths = append(paths, path)
		}
	}
	m.mu.RUnlock()

	sort.Strings(paths)
	return paths, nil
}

// Subscribe registers onChange and delivers the current document immediately
// so a late viewer starts from the live state rather than the next change.
func (m *MemoryStore) Subscribe(path string, onChange func(json.RawMessage)) func() {
	unsubscribe := m.notifier.subscribe(path, onChange)
	if doc, err := m.Get(context.Background(), path); err == nil {
		onChange(doc)
	}
	return unsubscribe
}
