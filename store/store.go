package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

var (
	// ErrNotFound is returned when a document does not exist at a path.
	ErrNotFound = errors.New("store: document not found")

	// ErrConflict is returned by Transaction when a concurrent writer
	// committed between the read and the write. Callers retry via
	// Guard.TransactionalUpdate.
	ErrConflict = errors.New("store: concurrent modification")

	// ErrLockTimeout is returned when a named lock could not be acquired
	// within the caller's timeout.
	ErrLockTimeout = errors.New("store: lock acquisition timed out")

	// ErrTransactionExhausted is returned after a transactional update ran
	// out of retries.
	ErrTransactionExhausted = errors.New("store: transaction retries exhausted")
)

// MutateFn receives the current document body (nil when the document does not
// exist) and returns the replacement document. Returning an error aborts the
// transaction without writing.
type MutateFn func(current json.RawMessage) (any, error)

// Store is a shared JSON document store keyed by path. Transaction gives
// optimistic read-modify-write; Subscribe pushes the full current document on
// every change, with nil distinguishing "deleted" from "no change yet".
type Store interface {
	Get(ctx context.Context, path string) (json.RawMessage, error)
	Set(ctx context.Context, path string, doc any) error
	Update(ctx context.Context, path string, fields map[string]any) error
	Transaction(ctx context.Context, path string, fn MutateFn) error
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Subscribe(path string, onChange func(doc json.RawMessage)) (unsubscribe func())
}

// notifier fans a document change out to in-process subscribers per path.
type notifier struct {
	mu   sync.Mutex
	next int
	subs map[string]map[int]func(json.RawMessage)
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[string]map[int]func(json.RawMessage))}
}

func (n *notifier) subscribe(path string, onChange func(json.RawMessage)) func() {
	n.mu.Lock()
	id := n.next
	n.next++
	if n.subs[path] == nil {
		n.subs[path] = make(map[int]func(json.RawMessage))
	}
	n.subs[path][id] = onChange
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.subs[path], id)
		n.mu.Unlock()
	}
}

// notify delivers doc (nil for deletion) to every subscriber of path. Called
// outside any store lock so callbacks may call back into the store.
func (n *notifier) notify(path string, doc json.RawMessage) {
	n.mu.Lock()
	callbacks := make([]func(json.RawMessage), 0, len(n.subs[path]))
	for _, cb := range n.subs[path] {
		callbacks = append(callbacks, cb)
	}
	n.mu.Unlock()

	for _, cb := range callbacks {
		cb(doc)
	}
}

// mergeFields applies a partial top-level field update to a JSON document.
func mergeFields(current json.RawMessage, fields map[string]any) (map[string]any, error) {
	merged := make(map[string]any)
	if len(current) > 0 {
		if err := json.Unmarshal(current, &merged); err != nil {
			return nil, err
		}
	}
	for k, v := range fields {
		merged[k] = v
	}
	return merged, nil
}
