package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yss1235-why/tambola-sound-blitz-sub001/utils/logger"
)

// errLockHeld aborts a lock-claim transaction when a live holder exists.
var errLockHeld = errors.New("store: lock held")

// LockOptions tunes one lock acquisition. Zero values fall back to the guard
// defaults.
type LockOptions struct {
	TTL          time.Duration
	Timeout      time.Duration
	PollInterval time.Duration
}

const (
	defaultLockTTL      = 60 * time.Second
	defaultLockTimeout  = 10 * time.Second
	defaultLockPoll     = 200 * time.Millisecond
	defaultBackoffBase  = 50 * time.Millisecond
	defaultTxMaxRetries = 5
)

// lockRecord is the persisted shape of a named lock. TTL travels with the
// record so a new contender can reclaim it using the holder's own TTL.
type lockRecord struct {
	Name       string    `json:"name"`
	Owner      string    `json:"owner"`
	Token      string    `json:"token"` // unique per acquisition
	AcquiredAt time.Time `json:"acquiredAt"`
	TTLMillis  int64     `json:"ttlMillis"`
	Released   bool      `json:"released"`
}

func (r *lockRecord) free(now time.Time) bool {
	return r.Released || now.Sub(r.AcquiredAt) > time.Duration(r.TTLMillis)*time.Millisecond
}

// Guard serializes conflicting operations on shared documents: named TTL
// locks stored alongside game data, plus a retrying transactional update
// with exponential backoff and jitter.
type Guard struct {
	store       Store
	owner       string
	backoffBase time.Duration
	maxRetries  int
}

func NewGuard(s Store) *Guard {
	return &Guard{
		store:       s,
		owner:       uuid.NewString(),
		backoffBase: defaultBackoffBase,
		maxRetries:  defaultTxMaxRetries,
	}
}

func lockPath(name string) string {
	return "locks/" + name
}

// AcquireLock claims the named lock, polling until opts.Timeout elapses. An
// existing record older than its own TTL counts as abandoned and is
// reclaimed. The returned release function is idempotent and only removes
// the lock while this acquisition still owns it.
func (g *Guard) AcquireLock(ctx context.Context, name string, opts LockOptions) (func(), error) {
	if opts.TTL <= 0 {
		opts.TTL = defaultLockTTL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultLockTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultLockPoll
	}

	token := uuid.NewString()
	path := lockPath(name)
	deadline := time.Now().Add(opts.Timeout)

	for {
		err := g.store.Transaction(ctx, path, func(current json.RawMessage) (any, error) {
			if len(current) > 0 {
				var held lockRecord
				if err := json.Unmarshal(current, &held); err == nil && !held.free(time.Now()) {
					return nil, errLockHeld
				}
				// released, expired or unreadable record: reclaim
			}
			return &lockRecord{
				Name:       name,
				Owner:      g.owner,
				Token:      token,
				AcquiredAt: time.Now(),
				TTLMillis:  opts.TTL.Milliseconds(),
			}, nil
		})
		if err == nil {
			break
		}
		if !errors.Is(err, errLockHeld) && !errors.Is(err, ErrConflict) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("lock %q: %w", name, ErrLockTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(opts.PollInterval):
		}
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			_ = g.store.Transaction(context.Background(), path, func(current json.RawMessage) (any, error) {
				var held lockRecord
				if len(current) == 0 || json.Unmarshal(current, &held) != nil || held.Token != token {
					// lock was reclaimed by someone else; leave it alone
					return nil, errLockHeld
				}
				held.Released = true
				return &held, nil
			})
		})
	}
	return release, nil
}

// WithLock runs fn while holding the named lock. The lock is released even
// when fn panics.
func (g *Guard) WithLock(ctx context.Context, name string, opts LockOptions, fn func() error) error {
	release, err := g.AcquireLock(ctx, name, opts)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

// TransactionalUpdate retries an optimistic transaction on conflict with
// exponential backoff (base doubled per attempt) plus random jitter, up to
// maxRetries. maxRetries <= 0 uses the guard default.
func (g *Guard) TransactionalUpdate(ctx context.Context, path string, fn MutateFn, maxRetries int) error {
	if maxRetries <= 0 {
		maxRetries = g.maxRetries
	}

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := g.backoffBase * (1 << (attempt - 1))
			jitter := time.Duration(rand.Int63n(int64(g.backoffBase)))
			logger.Debugf("[Guard] conflict on %s, retry %d/%d in %v", path, attempt, maxRetries, backoff+jitter)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff + jitter):
			}
		}
		err = g.store.Transaction(ctx, path, fn)
		if err == nil || !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("update %q after %d retries: %w", path, maxRetries, ErrTransactionExhausted)
}
