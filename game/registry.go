package game

import (
	"sync"

	"github.com/yss1235-why/tambola-sound-blitz-sub001/services"
	"github.com/yss1235-why/tambola-sound-blitz-sub001/store"
)

// Registry owns the per-game schedulers of one process. It is passed
// explicitly to whatever starts games (controllers, tests) instead of living
// as package state, so isolated instances are cheap to build.
type Registry struct {
	st     store.Store
	guard  *store.Guard
	engine *services.PrizeEngine
	opts   Options

	mu         sync.Mutex
	schedulers map[string]*Scheduler
}

func NewRegistry(st store.Store, guard *store.Guard, engine *services.PrizeEngine, opts Options) *Registry {
	return &Registry{
		st:         st,
		guard:      guard,
		engine:     engine,
		opts:       opts.withDefaults(),
		schedulers: make(map[string]*Scheduler),
	}
}

// Scheduler returns the scheduler for gameID, creating it on first use.
func (r *Registry) Scheduler(gameID string) *Scheduler {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedulers[gameID]
	if !ok {
		s = newScheduler(gameID, r.st, r.guard, r.engine, r.opts)
		r.schedulers[gameID] = s
	}
	return s
}

// Remove stops and forgets the scheduler for gameID, if any.
func (r *Registry) Remove(gameID string) {
	r.mu.Lock()
	s, ok := r.schedulers[gameID]
	delete(r.schedulers, gameID)
	r.mu.Unlock()
	if ok {
		s.stopLoop()
	}
}

// Shutdown stops every live loop. Used on process exit.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	all := make([]*Scheduler, 0, len(r.schedulers))
	for _, s := range r.schedulers {
		all = append(all, s)
	}
	r.mu.Unlock()

	for _, s := range all {
		s.stopLoop()
	}
}
