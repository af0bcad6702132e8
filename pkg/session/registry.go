package session

import (
	"sync"

	"chatrelay/pkg/threads"
)

// Deps are the collaborators every controller shares.
type Deps struct {
	Sync    *threads.Synchronizer
	Store   threads.API
	Gateway Gateway
}

// Registry hands out one controller per owner. A controller holds at
// most one thread's working state at a time; navigation between threads
// goes through Controller.SwitchThread.
type Registry struct {
	mu       sync.Mutex
	deps     Deps
	sessions map[string]*Controller
}

func NewRegistry(deps Deps) *Registry {
	return &Registry{deps: deps, sessions: make(map[string]*Controller)}
}

// For returns the owner's controller, creating it on first use.
func (r *Registry) For(owner string) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.sessions[owner]; ok {
		return c
	}
	c := NewController(owner, r.deps.Sync, r.deps.Store, r.deps.Gateway)
	r.sessions[owner] = c
	return c
}
