package quiz

import (
	"sync"

	"github.com/pavelanni/groqquest/internal/model"
)

// Registry holds one Machine per signed-in user.
type Registry struct {
	gen   QuizGenerator
	store AttemptStore

	mu       sync.Mutex
	machines map[string]*Machine
}

// NewRegistry creates an empty registry.
func NewRegistry(gen QuizGenerator, store AttemptStore) *Registry {
	return &Registry{gen: gen, store: store, machines: make(map[string]*Machine)}
}

// Get returns the user's machine, creating it on first use.
func (r *Registry) Get(p model.Principal) *Machine {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.machines[p.UserID]
	if !ok {
		m = NewMachine(p, r.gen, r.store)
		r.machines[p.UserID] = m
	}
	return m
}

// Dispose tears down and forgets the user's machine.
func (r *Registry) Dispose(userID string) {
	r.mu.Lock()
	m, ok := r.machines[userID]
	delete(r.machines, userID)
	r.mu.Unlock()
	if ok {
		m.Dispose()
	}
}

// Retain disposes every machine whose user fails keep and reports how many
// were dropped.
func (r *Registry) Retain(keep func(userID string) bool) int {
	r.mu.Lock()
	var dropped []*Machine
	for id, m := range r.machines {
		if !keep(id) {
			dropped = append(dropped, m)
			delete(r.machines, id)
		}
	}
	r.mu.Unlock()
	for _, m := range dropped {
		m.Dispose()
	}
	return len(dropped)
}
