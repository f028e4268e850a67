package combat

import (
	"context"
	"fmt"
	"sync"
)

// Registry tracks the live combat session per encounter.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session Registry.
//
// Postcondition: Returns a non-nil Registry ready for use.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Start begins a combat session for encounterID. A finished session is
// replaced; a live one is not.
//
// Precondition: encounterID and playerName must be non-empty.
// Postcondition: Returns the new session, or an error if a session for
// encounterID is still active or the session could not be started.
func (r *Registry) Start(ctx context.Context, deps Deps, encounterID, playerName string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[encounterID]; ok && existing.Active() {
		return nil, fmt.Errorf("combat already active for encounter %q", encounterID)
	}

	s, err := StartSession(ctx, deps, encounterID, playerName)
	if err != nil {
		return nil, err
	}
	r.sessions[encounterID] = s
	return s, nil
}

// Get returns the session for encounterID.
//
// Postcondition: Returns (session, true) if found, or (nil, false) otherwise.
func (r *Registry) Get(encounterID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[encounterID]
	return s, ok
}

// End terminates the session for encounterID and removes its record.
// Unknown encounters are a no-op.
//
// Precondition: encounterID must be non-empty.
func (r *Registry) End(ctx context.Context, encounterID string) error {
	r.mu.Lock()
	s, ok := r.sessions[encounterID]
	delete(r.sessions, encounterID)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return s.End(ctx)
}
