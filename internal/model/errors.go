package model

import "errors"

// Error kinds. Concrete errors wrap one of these; callers branch with errors.Is.
var (
	// ErrValidation is empty input or a bad argument, caught before any call.
	ErrValidation = errors.New("validation error")
	// ErrMalformedResponse is LLM output that fails the quiz structure contract.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrUpstreamUnavailable is a failed or timed out LLM call.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrPersistence is a storage failure. Never fatal to in-memory state.
	ErrPersistence = errors.New("persistence error")

	// ErrGuard means a transition was attempted from a state that does not allow it.
	ErrGuard = errors.New("transition not permitted")
	// ErrBusy means a request is already in flight for this session.
	ErrBusy = errors.New("request already in flight")
	// ErrNoSession means the chat session does not exist for this user.
	ErrNoSession = errors.New("no active chat session")
)

// PersistenceError wraps a storage failure with the operation that failed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return "persist " + e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }
