package domain

import "fmt"

// Error types for consistent error handling across the gateway. Upstream
// transport errors are converted to one of these at the client boundary and
// never leak to handlers raw.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       int64
}

func (e *ErrNotFound) Error() string {
	if e.ID == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s not found: %d", e.Resource, e.ID)
}

// ErrAuthentication indicates invalid credentials or an expired/invalid
// token. Mid-session it triggers the global forced-logout policy.
type ErrAuthentication struct {
	Message string
}

func (e *ErrAuthentication) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "authentication failed"
}

// ErrAuthorization indicates the user is authenticated but not permitted to
// perform the action (e.g. a non-seller accepting a transaction).
type ErrAuthorization struct {
	Action string
}

func (e *ErrAuthorization) Error() string {
	return fmt.Sprintf("not permitted: %s", e.Action)
}

// ErrInvalidTransition indicates a transaction state change from a
// non-source state. Attempts like this are always reported, never silently
// applied.
type ErrInvalidTransition struct {
	Current   TransactionStatus
	Attempted TransactionStatus
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid transition: %s -> %s", e.Current, e.Attempted)
}

// ErrValidation indicates a client-side validation failure. These never
// reach the upstream API.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrNetwork indicates a timeout or connectivity failure talking to the
// marketplace API. Retry is user-initiated; the gateway does not loop.
type ErrNetwork struct {
	Operation string
	Err       error
}

func (e *ErrNetwork) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Operation, e.Err)
}

func (e *ErrNetwork) Unwrap() error {
	return e.Err
}

// ErrUpstream indicates the marketplace API rejected the request with an
// explicit message, surfaced verbatim to the caller.
type ErrUpstream struct {
	Status  int
	Message string
}

func (e *ErrUpstream) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("marketplace API returned status %d", e.Status)
}

// ErrCircuitOpen indicates the circuit breaker is open for the upstream.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrConflict indicates a resource already exists upstream.
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}
