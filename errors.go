package difx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidConstructor = errors.New("invalid constructor")
	ErrInvalidValue       = errors.New("invalid supplied value")
	ErrAlreadyStarted     = errors.New("already started")
	ErrScopeRequired      = errors.New("scoped service requested outside of a scope")
	ErrCaptiveDependency  = errors.New("singleton depends on a scoped service")
	ErrLifecycleClosed    = errors.New("lifecycle is stopping or stopped")
	ErrScopeClosed        = errors.New("scope is closed")
)

// DuplicateProviderError is returned when a key already has a producer.
type DuplicateProviderError struct {
	Key      Key
	Provider string
	Existing string
}

func (e *DuplicateProviderError) Error() string {
	return fmt.Sprintf("duplicate provider for %s: %s conflicts with %s", e.Key, e.Provider, e.Existing)
}

// UnresolvedDependencyError is returned when Consumer requires a key nobody provides.
type UnresolvedDependencyError struct {
	Consumer string
	Missing  Key
}

func (e *UnresolvedDependencyError) Error() string {
	if e.Consumer == "" {
		return fmt.Sprintf("missing dependency: no provider for %s", e.Missing)
	}

	return fmt.Sprintf("missing dependency: %s depends on %s, but no provider is registered for it", e.Consumer, e.Missing)
}

// AmbiguousProviderError is returned when several producers match a key.
type AmbiguousProviderError struct {
	Key        Key
	Candidates []Key
}

func (e *AmbiguousProviderError) Error() string {
	return fmt.Sprintf("ambiguous provider for %s: candidates are %s", e.Key, joinKeys(e.Candidates, ", "))
}

// CircularDependencyError carries the cycle in the order construction was
// attempted; the first and last keys are the same.
type CircularDependencyError struct {
	Path []Key
}

func (e *CircularDependencyError) Error() string {
	return "circular dependency: " + joinKeys(e.Path, " -> ")
}

// ConstructionError wraps a failing constructor. Every caller waiting on the
// same key receives the same error.
type ConstructionError struct {
	Key      Key
	Provider string
	Cause    error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("constructing %s with %s: %v", e.Key, e.Provider, e.Cause)
}

func (e *ConstructionError) Unwrap() error { return e.Cause }

type Phase string

const (
	PhaseStart Phase = "start"
	PhaseStop  Phase = "stop"
)

// LifecycleTimeoutError is returned when a hook action outlives its timeout.
type LifecycleTimeoutError struct {
	Hook    string
	Phase   Phase
	Timeout time.Duration
}

func (e *LifecycleTimeoutError) Error() string {
	return fmt.Sprintf("hook %q: %s timed out after %s", e.Hook, e.Phase, e.Timeout)
}

func (e *LifecycleTimeoutError) Unwrap() error { return context.DeadlineExceeded }

// LifecycleError is returned when a hook action fails.
type LifecycleError struct {
	Hook  string
	Phase Phase
	Cause error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("hook %q: %s failed: %v", e.Hook, e.Phase, e.Cause)
}

func (e *LifecycleError) Unwrap() error { return e.Cause }

func joinKeys(keys []Key, sep string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.String()
	}

	return strings.Join(parts, sep)
}
