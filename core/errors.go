package core

import (
	"fmt"
	"strings"
)

// ConfigError reports an invalid adapter descriptor or configuration source.
// It covers a single descriptor; loaders skip the offending entry and
// continue.
type ConfigError struct {
	Source  string // descriptor name, file path, or env var that failed
	Message string
}

func (e *ConfigError) Error() string {
	if e.Source == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Source, e.Message)
}

// ConflictError reports a registration against a name that already has one.
type ConflictError struct {
	Name string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("adapter %q is already registered", e.Name)
}

// ProtocolError reports a value that does not satisfy the adapter protocol.
type ProtocolError struct {
	Type     string   // type name of the offending value
	Problems []string // one entry per missing or mismatched method
}

func (e *ProtocolError) Error() string {
	if len(e.Problems) == 0 {
		return fmt.Sprintf("%s does not implement the adapter protocol", e.Type)
	}
	return fmt.Sprintf("%s does not implement the adapter protocol: %s", e.Type, strings.Join(e.Problems, "; "))
}

// ResolutionError reports a lazy registration whose resolver failed.
// The registration stays lazy so a later lookup can retry.
type ResolutionError struct {
	Name  string
	Cause error
}

func (e *ResolutionError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("resolve adapter %q", e.Name)
	}
	return fmt.Sprintf("resolve adapter %q: %v", e.Name, e.Cause)
}

// Unwrap exposes the resolver failure for errors.Is/errors.As.
func (e *ResolutionError) Unwrap() error {
	return e.Cause
}

// ToolNotFoundError reports an execution request for a tool name absent from
// the supplied collection.
type ToolNotFoundError struct {
	Tool      string
	Available []string
}

func (e *ToolNotFoundError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("tool %q not found", e.Tool)
	}
	return fmt.Sprintf("tool %q not found (available: %s)", e.Tool, strings.Join(e.Available, ", "))
}

// FallbackAttempt records one failed candidate from a fallback chain.
type FallbackAttempt struct {
	Name string
	Err  error
}

// FallbackError aggregates the failures of every candidate in a fallback
// chain. It is returned only when no candidate could be constructed.
type FallbackError struct {
	Attempts []FallbackAttempt
}

func (e *FallbackError) Error() string {
	if len(e.Attempts) == 0 {
		return "all fallback adapters failed"
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Name, a.Err))
	}
	return fmt.Sprintf("all fallback adapters failed: %s", strings.Join(parts, "; "))
}

// Unwrap exposes every attempt error for errors.Is/errors.As matching.
func (e *FallbackError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}
