package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors represent the failure classes callers branch on.
// Typed errors below wrap one of these so errors.Is works against the class.
var (
	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a uniqueness constraint was violated.
	ErrConflict = errors.New("conflict")

	// ErrRemoteService indicates an external service failed after retries.
	ErrRemoteService = errors.New("remote service failure")

	// ErrDataIntegrity indicates stored or returned data violates an invariant,
	// such as a vector of the wrong dimension.
	ErrDataIntegrity = errors.New("data integrity violation")

	// ErrPartialHarvest indicates a harvest stored some units but not all.
	ErrPartialHarvest = errors.New("partial harvest")

	// ErrConfigMissing indicates a required configuration value is absent.
	ErrConfigMissing = errors.New("missing configuration")
)

// ConflictError reports a duplicate key on insert.
type ConflictError struct {
	// Entity is the table or record type ("source", "item", "chunk").
	Entity string

	// Key is the conflicting value, e.g. the URL.
	Key string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Entity, e.Key)
}

// Is reports whether target is ErrConflict.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// RemoteServiceError reports an external call that failed after retries.
type RemoteServiceError struct {
	// Service names the collaborator ("embedding", "llm", "transcription", "github").
	Service string

	// Unit describes what was being processed, usually a URL or title.
	Unit string

	// Units lists failed input indexes for batched calls.
	Units []int

	// Attempts is how many calls were made.
	Attempts int

	Err error
}

func (e *RemoteServiceError) Error() string {
	var b strings.Builder
	b.WriteString(e.Service)
	b.WriteString(" failed")
	if e.Unit != "" {
		fmt.Fprintf(&b, " for %s", e.Unit)
	}
	if len(e.Units) > 0 {
		fmt.Fprintf(&b, " (inputs %v)", e.Units)
	}
	if e.Attempts > 0 {
		fmt.Fprintf(&b, " after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Is reports whether target is ErrRemoteService.
func (e *RemoteServiceError) Is(target error) bool {
	return target == ErrRemoteService
}

func (e *RemoteServiceError) Unwrap() error {
	return e.Err
}

// DataIntegrityError reports a record that violates a data invariant.
type DataIntegrityError struct {
	// Record identifies the offending record ("chunk 12", "input 3").
	Record string

	// Want and Got are the expected and actual sizes when the violation is dimensional.
	Want int
	Got  int

	Reason string
}

func (e *DataIntegrityError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Record, e.Reason)
	}
	return fmt.Sprintf("%s: embedding has %d dimensions, want %d", e.Record, e.Got, e.Want)
}

// Is reports whether target is ErrDataIntegrity.
func (e *DataIntegrityError) Is(target error) bool {
	return target == ErrDataIntegrity
}
