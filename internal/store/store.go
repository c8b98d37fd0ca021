// Package store defines the persistence contract for the process registry:
// CRUD plus atomic, transition-validated state updates over the
// dispatcher_processes table.
package store

import (
	"context"
	"errors"

	"github.com/loykin/dispatchr/internal/registry"
)

var (
	// ErrNotFound is returned when no record exists for the given id.
	ErrNotFound = errors.New("process record not found")
	// ErrConflict is returned when a write loses a race it cannot resolve
	// within its bounded retry budget.
	ErrConflict = errors.New("conflicting concurrent update")
	// ErrIDGenerationExhausted is returned when Create keeps colliding on
	// freshly generated identifiers.
	ErrIDGenerationExhausted = errors.New("identifier generation exhausted")
)

// MaxIDAttempts bounds identifier generation retries in Create.
const MaxIDAttempts = 3

// CASAttempts bounds the read-validate-swap loop in UpdateState.
const CASAttempts = 4

// Store is the registry persistence interface. Implementations must be safe
// for concurrent use; UpdateState must be serializable per id.
type Store interface {
	EnsureSchema(ctx context.Context) error

	// Create persists a fresh record in state pending with a new unique
	// identifier and a store-assigned millisecond creation timestamp.
	Create(ctx context.Context, sourceID uint32, kind registry.Kind) (registry.ProcessRecord, error)

	Get(ctx context.Context, id string) (registry.ProcessRecord, error)

	// UpdateState applies a Transition-validated state change atomically
	// with respect to concurrent updates on the same id.
	UpdateState(ctx context.Context, id string, target registry.State) (registry.ProcessRecord, error)

	// ListBySource returns the records for one source, created_at ascending.
	ListBySource(ctx context.Context, sourceID uint32) ([]registry.ProcessRecord, error)

	// ListByState returns up to limit records in the given state across all
	// sources, created_at ascending.
	ListByState(ctx context.Context, state registry.State, limit int) ([]registry.ProcessRecord, error)

	// LatestBySource returns the most recently created record for a source.
	LatestBySource(ctx context.Context, sourceID uint32) (registry.ProcessRecord, error)

	// Delete removes a record. Administrative purge only; the dispatcher
	// never deletes during normal operation.
	Delete(ctx context.Context, id string) error

	Close() error
}
