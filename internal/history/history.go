package history

import (
	"context"
	"time"

	"github.com/loykin/dispatchr/internal/registry"
)

// EventType defines the kind of registry event.
type EventType string

const (
	EventCreate     EventType = "create"
	EventTransition EventType = "transition"
	EventDelete     EventType = "delete"
)

// Event represents a registry change to be exported to external systems.
// From is set only for transition events.
type Event struct {
	Type       EventType              `json:"type"`
	OccurredAt time.Time              `json:"occurred_at"`
	Record     registry.ProcessRecord `json:"record"`
	From       registry.State         `json:"from,omitempty"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use. Sink failures must never
// block or roll back registry writes; callers log and move on.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
