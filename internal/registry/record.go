package registry

import "time"

// IDLen is the canonical textual UUID length used as the primary key
// (uuid CHAR(36)).
const IDLen = 36

// Kind classifies the process kind (the schema's `type` column, 0-255).
// Regular and sandbox are the kinds the dispatcher itself creates; any
// byte value is storable.
type Kind uint8

const (
	KindRegular Kind = 1
	KindSandbox Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindRegular:
		return "regular"
	case KindSandbox:
		return "sandbox"
	}
	return "unknown"
}

// ProcessRecord is one dispatcher-managed unit of work. ID, SourceID, Kind
// and CreatedAt are immutable after creation; only State changes, and only
// through Transition-validated updates.
//
// SourceID is a weak reference into the external sources subsystem; no
// referential integrity is enforced at this layer.
type ProcessRecord struct {
	ID        string    `json:"id"`
	SourceID  uint32    `json:"source_id"`
	State     State     `json:"state"`
	Kind      Kind      `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}
