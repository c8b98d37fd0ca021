package client

import "time"

// CreateRequest represents a request to create a process record. Type 0
// lets the daemon default to the regular kind.
type CreateRequest struct {
	SourceID uint32 `json:"source_id"`
	Type     uint8  `json:"type,omitempty"`
}

// ProcessRecord mirrors the daemon's record payload.
type ProcessRecord struct {
	ID        string    `json:"id"`
	SourceID  uint32    `json:"source_id"`
	State     string    `json:"state"`
	Type      uint8     `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

// AssignedProcess mirrors the daemon's assignment payload. CreatedAt is
// unix milliseconds.
type AssignedProcess struct {
	ID           string `json:"id"`
	SourceID     uint32 `json:"source_id"`
	State        string `json:"state"`
	Type         uint8  `json:"type"`
	CreatedAt    int64  `json:"created_at"`
	SupervisorID string `json:"supervisor_id"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
