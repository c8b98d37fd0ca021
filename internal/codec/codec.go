// Package codec converts between in-memory process records and their
// persisted dispatcher_processes row image. Both directions are pure and
// never coerce out-of-range values.
package codec

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/dispatchr/internal/registry"
)

// Row is the persisted representation of a process record, using the
// column types database/sql hands back from the dispatcher_processes table.
type Row struct {
	UUID      string    // uuid CHAR(36), primary key
	SourceID  int64     // source_id, unsigned 32-bit range
	State     string    // state VARCHAR(15)
	Type      int64     // type, unsigned 8-bit range
	CreatedAt time.Time // created_at TIMESTAMP(3)
}

var (
	ErrDecode              = fmt.Errorf("codec: malformed row")
	ErrMalformedIdentifier = fmt.Errorf("%w: malformed identifier", ErrDecode)
	ErrUnknownState        = fmt.Errorf("%w: unknown state", ErrDecode)
	ErrFieldOverflow       = fmt.Errorf("%w: field overflow", ErrDecode)
)

// Encode validates rec and produces its row image.
func Encode(rec registry.ProcessRecord) (Row, error) {
	if err := checkID(rec.ID); err != nil {
		return Row{}, err
	}
	if _, err := registry.ParseState(string(rec.State)); err != nil {
		return Row{}, fmt.Errorf("%w: %q", ErrUnknownState, rec.State)
	}
	return Row{
		UUID:      rec.ID,
		SourceID:  int64(rec.SourceID),
		State:     string(rec.State),
		Type:      int64(rec.Kind),
		CreatedAt: rec.CreatedAt.UTC().Truncate(time.Millisecond),
	}, nil
}

// Decode validates a scanned row and produces the record.
func Decode(row Row) (registry.ProcessRecord, error) {
	if err := checkID(row.UUID); err != nil {
		return registry.ProcessRecord{}, err
	}
	if len(row.State) > registry.MaxStateLen {
		return registry.ProcessRecord{}, fmt.Errorf("%w: state %q exceeds %d bytes", ErrFieldOverflow, row.State, registry.MaxStateLen)
	}
	st, err := registry.ParseState(row.State)
	if err != nil {
		return registry.ProcessRecord{}, fmt.Errorf("%w: %q", ErrUnknownState, row.State)
	}
	if row.SourceID < 0 || row.SourceID > math.MaxUint32 {
		return registry.ProcessRecord{}, fmt.Errorf("%w: source_id %d outside unsigned 32-bit range", ErrFieldOverflow, row.SourceID)
	}
	if row.Type < 0 || row.Type > math.MaxUint8 {
		return registry.ProcessRecord{}, fmt.Errorf("%w: type %d outside 0-255", ErrFieldOverflow, row.Type)
	}
	return registry.ProcessRecord{
		ID:        row.UUID,
		SourceID:  uint32(row.SourceID),
		State:     st,
		Kind:      registry.Kind(row.Type),
		CreatedAt: row.CreatedAt.UTC().Truncate(time.Millisecond),
	}, nil
}

func checkID(id string) error {
	if len(id) != registry.IDLen {
		return fmt.Errorf("%w: %q is not %d characters", ErrMalformedIdentifier, id, registry.IDLen)
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrMalformedIdentifier, id, err)
	}
	return nil
}
