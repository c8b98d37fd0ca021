// Package source groups process records by their originating source id.
// The source entities themselves live in an external subsystem; this layer
// holds only the numeric reference and enforces no integrity beyond it.
package source

import (
	"context"
	"iter"

	"github.com/loykin/dispatchr/internal/registry"
	"github.com/loykin/dispatchr/internal/store"
)

// Binding exposes per-source views over the registry store.
type Binding struct {
	st store.Store
}

func NewBinding(st store.Store) *Binding {
	return &Binding{st: st}
}

// RecordsForSource returns a one-shot sequence over the source's records,
// created_at ascending. The sequence reflects a snapshot taken at call time;
// ranging over it a second time yields nothing.
func (b *Binding) RecordsForSource(ctx context.Context, sourceID uint32) (iter.Seq[registry.ProcessRecord], error) {
	recs, err := b.st.ListBySource(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	consumed := false
	return func(yield func(registry.ProcessRecord) bool) {
		if consumed {
			return
		}
		consumed = true
		for _, rec := range recs {
			if !yield(rec) {
				return
			}
		}
	}, nil
}
