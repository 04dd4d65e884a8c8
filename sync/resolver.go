// ABOUTME: Identity resolution of legacy records to local entities
// ABOUTME: Tiered lookup: legacy id first, then natural keys that may adopt unclaimed entities
package sync

import (
	"context"

	"github.com/harperreed/crmsync/models"
)

// Resolver maps an incoming record to at most one existing entity.
type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve walks the kind's tiers in order and stops at the first match. It
// returns the matching tier name, or nil when the caller should create.
func (r *Resolver) Resolve(ctx context.Context, kind models.Kind, rec Record) (*models.Entity, string, error) {
	strat := strategyFor(kind)
	if strat == nil {
		return nil, "", ErrUnknownCategory
	}
	incoming := rec.Get(strat.legacyKey)

	for i, t := range strat.tiers {
		criteria, ok := t.criteria(rec)
		if !ok {
			continue
		}
		found, err := r.store.Find(ctx, kind, criteria...)
		if err != nil {
			return nil, "", err
		}
		natural := i > 0
		for _, e := range found {
			// Natural keys only adopt entities not already claimed by another legacy id.
			if natural {
				current := e.Get(strat.legacyField)
				if current != "" && current != incoming {
					continue
				}
			}
			return e, t.name, nil
		}
	}
	return nil, "", nil
}

// ByLegacyID finds an entity of kind whose legacy field equals id.
func (r *Resolver) ByLegacyID(ctx context.Context, kind models.Kind, field, id string) (*models.Entity, error) {
	if id == "" {
		return nil, nil
	}
	found, err := r.store.Find(ctx, kind, models.Criterion{Field: field, Value: id})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, nil
	}
	return found[0], nil
}

func (t tier) criteria(rec Record) ([]models.Criterion, bool) {
	criteria := make([]models.Criterion, 0, len(t.fields))
	for _, f := range t.fields {
		v := rec.Get(f.key)
		if v == "" {
			return nil, false
		}
		criteria = append(criteria, models.Criterion{Field: f.field, Value: v, IgnoreCase: t.ignoreCase})
	}
	return criteria, true
}
