// ABOUTME: Relationship linker resolving legacy foreign keys into local links
// ABOUTME: Missing targets are deferred, relating is idempotent, opportunities take derived names
package sync

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/harperreed/crmsync/models"
)

// Linker relates persisted owners to targets found by legacy id.
type Linker struct {
	store    Store
	resolver *Resolver
	logger   *log.Logger
}

func NewLinker(store Store, logger *log.Logger) *Linker {
	return &Linker{store: store, resolver: NewResolver(store), logger: logger}
}

// Link relates owner to the target whose legacy id is legacyID. A missing
// target yields an *Error of kind ErrRelationshipUnresolved.
func (l *Linker) Link(ctx context.Context, owner *models.Entity, rel relation, legacyID string) (bool, error) {
	if owner.IsNew() {
		return false, fmt.Errorf("%w: %s must be saved before linking", ErrRecordRejected, owner.Kind)
	}
	target, err := l.resolver.ByLegacyID(ctx, rel.target, rel.targetField, legacyID)
	if err != nil {
		return false, err
	}
	if target == nil {
		l.logger.WithFields(log.Fields{
			"owner":     owner.ID,
			"relation":  rel.name,
			"legacy_id": legacyID,
		}).Debug("link target not found yet, deferring")
		return false, &Error{
			Kind:     ErrRelationshipUnresolved,
			LegacyID: legacyID,
			Name:     owner.Name,
			Err:      fmt.Errorf("%s %s: no %s with %s %s", owner.Kind, rel.name, rel.target, rel.targetField, legacyID),
		}
	}

	changed, err := l.store.Relate(ctx, owner.ID, rel.name, target.ID, rel.many)
	if err != nil {
		return false, err
	}

	if owner.Kind == models.KindOpportunity && rel.name == models.RelAccount {
		if err := l.nameFromAccount(ctx, owner, target, changed); err != nil {
			return changed, err
		}
	}
	return changed, nil
}

// nameFromAccount gives an opportunity without a legacy name the name of its
// account, and follows the account when the link moves.
func (l *Linker) nameFromAccount(ctx context.Context, opp, account *models.Entity, accountChanged bool) error {
	if account.Name == "" || opp.Get(models.FieldNameSource) == nameSourceLegacy {
		return nil
	}
	want := OpportunityName(account.Name)
	if opp.Name == want {
		return nil
	}
	placeholder := opp.Name == "" || opp.Name == provisionalName(opp.Get(models.FieldLegacyLeadID))
	if !placeholder && !accountChanged {
		return nil
	}
	opp.Set(models.FieldName, want)
	opp.Set(models.FieldNameSource, nameSourceDerived)
	return l.store.Save(ctx, opp)
}

// Relink retries every to-one relation from the foreign keys stored on
// entities, without fetching. It returns how many links it created or moved.
func (l *Linker) Relink(ctx context.Context) (int, error) {
	linked := 0
	for _, kind := range models.AllKinds {
		strat := strategyFor(kind)
		if strat == nil || len(strat.relations) == 0 {
			continue
		}
		owners, err := l.store.Find(ctx, kind)
		if err != nil {
			return linked, err
		}
		for _, owner := range owners {
			for _, rel := range strat.relations {
				fk := owner.Get(rel.ownerField)
				if fk == "" {
					continue
				}
				current, err := l.store.Related(ctx, owner.ID, rel.name)
				if err != nil {
					return linked, err
				}
				if len(current) == 1 && current[0].Get(rel.targetField) == fk {
					continue
				}
				changed, err := l.Link(ctx, owner, rel, fk)
				if err != nil {
					if IsFatal(err) {
						return linked, err
					}
					continue
				}
				if changed {
					linked++
				}
			}
		}
	}
	return linked, nil
}
