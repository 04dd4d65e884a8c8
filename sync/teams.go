// ABOUTME: Sales team assignment pass linking staff to per-publication teams
// ABOUTME: Creates "<Publication> Team" on demand and records home publications
package sync

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/harperreed/crmsync/models"
)

// TeamName is the team created for a publication.
func TeamName(publication string) string {
	return publication + " Team"
}

func (e *Engine) assignTeam(ctx context.Context, entry *log.Entry, p pass, rec Record, tally *models.Tally) error {
	staffID := rec.Get("staffId")
	pubID := rec.Get("publicationId")
	legacyID := staffID + "/" + pubID
	entry = entry.WithField("legacy_id", legacyID)

	user, err := e.resolver.ByLegacyID(ctx, models.KindUser, models.FieldLegacyStaffID, staffID)
	if err != nil {
		return e.recordFailure(entry, tally, p, legacyID, "", err)
	}
	pub, err := e.resolver.ByLegacyID(ctx, models.KindPublication, models.FieldLegacyPublicationID, pubID)
	if err != nil {
		return e.recordFailure(entry, tally, p, legacyID, "", err)
	}
	if user == nil || pub == nil {
		missing := "staff " + staffID
		if user != nil {
			missing = "publication " + pubID
		}
		tally.Deferred++
		tally.Details = append(tally.Details, detailFor(p, legacyID, "", &Error{
			Kind:     ErrRelationshipUnresolved,
			LegacyID: legacyID,
			Err:      fmt.Errorf("%s not synced yet", missing),
		}))
		entry.WithField("missing", missing).Debug("team assignment deferred")
		return nil
	}

	team, err := e.teamFor(ctx, pub)
	if err != nil {
		return e.recordFailure(entry, tally, p, legacyID, user.Name, err)
	}
	if _, err := e.store.Relate(ctx, team.ID, models.RelPublication, pub.ID, false); err != nil {
		return e.recordFailure(entry, tally, p, legacyID, user.Name, err)
	}
	if _, err := e.store.Relate(ctx, user.ID, models.RelTeams, team.ID, true); err != nil {
		return e.recordFailure(entry, tally, p, legacyID, user.Name, err)
	}

	if rec.Truthy("homePub") {
		if _, err := e.store.Relate(ctx, user.ID, models.RelDefaultTeam, team.ID, false); err != nil {
			return e.recordFailure(entry, tally, p, legacyID, user.Name, err)
		}
		if _, err := e.store.Relate(ctx, user.ID, models.RelHomePublication, pub.ID, false); err != nil {
			return e.recordFailure(entry, tally, p, legacyID, user.Name, err)
		}
	}

	tally.Succeeded++
	entry.WithFields(log.Fields{"user": user.Name, "team": team.Name}).Debug("team assigned")
	return nil
}

// teamFor finds or creates the team for a publication.
func (e *Engine) teamFor(ctx context.Context, pub *models.Entity) (*models.Entity, error) {
	name := TeamName(pub.Name)
	found, err := e.store.Find(ctx, models.KindTeam, models.Criterion{Field: models.FieldName, Value: name, IgnoreCase: true})
	if err != nil {
		return nil, err
	}
	if len(found) > 0 {
		return found[0], nil
	}
	team := models.NewEntity(models.KindTeam)
	team.Set(models.FieldName, name)
	team.Set(models.FieldDescription, "Sales team for "+pub.Name)
	if err := e.store.Save(ctx, team); err != nil {
		return nil, err
	}
	return team, nil
}
