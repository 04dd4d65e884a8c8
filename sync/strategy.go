// ABOUTME: Per-kind sync strategies: identity tiers, merge function and relation descriptors
// ABOUTME: Selected once per pass instead of branching on the kind for every field
package sync

import (
	"time"

	"github.com/harperreed/crmsync/models"
)

// tierField maps a record key onto an entity field for a lookup.
type tierField struct {
	field string
	key   string
}

// tier is one identity lookup; all its keys must be present for it to apply.
type tier struct {
	name       string
	fields     []tierField
	ignoreCase bool
}

// relation describes a link resolved through a legacy foreign key.
type relation struct {
	name        string
	target      models.Kind
	targetField string // legacy id field on the target
	recordKey   string // record key holding the foreign key
	ownerField  string // entity field storing the foreign key verbatim
	many        bool
}

type mergeFunc func(e *models.Entity, r Record, now time.Time)

// strategy is everything the pipeline needs to know about one kind.
type strategy struct {
	kind        models.Kind
	legacyField string
	legacyKey   string
	tiers       []tier
	merge       mergeFunc
	relations   []relation
}

var (
	accountTarget     = relation{target: models.KindAccount, targetField: models.FieldLegacyCompanyID}
	publicationTarget = relation{target: models.KindPublication, targetField: models.FieldLegacyPublicationID}
	userTarget        = relation{target: models.KindUser, targetField: models.FieldLegacyStaffID}
)

func withRelation(base relation, name, key, ownerField string) relation {
	base.name = name
	base.recordKey = key
	base.ownerField = ownerField
	return base
}

func legacyTier(field, key string) tier {
	return tier{name: "legacy id", fields: []tierField{{field, key}}}
}

var (
	nameTier   = tier{name: "name", fields: []tierField{{models.FieldName, "name"}}, ignoreCase: true}
	tripleTier = tier{name: "name and email", fields: []tierField{
		{models.FieldFirstName, "firstName"},
		{models.FieldLastName, "lastName"},
		{models.FieldEmail, "email"},
	}, ignoreCase: true}
	pairTier = tier{name: "first and last name", fields: []tierField{
		{models.FieldFirstName, "firstName"},
		{models.FieldLastName, "lastName"},
	}, ignoreCase: true}
	emailTier = tier{name: "email", fields: []tierField{{models.FieldEmail, "email"}}, ignoreCase: true}
)

var strategies = map[models.Kind]*strategy{
	models.KindAccount: {
		kind:        models.KindAccount,
		legacyField: models.FieldLegacyCompanyID,
		legacyKey:   "legacyCompanyId",
		tiers:       []tier{legacyTier(models.FieldLegacyCompanyID, "legacyCompanyId"), nameTier},
		merge:       mergeAccount,
	},
	models.KindContact: {
		kind:        models.KindContact,
		legacyField: models.FieldLegacyContactID,
		legacyKey:   "legacyId",
		tiers:       []tier{legacyTier(models.FieldLegacyContactID, "legacyId"), tripleTier, pairTier},
		merge:       mergeContact,
		relations: []relation{
			withRelation(accountTarget, models.RelAccount, "companyId", models.FieldLegacyCompanyID),
		},
	},
	models.KindUser: {
		kind:        models.KindUser,
		legacyField: models.FieldLegacyStaffID,
		legacyKey:   "legacyId",
		tiers:       []tier{legacyTier(models.FieldLegacyStaffID, "legacyId"), tripleTier, emailTier, pairTier},
		merge:       mergeUser,
		relations: []relation{
			withRelation(publicationTarget, models.RelHomePublication, "homePublicationId", models.FieldLegacyHomePublicationID),
		},
	},
	models.KindPublication: {
		kind:        models.KindPublication,
		legacyField: models.FieldLegacyPublicationID,
		legacyKey:   "legacyId",
		tiers:       []tier{legacyTier(models.FieldLegacyPublicationID, "legacyId"), nameTier},
		merge:       mergePublication,
		relations: []relation{
			withRelation(userTarget, models.RelSalesManager, "salesManagerId", models.FieldLegacySalesManagerID),
		},
	},
	models.KindOpportunity: {
		kind:        models.KindOpportunity,
		legacyField: models.FieldLegacyLeadID,
		legacyKey:   "legacyId",
		tiers:       []tier{legacyTier(models.FieldLegacyLeadID, "legacyId")},
		merge:       mergeOpportunity,
		relations: []relation{
			withRelation(accountTarget, models.RelAccount, "companyId", models.FieldLegacyCompanyID),
			withRelation(publicationTarget, models.RelPublication, "publicationId", models.FieldLegacyPublicationID),
			withRelation(userTarget, models.RelAssignedUser, "staffId", models.FieldLegacyStaffID),
		},
	},
}

func strategyFor(kind models.Kind) *strategy {
	return strategies[kind]
}
