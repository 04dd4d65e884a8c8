// ABOUTME: Data models for locally stored CRM entities and sync bookkeeping
// ABOUTME: Defines Entity, kinds, field and relation names, tallies, reports, actors and jobs
package models

import (
	"strings"
	"time"
)

// Kind identifies the type of a local entity.
type Kind string

const (
	KindAccount     Kind = "Account"
	KindContact     Kind = "Contact"
	KindOpportunity Kind = "Opportunity"
	KindUser        Kind = "User"
	KindPublication Kind = "Publication"
	KindTeam        Kind = "Team"
)

// AllKinds lists every kind in the order status output reports them.
var AllKinds = []Kind{KindAccount, KindContact, KindOpportunity, KindUser, KindPublication, KindTeam}

// Field names stored on entities.
const (
	FieldName        = "name"
	FieldFirstName   = "firstName"
	FieldLastName    = "lastName"
	FieldEmail       = "emailAddress"
	FieldPhone       = "phoneNumber"
	FieldMobile      = "phoneNumberMobile"
	FieldSalutation  = "salutationName"
	FieldWebsite     = "website"
	FieldIndustry    = "industry"
	FieldAccountType = "accountType"
	FieldAgency      = "agency"
	FieldLTV         = "ltv"
	FieldBusinessID  = "businessTypeId"
	FieldLastBooking = "lastBookingDate"
	FieldLastDeal    = "lastDealDate"
	FieldStage       = "stage"
	FieldAmount      = "amount"
	FieldCloseDate   = "closeDate"
	FieldNameSource  = "nameSource"
	FieldUserName    = "userName"
	FieldUserType    = "type"
	FieldIsActive    = "isActive"
	FieldPosition    = "position"
	FieldEditionSale = "publicationEditionIdSales"
	FieldEditionProd = "publicationEditionIdProd"
	FieldDescription = "description"

	FieldLegacyCompanyID         = "legacyCompanyId"
	FieldLegacyContactID         = "legacyContactId"
	FieldLegacyLeadID            = "legacyLeadId"
	FieldLegacyStaffID           = "legacyStaffId"
	FieldLegacyPublicationID     = "legacyPublicationId"
	FieldLegacySalesManagerID    = "legacySalesManagerId"
	FieldLegacyHomePublicationID = "legacyHomePublicationId"
)

// Relation names used for links between entities.
const (
	RelAccount         = "account"
	RelPublication     = "publication"
	RelAssignedUser    = "assignedUser"
	RelSalesManager    = "salesManager"
	RelHomePublication = "homePublication"
	RelTeams           = "teams"
	RelDefaultTeam     = "defaultTeam"
)

// Entity is a record in the local store. Every business and legacy field is
// kept as a string in Fields; the name field lives on Name.
type Entity struct {
	ID        string            `json:"id"`
	Kind      Kind              `json:"kind"`
	Name      string            `json:"name"`
	Fields    map[string]string `json:"fields"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// NewEntity returns an unsaved entity of the given kind.
func NewEntity(kind Kind) *Entity {
	return &Entity{Kind: kind, Fields: make(map[string]string)}
}

// IsNew reports whether the store has not assigned an identifier yet.
func (e *Entity) IsNew() bool {
	return e.ID == ""
}

// Get returns a field value, or "" when unset.
func (e *Entity) Get(field string) string {
	if field == FieldName {
		return e.Name
	}
	if e.Fields == nil {
		return ""
	}
	return e.Fields[field]
}

// Set writes a field value. Person kinds keep Name in step with first/last name.
func (e *Entity) Set(field, value string) {
	if field == FieldName {
		e.Name = value
		return
	}
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = value
	if e.IsPerson() && (field == FieldFirstName || field == FieldLastName) {
		e.Name = strings.TrimSpace(e.Fields[FieldFirstName] + " " + e.Fields[FieldLastName])
	}
}

// IsPerson reports whether the kind is named by first and last name.
func (e *Entity) IsPerson() bool {
	return e.Kind == KindContact || e.Kind == KindUser
}

// Clone returns a deep copy.
func (e *Entity) Clone() *Entity {
	c := *e
	c.Fields = make(map[string]string, len(e.Fields))
	for k, v := range e.Fields {
		c.Fields[k] = v
	}
	return &c
}

// Criterion is one equality condition used to look entities up.
type Criterion struct {
	Field      string
	Value      string
	IgnoreCase bool
}

// Link is a relationship row between two entities.
type Link struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Relation  string    `json:"relation"`
	TargetID  string    `json:"target_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Actor is the caller of an administrative or manual-trigger operation.
type Actor struct {
	ID            string `json:"id"`
	LegacyStaffID string `json:"legacy_staff_id,omitempty"`
	Admin         bool   `json:"admin"`
}

// Job statuses.
const (
	JobPending = "pending"
	JobDone    = "done"
	JobError   = "error"
)

// Job is a queued manual sync for one target.
type Job struct {
	ID         string     `json:"id"`
	TargetType string     `json:"target_type"`
	TargetID   string     `json:"target_id"`
	Status     string     `json:"status"`
	Message    string     `json:"message,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
