// ABOUTME: Field merge rules applying legacy records onto local entities
// ABOUTME: Required fields overwrite, optional fields never clear, legacy ids are write-once
package sync

import (
	"strings"
	"time"

	"github.com/harperreed/crmsync/models"
)

const (
	// DefaultOpportunityAmount fills amount when the legacy lead has none.
	DefaultOpportunityAmount = "25000"

	sentinelDate  = "1900-01-01"
	absentWebsite = "na"

	nameSourceLegacy  = "legacy"
	nameSourceDerived = "derived"
)

// Merge applies rec onto e using the kind's merge rules.
func Merge(e *models.Entity, rec Record, now time.Time) {
	if strat := strategyFor(e.Kind); strat != nil {
		strat.merge(e, rec, now)
	}
}

// setRequired always overwrites.
func setRequired(e *models.Entity, field, value string) {
	e.Set(field, strings.TrimSpace(value))
}

// setOptional writes only a non-blank value.
func setOptional(e *models.Entity, field, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	e.Set(field, value)
}

// setLegacyID writes an identity legacy id only when none is stored yet.
func setLegacyID(e *models.Entity, field, value string) {
	value = strings.TrimSpace(value)
	if value == "" || e.Get(field) != "" {
		return
	}
	e.Set(field, value)
}

func setDate(e *models.Entity, field, value string) {
	if isSentinelDate(value) {
		return
	}
	setOptional(e, field, value)
}

func isSentinelDate(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), sentinelDate)
}

func mergeAccount(e *models.Entity, r Record, _ time.Time) {
	setLegacyID(e, models.FieldLegacyCompanyID, r.Get("legacyCompanyId"))
	setRequired(e, models.FieldName, r.Get("name"))
	setOptional(e, models.FieldPhone, r.Get("telephone"))
	setOptional(e, models.FieldEmail, r.Get("email"))
	if web := r.Get("webAddress"); !strings.EqualFold(web, absentWebsite) {
		setOptional(e, models.FieldWebsite, web)
	}
	setDate(e, models.FieldLastBooking, r.Get("lastBookingDate"))
	setDate(e, models.FieldLastDeal, r.Get("lastDealDate"))
	setOptional(e, models.FieldLTV, r.Get("ltv"))
	setOptional(e, models.FieldBusinessID, r.Get("businessTypeId"))
	setOptional(e, models.FieldIndustry, r.Get("businessType"))
	if r.Has("agency") {
		agency := r.Truthy("agency")
		if agency {
			e.Set(models.FieldAgency, "true")
			e.Set(models.FieldAccountType, "Agency")
		} else {
			e.Set(models.FieldAgency, "false")
			e.Set(models.FieldAccountType, "Client")
		}
	}
}

func mergeContact(e *models.Entity, r Record, _ time.Time) {
	setLegacyID(e, models.FieldLegacyContactID, r.Get("legacyId"))
	setRequired(e, models.FieldFirstName, r.Get("firstName"))
	setRequired(e, models.FieldLastName, r.Get("lastName"))
	setOptional(e, models.FieldPhone, r.Get("telephone"))
	setOptional(e, models.FieldMobile, r.Get("cell"))
	setOptional(e, models.FieldEmail, r.Get("email"))
	setOptional(e, models.FieldSalutation, r.Get("salutation"))
	setOptional(e, models.FieldLegacyCompanyID, r.Get("companyId"))
}

func mergeUser(e *models.Entity, r Record, _ time.Time) {
	isNew := e.IsNew()
	setLegacyID(e, models.FieldLegacyStaffID, r.Get("legacyId"))
	setRequired(e, models.FieldFirstName, r.Get("firstName"))
	setRequired(e, models.FieldLastName, r.Get("lastName"))
	setOptional(e, models.FieldEmail, r.Get("email"))
	setOptional(e, models.FieldPhone, r.Get("phoneNumber"))
	setOptional(e, models.FieldMobile, r.Get("cell"))
	setOptional(e, models.FieldPosition, r.Get("position"))
	setOptional(e, models.FieldLegacyHomePublicationID, r.Get("homePublicationId"))
	if e.Get(models.FieldUserName) == "" {
		e.Set(models.FieldUserName, UserName(r.Get("firstName"), r.Get("lastName")))
	}
	if isNew {
		e.Set(models.FieldUserType, "regular")
		e.Set(models.FieldIsActive, "true")
	}
}

func mergePublication(e *models.Entity, r Record, _ time.Time) {
	setLegacyID(e, models.FieldLegacyPublicationID, r.Get("legacyId"))
	setRequired(e, models.FieldName, r.Get("name"))
	setOptional(e, models.FieldEditionSale, r.First("publicationEditionIdSales", "publicationEditionIDSales"))
	setOptional(e, models.FieldEditionProd, r.First("publicationEditionIdProd", "publicationEditionIDProd"))
	setOptional(e, models.FieldLegacySalesManagerID, r.Get("salesManagerId"))
}

func mergeOpportunity(e *models.Entity, r Record, now time.Time) {
	legacyID := r.Get("legacyId")
	setLegacyID(e, models.FieldLegacyLeadID, legacyID)

	if name := r.Get("name"); name != "" {
		e.Set(models.FieldName, name)
		e.Set(models.FieldNameSource, nameSourceLegacy)
	} else if e.Name == "" {
		e.Set(models.FieldName, provisionalName(legacyID))
		e.Set(models.FieldNameSource, nameSourceDerived)
	}

	if r.Has("statusId") {
		e.Set(models.FieldStage, models.StageForStatusText(r.Get("statusId")))
	} else if e.Get(models.FieldStage) == "" {
		e.Set(models.FieldStage, models.DefaultStage)
	}

	if r.Has("amount") {
		e.Set(models.FieldAmount, r.Get("amount"))
	} else if e.Get(models.FieldAmount) == "" {
		e.Set(models.FieldAmount, DefaultOpportunityAmount)
	}

	if closeDate := r.Get("closeDate"); closeDate != "" && !isSentinelDate(closeDate) {
		e.Set(models.FieldCloseDate, closeDate)
	} else if e.Get(models.FieldCloseDate) == "" {
		e.Set(models.FieldCloseDate, DefaultCloseDate(now))
	}

	setOptional(e, models.FieldLegacyCompanyID, r.Get("companyId"))
	setOptional(e, models.FieldLegacyStaffID, r.Get("staffId"))
	setOptional(e, models.FieldLegacyPublicationID, r.Get("publicationId"))
}

// UserName derives the login handle: lower-cased first.last.
func UserName(first, last string) string {
	return strings.ToLower(strings.TrimSpace(first) + "." + strings.TrimSpace(last))
}

// DefaultCloseDate is three months after now.
func DefaultCloseDate(now time.Time) string {
	return now.AddDate(0, 3, 0).Format("2006-01-02")
}

// provisionalName names an opportunity until its account is linked.
func provisionalName(legacyID string) string {
	return "Opportunity " + legacyID
}

// OpportunityName is the name derived from a linked account.
func OpportunityName(accountName string) string {
	return accountName + " - Opportunity"
}
