package sync

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecordsSplitsValidAndRejected(t *testing.T) {
	raw := []interface{}{
		map[string]interface{}{"legacyId": "o1", "statusId": json.Number("6"), "amount": json.Number("1200.50")},
		map[string]interface{}{"name": "missing id"},
		"not an object",
		map[string]interface{}{"legacyId": "o2", "companyId": nil},
	}

	batch, err := ParseRecords(CategoryOpportunities, raw)
	require.NoError(t, err)
	assert.Equal(t, 4, batch.Len())
	require.Len(t, batch.Records, 2)
	require.Len(t, batch.Rejected, 2)

	assert.Equal(t, "6", batch.Records[0].Get("statusId"))
	assert.Equal(t, "1200.50", batch.Records[0].Get("amount"))
	assert.False(t, batch.Records[1].Has("companyId"), "null is absent")
	assert.Equal(t, "missing id", batch.Rejected[0].Name)
	assert.Error(t, batch.Rejected[1].Err)
}

func TestParseRecordsRejectsBlankRequiredFields(t *testing.T) {
	raw := []interface{}{
		map[string]interface{}{"legacyId": "   ", "name": "Ghost lead"},
		map[string]interface{}{"legacyId": json.Number("7")},
	}
	batch, err := ParseRecords(CategoryOpportunities, raw)
	require.NoError(t, err)
	require.Len(t, batch.Rejected, 1)
	assert.Equal(t, "Ghost lead", batch.Rejected[0].Name)
	require.Len(t, batch.Records, 1)
	assert.Equal(t, "7", batch.Records[0].Get("legacyId"))

	batch, err = ParseRecords(CategoryStaff, []interface{}{
		map[string]interface{}{"legacyId": "s1", "firstName": "\t", "lastName": "Smith"},
	})
	require.NoError(t, err)
	assert.Empty(t, batch.Records)
	assert.Len(t, batch.Rejected, 1)
}

func TestParseRecordsRejectsNestedValues(t *testing.T) {
	raw := []interface{}{
		map[string]interface{}{"legacyCompanyId": "500", "name": "Acme", "extra": map[string]interface{}{"x": "y"}},
	}
	batch, err := ParseRecords(CategoryCompanies, raw)
	require.NoError(t, err)
	assert.Empty(t, batch.Records)
	require.Len(t, batch.Rejected, 1)
	assert.Equal(t, "500", batch.Rejected[0].LegacyID)
}

func TestParseRecordsTeamAssignmentID(t *testing.T) {
	raw := []interface{}{map[string]interface{}{"staffId": "s1"}}
	batch, err := ParseRecords(CategoryTeamAssignments, raw)
	require.NoError(t, err)
	require.Len(t, batch.Rejected, 1)
	assert.Equal(t, "s1/", batch.Rejected[0].LegacyID)
}

func TestParseRecordsUnknownCategory(t *testing.T) {
	_, err := ParseRecords("invoices", nil)
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestRecordTruthy(t *testing.T) {
	r := record("a", "1", "b", "true", "c", "Yes", "d", "0", "e", "false", "f", "", "g", "2", "h", "maybe")
	assert.True(t, r.Truthy("a"))
	assert.True(t, r.Truthy("b"))
	assert.True(t, r.Truthy("c"))
	assert.False(t, r.Truthy("d"))
	assert.False(t, r.Truthy("e"))
	assert.False(t, r.Truthy("f"))
	assert.True(t, r.Truthy("g"))
	assert.False(t, r.Truthy("h"))
	assert.False(t, r.Truthy("missing"))
}

func TestRecordFirst(t *testing.T) {
	r := record("publicationEditionIDSales", "42", "blank", "  ")
	assert.Equal(t, "42", r.First("publicationEditionIdSales", "publicationEditionIDSales"))
	assert.Equal(t, "", r.First("blank"))
}

func TestEveryCategoryHasSchemaAndEndpoint(t *testing.T) {
	for _, c := range Categories {
		assert.Contains(t, feedSchemas, c)
		assert.Contains(t, Endpoints, c)
	}
}
