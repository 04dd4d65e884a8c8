// ABOUTME: Incoming legacy records and the per-feed schemas that validate them
// ABOUTME: Decodes raw feed items into flat string records or per-record rejections
package sync

import (
	"embed"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Sync categories, also used as watermark keys and feed names.
const (
	CategoryCompanies          = "companies"
	CategoryContacts           = "contacts"
	CategoryPublications       = "publications"
	CategoryStaff              = "staff"
	CategoryTeamAssignments    = "team-assignments"
	CategoryOpportunities      = "opportunities"
	CategoryOpportunityUpdates = "opportunity-updates"
)

// Categories lists the inbound categories in run order.
var Categories = []string{
	CategoryCompanies,
	CategoryContacts,
	CategoryPublications,
	CategoryStaff,
	CategoryTeamAssignments,
	CategoryOpportunities,
}

// IsCategory reports whether name is an inbound category.
func IsCategory(name string) bool {
	for _, c := range Categories {
		if c == name {
			return true
		}
	}
	return false
}

//go:embed schemas/*.json
var schemaFiles embed.FS

var feedSchemas = mustCompileSchemas()

func mustCompileSchemas() map[string]*jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	schemas := make(map[string]*jsonschema.Schema, len(Categories))
	for _, category := range Categories {
		raw, err := schemaFiles.ReadFile("schemas/" + category + ".json")
		if err != nil {
			panic(fmt.Sprintf("missing schema for %s: %v", category, err))
		}
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
		if err != nil {
			panic(fmt.Sprintf("bad schema for %s: %v", category, err))
		}
		url := "https://schemas.crmsync.local/" + category + ".json"
		if err := compiler.AddResource(url, doc); err != nil {
			panic(fmt.Sprintf("add schema %s: %v", category, err))
		}
		sch, err := compiler.Compile(url)
		if err != nil {
			panic(fmt.Sprintf("compile schema %s: %v", category, err))
		}
		schemas[category] = sch
	}
	return schemas
}

// Record is one flat legacy record. Null values are absent; numbers and
// booleans keep their JSON text.
type Record map[string]string

// Get returns the trimmed value for key.
func (r Record) Get(key string) string {
	return strings.TrimSpace(r[key])
}

// Has reports whether key carries a non-blank value.
func (r Record) Has(key string) bool {
	return r.Get(key) != ""
}

// First returns the first non-blank value among keys.
func (r Record) First(keys ...string) string {
	for _, k := range keys {
		if v := r.Get(k); v != "" {
			return v
		}
	}
	return ""
}

// Truthy interprets a legacy flag: 1, true, yes, y and any non-zero number.
func (r Record) Truthy(key string) bool {
	v := strings.ToLower(r.Get(key))
	switch v {
	case "", "0", "false", "no", "n", "null":
		return false
	case "1", "true", "yes", "y":
		return true
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f != 0
	}
	return false
}

// Rejection is a record that failed validation at the feed boundary.
type Rejection struct {
	LegacyID string
	Name     string
	Err      error
}

// Batch is the outcome of one fetch.
type Batch struct {
	Category string
	Records  []Record
	Rejected []Rejection
}

// Len returns the number of items the feed delivered.
func (b *Batch) Len() int {
	return len(b.Records) + len(b.Rejected)
}

// ParseRecords validates raw feed items against the category schema.
func ParseRecords(category string, items []interface{}) (*Batch, error) {
	sch, ok := feedSchemas[category]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}

	batch := &Batch{Category: category, Records: make([]Record, 0, len(items))}
	for _, item := range items {
		obj, isObject := item.(map[string]interface{})
		if !isObject {
			batch.Rejected = append(batch.Rejected, Rejection{Err: fmt.Errorf("item is %T, not an object", item)})
			continue
		}
		rec := flatten(obj)
		if err := sch.Validate(obj); err != nil {
			batch.Rejected = append(batch.Rejected, Rejection{
				LegacyID: legacyIDOf(category, rec),
				Name:     displayName(rec),
				Err:      err,
			})
			continue
		}
		batch.Records = append(batch.Records, rec)
	}
	return batch, nil
}

func flatten(obj map[string]interface{}) Record {
	rec := make(Record, len(obj))
	for k, v := range obj {
		switch val := v.(type) {
		case nil:
		case string:
			rec[k] = val
		case json.Number:
			rec[k] = val.String()
		case bool:
			rec[k] = strconv.FormatBool(val)
		case float64:
			rec[k] = strconv.FormatFloat(val, 'f', -1, 64)
		default:
			b, _ := json.Marshal(val)
			rec[k] = string(b)
		}
	}
	return rec
}

// legacyIDOf returns the identifier a category's records carry.
func legacyIDOf(category string, r Record) string {
	switch category {
	case CategoryCompanies:
		return r.Get("legacyCompanyId")
	case CategoryTeamAssignments:
		if r.Has("staffId") || r.Has("publicationId") {
			return r.Get("staffId") + "/" + r.Get("publicationId")
		}
		return ""
	default:
		return r.Get("legacyId")
	}
}

func displayName(r Record) string {
	if n := r.Get("name"); n != "" {
		return n
	}
	return strings.TrimSpace(r.Get("firstName") + " " + r.Get("lastName"))
}
