// Package validation checks activity submissions before anything is stored
// or published. JSON bodies are validated against an embedded schema; the
// semantic rules on top of the shape are shared with the CSV importer.
// Messages are written for the end user, in Turkish.
package validation

import (
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/karbonuyum/platform/pkg/domain"
)

// Issue is one rejected field with a stable machine code and a user-facing
// message.
type Issue struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s: %s", i.Field, i.Message)
}

// Issue codes.
const (
	CodeSchema          = "schema"
	CodeUnknownActivity = "unknown_activity_type"
	CodeNonPositive     = "non_positive_quantity"
	CodeUnitMismatch    = "unit_mismatch"
	CodeBadPeriod       = "invalid_period"
	CodeFutureDate      = "future_date"
)

const activitySchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["facility_id", "activity_type", "quantity", "unit", "start_date", "end_date"],
	"additionalProperties": false,
	"properties": {
		"facility_id":   {"type": "integer", "minimum": 1},
		"activity_type": {"type": "string"},
		"quantity":      {"type": "number"},
		"unit":          {"type": "string", "minLength": 1},
		"start_date":    {"type": "string", "format": "date"},
		"end_date":      {"type": "string", "format": "date"},
		"is_simulation": {"type": "boolean"}
	}
}`

// activityUpdateSchema is the same shape without facility_id: updates address
// an existing record, so the facility is fixed.
const activityUpdateSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["activity_type", "quantity", "unit", "start_date", "end_date"],
	"additionalProperties": false,
	"properties": {
		"facility_id":   {"type": "integer", "minimum": 1},
		"activity_type": {"type": "string"},
		"quantity":      {"type": "number"},
		"unit":          {"type": "string", "minLength": 1},
		"start_date":    {"type": "string", "format": "date"},
		"end_date":      {"type": "string", "format": "date"},
		"is_simulation": {"type": "boolean"}
	}
}`

var (
	compiledActivitySchema       = mustCompile("activity.json", activitySchema)
	compiledActivityUpdateSchema = mustCompile("activity_update.json", activityUpdateSchema)
)

func mustCompile(name, schema string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.AssertFormat = true
	if err := c.AddResource(name, strings.NewReader(schema)); err != nil {
		panic(err)
	}
	return c.MustCompile(name)
}

// CheckShape validates a decoded JSON body against the activity schema.
// Unknown keys are rejected, not ignored.
func CheckShape(doc any) []Issue {
	if err := compiledActivitySchema.Validate(doc); err != nil {
		return []Issue{{Code: CodeSchema, Field: "body", Message: err.Error()}}
	}
	return nil
}

// CheckUpdateShape validates an update body, where facility_id is optional.
func CheckUpdateShape(doc any) []Issue {
	if err := compiledActivityUpdateSchema.Validate(doc); err != nil {
		return []Issue{{Code: CodeSchema, Field: "body", Message: err.Error()}}
	}
	return nil
}

// unitFactors maps each activity kind's accepted unit spellings, compared
// case-insensitively, to the factor that converts a quantity to the canonical
// unit: kWh for energy, m3 for natural gas, litres for diesel.
var unitFactors = map[domain.ActivityType]map[string]float64{
	domain.ActivityElectricity: {
		"kwh": 1, "mwh": 1000, "gj": 277.778, "wh": 0.001,
	},
	domain.ActivityNaturalGas: {
		"m3": 1, "m³": 1, "l": 0.001, "lt": 0.001, "litre": 0.001, "liter": 0.001,
		"gal": 0.00378541, "bbl": 0.158987,
	},
	domain.ActivityDieselFuel: {
		"litre": 1, "liter": 1, "l": 1, "lt": 1,
		"gal": 3.78541, "bbl": 158.987, "m3": 1000, "m³": 1000,
	},
}

// CheckRecord applies the semantic rules shared by the JSON and CSV paths.
func CheckRecord(at domain.ActivityType, quantity float64, unit string, start, end time.Time) []Issue {
	var issues []Issue

	if !at.Valid() {
		issues = append(issues, Issue{
			Code:    CodeUnknownActivity,
			Field:   "activity_type",
			Message: fmt.Sprintf("Bilinmeyen aktivite tipi: %s", at),
		})
	}
	if quantity <= 0 {
		issues = append(issues, Issue{
			Code:    CodeNonPositive,
			Field:   "quantity",
			Message: "Miktar pozitif olmalıdır",
		})
	}
	if at.Valid() && !unitAllowed(at, unit) {
		issues = append(issues, Issue{
			Code:    CodeUnitMismatch,
			Field:   "unit",
			Message: fmt.Sprintf("Birim %q aktivite tipi %s ile uyumsuz", unit, at),
		})
	}
	if end.Before(start) {
		issues = append(issues, Issue{
			Code:    CodeBadPeriod,
			Field:   "start_date",
			Message: "Başlangıç tarihi bitiş tarihinden sonra olamaz",
		})
	}
	if today := time.Now().UTC().Truncate(24 * time.Hour); end.After(today) {
		issues = append(issues, Issue{
			Code:    CodeFutureDate,
			Field:   "end_date",
			Message: "Bitiş tarihi bugünden ileri olamaz",
		})
	}
	return issues
}

func unitAllowed(at domain.ActivityType, unit string) bool {
	u := strings.ToLower(strings.TrimSpace(unit))
	_, ok := unitFactors[at][u]
	return ok
}

// Normalize converts an accepted quantity and unit to the canonical unit for
// the activity kind. Unknown units pass through unchanged; CheckRecord has
// already rejected them.
func Normalize(at domain.ActivityType, quantity float64, unit string) (float64, string) {
	u := strings.ToLower(strings.TrimSpace(unit))
	factor, ok := unitFactors[at][u]
	if !ok {
		return quantity, unit
	}
	return quantity * factor, CanonicalUnit(at)
}

// CanonicalUnit returns the stored spelling for an activity kind.
func CanonicalUnit(at domain.ActivityType) string {
	switch at {
	case domain.ActivityElectricity:
		return "kWh"
	case domain.ActivityNaturalGas:
		return "m3"
	case domain.ActivityDieselFuel:
		return "litre"
	}
	return ""
}
