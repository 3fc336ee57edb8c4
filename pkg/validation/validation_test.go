package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karbonuyum/platform/pkg/domain"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestCheckRecordAcceptsValidSubmission(t *testing.T) {
	issues := CheckRecord(domain.ActivityElectricity, 1500, "kWh", day("2024-01-01"), day("2024-01-31"))
	assert.Empty(t, issues)
}

func TestCheckRecordRejectsNonPositiveQuantity(t *testing.T) {
	issues := CheckRecord(domain.ActivityElectricity, -5, "kWh", day("2024-01-01"), day("2024-01-31"))
	require.Len(t, issues, 1)
	assert.Equal(t, CodeNonPositive, issues[0].Code)
	assert.Equal(t, "Miktar pozitif olmalıdır", issues[0].Message)
}

func TestCheckRecordRejectsUnknownActivityType(t *testing.T) {
	issues := CheckRecord("kerosene", 10, "l", day("2024-01-01"), day("2024-01-31"))
	require.Len(t, issues, 1)
	assert.Equal(t, CodeUnknownActivity, issues[0].Code)
}

func TestCheckRecordRejectsUnitMismatch(t *testing.T) {
	issues := CheckRecord(domain.ActivityNaturalGas, 100, "kWh", day("2024-01-01"), day("2024-01-31"))
	require.Len(t, issues, 1)
	assert.Equal(t, CodeUnitMismatch, issues[0].Code)
	assert.Equal(t, "unit", issues[0].Field)
}

func TestCheckRecordRejectsInvertedPeriod(t *testing.T) {
	issues := CheckRecord(domain.ActivityElectricity, 100, "kWh", day("2024-02-01"), day("2024-01-01"))
	require.Len(t, issues, 1)
	assert.Equal(t, CodeBadPeriod, issues[0].Code)
}

func TestCheckRecordCollectsMultipleIssues(t *testing.T) {
	issues := CheckRecord(domain.ActivityDieselFuel, 0, "kg", day("2024-02-01"), day("2024-01-01"))
	codes := make([]string, 0, len(issues))
	for _, i := range issues {
		codes = append(codes, i.Code)
	}
	assert.ElementsMatch(t, []string{CodeNonPositive, CodeUnitMismatch, CodeBadPeriod}, codes)
}

func TestCheckRecordRejectsFutureEndDate(t *testing.T) {
	start := time.Now().UTC().AddDate(0, 0, 1).Truncate(24 * time.Hour)
	end := start.AddDate(0, 0, 30)
	issues := CheckRecord(domain.ActivityElectricity, 100, "kWh", start, end)
	require.Len(t, issues, 1)
	assert.Equal(t, CodeFutureDate, issues[0].Code)
	assert.Equal(t, "end_date", issues[0].Field)
}

func TestCheckRecordAcceptsPeriodEndingToday(t *testing.T) {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	issues := CheckRecord(domain.ActivityElectricity, 100, "kWh", today.AddDate(0, 0, -30), today)
	assert.Empty(t, issues)
}

func TestUnitSpellingsAreCaseInsensitive(t *testing.T) {
	cases := []struct {
		at   domain.ActivityType
		unit string
	}{
		{domain.ActivityElectricity, "KWH"},
		{domain.ActivityElectricity, "MWh"},
		{domain.ActivityElectricity, "GJ"},
		{domain.ActivityElectricity, "Wh"},
		{domain.ActivityNaturalGas, "M3"},
		{domain.ActivityNaturalGas, "m³"},
		{domain.ActivityDieselFuel, "LT"},
		{domain.ActivityDieselFuel, "Liter"},
		{domain.ActivityDieselFuel, "gal"},
		{domain.ActivityDieselFuel, "bbl"},
	}
	for _, tc := range cases {
		issues := CheckRecord(tc.at, 1, tc.unit, day("2024-01-01"), day("2024-01-31"))
		assert.Empty(t, issues, "unit %q for %s", tc.unit, tc.at)
	}
}

func TestNormalizeConvertsToCanonicalUnits(t *testing.T) {
	cases := []struct {
		at       domain.ActivityType
		quantity float64
		unit     string
		want     float64
		wantUnit string
	}{
		{domain.ActivityElectricity, 2, "MWh", 2000, "kWh"},
		{domain.ActivityElectricity, 1, "GJ", 277.778, "kWh"},
		{domain.ActivityElectricity, 500, "Wh", 0.5, "kWh"},
		{domain.ActivityElectricity, 100, "kWh", 100, "kWh"},
		{domain.ActivityNaturalGas, 1000, "l", 1, "m3"},
		{domain.ActivityDieselFuel, 10, "gal", 37.8541, "litre"},
		{domain.ActivityDieselFuel, 1, "bbl", 158.987, "litre"},
	}
	for _, tc := range cases {
		got, unit := Normalize(tc.at, tc.quantity, tc.unit)
		assert.InDelta(t, tc.want, got, 1e-6, "quantity %v %s for %s", tc.quantity, tc.unit, tc.at)
		assert.Equal(t, tc.wantUnit, unit)
	}
}

func TestNormalizePassesUnknownUnitsThrough(t *testing.T) {
	got, unit := Normalize(domain.ActivityElectricity, 5, "bogus")
	assert.Equal(t, 5.0, got)
	assert.Equal(t, "bogus", unit)
}

func TestCheckShape(t *testing.T) {
	valid := map[string]any{
		"facility_id":   1.0,
		"activity_type": "electricity",
		"quantity":      1500.0,
		"unit":          "kWh",
		"start_date":    "2024-01-01",
		"end_date":      "2024-01-31",
	}
	assert.Empty(t, CheckShape(valid))

	missing := map[string]any{"facility_id": 1.0}
	issues := CheckShape(missing)
	require.Len(t, issues, 1)
	assert.Equal(t, CodeSchema, issues[0].Code)

	extra := map[string]any{
		"facility_id":   1.0,
		"activity_type": "electricity",
		"quantity":      1500.0,
		"unit":          "kWh",
		"start_date":    "2024-01-01",
		"end_date":      "2024-01-31",
		"co2e":          12.0,
	}
	assert.NotEmpty(t, CheckShape(extra))
}

func TestCheckUpdateShapeDoesNotRequireFacility(t *testing.T) {
	body := map[string]any{
		"activity_type": "electricity",
		"quantity":      1500.0,
		"unit":          "kWh",
		"start_date":    "2024-01-01",
		"end_date":      "2024-01-31",
	}
	assert.Empty(t, CheckUpdateShape(body))

	body["surprise"] = true
	issues := CheckUpdateShape(body)
	require.Len(t, issues, 1)
	assert.Equal(t, CodeSchema, issues[0].Code)
}

func TestCanonicalUnit(t *testing.T) {
	assert.Equal(t, "kWh", CanonicalUnit(domain.ActivityElectricity))
	assert.Equal(t, "m3", CanonicalUnit(domain.ActivityNaturalGas))
	assert.Equal(t, "litre", CanonicalUnit(domain.ActivityDieselFuel))
	assert.Equal(t, "", CanonicalUnit("kerosene"))
}
