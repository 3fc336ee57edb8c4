package report

import (
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karbonuyum/platform/pkg/domain"
)

func ptr(v float64) *float64 { return &v }

func TestBuildCBAM(t *testing.T) {
	tax := "1234567890"
	company := &domain.Company{Name: "Demir Çelik A.Ş.", TaxNumber: &tax}
	facilities := []domain.Facility{
		{ID: 7, Name: "Gebze Tesisi", City: "Kocaeli"},
	}
	records := []domain.ActivityData{
		{FacilityID: 7, ActivityType: domain.ActivityElectricity, Quantity: 1000, Unit: "kWh", CalculatedCO2eKg: ptr(475)},
		{FacilityID: 7, ActivityType: domain.ActivityNaturalGas, Quantity: 2000, Unit: "m3", CalculatedCO2eKg: ptr(4060)},
	}

	out, err := BuildCBAM(company, "sahip@demircelik.com.tr", facilities, records,
		"task-abc123", "2024-Q1", time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Contains(t, string(out), xml.Header)
	assert.Contains(t, string(out), "<ImportedGoods>")

	var rep CBAMReport
	require.NoError(t, xml.Unmarshal(out, &rep))

	assert.Equal(t, "urn:eu:cbam:report:v1", rep.Namespace)
	assert.Equal(t, "task-abc123", rep.Header.ReportID)
	assert.Equal(t, "QUARTERLY", rep.Header.ReportType)
	assert.Equal(t, "2024-Q1", rep.Header.ReportingPeriod)
	assert.Equal(t, "2024-04-01", rep.Header.SubmissionDate)
	assert.Equal(t, "Demir Çelik A.Ş.", rep.Declarant.Name)
	assert.Equal(t, tax, rep.Declarant.TaxNumber)
	assert.Equal(t, "TR", rep.Declarant.Country)
	assert.Equal(t, "sahip@demircelik.com.tr", rep.Declarant.ContactEmail)
	assert.Equal(t, "PENDING", rep.Verification.Status)

	require.Len(t, rep.Installations, 1)
	inst := rep.Installations[0]
	assert.Equal(t, "Kocaeli", inst.City)

	// Purchased electricity is indirect, reported in MWh, and carries the
	// stored calculation: 1000 kWh at 475 kg is 0.475 t, not the 0.42
	// transitional default.
	require.Len(t, inst.Indirect.Lines, 1)
	elec := inst.Indirect.Lines[0]
	assert.Equal(t, "electricity", elec.Source)
	assert.InDelta(t, 1, elec.Quantity, 1e-9)
	assert.Equal(t, "MWh", elec.Unit)
	assert.InDelta(t, 0.475, elec.EmissionsTCO2e, 1e-9)
	assert.InDelta(t, 0.475, elec.EmissionFactor, 1e-9)
	assert.InDelta(t, 0.475, inst.Indirect.TotalTCO2e, 1e-9)

	require.Len(t, inst.Direct.Lines, 1)
	gas := inst.Direct.Lines[0]
	assert.Equal(t, "natural_gas", gas.Source)
	assert.InDelta(t, 2000, gas.Quantity, 1e-9)
	assert.Equal(t, "m3", gas.Unit)
	assert.InDelta(t, 4.06, gas.EmissionsTCO2e, 1e-9)
	assert.InDelta(t, 4.06, inst.Direct.TotalTCO2e, 1e-9)

	assert.InDelta(t, 4.06, rep.Summary.Scope1TCO2e, 1e-9)
	assert.InDelta(t, 0.475, rep.Summary.Scope2TCO2e, 1e-9)
	assert.InDelta(t, 4.535, rep.Summary.TotalEmissionsTCO2e, 1e-9)
	assert.Equal(t, 2, rep.Summary.RecordCount)
}

func TestBuildCBAMSkipsUncalculatedRecords(t *testing.T) {
	company := &domain.Company{Name: "Test"}
	facilities := []domain.Facility{{ID: 1, Name: "Depo", City: "Ankara"}}
	records := []domain.ActivityData{
		{FacilityID: 1, ActivityType: domain.ActivityElectricity, Quantity: 100, Unit: "kWh"},
		{FacilityID: 1, ActivityType: "kerosene", Quantity: 100, Unit: "l", CalculatedCO2eKg: ptr(50)},
	}
	out, err := BuildCBAM(company, "", facilities, records, "task-1", "2024-Q2", time.Now())
	require.NoError(t, err)

	var rep CBAMReport
	require.NoError(t, xml.Unmarshal(out, &rep))
	require.Len(t, rep.Installations, 1)
	assert.Empty(t, rep.Installations[0].Direct.Lines)
	assert.Empty(t, rep.Installations[0].Indirect.Lines)
	assert.Zero(t, rep.Summary.TotalEmissionsTCO2e)
	assert.Zero(t, rep.Summary.RecordCount)
}

func TestBuildCBAMAggregatesPerFacility(t *testing.T) {
	company := &domain.Company{Name: "Test"}
	facilities := []domain.Facility{
		{ID: 1, Name: "Fabrika", City: "Bursa"},
		{ID: 2, Name: "Depo", City: "İzmir"},
	}
	records := []domain.ActivityData{
		{FacilityID: 1, ActivityType: domain.ActivityDieselFuel, Quantity: 100, Unit: "litre", CalculatedCO2eKg: ptr(268)},
		{FacilityID: 1, ActivityType: domain.ActivityDieselFuel, Quantity: 50, Unit: "litre", CalculatedCO2eKg: ptr(134)},
		{FacilityID: 2, ActivityType: domain.ActivityElectricity, Quantity: 2000, Unit: "kWh", CalculatedCO2eKg: ptr(950)},
	}
	out, err := BuildCBAM(company, "", facilities, records, "task-2", "2024-Q3", time.Now())
	require.NoError(t, err)

	var rep CBAMReport
	require.NoError(t, xml.Unmarshal(out, &rep))
	require.Len(t, rep.Installations, 2)

	require.Len(t, rep.Installations[0].Direct.Lines, 1)
	diesel := rep.Installations[0].Direct.Lines[0]
	assert.InDelta(t, 150, diesel.Quantity, 1e-9)
	assert.InDelta(t, 0.402, diesel.EmissionsTCO2e, 1e-9)

	require.Len(t, rep.Installations[1].Indirect.Lines, 1)
	assert.InDelta(t, 0.95, rep.Installations[1].Indirect.Lines[0].EmissionsTCO2e, 1e-9)

	assert.Equal(t, 3, rep.Summary.RecordCount)
	assert.InDelta(t, 1.352, rep.Summary.TotalEmissionsTCO2e, 1e-9)
}

func TestBuildCombinedBundlesBothArtifacts(t *testing.T) {
	xmlData := []byte(xml.Header + "<CBAMReport></CBAMReport>")
	analysis := AnalyzeROI(ROIInput{AnnualElectricityKwh: 50000})

	out, err := BuildCombined("2024-Q1", xmlData, analysis, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	s := string(out)
	assert.Contains(t, s, `"period": "2024-Q1"`)
	assert.Contains(t, s, `"cbam_xml"`)
	assert.Contains(t, s, `"roi_analysis"`)
	assert.True(t, strings.Contains(s, "CBAMReport"))
}

func TestQuarterName(t *testing.T) {
	assert.Equal(t, "2024-Q1", domain.QuarterName(time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2024-Q4", domain.QuarterName(time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)))
}
