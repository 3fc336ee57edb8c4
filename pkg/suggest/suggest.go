// Package suggest evaluates facility-level efficiency investments: solar
// generation and insulation. Every numeric assumption is a named parameter
// with a built-in default that deployments can override, including per-city
// climate factors keyed city_factor_<city>.
package suggest

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/karbonuyum/platform/pkg/config"
	"github.com/karbonuyum/platform/pkg/domain"
	"github.com/karbonuyum/platform/pkg/report"
	"github.com/karbonuyum/platform/pkg/store"
)

// Suggestion kinds.
const (
	KindSolar      = "ges"
	KindInsulation = "insulation"
	KindInfo       = "info"
)

// Info reason codes.
const (
	ReasonInsufficientData = "insufficient_data"
	ReasonLowConsumption   = "low_consumption"
)

// Suggestion is one recommendation for a facility. Info suggestions explain
// why a concrete recommendation is not possible yet.
type Suggestion struct {
	Kind               string             `json:"kind"`
	Title              string             `json:"title"`
	Detail             string             `json:"detail"`
	Reason             string             `json:"reason,omitempty"`
	RequiredKwp        float64            `json:"required_kwp,omitempty"`
	InvestmentTL       float64            `json:"investment_tl,omitempty"`
	AnnualSavingsTL    float64            `json:"annual_savings_tl,omitempty"`
	ROIYears           float64            `json:"roi_years,omitempty"`
	CalculationDetails map[string]float64 `json:"calculation_details,omitempty"`
}

const (
	solarMinMonths     = 9
	solarMinAnnualKwh  = 10000
	insulationMinMonth = 6
)

// Engine computes suggestions from consumption history and tuned parameters.
type Engine struct {
	facilities *store.FacilityStore
	activities *store.ActivityStore
	financials *store.FinancialsStore
	analytics  *store.AnalyticsStore
	defaults   map[string]float64
	log        *slog.Logger
}

func NewEngine(facilities *store.FacilityStore, activities *store.ActivityStore, financials *store.FinancialsStore, analytics *store.AnalyticsStore, defaults map[string]float64, log *slog.Logger) *Engine {
	if defaults == nil {
		defaults = config.DefaultSuggestionParameters()
	}
	return &Engine{
		facilities: facilities,
		activities: activities,
		financials: financials,
		analytics:  analytics,
		defaults:   defaults,
		log:        log,
	}
}

// ForFacility evaluates every suggestion for one facility over the trailing
// twelve months.
func (e *Engine) ForFacility(ctx context.Context, facilityID int64) ([]Suggestion, error) {
	facility, err := e.facilities.ByID(ctx, facilityID)
	if err != nil {
		return nil, err
	}
	params, err := e.parameters(ctx)
	if err != nil {
		return nil, err
	}

	to := time.Now().UTC()
	from := to.AddDate(-1, 0, 0)
	electricity, err := e.activities.MonthlyConsumption(ctx, facilityID, domain.ActivityElectricity, from, to)
	if err != nil {
		return nil, err
	}
	gas, err := e.activities.MonthlyConsumption(ctx, facilityID, domain.ActivityNaturalGas, from, to)
	if err != nil {
		return nil, err
	}

	costs := e.unitCosts(ctx, facility.CompanyID)

	var out []Suggestion
	if s := e.solar(facility, electricity, params, costs); s != nil {
		out = append(out, *s)
	}
	if s := e.insulation(facility, gas, params, costs); s != nil {
		out = append(out, *s)
	}
	return out, nil
}

// parameters merges database overrides on top of the profile defaults.
func (e *Engine) parameters(ctx context.Context) (map[string]float64, error) {
	overrides, err := e.analytics.Parameters(ctx)
	if err != nil {
		return nil, err
	}
	params := make(map[string]float64, len(e.defaults)+len(overrides))
	for k, v := range e.defaults {
		params[k] = v
	}
	for k, v := range overrides {
		params[k] = v
	}
	return params, nil
}

type unitCosts struct {
	ElectricityPerKwh float64
	GasPerM3          float64
}

func (e *Engine) unitCosts(ctx context.Context, companyID int64) unitCosts {
	costs := unitCosts{
		ElectricityPerKwh: report.DefaultElectricityCostKwh,
		GasPerM3:          report.DefaultGasCostM3,
	}
	fin, err := e.financials.Get(ctx, companyID)
	if err != nil {
		return costs
	}
	if fin.AvgElectricityCostKwh != nil && *fin.AvgElectricityCostKwh > 0 {
		costs.ElectricityPerKwh = *fin.AvgElectricityCostKwh
	}
	if fin.AvgGasCostM3 != nil && *fin.AvgGasCostM3 > 0 {
		costs.GasPerM3 = *fin.AvgGasCostM3
	}
	return costs
}

// cityFactor resolves city_factor_<city>; unknown cities get 1.0.
func cityFactor(params map[string]float64, city string) float64 {
	key := "city_factor_" + strings.ToLower(strings.TrimSpace(city))
	if v, ok := params[key]; ok && v > 0 {
		return v
	}
	return 1.0
}

// solar evaluates a rooftop generation investment for production and
// warehouse facilities, the only types with roof space to carry panels.
// Less than nine months of data or low annual consumption yields an info
// suggestion instead.
func (e *Engine) solar(f *domain.Facility, months []store.MonthlyTotal, params map[string]float64, costs unitCosts) *Suggestion {
	if f.FacilityType != domain.FacilityProduction && f.FacilityType != domain.FacilityWarehouse {
		return nil
	}
	if len(months) < solarMinMonths {
		return &Suggestion{
			Kind:   KindInfo,
			Title:  "Güneş paneli değerlendirmesi için veri yetersiz",
			Detail: fmt.Sprintf("En az %d ay elektrik verisi gerekli, mevcut %d ay.", solarMinMonths, len(months)),
			Reason: ReasonInsufficientData,
		}
	}

	var annualKwh float64
	for _, m := range months {
		annualKwh += m.Quantity
	}
	if annualKwh < solarMinAnnualKwh {
		return &Suggestion{
			Kind:   KindInfo,
			Title:  "Güneş paneli bu tüketim için ekonomik değil",
			Detail: fmt.Sprintf("Yıllık tüketim %.0f kWh, en az %d kWh gerekli.", annualKwh, solarMinAnnualKwh),
			Reason: ReasonLowConsumption,
		}
	}

	savingsFactor := params["ges_annual_savings_factor"]
	perKwp := params["ges_kwh_generation_per_kwp_annual"]
	costPerKwp := params["ges_estimated_cost_per_kwp"]
	maxROI := params["ges_max_roi_years"]
	factor := cityFactor(params, f.City)

	coveredKwh := annualKwh * savingsFactor
	requiredKwp := coveredKwh / (perKwp * factor)
	investment := requiredKwp * costPerKwp
	annualSavings := coveredKwh * costs.ElectricityPerKwh
	roiYears := investment / annualSavings

	if roiYears > maxROI {
		return &Suggestion{
			Kind:   KindInfo,
			Title:  "Güneş paneli geri dönüş süresi çok uzun",
			Detail: fmt.Sprintf("Tahmini geri dönüş %.1f yıl, sınır %.0f yıl.", roiYears, maxROI),
			Reason: ReasonLowConsumption,
		}
	}
	return &Suggestion{
		Kind:            KindSolar,
		Title:           "Güneş enerjisi sistemi kurulumu",
		Detail:          fmt.Sprintf("%.1f kWp kurulu güç yıllık tüketimin %%%.0f'ını karşılar.", requiredKwp, savingsFactor*100),
		RequiredKwp:     round1(requiredKwp),
		InvestmentTL:    round1(investment),
		AnnualSavingsTL: round1(annualSavings),
		ROIYears:        round1(roiYears),
		CalculationDetails: map[string]float64{
			"annual_consumption_kwh":    round1(annualKwh),
			"covered_kwh":               round1(coveredKwh),
			"generation_per_kwp_annual": round1(perKwp * factor),
			"cost_per_kwp_tl":           costPerKwp,
			"electricity_cost_per_kwh":  costs.ElectricityPerKwh,
			"city_factor":               factor,
		},
	}
}

// insulation evaluates wall and roof insulation for office facilities with a
// declared surface area and enough gas history. Other facilities get no
// suggestion at all, not an info entry.
func (e *Engine) insulation(f *domain.Facility, months []store.MonthlyTotal, params map[string]float64, costs unitCosts) *Suggestion {
	if f.FacilityType != domain.FacilityOffice || f.SurfaceAreaM2 == nil || *f.SurfaceAreaM2 <= 0 {
		return nil
	}
	if len(months) < insulationMinMonth {
		return &Suggestion{
			Kind:   KindInfo,
			Title:  "Yalıtım değerlendirmesi için veri yetersiz",
			Detail: fmt.Sprintf("En az %d ay doğalgaz verisi gerekli, mevcut %d ay.", insulationMinMonth, len(months)),
			Reason: ReasonInsufficientData,
		}
	}

	area := *f.SurfaceAreaM2
	savedM3 := area * params["insulation_gas_savings_per_m2_annual"] * cityFactor(params, f.City)
	investment := area * params["insulation_avg_cost_per_m2"]
	annualSavings := savedM3 * costs.GasPerM3
	roiYears := investment / annualSavings
	maxROI := params["insulation_max_roi_years"]

	if roiYears > maxROI {
		return &Suggestion{
			Kind:   KindInfo,
			Title:  "Yalıtım geri dönüş süresi çok uzun",
			Detail: fmt.Sprintf("Tahmini geri dönüş %.1f yıl, sınır %.0f yıl.", roiYears, maxROI),
			Reason: ReasonLowConsumption,
		}
	}
	return &Suggestion{
		Kind:            KindInsulation,
		Title:           "Yalıtım iyileştirmesi",
		Detail:          fmt.Sprintf("%.0f m2 yüzey için yıllık %.0f m3 doğalgaz tasarrufu.", area, savedM3),
		InvestmentTL:    round1(investment),
		AnnualSavingsTL: round1(annualSavings),
		ROIYears:        round1(roiYears),
		CalculationDetails: map[string]float64{
			"surface_area_m2":     area,
			"gas_saved_m3_annual": round1(savedM3),
			"cost_per_m2_tl":      params["insulation_avg_cost_per_m2"],
			"gas_cost_per_m3":     costs.GasPerM3,
			"city_factor":         cityFactor(params, f.City),
		},
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
