// Package report generates the asynchronous artifacts: regulatory XML
// exports and investment analyses. Builders are pure; the worker wires them
// to storage and notifications.
package report

import (
	"math"
	"sort"
)

// Default unit costs in TL, used when the company has not declared its own.
const (
	DefaultElectricityCostKwh = 4.5
	DefaultGasCostM3          = 15.0
	DefaultDieselCostL        = 35.0
)

const (
	discountRate        = 0.15
	horizonYears        = 5
	paybackCutoffMonths = 999.0
)

// Energy content per unit, for expressing fuel savings in kWh terms.
const (
	gasKwhPerM3   = 10.64
	dieselKwhPerL = 10.0
)

// Emission factors in kgCO2e per unit, matching the internal calculation
// table.
const (
	co2KgPerKwh     = 0.475
	co2KgPerM3Gas   = 2.03
	co2KgPerLDiesel = 2.68
)

// basis selects what a measure's savings and sizing are computed from.
type basis int

const (
	basisElectricity basis = iota
	basisGas
	basisDiesel
	basisFixed
)

// measure is one efficiency investment the analysis evaluates.
type measure struct {
	Code       string
	Name       string
	SavingsPct float64
	Basis      basis
	// UnitCost prices one sizing unit (kW, m2, kWp); FixedCost replaces it
	// for site-wide measures.
	UnitCost  float64
	FixedCost float64
}

var measures = []measure{
	{Code: "lighting_upgrade", Name: "LED aydınlatma dönüşümü", SavingsPct: 0.30, Basis: basisElectricity, UnitCost: 500},
	{Code: "hvac_optimization", Name: "HVAC optimizasyonu", SavingsPct: 0.25, Basis: basisElectricity, UnitCost: 1200},
	{Code: "insulation_improvement", Name: "Yalıtım iyileştirmesi", SavingsPct: 0.20, Basis: basisGas, UnitCost: 150},
	{Code: "solar_panel", Name: "Güneş paneli kurulumu", SavingsPct: 0.40, Basis: basisElectricity, UnitCost: 8000},
	{Code: "fleet_route_optimization", Name: "Filo rota optimizasyonu", SavingsPct: 0.15, Basis: basisDiesel, FixedCost: 60000},
	{Code: "energy_management", Name: "Enerji yönetim sistemi", SavingsPct: 0.15, Basis: basisFixed, FixedCost: 50000},
	{Code: "process_optimization", Name: "Proses optimizasyonu", SavingsPct: 0.18, Basis: basisFixed, FixedCost: 100000},
}

// ROIInput is a company's consumption and cost profile for the analysis.
type ROIInput struct {
	AnnualElectricityKwh  float64
	AnnualGasM3           float64
	AnnualDieselL         float64
	SurfaceAreaM2         float64
	ElectricityCostPerKwh float64
	GasCostPerM3          float64
	DieselCostPerL        float64
}

// ROIItem is one evaluated measure.
type ROIItem struct {
	Code               string  `json:"code"`
	Name               string  `json:"name"`
	InvestmentTL       float64 `json:"investment_tl"`
	AnnualSavingsTL    float64 `json:"annual_savings_tl"`
	AnnualSavingsKwh   float64 `json:"annual_savings_kwh"`
	CO2ReductionTonnes float64 `json:"co2_reduction_tonnes_per_year"`
	PaybackMonths      float64 `json:"payback_months"`
	NPV                float64 `json:"npv_tl"`
	IRRPercent         float64 `json:"irr_percent"`
}

// ROIAnalysis is the ranked result.
type ROIAnalysis struct {
	Items                []ROIItem `json:"items"`
	TotalInvestmentTL    float64   `json:"total_investment_tl"`
	TotalSavingsTL       float64   `json:"total_annual_savings_tl"`
	AveragePaybackMonths float64   `json:"average_payback_months"`
}

// AnalyzeROI evaluates every measure against the profile and returns the top
// three by payback, faster first; ties go to the larger saving. Measures
// whose payback exceeds the cutoff are dropped.
func AnalyzeROI(in ROIInput) ROIAnalysis {
	if in.ElectricityCostPerKwh <= 0 {
		in.ElectricityCostPerKwh = DefaultElectricityCostKwh
	}
	if in.GasCostPerM3 <= 0 {
		in.GasCostPerM3 = DefaultGasCostM3
	}
	if in.DieselCostPerL <= 0 {
		in.DieselCostPerL = DefaultDieselCostL
	}

	var items []ROIItem
	for _, m := range measures {
		item, ok := evaluate(m, in)
		if !ok {
			continue
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].PaybackMonths != items[j].PaybackMonths {
			return items[i].PaybackMonths < items[j].PaybackMonths
		}
		return items[i].AnnualSavingsTL > items[j].AnnualSavingsTL
	})
	if len(items) > 3 {
		items = items[:3]
	}

	var totalSavings, totalInvestment, paybackSum float64
	for _, it := range items {
		totalSavings += it.AnnualSavingsTL
		totalInvestment += it.InvestmentTL
		paybackSum += it.PaybackMonths
	}
	avgPayback := 0.0
	if len(items) > 0 {
		avgPayback = round2(paybackSum / float64(len(items)))
	}
	return ROIAnalysis{
		Items:                items,
		TotalInvestmentTL:    round2(totalInvestment),
		TotalSavingsTL:       round2(totalSavings),
		AveragePaybackMonths: avgPayback,
	}
}

func evaluate(m measure, in ROIInput) (ROIItem, bool) {
	var savings, savedKwh, co2Kg, investment float64
	switch m.Basis {
	case basisElectricity:
		if in.AnnualElectricityKwh <= 0 {
			return ROIItem{}, false
		}
		kwh := in.AnnualElectricityKwh * m.SavingsPct
		savings = kwh * in.ElectricityCostPerKwh
		savedKwh = kwh
		co2Kg = kwh * co2KgPerKwh
		investment = m.UnitCost * sizingUnits(m, in)
	case basisGas:
		if in.AnnualGasM3 <= 0 || in.SurfaceAreaM2 <= 0 {
			return ROIItem{}, false
		}
		m3 := in.AnnualGasM3 * m.SavingsPct
		savings = m3 * in.GasCostPerM3
		savedKwh = m3 * gasKwhPerM3
		co2Kg = m3 * co2KgPerM3Gas
		investment = m.UnitCost * in.SurfaceAreaM2
	case basisDiesel:
		if in.AnnualDieselL <= 0 {
			return ROIItem{}, false
		}
		litres := in.AnnualDieselL * m.SavingsPct
		savings = litres * in.DieselCostPerL
		savedKwh = litres * dieselKwhPerL
		co2Kg = litres * co2KgPerLDiesel
		investment = m.FixedCost
	case basisFixed:
		if in.AnnualElectricityKwh <= 0 {
			return ROIItem{}, false
		}
		kwh := in.AnnualElectricityKwh * m.SavingsPct
		m3 := in.AnnualGasM3 * m.SavingsPct
		litres := in.AnnualDieselL * m.SavingsPct
		savings = kwh*in.ElectricityCostPerKwh + m3*in.GasCostPerM3 + litres*in.DieselCostPerL
		savedKwh = kwh + m3*gasKwhPerM3 + litres*dieselKwhPerL
		co2Kg = kwh*co2KgPerKwh + m3*co2KgPerM3Gas + litres*co2KgPerLDiesel
		investment = m.FixedCost
	}
	if savings <= 0 || investment <= 0 {
		return ROIItem{}, false
	}

	paybackMonths := investment / savings * 12
	if paybackMonths > paybackCutoffMonths {
		return ROIItem{}, false
	}
	return ROIItem{
		Code:               m.Code,
		Name:               m.Name,
		InvestmentTL:       round2(investment),
		AnnualSavingsTL:    round2(savings),
		AnnualSavingsKwh:   round2(savedKwh),
		CO2ReductionTonnes: round2(co2Kg / 1000),
		PaybackMonths:      round2(paybackMonths),
		NPV:                round2(npv(investment, savings)),
		IRRPercent:         round2(irr(investment, savings) * 100),
	}, true
}

// sizingUnits estimates the installed size a unit-priced measure must cover.
// Electrical measures size by average load at 2500 operating hours a year;
// solar sizes by the generation needed to cover the saved share at 1350
// kWh per kWp.
func sizingUnits(m measure, in ROIInput) float64 {
	if m.Code == "solar_panel" {
		return in.AnnualElectricityKwh * m.SavingsPct / 1350
	}
	return in.AnnualElectricityKwh / 2500
}

// npv discounts the savings stream at 15% over five years.
func npv(investment, annualSavings float64) float64 {
	return npvAt(investment, annualSavings, discountRate)
}

func npvAt(investment, annualSavings, rate float64) float64 {
	v := -investment
	for t := 1; t <= horizonYears; t++ {
		v += annualSavings / math.Pow(1+rate, float64(t))
	}
	return v
}

// irr finds the discount rate that zeroes the NPV over the horizon, by
// bisection. Capped at 1000% a year for measures that pay back within months.
func irr(investment, annualSavings float64) float64 {
	lo, hi := 0.0, 10.0
	if npvAt(investment, annualSavings, lo) <= 0 {
		return 0
	}
	if npvAt(investment, annualSavings, hi) >= 0 {
		return hi
	}
	for i := 0; i < 60; i++ {
		mid := (lo + hi) / 2
		if npvAt(investment, annualSavings, mid) > 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
