package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ParameterProfile is an optional YAML file seeding suggestion-engine
// parameters for a deployment. Keys follow the city_factor_<city> naming
// convention; values override the built-in defaults.
type ParameterProfile struct {
	Name       string             `yaml:"name"`
	Parameters map[string]float64 `yaml:"parameters"`
}

// DefaultSuggestionParameters are the built-in suggestion-engine parameters
// used when the database has no override for a key.
func DefaultSuggestionParameters() map[string]float64 {
	return map[string]float64{
		"ges_annual_savings_factor":             0.9,
		"ges_kwh_generation_per_kwp_annual":     1350,
		"ges_estimated_cost_per_kwp":            25000.0,
		"ges_max_roi_years":                     10,
		"insulation_gas_savings_per_m2_annual":  8.0,
		"insulation_avg_cost_per_m2":            1500.0,
		"insulation_max_roi_years":              12,
		"city_factor_istanbul":                  1.0,
		"city_factor_ankara":                    1.15,
		"city_factor_izmir":                     0.9,
		"city_factor_antalya":                   0.75,
		"city_factor_erzurum":                   1.4,
	}
}

// LoadParameterProfile reads a YAML parameter profile and merges it over the
// defaults. A missing path returns the defaults unchanged.
func LoadParameterProfile(path string) (map[string]float64, error) {
	params := DefaultSuggestionParameters()
	if path == "" {
		return params, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read parameter profile: %w", err)
	}
	var profile ParameterProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("config: parse parameter profile: %w", err)
	}
	for k, v := range profile.Parameters {
		params[k] = v
	}
	return params, nil
}
