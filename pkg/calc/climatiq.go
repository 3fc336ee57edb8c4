package calc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/karbonuyum/platform/pkg/domain"
)

// activityMapping selects the Climatiq activity id and parameter shape for
// one activity kind.
type activityMapping struct {
	ActivityID  string
	DataVersion string
	ParamKind   string // "energy" or "volume"
	ParamUnit   string
}

var climatiqMappings = map[domain.ActivityType]activityMapping{
	domain.ActivityElectricity: {
		ActivityID:  "electricity-supply_grid-source_supplier_mix",
		DataVersion: "^26",
		ParamKind:   "energy",
		ParamUnit:   "kWh",
	},
	domain.ActivityNaturalGas: {
		ActivityID:  "fuel-type_natural_gas-fuel_use_stationary",
		DataVersion: "^1",
		ParamKind:   "volume",
		ParamUnit:   "m3",
	},
	domain.ActivityDieselFuel: {
		ActivityID:  "fuel-type_diesel_oil-fuel_use_stationary_combustion",
		DataVersion: "^14",
		ParamKind:   "volume",
		ParamUnit:   "l",
	},
}

// Climatiq calls the Climatiq estimate endpoint with region-pinned emission
// factors for Turkey.
type Climatiq struct {
	apiKey string
	url    string
	client *http.Client
}

func NewClimatiq(apiKey, url string) *Climatiq {
	return &Climatiq{
		apiKey: apiKey,
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Climatiq) Name() string { return "climatiq" }

// Configured reports whether an API key is present. Without one every
// calculation goes straight to the fallback table.
func (c *Climatiq) Configured() bool { return c.apiKey != "" }

type climatiqRequest struct {
	EmissionFactor climatiqFactor `json:"emission_factor"`
	Parameters     map[string]any `json:"parameters"`
}

type climatiqFactor struct {
	ActivityID  string `json:"activity_id"`
	DataVersion string `json:"data_version"`
	Region      string `json:"region"`
}

type climatiqResponse struct {
	CO2e     float64 `json:"co2e"`
	CO2eUnit string  `json:"co2e_unit"`
}

func (c *Climatiq) Estimate(ctx context.Context, req Request) (Result, error) {
	mapping, ok := climatiqMappings[req.ActivityType]
	if !ok {
		return Result{}, fmt.Errorf("calc: no mapping for activity type %q", req.ActivityType)
	}

	params := map[string]any{
		mapping.ParamKind:           req.Quantity,
		mapping.ParamKind + "_unit": mapping.ParamUnit,
	}
	body, err := json.Marshal(climatiqRequest{
		EmissionFactor: climatiqFactor{
			ActivityID:  mapping.ActivityID,
			DataVersion: mapping.DataVersion,
			Region:      "TR",
		},
		Parameters: params,
	})
	if err != nil {
		return Result{}, fmt.Errorf("calc: marshal estimate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("calc: build estimate request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUpstreamUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, &StatusError{Status: resp.StatusCode, Snippet: string(snippet)}
	}

	var out climatiqResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("calc: decode estimate response: %w", err)
	}

	co2eKg := out.CO2e
	if out.CO2eUnit == "t" {
		co2eKg *= 1000
	}
	return Result{CO2eKg: co2eKg, Source: c.Name()}, nil
}
