package report

import (
	"encoding/json"
	"fmt"
	"time"
)

// CombinedReport bundles the quarterly CBAM export with the investment
// analysis in one download. The XML ships embedded as a string so the file
// stays a single JSON document.
type CombinedReport struct {
	GeneratedAt string      `json:"generated_at"`
	Period      string      `json:"period"`
	CBAMXML     string      `json:"cbam_xml"`
	ROIAnalysis ROIAnalysis `json:"roi_analysis"`
}

func BuildCombined(periodName string, cbamXML []byte, analysis ROIAnalysis, now time.Time) ([]byte, error) {
	out, err := json.MarshalIndent(CombinedReport{
		GeneratedAt: now.UTC().Format(time.RFC3339),
		Period:      periodName,
		CBAMXML:     string(cbamXML),
		ROIAnalysis: analysis,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("report: marshal combined report: %w", err)
	}
	return out, nil
}
