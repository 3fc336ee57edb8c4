// Package ingest turns user submissions into stored activity records and
// calculation events. The CSV importer commits valid rows and reports the
// rest; one bad row never blocks the file.
package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/karbonuyum/platform/pkg/domain"
	"github.com/karbonuyum/platform/pkg/validation"
)

// Expected CSV header, in order.
var csvHeader = []string{"aktivite_tipi", "miktar", "birim", "baslangic_tarihi", "bitis_tarihi"}

// activitySynonyms maps the Turkish spellings users actually type to the
// canonical activity kinds.
var activitySynonyms = map[string]domain.ActivityType{
	"elektrik":    domain.ActivityElectricity,
	"electricity": domain.ActivityElectricity,
	"dogalgaz":    domain.ActivityNaturalGas,
	"doğalgaz":    domain.ActivityNaturalGas,
	"natural_gas": domain.ActivityNaturalGas,
	"dizel":       domain.ActivityDieselFuel,
	"motorin":     domain.ActivityDieselFuel,
	"diesel_fuel": domain.ActivityDieselFuel,
}

// RowError is one rejected CSV row. Row numbers are 1-based and count the
// header.
type RowError struct {
	Row    int                `json:"row"`
	Issues []validation.Issue `json:"issues"`
}

// CSVResult summarizes a partial-success import.
type CSVResult struct {
	TotalRows      int        `json:"total_rows"`
	SuccessfulRows int        `json:"successful_rows"`
	FailedRows     int        `json:"failed_rows"`
	Errors         []RowError `json:"errors,omitempty"`
}

// ParsedRow is one valid CSV row ready to store.
type ParsedRow struct {
	ActivityType domain.ActivityType
	Quantity     float64
	Unit         string
	StartDate    time.Time
	EndDate      time.Time
}

// ParseCSV reads the whole file, strips a UTF-8 BOM if present, checks the
// header and validates every row. Valid rows and per-row errors come back
// together; the caller stores the former and reports the latter.
func ParseCSV(r io.Reader) ([]ParsedRow, []RowError, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("ingest: read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("ingest: csv dosyası boş veya okunamıyor: %w", err)
	}
	if !headerMatches(header) {
		return nil, nil, fmt.Errorf("ingest: beklenen sütunlar: %s", strings.Join(csvHeader, ","))
	}

	var (
		rows    []ParsedRow
		rowErrs []RowError
		rowNum  = 1
	)
	for {
		rowNum++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			rowErrs = append(rowErrs, RowError{Row: rowNum, Issues: []validation.Issue{{
				Code: validation.CodeSchema, Field: "row",
				Message: fmt.Sprintf("Satır okunamadı: %v", err),
			}}})
			continue
		}
		parsed, issues := parseRow(record)
		if len(issues) > 0 {
			rowErrs = append(rowErrs, RowError{Row: rowNum, Issues: issues})
			continue
		}
		rows = append(rows, parsed)
	}
	return rows, rowErrs, nil
}

func headerMatches(header []string) bool {
	if len(header) != len(csvHeader) {
		return false
	}
	for i, h := range header {
		if strings.ToLower(strings.TrimSpace(h)) != csvHeader[i] {
			return false
		}
	}
	return true
}

func parseRow(record []string) (ParsedRow, []validation.Issue) {
	var issues []validation.Issue

	if len(record) != len(csvHeader) {
		return ParsedRow{}, []validation.Issue{{
			Code: validation.CodeSchema, Field: "row",
			Message: fmt.Sprintf("Beklenen %d sütun, bulunan %d", len(csvHeader), len(record)),
		}}
	}

	at, ok := activitySynonyms[strings.ToLower(strings.TrimSpace(record[0]))]
	if !ok {
		issues = append(issues, validation.Issue{
			Code: validation.CodeUnknownActivity, Field: "aktivite_tipi",
			Message: fmt.Sprintf("Bilinmeyen aktivite tipi: %s", strings.TrimSpace(record[0])),
		})
	}

	quantity, err := ParseDecimal(record[1])
	if err != nil {
		issues = append(issues, validation.Issue{
			Code: validation.CodeSchema, Field: "miktar",
			Message: fmt.Sprintf("Miktar sayı olmalıdır: %s", strings.TrimSpace(record[1])),
		})
	}

	start, err := parseDate(record[3])
	if err != nil {
		issues = append(issues, validation.Issue{
			Code: validation.CodeBadPeriod, Field: "baslangic_tarihi",
			Message: fmt.Sprintf("Geçersiz tarih: %s", strings.TrimSpace(record[3])),
		})
	}
	end, err := parseDate(record[4])
	if err != nil {
		issues = append(issues, validation.Issue{
			Code: validation.CodeBadPeriod, Field: "bitis_tarihi",
			Message: fmt.Sprintf("Geçersiz tarih: %s", strings.TrimSpace(record[4])),
		})
	}
	if len(issues) > 0 {
		return ParsedRow{}, issues
	}

	unit := strings.TrimSpace(record[2])
	if issues = validation.CheckRecord(at, quantity, unit, start, end); len(issues) > 0 {
		return ParsedRow{}, issues
	}
	quantity, unit = validation.Normalize(at, quantity, unit)
	return ParsedRow{
		ActivityType: at,
		Quantity:     quantity,
		Unit:         unit,
		StartDate:    start,
		EndDate:      end,
	}, nil
}

// CSVTemplate returns a downloadable starter file with the expected header
// and a sample row per activity kind.
func CSVTemplate() []byte {
	var b bytes.Buffer
	b.WriteString(strings.Join(csvHeader, ",") + "\n")
	b.WriteString("elektrik,1250,kWh,2025-01-01,2025-01-31\n")
	b.WriteString("dogalgaz,340,m3,2025-01-01,2025-01-31\n")
	b.WriteString("dizel,180,litre,2025-01-01,2025-01-31\n")
	return b.Bytes()
}

// ParseDecimal accepts both "1234.5" and the Turkish "1.234,5" spelling.
func ParseDecimal(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	return strconv.ParseFloat(s, 64)
}

var dateLayouts = []string{"2006-01-02", "02.01.2006", "02/01/2006"}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("ingest: unparseable date %q", s)
}
