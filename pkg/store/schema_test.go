package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchemaDefinesFilterIndexes(t *testing.T) {
	required := []string{
		"idx_activity_simulation",
		"idx_activity_fallback",
		"idx_facilities_city",
		"idx_companies_industry",
		"idx_invoices_status",
		"idx_reports_status",
	}
	joined := strings.Join(schema, "\n")
	for _, name := range required {
		assert.Contains(t, joined, name)
	}
}
