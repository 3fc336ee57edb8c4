package ocr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karbonuyum/platform/pkg/domain"
)

func TestParseFullyRecognizedBill(t *testing.T) {
	text := `BEDAŞ Elektrik Faturası
Dönem: 01.01.2024 - 31.01.2024
Tüketim: 1.234,5 kWh
Ödenecek Tutar: 2.150,75 TL`

	ext := Parse(text)
	require.NotNil(t, ext.ActivityType)
	assert.Equal(t, domain.ActivityElectricity, *ext.ActivityType)
	require.NotNil(t, ext.Quantity)
	assert.InDelta(t, 1234.5, *ext.Quantity, 1e-9)
	require.NotNil(t, ext.CostTL)
	assert.InDelta(t, 2150.75, *ext.CostTL, 1e-9)
	require.NotNil(t, ext.StartDate)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *ext.StartDate)
	require.NotNil(t, ext.EndDate)
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), *ext.EndDate)

	assert.InDelta(t, 0.9, ext.Confidence, 1e-9)
	assert.False(t, ext.Uncertain())
}

func TestParseSingleDateCompletesBillingMonth(t *testing.T) {
	text := "Doğalgaz faturası 15.02.2024 tüketim 320 m3"
	ext := Parse(text)
	require.NotNil(t, ext.ActivityType)
	assert.Equal(t, domain.ActivityNaturalGas, *ext.ActivityType)
	require.NotNil(t, ext.StartDate)
	require.NotNil(t, ext.EndDate)
	assert.Equal(t, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC), *ext.StartDate)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), *ext.EndDate)
}

func TestParseSparseTextIsUncertain(t *testing.T) {
	ext := Parse("elektrik aboneligi bilgilendirme")
	require.NotNil(t, ext.ActivityType)
	assert.InDelta(t, 0.3, ext.Confidence, 1e-9)
	assert.True(t, ext.Uncertain())

	empty := Parse("tamamen alakasiz bir metin")
	assert.Nil(t, empty.ActivityType)
	assert.Zero(t, empty.Confidence)
	assert.True(t, empty.Uncertain())
}

func TestParseKeywordPrecedence(t *testing.T) {
	// kWh marks the bill as electricity even when fuel words appear later.
	ext := Parse("Tüketim 500 kWh, araç motorin gideri ayrıca faturalandırılır")
	require.NotNil(t, ext.ActivityType)
	assert.Equal(t, domain.ActivityElectricity, *ext.ActivityType)
}

func TestParseIgnoresImpossibleDates(t *testing.T) {
	ext := Parse("Son ödeme 45.13.2024, tüketim 100 m3 dogalgaz")
	assert.Nil(t, ext.StartDate)
	assert.Nil(t, ext.EndDate)
}

func TestParseTurkishNumber(t *testing.T) {
	v, err := parseTurkishNumber("1.234,56")
	require.NoError(t, err)
	assert.InDelta(t, 1234.56, v, 1e-9)

	v, err = parseTurkishNumber("1234.56")
	require.NoError(t, err)
	assert.InDelta(t, 1234.56, v, 1e-9)
}
