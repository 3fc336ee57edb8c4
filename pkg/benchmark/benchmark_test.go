package benchmark

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karbonuyum/platform/pkg/store"
)

func benchService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewService(store.NewActivityStore(db), store.NewCompanyStore(db)), mock
}

func expectCompany(mock sqlmock.Sqlmock, id int64, industry string) {
	mock.ExpectQuery(`SELECT id, name, tax_number, industry_type, owner_id, created_at\s+FROM companies`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "name", "tax_number", "industry_type", "owner_id", "created_at"}).
			AddRow(id, "Test A.Ş.", nil, industry, int64(1), time.Now()))
}

type intensityRow struct {
	id             int64
	city           string
	co2e           float64
	scope1, scope2 float64
	area           float64
}

func intensityRows(rows ...intensityRow) *sqlmock.Rows {
	out := sqlmock.NewRows([]string{"id", "city", "co2e", "scope1", "scope2", "area"})
	for _, r := range rows {
		out.AddRow(r.id, r.city, r.co2e, r.scope1, r.scope2, r.area)
	}
	return out
}

func TestCompareAgainstSameCityPeers(t *testing.T) {
	svc, mock := benchService(t)
	expectCompany(mock, 10, "tekstil")
	mock.ExpectQuery(`WHERE c.industry_type = \$1`).
		WillReturnRows(intensityRows(
			intensityRow{10, "Bursa", 5000, 2000, 3000, 1000}, // subject: 5 kg/m2
			intensityRow{11, "Bursa", 12000, 6000, 6000, 1000},
			intensityRow{12, "Bursa", 8000, 4000, 4000, 1000},
			intensityRow{13, "Bursa", 10000, 5000, 5000, 1000},
		))

	rep, err := svc.Compare(context.Background(), 10)
	require.NoError(t, err)
	assert.True(t, rep.DataAvailable)
	assert.Equal(t, 3, rep.ComparableCompanies)
	assert.Equal(t, WindowDays, rep.WindowDays)

	require.NotNil(t, rep.Total)
	assert.InDelta(t, 5.0, rep.Total.SubjectKgPerM2, 1e-9)
	assert.InDelta(t, 10.0, rep.Total.PeerMeanKgPerM2, 1e-9)
	assert.InDelta(t, 200.0, rep.Total.EfficiencyRatio, 1e-9)
	assert.True(t, rep.Total.BetterThanPeers)

	require.NotNil(t, rep.Scope1)
	assert.InDelta(t, 2.0, rep.Scope1.SubjectKgPerM2, 1e-9)
	assert.InDelta(t, 5.0, rep.Scope1.PeerMeanKgPerM2, 1e-9)
	assert.True(t, rep.Scope1.BetterThanPeers)

	require.NotNil(t, rep.Scope2)
	assert.InDelta(t, 3.0, rep.Scope2.SubjectKgPerM2, 1e-9)
	assert.InDelta(t, 5.0, rep.Scope2.PeerMeanKgPerM2, 1e-9)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompareExcludesOtherCityPeers(t *testing.T) {
	svc, mock := benchService(t)
	expectCompany(mock, 10, "tekstil")
	mock.ExpectQuery(`WHERE c.industry_type = \$1`).
		WillReturnRows(intensityRows(
			intensityRow{10, "Bursa", 5000, 2000, 3000, 1000},
			intensityRow{11, "Bursa", 12000, 6000, 6000, 1000},
			intensityRow{12, "Bursa", 8000, 4000, 4000, 1000},
			intensityRow{13, "İzmir", 10000, 5000, 5000, 1000}, // same industry, other city
		))

	rep, err := svc.Compare(context.Background(), 10)
	require.NoError(t, err)
	assert.False(t, rep.DataAvailable)
	assert.Equal(t, 2, rep.ComparableCompanies)
	assert.NotEmpty(t, rep.Message)
	assert.Nil(t, rep.Total)
}

func TestCompareWithholdsBelowPeerFloor(t *testing.T) {
	svc, mock := benchService(t)
	expectCompany(mock, 10, "tekstil")
	mock.ExpectQuery(`WHERE c.industry_type = \$1`).
		WillReturnRows(intensityRows(
			intensityRow{10, "Bursa", 5000, 2000, 3000, 1000},
			intensityRow{11, "Bursa", 12000, 6000, 6000, 1000},
			intensityRow{12, "Bursa", 8000, 4000, 4000, 1000},
		))

	rep, err := svc.Compare(context.Background(), 10)
	require.NoError(t, err)
	assert.False(t, rep.DataAvailable)
	assert.Equal(t, 2, rep.ComparableCompanies)
}

func TestCompareRequiresSubjectIntensity(t *testing.T) {
	svc, mock := benchService(t)
	expectCompany(mock, 10, "tekstil")
	mock.ExpectQuery(`WHERE c.industry_type = \$1`).
		WillReturnRows(intensityRows(
			intensityRow{11, "Bursa", 12000, 6000, 6000, 1000},
			intensityRow{12, "Bursa", 8000, 4000, 4000, 1000},
			intensityRow{13, "Bursa", 10000, 5000, 5000, 1000},
		))

	rep, err := svc.Compare(context.Background(), 10)
	require.NoError(t, err)
	assert.False(t, rep.DataAvailable)
	assert.Zero(t, rep.ComparableCompanies)
	assert.NotEmpty(t, rep.Message)
}

func TestCompareRequiresIndustry(t *testing.T) {
	svc, mock := benchService(t)
	mock.ExpectQuery(`FROM companies`).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "name", "tax_number", "industry_type", "owner_id", "created_at"}).
			AddRow(int64(10), "Test A.Ş.", nil, nil, int64(1), time.Now()))

	rep, err := svc.Compare(context.Background(), 10)
	require.NoError(t, err)
	assert.False(t, rep.DataAvailable)
	assert.NotEmpty(t, rep.Message)
}
