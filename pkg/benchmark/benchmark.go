// Package benchmark compares a company's emission intensity against its
// industry peers in the same city. Peer data is only ever released as an
// aggregate over at least three other companies; below that floor the
// comparison is withheld and the report says so instead of erroring.
package benchmark

import (
	"context"
	"time"

	"github.com/karbonuyum/platform/pkg/store"
)

// MinPeers is the k-anonymity floor: an aggregate over fewer peer companies
// is never disclosed.
const MinPeers = 3

// WindowDays is the trailing comparison window.
const WindowDays = 365

// Metric compares one intensity figure against the peer mean.
// EfficiencyRatio is peer mean over subject intensity as a percentage: above
// 100 means the subject emits less per square meter than the average peer.
type Metric struct {
	SubjectKgPerM2  float64 `json:"subject_kg_per_m2"`
	PeerMeanKgPerM2 float64 `json:"peer_mean_kg_per_m2"`
	EfficiencyRatio float64 `json:"efficiency_ratio"`
	BetterThanPeers bool    `json:"better_than_peers"`
}

// Report is the benchmark response. When the peer pool is too small or the
// subject has no comparable data, DataAvailable is false and Message explains
// why; the metrics are omitted.
type Report struct {
	DataAvailable       bool    `json:"data_available"`
	ComparableCompanies int     `json:"comparable_companies_count"`
	Message             string  `json:"message,omitempty"`
	Scope1              *Metric `json:"scope_1,omitempty"`
	Scope2              *Metric `json:"scope_2,omitempty"`
	Total               *Metric `json:"total,omitempty"`
	WindowDays          int     `json:"window_days"`
}

// Service computes peer comparisons.
type Service struct {
	activities *store.ActivityStore
	companies  *store.CompanyStore
}

func NewService(activities *store.ActivityStore, companies *store.CompanyStore) *Service {
	return &Service{activities: activities, companies: companies}
}

func unavailable(peers int, message string) *Report {
	return &Report{
		DataAvailable:       false,
		ComparableCompanies: peers,
		Message:             message,
		WindowDays:          WindowDays,
	}
}

// Compare benchmarks one company against same-industry, same-city peers over
// the trailing year. Fallback calculations and simulations never enter the
// pool.
func (s *Service) Compare(ctx context.Context, companyID int64) (*Report, error) {
	company, err := s.companies.ByID(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if company.IndustryType == nil || *company.IndustryType == "" {
		return unavailable(0, "Karşılaştırma için şirket profilinde sektör bilgisi gereklidir."), nil
	}

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -WindowDays)
	intensities, err := s.activities.IntensityByCompany(ctx, *company.IndustryType, from, to)
	if err != nil {
		return nil, err
	}

	var subject *store.CompanyIntensity
	for i := range intensities {
		if intensities[i].CompanyID == companyID {
			subject = &intensities[i]
			break
		}
	}
	if subject == nil || subject.SurfaceAreaM2 <= 0 || subject.IntensityPerM2 <= 0 {
		return unavailable(0, "Karşılaştırma için doğrulanmış tüketim verisi ve tesis alanı gereklidir."), nil
	}

	var peerTotal, peerScope1, peerScope2 float64
	peerCount := 0
	for i := range intensities {
		ci := intensities[i]
		if ci.CompanyID == companyID || ci.SurfaceAreaM2 <= 0 {
			continue
		}
		if ci.City != subject.City {
			continue
		}
		peerTotal += ci.IntensityPerM2
		peerScope1 += ci.Scope1PerM2
		peerScope2 += ci.Scope2PerM2
		peerCount++
	}

	if peerCount < MinPeers {
		return unavailable(peerCount,
			"Bölgenizde karşılaştırma için yeterli sayıda benzer şirket bulunmuyor."), nil
	}

	n := float64(peerCount)
	return &Report{
		DataAvailable:       true,
		ComparableCompanies: peerCount,
		Scope1:              newMetric(subject.Scope1PerM2, peerScope1/n),
		Scope2:              newMetric(subject.Scope2PerM2, peerScope2/n),
		Total:               newMetric(subject.IntensityPerM2, peerTotal/n),
		WindowDays:          WindowDays,
	}, nil
}

func newMetric(subject, peerMean float64) *Metric {
	m := &Metric{
		SubjectKgPerM2:  subject,
		PeerMeanKgPerM2: peerMean,
		BetterThanPeers: subject < peerMean,
	}
	if subject > 0 {
		m.EfficiencyRatio = peerMean / subject * 100
	}
	return m
}
