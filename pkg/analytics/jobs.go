// Package analytics runs the periodic jobs that keep the derived caches
// fresh: industry benchmarks, leaderboards and the anomaly scan. Each job is
// idempotent; running it twice in a row produces the same state.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/karbonuyum/platform/pkg/domain"
	"github.com/karbonuyum/platform/pkg/store"
)

// AnomalyThreshold flags a day whose emissions exceed the trailing mean by
// more than this fraction.
const AnomalyThreshold = 0.20

// Jobs holds the dependencies of the periodic analytics work.
type Jobs struct {
	analytics  *store.AnalyticsStore
	activities *store.ActivityStore
	companies  *store.CompanyStore
	log        *slog.Logger
	notify     func(ctx context.Context, n *domain.Notification) error
}

func NewJobs(analytics *store.AnalyticsStore, activities *store.ActivityStore, companies *store.CompanyStore, notify func(ctx context.Context, n *domain.Notification) error, log *slog.Logger) *Jobs {
	return &Jobs{
		analytics:  analytics,
		activities: activities,
		companies:  companies,
		notify:     notify,
		log:        log,
	}
}

// RefreshIndustryBenchmarks recomputes each industry's template from the
// trailing thirty days. Best-in-class is the 20th percentile of per-company
// consumption; average is the mean.
func (j *Jobs) RefreshIndustryBenchmarks(ctx context.Context) error {
	industries, err := j.analytics.Industries(ctx)
	if err != nil {
		return err
	}
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -30)

	for _, industry := range industries {
		totals, err := j.analytics.IndustryElectricity(ctx, industry, from, to)
		if err != nil {
			return err
		}
		if len(totals) == 0 {
			continue
		}
		sort.Float64s(totals)

		var sum float64
		for _, v := range totals {
			sum += v
		}
		tpl := &domain.IndustryTemplate{
			IndustryType:              industry,
			IndustryName:              industry,
			AverageElectricityKwh:     sum / float64(len(totals)),
			BestInClassElectricityKwh: totals[int(float64(len(totals))*0.2)],
		}
		if err := j.analytics.UpsertTemplate(ctx, tpl); err != nil {
			return err
		}
		j.log.Info("industry benchmark refreshed", "industry", industry, "companies", len(totals))
	}
	return nil
}

// RefreshLeaderboards rebuilds the per-industry, per-region efficiency
// rankings from verified intensities over the trailing year. Lower intensity
// ranks higher; the published score is intensity-relative so raw peer values
// stay private. The owner of each pool's top company earns the sector-leader
// badge.
func (j *Jobs) RefreshLeaderboards(ctx context.Context) error {
	industries, err := j.analytics.Industries(ctx)
	if err != nil {
		return err
	}
	badgeID, err := j.analytics.EnsureBadge(ctx, "sektor_lideri", "Sektör Lideri",
		"Bölgesindeki sektör sıralamasında birinci oldu")
	if err != nil {
		return err
	}
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -365)

	for _, industry := range industries {
		intensities, err := j.activities.IntensityByCompany(ctx, industry, from, to)
		if err != nil {
			return err
		}
		regions, err := j.analytics.CompanyRegions(ctx, industry)
		if err != nil {
			return err
		}

		byRegion := make(map[string][]store.CompanyIntensity)
		for _, ci := range intensities {
			if ci.IntensityPerM2 <= 0 {
				continue
			}
			region, ok := regions[ci.CompanyID]
			if !ok {
				continue
			}
			byRegion[region] = append(byRegion[region], ci)
		}

		for region, pool := range byRegion {
			sort.Slice(pool, func(a, b int) bool {
				return pool[a].IntensityPerM2 < pool[b].IntensityPerM2
			})
			best := pool[0].IntensityPerM2
			entries := make([]domain.LeaderboardEntry, 0, len(pool))
			for i, ci := range pool {
				entries = append(entries, domain.LeaderboardEntry{
					CompanyID:       ci.CompanyID,
					Rank:            i + 1,
					EfficiencyScore: math.Round(best/ci.IntensityPerM2*10000) / 100,
				})
			}
			if err := j.analytics.ReplaceLeaderboard(ctx, industry, region, entries); err != nil {
				return err
			}
			j.awardLeader(ctx, badgeID, pool[0].CompanyID)
		}
	}
	return nil
}

// awardLeader grants the sector-leader badge to the owner of a pool's top
// company. Best effort: a miss here fixes itself on the next refresh.
func (j *Jobs) awardLeader(ctx context.Context, badgeID, companyID int64) {
	company, err := j.companies.ByID(ctx, companyID)
	if err != nil {
		j.log.Warn("badge award skipped", "company_id", companyID, "error", err)
		return
	}
	if err := j.analytics.AwardBadge(ctx, company.OwnerID, badgeID); err != nil {
		j.log.Warn("badge award failed", "company_id", companyID, "error", err)
	}
}

// ScanAnomalies compares each company's newest day of emissions against the
// mean of the preceding days and notifies the owner on a spike.
func (j *Jobs) ScanAnomalies(ctx context.Context) error {
	ids, err := j.analytics.CompanyIDs(ctx, "")
	if err != nil {
		return err
	}
	for _, companyID := range ids {
		days, err := j.activities.RecentDailyEmission(ctx, companyID, 30)
		if err != nil {
			return err
		}
		if len(days) < 2 {
			continue
		}

		recent := days[len(days)-1].CO2eKg
		var sum float64
		for _, d := range days[:len(days)-1] {
			sum += d.CO2eKg
		}
		mean := sum / float64(len(days)-1)
		if mean <= 0 {
			continue
		}
		if (recent-mean)/mean <= AnomalyThreshold {
			continue
		}

		company, err := j.companies.ByID(ctx, companyID)
		if err != nil {
			return err
		}
		n := &domain.Notification{
			UserID:    company.OwnerID,
			Kind:      "emission_anomaly",
			Title:     "Emisyon artışı tespit edildi",
			Message:   fmt.Sprintf("Son günün emisyonu ortalamanın %%%.0f üzerinde.", (recent-mean)/mean*100),
			CompanyID: &companyID,
		}
		if err := j.notify(ctx, n); err != nil {
			j.log.Warn("anomaly notification failed", "company_id", companyID, "error", err)
		}
		j.log.Info("emission anomaly flagged", "company_id", companyID, "recent_kg", recent, "mean_kg", mean)
	}
	return nil
}

// SupplierStats summarizes a product category's footprint intensities as
// mean, median and 25th percentile without exposing any supplier's value.
type SupplierStats struct {
	Category string  `json:"category"`
	Count    int     `json:"count"`
	Mean     float64 `json:"mean_kg_per_unit"`
	Median   float64 `json:"median_kg_per_unit"`
	P25      float64 `json:"p25_kg_per_unit"`
}

// ComputeSupplierStats aggregates sorted intensities.
func ComputeSupplierStats(category string, sorted []float64) SupplierStats {
	stats := SupplierStats{Category: category, Count: len(sorted)}
	if len(sorted) == 0 {
		return stats
	}
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	stats.Mean = sum / float64(len(sorted))
	stats.Median = percentile(sorted, 0.5)
	stats.P25 = percentile(sorted, 0.25)
	return stats
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := p * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
