// Package aggregate computes the derived KPI tables from canonical
// records. Both computations are pure functions of their inputs and are
// rebuilt wholesale on every run: identical inputs produce identical
// output, row for row.
package aggregate

import (
	"math"
	"sort"

	"github.com/fidde/appmarket_pipeline/pkg/models"
)

// round2 rounds half-up to 2 decimals. Scores are non-negative, so the
// floor trick is safe.
func round2(f float64) float64 {
	return math.Floor(f*100+0.5) / 100
}

// AppKPIs groups reviews by app and computes per-app metrics, joined
// against the app catalog for titles. Apps without reviews are excluded
// (a low-score ratio over zero reviews is undefined); reviews whose app
// is missing from the catalog keep their row with the placeholder title.
// Output is sorted by app_id ascending.
func AppKPIs(reviews []*models.ReviewRecord, apps []*models.AppRecord) []*models.AppKPI {
	titles := make(map[string]string, len(apps))
	for _, app := range apps {
		titles[app.AppID] = app.Title
	}

	type bucket struct {
		count    int64
		lowCount int64
		scoreSum int64
		first    *models.ReviewRecord
		last     *models.ReviewRecord
	}

	buckets := make(map[string]*bucket)
	for _, r := range reviews {
		b := buckets[r.AppID]
		if b == nil {
			b = &bucket{}
			buckets[r.AppID] = b
		}
		b.count++
		b.scoreSum += r.Score
		if r.Score <= 2 {
			b.lowCount++
		}
		if b.first == nil || r.SubmittedAt.Before(b.first.SubmittedAt) {
			b.first = r
		}
		if b.last == nil || r.SubmittedAt.After(b.last.SubmittedAt) {
			b.last = r
		}
	}

	kpis := make([]*models.AppKPI, 0, len(buckets))
	for appID, b := range buckets {
		title, ok := titles[appID]
		if !ok {
			title = "Unknown"
		}
		kpis = append(kpis, &models.AppKPI{
			AppID:           appID,
			Title:           title,
			NumReviews:      b.count,
			AvgRating:       round2(float64(b.scoreSum) / float64(b.count)),
			PctLowRatings:   round2(100 * float64(b.lowCount) / float64(b.count)),
			FirstReviewDate: b.first.SubmittedAt,
			LastReviewDate:  b.last.SubmittedAt,
		})
	}

	sort.Slice(kpis, func(i, j int) bool { return kpis[i].AppID < kpis[j].AppID })
	return kpis
}

// DailyMetrics groups reviews by the calendar date of submitted_at (the
// stored local date component, time of day ignored) and computes review
// counts and mean scores per day. Output is strictly ascending by date;
// dates with no reviews do not appear.
func DailyMetrics(reviews []*models.ReviewRecord) []*models.DailyMetric {
	type bucket struct {
		count    int64
		scoreSum int64
	}

	buckets := make(map[string]*bucket)
	for _, r := range reviews {
		date := r.SubmittedAt.Format(models.DateLayout)
		b := buckets[date]
		if b == nil {
			b = &bucket{}
			buckets[date] = b
		}
		b.count++
		b.scoreSum += r.Score
	}

	metrics := make([]*models.DailyMetric, 0, len(buckets))
	for date, b := range buckets {
		metrics = append(metrics, &models.DailyMetric{
			Date:             date,
			DailyReviewCount: b.count,
			DailyAvgRating:   round2(float64(b.scoreSum) / float64(b.count)),
		})
	}

	sort.Slice(metrics, func(i, j int) bool { return metrics[i].Date < metrics[j].Date })
	return metrics
}
