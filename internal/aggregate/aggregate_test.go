package aggregate

import (
	"reflect"
	"testing"
	"time"

	"github.com/fidde/appmarket_pipeline/pkg/models"
)

func review(id, appID string, score int64, submitted string) *models.ReviewRecord {
	ts, err := time.Parse(models.TimestampLayout, submitted)
	if err != nil {
		panic(err)
	}
	return &models.ReviewRecord{
		ReviewID:    id,
		AppID:       appID,
		Score:       score,
		SubmittedAt: ts,
	}
}

func TestAppKPIs(t *testing.T) {
	reviews := []*models.ReviewRecord{
		review("r1", "a1", 1, "2024-03-01 08:00:00"),
		review("r2", "a1", 5, "2024-03-03 09:00:00"),
	}
	apps := []*models.AppRecord{
		{AppID: "a1", Title: "Notely"},
	}

	kpis := AppKPIs(reviews, apps)

	if len(kpis) != 1 {
		t.Fatalf("expected 1 KPI row, got %d", len(kpis))
	}

	k := kpis[0]
	if k.AppID != "a1" || k.Title != "Notely" {
		t.Errorf("unexpected identity: %s/%s", k.AppID, k.Title)
	}
	if k.NumReviews != 2 {
		t.Errorf("expected num_reviews 2, got %d", k.NumReviews)
	}
	if k.AvgRating != 3.0 {
		t.Errorf("expected avg_rating 3.0, got %v", k.AvgRating)
	}
	if k.PctLowRatings != 50.0 {
		t.Errorf("expected pct_low_ratings 50.0, got %v", k.PctLowRatings)
	}
	if k.FirstReviewDate.Format(models.TimestampLayout) != "2024-03-01 08:00:00" {
		t.Errorf("unexpected first_review_date %v", k.FirstReviewDate)
	}
	if k.LastReviewDate.Format(models.TimestampLayout) != "2024-03-03 09:00:00" {
		t.Errorf("unexpected last_review_date %v", k.LastReviewDate)
	}
}

func TestAppKPIsUnmatchedAppKeepsPlaceholderTitle(t *testing.T) {
	reviews := []*models.ReviewRecord{
		review("r1", "ghost", 4, "2024-03-01 08:00:00"),
	}

	kpis := AppKPIs(reviews, nil)

	if len(kpis) != 1 {
		t.Fatalf("expected 1 KPI row, got %d", len(kpis))
	}
	if kpis[0].Title != "Unknown" {
		t.Errorf("expected placeholder title, got %q", kpis[0].Title)
	}
}

func TestAppKPIsRounding(t *testing.T) {
	// 1+2+2 over 3 reviews: mean 1.666... rounds half-up to 1.67,
	// low ratio 100*3/3 = 100.
	reviews := []*models.ReviewRecord{
		review("r1", "a1", 1, "2024-03-01 08:00:00"),
		review("r2", "a1", 2, "2024-03-01 09:00:00"),
		review("r3", "a1", 2, "2024-03-01 10:00:00"),
	}

	kpis := AppKPIs(reviews, nil)
	if kpis[0].AvgRating != 1.67 {
		t.Errorf("expected avg_rating 1.67, got %v", kpis[0].AvgRating)
	}
	if kpis[0].PctLowRatings != 100.0 {
		t.Errorf("expected pct_low_ratings 100.0, got %v", kpis[0].PctLowRatings)
	}

	// 2 of 3 low: 66.666... rounds to 66.67.
	reviews[2] = review("r3", "a1", 5, "2024-03-01 10:00:00")
	kpis = AppKPIs(reviews, nil)
	if kpis[0].PctLowRatings != 66.67 {
		t.Errorf("expected pct_low_ratings 66.67, got %v", kpis[0].PctLowRatings)
	}
}

func TestAppKPIsSortedByAppID(t *testing.T) {
	reviews := []*models.ReviewRecord{
		review("r1", "zebra", 5, "2024-03-01 08:00:00"),
		review("r2", "alpha", 5, "2024-03-01 08:00:00"),
		review("r3", "mango", 5, "2024-03-01 08:00:00"),
	}

	kpis := AppKPIs(reviews, nil)
	var ids []string
	for _, k := range kpis {
		ids = append(ids, k.AppID)
	}
	if !reflect.DeepEqual(ids, []string{"alpha", "mango", "zebra"}) {
		t.Errorf("expected sorted app ids, got %v", ids)
	}
}

func TestDailyMetrics(t *testing.T) {
	reviews := []*models.ReviewRecord{
		review("r1", "a1", 4, "2024-03-02 23:59:59"),
		review("r2", "a2", 2, "2024-03-02 00:00:01"),
		review("r3", "a1", 5, "2024-03-05 12:00:00"),
	}

	metrics := DailyMetrics(reviews)

	if len(metrics) != 2 {
		t.Fatalf("expected 2 daily rows, got %d", len(metrics))
	}
	if metrics[0].Date != "2024-03-02" || metrics[1].Date != "2024-03-05" {
		t.Errorf("expected ascending dates with no gap fill, got %v, %v", metrics[0].Date, metrics[1].Date)
	}
	if metrics[0].DailyReviewCount != 2 || metrics[0].DailyAvgRating != 3.0 {
		t.Errorf("unexpected metrics for 2024-03-02: %+v", metrics[0])
	}
	if metrics[1].DailyReviewCount != 1 || metrics[1].DailyAvgRating != 5.0 {
		t.Errorf("unexpected metrics for 2024-03-05: %+v", metrics[1])
	}
}

func TestRebuildDeterminism(t *testing.T) {
	reviews := []*models.ReviewRecord{
		review("r1", "b", 3, "2024-03-01 08:00:00"),
		review("r2", "a", 4, "2024-03-02 08:00:00"),
		review("r3", "a", 1, "2024-03-01 09:00:00"),
		review("r4", "c", 5, "2024-03-03 10:00:00"),
	}
	apps := []*models.AppRecord{{AppID: "a", Title: "A"}, {AppID: "b", Title: "B"}}

	first := AppKPIs(reviews, apps)
	second := AppKPIs(reviews, apps)
	if !reflect.DeepEqual(first, second) {
		t.Error("AppKPIs is not deterministic across runs")
	}

	firstDaily := DailyMetrics(reviews)
	secondDaily := DailyMetrics(reviews)
	if !reflect.DeepEqual(firstDaily, secondDaily) {
		t.Error("DailyMetrics is not deterministic across runs")
	}
}
