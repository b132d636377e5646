// +build integration

package clickhouse

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/fidde/appmarket_pipeline/pkg/models"
)

// TestClickHouseIntegration tests merge and read operations against a live server.
// Run with: go test -tags=integration ./internal/storage/clickhouse -v
func TestClickHouseIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	config := DefaultConfig()

	store, err := NewStore(ctx, config, logger)
	if err != nil {
		t.Skipf("ClickHouse not available: %v", err)
	}
	defer store.Close()

	loadedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	sourceFile := "integration_apps.json"

	t.Run("MergeAndGetApp", func(t *testing.T) {
		apps := []*models.AppRecord{
			{
				AppID:        "com.example.notely",
				Title:        "Notely",
				Developer:    "Example Labs",
				Score:        4.5,
				RatingCount:  1200,
				InstallCount: 50000,
				Genre:        "Productivity",
				Price:        0,
				LoadedAt:     loadedAt,
				SourceFile:   sourceFile,
			},
		}

		result, err := store.MergeApps(ctx, sourceFile, apps)
		if err != nil {
			t.Fatalf("Failed to merge apps: %v", err)
		}
		if result.SkippedAlreadyIngested {
			t.Log("Batch already ingested from a previous run, reads should still succeed")
		}

		retrieved, err := store.GetApp(ctx, "com.example.notely")
		if err != nil {
			t.Fatalf("Failed to get app: %v", err)
		}

		if retrieved.Title != "Notely" {
			t.Errorf("Expected title 'Notely', got '%s'", retrieved.Title)
		}
	})

	t.Run("MergeIsIdempotent", func(t *testing.T) {
		apps := []*models.AppRecord{
			{
				AppID:      "com.example.notely",
				Title:      "Notely Renamed",
				LoadedAt:   loadedAt,
				SourceFile: sourceFile,
			},
		}

		result, err := store.MergeApps(ctx, sourceFile, apps)
		if err != nil {
			t.Fatalf("Failed to re-merge apps: %v", err)
		}

		if !result.SkippedAlreadyIngested {
			t.Error("Expected replayed source file to be skipped")
		}

		retrieved, err := store.GetApp(ctx, "com.example.notely")
		if err != nil {
			t.Fatalf("Failed to get app after replay: %v", err)
		}
		if retrieved.Title != "Notely" {
			t.Errorf("Replay changed title to '%s'", retrieved.Title)
		}
	})

	t.Run("MergeAndListReviews", func(t *testing.T) {
		reviews := []*models.ReviewRecord{
			{
				ReviewID:    "r-integration-1",
				AppID:       "com.example.notely",
				Author:      "pat",
				Score:       5,
				Content:     "Great app",
				SubmittedAt: time.Date(2024, 2, 28, 9, 30, 0, 0, time.UTC),
				LoadedAt:    loadedAt,
				SourceFile:  "integration_reviews.json",
			},
		}

		if _, err := store.MergeReviews(ctx, "integration_reviews.json", reviews); err != nil {
			t.Fatalf("Failed to merge reviews: %v", err)
		}

		listed, err := store.ListReviews(ctx)
		if err != nil {
			t.Fatalf("Failed to list reviews: %v", err)
		}
		if len(listed) == 0 {
			t.Fatal("Expected at least one review")
		}
	})

	t.Run("ReplaceAndListKPIs", func(t *testing.T) {
		kpis := []*models.AppKPI{
			{
				AppID:           "com.example.notely",
				Title:           "Notely",
				NumReviews:      2,
				AvgRating:       3.0,
				PctLowRatings:   50.0,
				FirstReviewDate: time.Date(2024, 2, 27, 18, 0, 0, 0, time.UTC),
				LastReviewDate:  time.Date(2024, 2, 28, 9, 30, 0, 0, time.UTC),
			},
		}

		if err := store.ReplaceAppKPIs(ctx, kpis); err != nil {
			t.Fatalf("Failed to replace KPIs: %v", err)
		}

		listed, err := store.ListAppKPIs(ctx)
		if err != nil {
			t.Fatalf("Failed to list KPIs: %v", err)
		}
		if len(listed) != 1 {
			t.Fatalf("Expected 1 KPI row, got %d", len(listed))
		}
		if listed[0].AvgRating != 3.0 {
			t.Errorf("Expected avg rating 3.0, got %v", listed[0].AvgRating)
		}
	})

	t.Run("ReplaceAndListDailyMetrics", func(t *testing.T) {
		metrics := []*models.DailyMetric{
			{Date: "2024-02-27", DailyReviewCount: 1, DailyAvgRating: 1.0},
			{Date: "2024-02-28", DailyReviewCount: 1, DailyAvgRating: 5.0},
		}

		if err := store.ReplaceDailyMetrics(ctx, metrics); err != nil {
			t.Fatalf("Failed to replace daily metrics: %v", err)
		}

		listed, err := store.ListDailyMetrics(ctx)
		if err != nil {
			t.Fatalf("Failed to list daily metrics: %v", err)
		}
		if len(listed) != 2 {
			t.Fatalf("Expected 2 daily rows, got %d", len(listed))
		}
		if listed[0].Date != "2024-02-27" {
			t.Errorf("Expected ascending date order, got first date %s", listed[0].Date)
		}
	})

	t.Run("ListBatches", func(t *testing.T) {
		batches, err := store.ListBatches(ctx)
		if err != nil {
			t.Fatalf("Failed to list batches: %v", err)
		}
		if len(batches) == 0 {
			t.Error("Expected provenance rows after merges")
		}
	})
}
