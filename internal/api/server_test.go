package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/fidde/appmarket_pipeline/internal/metrics"
	"github.com/fidde/appmarket_pipeline/internal/storage/sqlite"
	"github.com/fidde/appmarket_pipeline/pkg/models"
)

func setupTestServer(t *testing.T) *Server {
	t.Helper()

	store, err := sqlite.New(sqlite.DefaultConfig(filepath.Join(t.TempDir(), "test.db")))
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	apps := []*models.AppRecord{
		{AppID: "com.example.notely", Title: "Notely", Developer: "Example Labs", Score: 4.5},
		{AppID: "com.example.taskr", Title: "Taskr", Developer: "Taskr Inc", Score: 3.8},
	}
	if _, err := store.MergeApps(ctx, "apps.json", apps); err != nil {
		t.Fatalf("seeding apps: %v", err)
	}

	reviews := []*models.ReviewRecord{
		{ReviewID: "r-1", AppID: "com.example.notely", Author: "pat", Score: 5,
			SubmittedAt: time.Date(2024, 2, 28, 9, 30, 0, 0, time.UTC)},
	}
	if _, err := store.MergeReviews(ctx, "reviews.jsonl", reviews); err != nil {
		t.Fatalf("seeding reviews: %v", err)
	}

	reviewedAt := time.Date(2024, 2, 28, 9, 30, 0, 0, time.UTC)
	kpis := []*models.AppKPI{
		{AppID: "com.example.notely", Title: "Notely", NumReviews: 1, AvgRating: 5.0,
			FirstReviewDate: reviewedAt, LastReviewDate: reviewedAt},
	}
	if err := store.ReplaceAppKPIs(ctx, kpis); err != nil {
		t.Fatalf("seeding kpis: %v", err)
	}

	daily := []*models.DailyMetric{
		{Date: "2024-02-28", DailyReviewCount: 1, DailyAvgRating: 5.0},
	}
	if err := store.ReplaceDailyMetrics(ctx, daily); err != nil {
		t.Fatalf("seeding daily metrics: %v", err)
	}

	return NewServer(":0", store, metrics.NewRegistry())
}

func doGet(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestListApps(t *testing.T) {
	s := setupTestServer(t)

	rec := doGet(t, s, "/api/v1/apps")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}

	var resp PaginatedResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Total != 2 {
		t.Errorf("total: got %d", resp.Total)
	}
	if resp.HasMore {
		t.Error("has_more should be false")
	}
}

func TestListAppsPagination(t *testing.T) {
	s := setupTestServer(t)

	rec := doGet(t, s, "/api/v1/apps?limit=1&offset=0")
	var resp PaginatedResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Total != 2 || !resp.HasMore {
		t.Errorf("expected total 2 with more pages, got total=%d has_more=%v", resp.Total, resp.HasMore)
	}
}

func TestGetApp(t *testing.T) {
	s := setupTestServer(t)

	rec := doGet(t, s, "/api/v1/apps/com.example.notely")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}

	var app models.AppRecord
	if err := json.NewDecoder(rec.Body).Decode(&app); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if app.Title != "Notely" {
		t.Errorf("title: got %q", app.Title)
	}
}

func TestGetAppNotFound(t *testing.T) {
	s := setupTestServer(t)

	rec := doGet(t, s, "/api/v1/apps/com.example.absent")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rec.Code)
	}
}

func TestListKPIs(t *testing.T) {
	s := setupTestServer(t)

	rec := doGet(t, s, "/api/v1/kpis")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}

	var resp struct {
		Data  []*models.AppKPI `json:"data"`
		Total int              `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Total != 1 || resp.Data[0].AvgRating != 5.0 {
		t.Errorf("unexpected kpi payload: %+v", resp)
	}
}

func TestListDailyMetrics(t *testing.T) {
	s := setupTestServer(t)

	rec := doGet(t, s, "/api/v1/daily")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}

	var resp struct {
		Data []*models.DailyMetric `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].Date != "2024-02-28" {
		t.Errorf("unexpected daily payload: %+v", resp.Data)
	}
}

func TestListBatches(t *testing.T) {
	s := setupTestServer(t)

	rec := doGet(t, s, "/api/v1/batches")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}

	var resp struct {
		Total int `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Total != 2 {
		t.Errorf("expected 2 provenance rows, got %d", resp.Total)
	}
}

func TestHealth(t *testing.T) {
	s := setupTestServer(t)

	rec := doGet(t, s, "/api/v1/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status field: got %q", resp.Status)
	}
	if !resp.Store.Reachable {
		t.Error("store should be reported reachable")
	}
	if resp.Store.BatchCount != 2 {
		t.Errorf("batch count: got %d, want 2", resp.Store.BatchCount)
	}
	if resp.Store.LastLoadedAt == nil {
		t.Error("last_loaded_at should be set after seeding")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := setupTestServer(t)

	rec := doGet(t, s, "/metrics")
	if rec.Code != http.StatusOK {
		t.Errorf("status: got %d", rec.Code)
	}
}
