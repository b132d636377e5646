package clickhouse

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/fidde/appmarket_pipeline/pkg/models"
)

// GetApp retrieves one canonical app row by natural key.
func (s *Store) GetApp(ctx context.Context, appID string) (*models.AppRecord, error) {
	apps, err := s.queryApps(ctx, "WHERE app_id = ? LIMIT 1", appID)
	if err != nil {
		return nil, err
	}
	if len(apps) == 0 {
		return nil, models.ErrNotFound
	}
	return apps[0], nil
}

// ListApps returns all canonical app rows ordered by app_id.
func (s *Store) ListApps(ctx context.Context) ([]*models.AppRecord, error) {
	return s.queryApps(ctx, "ORDER BY app_id")
}

func (s *Store) queryApps(ctx context.Context, clause string, args ...any) ([]*models.AppRecord, error) {
	values, err := s.queryDynamic(ctx, "apps", clause, args...)
	if err != nil {
		return nil, err
	}

	apps := make([]*models.AppRecord, 0, len(values))
	for _, row := range values {
		app := &models.AppRecord{
			AppID:        asString(row["app_id"]),
			Title:        asString(row["title"]),
			Developer:    asString(row["developer"]),
			Score:        asFloat(row["score"]),
			RatingCount:  asInt(row["rating_count"]),
			InstallCount: asInt(row["install_count"]),
			Genre:        asString(row["genre"]),
			Price:        asFloat(row["price"]),
			LoadedAt:     asTime(row["loaded_at"]),
			SourceFile:   asString(row["source_file"]),
		}
		app.Extras = collectExtras(row, appColumns)
		apps = append(apps, app)
	}
	return apps, nil
}

// ListReviews returns all canonical review rows ordered by review_id.
func (s *Store) ListReviews(ctx context.Context) ([]*models.ReviewRecord, error) {
	values, err := s.queryDynamic(ctx, "reviews", "ORDER BY review_id")
	if err != nil {
		return nil, err
	}

	reviews := make([]*models.ReviewRecord, 0, len(values))
	for _, row := range values {
		review := &models.ReviewRecord{
			ReviewID:     asString(row["review_id"]),
			AppID:        asString(row["app_id"]),
			Author:       asString(row["author"]),
			Score:        asInt(row["score"]),
			Content:      asString(row["content"]),
			HelpfulCount: asInt(row["helpful_count"]),
			SubmittedAt:  asTime(row["submitted_at"]),
			LoadedAt:     asTime(row["loaded_at"]),
			SourceFile:   asString(row["source_file"]),
		}
		review.Extras = collectExtras(row, reviewColumns)
		reviews = append(reviews, review)
	}
	return reviews, nil
}

// ListBatches returns the provenance registry ordered by load time.
func (s *Store) ListBatches(ctx context.Context) ([]*models.IngestedBatch, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT source_file, entity, row_count, duplicate_count, loaded_at
		FROM ingested_batches
		ORDER BY loaded_at, source_file
	`)
	if err != nil {
		return nil, fmt.Errorf("querying batches: %w", err)
	}
	defer rows.Close()

	var batches []*models.IngestedBatch
	for rows.Next() {
		var batch models.IngestedBatch
		if err := rows.Scan(&batch.SourceFile, &batch.Entity, &batch.RowCount, &batch.DuplicateCount, &batch.LoadedAt); err != nil {
			return nil, fmt.Errorf("scanning batch: %w", err)
		}
		batches = append(batches, &batch)
	}
	return batches, rows.Err()
}

// ReplaceAppKPIs replaces the derived app_kpis table wholesale.
func (s *Store) ReplaceAppKPIs(ctx context.Context, kpis []*models.AppKPI) error {
	if err := s.conn.Exec(ctx, "TRUNCATE TABLE app_kpis"); err != nil {
		return fmt.Errorf("truncating app_kpis: %w", err)
	}

	batch, err := s.conn.PrepareBatch(ctx,
		"INSERT INTO app_kpis (app_id, title, num_reviews, avg_rating, pct_low_ratings, first_review_date, last_review_date)")
	if err != nil {
		return fmt.Errorf("preparing kpi batch: %w", err)
	}
	for _, k := range kpis {
		err := batch.Append(k.AppID, k.Title, k.NumReviews, k.AvgRating, k.PctLowRatings, k.FirstReviewDate, k.LastReviewDate)
		if err != nil {
			return fmt.Errorf("appending kpi for %s: %w", k.AppID, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("sending kpi batch: %w", err)
	}
	return nil
}

// ListAppKPIs returns the derived per-app metrics ordered by app_id.
func (s *Store) ListAppKPIs(ctx context.Context) ([]*models.AppKPI, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT app_id, title, num_reviews, avg_rating, pct_low_ratings, first_review_date, last_review_date
		FROM app_kpis
		ORDER BY app_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying app_kpis: %w", err)
	}
	defer rows.Close()

	var kpis []*models.AppKPI
	for rows.Next() {
		var k models.AppKPI
		if err := rows.Scan(&k.AppID, &k.Title, &k.NumReviews, &k.AvgRating, &k.PctLowRatings, &k.FirstReviewDate, &k.LastReviewDate); err != nil {
			return nil, fmt.Errorf("scanning kpi: %w", err)
		}
		kpis = append(kpis, &k)
	}
	return kpis, rows.Err()
}

// ReplaceDailyMetrics replaces the derived daily_metrics table wholesale.
func (s *Store) ReplaceDailyMetrics(ctx context.Context, metrics []*models.DailyMetric) error {
	if err := s.conn.Exec(ctx, "TRUNCATE TABLE daily_metrics"); err != nil {
		return fmt.Errorf("truncating daily_metrics: %w", err)
	}

	batch, err := s.conn.PrepareBatch(ctx,
		"INSERT INTO daily_metrics (date, daily_review_count, daily_avg_rating)")
	if err != nil {
		return fmt.Errorf("preparing daily batch: %w", err)
	}
	for _, m := range metrics {
		date, err := time.Parse(models.DateLayout, m.Date)
		if err != nil {
			return fmt.Errorf("parsing date %s: %w", m.Date, err)
		}
		if err := batch.Append(date, m.DailyReviewCount, m.DailyAvgRating); err != nil {
			return fmt.Errorf("appending daily metric %s: %w", m.Date, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("sending daily batch: %w", err)
	}
	return nil
}

// ListDailyMetrics returns the derived time series ordered by date.
func (s *Store) ListDailyMetrics(ctx context.Context) ([]*models.DailyMetric, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT date, daily_review_count, daily_avg_rating
		FROM daily_metrics
		ORDER BY date
	`)
	if err != nil {
		return nil, fmt.Errorf("querying daily_metrics: %w", err)
	}
	defer rows.Close()

	var metrics []*models.DailyMetric
	for rows.Next() {
		var (
			m    models.DailyMetric
			date time.Time
		)
		if err := rows.Scan(&date, &m.DailyReviewCount, &m.DailyAvgRating); err != nil {
			return nil, fmt.Errorf("scanning daily metric: %w", err)
		}
		m.Date = date.Format(models.DateLayout)
		metrics = append(metrics, &m)
	}
	return metrics, rows.Err()
}

// queryDynamic selects every current column of a table (canonical tables
// grow drifted extras over time) and returns generic row maps.
func (s *Store) queryDynamic(ctx context.Context, table, clause string, args ...any) ([]map[string]any, error) {
	columns, err := s.tableColumns(ctx, table)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s %s", strings.Join(columns, ", "), table, clause)
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", table, err)
	}
	defer rows.Close()

	types := rows.ColumnTypes()
	var out []map[string]any
	for rows.Next() {
		dest := make([]any, len(types))
		for i, ct := range types {
			dest[i] = reflect.New(ct.ScanType()).Interface()
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", table, err)
		}

		values := make(map[string]any, len(columns))
		for i, col := range columns {
			values[col] = deref(dest[i])
		}
		out = append(out, values)
	}
	return out, rows.Err()
}

// tableColumns returns the current column names of a table in position order.
func (s *Store) tableColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := s.conn.Query(ctx,
		"SELECT name FROM system.columns WHERE database = currentDatabase() AND table = ? ORDER BY position",
		table)
	if err != nil {
		return nil, fmt.Errorf("reading columns for %s: %w", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning column name: %w", err)
		}
		columns = append(columns, name)
	}
	return columns, rows.Err()
}

// deref unwraps the pointer chain reflect-created scan targets produce.
// Nullable columns scan through a double pointer; a nil anywhere means NULL.
func deref(v any) any {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	return rv.Interface()
}

func collectExtras(values map[string]any, baseColumns []string) map[string]string {
	base := make(map[string]bool, len(baseColumns))
	for _, c := range baseColumns {
		base[c] = true
	}

	var extras map[string]string
	for col, v := range values {
		if base[col] || v == nil {
			continue
		}
		if extras == nil {
			extras = make(map[string]string)
		}
		extras[col] = asString(v)
	}
	return extras
}

func asString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

func asInt(v any) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int32:
		return int64(val)
	case uint64:
		return int64(val)
	case float64:
		return int64(val)
	case string:
		n, _ := strconv.ParseInt(val, 10, 64)
		return n
	default:
		return 0
	}
}

func asFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case float32:
		return float64(val)
	case int64:
		return float64(val)
	default:
		return 0
	}
}

func asTime(v any) time.Time {
	if t, ok := v.(time.Time); ok {
		return t
	}
	return time.Time{}
}
