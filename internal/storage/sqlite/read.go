package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/fidde/appmarket_pipeline/pkg/models"
)

// GetApp retrieves one canonical app row by natural key.
func (s *Store) GetApp(ctx context.Context, appID string) (*models.AppRecord, error) {
	apps, err := s.queryApps(ctx, `SELECT * FROM apps WHERE app_id = ?`, appID)
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
	return s.queryApps(ctx, `SELECT * FROM apps ORDER BY app_id`)
}

func (s *Store) queryApps(ctx context.Context, query string, args ...any) ([]*models.AppRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying apps: %w", err)
	}
	defer rows.Close()

	var apps []*models.AppRecord
	err = scanDynamic(rows, func(values map[string]any) error {
		app := &models.AppRecord{
			AppID:        asString(values["app_id"]),
			Title:        asString(values["title"]),
			Developer:    asString(values["developer"]),
			Score:        asFloat(values["score"]),
			RatingCount:  asInt(values["rating_count"]),
			InstallCount: asInt(values["install_count"]),
			Genre:        asString(values["genre"]),
			Price:        asFloat(values["price"]),
			SourceFile:   asString(values["source_file"]),
		}
		app.LoadedAt, _ = time.Parse(time.RFC3339, asString(values["loaded_at"]))
		app.Extras = collectExtras(values, appColumns)
		apps = append(apps, app)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return apps, nil
}

// ListReviews returns all canonical review rows ordered by review_id.
func (s *Store) ListReviews(ctx context.Context) ([]*models.ReviewRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT * FROM reviews ORDER BY review_id`)
	if err != nil {
		return nil, fmt.Errorf("querying reviews: %w", err)
	}
	defer rows.Close()

	var reviews []*models.ReviewRecord
	err = scanDynamic(rows, func(values map[string]any) error {
		review := &models.ReviewRecord{
			ReviewID:     asString(values["review_id"]),
			AppID:        asString(values["app_id"]),
			Author:       asString(values["author"]),
			Score:        asInt(values["score"]),
			Content:      asString(values["content"]),
			HelpfulCount: asInt(values["helpful_count"]),
			SourceFile:   asString(values["source_file"]),
		}
		submitted, err := time.Parse(models.TimestampLayout, asString(values["submitted_at"]))
		if err != nil {
			return fmt.Errorf("parsing submitted_at: %w", err)
		}
		review.SubmittedAt = submitted
		review.LoadedAt, _ = time.Parse(time.RFC3339, asString(values["loaded_at"]))
		review.Extras = collectExtras(values, reviewColumns)
		reviews = append(reviews, review)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reviews, nil
}

// ListBatches returns the provenance registry ordered by load time.
func (s *Store) ListBatches(ctx context.Context) ([]*models.IngestedBatch, error) {
	rows, err := s.db.QueryContext(ctx, `
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
		var (
			batch    models.IngestedBatch
			loadedAt string
		)
		if err := rows.Scan(&batch.SourceFile, &batch.Entity, &batch.RowCount, &batch.DuplicateCount, &loadedAt); err != nil {
			return nil, fmt.Errorf("scanning batch: %w", err)
		}
		batch.LoadedAt, _ = time.Parse(time.RFC3339, loadedAt)
		batches = append(batches, &batch)
	}
	return batches, rows.Err()
}

// ReplaceAppKPIs replaces the derived app_kpis table wholesale.
func (s *Store) ReplaceAppKPIs(ctx context.Context, kpis []*models.AppKPI) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM app_kpis`); err != nil {
		return fmt.Errorf("clearing app_kpis: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO app_kpis (app_id, title, num_reviews, avg_rating, pct_low_ratings, first_review_date, last_review_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing kpi insert: %w", err)
	}
	defer stmt.Close()

	for _, k := range kpis {
		_, err := stmt.ExecContext(ctx,
			k.AppID, k.Title, k.NumReviews, k.AvgRating, k.PctLowRatings,
			k.FirstReviewDate.Format(models.TimestampLayout),
			k.LastReviewDate.Format(models.TimestampLayout),
		)
		if err != nil {
			return fmt.Errorf("inserting kpi for %s: %w", k.AppID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ListAppKPIs returns the derived per-app metrics ordered by app_id.
func (s *Store) ListAppKPIs(ctx context.Context) ([]*models.AppKPI, error) {
	rows, err := s.db.QueryContext(ctx, `
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
		var (
			k           models.AppKPI
			first, last string
		)
		if err := rows.Scan(&k.AppID, &k.Title, &k.NumReviews, &k.AvgRating, &k.PctLowRatings, &first, &last); err != nil {
			return nil, fmt.Errorf("scanning kpi: %w", err)
		}
		if k.FirstReviewDate, err = time.Parse(models.TimestampLayout, first); err != nil {
			return nil, fmt.Errorf("parsing first_review_date: %w", err)
		}
		if k.LastReviewDate, err = time.Parse(models.TimestampLayout, last); err != nil {
			return nil, fmt.Errorf("parsing last_review_date: %w", err)
		}
		kpis = append(kpis, &k)
	}
	return kpis, rows.Err()
}

// ReplaceDailyMetrics replaces the derived daily_metrics table wholesale.
func (s *Store) ReplaceDailyMetrics(ctx context.Context, metrics []*models.DailyMetric) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM daily_metrics`); err != nil {
		return fmt.Errorf("clearing daily_metrics: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO daily_metrics (date, daily_review_count, daily_avg_rating)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing daily insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range metrics {
		if _, err := stmt.ExecContext(ctx, m.Date, m.DailyReviewCount, m.DailyAvgRating); err != nil {
			return fmt.Errorf("inserting daily metric %s: %w", m.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ListDailyMetrics returns the derived time series ordered by date.
func (s *Store) ListDailyMetrics(ctx context.Context) ([]*models.DailyMetric, error) {
	rows, err := s.db.QueryContext(ctx, `
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
		var m models.DailyMetric
		if err := rows.Scan(&m.Date, &m.DailyReviewCount, &m.DailyAvgRating); err != nil {
			return nil, fmt.Errorf("scanning daily metric: %w", err)
		}
		metrics = append(metrics, &m)
	}
	return metrics, rows.Err()
}

// scanDynamic scans rows with a dynamic column set (canonical tables may
// have grown drifted extra columns) and hands each row to fn as a
// column->value map.
func scanDynamic(rows *sql.Rows, fn func(values map[string]any) error) error {
	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("reading columns: %w", err)
	}

	for rows.Next() {
		raw := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scanning row: %w", err)
		}

		values := make(map[string]any, len(columns))
		for i, col := range columns {
			values[col] = raw[i]
		}
		if err := fn(values); err != nil {
			return err
		}
	}
	return rows.Err()
}

// collectExtras pulls non-base, non-null columns into an extras map.
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
	case []byte:
		return string(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func asInt(v any) int64 {
	switch val := v.(type) {
	case int64:
		return val
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
	case int64:
		return float64(val)
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	default:
		return 0
	}
}
