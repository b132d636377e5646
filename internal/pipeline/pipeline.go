// Package pipeline orchestrates one ingestion run: read batches,
// resolve schema drift, normalize, merge into the canonical store, and
// rebuild the derived tables.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fidde/appmarket_pipeline/internal/aggregate"
	"github.com/fidde/appmarket_pipeline/internal/ingest"
	"github.com/fidde/appmarket_pipeline/internal/metrics"
	"github.com/fidde/appmarket_pipeline/internal/normalize"
	"github.com/fidde/appmarket_pipeline/internal/schema"
	"github.com/fidde/appmarket_pipeline/internal/storage"
	"github.com/fidde/appmarket_pipeline/pkg/models"
)

const (
	entityApps    = "apps"
	entityReviews = "reviews"
)

// Inputs names the batch sources for one run. Empty fields are skipped.
type Inputs struct {
	AppsFile    string
	ReviewsFile string
	BatchDir    string
}

// Options configures optional pipeline collaborators.
type Options struct {
	AppAliases    *schema.AliasTable
	ReviewAliases *schema.AliasTable
	Metrics       *metrics.Registry
	Logger        *slog.Logger
}

// Pipeline drives batches from files into a canonical store.
type Pipeline struct {
	store         storage.Store
	appAliases    *schema.AliasTable
	reviewAliases *schema.AliasTable
	metrics       *metrics.Registry
	logger        *slog.Logger
}

// New creates a pipeline over the given store. Nil options fall back to
// built-in alias tables, a fresh metrics registry, and the default logger.
func New(store storage.Store, opts Options) *Pipeline {
	p := &Pipeline{
		store:         store,
		appAliases:    opts.AppAliases,
		reviewAliases: opts.ReviewAliases,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
	}
	if p.appAliases == nil {
		p.appAliases = schema.DefaultAppAliases()
	}
	if p.reviewAliases == nil {
		p.reviewAliases = schema.DefaultReviewAliases()
	}
	if p.metrics == nil {
		p.metrics = metrics.NewRegistry()
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// BatchSummary reports the outcome of one batch file.
type BatchSummary struct {
	SourceFile string               `json:"source_file"`
	Entity     string               `json:"entity"`
	RawRecords int64                `json:"raw_records"`
	Malformed  int64                `json:"malformed"`
	Renames    int64                `json:"renames"`
	Drops      normalize.DropCounts `json:"drops"`
	Merge      *models.MergeResult `json:"merge,omitempty"`

	// MissingFile is true when the source file did not exist; the
	// batch was skipped and the run continued.
	MissingFile bool `json:"missing_file,omitempty"`
}

// Summary reports one full pipeline run.
type Summary struct {
	Batches      []BatchSummary `json:"batches"`
	AppKPIs      int            `json:"app_kpis"`
	DailyMetrics int            `json:"daily_metrics"`
	Duration     time.Duration  `json:"duration"`
}

// Run ingests every named input and rebuilds the derived tables.
// The one fatal aggregation condition is a store with no reviews at
// all; that surfaces as models.ErrEmptyStore.
func (p *Pipeline) Run(ctx context.Context, inputs Inputs) (*Summary, error) {
	start := time.Now()
	summary := &Summary{}

	if inputs.AppsFile != "" {
		if err := p.ingestFile(ctx, inputs.AppsFile, entityApps, summary); err != nil {
			return nil, err
		}
	}
	if inputs.ReviewsFile != "" {
		if err := p.ingestFile(ctx, inputs.ReviewsFile, entityReviews, summary); err != nil {
			return nil, err
		}
	}
	if inputs.BatchDir != "" {
		files, err := ingest.ListBatchFiles(inputs.BatchDir)
		if err != nil {
			return nil, err
		}
		for _, file := range files {
			if err := p.ingestFile(ctx, file, "", summary); err != nil {
				return nil, err
			}
		}
	}

	kpis, daily, err := p.Aggregate(ctx)
	if err != nil {
		return nil, err
	}
	summary.AppKPIs = kpis
	summary.DailyMetrics = daily
	summary.Duration = time.Since(start)

	p.logger.Info("pipeline run complete",
		"batches", len(summary.Batches),
		"app_kpis", summary.AppKPIs,
		"daily_metrics", summary.DailyMetrics,
		"duration", summary.Duration)

	return summary, nil
}

// ingestFile runs one batch file through alias resolution, normalization
// and merge. An empty entity is inferred from the batch contents.
func (p *Pipeline) ingestFile(ctx context.Context, path, entity string, summary *Summary) error {
	batch, err := ingest.ReadBatch(path)
	if errors.Is(err, os.ErrNotExist) {
		p.logger.Warn("batch file missing, skipping", "file", path)
		summary.Batches = append(summary.Batches, BatchSummary{
			SourceFile:  path,
			Entity:      entity,
			MissingFile: true,
		})
		return nil
	}
	if err != nil {
		return err
	}

	bs := BatchSummary{
		SourceFile: batch.SourceFile,
		Entity:     entity,
		RawRecords: int64(len(batch.Records)),
		Malformed:  batch.Malformed,
	}

	if bs.Entity == "" {
		bs.Entity = inferEntity(batch.Records)
	}
	if bs.Entity == "" {
		p.logger.Warn("cannot infer batch entity, skipping",
			"file", batch.SourceFile, "records", len(batch.Records))
		summary.Batches = append(summary.Batches, bs)
		return nil
	}

	resolved, renames := p.resolveAliases(batch.Records, bs.Entity)
	bs.Renames = renames

	mergeStart := time.Now()
	var result *models.MergeResult
	switch bs.Entity {
	case entityApps:
		apps, drops := normalize.Apps(resolved)
		bs.Drops = drops
		p.recordDrops(entityApps, drops)
		p.metrics.RowsIngested.WithLabelValues(entityApps).Add(float64(len(apps)))
		result, err = p.store.MergeApps(ctx, batch.SourceFile, apps)
	case entityReviews:
		reviews, drops := normalize.Reviews(resolved)
		bs.Drops = drops
		p.recordDrops(entityReviews, drops)
		p.metrics.RowsIngested.WithLabelValues(entityReviews).Add(float64(len(reviews)))
		result, err = p.store.MergeReviews(ctx, batch.SourceFile, reviews)
	}
	if err != nil {
		return fmt.Errorf("merging %s: %w", batch.SourceFile, err)
	}
	p.metrics.MergeSec.Observe(time.Since(mergeStart).Seconds())

	bs.Merge = result
	if result.SkippedAlreadyIngested {
		p.metrics.BatchesSkipped.Inc()
		p.logger.Info("batch already ingested, skipped",
			"file", batch.SourceFile, "entity", bs.Entity)
	} else {
		p.metrics.BatchesMerged.Inc()
		p.metrics.DuplicateKeys.Add(float64(result.DuplicateKeys))
		p.logger.Info("batch merged",
			"file", batch.SourceFile,
			"entity", bs.Entity,
			"raw", bs.RawRecords,
			"inserted", result.Inserted,
			"duplicate_keys", result.DuplicateKeys,
			"dropped", bs.Drops.Total(),
			"renames", bs.Renames)
	}

	summary.Batches = append(summary.Batches, bs)
	return nil
}

func (p *Pipeline) recordDrops(entity string, drops normalize.DropCounts) {
	p.metrics.RowsDropped.WithLabelValues(entity, "missing_key").Add(float64(drops.MissingKey))
	p.metrics.RowsDropped.WithLabelValues(entity, "bad_timestamp").Add(float64(drops.BadTimestamp))
	p.metrics.RowsDropped.WithLabelValues(entity, "invalid_score").Add(float64(drops.InvalidScore))
	p.metrics.RowsDropped.WithLabelValues(entity, "duplicate_in_batch").Add(float64(drops.DuplicateInBatch))
}

// resolveAliases maps drifted column names to canonical ones across one
// batch using the entity's alias table.
func (p *Pipeline) resolveAliases(records []map[string]any, entity string) ([]map[string]any, int64) {
	table := p.appAliases
	if entity == entityReviews {
		table = p.reviewAliases
	}

	resolved := make([]map[string]any, 0, len(records))
	var total int64
	for _, record := range records {
		record, renames := table.Resolve(record)
		for _, r := range renames {
			p.logger.Debug("alias resolved", "from", r.From, "to", r.To)
		}
		total += int64(len(renames))
		resolved = append(resolved, record)
	}
	return resolved, total
}

// inferEntity decides what a directory-scanned batch contains by looking
// for keys only one entity carries. Resolution happens afterwards, so
// drifted spellings of the distinguishing keys count too.
func inferEntity(records []map[string]any) string {
	reviewMarkers := []string{"reviewId", "review_id", "content", "review_text", "userName", "user_name", "thumbsUpCount"}
	appMarkers := []string{"appId", "title", "app_name", "developer", "installs", "install_count", "downloads"}

	for _, record := range records {
		for _, key := range reviewMarkers {
			if _, ok := record[key]; ok {
				return entityReviews
			}
		}
		for _, key := range appMarkers {
			if _, ok := record[key]; ok {
				return entityApps
			}
		}
	}
	return ""
}

// Aggregate rebuilds both derived tables from the canonical store.
// Returns the row counts written.
func (p *Pipeline) Aggregate(ctx context.Context) (int, int, error) {
	start := time.Now()

	reviews, err := p.store.ListReviews(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("listing reviews: %w", err)
	}
	if len(reviews) == 0 {
		return 0, 0, fmt.Errorf("aggregating: %w", models.ErrEmptyStore)
	}

	apps, err := p.store.ListApps(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("listing apps: %w", err)
	}

	kpis := aggregate.AppKPIs(reviews, apps)
	if err := p.store.ReplaceAppKPIs(ctx, kpis); err != nil {
		return 0, 0, fmt.Errorf("replacing app KPIs: %w", err)
	}

	daily := aggregate.DailyMetrics(reviews)
	if err := p.store.ReplaceDailyMetrics(ctx, daily); err != nil {
		return 0, 0, fmt.Errorf("replacing daily metrics: %w", err)
	}

	p.metrics.AggregateSec.Observe(time.Since(start).Seconds())
	p.metrics.LastRunUnix.SetToCurrentTime()

	return len(kpis), len(daily), nil
}
