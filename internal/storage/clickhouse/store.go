// Package clickhouse provides a ClickHouse-backed canonical store for
// deployments where the KPI tables are queried by an analytical stack.
package clickhouse

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/fidde/appmarket_pipeline/pkg/models"
)

var (
	appColumns = []string{
		"app_id", "title", "developer", "score", "rating_count",
		"install_count", "genre", "price", "loaded_at", "source_file",
	}
	reviewColumns = []string{
		"review_id", "app_id", "author", "score", "content",
		"helpful_count", "submitted_at", "loaded_at", "source_file",
	}
)

// Store implements the storage.Store interface using ClickHouse.
type Store struct {
	conn   driver.Conn
	logger *slog.Logger

	// ClickHouse has no multi-statement transactions; the merge mutex
	// plus the existing-key filter make a replay after a partial
	// failure converge instead of duplicating rows.
	mergeMu sync.Mutex

	now func() time.Time
}

// NewStore creates a new ClickHouse storage instance.
func NewStore(ctx context.Context, config *ConnectionConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := Connect(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connecting to ClickHouse: %w", err)
	}

	if err := InitializeSchema(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return &Store{conn: conn, logger: logger, now: time.Now}, nil
}

// Close closes the connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

type mergeRow struct {
	key    string
	args   []any
	extras map[string]string
}

// MergeApps merges one normalized app batch under the given provenance
// identifier.
func (s *Store) MergeApps(ctx context.Context, sourceFile string, apps []*models.AppRecord) (*models.MergeResult, error) {
	loadedAt := s.now().UTC()

	rows := make([]mergeRow, 0, len(apps))
	for _, app := range apps {
		rows = append(rows, mergeRow{
			key: app.AppID,
			args: []any{
				app.AppID, app.Title, app.Developer, app.Score, app.RatingCount,
				app.InstallCount, app.Genre, app.Price, loadedAt, sourceFile,
			},
			extras: app.Extras,
		})
	}

	return s.mergeBatch(ctx, "apps", "app_id", appColumns, sourceFile, loadedAt, rows)
}

// MergeReviews merges one normalized review batch under the given
// provenance identifier.
func (s *Store) MergeReviews(ctx context.Context, sourceFile string, reviews []*models.ReviewRecord) (*models.MergeResult, error) {
	loadedAt := s.now().UTC()

	rows := make([]mergeRow, 0, len(reviews))
	for _, r := range reviews {
		rows = append(rows, mergeRow{
			key: r.ReviewID,
			args: []any{
				r.ReviewID, r.AppID, r.Author, r.Score, r.Content,
				r.HelpfulCount, r.SubmittedAt, loadedAt, sourceFile,
			},
			extras: r.Extras,
		})
	}

	return s.mergeBatch(ctx, "reviews", "review_id", reviewColumns, sourceFile, loadedAt, rows)
}

func (s *Store) mergeBatch(ctx context.Context, table, keyColumn string, baseColumns []string, sourceFile string, loadedAt time.Time, rows []mergeRow) (*models.MergeResult, error) {
	s.mergeMu.Lock()
	defer s.mergeMu.Unlock()

	result := &models.MergeResult{SourceFile: sourceFile, Entity: table}

	var ingested uint64
	err := s.conn.QueryRow(ctx,
		"SELECT count() FROM ingested_batches WHERE source_file = ? AND entity = ?",
		sourceFile, table,
	).Scan(&ingested)
	if err != nil {
		return nil, fmt.Errorf("checking batch provenance: %w", err)
	}
	if ingested > 0 {
		result.SkippedAlreadyIngested = true
		return result, nil
	}

	extraColumns, err := s.reconcileColumns(ctx, table, baseColumns, rows)
	if err != nil {
		return nil, err
	}

	existing, err := s.existingKeys(ctx, table, keyColumn, rows)
	if err != nil {
		return nil, err
	}

	columns := append([]string{}, baseColumns...)
	for _, col := range extraColumns {
		columns = append(columns, strconv.Quote(col))
	}
	insertSQL := fmt.Sprintf("INSERT INTO %s (%s)", table, strings.Join(columns, ", "))

	batch, err := s.conn.PrepareBatch(ctx, insertSQL)
	if err != nil {
		return nil, fmt.Errorf("preparing batch insert: %w", err)
	}

	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		if existing[row.key] || seen[row.key] {
			result.DuplicateKeys++
			continue
		}
		seen[row.key] = true

		args := append([]any{}, row.args...)
		for _, col := range extraColumns {
			if v, ok := extraValue(row.extras, col); ok {
				args = append(args, &v)
			} else {
				args = append(args, nil)
			}
		}
		if err := batch.Append(args...); err != nil {
			return nil, fmt.Errorf("appending row to %s batch: %w", table, err)
		}
		result.Inserted++
	}

	if err := batch.Send(); err != nil {
		return nil, fmt.Errorf("sending %s batch: %w", table, err)
	}

	err = s.conn.Exec(ctx,
		"INSERT INTO ingested_batches (source_file, entity, row_count, duplicate_count, loaded_at) VALUES (?, ?, ?, ?, ?)",
		sourceFile, table, result.Inserted, result.DuplicateKeys, loadedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("recording batch provenance: %w", err)
	}

	s.logger.Info("batch merged",
		"table", table,
		"source_file", sourceFile,
		"inserted", result.Inserted,
		"duplicate_keys", result.DuplicateKeys)
	return result, nil
}

// reconcileColumns adds drifted extra columns as Nullable(String) so the
// insert never fails on unknown columns and prior rows read back NULL.
func (s *Store) reconcileColumns(ctx context.Context, table string, baseColumns []string, rows []mergeRow) ([]string, error) {
	base := make(map[string]bool, len(baseColumns))
	for _, c := range baseColumns {
		base[c] = true
	}

	wanted := make(map[string]bool)
	for _, row := range rows {
		for key := range row.extras {
			col, ok := safeColumnName(key, baseColumns)
			if !ok || base[col] {
				continue
			}
			wanted[col] = true
		}
	}
	if len(wanted) == 0 {
		return nil, nil
	}

	columns := make([]string, 0, len(wanted))
	for col := range wanted {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	for _, col := range columns {
		ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %q Nullable(String)", table, col)
		if err := s.conn.Exec(ctx, ddl); err != nil {
			return nil, fmt.Errorf("adding column %s to %s: %w", col, table, err)
		}
	}
	return columns, nil
}

// safeColumnName sanitizes a drifted key into a usable column identifier.
// A sanitized name colliding with a base column gets a "batch_" prefix so
// canonical columns are never shadowed.
func safeColumnName(name string, baseColumns []string) (string, bool) {
	var b strings.Builder
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	col := b.String()
	if col == "" {
		return "", false
	}
	for _, base := range baseColumns {
		if col == base {
			return "batch_" + col, true
		}
	}
	return col, true
}

// extraValue looks up the extras value feeding a sanitized column.
func extraValue(extras map[string]string, column string) (string, bool) {
	if v, ok := extras[column]; ok {
		return v, true
	}
	for key, v := range extras {
		if col, ok := safeColumnName(key, nil); ok && (col == column || "batch_"+col == column) {
			return v, true
		}
	}
	return "", false
}

// existingKeys returns the batch keys that already exist in the table.
func (s *Store) existingKeys(ctx context.Context, table, keyColumn string, rows []mergeRow) (map[string]bool, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, row.key)
	}

	query := fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IN (?)", keyColumn, table, keyColumn)
	result, err := s.conn.Query(ctx, query, keys)
	if err != nil {
		return nil, fmt.Errorf("querying existing keys: %w", err)
	}
	defer result.Close()

	existing := make(map[string]bool)
	for result.Next() {
		var key string
		if err := result.Scan(&key); err != nil {
			return nil, fmt.Errorf("scanning existing key: %w", err)
		}
		existing[key] = true
	}
	return existing, result.Err()
}
