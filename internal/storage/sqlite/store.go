// Package sqlite provides the durable, SQLite-backed canonical store.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fidde/appmarket_pipeline/pkg/models"
	_ "modernc.org/sqlite"
)

//go:embed migrations/001_initial_schema.up.sql
var migrationSQL string

// Base column sets per entity table. Columns outside these sets were
// added at merge time to preserve drifted batch columns.
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

// Store is a SQLite-backed canonical store.
type Store struct {
	db *sql.DB

	// mergeMu serializes merge sections; reads of committed tables
	// stay concurrent.
	mergeMu sync.Mutex

	now func() time.Time
}

// Config holds SQLite store configuration.
type Config struct {
	DBPath string
}

// DefaultConfig returns default SQLite configuration.
func DefaultConfig(dbPath string) Config {
	return Config{DBPath: dbPath}
}

// New opens (or creates) the store at the configured path.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	if _, err := db.Exec(migrationSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the store and releases resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// MergeApps merges one normalized app batch under the given provenance
// identifier. Re-merging an already-ingested source file is a no-op.
func (s *Store) MergeApps(ctx context.Context, sourceFile string, apps []*models.AppRecord) (*models.MergeResult, error) {
	loadedAt := s.now().UTC()

	rows := make([]mergeRow, 0, len(apps))
	for _, app := range apps {
		rows = append(rows, mergeRow{
			values: map[string]any{
				"app_id":        app.AppID,
				"title":         app.Title,
				"developer":     app.Developer,
				"score":         app.Score,
				"rating_count":  app.RatingCount,
				"install_count": app.InstallCount,
				"genre":         app.Genre,
				"price":         app.Price,
				"loaded_at":     loadedAt.Format(time.RFC3339),
				"source_file":   sourceFile,
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
			values: map[string]any{
				"review_id":     r.ReviewID,
				"app_id":        r.AppID,
				"author":        r.Author,
				"score":         r.Score,
				"content":       r.Content,
				"helpful_count": r.HelpfulCount,
				"submitted_at":  r.SubmittedAt.Format(models.TimestampLayout),
				"loaded_at":     loadedAt.Format(time.RFC3339),
				"source_file":   sourceFile,
			},
			extras: r.Extras,
		})
	}

	return s.mergeBatch(ctx, "reviews", "review_id", reviewColumns, sourceFile, loadedAt, rows)
}

// mergeRow is one canonical row plus its drifted extra columns.
type mergeRow struct {
	values map[string]any
	extras map[string]string
}

// mergeBatch runs the full merge section for one batch in a single
// transaction: provenance check, extra-column reconciliation, first-wins
// key dedup, provenance record. Either everything commits or nothing does.
func (s *Store) mergeBatch(ctx context.Context, table, keyColumn string, baseColumns []string, sourceFile string, loadedAt time.Time, rows []mergeRow) (*models.MergeResult, error) {
	s.mergeMu.Lock()
	defer s.mergeMu.Unlock()

	result := &models.MergeResult{SourceFile: sourceFile, Entity: table}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var ingested int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ingested_batches WHERE source_file = ? AND entity = ?`,
		sourceFile, table,
	).Scan(&ingested)
	if err != nil {
		return nil, fmt.Errorf("checking batch provenance: %w", err)
	}
	if ingested > 0 {
		result.SkippedAlreadyIngested = true
		return result, nil
	}

	extraColumns, err := s.reconcileColumns(ctx, tx, table, baseColumns, rows)
	if err != nil {
		return nil, err
	}

	columns := append(append([]string{}, baseColumns...), extraColumns...)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	insertSQL := fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO NOTHING`,
		table, quoteJoin(columns), placeholders, keyColumn,
	)

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return nil, fmt.Errorf("preparing merge insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		args := make([]any, 0, len(columns))
		for _, col := range baseColumns {
			args = append(args, row.values[col])
		}
		for _, col := range extraColumns {
			args = append(args, extraValue(row.extras, col))
		}

		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return nil, fmt.Errorf("merging row into %s: %w", table, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("merge rows affected: %w", err)
		}
		if affected > 0 {
			result.Inserted++
		} else {
			result.DuplicateKeys++
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO ingested_batches (source_file, entity, row_count, duplicate_count, loaded_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sourceFile, table, result.Inserted, result.DuplicateKeys, loadedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("recording batch provenance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return result, nil
}

// reconcileColumns adds any extra columns present in the batch but not
// yet in the table. ALTER TABLE ADD COLUMN backfills NULL for prior rows,
// so the merge never fails on missing columns. Returns the sorted extra
// column names used by this batch.
func (s *Store) reconcileColumns(ctx context.Context, tx *sql.Tx, table string, baseColumns []string, rows []mergeRow) ([]string, error) {
	wanted := make(map[string]string) // sanitized column -> extras key
	for _, row := range rows {
		for key := range row.extras {
			col, ok := safeColumnName(key, baseColumns)
			if !ok {
				continue
			}
			wanted[col] = key
		}
	}
	if len(wanted) == 0 {
		return nil, nil
	}

	existing, err := tableColumns(ctx, tx, table)
	if err != nil {
		return nil, err
	}

	columns := make([]string, 0, len(wanted))
	for col := range wanted {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	for _, col := range columns {
		if existing[col] {
			continue
		}
		alter := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %q TEXT`, table, col)
		if _, err := tx.ExecContext(ctx, alter); err != nil {
			return nil, fmt.Errorf("adding column %s to %s: %w", col, table, err)
		}
	}
	return columns, nil
}

// tableColumns returns the current column set of a table.
func tableColumns(ctx context.Context, tx *sql.Tx, table string) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return nil, fmt.Errorf("reading table info for %s: %w", table, err)
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var (
			cid         int
			name, ctype string
			notNull     int
			dflt        sql.NullString
			pk          int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scanning table info: %w", err)
		}
		columns[name] = true
	}
	return columns, rows.Err()
}

// safeColumnName sanitizes a drifted column name into a valid SQL
// identifier. Names colliding with a base column get a batch_ prefix so
// provenance and canonical columns can't be clobbered.
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
func extraValue(extras map[string]string, column string) any {
	if v, ok := extras[column]; ok {
		return v
	}
	// The column name may have been sanitized or prefixed; fall back to
	// a scan for the matching raw key.
	for key, v := range extras {
		if col, ok := safeColumnName(key, nil); ok && (col == column || "batch_"+col == column) {
			return v
		}
	}
	return nil
}

func quoteJoin(columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = strconv.Quote(c)
	}
	return strings.Join(quoted, ", ")
}
