// Package models defines the canonical record types for the app-market
// analytics pipeline.
//
// Raw batches are normalized into these shapes before they reach storage;
// the derived KPI types are rebuilt wholesale by the aggregator on every run.
package models

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested item is not found.
// Storage implementations wrap this error when an item doesn't exist.
var ErrNotFound = errors.New("not found")

// ErrEmptyStore is returned when the aggregator is invoked against a store
// with no canonical reviews. KPI computation over nothing is meaningless,
// so this is the one fatal condition in the core.
var ErrEmptyStore = errors.New("canonical store is empty")

// TimestampLayout is the canonical storage format for review timestamps.
const TimestampLayout = "2006-01-02 15:04:05"

// DateLayout is the calendar-date format used by daily metrics.
const DateLayout = "2006-01-02"

// AppRecord is one canonical row of the apps table.
// AppID is the natural key; at most one row per AppID survives a merge.
type AppRecord struct {
	AppID        string  `json:"app_id"`
	Title        string  `json:"title"`
	Developer    string  `json:"developer"`
	Score        float64 `json:"score"`
	RatingCount  int64   `json:"rating_count"`
	InstallCount int64   `json:"install_count"`
	Genre        string  `json:"genre"`
	Price        float64 `json:"price"`

	// Provenance, stamped at merge time.
	LoadedAt   time.Time `json:"loaded_at"`
	SourceFile string    `json:"source_file"`

	// Extras holds columns the alias table doesn't recognize. They are
	// preserved additively in the store, never rejected.
	Extras map[string]string `json:"extras,omitempty"`
}

// ReviewRecord is one canonical row of the reviews table.
// ReviewID is the natural key. Score is guaranteed to be in [1,5] and
// SubmittedAt is guaranteed parseable; rows failing either gate never
// leave the normalizer.
type ReviewRecord struct {
	ReviewID     string    `json:"review_id"`
	AppID        string    `json:"app_id"`
	Author       string    `json:"author"`
	Score        int64     `json:"score"`
	Content      string    `json:"content"`
	HelpfulCount int64     `json:"helpful_count"`
	SubmittedAt  time.Time `json:"submitted_at"`

	LoadedAt   time.Time `json:"loaded_at"`
	SourceFile string    `json:"source_file"`

	Extras map[string]string `json:"extras,omitempty"`
}

// MergeResult reports the structured outcome of one batch merge.
// A re-ingested batch is a success-no-op, not an error.
type MergeResult struct {
	SourceFile string `json:"source_file"`
	Entity     string `json:"entity"`

	// SkippedAlreadyIngested is true when the batch's provenance
	// identifier was already recorded and nothing was merged.
	SkippedAlreadyIngested bool `json:"skipped_already_ingested"`

	// Inserted is the number of rows added to the canonical table.
	Inserted int64 `json:"inserted"`

	// DuplicateKeys is the number of incoming rows whose natural key
	// already existed; the earlier-loaded row was kept.
	DuplicateKeys int64 `json:"duplicate_keys"`
}

// IngestedBatch records the provenance of one fully merged batch.
// A source file listed here is never merged again.
type IngestedBatch struct {
	SourceFile     string    `json:"source_file"`
	Entity         string    `json:"entity"`
	RowCount       int64     `json:"row_count"`
	DuplicateCount int64     `json:"duplicate_count"`
	LoadedAt       time.Time `json:"loaded_at"`
}
