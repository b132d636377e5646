package models

import "time"

// AppKPI is one row of the derived per-app metrics table.
// Rebuilt wholesale on every aggregator run.
type AppKPI struct {
	AppID string `json:"app_id"`

	// Title is denormalized from the apps table. Apps missing from the
	// catalog keep their reviews and get the placeholder "Unknown".
	Title string `json:"title"`

	NumReviews int64 `json:"num_reviews"`

	// AvgRating and PctLowRatings are rounded half-up to 2 decimals.
	AvgRating     float64 `json:"avg_rating"`
	PctLowRatings float64 `json:"pct_low_ratings"`

	FirstReviewDate time.Time `json:"first_review_date"`
	LastReviewDate  time.Time `json:"last_review_date"`
}

// DailyMetric is one row of the derived time-series table, keyed by
// calendar date. Dates with no reviews do not appear.
type DailyMetric struct {
	Date             string  `json:"date"`
	DailyReviewCount int64   `json:"daily_review_count"`
	DailyAvgRating   float64 `json:"daily_avg_rating"`
}
