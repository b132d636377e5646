package normalize

import (
	"github.com/fidde/appmarket_pipeline/pkg/models"
)

// reviewFields is the canonical wire-column set for review batches.
var reviewFields = map[string]bool{
	"reviewId":      true,
	"app_id":        true,
	"userName":      true,
	"score":         true,
	"content":       true,
	"thumbsUpCount": true,
	"at":            true,
}

// Reviews normalizes one batch of raw review records. Records must
// already be alias-resolved. Three gates drop records outright:
// a missing reviewId (can never be deduplicated across batches), an
// unparseable timestamp (load-bearing for the time series), and a score
// outside [1,5] after coercion. The first occurrence of a reviewId wins
// within the batch.
func Reviews(records []map[string]any) ([]*models.ReviewRecord, DropCounts) {
	var drops DropCounts
	seen := make(map[string]bool, len(records))
	reviews := make([]*models.ReviewRecord, 0, len(records))

	for _, raw := range records {
		reviewID, err := String(raw["reviewId"])
		if err != nil {
			drops.MissingKey++
			continue
		}

		submittedAt, err := Timestamp(raw["at"])
		if err != nil {
			drops.BadTimestamp++
			continue
		}

		score, err := Int(raw["score"])
		if err != nil || score < 1 || score > 5 {
			drops.InvalidScore++
			continue
		}

		if seen[reviewID] {
			drops.DuplicateInBatch++
			continue
		}
		seen[reviewID] = true

		review := &models.ReviewRecord{
			ReviewID:    reviewID,
			AppID:       Stringify(raw["app_id"]),
			Author:      "Anonymous",
			Score:       score,
			SubmittedAt: submittedAt,
		}

		if author, err := String(raw["userName"]); err == nil {
			review.Author = author
		}
		if content, err := String(raw["content"]); err == nil {
			review.Content = content
		}
		if thumbs, err := Int(raw["thumbsUpCount"]); err == nil && thumbs >= 0 {
			review.HelpfulCount = thumbs
		}

		review.Extras = extras(raw, reviewFields)
		reviews = append(reviews, review)
	}

	return reviews, drops
}
