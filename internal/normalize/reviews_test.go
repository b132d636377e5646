package normalize

import (
	"testing"
)

func TestReviewsCanonicalRow(t *testing.T) {
	reviews, drops := Reviews([]map[string]any{
		{
			"reviewId":      "r1",
			"app_id":        "a1",
			"userName":      "alex",
			"score":         float64(4),
			"content":       "does the job",
			"thumbsUpCount": float64(3),
			"at":            "2024-03-01 10:30:00",
		},
	})

	if drops.Total() != 0 {
		t.Fatalf("expected no drops, got %+v", drops)
	}
	if len(reviews) != 1 {
		t.Fatalf("expected 1 review, got %d", len(reviews))
	}

	r := reviews[0]
	if r.ReviewID != "r1" || r.AppID != "a1" {
		t.Errorf("unexpected keys: %s/%s", r.ReviewID, r.AppID)
	}
	if r.Score != 4 {
		t.Errorf("expected score 4, got %d", r.Score)
	}
	if r.HelpfulCount != 3 {
		t.Errorf("expected helpful_count 3, got %d", r.HelpfulCount)
	}
	if r.SubmittedAt.Format("2006-01-02 15:04:05") != "2024-03-01 10:30:00" {
		t.Errorf("unexpected submitted_at %v", r.SubmittedAt)
	}
}

func TestReviewsDefaults(t *testing.T) {
	reviews, _ := Reviews([]map[string]any{
		{"reviewId": "r1", "score": float64(5), "at": "2024-03-01"},
	})

	if len(reviews) != 1 {
		t.Fatalf("expected 1 review, got %d", len(reviews))
	}
	if reviews[0].Author != "Anonymous" {
		t.Errorf("expected default author Anonymous, got %s", reviews[0].Author)
	}
	if reviews[0].Content != "" {
		t.Errorf("expected empty content default, got %q", reviews[0].Content)
	}
	if reviews[0].HelpfulCount != 0 {
		t.Errorf("expected helpful_count 0, got %d", reviews[0].HelpfulCount)
	}
}

func TestReviewsScoreGate(t *testing.T) {
	reviews, drops := Reviews([]map[string]any{
		{"reviewId": "r1", "score": float64(0), "at": "2024-03-01"},
		{"reviewId": "r2", "score": float64(6), "at": "2024-03-01"},
		{"reviewId": "r3", "score": "not a number", "at": "2024-03-01"},
		{"reviewId": "r4", "score": float64(1), "at": "2024-03-01"},
		{"reviewId": "r5", "score": float64(5), "at": "2024-03-01"},
	})

	if len(reviews) != 2 {
		t.Fatalf("expected 2 admitted reviews, got %d", len(reviews))
	}
	if drops.InvalidScore != 3 {
		t.Errorf("expected 3 invalid-score drops, got %d", drops.InvalidScore)
	}
	for _, r := range reviews {
		if r.Score < 1 || r.Score > 5 {
			t.Errorf("admitted review %s has out-of-range score %d", r.ReviewID, r.Score)
		}
	}
}

func TestReviewsBadTimestampDropped(t *testing.T) {
	reviews, drops := Reviews([]map[string]any{
		{"reviewId": "r1", "score": float64(4), "at": "last tuesday"},
		{"reviewId": "r2", "score": float64(4)},
		{"reviewId": "r3", "score": float64(4), "at": map[string]any{"$date": float64(1709288000000)}},
	})

	if len(reviews) != 1 {
		t.Fatalf("expected 1 review, got %d", len(reviews))
	}
	if reviews[0].ReviewID != "r3" {
		t.Errorf("expected r3 to survive, got %s", reviews[0].ReviewID)
	}
	if drops.BadTimestamp != 2 {
		t.Errorf("expected 2 bad-timestamp drops, got %d", drops.BadTimestamp)
	}
}

func TestReviewsDuplicateKeyFirstWins(t *testing.T) {
	reviews, drops := Reviews([]map[string]any{
		{"reviewId": "r1", "score": float64(5), "content": "first", "at": "2024-03-01"},
		{"reviewId": "r1", "score": float64(1), "content": "second", "at": "2024-03-02"},
	})

	if len(reviews) != 1 {
		t.Fatalf("expected 1 review after dedup, got %d", len(reviews))
	}
	if reviews[0].Content != "first" {
		t.Errorf("expected first occurrence to win, got %q", reviews[0].Content)
	}
	if drops.DuplicateInBatch != 1 {
		t.Errorf("expected 1 duplicate drop, got %d", drops.DuplicateInBatch)
	}
}

func TestReviewsMissingKeyDropped(t *testing.T) {
	reviews, drops := Reviews([]map[string]any{
		{"score": float64(5), "at": "2024-03-01"},
	})

	if len(reviews) != 0 {
		t.Fatalf("expected 0 reviews, got %d", len(reviews))
	}
	if drops.MissingKey != 1 {
		t.Errorf("expected 1 missing-key drop, got %d", drops.MissingKey)
	}
}
