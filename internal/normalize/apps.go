// Package normalize cleans raw heterogeneous batch records into canonical
// records. Parse failures on optional fields substitute documented
// defaults; failures on load-bearing fields (natural key, review
// timestamp, review score range) drop the record and count it.
package normalize

import (
	"github.com/fidde/appmarket_pipeline/pkg/models"
)

// DropCounts breaks down why records were rejected during one
// normalization pass.
type DropCounts struct {
	MissingKey       int64
	BadTimestamp     int64
	InvalidScore     int64
	DuplicateInBatch int64
}

// Total returns the number of rejected records.
func (d DropCounts) Total() int64 {
	return d.MissingKey + d.BadTimestamp + d.InvalidScore + d.DuplicateInBatch
}

// appFields is the canonical wire-column set for app catalog batches.
// Anything else is preserved as an extra column.
var appFields = map[string]bool{
	"appId":     true,
	"title":     true,
	"developer": true,
	"score":     true,
	"ratings":   true,
	"installs":  true,
	"genre":     true,
	"price":     true,
}

// Apps normalizes one batch of raw app catalog records. Records must
// already be alias-resolved. The first occurrence of an appId wins;
// later duplicates in the same batch are dropped.
func Apps(records []map[string]any) ([]*models.AppRecord, DropCounts) {
	var drops DropCounts
	seen := make(map[string]bool, len(records))
	apps := make([]*models.AppRecord, 0, len(records))

	for _, raw := range records {
		appID, err := String(raw["appId"])
		if err != nil {
			drops.MissingKey++
			continue
		}
		if seen[appID] {
			drops.DuplicateInBatch++
			continue
		}
		seen[appID] = true

		app := &models.AppRecord{
			AppID:        appID,
			Title:        Stringify(raw["title"]),
			Developer:    "Unknown",
			InstallCount: InstallCount(raw["installs"]),
			Genre:        "Unknown",
			Price:        Price(raw["price"]),
		}

		if dev, err := String(raw["developer"]); err == nil {
			app.Developer = dev
		}
		if score, err := Float(raw["score"]); err == nil {
			app.Score = score
		}
		if ratings, err := Int(raw["ratings"]); err == nil && ratings >= 0 {
			app.RatingCount = ratings
		}
		// Genre may arrive as a list; serialize rather than reject.
		if raw["genre"] != nil {
			if g := Stringify(raw["genre"]); g != "" {
				app.Genre = g
			}
		}

		app.Extras = extras(raw, appFields)
		apps = append(apps, app)
	}

	return apps, drops
}

// extras collects stringified values for columns outside the canonical set.
func extras(raw map[string]any, canonical map[string]bool) map[string]string {
	var out map[string]string
	for key, value := range raw {
		if canonical[key] {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[key] = Stringify(value)
	}
	return out
}
