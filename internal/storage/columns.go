package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/masahif/steamharvest/internal/catalog"
)

// ErrEmptyName is returned when a lookup entity name is blank
var ErrEmptyName = errors.New("lookup name cannot be empty")

// ErrUnknownDimension is returned for a dimension without tables
var ErrUnknownDimension = errors.New("unknown lookup dimension")

// appColumns is the insert column order of the apps table
var appColumns = []string{
	"id", "type", "name", "parent_id", "release_date", "price",
	"positive_reviews", "negative_reviews", "recommendations", "peak_ccu",
	"metacritic_score", "metacritic_url", "required_age", "achievements_count",
	"supports_windows", "supports_mac", "supports_linux",
	"header_image_url", "website_url", "estimated_owners", "user_score", "score_rank",
	"about_the_game", "detailed_description", "short_description", "reviews_summary",
	"updated_at",
}

// appArgs returns the values of app in appColumns order
func appArgs(app *catalog.App, now time.Time) []any {
	return []any{
		app.ID, string(app.Kind), app.Name, nullInt(app.ParentID), nullString(app.ReleaseDate), app.Price,
		app.PositiveReviews, app.NegativeReviews, app.Recommendations, app.PeakCCU,
		app.MetacriticScore, nullString(app.MetacriticURL), app.RequiredAge, app.AchievementsCount,
		app.SupportsWindows, app.SupportsMac, app.SupportsLinux,
		nullString(app.HeaderImageURL), nullString(app.WebsiteURL), nullString(app.EstimatedOwners), app.UserScore, nullString(app.ScoreRank),
		app.AboutTheGame, app.DetailedDescription, app.ShortDescription, app.ReviewsSummary,
		now,
	}
}

// upsertAppSQL builds the apps upsert for a placeholder style. parent_id
// keeps the stored value when the new row carries none.
func upsertAppSQL(placeholder func(i int) string) string {
	values := make([]string, len(appColumns))
	var updates []string
	for i, col := range appColumns {
		values[i] = placeholder(i + 1)
		switch col {
		case "id":
		case "parent_id":
			updates = append(updates, "parent_id = COALESCE(excluded.parent_id, apps.parent_id)")
		default:
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", col, col))
		}
	}
	return fmt.Sprintf("INSERT INTO apps (%s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET %s",
		strings.Join(appColumns, ", "), strings.Join(values, ", "), strings.Join(updates, ", "))
}

func tableFor(dim catalog.Dimension) (dimensionTable, error) {
	t, ok := dimensionTables[dim]
	if !ok {
		return dimensionTable{}, fmt.Errorf("%w: %s", ErrUnknownDimension, dim)
	}
	return t, nil
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
