package parser

import (
	"math"
	"strings"
	"time"

	"github.com/masahif/steamharvest/internal/catalog"
)

// NormalizeAchievements joins the achievement schema of an app with the
// global completion rates. A missing rate counts as 0. Rates are clamped
// to [0, 100] and rounded to 4 decimals.
func NormalizeAchievements(appID int64, schema []catalog.RawAchievement, rates map[string]float64) []catalog.Achievement {
	out := make([]catalog.Achievement, 0, len(schema))
	seen := make(map[string]bool, len(schema))
	for _, a := range schema {
		name := strings.TrimSpace(a.Name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, catalog.Achievement{
			AppID:          appID,
			APIName:        name,
			DisplayName:    SanitizeText(a.DisplayName),
			Description:    SanitizeText(a.Description),
			CompletionRate: roundRate(rates[name]),
		})
	}
	return out
}

func roundRate(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		v = 100
	}
	return math.Round(v*10000) / 10000
}

// NormalizeReviews sanitizes review bodies and drops records that have no
// recommendation id.
func NormalizeReviews(raw []catalog.RawReview) []catalog.Review {
	out := make([]catalog.Review, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, r := range raw {
		id := strings.TrimSpace(string(r.RecommendationID))
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		var created time.Time
		if r.TimestampCreated > 0 {
			created = time.Unix(int64(r.TimestampCreated), 0).UTC()
		}
		out = append(out, catalog.Review{
			RecommendationID:  id,
			AuthorSteamID:     strings.TrimSpace(string(r.Author.SteamID)),
			Language:          r.Language,
			Body:              SanitizeText(r.Review),
			VotedUp:           r.VotedUp,
			VotesUp:           int64(r.VotesUp),
			VotesFunny:        int64(r.VotesFunny),
			WeightedVoteScore: float64(r.WeightedVoteScore),
			CreatedAt:         created,
		})
	}
	return out
}
