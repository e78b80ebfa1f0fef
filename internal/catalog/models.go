// Package catalog defines the domain types shared by the source client, the
// normalizer, the stores and the crawl loop.
package catalog

import (
	"strings"
	"time"
)

// Kind is the upstream app type
type Kind string

const (
	KindGame Kind = "game" // primary item
	KindDLC  Kind = "dlc"  // addon of a game
)

// Supported reports whether apps of this kind are normalized and stored
func (k Kind) Supported() bool {
	return k == KindGame || k == KindDLC
}

// Status is a label in the processing-status ledger
type Status string

const (
	StatusSuccess     Status = "success"
	StatusUnavailable Status = "unavailable"
	// StatusFailed marks an app whose write was rolled back. It is not
	// counted as processed, so the next run picks the app up again.
	StatusFailed Status = "failed"

	skippedPrefix = "skipped: "
)

// SkippedStatus returns the ledger label for an unsupported kind
func SkippedStatus(kind string) Status {
	if kind == "" {
		kind = "unknown"
	}
	return Status(skippedPrefix + kind)
}

// Skipped reports whether the status records an unsupported kind
func (s Status) Skipped() bool {
	return strings.HasPrefix(string(s), skippedPrefix)
}

// Dimension names a lookup table
type Dimension string

const (
	DimDeveloper Dimension = "developer"
	DimPublisher Dimension = "publisher"
	DimCategory  Dimension = "category"
	DimGenre     Dimension = "genre"
	DimLanguage  Dimension = "language"
	DimTag       Dimension = "tag"
)

// Dimensions lists every lookup dimension in write order
func Dimensions() []Dimension {
	return []Dimension{DimDeveloper, DimPublisher, DimCategory, DimGenre, DimLanguage, DimTag}
}

// App is one row of the apps table
type App struct {
	ID                  int64
	Kind                Kind
	Name                string
	ParentID            int64  // Base game for DLC, 0 when unset
	ReleaseDate         string // YYYY-MM-DD, empty when unknown
	Price               float64
	PositiveReviews     int64
	NegativeReviews     int64
	Recommendations     int64
	PeakCCU             int64
	MetacriticScore     int64
	MetacriticURL       string
	RequiredAge         int64
	AchievementsCount   int64
	SupportsWindows     bool
	SupportsMac         bool
	SupportsLinux       bool
	HeaderImageURL      string
	WebsiteURL          string
	EstimatedOwners     string // Range such as "20000 .. 50000"
	UserScore           int64
	ScoreRank           string
	AboutTheGame        string
	DetailedDescription string
	ShortDescription    string
	ReviewsSummary      string
}

// Record is the normalized form of one app payload
type Record struct {
	App       App
	ParentID  int64                  // Forward reference to the base game, 0 when none
	Names     map[Dimension][]string // Entity names per dimension (tags excluded)
	FullAudio map[string]bool        // Languages with full audio support
	Tags      map[string]int64       // Tag name to vote weight
}

// Fields returns the scalar attributes keyed by column name
func (r *Record) Fields() map[string]any {
	a := r.App
	return map[string]any{
		"id":                   a.ID,
		"type":                 string(a.Kind),
		"name":                 a.Name,
		"parent_id":            r.ParentID,
		"release_date":         a.ReleaseDate,
		"price":                a.Price,
		"positive_reviews":     a.PositiveReviews,
		"negative_reviews":     a.NegativeReviews,
		"recommendations":      a.Recommendations,
		"peak_ccu":             a.PeakCCU,
		"metacritic_score":     a.MetacriticScore,
		"metacritic_url":       a.MetacriticURL,
		"required_age":         a.RequiredAge,
		"achievements_count":   a.AchievementsCount,
		"supports_windows":     a.SupportsWindows,
		"supports_mac":         a.SupportsMac,
		"supports_linux":       a.SupportsLinux,
		"header_image_url":     a.HeaderImageURL,
		"website_url":          a.WebsiteURL,
		"estimated_owners":     a.EstimatedOwners,
		"user_score":           a.UserScore,
		"score_rank":           a.ScoreRank,
		"about_the_game":       a.AboutTheGame,
		"detailed_description": a.DetailedDescription,
		"short_description":    a.ShortDescription,
		"reviews_summary":      a.ReviewsSummary,
	}
}

// Link ties an app to a lookup entity. FullAudio is only meaningful for
// languages and Votes only for tags.
type Link struct {
	EntityID  int64
	FullAudio bool
	Votes     int64
}

// Achievement is one achievement of an app with its global completion rate
type Achievement struct {
	AppID          int64
	APIName        string
	DisplayName    string
	Description    string
	CompletionRate float64 // Percent of players, 0..100
}

// Review is one user review
type Review struct {
	RecommendationID  string
	AuthorSteamID     string
	Language          string
	Body              string
	VotedUp           bool
	VotesUp           int64
	VotesFunny        int64
	WeightedVoteScore float64
	CreatedAt         time.Time
}
