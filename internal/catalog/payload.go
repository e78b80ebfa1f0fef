package catalog

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// RawApp is the "data" object of the store appdetails response
type RawApp struct {
	Type                string           `json:"type"`
	Name                string           `json:"name"`
	SteamAppID          FlexInt          `json:"steam_appid"`
	RequiredAge         FlexInt          `json:"required_age"`
	IsFree              bool             `json:"is_free"`
	DetailedDescription string           `json:"detailed_description"`
	AboutTheGame        string           `json:"about_the_game"`
	ShortDescription    string           `json:"short_description"`
	SupportedLanguages  string           `json:"supported_languages"`
	Reviews             string           `json:"reviews"`
	HeaderImage         string           `json:"header_image"`
	Website             string           `json:"website"`
	Developers          []string         `json:"developers"`
	Publishers          []string         `json:"publishers"`
	PriceOverview       *RawPrice        `json:"price_overview"`
	Platforms           *RawPlatforms    `json:"platforms"`
	Metacritic          *RawMetacritic   `json:"metacritic"`
	Categories          []RawDescription `json:"categories"`
	Genres              []RawDescription `json:"genres"`
	Recommendations     *RawTotal        `json:"recommendations"`
	Achievements        *RawTotal        `json:"achievements"`
	ReleaseDate         *RawReleaseDate  `json:"release_date"`
	FullGame            *RawFullGameRef  `json:"fullgame"`
}

type RawPrice struct {
	Currency       string  `json:"currency"`
	Final          FlexInt `json:"final"`
	FinalFormatted string  `json:"final_formatted"`
}

type RawPlatforms struct {
	Windows bool `json:"windows"`
	Mac     bool `json:"mac"`
	Linux   bool `json:"linux"`
}

type RawMetacritic struct {
	Score FlexInt `json:"score"`
	URL   string  `json:"url"`
}

type RawDescription struct {
	ID          FlexInt `json:"id"`
	Description string  `json:"description"`
}

type RawTotal struct {
	Total FlexInt `json:"total"`
}

type RawReleaseDate struct {
	ComingSoon bool   `json:"coming_soon"`
	Date       string `json:"date"`
}

type RawFullGameRef struct {
	AppID FlexInt `json:"appid"`
	Name  string  `json:"name"`
}

// RawEnrichment is the SteamSpy appdetails response
type RawEnrichment struct {
	AppID     FlexInt    `json:"appid"`
	Name      string     `json:"name"`
	Developer string     `json:"developer"`
	Publisher string     `json:"publisher"`
	Owners    string     `json:"owners"`
	Positive  FlexInt    `json:"positive"`
	Negative  FlexInt    `json:"negative"`
	CCU       FlexInt    `json:"ccu"`
	UserScore FlexInt    `json:"userscore"`
	ScoreRank FlexString `json:"score_rank"`
	Tags      TagVotes   `json:"tags"`
}

// RawAchievement is one entry of GetSchemaForGame availableGameStats.achievements
type RawAchievement struct {
	Name        string  `json:"name"`
	DisplayName string  `json:"displayName"`
	Description string  `json:"description"`
	Hidden      FlexInt `json:"hidden"`
}

// RawReview is one entry of the appreviews response
type RawReview struct {
	RecommendationID  FlexString      `json:"recommendationid"`
	Author            RawReviewAuthor `json:"author"`
	Language          string          `json:"language"`
	Review            string          `json:"review"`
	VotedUp           bool            `json:"voted_up"`
	VotesUp           FlexInt         `json:"votes_up"`
	VotesFunny        FlexInt         `json:"votes_funny"`
	WeightedVoteScore FlexFloat       `json:"weighted_vote_score"`
	TimestampCreated  FlexInt         `json:"timestamp_created"`
}

type RawReviewAuthor struct {
	SteamID FlexString `json:"steamid"`
}

// FlexInt decodes a JSON number or a numeric string. Values that are
// neither decode to 0 instead of failing the whole payload.
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	*f = 0
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
	}
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "+"))
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = FlexInt(n)
		return nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		*f = FlexInt(int64(v))
	}
	return nil
}

// FlexFloat decodes a JSON number or a numeric string
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	*f = 0
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		*f = FlexFloat(v)
	}
	return nil
}

// FlexString decodes a JSON string or number into its text form
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	*f = ""
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	*f = FlexString(b)
	return nil
}

// TagVotes decodes SteamSpy tags. SteamSpy sends an object of tag votes,
// or an empty array when an app has no tags.
type TagVotes map[string]int64

func (t *TagVotes) UnmarshalJSON(b []byte) error {
	*t = nil
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	var raw map[string]FlexInt
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(TagVotes, len(raw))
	for name, votes := range raw {
		out[name] = int64(votes)
	}
	*t = out
	return nil
}
