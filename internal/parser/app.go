// Package parser converts raw store payloads into normalized catalog records.
// Every function here is pure.
package parser

import (
	"strings"

	"github.com/masahif/steamharvest/internal/catalog"
)

const defaultOwners = "0 - 20000"

// Classify reports the kind of a payload and whether it is stored. For an
// unsupported kind the returned Kind carries the raw type string, which
// becomes the "skipped: <kind>" ledger label.
func Classify(raw *catalog.RawApp) (catalog.Kind, bool) {
	if raw == nil {
		return "", false
	}
	kind := catalog.Kind(strings.ToLower(strings.TrimSpace(raw.Type)))
	return kind, kind.Supported()
}

// UsableEnrichment returns nil for SteamSpy placeholder responses, which
// come back without a developer.
func UsableEnrichment(enr *catalog.RawEnrichment) *catalog.RawEnrichment {
	if enr == nil || strings.TrimSpace(enr.Developer) == "" {
		return nil
	}
	return enr
}

// NormalizeApp flattens a store payload, optionally overlaid with SteamSpy
// data, into a Record. id is used when the payload has no steam_appid.
// Enrichment is applied to games only.
func NormalizeApp(id int64, raw *catalog.RawApp, enr *catalog.RawEnrichment) *catalog.Record {
	kind, _ := Classify(raw)

	app := catalog.App{
		ID:                  id,
		Kind:                kind,
		Name:                SanitizeText(raw.Name),
		HeaderImageURL:      strings.TrimSpace(raw.HeaderImage),
		WebsiteURL:          strings.TrimSpace(raw.Website),
		AboutTheGame:        SanitizeText(raw.AboutTheGame),
		DetailedDescription: SanitizeText(raw.DetailedDescription),
		ShortDescription:    SanitizeText(raw.ShortDescription),
		ReviewsSummary:      SanitizeText(raw.Reviews),
	}
	if raw.SteamAppID > 0 {
		app.ID = int64(raw.SteamAppID)
	}
	if raw.ReleaseDate != nil {
		if date, ok := ParseReleaseDate(raw.ReleaseDate.Date); ok {
			app.ReleaseDate = date
		}
	}
	if raw.PriceOverview != nil {
		app.Price = ParsePrice(raw.PriceOverview.FinalFormatted)
	}
	if raw.Recommendations != nil {
		app.Recommendations = int64(raw.Recommendations.Total)
	}
	if raw.Metacritic != nil {
		app.MetacriticScore = int64(raw.Metacritic.Score)
		app.MetacriticURL = raw.Metacritic.URL
	}
	if raw.Platforms != nil {
		app.SupportsWindows = raw.Platforms.Windows
		app.SupportsMac = raw.Platforms.Mac
		app.SupportsLinux = raw.Platforms.Linux
	}

	var tags map[string]int64
	if kind == catalog.KindGame {
		app.RequiredAge = int64(raw.RequiredAge)
		if raw.Achievements != nil {
			app.AchievementsCount = int64(raw.Achievements.Total)
		}
		if enr = UsableEnrichment(enr); enr != nil {
			app.PositiveReviews = int64(enr.Positive)
			app.NegativeReviews = int64(enr.Negative)
			app.PeakCCU = int64(enr.CCU)
			app.UserScore = int64(enr.UserScore)
			app.ScoreRank = string(enr.ScoreRank)
			app.EstimatedOwners = defaultOwners
			if owners := strings.TrimSpace(enr.Owners); owners != "" {
				app.EstimatedOwners = strings.ReplaceAll(owners, ",", "")
			}
			tags = cleanTags(enr.Tags)
		}
	}

	var parentID int64
	if raw.FullGame != nil && raw.FullGame.AppID > 0 {
		parentID = int64(raw.FullGame.AppID)
	}
	app.ParentID = parentID

	languages, fullAudio := ParseLanguages(raw.SupportedLanguages)

	return &catalog.Record{
		App:      app,
		ParentID: parentID,
		Names: map[catalog.Dimension][]string{
			catalog.DimDeveloper: cleanNames(raw.Developers),
			catalog.DimPublisher: cleanNames(raw.Publishers),
			catalog.DimCategory:  descriptions(raw.Categories),
			catalog.DimGenre:     descriptions(raw.Genres),
			catalog.DimLanguage:  languages,
		},
		FullAudio: fullAudio,
		Tags:      tags,
	}
}

func descriptions(items []catalog.RawDescription) []string {
	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.Description)
	}
	return cleanNames(names)
}

// cleanNames sanitizes names and drops blanks and duplicates, keeping order
func cleanNames(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		name = SanitizeText(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

func cleanTags(tags catalog.TagVotes) map[string]int64 {
	if len(tags) == 0 {
		return nil
	}
	out := make(map[string]int64, len(tags))
	for name, votes := range tags {
		if name = SanitizeText(name); name != "" {
			out[name] = votes
		}
	}
	return out
}
