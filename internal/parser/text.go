package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	spacePattern      = regexp.MustCompile(`\s+`)
	ordinalPattern    = regexp.MustCompile(`(\d+)(st|nd|rd|th)\b`)
	numberPattern     = regexp.MustCompile(`[0-9]+\.?[0-9]*`)
	fullAudioFootnote = regexp.MustCompile(`(?i)\*?\s*languages with full audio support`)
)

// Release date layouts accepted after commas and ordinal suffixes are removed
var dateLayouts = []string{"2 Jan 2006", "Jan 2 2006"}

// SanitizeText strips markup from a free-text field. Tags become spaces,
// control whitespace is collapsed and &quot; / &amp; are unescaped.
func SanitizeText(s string) string {
	if s == "" {
		return ""
	}
	s = tagPattern.ReplaceAllString(s, " ")
	s = strings.NewReplacer("&quot;", `"`, "&amp;", "&").Replace(s)
	s = spacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// ParseReleaseDate converts a store release date to YYYY-MM-DD. It returns
// false for "coming soon" markers and anything the known layouts reject.
func ParseReleaseDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	lower := strings.ToLower(s)
	if strings.Contains(lower, "coming soon") || strings.Contains(lower, "coming_soon") {
		return "", false
	}

	cleaned := strings.ReplaceAll(s, ",", "")
	cleaned = ordinalPattern.ReplaceAllString(cleaned, "$1")
	cleaned = spacePattern.ReplaceAllString(cleaned, " ")

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return t.Format(time.DateOnly), true
		}
	}
	return "", false
}

// ParsePrice extracts the first decimal number of a formatted price.
// A comma decimal separator is read as a dot; when both separators occur
// the last one is the decimal separator. Unparseable input yields 0.
func ParsePrice(s string) float64 {
	if s == "" {
		return 0
	}
	comma := strings.LastIndex(s, ",")
	dot := strings.LastIndex(s, ".")
	switch {
	case comma >= 0 && dot >= 0 && comma > dot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case comma >= 0 && dot >= 0:
		s = strings.ReplaceAll(s, ",", "")
	default:
		s = strings.ReplaceAll(s, ",", ".")
	}

	match := numberPattern.FindString(s)
	if match == "" {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(match, "."), 64)
	if err != nil {
		return 0
	}
	return v
}

// ParseLanguages splits the supported_languages field. A trailing asterisk
// marks full audio support and is removed from the name.
func ParseLanguages(s string) ([]string, map[string]bool) {
	cleaned := fullAudioFootnote.ReplaceAllString(SanitizeText(s), "")

	var names []string
	fullAudio := make(map[string]bool)
	seen := make(map[string]bool)
	for _, part := range strings.Split(cleaned, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name := strings.TrimSpace(spacePattern.ReplaceAllString(strings.ReplaceAll(part, "*", ""), " "))
		if name == "" {
			continue
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		if strings.HasSuffix(part, "*") {
			fullAudio[name] = true
		}
	}
	return names, fullAudio
}
