package ingest

import (
	"regexp"
	"strings"
	"time"

	"adpulse/core"
)

var (
	spaceRun = regexp.MustCompile(`\s+`)
	monthTag = regexp.MustCompile(`^m\d+.*`)
)

// CleanCampaignName normalizes campaign name text: trims and collapses
// whitespace. It never lowercases, splits or infers meaning.
func CleanCampaignName(name string) string {
	return spaceRun.ReplaceAllString(strings.TrimSpace(name), " ")
}

// matchObjectiveToken matches one campaign-name segment against the objective
// taxonomy. Returns the canonical objective or "" if no match.
func matchObjectiveToken(token string) string {
	low := strings.ToLower(strings.TrimSpace(token))

	switch low {
	case "wa", "wa messaging", "whatsapp", "whatsapp campaign", "messaging", "message":
		return "WhatsApp"
	case "traf", "traffic", "trafic", "traff":
		return "Traffic"
	case "eng", "engagement", "page engagement", "post engagement",
		"post engagement [visual]", "post engagement [video]",
		"post engagement m10", "post engagement m11", "post engagement m12",
		"eng maple market", "eng 11.11", "m2 others":
		return "Engagement"
	case "lg", "leads", "lead gen", "lead gen m52-m55", "leadgen", "lead", "always on":
		return "Leads"
	case "brand awareness", "awareness", "ba":
		return "Awareness"
	case "conversion", "conversions":
		return "Conversion"
	case "link click", "link clicks":
		return "Link Click"
	}

	if strings.Contains(low, "video views") {
		return "Video Views"
	}

	// Month tags (M1, M2, M10...) pass through unchanged.
	if monthTag.MatchString(low) {
		return strings.TrimSpace(token)
	}

	return ""
}

// ExtractObjective scans all pipe-delimited segments of a campaign name and
// returns the first segment that matches the objective taxonomy.
func ExtractObjective(campaignName string) string {
	if campaignName == "" {
		return ""
	}
	for _, part := range strings.Split(campaignName, "|") {
		if matched := matchObjectiveToken(part); matched != "" {
			return matched
		}
	}
	return ""
}

// NormalizeObjective maps a raw objective string onto the canonical taxonomy,
// falling back to title-casing the original token.
func NormalizeObjective(objective string) string {
	token := strings.TrimSpace(objective)
	if token == "" {
		return ""
	}
	if matched := matchObjectiveToken(token); matched != "" {
		return matched
	}
	return titleCase(token)
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// DeriveActivityStatus derives the true campaign activity state as of a
// date, overriding the raw platform status. ACTIVE requires the platform
// status to be ACTIVE and the as-of date to fall inside the scheduled window.
func DeriveActivityStatus(status string, start, stop *time.Time, asOf time.Time) core.ActivityStatus {
	if start == nil || start.IsZero() {
		return core.ActivityPassive
	}
	active := strings.EqualFold(strings.TrimSpace(status), "ACTIVE") &&
		!start.After(asOf) &&
		(stop == nil || !stop.Before(asOf))
	if active {
		return core.ActivityActive
	}
	return core.ActivityPassive
}
