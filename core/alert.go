package core

import "time"

// Alert severities. Two actionable buckets plus "normal" for rule outcomes
// that stay inside their thresholds (normal outcomes never become Alert rows).
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityNormal   = "normal"
)

// SeverityRank maps a severity to a sortable weight. Unknown severities rank
// lowest so a malformed rule set cannot outrank real alerts.
func SeverityRank(severity string) int {
	switch severity {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityNormal:
		return 1
	default:
		return 0
	}
}

// Alert is one fired rule for one entity at one as-of. Multiple alerts per
// entity per run are expected and preserved, never deduplicated.
type Alert struct {
	EntityID string    `json:"entity_id" msgpack:"entity_id"`
	AsOf     time.Time `json:"as_of" msgpack:"as_of"`
	RuleID   string    `json:"rule_id" msgpack:"rule_id"`
	Severity string    `json:"severity" msgpack:"severity"`

	// Metric and the triggering values that tripped the rule.
	Metric    string  `json:"metric" msgpack:"metric"`
	Ratio     float64 `json:"ratio" msgpack:"ratio"`
	Predicted float64 `json:"predicted" msgpack:"predicted"`
	Baseline  float64 `json:"baseline" msgpack:"baseline"`
}

// Recommendation is one ranked action for an entity, derived from the alerts
// and predictions for that entity at the same as-of. Entities with no firing
// alert produce no Recommendation.
type Recommendation struct {
	EntityID  string    `json:"entity_id" msgpack:"entity_id"`
	AsOf      time.Time `json:"as_of" msgpack:"as_of"`
	Action    string    `json:"action" msgpack:"action"`
	Rationale string    `json:"rationale" msgpack:"rationale"`
	RuleID    string    `json:"rule_id" msgpack:"rule_id"`
	Severity  string    `json:"severity" msgpack:"severity"`

	// Priority is the 1-based rank within the entity's recommendation set,
	// ordered by (severity desc, weight desc, rule id asc).
	Priority int `json:"priority_rank" msgpack:"priority_rank"`
}
