package core

import (
	"math"
	"sort"
	"time"
)

// ValidationStatus marks the outcome of contract validation for a record.
type ValidationStatus string

const (
	// StatusValid means the record passed all contract checks.
	StatusValid ValidationStatus = "valid"
	// StatusQuarantined means the record failed a WARN-level check and was
	// excluded from downstream stages without aborting the run.
	StatusQuarantined ValidationStatus = "quarantined"
)

// ActivityStatus is the derived campaign activity state. It overrides the
// raw platform status: a campaign is ACTIVE only if the platform says so AND
// the as-of date falls inside its scheduled window.
type ActivityStatus string

const (
	ActivityActive  ActivityStatus = "ACTIVE"
	ActivityPassive ActivityStatus = "PASSIVE"
)

// SourceRef points a derived record back at the raw row it came from.
type SourceRef struct {
	ClientID string `json:"client_id" msgpack:"client_id"`
	Row      int    `json:"row" msgpack:"row"`
}

// RawRecord is one ingested observation at ad-level grain, exactly as the
// export delivered it after column mapping and type coercion. Immutable once
// ingested.
type RawRecord struct {
	ClientID string    `json:"client_id" msgpack:"client_id"`
	Row      int       `json:"row" msgpack:"row"`
	Date     time.Time `json:"date" msgpack:"date"`

	CampaignID   string `json:"campaign_id" msgpack:"campaign_id"`
	CampaignName string `json:"campaign_name" msgpack:"campaign_name"`
	AdsetID      string `json:"adset_id" msgpack:"adset_id"`
	AdsetName    string `json:"adset_name" msgpack:"adset_name"`
	AdID         string `json:"ad_id" msgpack:"ad_id"`
	AdName       string `json:"ad_name" msgpack:"ad_name"`
	CreativeName string `json:"creative_name" msgpack:"creative_name"`

	CampaignStatus    string     `json:"campaign_status" msgpack:"campaign_status"`
	CampaignObjective string     `json:"campaign_objective" msgpack:"campaign_objective"`
	CampaignStart     *time.Time `json:"campaign_start,omitempty" msgpack:"campaign_start"`
	CampaignEnd       *time.Time `json:"campaign_end,omitempty" msgpack:"campaign_end"`

	// Metrics holds the numeric columns keyed by canonical metric name.
	// Missing or unparsable values are stored as NaN, not zero.
	Metrics map[string]float64 `json:"metrics" msgpack:"metrics"`
}

// CleanedRecord is the canonical daily x campaign record produced by the
// cleaning and aggregation stage. Never mutated after creation; corrections
// produce a new record.
type CleanedRecord struct {
	ClientID     string         `json:"client_id" msgpack:"client_id"`
	CampaignID   string         `json:"campaign_id" msgpack:"campaign_id"`
	CampaignName string         `json:"campaign_name" msgpack:"campaign_name"`
	Objective    string         `json:"objective" msgpack:"objective"`
	Activity     ActivityStatus `json:"activity" msgpack:"activity"`
	Date         time.Time      `json:"date" msgpack:"date"`

	// Metrics holds summed volume metrics plus rate metrics recomputed from
	// the sums (CTR, CPC, CPM, CPA). NaN marks an undefined rate (zero
	// denominator), never a silent zero.
	Metrics map[string]float64 `json:"metrics" msgpack:"metrics"`

	Sources []SourceRef      `json:"sources" msgpack:"sources"`
	Status  ValidationStatus `json:"status" msgpack:"status"`
}

// Metric returns the named metric and whether it is present and defined.
func (r *CleanedRecord) Metric(name string) (float64, bool) {
	v, ok := r.Metrics[name]
	if !ok || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// MetricNames returns the record's metric names in sorted order. Iteration
// over the metrics map must never leak into artifact output, so every
// consumer goes through this.
func (r *CleanedRecord) MetricNames() []string {
	names := make([]string, 0, len(r.Metrics))
	for name := range r.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SortCleanedRecords orders records by (campaign, date) so every downstream
// computation sees a stable input ordering regardless of map or goroutine
// scheduling upstream.
func SortCleanedRecords(records []CleanedRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].CampaignID != records[j].CampaignID {
			return records[i].CampaignID < records[j].CampaignID
		}
		return records[i].Date.Before(records[j].Date)
	})
}
