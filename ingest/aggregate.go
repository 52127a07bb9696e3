package ingest

import (
	"math"
	"time"

	"adpulse/core"
)

// volumeMetrics are summed across ad-level rows when rolling up to the daily
// campaign grain.
var volumeMetrics = []string{"impressions", "clicks", "clicks_all", "spend", "actions"}

// rateFromVolumes recomputes each rate metric from the aggregated volumes.
// Reported rates are never averaged; averaging ratios across ads gives a
// different (wrong) number than recomputing from the sums.
var rateFromVolumes = map[string]func(m map[string]float64) float64{
	"ctr_link": func(m map[string]float64) float64 { return safeDiv(m["clicks"], m["impressions"]) },
	"ctr_all":  func(m map[string]float64) float64 { return safeDiv(m["clicks_all"], m["impressions"]) },
	"cpc_link": func(m map[string]float64) float64 { return safeDiv(m["spend"], m["clicks"]) },
	"cpc_all":  func(m map[string]float64) float64 { return safeDiv(m["spend"], m["clicks_all"]) },
	"cpm":      func(m map[string]float64) float64 { return safeDiv(m["spend"], m["impressions"]) * 1000 },
	"cpa":      func(m map[string]float64) float64 { return safeDiv(m["spend"], m["actions"]) },
}

// safeDiv divides, yielding NaN on a zero or undefined denominator. An
// undefined rate stays undefined; it is never silently zero.
func safeDiv(num, den float64) float64 {
	if den == 0 || math.IsNaN(den) || math.IsNaN(num) {
		return math.NaN()
	}
	return num / den
}

type groupKey struct {
	date       time.Time
	campaignID string
}

type group struct {
	first   *core.RawRecord
	sums    map[string]float64
	counts  map[string]int
	reach   float64
	reachN  int
	sources []core.SourceRef
	order   int
}

// Aggregate rolls ad-level raw records up to the daily x campaign grain.
// Rows flagged in quarantined (by raw row index) are skipped. Volume metrics
// are summed (NaN cells contribute nothing), rate metrics are recomputed
// from the sums, and cost-per-1000-reach is averaged since the underlying
// reach volume is not in the export. Output is sorted by (campaign, date).
func Aggregate(records []core.RawRecord, quarantined map[int]bool, asOf time.Time) []core.CleanedRecord {
	groups := make(map[groupKey]*group)
	var keys []groupKey

	for i := range records {
		rec := &records[i]
		if quarantined[rec.Row] {
			continue
		}
		key := groupKey{date: rec.Date, campaignID: rec.CampaignID}
		g, ok := groups[key]
		if !ok {
			g = &group{
				first:  rec,
				sums:   make(map[string]float64, len(volumeMetrics)),
				counts: make(map[string]int, len(volumeMetrics)),
				order:  len(keys),
			}
			groups[key] = g
			keys = append(keys, key)
		}
		for _, name := range volumeMetrics {
			v, ok := rec.Metrics[name]
			if !ok || math.IsNaN(v) {
				continue
			}
			g.sums[name] += v
			g.counts[name]++
		}
		if v, ok := rec.Metrics["cost_per_1000_reach"]; ok && !math.IsNaN(v) {
			g.reach += v
			g.reachN++
		}
		g.sources = append(g.sources, core.SourceRef{ClientID: rec.ClientID, Row: rec.Row})
	}

	cleaned := make([]core.CleanedRecord, 0, len(keys))
	for _, key := range keys {
		g := groups[key]
		metrics := make(map[string]float64, len(volumeMetrics)+len(rateFromVolumes)+1)
		for _, name := range volumeMetrics {
			if g.counts[name] == 0 {
				metrics[name] = math.NaN()
				continue
			}
			metrics[name] = g.sums[name]
		}
		for name, compute := range rateFromVolumes {
			metrics[name] = compute(metrics)
		}
		if g.reachN > 0 {
			metrics["cost_per_1000_reach"] = g.reach / float64(g.reachN)
		} else {
			metrics["cost_per_1000_reach"] = math.NaN()
		}

		name := CleanCampaignName(g.first.CampaignName)
		objective := ExtractObjective(name)
		if objective == "" {
			objective = NormalizeObjective(g.first.CampaignObjective)
		}

		cleaned = append(cleaned, core.CleanedRecord{
			ClientID:     g.first.ClientID,
			CampaignID:   key.campaignID,
			CampaignName: name,
			Objective:    objective,
			Activity:     DeriveActivityStatus(g.first.CampaignStatus, g.first.CampaignStart, g.first.CampaignEnd, asOf),
			Date:         key.date,
			Metrics:      metrics,
			Sources:      g.sources,
			Status:       core.StatusValid,
		})
	}

	core.SortCleanedRecords(cleaned)
	return cleaned
}
