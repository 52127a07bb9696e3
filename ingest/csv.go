// Package ingest parses raw campaign export files into RawRecords and turns
// them into canonical daily CleanedRecords: name cleaning, objective
// extraction, deduplication and daily x campaign aggregation.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"adpulse/core"
)

// columnMap maps export column headers to canonical field names. The export
// layout is authoritative for metrics; nothing is derived at parse time.
var columnMap = map[string]string{
	// Core grain
	"Date": "date",

	// Campaign-level
	"Campaign ID":         "campaign_id",
	"Campaign name":       "campaign_name",
	"Campaign start date": "campaign_start_date",
	"Campaign end date":   "campaign_end_date",
	"Campaign status":     "campaign_status",
	"Campaign objective":  "campaign_objective",

	// Ad set-level
	"Ad set ID":   "adset_id",
	"Ad set name": "adset_name",

	// Ad-level
	"Ad ID":         "ad_id",
	"Ad name":       "ad_name",
	"Creative name": "creative_name",

	// Metrics (authoritative)
	"Impressions":  "impressions",
	"Cost":         "spend",
	"Link clicks":  "clicks",
	"Clicks (all)": "clicks_all",
	"Actions":      "actions",

	// Reported diagnostics; kept raw, rates are recomputed downstream
	"Cost per action (CPA)":            "cpa",
	"CPM (cost per 1000 impressions)":  "cpm",
	"Cost per 1000 people reached":     "cost_per_1000_reach",
	"CTR (link click-through rate)":    "ctr_link_reported",
	"CTR (all)":                        "ctr_all_reported",
	"CPC (cost per link click)":        "cpc_link",
	"CPC (all)":                        "cpc_all",
}

// numericColumns are the canonical names coerced to float64.
var numericColumns = map[string]bool{
	"impressions":         true,
	"clicks":              true,
	"clicks_all":          true,
	"spend":               true,
	"actions":             true,
	"cpa":                 true,
	"cpm":                 true,
	"cost_per_1000_reach": true,
	"ctr_link_reported":   true,
	"ctr_all_reported":    true,
	"cpc_link":            true,
	"cpc_all":             true,
}

var dateLayouts = []string{"2006-01-02", "2006-01-02 15:04:05", "01/02/2006", time.RFC3339}

// ParseExport reads a campaign export CSV and returns raw records. The
// header is mapped to canonical names; every mapped column must be present
// (fail fast on schema drift, before any cleaning happens).
func ParseExport(r io.Reader, clientID string) ([]core.RawRecord, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read export header: %w", err)
	}

	// Trim headers defensively; exports sometimes pad them.
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(h)] = i
	}

	var missing []string
	for col := range columnMap {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("missing required export columns: %s", strings.Join(missing, ", "))
	}

	var records []core.RawRecord
	row := 0
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read export row %d: %w", row, err)
		}

		rec := core.RawRecord{
			ClientID: clientID,
			Row:      row,
			Metrics:  make(map[string]float64, len(numericColumns)),
		}

		for col, canonical := range columnMap {
			raw := strings.TrimSpace(fields[index[col]])
			switch {
			case canonical == "date":
				rec.Date = parseDate(raw)
			case canonical == "campaign_start_date":
				rec.CampaignStart = parseDatePtr(raw)
			case canonical == "campaign_end_date":
				rec.CampaignEnd = parseDatePtr(raw)
			case numericColumns[canonical]:
				rec.Metrics[canonical] = parseNumber(raw)
			default:
				setStringField(&rec, canonical, raw)
			}
		}

		records = append(records, rec)
		row++
	}

	return records, nil
}

func setStringField(rec *core.RawRecord, canonical, value string) {
	switch canonical {
	case "campaign_id":
		rec.CampaignID = fixNumericID(value)
	case "campaign_name":
		rec.CampaignName = value
	case "adset_id":
		rec.AdsetID = fixNumericID(value)
	case "adset_name":
		rec.AdsetName = value
	case "ad_id":
		rec.AdID = fixNumericID(value)
	case "ad_name":
		rec.AdName = value
	case "creative_name":
		rec.CreativeName = value
	case "campaign_status":
		rec.CampaignStatus = value
	case "campaign_objective":
		rec.CampaignObjective = value
	}
}

// fixNumericID strips the ".0" suffix spreadsheets add to numeric id columns.
func fixNumericID(v string) string {
	return strings.TrimSuffix(v, ".0")
}

// parseNumber coerces a metric cell to float64; unparsable or empty cells
// become NaN, never zero.
func parseNumber(v string) float64 {
	if v == "" {
		return math.NaN()
	}
	v = strings.ReplaceAll(v, ",", "")
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// parseDate coerces a date cell; unparsable cells become the zero time.
func parseDate(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func parseDatePtr(v string) *time.Time {
	t := parseDate(v)
	if t.IsZero() {
		return nil
	}
	return &t
}
