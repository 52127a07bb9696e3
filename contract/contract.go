// Package contract enforces structural and statistical contracts on datasets
// at stage boundaries. Validation is non-mutating: it reports violations and
// the set of rows to quarantine, and never touches the input records.
package contract

import (
	"math"
	"time"

	"adpulse/core"
)

// FieldType is the expected type of a contract field.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumeric FieldType = "numeric"
	TypeDate    FieldType = "date"
)

// FieldContract declares the expectations for one canonical column.
type FieldContract struct {
	Name string    `yaml:"name"`
	Type FieldType `yaml:"type"`

	// Required: the column must be present in the dataset. Absence is FATAL.
	Required bool `yaml:"required"`
	// Nullable: rows may carry a null/NaN value. A null in a non-nullable
	// field is WARN: the row is quarantined and the run continues.
	Nullable bool `yaml:"nullable"`

	// Range bounds for numeric fields; violations are WARN.
	Min *float64 `yaml:"min,omitempty"`
	Max *float64 `yaml:"max,omitempty"`

	// Allowed enumerates permitted values for string fields; violations WARN.
	Allowed []string `yaml:"allowed,omitempty"`
}

// Contract is the full validation contract for one dataset.
type Contract struct {
	Name   string          `yaml:"name"`
	Fields []FieldContract `yaml:"fields"`

	// MonotonicDates requires non-decreasing dates per campaign in input
	// order. A violation is FATAL: it indicates a corrupted export, not a
	// few bad rows.
	MonotonicDates bool `yaml:"monotonic_dates"`
}

// Result is the outcome of validating a dataset against a contract.
type Result struct {
	Passed      bool
	Violations  []core.Violation
	Quarantined map[int]bool // row index -> quarantined
}

// FatalViolations returns only the FATAL subset.
func (r *Result) FatalViolations() []core.Violation {
	var fatal []core.Violation
	for _, v := range r.Violations {
		if v.Class == core.ClassFatal {
			fatal = append(fatal, v)
		}
	}
	return fatal
}

// WarnCount returns the number of WARN violations.
func (r *Result) WarnCount() int {
	n := 0
	for _, v := range r.Violations {
		if v.Class == core.ClassWarn {
			n++
		}
	}
	return n
}

// stringField reads a canonical string column off a raw record. The bool
// reports whether the record carries the column at all.
func stringField(rec *core.RawRecord, name string) (string, bool) {
	switch name {
	case "campaign_id":
		return rec.CampaignID, true
	case "campaign_name":
		return rec.CampaignName, true
	case "adset_id":
		return rec.AdsetID, true
	case "adset_name":
		return rec.AdsetName, true
	case "ad_id":
		return rec.AdID, true
	case "ad_name":
		return rec.AdName, true
	case "creative_name":
		return rec.CreativeName, true
	case "campaign_status":
		return rec.CampaignStatus, true
	case "campaign_objective":
		return rec.CampaignObjective, true
	}
	return "", false
}

// numericField reads a canonical numeric column. NaN means null.
func numericField(rec *core.RawRecord, name string) (float64, bool) {
	v, ok := rec.Metrics[name]
	return v, ok
}

// dateField reads a canonical date column. The zero time means null.
func dateField(rec *core.RawRecord, name string) (time.Time, bool) {
	switch name {
	case "date":
		return rec.Date, true
	case "campaign_start_date":
		if rec.CampaignStart == nil {
			return time.Time{}, true
		}
		return *rec.CampaignStart, true
	case "campaign_end_date":
		if rec.CampaignEnd == nil {
			return time.Time{}, true
		}
		return *rec.CampaignEnd, true
	}
	return time.Time{}, false
}

func isNull(c FieldContract, rec *core.RawRecord) (null, present bool) {
	switch c.Type {
	case TypeString:
		v, ok := stringField(rec, c.Name)
		return v == "", ok
	case TypeNumeric:
		v, ok := numericField(rec, c.Name)
		return math.IsNaN(v), ok
	case TypeDate:
		v, ok := dateField(rec, c.Name)
		return v.IsZero(), ok
	}
	return false, false
}
