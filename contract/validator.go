package contract

import (
	"fmt"
	"math"

	"adpulse/core"
)

// Validate checks records against the contract and returns the violations
// plus the quarantine set. Pure over its inputs: records are never mutated.
//
// Classification follows the fail-loud policy: dataset-level problems
// (missing required column, unknown field type, non-monotone dates) are
// FATAL; row-level problems quarantine the row and continue.
func Validate(records []core.RawRecord, c *Contract) *Result {
	res := &Result{Quarantined: make(map[int]bool)}

	for _, fc := range c.Fields {
		validateField(records, fc, res)
	}
	if c.MonotonicDates {
		validateMonotonicity(records, res)
	}

	res.Passed = len(res.FatalViolations()) == 0
	return res
}

func validateField(records []core.RawRecord, fc FieldContract, res *Result) {
	switch fc.Type {
	case TypeString, TypeNumeric, TypeDate:
	default:
		res.Violations = append(res.Violations, core.Violation{
			Field: fc.Name, Rule: "type", Row: -1, Class: core.ClassFatal,
			Detail: fmt.Sprintf("unknown field type %q in contract", fc.Type),
		})
		return
	}

	// Column presence is dataset-level: a required column absent from every
	// record means the export schema drifted.
	if fc.Required {
		present := false
		for i := range records {
			if _, ok := isNull(fc, &records[i]); ok {
				present = true
				break
			}
		}
		if len(records) > 0 && !present {
			res.Violations = append(res.Violations, core.Violation{
				Field: fc.Name, Rule: "missing_column", Row: -1, Class: core.ClassFatal,
				Detail: "required column absent from dataset",
			})
			return
		}
	}

	for i := range records {
		rec := &records[i]
		null, present := isNull(fc, rec)
		if !present {
			continue
		}
		if null {
			if !fc.Nullable {
				res.quarantine(i, core.Violation{
					Field: fc.Name, Rule: "not_null", Row: i, Class: core.ClassWarn,
					Detail: "null value in non-nullable field",
				})
			}
			continue
		}

		if fc.Type == TypeNumeric {
			v, _ := numericField(rec, fc.Name)
			if math.IsInf(v, 0) {
				res.quarantine(i, core.Violation{
					Field: fc.Name, Rule: "finite", Row: i, Class: core.ClassWarn,
					Detail: "non-finite value",
				})
				continue
			}
			if fc.Min != nil && v < *fc.Min {
				res.quarantine(i, core.Violation{
					Field: fc.Name, Rule: "range", Row: i, Class: core.ClassWarn,
					Detail: fmt.Sprintf("value %v below minimum %v", v, *fc.Min),
				})
			}
			if fc.Max != nil && v > *fc.Max {
				res.quarantine(i, core.Violation{
					Field: fc.Name, Rule: "range", Row: i, Class: core.ClassWarn,
					Detail: fmt.Sprintf("value %v above maximum %v", v, *fc.Max),
				})
			}
		}

		if fc.Type == TypeString && len(fc.Allowed) > 0 {
			v, _ := stringField(rec, fc.Name)
			if !contains(fc.Allowed, v) {
				res.quarantine(i, core.Violation{
					Field: fc.Name, Rule: "allowed_set", Row: i, Class: core.ClassWarn,
					Detail: fmt.Sprintf("value %q not in allowed set", v),
				})
			}
		}
	}
}

// validateMonotonicity requires per-campaign dates to be non-decreasing in
// input order.
func validateMonotonicity(records []core.RawRecord, res *Result) {
	last := make(map[string]int) // campaign id -> index of last seen row
	for i := range records {
		rec := &records[i]
		if rec.CampaignID == "" || rec.Date.IsZero() {
			continue
		}
		if j, ok := last[rec.CampaignID]; ok {
			if rec.Date.Before(records[j].Date) {
				res.Violations = append(res.Violations, core.Violation{
					Field: "date", Rule: "monotonic", Row: i, Class: core.ClassFatal,
					Detail: fmt.Sprintf("date %s for campaign %s precedes earlier row %d (%s)",
						rec.Date.Format("2006-01-02"), rec.CampaignID, j, records[j].Date.Format("2006-01-02")),
				})
			}
		}
		last[rec.CampaignID] = i
	}
}

func (r *Result) quarantine(row int, v core.Violation) {
	r.Violations = append(r.Violations, v)
	r.Quarantined[row] = true
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
