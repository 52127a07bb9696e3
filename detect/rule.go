// Package detect evaluates declarative alert rules over predictions and
// feature baselines. Rules are independent of each other (composites consume
// only the finished results of the independents), so evaluation order can
// never change the outcome.
package detect

import (
	"fmt"

	"adpulse/core"
)

// Rule kinds.
const (
	KindThreshold = "threshold"
	KindTrend     = "trend"
	KindComposite = "composite"
)

// Directions for threshold and trend rules.
const (
	DirectionDown = "down"
	DirectionUp   = "up"
)

// Default severity boundaries for threshold ratios. A predicted drop below
// 70% of baseline is critical, below 85% warning; a spike above 150% is
// critical, above 120% warning.
const (
	defaultDownCritical = 0.70
	defaultDownWarning  = 0.85
	defaultUpCritical   = 1.50
	defaultUpWarning    = 1.20
)

// Rule is one alert rule. Which fields apply depends on Kind.
type Rule struct {
	ID   string `yaml:"id"`
	Kind string `yaml:"kind"`

	// threshold: prediction(Metric) / feature(Baseline) compared against
	// severity boundaries in Direction.
	Metric    string   `yaml:"metric,omitempty"`
	Baseline  string   `yaml:"baseline,omitempty"`
	Direction string   `yaml:"direction,omitempty"`
	Critical  *float64 `yaml:"critical,omitempty"`
	Warning   *float64 `yaml:"warning,omitempty"`

	// trend: a pct-change feature beyond Limit in Direction. Daily runs
	// evaluate a single as-of; periods above 1 need history the engine does
	// not see and are rejected at load time.
	Feature  string  `yaml:"feature,omitempty"`
	Limit    float64 `yaml:"limit,omitempty"`
	Periods  int     `yaml:"periods,omitempty"`
	Severity string  `yaml:"severity,omitempty"`

	// composite: fires when Mode ("all" | "any") of the referenced
	// independent rules fired for the entity.
	Mode  string   `yaml:"mode,omitempty"`
	Rules []string `yaml:"rules,omitempty"`
}

// thresholdBounds resolves the rule's severity boundaries, falling back to
// the defaults for its direction.
func (r *Rule) thresholdBounds() (critical, warning float64) {
	if r.Direction == DirectionUp {
		critical, warning = defaultUpCritical, defaultUpWarning
	} else {
		critical, warning = defaultDownCritical, defaultDownWarning
	}
	if r.Critical != nil {
		critical = *r.Critical
	}
	if r.Warning != nil {
		warning = *r.Warning
	}
	return critical, warning
}

// thresholdSeverity buckets a ratio.
func (r *Rule) thresholdSeverity(ratio float64) string {
	critical, warning := r.thresholdBounds()
	if r.Direction == DirectionUp {
		switch {
		case ratio > critical:
			return core.SeverityCritical
		case ratio > warning:
			return core.SeverityWarning
		}
		return core.SeverityNormal
	}
	switch {
	case ratio < critical:
		return core.SeverityCritical
	case ratio < warning:
		return core.SeverityWarning
	}
	return core.SeverityNormal
}

func (r *Rule) validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule has no id")
	}
	switch r.Kind {
	case KindThreshold:
		if r.Metric == "" || r.Baseline == "" {
			return fmt.Errorf("rule %s: threshold needs metric and baseline", r.ID)
		}
		if r.Direction != DirectionDown && r.Direction != DirectionUp {
			return fmt.Errorf("rule %s: direction must be %q or %q", r.ID, DirectionDown, DirectionUp)
		}
	case KindTrend:
		if r.Feature == "" || r.Limit <= 0 {
			return fmt.Errorf("rule %s: trend needs feature and limit > 0", r.ID)
		}
		if r.Direction != DirectionDown && r.Direction != DirectionUp {
			return fmt.Errorf("rule %s: direction must be %q or %q", r.ID, DirectionDown, DirectionUp)
		}
		if r.Periods > 1 {
			return fmt.Errorf("rule %s: periods > 1 needs multi-day evaluation, not supported", r.ID)
		}
		if r.Severity != core.SeverityCritical && r.Severity != core.SeverityWarning {
			return fmt.Errorf("rule %s: trend severity must be critical or warning", r.ID)
		}
	case KindComposite:
		if len(r.Rules) < 2 {
			return fmt.Errorf("rule %s: composite needs at least two referenced rules", r.ID)
		}
		if r.Mode != "all" && r.Mode != "any" {
			return fmt.Errorf("rule %s: composite mode must be \"all\" or \"any\"", r.ID)
		}
	default:
		return fmt.Errorf("rule %s: unknown kind %q", r.ID, r.Kind)
	}
	return nil
}

// RuleSet is an ordered collection of rules; order is cosmetic, results are
// identical under any permutation.
type RuleSet struct {
	Name  string `yaml:"name"`
	Rules []Rule `yaml:"rules"`
}

func (rs *RuleSet) validate() error {
	if rs.Name == "" {
		return fmt.Errorf("rule set needs a name")
	}
	ids := make(map[string]string, len(rs.Rules))
	for i := range rs.Rules {
		r := &rs.Rules[i]
		if err := r.validate(); err != nil {
			return err
		}
		if _, dup := ids[r.ID]; dup {
			return fmt.Errorf("duplicate rule id %q", r.ID)
		}
		ids[r.ID] = r.Kind
	}
	// Composites may only reference existing independent rules; chained
	// composites would reintroduce evaluation-order sensitivity.
	for i := range rs.Rules {
		r := &rs.Rules[i]
		if r.Kind != KindComposite {
			continue
		}
		for _, ref := range r.Rules {
			kind, ok := ids[ref]
			if !ok {
				return fmt.Errorf("rule %s references unknown rule %q", r.ID, ref)
			}
			if kind == KindComposite {
				return fmt.Errorf("rule %s references composite %q; composites cannot nest", r.ID, ref)
			}
		}
	}
	return nil
}
