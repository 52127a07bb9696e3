// Package feature turns cleaned daily records into fixed-shape feature rows
// according to a declarative feature spec. The builder is deterministic and
// leakage-free: no feature may read data dated after the row's as-of date.
package feature

import (
	"fmt"
	"strings"
)

// Kind enumerates the closed set of feature definitions the builder can
// evaluate.
type Kind string

const (
	// KindLag is the metric value at asOf minus Offset days.
	KindLag Kind = "lag"
	// KindRollingMean is the mean over the window ending the day before
	// asOf. Fewer than MinPeriods observations flag the row incomplete.
	KindRollingMean Kind = "rolling_mean"
	// KindPctChange is (today - lag1) / lag1 for the metric.
	KindPctChange Kind = "pct_change"
	// KindCumSum is the running total of the metric through asOf.
	KindCumSum Kind = "cum_sum"
	// KindCalendar derives day-of-week or ISO week from asOf itself.
	KindCalendar Kind = "calendar"
)

// Calendar field names.
const (
	CalendarDayOfWeek = "dow"
	CalendarISOWeek   = "week"
)

// Definition is one feature in a spec. Which fields apply depends on Kind.
type Definition struct {
	Kind       Kind   `yaml:"kind"`
	Metric     string `yaml:"metric,omitempty"`
	Offset     int    `yaml:"offset,omitempty"`
	Window     int    `yaml:"window,omitempty"`
	MinPeriods int    `yaml:"min_periods,omitempty"`
	Field      string `yaml:"field,omitempty"`
}

// Name returns the canonical column name for the feature. The name order in
// the spec is the feature row schema, so names must be stable across runs.
func (d Definition) Name() string {
	switch d.Kind {
	case KindLag:
		return fmt.Sprintf("%s_lag_%d", d.Metric, d.Offset)
	case KindRollingMean:
		return fmt.Sprintf("%s_rolling_mean_%d", d.Metric, d.Window)
	case KindPctChange:
		return fmt.Sprintf("%s_pct_change", d.Metric)
	case KindCumSum:
		return fmt.Sprintf("%s_cum_sum", d.Metric)
	case KindCalendar:
		return "calendar_" + d.Field
	}
	return string(d.Kind)
}

// EffectiveMinPeriods applies the default minimum-observation rule for
// rolling means: at least 3, or half the window, whichever is larger.
func (d Definition) EffectiveMinPeriods() int {
	if d.MinPeriods > 0 {
		return d.MinPeriods
	}
	mp := d.Window / 2
	if mp < 3 {
		mp = 3
	}
	return mp
}

func (d Definition) validate() error {
	switch d.Kind {
	case KindLag:
		if d.Metric == "" || d.Offset < 1 {
			return fmt.Errorf("lag feature needs metric and offset >= 1")
		}
	case KindRollingMean:
		if d.Metric == "" || d.Window < 2 {
			return fmt.Errorf("rolling_mean feature needs metric and window >= 2")
		}
		if d.MinPeriods > d.Window {
			return fmt.Errorf("rolling_mean min_periods %d exceeds window %d", d.MinPeriods, d.Window)
		}
	case KindPctChange, KindCumSum:
		if d.Metric == "" {
			return fmt.Errorf("%s feature needs metric", d.Kind)
		}
	case KindCalendar:
		if d.Field != CalendarDayOfWeek && d.Field != CalendarISOWeek {
			return fmt.Errorf("calendar feature field must be %q or %q", CalendarDayOfWeek, CalendarISOWeek)
		}
	default:
		return fmt.Errorf("unknown feature kind %q", d.Kind)
	}
	return nil
}

// Spec is an ordered list of feature definitions. The definition order fixes
// the feature row schema.
type Spec struct {
	Name     string       `yaml:"name"`
	Features []Definition `yaml:"features"`
}

// Names returns the feature schema in spec order.
func (s *Spec) Names() []string {
	names := make([]string, len(s.Features))
	for i, d := range s.Features {
		names[i] = d.Name()
	}
	return names
}

func (s *Spec) validate() error {
	if s.Name == "" {
		return fmt.Errorf("feature spec needs a name")
	}
	if len(s.Features) == 0 {
		return fmt.Errorf("feature spec %q has no features", s.Name)
	}
	seen := make(map[string]bool, len(s.Features))
	for i, d := range s.Features {
		if err := d.validate(); err != nil {
			return fmt.Errorf("feature[%d]: %w", i, err)
		}
		name := d.Name()
		if seen[name] {
			return fmt.Errorf("duplicate feature name %q", name)
		}
		seen[name] = true
	}
	return nil
}

// String renders the spec schema for logs.
func (s *Spec) String() string {
	return fmt.Sprintf("%s[%s]", s.Name, strings.Join(s.Names(), ","))
}
