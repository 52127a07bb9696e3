package detect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"adpulse/core"
)

var asOf = time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)

func prediction(entity, metric string, value float64) core.Prediction {
	return core.Prediction{
		EntityID: entity, AsOf: asOf, ModelVersion: "1.0.0",
		Metric: metric, Value: value, Confidence: 0.8,
	}
}

func row(entity string, features map[string]float64) core.FeatureRow {
	r := core.FeatureRow{ClientID: "acme", EntityID: entity, AsOf: asOf}
	for name, value := range features {
		r.Names = append(r.Names, name)
		r.Values = append(r.Values, value)
	}
	return r
}

func thresholdRule(id, metric, baseline, direction string) Rule {
	return Rule{ID: id, Kind: KindThreshold, Metric: metric, Baseline: baseline, Direction: direction}
}

func TestThresholdSeverityBuckets(t *testing.T) {
	down := thresholdRule("r", "clicks", "b", DirectionDown)
	up := thresholdRule("r", "clicks", "b", DirectionUp)

	tests := []struct {
		rule  *Rule
		ratio float64
		want  string
	}{
		{&down, 0.65, core.SeverityCritical},
		{&down, 0.70, core.SeverityWarning},
		{&down, 0.80, core.SeverityWarning},
		{&down, 0.85, core.SeverityNormal},
		{&down, 1.10, core.SeverityNormal},
		{&up, 1.60, core.SeverityCritical},
		{&up, 1.50, core.SeverityWarning},
		{&up, 1.30, core.SeverityWarning},
		{&up, 1.20, core.SeverityNormal},
		{&up, 0.90, core.SeverityNormal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.rule.thresholdSeverity(tt.ratio),
			"direction=%s ratio=%v", tt.rule.Direction, tt.ratio)
	}
}

func TestEvaluateThresholdRule(t *testing.T) {
	rules := &RuleSet{Name: "test", Rules: []Rule{
		thresholdRule("clicks-drop", "clicks", "clicks_rolling_mean_7", DirectionDown),
	}}

	preds := []core.Prediction{
		prediction("c1", "clicks", 30), // ratio 0.6 vs baseline 50 -> critical
		prediction("c2", "clicks", 48), // ratio 0.96 -> normal, no alert
	}
	rows := []core.FeatureRow{
		row("c1", map[string]float64{"clicks_rolling_mean_7": 50}),
		row("c2", map[string]float64{"clicks_rolling_mean_7": 50}),
	}

	outcome := NewEngine(zap.NewNop().Sugar()).Evaluate(rules, preds, rows, asOf)
	require.Len(t, outcome.Alerts, 1)
	assert.Empty(t, outcome.Gaps)

	alert := outcome.Alerts[0]
	assert.Equal(t, "c1", alert.EntityID)
	assert.Equal(t, "clicks-drop", alert.RuleID)
	assert.Equal(t, core.SeverityCritical, alert.Severity)
	assert.InDelta(t, 0.6, alert.Ratio, 1e-12)
	assert.Equal(t, 30.0, alert.Predicted)
	assert.Equal(t, 50.0, alert.Baseline)
}

func TestEvaluateMissingPredictionIsGapNotError(t *testing.T) {
	rules := &RuleSet{Name: "test", Rules: []Rule{
		thresholdRule("clicks-drop", "clicks", "clicks_rolling_mean_7", DirectionDown),
		thresholdRule("spend-spike", "spend", "spend_rolling_mean_7", DirectionUp),
	}}

	preds := []core.Prediction{prediction("c1", "clicks", 30)}
	rows := []core.FeatureRow{
		row("c1", map[string]float64{"clicks_rolling_mean_7": 50, "spend_rolling_mean_7": 0}),
	}

	outcome := NewEngine(zap.NewNop().Sugar()).Evaluate(rules, preds, rows, asOf)
	require.Len(t, outcome.Alerts, 1, "the clicks rule still fires")
	require.Len(t, outcome.Gaps, 1)
	assert.Equal(t, "spend", outcome.Gaps[0].Metric)
	assert.Contains(t, outcome.Gaps[0].Reason, "spend-spike")
}

func TestEvaluateZeroBaselineIsGap(t *testing.T) {
	rules := &RuleSet{Name: "test", Rules: []Rule{
		thresholdRule("clicks-drop", "clicks", "clicks_rolling_mean_7", DirectionDown),
	}}

	preds := []core.Prediction{prediction("c1", "clicks", 30)}
	rows := []core.FeatureRow{row("c1", map[string]float64{"clicks_rolling_mean_7": 0})}

	outcome := NewEngine(zap.NewNop().Sugar()).Evaluate(rules, preds, rows, asOf)
	assert.Empty(t, outcome.Alerts)
	require.Len(t, outcome.Gaps, 1)
	assert.Contains(t, outcome.Gaps[0].Reason, "no baseline")
}

func TestEvaluateTrendRule(t *testing.T) {
	rules := &RuleSet{Name: "test", Rules: []Rule{
		{ID: "ctr-slide", Kind: KindTrend, Feature: "ctr_link_pct_change",
			Direction: DirectionDown, Limit: 0.3, Severity: core.SeverityWarning},
	}}

	rows := []core.FeatureRow{
		row("c1", map[string]float64{"ctr_link_pct_change": -0.5}),
		row("c2", map[string]float64{"ctr_link_pct_change": -0.1}),
		row("c3", map[string]float64{"other": 1}),
	}

	outcome := NewEngine(zap.NewNop().Sugar()).Evaluate(rules, nil, rows, asOf)
	require.Len(t, outcome.Alerts, 1)
	assert.Equal(t, "c1", outcome.Alerts[0].EntityID)
	assert.Equal(t, core.SeverityWarning, outcome.Alerts[0].Severity)
	assert.InDelta(t, -0.5, outcome.Alerts[0].Ratio, 1e-12)

	// c3 lacks the feature: a gap on the record, same as threshold rules.
	require.Len(t, outcome.Gaps, 1)
	assert.Equal(t, "c3", outcome.Gaps[0].EntityID)
	assert.Equal(t, "ctr_link_pct_change", outcome.Gaps[0].Metric)
	assert.Contains(t, outcome.Gaps[0].Reason, "ctr-slide")
}

func TestEvaluateCompositeRule(t *testing.T) {
	rules := &RuleSet{Name: "test", Rules: []Rule{
		thresholdRule("clicks-drop", "clicks", "clicks_base", DirectionDown),
		thresholdRule("spend-spike", "spend", "spend_base", DirectionUp),
		{ID: "waste", Kind: KindComposite, Mode: "all", Rules: []string{"clicks-drop", "spend-spike"}},
	}}

	preds := []core.Prediction{
		prediction("c1", "clicks", 30), prediction("c1", "spend", 200), // both fire
		prediction("c2", "clicks", 30), prediction("c2", "spend", 100), // only clicks fires
	}
	rows := []core.FeatureRow{
		row("c1", map[string]float64{"clicks_base": 50, "spend_base": 100}),
		row("c2", map[string]float64{"clicks_base": 50, "spend_base": 100}),
	}

	outcome := NewEngine(zap.NewNop().Sugar()).Evaluate(rules, preds, rows, asOf)

	byKey := map[string]core.Alert{}
	for _, a := range outcome.Alerts {
		byKey[a.EntityID+"/"+a.RuleID] = a
	}
	require.Contains(t, byKey, "c1/waste")
	assert.NotContains(t, byKey, "c2/waste", "mode=all needs every referenced rule to fire")
	assert.Equal(t, core.SeverityCritical, byKey["c1/waste"].Severity,
		"composite takes the highest severity among its inputs")
}

func TestEvaluateIsOrderIndependent(t *testing.T) {
	base := []Rule{
		thresholdRule("clicks-drop", "clicks", "clicks_base", DirectionDown),
		{ID: "ctr-slide", Kind: KindTrend, Feature: "pct", Direction: DirectionDown,
			Limit: 0.3, Severity: core.SeverityWarning},
		{ID: "both", Kind: KindComposite, Mode: "any", Rules: []string{"clicks-drop", "ctr-slide"}},
	}
	reversed := []Rule{base[2], base[1], base[0]}

	preds := []core.Prediction{prediction("c1", "clicks", 30)}
	rows := []core.FeatureRow{row("c1", map[string]float64{"clicks_base": 50, "pct": -0.4})}

	engine := NewEngine(zap.NewNop().Sugar())
	first := engine.Evaluate(&RuleSet{Name: "a", Rules: base}, preds, rows, asOf)
	second := engine.Evaluate(&RuleSet{Name: "b", Rules: reversed}, preds, rows, asOf)

	assert.Equal(t, first.Alerts, second.Alerts)
	require.Len(t, first.Alerts, 3)
}

func TestParseRuleSet(t *testing.T) {
	doc := `
name: default
rules:
  - id: clicks-drop
    kind: threshold
    metric: clicks
    baseline: clicks_rolling_mean_7
    direction: down
  - id: spend-spike
    kind: threshold
    metric: spend
    baseline: spend_rolling_mean_7
    direction: up
    critical: 2.0
  - id: ctr-slide
    kind: trend
    feature: ctr_link_pct_change
    direction: down
    limit: 0.3
    severity: warning
  - id: waste
    kind: composite
    mode: all
    rules: [clicks-drop, spend-spike]
`
	rs, err := ParseRuleSet([]byte(doc))
	require.NoError(t, err)
	assert.Len(t, rs.Rules, 4)

	critical, warning := rs.Rules[1].thresholdBounds()
	assert.Equal(t, 2.0, critical, "document overrides the default boundary")
	assert.Equal(t, defaultUpWarning, warning)
}

func TestParseRuleSetRejectsBadDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown kind", "name: x\nrules:\n  - id: a\n    kind: banana\n"},
		{"composite references unknown rule", `
name: x
rules:
  - id: a
    kind: trend
    feature: f
    direction: down
    limit: 0.1
    severity: warning
  - id: c
    kind: composite
    mode: any
    rules: [a, ghost]
`},
		{"nested composite", `
name: x
rules:
  - id: a
    kind: trend
    feature: f
    direction: down
    limit: 0.1
    severity: warning
  - id: b
    kind: trend
    feature: g
    direction: up
    limit: 0.1
    severity: warning
  - id: c1
    kind: composite
    mode: any
    rules: [a, b]
  - id: c2
    kind: composite
    mode: any
    rules: [a, c1]
`},
		{"duplicate id", `
name: x
rules:
  - id: a
    kind: trend
    feature: f
    direction: down
    limit: 0.1
    severity: warning
  - id: a
    kind: trend
    feature: g
    direction: up
    limit: 0.1
    severity: warning
`},
		{"multi-period trend", `
name: x
rules:
  - id: a
    kind: trend
    feature: f
    direction: down
    limit: 0.1
    periods: 3
    severity: warning
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRuleSet([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}
