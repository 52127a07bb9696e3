package recommend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"adpulse/core"
)

var asOf = time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)

func alert(entity, ruleID, severity string) core.Alert {
	return core.Alert{EntityID: entity, AsOf: asOf, RuleID: ruleID, Severity: severity, Metric: "clicks"}
}

func table(t *testing.T, actions ...Action) *Table {
	t.Helper()
	tb := &Table{Name: "test", Actions: actions}
	require.NoError(t, tb.index())
	return tb
}

func TestRecommendRanksBySeverityWeightRuleID(t *testing.T) {
	tb := table(t,
		Action{RuleID: "a-drop", Action: "inspect creative", Weight: 5},
		Action{RuleID: "b-spike", Action: "cap budget", Weight: 9},
		Action{RuleID: "c-slide", Action: "rotate audience", Weight: 9},
	)

	alerts := []core.Alert{
		alert("c1", "c-slide", core.SeverityWarning),
		alert("c1", "a-drop", core.SeverityCritical),
		alert("c1", "b-spike", core.SeverityWarning),
	}

	recs := NewEngine(zap.NewNop().Sugar()).Recommend(alerts, tb)
	require.Len(t, recs, 3)

	assert.Equal(t, "a-drop", recs[0].RuleID, "critical outranks any weight")
	assert.Equal(t, 1, recs[0].Priority)
	assert.Equal(t, "b-spike", recs[1].RuleID, "equal severity and weight falls back to rule id")
	assert.Equal(t, 2, recs[1].Priority)
	assert.Equal(t, "c-slide", recs[2].RuleID)
	assert.Equal(t, 3, recs[2].Priority)
}

func TestRecommendRankingStableUnderInputOrder(t *testing.T) {
	tb := table(t,
		Action{RuleID: "a-rule", Action: "act a", Weight: 3},
		Action{RuleID: "b-rule", Action: "act b", Weight: 3},
	)

	forward := []core.Alert{
		alert("c1", "a-rule", core.SeverityWarning),
		alert("c1", "b-rule", core.SeverityWarning),
	}
	backward := []core.Alert{forward[1], forward[0]}

	engine := NewEngine(zap.NewNop().Sugar())
	assert.Equal(t, engine.Recommend(forward, tb), engine.Recommend(backward, tb))
	assert.Equal(t, "a-rule", engine.Recommend(backward, tb)[0].RuleID)
}

func TestRecommendNoAlertsNoRows(t *testing.T) {
	tb := table(t, Action{RuleID: "a", Action: "act"})
	assert.Empty(t, NewEngine(zap.NewNop().Sugar()).Recommend(nil, tb))
}

func TestRecommendSkipsUnmappedRules(t *testing.T) {
	tb := table(t, Action{RuleID: "mapped", Action: "act"})

	recs := NewEngine(zap.NewNop().Sugar()).Recommend([]core.Alert{
		alert("c1", "mapped", core.SeverityWarning),
		alert("c1", "unmapped", core.SeverityCritical),
	}, tb)
	require.Len(t, recs, 1)
	assert.Equal(t, "mapped", recs[0].RuleID)
	assert.Equal(t, 1, recs[0].Priority, "ranks are assigned after unmapped alerts drop out")
}

func TestRecommendRendersRationale(t *testing.T) {
	tb := table(t, Action{
		RuleID:    "clicks-drop",
		Action:    "inspect creative",
		Rationale: "predicted {metric} at {ratio} of baseline ({predicted} vs {baseline}), severity {severity}",
	})

	a := alert("c1", "clicks-drop", core.SeverityCritical)
	a.Ratio, a.Predicted, a.Baseline = 0.6, 30, 50

	recs := NewEngine(zap.NewNop().Sugar()).Recommend([]core.Alert{a}, tb)
	require.Len(t, recs, 1)
	assert.Equal(t, "predicted clicks at 0.6 of baseline (30 vs 50), severity critical", recs[0].Rationale)
}

func TestParseTable(t *testing.T) {
	doc := `
name: default
actions:
  - rule_id: clicks-drop
    action: inspect creative
    rationale: "{metric} dropped to {ratio}"
    weight: 5
  - rule_id: spend-spike
    action: cap budget
    weight: 9
`
	tb, err := ParseTable([]byte(doc))
	require.NoError(t, err)

	a, ok := tb.Lookup("spend-spike")
	require.True(t, ok)
	assert.Equal(t, "cap budget", a.Action)
	assert.Equal(t, 9, a.Weight)

	_, ok = tb.Lookup("ghost")
	assert.False(t, ok)
}

func TestParseTableRejectsDuplicates(t *testing.T) {
	doc := `
name: default
actions:
  - rule_id: a
    action: one
  - rule_id: a
    action: two
`
	_, err := ParseTable([]byte(doc))
	assert.Error(t, err)
}
