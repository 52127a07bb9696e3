package detect

import (
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"adpulse/core"
)

// Engine evaluates a rule set over one run's predictions and feature rows.
type Engine struct {
	logger *zap.SugaredLogger
}

// NewEngine creates a rule engine.
func NewEngine(logger *zap.SugaredLogger) *Engine {
	return &Engine{logger: logger}
}

// Outcome is the result of one evaluation pass.
type Outcome struct {
	// Alerts holds only firing rules (critical or warning), sorted by
	// (entity id, rule id). Normal outcomes produce no row.
	Alerts []core.Alert
	// Gaps lists entity/metric pairs a rule wanted but had no prediction or
	// baseline for. A gap suppresses the rule for that entity; it is never
	// an error.
	Gaps []core.PredictionGap
}

// Evaluate runs every rule against every entity that has a feature row.
// Independent rules see only predictions and features; composites see only
// the independents' finished results. Rule order in the set cannot change
// the outcome.
func (e *Engine) Evaluate(rules *RuleSet, predictions []core.Prediction, rows []core.FeatureRow, asOf time.Time) *Outcome {
	predIndex := make(map[string]map[string]*core.Prediction)
	for i := range predictions {
		p := &predictions[i]
		byMetric, ok := predIndex[p.EntityID]
		if !ok {
			byMetric = make(map[string]*core.Prediction)
			predIndex[p.EntityID] = byMetric
		}
		byMetric[p.Metric] = p
	}

	rowIndex := make(map[string]*core.FeatureRow, len(rows))
	entityIDs := make([]string, 0, len(rows))
	for i := range rows {
		rowIndex[rows[i].EntityID] = &rows[i]
		entityIDs = append(entityIDs, rows[i].EntityID)
	}
	sort.Strings(entityIDs)

	outcome := &Outcome{}

	// fired maps entity id -> rule id -> severity, for composite evaluation.
	fired := make(map[string]map[string]string)
	record := func(alert core.Alert) {
		outcome.Alerts = append(outcome.Alerts, alert)
		byRule, ok := fired[alert.EntityID]
		if !ok {
			byRule = make(map[string]string)
			fired[alert.EntityID] = byRule
		}
		byRule[alert.RuleID] = alert.Severity
	}

	for _, entityID := range entityIDs {
		row := rowIndex[entityID]
		for i := range rules.Rules {
			rule := &rules.Rules[i]
			switch rule.Kind {
			case KindThreshold:
				alert, gap := evalThreshold(rule, entityID, predIndex[entityID], row, asOf)
				if gap != nil {
					outcome.Gaps = append(outcome.Gaps, *gap)
				}
				if alert != nil {
					record(*alert)
				}
			case KindTrend:
				alert, gap := evalTrend(rule, entityID, row, asOf)
				if gap != nil {
					outcome.Gaps = append(outcome.Gaps, *gap)
				}
				if alert != nil {
					record(*alert)
				}
			}
		}
	}

	// Composites run strictly after the independents.
	for _, entityID := range entityIDs {
		for i := range rules.Rules {
			rule := &rules.Rules[i]
			if rule.Kind != KindComposite {
				continue
			}
			if alert := evalComposite(rule, entityID, fired[entityID], asOf); alert != nil {
				outcome.Alerts = append(outcome.Alerts, *alert)
			}
		}
	}

	sort.Slice(outcome.Alerts, func(i, j int) bool {
		a, b := outcome.Alerts[i], outcome.Alerts[j]
		if a.EntityID != b.EntityID {
			return a.EntityID < b.EntityID
		}
		return a.RuleID < b.RuleID
	})

	e.logger.Infow("evaluated rule set",
		"rules", len(rules.Rules), "entities", len(entityIDs),
		"alerts", len(outcome.Alerts), "gaps", len(outcome.Gaps))
	return outcome
}

func evalThreshold(rule *Rule, entityID string, preds map[string]*core.Prediction, row *core.FeatureRow, asOf time.Time) (*core.Alert, *core.PredictionGap) {
	pred, ok := preds[rule.Metric]
	if !ok {
		return nil, &core.PredictionGap{EntityID: entityID, Metric: rule.Metric, Reason: "no prediction for rule " + rule.ID}
	}

	baseline, ok := row.Value(rule.Baseline)
	if !ok || math.IsNaN(baseline) || baseline == 0 {
		return nil, &core.PredictionGap{EntityID: entityID, Metric: rule.Metric, Reason: "no baseline for rule " + rule.ID}
	}

	ratio := pred.Value / baseline
	severity := rule.thresholdSeverity(ratio)
	if severity == core.SeverityNormal {
		return nil, nil
	}
	return &core.Alert{
		EntityID:  entityID,
		AsOf:      asOf,
		RuleID:    rule.ID,
		Severity:  severity,
		Metric:    rule.Metric,
		Ratio:     ratio,
		Predicted: pred.Value,
		Baseline:  baseline,
	}, nil
}

func evalTrend(rule *Rule, entityID string, row *core.FeatureRow, asOf time.Time) (*core.Alert, *core.PredictionGap) {
	value, ok := row.Value(rule.Feature)
	if !ok || math.IsNaN(value) {
		return nil, &core.PredictionGap{EntityID: entityID, Metric: rule.Feature, Reason: "no feature for rule " + rule.ID}
	}

	firing := false
	if rule.Direction == DirectionDown {
		firing = value < -rule.Limit
	} else {
		firing = value > rule.Limit
	}
	if !firing {
		return nil, nil
	}
	return &core.Alert{
		EntityID: entityID,
		AsOf:     asOf,
		RuleID:   rule.ID,
		Severity: rule.Severity,
		Metric:   rule.Feature,
		Ratio:    value,
	}, nil
}

func evalComposite(rule *Rule, entityID string, fired map[string]string, asOf time.Time) *core.Alert {
	hits := 0
	severity := core.SeverityWarning
	for _, ref := range rule.Rules {
		refSeverity, ok := fired[ref]
		if !ok {
			continue
		}
		hits++
		if core.SeverityRank(refSeverity) > core.SeverityRank(severity) {
			severity = refSeverity
		}
	}

	switch rule.Mode {
	case "all":
		if hits < len(rule.Rules) {
			return nil
		}
	case "any":
		if hits == 0 {
			return nil
		}
	}
	return &core.Alert{
		EntityID: entityID,
		AsOf:     asOf,
		RuleID:   rule.ID,
		Severity: severity,
	}
}
