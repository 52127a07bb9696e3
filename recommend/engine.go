package recommend

import (
	"sort"

	"go.uber.org/zap"

	"adpulse/core"
)

// Engine ranks fired alerts into per-entity recommendations.
type Engine struct {
	logger *zap.SugaredLogger
}

// NewEngine creates a recommendation engine.
func NewEngine(logger *zap.SugaredLogger) *Engine {
	return &Engine{logger: logger}
}

// Recommend maps each alert through the action table and ranks the result
// per entity: severity first, then action weight, then rule id as the final
// deterministic tiebreak. Priority is the 1-based rank within the entity.
// Entities with no alerts yield no rows; alerts whose rule has no action
// entry are skipped (and logged) rather than invented.
func (e *Engine) Recommend(alerts []core.Alert, table *Table) []core.Recommendation {
	type candidate struct {
		alert  *core.Alert
		action *Action
	}
	byEntity := make(map[string][]candidate)
	var entityIDs []string

	for i := range alerts {
		alert := &alerts[i]
		action, ok := table.Lookup(alert.RuleID)
		if !ok {
			e.logger.Warnw("alert rule has no action entry, skipping",
				"rule_id", alert.RuleID, "entity_id", alert.EntityID)
			continue
		}
		if _, seen := byEntity[alert.EntityID]; !seen {
			entityIDs = append(entityIDs, alert.EntityID)
		}
		byEntity[alert.EntityID] = append(byEntity[alert.EntityID], candidate{alert: alert, action: action})
	}
	sort.Strings(entityIDs)

	var recs []core.Recommendation
	for _, entityID := range entityIDs {
		candidates := byEntity[entityID]
		sort.Slice(candidates, func(i, j int) bool {
			a, b := candidates[i], candidates[j]
			if ra, rb := core.SeverityRank(a.alert.Severity), core.SeverityRank(b.alert.Severity); ra != rb {
				return ra > rb
			}
			if a.action.Weight != b.action.Weight {
				return a.action.Weight > b.action.Weight
			}
			return a.alert.RuleID < b.alert.RuleID
		})

		for rank, c := range candidates {
			recs = append(recs, core.Recommendation{
				EntityID:  entityID,
				AsOf:      c.alert.AsOf,
				Action:    c.action.Action,
				Rationale: c.action.Render(c.alert),
				RuleID:    c.alert.RuleID,
				Severity:  c.alert.Severity,
				Priority:  rank + 1,
			})
		}
	}

	e.logger.Infow("ranked recommendations", "alerts", len(alerts), "recommendations", len(recs))
	return recs
}
