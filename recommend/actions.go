// Package recommend turns fired alerts into ranked, human-actionable
// recommendations via a declarative action table.
package recommend

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"adpulse/contract"
	"adpulse/core"
)

// Action maps one rule id to the action a human should take when it fires.
type Action struct {
	RuleID string `yaml:"rule_id"`
	Action string `yaml:"action"`
	// Rationale is a template; {metric}, {ratio}, {predicted}, {baseline}
	// and {severity} expand from the triggering alert.
	Rationale string `yaml:"rationale"`
	// Weight breaks ties between same-severity alerts; higher ranks first.
	Weight int `yaml:"weight"`
}

// Render expands the rationale template from an alert.
func (a *Action) Render(alert *core.Alert) string {
	r := strings.NewReplacer(
		"{metric}", alert.Metric,
		"{ratio}", formatNumber(alert.Ratio),
		"{predicted}", formatNumber(alert.Predicted),
		"{baseline}", formatNumber(alert.Baseline),
		"{severity}", alert.Severity,
	)
	return r.Replace(a.Rationale)
}

// formatNumber renders floats the same way everywhere so rationale text is
// reproducible across runs and platforms.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', 4, 64)
}

// Table is the loaded action table, indexed by rule id.
type Table struct {
	Name    string   `yaml:"name"`
	Actions []Action `yaml:"actions"`

	byRule map[string]*Action
}

// Lookup returns the action for a rule id, if mapped.
func (t *Table) Lookup(ruleID string) (*Action, bool) {
	a, ok := t.byRule[ruleID]
	return a, ok
}

func (t *Table) index() error {
	t.byRule = make(map[string]*Action, len(t.Actions))
	for i := range t.Actions {
		a := &t.Actions[i]
		if _, dup := t.byRule[a.RuleID]; dup {
			return fmt.Errorf("duplicate action for rule %q", a.RuleID)
		}
		t.byRule[a.RuleID] = a
	}
	return nil
}

const tableSchema = `{
  "type": "object",
  "required": ["name", "actions"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "actions": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["rule_id", "action"],
        "properties": {
          "rule_id": {"type": "string", "minLength": 1},
          "action": {"type": "string", "minLength": 1},
          "rationale": {"type": "string"},
          "weight": {"type": "integer", "minimum": 0}
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`

// LoadTable reads, schema-checks and parses an action table YAML document.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read action table file: %w", err)
	}
	return ParseTable(data)
}

// ParseTable schema-checks and parses an action table document.
func ParseTable(data []byte) (*Table, error) {
	if err := contract.ValidateDocument(data, tableSchema); err != nil {
		return nil, fmt.Errorf("invalid action table document: %w", err)
	}

	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse action table: %w", err)
	}
	if err := t.index(); err != nil {
		return nil, fmt.Errorf("invalid action table: %w", err)
	}
	return &t, nil
}
