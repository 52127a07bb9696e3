package detect

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"adpulse/contract"
)

const ruleSetSchema = `{
  "type": "object",
  "required": ["name", "rules"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "rules": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "kind"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "kind": {"enum": ["threshold", "trend", "composite"]},
          "metric": {"type": "string"},
          "baseline": {"type": "string"},
          "direction": {"enum": ["down", "up"]},
          "critical": {"type": "number"},
          "warning": {"type": "number"},
          "feature": {"type": "string"},
          "limit": {"type": "number"},
          "periods": {"type": "integer", "minimum": 1},
          "severity": {"enum": ["critical", "warning"]},
          "mode": {"enum": ["all", "any"]},
          "rules": {"type": "array", "items": {"type": "string"}}
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`

// LoadRuleSet reads, schema-checks and parses a rule set YAML document.
func LoadRuleSet(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule set file: %w", err)
	}
	return ParseRuleSet(data)
}

// ParseRuleSet schema-checks and parses a rule set document.
func ParseRuleSet(data []byte) (*RuleSet, error) {
	if err := contract.ValidateDocument(data, ruleSetSchema); err != nil {
		return nil, fmt.Errorf("invalid rule set document: %w", err)
	}

	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("failed to parse rule set: %w", err)
	}
	if err := rs.validate(); err != nil {
		return nil, fmt.Errorf("invalid rule set: %w", err)
	}
	return &rs, nil
}
