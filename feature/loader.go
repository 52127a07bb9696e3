package feature

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"adpulse/contract"
)

const specSchema = `{
  "type": "object",
  "required": ["name", "features"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "features": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["kind"],
        "properties": {
          "kind": {"enum": ["lag", "rolling_mean", "pct_change", "cum_sum", "calendar"]},
          "metric": {"type": "string"},
          "offset": {"type": "integer", "minimum": 1},
          "window": {"type": "integer", "minimum": 2},
          "min_periods": {"type": "integer", "minimum": 1},
          "field": {"enum": ["dow", "week"]}
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`

// LoadSpec reads, schema-checks and parses a feature spec YAML document.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feature spec file: %w", err)
	}
	return ParseSpec(data)
}

// ParseSpec schema-checks and parses a feature spec document.
func ParseSpec(data []byte) (*Spec, error) {
	if err := contract.ValidateDocument(data, specSchema); err != nil {
		return nil, fmt.Errorf("invalid feature spec document: %w", err)
	}

	var s Spec
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse feature spec: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("invalid feature spec: %w", err)
	}
	return &s, nil
}
