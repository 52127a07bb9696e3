package contract

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// contractSchema validates the structural shape of a contract document before
// unmarshalling, so a malformed document fails with a field-level message
// instead of a zero-valued contract.
const contractSchema = `{
  "type": "object",
  "required": ["name", "fields"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "monotonic_dates": {"type": "boolean"},
    "fields": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name", "type"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "type": {"enum": ["string", "numeric", "date"]},
          "required": {"type": "boolean"},
          "nullable": {"type": "boolean"},
          "min": {"type": "number"},
          "max": {"type": "number"},
          "allowed": {"type": "array", "items": {"type": "string"}}
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`

// Load reads, schema-checks and parses a contract YAML document.
func Load(path string) (*Contract, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read contract file: %w", err)
	}
	return Parse(data)
}

// Parse schema-checks and parses a contract document.
func Parse(data []byte) (*Contract, error) {
	if err := ValidateDocument(data, contractSchema); err != nil {
		return nil, fmt.Errorf("invalid contract document: %w", err)
	}

	var c Contract
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse contract: %w", err)
	}
	return &c, nil
}

// ValidateDocument checks YAML bytes against a JSON schema by round-tripping
// through JSON. The feature, rule and action-table loaders reuse it for their
// own documents.
func ValidateDocument(data []byte, schema string) error {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("not valid YAML: %w", err)
	}
	jsonDoc, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to convert document to JSON: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewBytesLoader(jsonDoc),
	)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		msgs := ""
		for _, e := range result.Errors() {
			if msgs != "" {
				msgs += "; "
			}
			msgs += e.String()
		}
		return fmt.Errorf("%s", msgs)
	}
	return nil
}
