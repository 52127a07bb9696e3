package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ClientConfig is the declarative per-client onboarding document. Everything
// a run needs — contract, feature spec, rule set, action table, active model
// versions — is referenced here, so onboarding a client is config-only.
type ClientConfig struct {
	ClientID string `yaml:"client_id" validate:"required"`

	// Document paths, relative to the clients directory unless absolute.
	ContractPath    string `yaml:"contract" validate:"required"`
	FeatureSpecPath string `yaml:"feature_spec" validate:"required"`
	RuleSetPath     string `yaml:"rule_set" validate:"required"`
	ActionTablePath string `yaml:"action_table" validate:"required"`

	// ModelVersions pins the active artifact version per target metric.
	// The scorer never infers a version; a metric missing here is not scored.
	ModelVersions map[string]string `yaml:"model_versions" validate:"required,min=1,dive,required"`

	// MinHistoryDays overrides the pipeline default when positive.
	MinHistoryDays int `yaml:"min_history_days" validate:"gte=0"`
}

var clientValidate = validator.New()

// LoadClientConfig reads and validates the client document at
// <clientsDir>/<clientID>.yaml.
func LoadClientConfig(clientsDir, clientID string) (*ClientConfig, error) {
	path := filepath.Join(clientsDir, clientID+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read client config %s: %w", path, err)
	}

	var cc ClientConfig
	if err := yaml.Unmarshal(data, &cc); err != nil {
		return nil, fmt.Errorf("failed to parse client config %s: %w", path, err)
	}

	if err := clientValidate.Struct(&cc); err != nil {
		return nil, fmt.Errorf("invalid client config %s: %w", path, err)
	}
	if cc.ClientID != clientID {
		return nil, fmt.Errorf("client config %s declares client_id %q, expected %q", path, cc.ClientID, clientID)
	}

	// Resolve relative document paths against the clients directory.
	for _, p := range []*string{&cc.ContractPath, &cc.FeatureSpecPath, &cc.RuleSetPath, &cc.ActionTablePath} {
		if !filepath.IsAbs(*p) {
			*p = filepath.Join(clientsDir, *p)
		}
	}

	return &cc, nil
}
