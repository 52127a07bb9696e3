// Package pipeline orchestrates one daily refresh run: ingest, validate,
// features, scoring, alerts, recommendations, atomic publication.
package pipeline

import (
	"fmt"

	"adpulse/config"
	"adpulse/contract"
	"adpulse/detect"
	"adpulse/feature"
	"adpulse/recommend"
)

// ClientAssets bundles one client's declarative run inputs, loaded and
// schema-checked up front so a malformed document fails before any data is
// touched.
type ClientAssets struct {
	Client   *config.ClientConfig
	Contract *contract.Contract
	Spec     *feature.Spec
	Rules    *detect.RuleSet
	Actions  *recommend.Table
}

// LoadClientAssets loads every document a client run needs.
func LoadClientAssets(cc *config.ClientConfig) (*ClientAssets, error) {
	c, err := contract.Load(cc.ContractPath)
	if err != nil {
		return nil, fmt.Errorf("client %s: %w", cc.ClientID, err)
	}
	spec, err := feature.LoadSpec(cc.FeatureSpecPath)
	if err != nil {
		return nil, fmt.Errorf("client %s: %w", cc.ClientID, err)
	}
	rules, err := detect.LoadRuleSet(cc.RuleSetPath)
	if err != nil {
		return nil, fmt.Errorf("client %s: %w", cc.ClientID, err)
	}
	actions, err := recommend.LoadTable(cc.ActionTablePath)
	if err != nil {
		return nil, fmt.Errorf("client %s: %w", cc.ClientID, err)
	}
	return &ClientAssets{
		Client:   cc,
		Contract: c,
		Spec:     spec,
		Rules:    rules,
		Actions:  actions,
	}, nil
}
