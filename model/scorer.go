package model

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"adpulse/core"
)

// Scorer applies pinned model versions to feature rows. Pure: same rows plus
// same versions equals same predictions, byte for byte.
type Scorer struct {
	cache  *Cache
	logger *zap.SugaredLogger
}

// NewScorer creates a scorer over a cached registry.
func NewScorer(cache *Cache, logger *zap.SugaredLogger) *Scorer {
	return &Scorer{cache: cache, logger: logger}
}

// Result is the outcome of scoring one model family over the feature rows.
type Result struct {
	Predictions []core.Prediction
	Gaps        []core.PredictionGap
}

// ScoreFamily scores every complete row with one pinned artifact version.
// Absent versions return ErrModelNotFound. A row whose schema disagrees with
// the artifact's input schema is a FeatureMismatchError: the run is built
// against the wrong spec and must fail before publishing anything.
// Incomplete rows are skipped and recorded as gaps.
func (s *Scorer) ScoreFamily(rows []core.FeatureRow, family, version string) (*Result, error) {
	artifact, err := s.cache.Load(Ref{Family: family, Version: version})
	if err != nil {
		return nil, err
	}
	if artifact.Family != family {
		return nil, fmt.Errorf("registry returned family %s for requested %s", artifact.Family, family)
	}

	result := &Result{}
	for i := range rows {
		row := &rows[i]
		if row.Incomplete {
			result.Gaps = append(result.Gaps, core.PredictionGap{
				EntityID: row.EntityID,
				Metric:   family,
				Reason:   "incomplete history",
			})
			continue
		}
		if !row.SchemaEquals(artifact.Inputs) {
			return nil, &core.FeatureMismatchError{
				Version: Ref{Family: family, Version: version}.String(),
				Want:    artifact.Inputs,
				Got:     row.Names,
			}
		}
		if !Defined(row.Values) {
			result.Gaps = append(result.Gaps, core.PredictionGap{
				EntityID: row.EntityID,
				Metric:   family,
				Reason:   "undefined feature value",
			})
			continue
		}

		result.Predictions = append(result.Predictions, core.Prediction{
			EntityID:     row.EntityID,
			AsOf:         row.AsOf,
			ModelVersion: version,
			Metric:       family,
			Value:        artifact.Predict(row.Values),
			Confidence:   artifact.Confidence,
		})
	}

	s.logger.Infow("scored feature rows",
		"family", family, "version", version,
		"predictions", len(result.Predictions), "gaps", len(result.Gaps))
	return result, nil
}

// ScoreAll runs every configured family over the rows in sorted family
// order. versions maps target metric to its pinned artifact version.
func (s *Scorer) ScoreAll(rows []core.FeatureRow, versions map[string]string) (*Result, error) {
	combined := &Result{}
	for _, family := range sortedKeys(versions) {
		res, err := s.ScoreFamily(rows, family, versions[family])
		if err != nil {
			return nil, err
		}
		combined.Predictions = append(combined.Predictions, res.Predictions...)
		combined.Gaps = append(combined.Gaps, res.Gaps...)
	}
	return combined, nil
}

// sortedKeys fixes family evaluation order; map iteration must never decide
// artifact ordering.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
