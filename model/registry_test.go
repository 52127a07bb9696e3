package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"adpulse/core"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(t.TempDir(), zap.NewNop().Sugar())
	require.NoError(t, err)
	return r
}

func testArtifact(family, version string) *Artifact {
	return &Artifact{
		Family:       family,
		Version:      version,
		Inputs:       []string{"clicks_lag_1", "clicks_rolling_mean_7"},
		Coefficients: []float64{0.4, 0.6},
		Intercept:    1.5,
		Confidence:   0.83,
	}
}

func TestRegistryRoundTrip(t *testing.T) {
	r := testRegistry(t)
	ref := Ref{Family: "ctr_link", Version: "1.0.0"}

	meta := &Metadata{
		Family:      "ctr_link",
		Version:     "1.0.0",
		TrainedAt:   time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC),
		CutoffDate:  time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		DatasetSize: 4200,
		Features:    []string{"clicks_lag_1", "clicks_rolling_mean_7"},
		MAE:         0.004,
		RMSE:        0.007,
		R2:          0.81,
	}
	require.NoError(t, r.Register(testArtifact("ctr_link", "1.0.0"), meta))

	loaded, err := r.Load(ref)
	require.NoError(t, err)
	assert.Equal(t, testArtifact("ctr_link", "1.0.0"), loaded)

	gotMeta, err := r.LoadMetadata(ref)
	require.NoError(t, err)
	assert.Equal(t, meta, gotMeta)
}

func TestRegistryIsAppendOnly(t *testing.T) {
	r := testRegistry(t)
	require.NoError(t, r.Register(testArtifact("cpa", "1.0.0"), nil))

	changed := testArtifact("cpa", "1.0.0")
	changed.Intercept = 99
	err := r.Register(changed, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")

	// The original artifact is untouched.
	loaded, err := r.Load(Ref{Family: "cpa", Version: "1.0.0"})
	require.NoError(t, err)
	assert.Equal(t, 1.5, loaded.Intercept)
}

func TestRegistryMissingVersionIsErrModelNotFound(t *testing.T) {
	r := testRegistry(t)
	require.NoError(t, r.Register(testArtifact("cpa", "1.0.0"), nil))

	_, err := r.Load(Ref{Family: "cpa", Version: "2.0.0"})
	assert.ErrorIs(t, err, core.ErrModelNotFound)

	_, err = r.Load(Ref{Family: "nope", Version: "1.0.0"})
	assert.ErrorIs(t, err, core.ErrModelNotFound)

	_, err = r.ListVersions("nope")
	assert.ErrorIs(t, err, core.ErrModelNotFound)
}

func TestRegistryListVersionsNewestFirst(t *testing.T) {
	r := testRegistry(t)
	for _, v := range []string{"1.0.0", "1.2.0", "1.10.0", "0.9.0"} {
		require.NoError(t, r.Register(testArtifact("spend", v), nil))
	}

	versions, err := r.ListVersions("spend")
	require.NoError(t, err)
	assert.Equal(t, []string{"1.10.0", "1.2.0", "1.0.0", "0.9.0"}, versions, "numeric ordering, not lexical")

	latest, err := r.LatestVersion("spend")
	require.NoError(t, err)
	assert.Equal(t, "1.10.0", latest)
}

func TestRegistryRejectsInvalidArtifacts(t *testing.T) {
	r := testRegistry(t)

	bad := testArtifact("ctr_link", "1.0.0")
	bad.Coefficients = []float64{0.4}
	assert.Error(t, r.Register(bad, nil), "coefficient/input length mismatch")

	bad = testArtifact("ctr_link", "v1")
	assert.Error(t, r.Register(bad, nil), "non-semver version")
}

func TestCacheServesRepeatLoads(t *testing.T) {
	r := testRegistry(t)
	require.NoError(t, r.Register(testArtifact("cpa", "1.0.0"), nil))

	c, err := NewCache(r, 4)
	require.NoError(t, err)

	first, err := c.Load(Ref{Family: "cpa", Version: "1.0.0"})
	require.NoError(t, err)
	second, err := c.Load(Ref{Family: "cpa", Version: "1.0.0"})
	require.NoError(t, err)
	assert.Same(t, first, second, "second load is a cache hit")

	_, err = c.Load(Ref{Family: "cpa", Version: "9.9.9"})
	assert.ErrorIs(t, err, core.ErrModelNotFound)
}

func TestVersionHelpers(t *testing.T) {
	cmp, err := CompareVersions("1.2.3", "1.10.0")
	require.NoError(t, err)
	assert.Equal(t, -1, cmp)

	next, err := IncrementVersion("1.2.3", "minor")
	require.NoError(t, err)
	assert.Equal(t, "1.3.0", next)

	_, _, _, err = ParseVersion("1.2")
	assert.Error(t, err)
}
