package skills

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup_KnownSkills(t *testing.T) {
	for _, name := range []string{
		MarketAssessor,
		LiquidityAssessor,
		MacroToolCalling,
		ComplianceEvidence,
		SupervisorRouter,
	} {
		spec, ok := Lookup(name)
		require.True(t, ok, name)
		assert.Equal(t, name, spec.Name)
		assert.NotEmpty(t, spec.Hash())
		assert.Len(t, spec.Hash(), 16)
	}
}

func TestLookup_UnknownSkill(t *testing.T) {
	_, ok := Lookup("nonexistent-skill")
	assert.False(t, ok)
}

func TestMustLookup_PanicsOnUnknown(t *testing.T) {
	assert.Panics(t, func() { MustLookup("nonexistent-skill") })
}

func TestSpec_AllowedPrefixes(t *testing.T) {
	macro := MustLookup(MacroToolCalling)
	assert.Equal(t, []string{"snapshot_metrics.", "tool:"}, macro.AllowedPrefixes())

	// Skills without an explicit list fall back to the defaults
	market := MustLookup(MarketAssessor)
	assert.Equal(t, DefaultEvidencePrefixes, market.AllowedPrefixes())
}

func TestSpec_ValidateOutput_Finding(t *testing.T) {
	spec := MustLookup(MarketAssessor)

	tests := []struct {
		name      string
		candidate map[string]interface{}
		wantValid bool
	}{
		{
			name:      "minimal valid",
			candidate: map[string]interface{}{"severity": 1, "summary": "volatility elevated"},
			wantValid: true,
		},
		{
			name: "with evidence",
			candidate: map[string]interface{}{
				"severity": 2,
				"summary":  "concentration high",
				"evidence": []interface{}{map[string]interface{}{"ref": "snapshot_metrics.hhi"}},
			},
			wantValid: true,
		},
		{
			name:      "missing summary",
			candidate: map[string]interface{}{"severity": 0},
			wantValid: false,
		},
		{
			name:      "severity out of range",
			candidate: map[string]interface{}{"severity": 7, "summary": "x"},
			wantValid: false,
		},
		{
			name: "evidence missing ref",
			candidate: map[string]interface{}{
				"severity": 1,
				"summary":  "x",
				"evidence": []interface{}{map[string]interface{}{"value": 1.0}},
			},
			wantValid: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := spec.ValidateOutput(tt.candidate)
			if tt.wantValid {
				assert.Empty(t, errs)
			} else {
				assert.NotEmpty(t, errs)
			}
		})
	}
}

func TestSpec_ValidateOutput_AcceptsStructs(t *testing.T) {
	spec := MustLookup(SupervisorRouter)

	candidate := struct {
		NodesToRun []string `json:"nodes_to_run"`
		Rationale  string   `json:"rationale"`
	}{
		NodesToRun: []string{"market"},
		Rationale:  "volatility elevated",
	}

	assert.Empty(t, spec.ValidateOutput(candidate))
}

func TestSpec_ValidateOutput_SupervisorMissingRationale(t *testing.T) {
	spec := MustLookup(SupervisorRouter)

	errs := spec.ValidateOutput(map[string]interface{}{"nodes_to_run": []interface{}{"market"}})
	assert.NotEmpty(t, errs)
}

func TestSpec_HashStableAndDistinct(t *testing.T) {
	a := MustLookup(MarketAssessor)
	b := MustLookup(SupervisorRouter)

	assert.Equal(t, a.Hash(), a.Hash())
	assert.NotEqual(t, a.Hash(), b.Hash())
}
