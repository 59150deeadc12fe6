package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/risk-sentry/internal/domain"
)

func ruleFinding(ruleID string, tier domain.RuleTier) domain.RuleFinding {
	return domain.RuleFinding{
		RuleID:   ruleID,
		Severity: tier,
		Level:    tier.Level(),
		Message:  ruleID + " breached",
	}
}

func TestDecide_TierMapping(t *testing.T) {
	tests := []struct {
		name        string
		rules       []domain.RuleFinding
		reportLevel int
		dqStatus    domain.QualityStatus
		want        domain.DecisionTier
	}{
		{
			name:     "clean run passes",
			dqStatus: domain.QualityOK,
			want:     domain.DecisionPass,
		},
		{
			name:     "block rule blocks",
			rules:    []domain.RuleFinding{ruleFinding("blocklist", domain.TierBlock)},
			dqStatus: domain.QualityOK,
			want:     domain.DecisionBlock,
		},
		{
			name:     "restrict rule restricts",
			rules:    []domain.RuleFinding{ruleFinding("max_single_weight", domain.TierRestrict)},
			dqStatus: domain.QualityOK,
			want:     domain.DecisionRestrict,
		},
		{
			name:        "severe report restricts without rules",
			reportLevel: 2,
			dqStatus:    domain.QualityOK,
			want:        domain.DecisionRestrict,
		},
		{
			name:        "mild report warns",
			reportLevel: 1,
			dqStatus:    domain.QualityOK,
			want:        domain.DecisionWarn,
		},
		{
			name:     "warn rule alone passes",
			rules:    []domain.RuleFinding{ruleFinding("max_hhi", domain.TierWarn)},
			dqStatus: domain.QualityOK,
			want:     domain.DecisionPass,
		},
		{
			name:     "degraded data warns",
			dqStatus: domain.QualityDegraded,
			want:     domain.DecisionWarn,
		},
		{
			name:        "block dominates severe report",
			rules:       []domain.RuleFinding{ruleFinding("blocklist", domain.TierBlock)},
			reportLevel: 2,
			dqStatus:    domain.QualityOK,
			want:        domain.DecisionBlock,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := Decide(tt.rules, domain.RiskReport{OverallSeverity: tt.reportLevel}, domain.DataQuality{Status: tt.dqStatus})

			assert.Equal(t, tt.want, d.Decision)
			assert.Equal(t, tt.reportLevel, d.ReportLevel)
		})
	}
}

func TestDecide_BindingConstraints(t *testing.T) {
	rules := []domain.RuleFinding{
		ruleFinding("max_hhi", domain.TierWarn),
		ruleFinding("max_single_weight", domain.TierRestrict),
		ruleFinding("blocklist", domain.TierBlock),
	}

	_, binding := Decide(rules, domain.RiskReport{}, domain.DataQuality{Status: domain.QualityOK})

	// Warn findings are advisory, not binding
	require.Len(t, binding, 2)
	assert.Equal(t, "max_single_weight", binding[0].RuleID)
	assert.Equal(t, "blocklist", binding[1].RuleID)
}

func TestDecide_LevelFallsBackToTier(t *testing.T) {
	// A finding with Level left at zero still counts through its tier
	rules := []domain.RuleFinding{{RuleID: "max_single_weight", Severity: domain.TierRestrict}}

	d, _ := Decide(rules, domain.RiskReport{}, domain.DataQuality{Status: domain.QualityOK})

	assert.Equal(t, domain.DecisionRestrict, d.Decision)
	assert.Equal(t, 2, d.RuleLevel)
}
