package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/risk-sentry/internal/domain"
	"github.com/aristath/risk-sentry/internal/rules"
	"github.com/aristath/risk-sentry/internal/skills"
	"github.com/aristath/risk-sentry/pkg/logger"
)

func newTestBuilder() *Builder {
	return New(rules.NewStore("", logger.Nop()))
}

func TestBuilder_Build_RecordBasics(t *testing.T) {
	b := newTestBuilder()

	record := b.Build(Input{
		RunID:               "run-1",
		PolicyProfile:       "default",
		GatekeeperRationale: "ok",
		CandidateNodes:      []string{"market", "liquidity"},
		NodesExecuted:       []string{"market"},
	})

	assert.Equal(t, "run-1", record.RunID)
	assert.Equal(t, "default", record.PolicyProfile)
	assert.Equal(t, rules.VersionBuiltin, record.RulesetVersion)
	assert.NotEmpty(t, record.RulesSnapshot)
	assert.Len(t, record.RulesSnapshotHash, 16)
	assert.Len(t, record.DataSnapshotHash, 16)
	assert.NotEmpty(t, record.Timestamp)
	assert.Len(t, record.TraceID, 16)
	assert.Equal(t, []string{"market"}, record.NodesExecuted)
}

func TestBuilder_Build_HashesAreDeterministic(t *testing.T) {
	b := newTestBuilder()
	in := Input{
		RunID:         "run-1",
		PolicyProfile: "default",
		Snapshot:      domain.SnapshotMetrics{PortfolioVolatility: 0.2, HHI: 0.3},
		RuleFindings: []domain.RuleFinding{
			{RuleID: "max_hhi", Severity: domain.TierWarn, Value: 0.3, Limit: 0.25},
		},
	}

	a := b.Build(in)
	c := b.Build(in)

	assert.Equal(t, a.RulesSnapshotHash, c.RulesSnapshotHash)
	assert.Equal(t, a.DataSnapshotHash, c.DataSnapshotHash)
}

func TestBuilder_Build_DataHashTracksInputs(t *testing.T) {
	b := newTestBuilder()

	a := b.Build(Input{Snapshot: domain.SnapshotMetrics{PortfolioVolatility: 0.1}})
	c := b.Build(Input{Snapshot: domain.SnapshotMetrics{PortfolioVolatility: 0.2}})

	assert.NotEqual(t, a.DataSnapshotHash, c.DataSnapshotHash)
	assert.Equal(t, a.RulesSnapshotHash, c.RulesSnapshotHash)
}

func TestBuilder_Build_ToolCallSummary(t *testing.T) {
	b := newTestBuilder()

	record := b.Build(Input{
		ToolCalls: []domain.ToolCall{
			{Tool: "macro_timeseries", LatencyMS: 12},
			{Tool: "macro_search", LatencyMS: 8, Err: "corpus unavailable"},
			{Tool: "allowlist_check", LatencyMS: 3},
		},
	})

	assert.Equal(t, 3, record.ToolCallSummary.Count)
	assert.Equal(t, 1, record.ToolCallSummary.Errors)
	assert.Equal(t, int64(23), record.ToolCallSummary.TotalLatencyMS)
}

func TestBuilder_Build_SkillsDedupedByName(t *testing.T) {
	b := newTestBuilder()

	record := b.Build(Input{
		Findings: []*domain.Finding{
			{Agent: "MarketRiskChain"},
			{Agent: "ConcentrationChain"},
			nil,
			{Agent: "LiquidityChain"},
			{Agent: "UnknownAgent"},
		},
	})

	// Market and concentration chains share one skill
	require.Len(t, record.SkillsUsed, 2)
	assert.Equal(t, skills.MarketAssessor, record.SkillsUsed[0].Name)
	assert.Equal(t, skills.LiquidityAssessor, record.SkillsUsed[1].Name)
	for _, use := range record.SkillsUsed {
		assert.NotEmpty(t, use.PolicyVersion)
		assert.Len(t, use.SkillsHash, 16)
	}
}

func TestBuilder_Build_ModelsJoinedAndDeduped(t *testing.T) {
	b := newTestBuilder()

	record := b.Build(Input{
		LLMUsed: true,
		Models:  []string{"gpt-risk-1", "", "gpt-risk-1", "gpt-risk-2"},
	})

	assert.True(t, record.LLMUsed)
	assert.Equal(t, "gpt-risk-1, gpt-risk-2", record.LLMModel)
}
