package advisory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/risk-sentry/internal/clients/llm"
	"github.com/aristath/risk-sentry/internal/domain"
	"github.com/aristath/risk-sentry/internal/marketdata"
	"github.com/aristath/risk-sentry/internal/rules"
	"github.com/aristath/risk-sentry/internal/skills"
)

const complianceAgentName = "ComplianceToolCallingAgent"

const policySearchQuery = "restricted"

// ComplianceStore is the document-search slice the compliance agent reads
type ComplianceStore interface {
	SearchDocs(corpus, query, asofDate string, limit int) ([]marketdata.Document, error)
}

// ComplianceAgent checks target holdings against the policy blocklist and
// the compliance document corpus
type ComplianceAgent struct {
	store  ComplianceStore
	rules  *rules.Store
	client llm.Client
	log    zerolog.Logger
}

// NewComplianceAgent creates a compliance agent
func NewComplianceAgent(store ComplianceStore, ruleStore *rules.Store, client llm.Client, log zerolog.Logger) *ComplianceAgent {
	return &ComplianceAgent{
		store:  store,
		rules:  ruleStore,
		client: client,
		log:    log.With().Str("component", "compliance_agent").Logger(),
	}
}

// Run checks compliance. The blocklist is always resolved and published for
// the constraints evaluator even when the deterministic fallback is used.
func (a *ComplianceAgent) Run(ctx context.Context, normalized *domain.NormalizedState, dq domain.DataQuality) Result {
	profile := normalized.PolicyProfile
	blocklist, version := a.rules.Blocklist(profile)

	var toolCalls []domain.ToolCall
	toolCalls = append(toolCalls, callTool("allowlist_check", map[string]interface{}{"profile": profile}, func() (interface{}, error) {
		return map[string]interface{}{
			"items":      blocklist,
			"source":     version,
			"provenance": newProvenance("risk_rules", map[string]interface{}{"profile": profile}),
		}, nil
	}))

	if dq.ComplianceEligible() {
		call := callTool("policy_search", map[string]interface{}{"query": policySearchQuery}, func() (interface{}, error) {
			docs, err := a.store.SearchDocs(marketdata.CorpusCompliance, policySearchQuery, normalized.AsOfDate, 5)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"query":      policySearchQuery,
				"hits":       docs,
				"provenance": newProvenance("compliance_docs", map[string]interface{}{"query": policySearchQuery, "hits": len(docs)}),
			}, nil
		})
		toolCalls = append(toolCalls, call)
	}

	result := Result{
		ToolCalls: toolCalls,
		Blocklist: blocklist,
	}

	if a.client == nil {
		result.Finding = complianceFallbackFinding(normalized, blocklist)
		return result
	}

	finding, schemaErrs, err := a.narrate(ctx, normalized, blocklist)
	result.LLMUsed = true
	result.LLMModel = a.client.Model()
	if err != nil {
		a.log.Warn().Err(err).Msg("Compliance LLM call failed, using deterministic finding")
		result.LLMUsed = false
		result.Finding = complianceFallbackFinding(normalized, blocklist)
		return result
	}
	if len(schemaErrs) > 0 {
		result.ToolCalls = append(result.ToolCalls, domain.ToolCall{
			Tool: "schema_validation",
			Err:  fmt.Sprintf("compliance skill output invalid: %v", schemaErrs),
		})
		result.Finding = complianceFallbackFinding(normalized, blocklist)
		return result
	}
	result.Finding = finding
	return result
}

func (a *ComplianceAgent) narrate(ctx context.Context, normalized *domain.NormalizedState, blocklist []string) (*domain.Finding, []string, error) {
	skill := skills.MustLookup(skills.ComplianceEvidence)

	payload := map[string]interface{}{
		"target_weights": normalized.TargetWeights,
		"policy_profile": normalized.PolicyProfile,
		"blocklist":      blocklist,
		"jurisdiction":   normalized.Jurisdiction,
		"account_type":   normalized.AccountType,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}

	system := "You check a portfolio rebalance for compliance problems. " +
		"Return a JSON finding with keys: agent, risk_type, severity, summary, evidence, recommendations, policy_ids. " +
		"Evidence refs may only use snapshot_metrics., rules. or tool: prefixes."
	content, err := a.client.Chat(ctx, system, string(body))
	if err != nil {
		return nil, nil, err
	}

	var finding domain.Finding
	if err := json.Unmarshal([]byte(content), &finding); err != nil {
		return nil, []string{"invalid json"}, nil
	}
	finding.Agent = complianceAgentName
	finding.RiskType = "compliance"
	if errs := skill.ValidateOutput(finding); len(errs) > 0 {
		return nil, errs, nil
	}
	return &finding, nil, nil
}

// complianceFallbackFinding flags block-listed targets without any LLM help
func complianceFallbackFinding(normalized *domain.NormalizedState, blocklist []string) *domain.Finding {
	blockSet := make(map[string]bool, len(blocklist))
	for _, s := range blocklist {
		blockSet[s] = true
	}
	var blocked []string
	for symbol := range normalized.TargetWeights {
		if blockSet[symbol] {
			blocked = append(blocked, symbol)
		}
	}
	sort.Strings(blocked)

	severity := 0
	summary := "no compliance issues found"
	var policyIDs []string
	if len(blocked) > 0 {
		severity = 3
		summary = fmt.Sprintf("targets include block-listed assets: %s", strings.Join(blocked, ", "))
		policyIDs = []string{"blocklist"}
	}
	return &domain.Finding{
		Agent:           complianceAgentName,
		RiskType:        "compliance",
		Severity:        severity,
		Summary:         summary,
		PolicyIDs:       policyIDs,
		Evidence:        []domain.Evidence{{Ref: "tool:compliance_blocklist", Value: blocked}},
		Recommendations: []string{"review compliance rules"},
	}
}
