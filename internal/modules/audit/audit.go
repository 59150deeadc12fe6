// Package audit builds the write-once provenance record for a run: rules and
// data snapshot hashes, tool-call statistics and the skills exercised. The
// record observes the run, it never feeds back into the decision.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/aristath/risk-sentry/internal/domain"
	"github.com/aristath/risk-sentry/internal/rules"
	"github.com/aristath/risk-sentry/internal/skills"
)

var skillByAgent = map[string]string{
	"MarketRiskChain":            skills.MarketAssessor,
	"ConcentrationChain":         skills.MarketAssessor,
	"DiversificationChain":       skills.MarketAssessor,
	"LiquidityChain":             skills.LiquidityAssessor,
	"MacroToolCallingAgent":      skills.MacroToolCalling,
	"ComplianceToolCallingAgent": skills.ComplianceEvidence,
}

// Input is everything the audit record is derived from
type Input struct {
	RunID               string
	PolicyProfile       string
	Snapshot            domain.SnapshotMetrics
	RuleFindings        []domain.RuleFinding
	Findings            []*domain.Finding
	ToolCalls           []domain.ToolCall
	LLMUsed             bool
	Models              []string
	GatekeeperRationale string
	SupervisorUsed      bool
	SupervisorRationale string
	CandidateNodes      []string
	NodesExecuted       []string
	ComplianceBlocklist []string
}

// Builder assembles audit records
type Builder struct {
	rules *rules.Store
}

// New creates an audit builder
func New(store *rules.Store) *Builder {
	return &Builder{rules: store}
}

// Build assembles the record. Hashes are sha256 over canonical JSON (sorted
// keys, no whitespace), truncated to 16 hex characters, so identical inputs
// always hash identically.
func (b *Builder) Build(in Input) domain.AuditRecord {
	profile, version := b.rules.Load(in.PolicyProfile)

	toolErrors := 0
	var toolLatency int64
	for _, t := range in.ToolCalls {
		if t.Err != "" {
			toolErrors++
		}
		toolLatency += t.LatencyMS
	}

	var skillsUsed []domain.SkillUse
	seen := map[string]bool{}
	for _, f := range in.Findings {
		if f == nil {
			continue
		}
		name, ok := skillByAgent[f.Agent]
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		spec := skills.MustLookup(name)
		skillsUsed = append(skillsUsed, domain.SkillUse{
			Name:          spec.Name,
			PolicyVersion: spec.PolicyVersion,
			SkillsHash:    spec.Hash(),
		})
	}

	models := ""
	for i, m := range dedupe(in.Models) {
		if i > 0 {
			models += ", "
		}
		models += m
	}

	ts := time.Now().UTC().Format(time.RFC3339)

	return domain.AuditRecord{
		RunID:               in.RunID,
		PolicyProfile:       in.PolicyProfile,
		RulesetVersion:      version,
		RulesSnapshot:       profile.Thresholds,
		RulesSnapshotHash:   hashPayload(profile.Thresholds),
		DataSnapshotHash:    hashPayload(map[string]interface{}{"snapshot": in.Snapshot, "rules": in.RuleFindings}),
		ToolCalls:           in.ToolCalls,
		ToolCallSummary: domain.ToolCallSummary{
			Count:          len(in.ToolCalls),
			Errors:         toolErrors,
			TotalLatencyMS: toolLatency,
		},
		LLMUsed:             in.LLMUsed,
		LLMModel:            models,
		GatekeeperRationale: in.GatekeeperRationale,
		SupervisorUsed:      in.SupervisorUsed,
		SupervisorRationale: in.SupervisorRationale,
		CandidateNodes:      in.CandidateNodes,
		NodesExecuted:       in.NodesExecuted,
		SkillsUsed:          skillsUsed,
		ComplianceBlocklist: in.ComplianceBlocklist,
		Timestamp:           ts,
		TraceID:             hashPayload(map[string]interface{}{"ts": ts}),
	}
}

// hashPayload computes the canonical hash of an arbitrary payload. The
// payload is round-tripped through JSON so map keys come out sorted
// regardless of how the value was built.
func hashPayload(payload interface{}) string {
	raw, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return ""
	}
	canonical, err := json.Marshal(decoded)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])[:16]
}

func dedupe(values []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, v := range values {
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
