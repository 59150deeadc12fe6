// Package reducer merges per-node findings into the run's risk report. It
// owns evidence integrity: refs outside the allow-list are stripped into
// gaps and snapshot refs are rehydrated with live values.
package reducer

import (
	"fmt"
	"strings"

	"github.com/aristath/risk-sentry/internal/domain"
	"github.com/aristath/risk-sentry/internal/skills"
)

// skillByAgent maps a finding's agent name to the skill whose evidence
// policy governs it
var skillByAgent = map[string]string{
	"MarketRiskChain":            skills.MarketAssessor,
	"ConcentrationChain":         skills.MarketAssessor,
	"DiversificationChain":       skills.MarketAssessor,
	"LiquidityChain":             skills.LiquidityAssessor,
	"MacroToolCallingAgent":      skills.MacroToolCalling,
	"ComplianceToolCallingAgent": skills.ComplianceEvidence,
}

// Input carries everything the reducer reads. Findings must be in fixed node
// order; nil slots are skipped so output order stays deterministic.
type Input struct {
	Findings []*domain.Finding
	Snapshot domain.SnapshotMetrics
	DataGaps []domain.Gap
}

// Output is the merged result
type Output struct {
	Findings   []domain.Finding
	RiskReport domain.RiskReport
	DataGaps   []domain.Gap
}

// Reduce merges findings, sanitizes evidence per skill policy and computes
// the aggregate severity. Violations become warn gaps, never errors.
func Reduce(in Input) Output {
	findings := make([]domain.Finding, 0, len(in.Findings))
	var evidenceGaps []domain.Gap

	for _, f := range in.Findings {
		if f == nil {
			continue
		}
		merged := *f
		if skillName, ok := skillByAgent[merged.Agent]; ok {
			spec := skills.MustLookup(skillName)
			merged.Evidence = sanitizeEvidence(merged.Evidence, spec.AllowedPrefixes(), in.Snapshot, &evidenceGaps)
			if spec.RequireEvidence && !hasValidEvidence(merged.Evidence) {
				evidenceGaps = append(evidenceGaps, domain.Gap{
					Type:     "evidence",
					Severity: domain.GapWarn,
					Message:  fmt.Sprintf("missing or invalid evidence for %s", merged.Agent),
				})
			}
		}
		findings = append(findings, merged)
	}

	overall := 0
	for _, f := range findings {
		if f.Severity > overall {
			overall = f.Severity
		}
	}
	summary := "no significant risk found"
	if overall > 0 {
		summary = "risks found, see findings for detail"
	}

	allGaps := append(append([]domain.Gap{}, in.DataGaps...), evidenceGaps...)
	report := domain.RiskReport{
		OverallSeverity: overall,
		Summary:         summary,
		Findings:        findings,
		DataGaps:        allGaps,
	}
	return Output{
		Findings:   findings,
		RiskReport: report,
		DataGaps:   allGaps,
	}
}

// sanitizeEvidence drops refs outside the allow-list and rehydrates snapshot
// refs from the live metrics so agents cannot smuggle stale numbers through
func sanitizeEvidence(evidence []domain.Evidence, prefixes []string, snapshot domain.SnapshotMetrics, gaps *[]domain.Gap) []domain.Evidence {
	var out []domain.Evidence
	for _, item := range evidence {
		ref := strings.TrimSpace(item.Ref)
		if ref == "" {
			continue
		}
		if !refAllowed(ref, prefixes) {
			*gaps = append(*gaps, domain.Gap{
				Type:     "evidence",
				Severity: domain.GapWarn,
				Message:  fmt.Sprintf("evidence ref not allowed: %s", ref),
			})
			continue
		}
		cleaned := domain.Evidence{Ref: ref, Value: item.Value}
		if key, ok := strings.CutPrefix(ref, "snapshot_metrics."); ok {
			if v, found := snapshot.Value(key); found {
				cleaned.Value = v
			} else {
				cleaned.Value = nil
			}
		}
		out = append(out, cleaned)
	}
	return out
}

func refAllowed(ref string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(ref, p) {
			return true
		}
	}
	return false
}

func hasValidEvidence(evidence []domain.Evidence) bool {
	if len(evidence) == 0 {
		return false
	}
	for _, e := range evidence {
		if e.Ref == "" {
			return false
		}
	}
	return true
}
