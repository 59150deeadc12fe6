// Package gatekeeper decides whether a run proceeds past validation and data
// quality, and which analysis nodes are candidates for dispatch.
package gatekeeper

import (
	"strings"

	"github.com/aristath/risk-sentry/internal/domain"
)

// Result is the gatekeeper's verdict for a run
type Result struct {
	Candidates    []domain.Node
	StopCondition bool
	Rationale     string
}

// Decide builds the candidate node set. The four rule chains are always
// candidates; advisory nodes join only when their data domain is available.
// A failed validation or blocked data quality stops the run with an empty
// candidate set.
func Decide(validation domain.Validation, dq domain.DataQuality) Result {
	var reasons []string
	stop := false

	if !validation.IsValid {
		stop = true
		reasons = append(reasons, "validation_failed")
	}
	if dq.Status == domain.QualityBlocked {
		stop = true
		reasons = append(reasons, "data_quality_blocked")
	}

	candidates := domain.RuleChainNodes()
	if dq.MacroEligible() {
		candidates = append(candidates, domain.NodeMacro)
	}
	if dq.ComplianceEligible() {
		candidates = append(candidates, domain.NodeCompliance)
	}

	if stop {
		candidates = nil
	}

	rationale := "ok"
	if len(reasons) > 0 {
		rationale = strings.Join(reasons, "; ")
	}
	return Result{
		Candidates:    candidates,
		StopCondition: stop,
		Rationale:     rationale,
	}
}
