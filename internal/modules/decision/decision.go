// Package decision maps the run's maximum observed severities onto the final
// decision tier. The mapping is fixed; the decision is computed once and
// never mutated afterward.
package decision

import (
	"github.com/aristath/risk-sentry/internal/domain"
)

// Decide derives the decision from rule findings, the risk report and data
// quality. Rule severity dominates: a level-3 rule blocks and a level-2 rule
// restricts regardless of what the report says.
func Decide(ruleFindings []domain.RuleFinding, report domain.RiskReport, dq domain.DataQuality) (domain.Decision, []domain.BindingConstraint) {
	ruleLevel := 0
	for _, f := range ruleFindings {
		level := f.Level
		if level == 0 {
			level = f.Severity.Level()
		}
		if level > ruleLevel {
			ruleLevel = level
		}
	}
	reportLevel := report.OverallSeverity

	var tier domain.DecisionTier
	switch {
	case ruleLevel >= 3:
		tier = domain.DecisionBlock
	case ruleLevel >= 2:
		tier = domain.DecisionRestrict
	case reportLevel >= 2:
		tier = domain.DecisionRestrict
	case reportLevel >= 1 || dq.Status == domain.QualityDegraded:
		tier = domain.DecisionWarn
	default:
		tier = domain.DecisionPass
	}

	var binding []domain.BindingConstraint
	for _, f := range ruleFindings {
		if f.Severity == domain.TierRestrict || f.Severity == domain.TierBlock {
			binding = append(binding, domain.BindingConstraint{
				RuleID:   f.RuleID,
				Message:  f.Message,
				Severity: f.Severity,
			})
		}
	}

	return domain.Decision{
		Decision:    tier,
		RuleLevel:   ruleLevel,
		ReportLevel: reportLevel,
		Reason:      "rule findings and risk report aggregation",
	}, binding
}
