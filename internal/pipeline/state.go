package pipeline

import (
	"github.com/aristath/risk-sentry/internal/domain"
)

// RunState is the envelope threaded through the pipeline. Each stage reads
// fields written by earlier stages and writes only its own; nothing mutates
// a field owned by another stage.
type RunState struct {
	RunID string `json:"run_id"`

	// Inputs
	Instruction domain.Instruction      `json:"instruction"`
	Context     domain.PortfolioContext `json:"context"`

	// Normalizer
	Normalized *domain.NormalizedState `json:"normalized,omitempty"`
	Validation domain.Validation       `json:"validation"`

	// DataQualityGate
	DataQuality domain.DataQuality `json:"data_quality"`
	DataGaps    []domain.Gap       `json:"data_gaps"`

	// SnapshotMetrics
	Snapshot domain.SnapshotMetrics `json:"snapshot_metrics"`

	// Gatekeeper / Supervisor
	CandidateNodes      []domain.Node `json:"-"`
	NodesToRun          []domain.Node `json:"-"`
	StopCondition       bool   `json:"stop_condition"`
	GatekeeperRationale string `json:"gatekeeper_rationale"`
	SupervisorUsed      bool   `json:"supervisor_used"`
	SupervisorRationale string `json:"supervisor_rationale"`
	SupervisorModel     string `json:"supervisor_model,omitempty"`

	// Dispatcher fan-out results, one slot per node
	FindingMarket          *domain.Finding `json:"finding_market,omitempty"`
	FindingConcentration   *domain.Finding `json:"finding_concentration,omitempty"`
	FindingDiversification *domain.Finding `json:"finding_diversification,omitempty"`
	FindingLiquidity       *domain.Finding `json:"finding_liquidity,omitempty"`
	FindingMacro           *domain.Finding `json:"finding_macro,omitempty"`
	FindingCompliance      *domain.Finding `json:"finding_compliance,omitempty"`

	ToolCallsMacro      []domain.ToolCall `json:"tool_calls_macro,omitempty"`
	ToolCallsCompliance []domain.ToolCall `json:"tool_calls_compliance,omitempty"`
	LLMUsedMacro        bool              `json:"llm_used_macro"`
	LLMUsedCompliance   bool              `json:"llm_used_compliance"`
	LLMModelMacro       string            `json:"llm_model_macro,omitempty"`
	LLMModelCompliance  string            `json:"llm_model_compliance,omitempty"`

	// Compliance advisory publishes the effective blocklist for the
	// constraints evaluator
	ComplianceBlocklist []string `json:"compliance_blocklist,omitempty"`

	// Reducer
	Findings   []domain.Finding  `json:"findings"`
	RiskReport domain.RiskReport `json:"risk_report"`

	// ConstraintsEvaluator
	RuleFindings []domain.RuleFinding `json:"rule_findings"`

	// DecisionEngine
	Decision           domain.Decision            `json:"decision"`
	BindingConstraints []domain.BindingConstraint `json:"binding_constraints"`

	// ConstraintSolver
	RecommendedActions []domain.RecommendedAction `json:"recommended_actions"`

	// AuditLog
	Audit domain.AuditRecord `json:"audit"`
}

// PolicyProfile returns the effective policy profile of the run
func (s *RunState) PolicyProfile() string {
	if s.Normalized != nil && s.Normalized.PolicyProfile != "" {
		return s.Normalized.PolicyProfile
	}
	if s.Context.PolicyProfile != "" {
		return s.Context.PolicyProfile
	}
	return "default"
}

// Finding returns the finding slot for a node
func (s *RunState) Finding(n domain.Node) *domain.Finding {
	switch n {
	case domain.NodeMarket:
		return s.FindingMarket
	case domain.NodeConcentration:
		return s.FindingConcentration
	case domain.NodeDiversification:
		return s.FindingDiversification
	case domain.NodeLiquidity:
		return s.FindingLiquidity
	case domain.NodeMacro:
		return s.FindingMacro
	case domain.NodeCompliance:
		return s.FindingCompliance
	default:
		return nil
	}
}

// setFinding stores a node's finding in its slot. Called only from the
// single-threaded merge after the fan-in barrier.
func (s *RunState) setFinding(n domain.Node, f *domain.Finding) {
	switch n {
	case domain.NodeMarket:
		s.FindingMarket = f
	case domain.NodeConcentration:
		s.FindingConcentration = f
	case domain.NodeDiversification:
		s.FindingDiversification = f
	case domain.NodeLiquidity:
		s.FindingLiquidity = f
	case domain.NodeMacro:
		s.FindingMacro = f
	case domain.NodeCompliance:
		s.FindingCompliance = f
	}
}

// View is the read-only snapshot handed to fan-out tasks. It carries only
// fields written by stages before the dispatcher.
type View struct {
	RunID         string
	Normalized    *domain.NormalizedState
	Validation    domain.Validation
	DataQuality   domain.DataQuality
	Snapshot      domain.SnapshotMetrics
	PolicyProfile string
}

// view builds the dispatch snapshot from the state
func (s *RunState) view() View {
	return View{
		RunID:         s.RunID,
		Normalized:    s.Normalized,
		Validation:    s.Validation,
		DataQuality:   s.DataQuality,
		Snapshot:      s.Snapshot,
		PolicyProfile: s.PolicyProfile(),
	}
}

// NodeResult is the only thing a fan-out task produces. Each task owns one
// slot; merging happens after the join barrier.
type NodeResult struct {
	Finding   *domain.Finding
	ToolCalls []domain.ToolCall
	LLMUsed   bool
	LLMModel  string
	Blocklist []string

	// MacroSeverity, when set, is folded into the snapshot metrics after
	// the join barrier
	MacroSeverity *int
}
