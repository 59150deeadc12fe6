package domain

// InstructionMode selects how instruction targets are interpreted
type InstructionMode string

const (
	ModeTarget InstructionMode = "target"
	ModeDelta  InstructionMode = "delta"
)

// Instruction is a proposed rebalancing instruction. Immutable input.
type Instruction struct {
	Date    string             `json:"date"`
	Mode    InstructionMode    `json:"mode"`
	Targets map[string]float64 `json:"targets"`
}

// PortfolioContext carries the account state the instruction applies to.
// Immutable input.
type PortfolioContext struct {
	CurrentPositions     map[string]float64 `json:"current_positions"`
	CurrentPositionsDate string             `json:"current_positions_date"`
	Universe             []string           `json:"universe"`
	AccountType          string             `json:"account_type"`
	Jurisdiction         string             `json:"jurisdiction"`
	PolicyProfile        string             `json:"policy_profile"`
	AUM                  *float64           `json:"aum,omitempty"`
	TargetHoldings       *int               `json:"target_holdings,omitempty"`
}

// NormalizedState is the canonical form of an instruction, read-only after
// the normalizer produces it. TargetWeights sums to 1 within tolerance.
type NormalizedState struct {
	AsOfDate             string             `json:"asof_date"`
	Mode                 InstructionMode    `json:"mode"`
	Targets              map[string]float64 `json:"targets"`
	TargetWeights        map[string]float64 `json:"target_weights"`
	CurrentPositions     map[string]float64 `json:"current_positions"`
	CurrentPositionsDate string             `json:"current_positions_date"`
	Universe             []string           `json:"universe"`
	AccountType          string             `json:"account_type"`
	Jurisdiction         string             `json:"jurisdiction"`
	PolicyProfile        string             `json:"policy_profile"`
	AUM                  *float64           `json:"aum,omitempty"`
	TargetHoldings       *int               `json:"target_holdings,omitempty"`
}

// Validation is the outcome of instruction validation. All problems are
// accumulated before failing so the caller sees the complete error set.
type Validation struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// GapSeverity tags a data-quality gap
type GapSeverity string

const (
	GapWarn  GapSeverity = "warn"
	GapBlock GapSeverity = "block"
)

// Gap is a data-quality or evidence-integrity gap. Gaps are data, never
// errors.
type Gap struct {
	Type     string      `json:"type"`
	Severity GapSeverity `json:"severity"`
	Message  string      `json:"message"`
}

// QualityStatus is the aggregate data-quality grade
type QualityStatus string

const (
	QualityOK       QualityStatus = "ok"
	QualityDegraded QualityStatus = "degraded"
	QualityBlocked  QualityStatus = "blocked"
)

// MarketQuality reports reference and market-data coverage for the universe
type MarketQuality struct {
	MissingMaster []string `json:"missing_master"`
	MissingMarket []string `json:"missing_market"`
}

// MacroQuality reports availability and freshness of macro inputs
type MacroQuality struct {
	TimeseriesAvailable bool   `json:"timeseries_available"`
	TextAvailable       bool   `json:"text_available"`
	LatestDate          string `json:"latest_date"`
	FreshnessDays       *int   `json:"freshness_days"`
	FreshnessStatus     string `json:"freshness_status"` // ok | stale | future | unknown
}

// ComplianceQuality reports availability of the compliance text corpus
type ComplianceQuality struct {
	TextAvailable bool `json:"text_available"`
}

// PositionsQuality reports freshness of the current-positions snapshot
type PositionsQuality struct {
	FreshnessDays *int `json:"freshness_days"`
}

// DataQuality is the full gate output. Status is monotone: any block gap
// forces blocked, any warn gap forces at least degraded.
type DataQuality struct {
	Status     QualityStatus     `json:"status"`
	Market     MarketQuality     `json:"market"`
	Macro      MacroQuality      `json:"macro"`
	Compliance ComplianceQuality `json:"compliance"`
	Positions  PositionsQuality  `json:"positions"`
}

// MacroEligible reports whether the macro advisory node is even a candidate
func (dq DataQuality) MacroEligible() bool {
	return dq.Macro.TimeseriesAvailable
}

// ComplianceEligible reports whether the compliance advisory node is a candidate
func (dq DataQuality) ComplianceEligible() bool {
	return dq.Compliance.TextAvailable
}

// Evidence is a single reference-backed observation inside a finding.
// Ref must start with an allow-listed prefix or the reducer drops it.
type Evidence struct {
	Ref   string      `json:"ref"`
	Value interface{} `json:"value"`
}

// Finding is a structured risk observation produced by a chain or advisory
// agent. Severity is 0..3.
type Finding struct {
	Agent           string             `json:"agent"`
	RiskType        string             `json:"risk_type"`
	Severity        int                `json:"severity"`
	Summary         string             `json:"summary"`
	Evidence        []Evidence         `json:"evidence,omitempty"`
	Metrics         map[string]float64 `json:"metrics,omitempty"`
	Recommendations []string           `json:"recommendations,omitempty"`
	PolicyIDs       []string           `json:"policy_ids,omitempty"`
}

// RuleTier is the severity tier of a rule finding
type RuleTier string

const (
	TierPass     RuleTier = "pass"
	TierWarn     RuleTier = "warn"
	TierRestrict RuleTier = "restrict"
	TierBlock    RuleTier = "block"
)

// Level maps a tier to its numeric level (pass=0 .. block=3)
func (t RuleTier) Level() int {
	switch t {
	case TierWarn:
		return 1
	case TierRestrict:
		return 2
	case TierBlock:
		return 3
	default:
		return 0
	}
}

// RuleFinding is one breached threshold from the constraints evaluator.
// Absence of a RuleFinding for a metric means the metric passed.
type RuleFinding struct {
	RuleID   string     `json:"rule_id"`
	Severity RuleTier   `json:"severity"`
	Level    int        `json:"level"`
	Metric   string     `json:"metric"`
	Value    float64    `json:"value"`
	Limit    float64    `json:"limit"`
	Message  string     `json:"message"`
	Evidence []Evidence `json:"evidence,omitempty"`
}

// RiskReport is the reducer's aggregate over all findings
type RiskReport struct {
	OverallSeverity int       `json:"overall_severity"`
	Summary         string    `json:"summary"`
	Findings        []Finding `json:"findings"`
	DataGaps        []Gap     `json:"data_gaps"`
}

// DecisionTier is the final decision outcome
type DecisionTier string

const (
	DecisionPass     DecisionTier = "pass"
	DecisionWarn     DecisionTier = "warn"
	DecisionRestrict DecisionTier = "restrict"
	DecisionBlock    DecisionTier = "block"
)

// Decision is produced once per run from the maximum severities observed and
// never mutated afterward.
type Decision struct {
	Decision    DecisionTier `json:"decision"`
	RuleLevel   int          `json:"rule_level"`
	ReportLevel int          `json:"report_level"`
	Reason      string       `json:"reason"`
}

// BindingConstraint is a rule finding that drove a restrict or block decision
type BindingConstraint struct {
	RuleID   string   `json:"rule_id"`
	Message  string   `json:"message"`
	Severity RuleTier `json:"severity"`
}

// ActionType classifies a recommended action
type ActionType string

const (
	ActionRebalance     ActionType = "rebalance"
	ActionReviewTargets ActionType = "review_targets"
)

// RecommendedAction is produced only when the decision is restrict. Either
// TargetWeights (a materially different allocation) or Guidance (raw threshold
// values) is set, never both.
type RecommendedAction struct {
	Action        ActionType         `json:"action"`
	Rationale     string             `json:"rationale"`
	Drivers       []string           `json:"drivers"`
	TargetWeights map[string]float64 `json:"target_weights,omitempty"`
	Guidance      map[string]float64 `json:"guidance,omitempty"`
}

// ToolCall records one external call made by an advisory agent. External
// failures land in Err; they are never raised into the pipeline.
type ToolCall struct {
	Tool      string      `json:"tool"`
	Input     interface{} `json:"input,omitempty"`
	Output    interface{} `json:"output,omitempty"`
	LatencyMS int64       `json:"latency_ms"`
	Err       string      `json:"error,omitempty"`
}

// ToolCallSummary aggregates advisory tool-call statistics for the audit record
type ToolCallSummary struct {
	Count          int   `json:"count"`
	Errors         int   `json:"errors"`
	TotalLatencyMS int64 `json:"total_latency_ms"`
}

// SkillUse identifies a skill exercised during the run
type SkillUse struct {
	Name          string `json:"name"`
	PolicyVersion string `json:"policy_version"`
	SkillsHash    string `json:"skills_hash"`
}

// AuditRecord is the write-once provenance snapshot built at the end of a run.
// Purely observational: it never feeds back into the decision.
type AuditRecord struct {
	RunID                string             `json:"run_id"`
	PolicyProfile        string             `json:"policy_profile"`
	RulesetVersion       string             `json:"ruleset_version"`
	RulesSnapshot        map[string]float64 `json:"rules_snapshot"`
	RulesSnapshotHash    string             `json:"rules_snapshot_hash"`
	DataSnapshotHash     string             `json:"data_snapshot_hash"`
	ToolCalls            []ToolCall         `json:"tool_calls"`
	ToolCallSummary      ToolCallSummary    `json:"tool_call_summary"`
	LLMUsed              bool               `json:"llm_used"`
	LLMModel             string             `json:"llm_model"`
	GatekeeperRationale  string             `json:"gatekeeper_rationale"`
	SupervisorUsed       bool               `json:"supervisor_used"`
	SupervisorRationale  string             `json:"supervisor_rationale"`
	CandidateNodes       []string           `json:"candidate_nodes"`
	NodesExecuted        []string           `json:"nodes_executed"`
	SkillsUsed           []SkillUse         `json:"skills_used"`
	ComplianceBlocklist  []string           `json:"compliance_blocklist,omitempty"`
	Timestamp            string             `json:"timestamp"`
	TraceID              string             `json:"trace_id"`
}
