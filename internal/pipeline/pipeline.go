// Package pipeline wires the risk-decision stages into a single run: every
// instruction flows validate, data quality, snapshot, gatekeeper,
// supervisor, concurrent analysis, reduce, constraints, decision, solver and
// audit, in that order.
package pipeline

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/risk-sentry/internal/domain"
	"github.com/aristath/risk-sentry/internal/modules/advisory"
	"github.com/aristath/risk-sentry/internal/modules/audit"
	"github.com/aristath/risk-sentry/internal/modules/chains"
	"github.com/aristath/risk-sentry/internal/modules/constraints"
	"github.com/aristath/risk-sentry/internal/modules/dataquality"
	"github.com/aristath/risk-sentry/internal/modules/decision"
	"github.com/aristath/risk-sentry/internal/modules/gatekeeper"
	"github.com/aristath/risk-sentry/internal/modules/normalize"
	"github.com/aristath/risk-sentry/internal/modules/reducer"
	"github.com/aristath/risk-sentry/internal/modules/snapshot"
	"github.com/aristath/risk-sentry/internal/modules/solver"
	"github.com/aristath/risk-sentry/internal/modules/supervisor"
)

// Pipeline evaluates rebalancing instructions
type Pipeline struct {
	normalizer  *normalize.Normalizer
	gate        *dataquality.Gate
	snapshots   *snapshot.Calculator
	supervisor  *supervisor.Selector
	dispatcher  *dispatcher
	constraints *constraints.Evaluator
	solver      *solver.Solver
	auditor     *audit.Builder
	log         zerolog.Logger
}

// Deps are the stage implementations a pipeline is built from
type Deps struct {
	Normalizer  *normalize.Normalizer
	Gate        *dataquality.Gate
	Snapshots   *snapshot.Calculator
	Supervisor  *supervisor.Selector
	Chains      *chains.Runner
	Macro       *advisory.MacroAgent
	Compliance  *advisory.ComplianceAgent
	Constraints *constraints.Evaluator
	Solver      *solver.Solver
	Auditor     *audit.Builder
}

// New creates a pipeline from its stage implementations
func New(deps Deps, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		normalizer: deps.Normalizer,
		gate:       deps.Gate,
		snapshots:  deps.Snapshots,
		supervisor: deps.Supervisor,
		dispatcher: &dispatcher{
			chains:     deps.Chains,
			macro:      deps.Macro,
			compliance: deps.Compliance,
		},
		constraints: deps.Constraints,
		solver:      deps.Solver,
		auditor:     deps.Auditor,
		log:         log.With().Str("component", "pipeline").Logger(),
	}
}

// Run evaluates one instruction end to end. Every stage always runs; a
// stopped run simply dispatches no analysis nodes and decides on what the
// earlier stages produced. The returned state is complete and self-contained.
func (p *Pipeline) Run(ctx context.Context, instr domain.Instruction, pctx domain.PortfolioContext) *RunState {
	state := &RunState{
		RunID:       uuid.New().String(),
		Instruction: instr,
		Context:     pctx,
	}
	log := p.log.With().Str("run_id", state.RunID).Logger()

	state.Normalized, state.Validation = p.normalizer.Normalize(instr, pctx)
	normalized := state.Normalized
	if normalized == nil {
		normalized = &domain.NormalizedState{PolicyProfile: state.PolicyProfile()}
	}

	state.DataQuality, state.DataGaps = p.gate.Check(normalized)
	state.Snapshot = p.snapshots.Compute(normalized)

	gk := gatekeeper.Decide(state.Validation, state.DataQuality)
	state.CandidateNodes = gk.Candidates
	state.StopCondition = gk.StopCondition
	state.GatekeeperRationale = gk.Rationale

	if !state.StopCondition {
		sel := p.supervisor.Select(ctx, state.CandidateNodes, supervisor.Payload{
			Validation:    state.Validation,
			DataQuality:   state.DataQuality,
			Snapshot:      state.Snapshot,
			PolicyProfile: state.PolicyProfile(),
		})
		state.NodesToRun = sel.NodesToRun
		state.SupervisorUsed = sel.Used
		state.SupervisorRationale = sel.Rationale
		state.SupervisorModel = sel.Model

		results := p.dispatcher.dispatch(ctx, state.NodesToRun, state.view())
		p.merge(state, results)
	}

	findingSlots := make([]*domain.Finding, 0, domain.NodeCount)
	for n := domain.Node(0); n < domain.NodeCount; n++ {
		findingSlots = append(findingSlots, state.Finding(n))
	}
	reduced := reducer.Reduce(reducer.Input{
		Findings: findingSlots,
		Snapshot: state.Snapshot,
		DataGaps: state.DataGaps,
	})
	state.Findings = reduced.Findings
	state.RiskReport = reduced.RiskReport
	state.DataGaps = reduced.DataGaps

	state.RuleFindings = p.constraints.Evaluate(normalized, state.Snapshot, state.ComplianceBlocklist)

	state.Decision, state.BindingConstraints = decision.Decide(state.RuleFindings, state.RiskReport, state.DataQuality)

	state.RecommendedActions = p.solver.Solve(normalized, state.Snapshot, state.Decision, state.RiskReport)

	toolCalls := append(append([]domain.ToolCall{}, state.ToolCallsMacro...), state.ToolCallsCompliance...)
	state.Audit = p.auditor.Build(audit.Input{
		RunID:               state.RunID,
		PolicyProfile:       state.PolicyProfile(),
		Snapshot:            state.Snapshot,
		RuleFindings:        state.RuleFindings,
		Findings:            findingSlots,
		ToolCalls:           toolCalls,
		LLMUsed:             state.LLMUsedMacro || state.LLMUsedCompliance || state.SupervisorUsed,
		Models:              []string{state.LLMModelMacro, state.LLMModelCompliance, state.SupervisorModel},
		GatekeeperRationale: state.GatekeeperRationale,
		SupervisorUsed:      state.SupervisorUsed,
		SupervisorRationale: state.SupervisorRationale,
		CandidateNodes:      domain.NodeNames(state.CandidateNodes),
		NodesExecuted:       domain.NodeNames(state.NodesToRun),
		ComplianceBlocklist: state.ComplianceBlocklist,
	})

	log.Info().
		Str("decision", string(state.Decision.Decision)).
		Int("rule_level", state.Decision.RuleLevel).
		Int("report_level", state.Decision.ReportLevel).
		Bool("stopped", state.StopCondition).
		Msg("Run complete")
	return state
}

// merge folds fan-out results into the state, single-threaded after the
// join barrier
func (p *Pipeline) merge(state *RunState, results [domain.NodeCount]*NodeResult) {
	for n := domain.Node(0); n < domain.NodeCount; n++ {
		res := results[n]
		if res == nil {
			continue
		}
		state.setFinding(n, res.Finding)
		switch n {
		case domain.NodeMacro:
			state.ToolCallsMacro = res.ToolCalls
			state.LLMUsedMacro = res.LLMUsed
			state.LLMModelMacro = res.LLMModel
			if res.MacroSeverity != nil {
				state.Snapshot.MacroSeverity = *res.MacroSeverity
			}
		case domain.NodeCompliance:
			state.ToolCallsCompliance = res.ToolCalls
			state.LLMUsedCompliance = res.LLMUsed
			state.LLMModelCompliance = res.LLMModel
			state.ComplianceBlocklist = res.Blocklist
		}
	}
}
