package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/aristath/risk-sentry/internal/domain"
	"github.com/aristath/risk-sentry/internal/modules/advisory"
	"github.com/aristath/risk-sentry/internal/modules/chains"
)

// dispatcher fans analysis nodes out concurrently. Every task reads the same
// immutable view and writes one slot in the results array; the merge back
// into RunState happens single-threaded after the join barrier.
type dispatcher struct {
	chains     *chains.Runner
	macro      *advisory.MacroAgent
	compliance *advisory.ComplianceAgent
}

// dispatch runs the selected nodes and returns one result slot per node
// value. Unselected slots stay nil.
func (d *dispatcher) dispatch(ctx context.Context, nodes []domain.Node, view View) [domain.NodeCount]*NodeResult {
	var results [domain.NodeCount]*NodeResult

	// Claim each slot before fan-out so a duplicate node value cannot put
	// two goroutines on the same slot
	claimed := [domain.NodeCount]bool{}

	g, ctx := errgroup.WithContext(ctx)
	for _, node := range nodes {
		if node < 0 || node >= domain.NodeCount || claimed[node] {
			continue
		}
		claimed[node] = true
		node := node
		g.Go(func() error {
			results[node] = d.runNode(ctx, node, view)
			return nil
		})
	}
	// Tasks never return errors; failures are captured inside their results
	_ = g.Wait()
	return results
}

func (d *dispatcher) runNode(ctx context.Context, node domain.Node, view View) *NodeResult {
	if node.IsAdvisory() {
		var res advisory.Result
		switch node {
		case domain.NodeMacro:
			res = d.macro.Run(ctx, view.Normalized, view.DataQuality, view.Snapshot)
		case domain.NodeCompliance:
			res = d.compliance.Run(ctx, view.Normalized, view.DataQuality)
		}
		return &NodeResult{
			Finding:       res.Finding,
			ToolCalls:     res.ToolCalls,
			LLMUsed:       res.LLMUsed,
			LLMModel:      res.LLMModel,
			Blocklist:     res.Blocklist,
			MacroSeverity: res.MacroSeverity,
		}
	}
	finding := d.chains.Run(node, view.Snapshot, view.PolicyProfile)
	return &NodeResult{Finding: finding}
}
