// Package supervisor narrows the gatekeeper's candidate nodes with an LLM
// router. Every failure mode falls back to running all candidates; the
// supervisor can only ever shrink the set, never grow it.
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/risk-sentry/internal/clients/llm"
	"github.com/aristath/risk-sentry/internal/domain"
	"github.com/aristath/risk-sentry/internal/skills"
)

const systemPrompt = "You are the pipeline scheduler deciding which analysis nodes to run. " +
	"Choose only from the provided candidate list. " +
	"Always return JSON with keys: nodes_to_run (list of strings) and rationale (string). " +
	"The rationale may only reference metrics and conclusions present in the payload; never invent numbers."

// Selector routes candidate nodes through an optional LLM
type Selector struct {
	client  llm.Client
	enabled bool
	log     zerolog.Logger
}

// New creates a selector. A nil client or enabled=false makes Select a
// pass-through.
func New(client llm.Client, enabled bool, log zerolog.Logger) *Selector {
	return &Selector{
		client:  client,
		enabled: enabled,
		log:     log.With().Str("component", "supervisor").Logger(),
	}
}

// Result reports which nodes to run and how the choice was made
type Result struct {
	NodesToRun []domain.Node
	Used       bool
	Rationale  string
	Model      string
}

// Payload is the read-only context serialized for the router LLM
type Payload struct {
	Candidates    []string               `json:"candidates"`
	Validation    domain.Validation      `json:"validation"`
	DataQuality   domain.DataQuality     `json:"data_quality"`
	Snapshot      domain.SnapshotMetrics `json:"snapshot_metrics"`
	PolicyProfile string                 `json:"policy_profile"`
}

type routerOutput struct {
	NodesToRun []string `json:"nodes_to_run"`
	Rationale  string   `json:"rationale"`
}

// Select picks the nodes to dispatch. Invalid JSON, schema violations and
// transport errors all fall back to the full candidate set; names outside
// the candidates are dropped, and an empty selection means run everything.
func (s *Selector) Select(ctx context.Context, candidates []domain.Node, payload Payload) Result {
	if len(candidates) == 0 {
		return Result{NodesToRun: nil, Used: false, Rationale: "no candidates"}
	}
	if !s.enabled {
		return fallback(candidates, false, "disabled", "")
	}
	if s.client == nil {
		return fallback(candidates, false, "llm unavailable", "")
	}

	payload.Candidates = domain.NodeNames(candidates)
	body, err := json.Marshal(payload)
	if err != nil {
		return fallback(candidates, false, fmt.Sprintf("payload not serializable: %v", err), "")
	}

	content, err := s.client.Chat(ctx, systemPrompt, string(body))
	if err != nil {
		s.log.Warn().Err(err).Msg("Supervisor LLM call failed, running all candidates")
		return fallback(candidates, false, "llm error", "")
	}

	var parsed routerOutput
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return fallback(candidates, true, "invalid json", s.client.Model())
	}

	skill := skills.MustLookup(skills.SupervisorRouter)
	if errs := skill.ValidateOutput(parsed); len(errs) > 0 {
		return fallback(candidates, true, fmt.Sprintf("schema invalid: %v", errs), s.client.Model())
	}

	// Containment: only names from the candidate set survive, each at most
	// once. The dispatcher assumes one result slot per node, so a duplicate
	// entry here would mean two writers on the same slot.
	allowed := make(map[domain.Node]bool, len(candidates))
	for _, n := range candidates {
		allowed[n] = true
	}
	var chosen []domain.Node
	for _, name := range parsed.NodesToRun {
		if n, ok := domain.ParseNode(name); ok && allowed[n] {
			allowed[n] = false
			chosen = append(chosen, n)
		}
	}
	if len(chosen) == 0 {
		chosen = candidates
	}

	return Result{
		NodesToRun: chosen,
		Used:       true,
		Rationale:  parsed.Rationale,
		Model:      s.client.Model(),
	}
}

func fallback(candidates []domain.Node, used bool, rationale, model string) Result {
	return Result{
		NodesToRun: candidates,
		Used:       used,
		Rationale:  rationale,
		Model:      model,
	}
}
