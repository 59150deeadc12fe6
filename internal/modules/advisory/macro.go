package advisory

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/risk-sentry/internal/clients/llm"
	"github.com/aristath/risk-sentry/internal/domain"
	"github.com/aristath/risk-sentry/internal/marketdata"
	"github.com/aristath/risk-sentry/internal/skills"
)

const macroAgentName = "MacroToolCallingAgent"

// macroSearchQuery drives the deterministic document search when no LLM is
// steering the agent
const macroSearchQuery = "macro"

const macroObservationWindow = 5

// MacroStore is the slice of the market-data repository the macro agent reads
type MacroStore interface {
	MacroSeriesSpecs() ([]marketdata.SeriesSpec, error)
	MacroObservations(series, asofDate string, limit int) ([]marketdata.Observation, error)
	SearchDocs(corpus, query, asofDate string, limit int) ([]marketdata.Document, error)
}

// MacroAgent assesses macro-environment risk from configured time series and
// the macro document corpus
type MacroAgent struct {
	store          MacroStore
	client         llm.Client
	severityWeight float64
	log            zerolog.Logger
}

// NewMacroAgent creates a macro agent. severityWeight balances the
// timeseries severity against the text-sentiment severity when blending.
func NewMacroAgent(store MacroStore, client llm.Client, severityWeight float64, log zerolog.Logger) *MacroAgent {
	return &MacroAgent{
		store:          store,
		client:         client,
		severityWeight: severityWeight,
		log:            log.With().Str("component", "macro_agent").Logger(),
	}
}

// seriesPayload is the structured output of one macro_timeseries tool call
type seriesPayload struct {
	Series       string       `json:"series"`
	Values       [][2]any     `json:"values"`
	AlignedDate  string       `json:"aligned_date,omitempty"`
	AlignedValue float64      `json:"aligned_value,omitempty"`
	Stale        *bool        `json:"stale,omitempty"`
	StaleDays    *int         `json:"stale_days,omitempty"`
	Provenance   provenance   `json:"provenance"`
	observations []marketdata.Observation
	spec         marketdata.SeriesSpec
}

// Run assesses macro risk. The time series are always fetched and scored
// deterministically; the LLM, when present, only shapes the narrative
// finding, and any of its failure modes falls back to the deterministic one.
func (a *MacroAgent) Run(ctx context.Context, normalized *domain.NormalizedState, dq domain.DataQuality, metrics domain.SnapshotMetrics) Result {
	if !dq.MacroEligible() {
		return Result{
			Finding: macroFallbackFinding(metrics.MacroSeverity),
		}
	}

	asof := normalized.AsOfDate
	toolCalls, payloads := a.prefetchSeries(asof)
	tsSeverity := timeseriesSeverity(payloads)

	var nlpSeverity *int
	if dq.Macro.TextAvailable {
		call := callTool("macro_search", map[string]interface{}{"query": macroSearchQuery}, func() (interface{}, error) {
			docs, err := a.store.SearchDocs(marketdata.CorpusMacro, macroSearchQuery, asof, 5)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"query":      macroSearchQuery,
				"hits":       docs,
				"provenance": newProvenance("macro_docs", map[string]interface{}{"query": macroSearchQuery, "hits": len(docs), "asof_date": asof}),
			}, nil
		})
		toolCalls = append(toolCalls, call)
		nlpSeverity = nlpSeverityFromCall(call)
	}

	finalSeverity := a.blendSeverity(tsSeverity, nlpSeverity)

	result := Result{
		ToolCalls:     toolCalls,
		MacroSeverity: intPtr(finalSeverity),
	}

	if a.client == nil {
		result.Finding = macroFallbackFinding(finalSeverity)
		return result
	}

	finding, schemaErrs, err := a.narrate(ctx, normalized, metrics, payloads, finalSeverity)
	result.LLMUsed = true
	result.LLMModel = a.client.Model()
	if err != nil {
		a.log.Warn().Err(err).Msg("Macro LLM call failed, using deterministic finding")
		result.LLMUsed = false
		result.Finding = macroFallbackFinding(finalSeverity)
		return result
	}
	if len(schemaErrs) > 0 {
		result.ToolCalls = append(result.ToolCalls, domain.ToolCall{
			Tool: "schema_validation",
			Err:  fmt.Sprintf("macro skill output invalid: %v", schemaErrs),
		})
		result.Finding = macroFallbackFinding(finalSeverity)
		return result
	}

	finding.Severity = finalSeverity
	if finding.Metrics == nil {
		finding.Metrics = map[string]float64{}
	}
	finding.Metrics["macro_severity_timeseries"] = float64(tsSeverity)
	if nlpSeverity != nil {
		finding.Metrics["macro_nlp_severity"] = float64(*nlpSeverity)
	}
	finding.Metrics["macro_severity_final"] = float64(finalSeverity)
	result.Finding = finding
	return result
}

// prefetchSeries fetches every configured series up front so severity is
// computed deterministically regardless of what the LLM does later
func (a *MacroAgent) prefetchSeries(asof string) ([]domain.ToolCall, []seriesPayload) {
	specs, err := a.store.MacroSeriesSpecs()
	if err != nil {
		a.log.Warn().Err(err).Msg("Macro series specs unavailable")
		return nil, nil
	}

	var calls []domain.ToolCall
	var payloads []seriesPayload
	for _, spec := range specs {
		spec := spec
		var payload seriesPayload
		call := callTool("macro_timeseries", map[string]interface{}{"series": spec.Series}, func() (interface{}, error) {
			obs, err := a.store.MacroObservations(spec.Series, asof, macroObservationWindow)
			if err != nil {
				return nil, err
			}
			payload = buildSeriesPayload(spec, obs, asof)
			return payload, nil
		})
		calls = append(calls, call)
		payloads = append(payloads, payload)
	}
	return calls, payloads
}

func buildSeriesPayload(spec marketdata.SeriesSpec, obs []marketdata.Observation, asof string) seriesPayload {
	payload := seriesPayload{
		Series:       spec.Series,
		Values:       make([][2]any, 0, len(obs)),
		Provenance:   newProvenance("macro_series", map[string]interface{}{"series": spec.Series, "rows": len(obs), "asof_date": asof}),
		observations: obs,
		spec:         spec,
	}
	for _, o := range obs {
		payload.Values = append(payload.Values, [2]any{o.Date, o.Value})
	}
	if len(obs) == 0 {
		return payload
	}

	last := obs[len(obs)-1]
	payload.AlignedDate = last.Date
	payload.AlignedValue = last.Value

	if spec.StaleDays != nil {
		if diff := dateDiffDays(asof, last.Date); diff != nil {
			stale := *diff > *spec.StaleDays
			payload.Stale = &stale
			payload.StaleDays = diff
		}
	}
	return payload
}

// timeseriesSeverity scores change magnitude across all fetched series.
// Empty or stale series count as at least warn; a change past the restrict
// threshold scores 2.
func timeseriesSeverity(payloads []seriesPayload) int {
	severity := 0
	for _, p := range payloads {
		if len(p.observations) == 0 {
			severity = max(severity, 1)
			continue
		}
		if p.Stale != nil && *p.Stale {
			severity = max(severity, 1)
		}
		if len(p.observations) < 2 {
			continue
		}
		prev := p.observations[len(p.observations)-2].Value
		last := p.observations[len(p.observations)-1].Value

		var change float64
		if p.spec.ChangeMode == "abs" {
			change = math.Abs(last - prev)
		} else {
			if prev == 0 {
				continue
			}
			change = math.Abs((last - prev) / prev)
		}
		if p.spec.ChangeScale == "bp" {
			change *= 100
		}
		if p.spec.RestrictChange != nil && change >= *p.spec.RestrictChange {
			severity = max(severity, 2)
		} else if p.spec.WarnChange != nil && change >= *p.spec.WarnChange {
			severity = max(severity, 1)
		}
	}
	return severity
}

// nlpSeverityFromCall maps document sentiment scores to severity. Both
// extremes are risky: very high and very low scores score 2, the middle
// band scores 0. Nil when no hit carried a score.
func nlpSeverityFromCall(call domain.ToolCall) *int {
	output, ok := call.Output.(map[string]interface{})
	if !ok {
		return nil
	}
	docs, ok := output["hits"].([]marketdata.Document)
	if !ok {
		return nil
	}
	found := false
	severity := 0
	for _, d := range docs {
		if d.SentimentScore == nil {
			continue
		}
		found = true
		severity = max(severity, nlpSeverityFromScore(*d.SentimentScore))
	}
	if !found {
		return nil
	}
	return &severity
}

func nlpSeverityFromScore(score float64) int {
	switch {
	case score >= 70:
		return 2
	case score >= 60:
		return 1
	case score >= 40:
		return 0
	case score >= 30:
		return 1
	default:
		return 2
	}
}

// blendSeverity combines the timeseries and text severities with the
// configured weight, rounded and clamped to [0, 3]
func (a *MacroAgent) blendSeverity(tsSeverity int, nlpSeverity *int) int {
	if nlpSeverity == nil {
		return tsSeverity
	}
	blended := math.Round(a.severityWeight*float64(tsSeverity) + (1-a.severityWeight)*float64(*nlpSeverity))
	return int(math.Max(0, math.Min(3, blended)))
}

// narrate asks the LLM for a structured macro finding and validates it
// against the macro skill schema
func (a *MacroAgent) narrate(ctx context.Context, normalized *domain.NormalizedState, metrics domain.SnapshotMetrics, payloads []seriesPayload, severity int) (*domain.Finding, []string, error) {
	skill := skills.MustLookup(skills.MacroToolCalling)

	payload := map[string]interface{}{
		"snapshot_metrics": metrics,
		"macro_severity":   severity,
		"tool_results":     payloads,
		"asof_date":        normalized.AsOfDate,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}

	system := "You assess macro-environment risk for a portfolio rebalance. " +
		"Return a JSON finding with keys: agent, risk_type, severity, summary, evidence, metrics, recommendations. " +
		"Evidence refs may only use snapshot_metrics., rules. or tool: prefixes."
	content, err := a.client.Chat(ctx, system, string(body))
	if err != nil {
		return nil, nil, err
	}

	var finding domain.Finding
	if err := json.Unmarshal([]byte(content), &finding); err != nil {
		return nil, []string{"invalid json"}, nil
	}
	finding.Agent = macroAgentName
	finding.RiskType = "macro"
	if errs := skill.ValidateOutput(finding); len(errs) > 0 {
		return nil, errs, nil
	}
	return &finding, nil, nil
}

func macroFallbackFinding(severity int) *domain.Finding {
	summary := "macro environment steady"
	if severity > 0 {
		summary = "macro environment volatile"
	}
	return &domain.Finding{
		Agent:           macroAgentName,
		RiskType:        "macro",
		Severity:        severity,
		Summary:         summary,
		Metrics:         map[string]float64{"macro_severity": float64(severity)},
		Evidence:        []domain.Evidence{{Ref: "snapshot_metrics.macro_severity", Value: severity}},
		Recommendations: []string{"monitor macro indicators"},
	}
}
