// Package advisory implements the macro and compliance tool-calling agents.
// Both degrade gracefully: tool failures become recorded errors, LLM
// failures fall back to deterministic findings, and neither ever fails the
// run.
package advisory

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/aristath/risk-sentry/internal/domain"
)

// Result is one advisory agent's contribution to the run
type Result struct {
	Finding   *domain.Finding
	ToolCalls []domain.ToolCall
	LLMUsed   bool
	LLMModel  string

	// Compliance only: the effective blocklist for the constraints evaluator
	Blocklist []string

	// Macro only: blended severity to fold into the snapshot metrics
	MacroSeverity *int
}

// provenance stamps a tool output with its source and a parameter hash
type provenance struct {
	Source     string `json:"source"`
	Timestamp  string `json:"timestamp"`
	ParamsHash string `json:"params_hash"`
}

func newProvenance(source string, params interface{}) provenance {
	raw, _ := json.Marshal(params)
	sum := sha256.Sum256(raw)
	return provenance{
		Source:     source,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		ParamsHash: hex.EncodeToString(sum[:])[:16],
	}
}

// callTool runs fn, measuring latency and capturing the error into the tool
// call record instead of raising it
func callTool(tool string, input interface{}, fn func() (interface{}, error)) domain.ToolCall {
	start := time.Now()
	output, err := fn()
	call := domain.ToolCall{
		Tool:      tool,
		Input:     input,
		Output:    output,
		LatencyMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		call.Err = err.Error()
	}
	return call
}

func intPtr(v int) *int { return &v }

// dateDiffDays returns a minus b in whole days, nil when either date is
// missing or malformed
func dateDiffDays(a, b string) *int {
	if a == "" || b == "" {
		return nil
	}
	at, err := time.Parse("2006-01-02", a)
	if err != nil {
		return nil
	}
	bt, err := time.Parse("2006-01-02", b)
	if err != nil {
		return nil
	}
	days := int(at.Sub(bt).Hours() / 24)
	return &days
}
