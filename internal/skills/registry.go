// Package skills defines the closed set of analysis skills the pipeline can
// exercise and validates their structured outputs against JSON schemas.
package skills

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// DefaultEvidencePrefixes is the allow-list applied when a skill declares none
var DefaultEvidencePrefixes = []string{"snapshot_metrics.", "rules.", "tool:"}

// Spec describes one skill: its output contract and evidence policy
type Spec struct {
	Name             string
	PolicyVersion    string
	EvidencePrefixes []string
	RequireEvidence  bool

	hash     string
	compiled *jsonschema.Schema
}

// Hash is a short content hash of the skill's schema, stable across runs
func (s *Spec) Hash() string {
	return s.hash
}

// AllowedPrefixes returns the skill's evidence prefix allow-list, falling
// back to the default set when the skill declares none.
func (s *Spec) AllowedPrefixes() []string {
	if len(s.EvidencePrefixes) > 0 {
		return s.EvidencePrefixes
	}
	return DefaultEvidencePrefixes
}

// ValidateOutput checks a candidate object against the skill's output schema.
// The candidate is round-tripped through JSON so both structs and decoded
// maps validate the same way. An empty result means valid.
func (s *Spec) ValidateOutput(candidate interface{}) []string {
	if s.compiled == nil {
		return nil
	}
	raw, err := json.Marshal(candidate)
	if err != nil {
		return []string{fmt.Sprintf("candidate not serializable: %v", err)}
	}
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return []string{fmt.Sprintf("candidate not serializable: %v", err)}
	}
	err = s.compiled.Validate(decoded)
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{err.Error()}
	}
	return flatten(ve)
}

func flatten(ve *jsonschema.ValidationError) []string {
	if len(ve.Causes) == 0 {
		loc := strings.TrimPrefix(ve.InstanceLocation, "/")
		if loc == "" {
			return []string{ve.Message}
		}
		return []string{fmt.Sprintf("%s: %s", loc, ve.Message)}
	}
	var out []string
	for _, cause := range ve.Causes {
		out = append(out, flatten(cause)...)
	}
	return out
}

const findingSchema = `{
	"type": "object",
	"required": ["severity", "summary"],
	"properties": {
		"severity": {"type": "integer", "minimum": 0, "maximum": 3},
		"summary": {"type": "string"},
		"evidence": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["ref"],
				"properties": {"ref": {"type": "string", "minLength": 1}}
			}
		},
		"recommendations": {"type": "array", "items": {"type": "string"}},
		"policy_ids": {"type": "array", "items": {"type": "string"}}
	}
}`

const supervisorSchema = `{
	"type": "object",
	"required": ["nodes_to_run", "rationale"],
	"properties": {
		"nodes_to_run": {"type": "array", "items": {"type": "string"}},
		"rationale": {"type": "string"}
	}
}`

// Skill names. A closed set: the reducer and audit log look skills up by
// these identifiers.
const (
	MarketAssessor     = "risk-market-assessor"
	LiquidityAssessor  = "liquidity-execution-assessor"
	MacroToolCalling   = "macro-tool-calling"
	ComplianceEvidence = "compliance-evidence"
	SupervisorRouter   = "supervisor-router"
)

var registry = map[string]*Spec{}

func init() {
	register(&Spec{
		Name:          MarketAssessor,
		PolicyVersion: "2025.1",
	}, findingSchema)
	register(&Spec{
		Name:            LiquidityAssessor,
		PolicyVersion:   "2025.1",
		RequireEvidence: true,
	}, findingSchema)
	register(&Spec{
		Name:             MacroToolCalling,
		PolicyVersion:    "2025.1",
		EvidencePrefixes: []string{"snapshot_metrics.", "tool:"},
		RequireEvidence:  true,
	}, findingSchema)
	register(&Spec{
		Name:             ComplianceEvidence,
		PolicyVersion:    "2025.1",
		EvidencePrefixes: []string{"rules.", "tool:"},
		RequireEvidence:  true,
	}, findingSchema)
	register(&Spec{
		Name:          SupervisorRouter,
		PolicyVersion: "2025.1",
	}, supervisorSchema)
}

func register(spec *Spec, schemaJSON string) {
	compiler := jsonschema.NewCompiler()
	resource := spec.Name + ".schema.json"
	if err := compiler.AddResource(resource, strings.NewReader(schemaJSON)); err != nil {
		panic(fmt.Sprintf("skill %s: add schema resource: %v", spec.Name, err))
	}
	compiled, err := compiler.Compile(resource)
	if err != nil {
		panic(fmt.Sprintf("skill %s: compile schema: %v", spec.Name, err))
	}
	spec.compiled = compiled

	sum := sha256.Sum256([]byte(spec.Name + "\n" + schemaJSON))
	spec.hash = hex.EncodeToString(sum[:])[:16]

	registry[spec.Name] = spec
}

// Lookup returns the skill spec for a known skill name
func Lookup(name string) (*Spec, bool) {
	spec, ok := registry[name]
	return spec, ok
}

// MustLookup returns a registered skill or panics; use for the compile-time
// known names above.
func MustLookup(name string) *Spec {
	spec, ok := registry[name]
	if !ok {
		panic("unknown skill: " + name)
	}
	return spec
}
