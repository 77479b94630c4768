package gate

import (
	"context"
	"encoding/json"

	"github.com/worldline-vcs/wll/internal/crypto"
	"github.com/worldline-vcs/wll/internal/objstore"
)

// RuleOutcome is what a single PolicyRule reports for one proposal.
type RuleOutcome uint8

const (
	Pass RuleOutcome = iota
	Fail
	Skip
)

// RuleContext gives a rule read access to the collaborators it needs
// without coupling the gate to the ledger or DAG packages directly.
type RuleContext struct {
	Store objstore.Store
}

// PolicyRule is a pure (proposal, context) -> outcome callable, per §9's
// "Policy pipeline extension" design note. Rules never mutate the
// proposal or any shared state.
type PolicyRule interface {
	// Name identifies the rule in PipelineConfig and violation reports.
	Name() string
	// Evaluate returns the rule's outcome and, on Fail, a human-readable reason.
	Evaluate(ctx context.Context, p *Proposal, rc RuleContext) (RuleOutcome, string, error)
}

// Pipeline is an ordered list of rules evaluated with fail-fast
// short-circuiting, exactly as §4.4 specifies.
type Pipeline struct {
	rules  []PolicyRule
	config PipelineConfig
}

// NewPipeline builds a Pipeline from an ordered rule list. config carries
// the serializable description of the same rules, used to compute
// policy_hash; callers are responsible for keeping config consistent with
// rules.
func NewPipeline(rules []PolicyRule, config PipelineConfig) *Pipeline {
	return &Pipeline{rules: rules, config: config}
}

// PipelineConfig is the ordered, serializable description of which rules
// (and parameters) are installed, so that two processes running the same
// configuration compute the same policy_hash.
type PipelineConfig struct {
	Rules []RuleConfig `json:"rules" yaml:"rules"`
}

// RuleConfig names one installed rule and its parameters.
type RuleConfig struct {
	Name   string         `json:"name" yaml:"name"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// PolicyHash computes hash_with_domain("POLICY", canonical_json(config)).
// JSON with sorted map keys (Go's encoding/json already marshals map[string]
// keys in sorted order) stands in for "canonical_serialize" here: the
// pipeline config is an operator-authored, not content-addressed, artifact,
// so byte-for-byte JSON determinism is sufficient.
func (c PipelineConfig) PolicyHash() (crypto.ObjectId, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return crypto.ObjectId{}, err
	}
	return crypto.HashWithDomain(crypto.DomainPolicy, b), nil
}

// Gate is the single point of entry for proposals, per §4.4.
type Gate struct {
	pipeline *Pipeline
	rc       RuleContext
}

// NewGate builds a Gate around a configured pipeline.
func NewGate(pipeline *Pipeline, rc RuleContext) *Gate {
	return &Gate{pipeline: pipeline, rc: rc}
}

// Evaluate runs the pipeline against p and returns the resulting Decision.
// Evaluation short-circuits on the first Fail. Skip and Pass both continue
// the pipeline; a pipeline where every rule Passes or Skips yields Accepted.
func (g *Gate) Evaluate(ctx context.Context, p *Proposal) (Decision, error) {
	policyHash, err := g.pipeline.config.PolicyHash()
	if err != nil {
		return Decision{}, err
	}

	for _, rule := range g.pipeline.rules {
		outcome, reason, err := rule.Evaluate(ctx, p, g.rc)
		if err != nil {
			return Decision{}, err
		}
		if outcome == Fail {
			return Decision{Accepted: false, PolicyHash: policyHash, Reasons: []string{reason}}, nil
		}
	}
	return Decision{Accepted: true, PolicyHash: policyHash}, nil
}
