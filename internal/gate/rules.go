package gate

import (
	"context"
	"fmt"

	"github.com/worldline-vcs/wll/internal/objtree"
)

// RequireIntent fails if the proposal's effective intent is empty.
type RequireIntent struct{}

func (RequireIntent) Name() string { return "RequireIntent" }

func (RequireIntent) Evaluate(_ context.Context, p *Proposal, _ RuleContext) (RuleOutcome, string, error) {
	if p.EffectiveIntent() == "" {
		return Fail, "intent required", nil
	}
	return Pass, "", nil
}

// RequireEvidence fails when the proposal's class is in the configured set
// and the evidence bundle is empty.
type RequireEvidence struct {
	Classes []CommitmentClass
}

func (RequireEvidence) Name() string { return "RequireEvidence" }

func (r RequireEvidence) Evaluate(_ context.Context, p *Proposal, _ RuleContext) (RuleOutcome, string, error) {
	applies := false
	for _, c := range r.Classes {
		if c.Equal(p.Class) {
			applies = true
			break
		}
	}
	if !applies {
		return Skip, "", nil
	}
	if p.Evidence.Empty() {
		return Fail, fmt.Sprintf("evidence required for class %s", p.Class), nil
	}
	return Pass, "", nil
}

// MaxSizeLimit fails if the proposal's tree's transitive size exceeds Bytes.
type MaxSizeLimit struct {
	Bytes int64
}

func (MaxSizeLimit) Name() string { return "MaxSizeLimit" }

func (r MaxSizeLimit) Evaluate(_ context.Context, p *Proposal, rc RuleContext) (RuleOutcome, string, error) {
	if p.Tree == nil {
		return Skip, "", nil
	}
	size, err := objtree.TransitiveSize(rc.Store, *p.Tree)
	if err != nil {
		return Fail, fmt.Sprintf("failed to compute tree size: %v", err), nil
	}
	if size > r.Bytes {
		return Fail, fmt.Sprintf("tree size %d exceeds limit %d", size, r.Bytes), nil
	}
	return Pass, "", nil
}

// AllowedClasses fails if the proposal's class is not among Classes.
type AllowedClasses struct {
	Classes []CommitmentClass
}

func (AllowedClasses) Name() string { return "AllowedClasses" }

func (r AllowedClasses) Evaluate(_ context.Context, p *Proposal, _ RuleContext) (RuleOutcome, string, error) {
	for _, c := range r.Classes {
		if c.Equal(p.Class) {
			return Pass, "", nil
		}
	}
	return Fail, fmt.Sprintf("class %s is not permitted", p.Class), nil
}
