package gate

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
)

// ExpressionRule gates a proposal using an operator-supplied CEL expression
// evaluated against {class, intent, evidence_count, author}. It gives
// CommitmentClass.Custom(label) a real enforcement mechanism instead of
// being purely advisory, per §4.4's "richer rule set" expansion.
type ExpressionRule struct {
	RuleName   string
	Expression string

	program cel.Program
}

// NewExpressionRule compiles Expression once so repeated Evaluate calls
// reuse the compiled program.
func NewExpressionRule(name, expression string) (*ExpressionRule, error) {
	env, err := cel.NewEnv(
		cel.Variable("class", cel.StringType),
		cel.Variable("intent", cel.StringType),
		cel.Variable("evidence_count", cel.IntType),
		cel.Variable("author", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("gate: build CEL environment: %w", err)
	}
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("gate: compile expression %q: %w", expression, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("gate: build CEL program: %w", err)
	}
	return &ExpressionRule{RuleName: name, Expression: expression, program: prg}, nil
}

func (r *ExpressionRule) Name() string { return r.RuleName }

func (r *ExpressionRule) Evaluate(_ context.Context, p *Proposal, _ RuleContext) (RuleOutcome, string, error) {
	out, _, err := r.program.Eval(map[string]any{
		"class":          p.Class.String(),
		"intent":         p.EffectiveIntent(),
		"evidence_count": int64(len(p.Evidence.URIs)),
		"author":         p.Author.String(),
	})
	if err != nil {
		return Fail, fmt.Sprintf("expression %q evaluation error: %v", r.RuleName, err), nil
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return Fail, fmt.Sprintf("expression %q did not evaluate to a boolean", r.RuleName), nil
	}
	if !allowed {
		return Fail, fmt.Sprintf("expression %q rejected proposal", r.RuleName), nil
	}
	return Pass, "", nil
}
