package gate

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/worldline-vcs/wll/internal/objstore"
)

func testProposal(t *testing.T) *Proposal {
	t.Helper()
	id, err := NewCommitmentId()
	if err != nil {
		t.Fatalf("new commitment id: %v", err)
	}
	return &Proposal{
		Message:      "init",
		Class:        ContentUpdate(),
		CommitmentID: id,
	}
}

func TestRequireIntentFailsOnEmptyIntent(t *testing.T) {
	p := testProposal(t)
	p.Message = ""
	p.Intent = ""

	outcome, reason, err := RequireIntent{}.Evaluate(context.Background(), p, RuleContext{})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if outcome != Fail {
		t.Fatalf("expected Fail, got %v (%s)", outcome, reason)
	}
}

func TestRequireEvidenceSkipsWhenClassNotApplicable(t *testing.T) {
	p := testProposal(t)
	p.Class = ContentUpdate()
	rule := RequireEvidence{Classes: []CommitmentClass{StructuralChange()}}

	outcome, _, err := rule.Evaluate(context.Background(), p, RuleContext{})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if outcome != Skip {
		t.Fatalf("expected Skip, got %v", outcome)
	}
}

func TestRequireEvidenceFailsWhenApplicableAndEmpty(t *testing.T) {
	p := testProposal(t)
	p.Class = StructuralChange()
	rule := RequireEvidence{Classes: []CommitmentClass{StructuralChange()}}

	outcome, _, err := rule.Evaluate(context.Background(), p, RuleContext{})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if outcome != Fail {
		t.Fatalf("expected Fail, got %v", outcome)
	}
}

func TestAllowedClassesRejectsDisallowedClass(t *testing.T) {
	p := testProposal(t)
	p.Class = IdentityOperation()
	rule := AllowedClasses{Classes: []CommitmentClass{ContentUpdate(), ReadOnly()}}

	outcome, _, err := rule.Evaluate(context.Background(), p, RuleContext{})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if outcome != Fail {
		t.Fatalf("expected Fail, got %v", outcome)
	}
}

func TestMaxSizeLimitFailsWhenTreeExceedsBound(t *testing.T) {
	store := objstore.NewMemoryStore()
	blobID, _ := store.Write(objstore.KindBlob, make([]byte, 100))

	p := testProposal(t)
	p.Tree = &blobID // not a real tree object, but Read will fail which the rule treats as Fail

	rule := MaxSizeLimit{Bytes: 10}
	outcome, _, err := rule.Evaluate(context.Background(), p, RuleContext{Store: store})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if outcome != Fail {
		t.Fatalf("expected Fail for unreadable/oversized tree, got %v", outcome)
	}
}

func TestGateEvaluateAcceptsWhenAllRulesPassOrSkip(t *testing.T) {
	config := PipelineConfig{Rules: []RuleConfig{{Name: "RequireIntent"}}}
	pipeline := NewPipeline([]PolicyRule{RequireIntent{}}, config)
	g := NewGate(pipeline, RuleContext{})

	p := testProposal(t)
	decision, err := g.Evaluate(context.Background(), p)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !decision.Accepted {
		t.Fatalf("expected Accepted, got Rejected: %v", decision.Reasons)
	}
	if decision.PolicyHash.IsZero() {
		t.Fatal("expected non-zero policy hash")
	}
}

func TestGateEvaluateShortCircuitsOnFirstFail(t *testing.T) {
	config := PipelineConfig{Rules: []RuleConfig{{Name: "RequireIntent"}, {Name: "AllowedClasses"}}}
	pipeline := NewPipeline([]PolicyRule{
		RequireIntent{},
		AllowedClasses{Classes: nil}, // would always fail if reached
	}, config)
	g := NewGate(pipeline, RuleContext{})

	p := testProposal(t)
	p.Message, p.Intent = "", ""

	decision, err := g.Evaluate(context.Background(), p)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if decision.Accepted {
		t.Fatal("expected Rejected")
	}
	if len(decision.Reasons) != 1 || decision.Reasons[0] != "intent required" {
		t.Fatalf("expected single intent-required reason, got %v", decision.Reasons)
	}
}

func TestPolicyHashIsStableForSameConfig(t *testing.T) {
	c1 := PipelineConfig{Rules: []RuleConfig{{Name: "RequireIntent"}}}
	c2 := PipelineConfig{Rules: []RuleConfig{{Name: "RequireIntent"}}}

	h1, err := c1.PolicyHash()
	if err != nil {
		t.Fatalf("hash c1: %v", err)
	}
	h2, err := c2.PolicyHash()
	if err != nil {
		t.Fatalf("hash c2: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected identical policy hashes for identical config")
	}
}

func TestCapabilityCheckRejectsMissingScope(t *testing.T) {
	key := []byte("test-signing-key")
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, capabilityClaims{
		Scopes: []string{"read"},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	p := testProposal(t)
	p.CapabilityToken = signed
	p.RequestedCapabilities = []string{"write"}

	rule := CapabilityCheck{Key: key}
	outcome, _, err := rule.Evaluate(context.Background(), p, RuleContext{})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if outcome != Fail {
		t.Fatalf("expected Fail for missing scope, got %v", outcome)
	}
}

func TestCapabilityCheckPassesWithSufficientScope(t *testing.T) {
	key := []byte("test-signing-key")
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, capabilityClaims{
		Scopes: []string{"read", "write"},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	p := testProposal(t)
	p.CapabilityToken = signed
	p.RequestedCapabilities = []string{"write"}

	rule := CapabilityCheck{Key: key}
	outcome, reason, err := rule.Evaluate(context.Background(), p, RuleContext{})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if outcome != Pass {
		t.Fatalf("expected Pass, got %v (%s)", outcome, reason)
	}
}

func TestExpressionRuleEvaluatesCELCondition(t *testing.T) {
	rule, err := NewExpressionRule("no-read-only", `class != "ReadOnly"`)
	if err != nil {
		t.Fatalf("compile rule: %v", err)
	}

	p := testProposal(t)
	p.Class = ReadOnly()

	outcome, _, err := rule.Evaluate(context.Background(), p, RuleContext{})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if outcome != Fail {
		t.Fatalf("expected Fail for ReadOnly class, got %v", outcome)
	}

	p.Class = ContentUpdate()
	outcome, _, err = rule.Evaluate(context.Background(), p, RuleContext{})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if outcome != Pass {
		t.Fatalf("expected Pass for ContentUpdate class, got %v", outcome)
	}
}
