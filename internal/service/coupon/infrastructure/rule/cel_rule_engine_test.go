package rule

import (
	"testing"

	"flashmart/internal/service/coupon/domain"
)

func newEngine(t *testing.T) *CelRuleEngineAdapter {
	t.Helper()
	engine, err := NewCelRuleEngineAdapter()
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func TestEvaluateEmptyRuleAllowsEveryone(t *testing.T) {
	engine := newEngine(t)

	ok, err := engine.Evaluate("", domain.EligibilityFact{UserID: "alice"})
	if err != nil || !ok {
		t.Fatalf("empty rule: ok=%v err=%v", ok, err)
	}
}

func TestEvaluateTierRule(t *testing.T) {
	engine := newEngine(t)
	rule := `tier == "gold" || tier == "platinum"`

	ok, err := engine.Evaluate(rule, domain.EligibilityFact{UserID: "alice", Tier: "gold"})
	if err != nil || !ok {
		t.Fatalf("gold: ok=%v err=%v", ok, err)
	}
	ok, err = engine.Evaluate(rule, domain.EligibilityFact{UserID: "bob", Tier: "silver"})
	if err != nil {
		t.Fatalf("silver: %v", err)
	}
	if ok {
		t.Fatal("silver tier should be rejected")
	}
}

func TestEvaluateIssuedTotalCap(t *testing.T) {
	engine := newEngine(t)
	rule := `issued_total < 100`

	ok, err := engine.Evaluate(rule, domain.EligibilityFact{IssuedTotal: 99})
	if err != nil || !ok {
		t.Fatalf("under cap: ok=%v err=%v", ok, err)
	}
	ok, err = engine.Evaluate(rule, domain.EligibilityFact{IssuedTotal: 100})
	if err != nil {
		t.Fatalf("at cap: %v", err)
	}
	if ok {
		t.Fatal("cap reached, rule should reject")
	}
}

func TestEvaluateRejectsInvalidRule(t *testing.T) {
	engine := newEngine(t)

	if _, err := engine.Evaluate("tier ==", domain.EligibilityFact{}); err == nil {
		t.Fatal("expected compile error for malformed rule")
	}
}

func TestEvaluateRejectsNonBooleanRule(t *testing.T) {
	engine := newEngine(t)

	if _, err := engine.Evaluate(`issued_total + 1`, domain.EligibilityFact{}); err == nil {
		t.Fatal("expected error for non-boolean rule")
	}
}
