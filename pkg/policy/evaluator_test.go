package policy

import (
	"testing"
	"time"

	"github.com/jmalloway/checksub001/pkg/model"
)

func strPtr(s string) *string { return &s }

func TestEvaluate_NoActivePolicyFallsBackToDefaultThreshold(t *testing.T) {
	item := &model.CheckItem{Amount: 600000, RiskLevel: model.RiskLow}
	result, err := Evaluate(item, nil, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !result.RequiresDualControl {
		t.Fatalf("expected default $5,000 threshold to trigger dual control for $6,000 item")
	}
}

func TestEvaluate_IndependentRulesAllApply(t *testing.T) {
	avg := model.Money(10000)
	item := &model.CheckItem{
		Amount: 1500000, RiskLevel: model.RiskLow, AccountType: "checking",
		AvgCheckAmount30d: &avg,
	}
	version := model.PolicyVersion{
		ID: "v1", PolicyID: "p1", IsCurrent: true, EffectiveDate: time.Now().Add(-time.Hour),
		Rules: []model.PolicyRule{
			{
				ID: "rule-high-ratio", IsEnabled: true, Priority: 10,
				Conditions: []model.Condition{{Field: "amount_vs_avg_ratio", Operator: model.OpGreaterThan, Value: 2.0, ValueType: model.ValueTypeNumber}},
				Actions:    []model.RuleAction{{Action: "require_dual_control"}},
			},
			{
				ID: "rule-flag", IsEnabled: true, Priority: 5,
				Conditions: []model.Condition{{Field: "amount", Operator: model.OpGreaterOrEqual, Value: 10000.0, ValueType: model.ValueTypeNumber}},
				Actions:    []model.RuleAction{{Action: "add_flag", Params: map[string]any{"flag": "large_amount"}}},
			},
		},
	}
	policies := map[string]model.Policy{"p1": {ID: "p1", Status: model.PolicyStatusActive}}

	result, err := Evaluate(item, []model.PolicyVersion{version}, policies)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !result.RequiresDualControl {
		t.Fatalf("expected ratio rule to trigger dual control")
	}
	if len(result.Flags) != 1 || result.Flags[0] != "large_amount" {
		t.Fatalf("expected both independently-evaluated rules to apply, got flags=%v triggered=%v", result.Flags, result.RulesTriggered)
	}
	if len(result.RulesTriggered) != 2 {
		t.Fatalf("expected both rules to be recorded as triggered, got %v", result.RulesTriggered)
	}
}

func TestEvaluate_NullFieldFailsCondition(t *testing.T) {
	item := &model.CheckItem{Amount: 100000, RiskLevel: model.RiskLow}
	version := model.PolicyVersion{
		ID: "v1", PolicyID: "p1", IsCurrent: true, EffectiveDate: time.Now(),
		Rules: []model.PolicyRule{{
			ID: "r1", IsEnabled: true,
			Conditions: []model.Condition{{Field: "amount_vs_avg_ratio", Operator: model.OpGreaterThan, Value: 1.0, ValueType: model.ValueTypeNumber}},
			Actions:    []model.RuleAction{{Action: "require_dual_control"}},
		}},
	}
	policies := map[string]model.Policy{"p1": {ID: "p1", Status: model.PolicyStatusActive}}

	result, err := Evaluate(item, []model.PolicyVersion{version}, policies)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.RequiresDualControl || len(result.RulesTriggered) != 0 {
		t.Fatalf("expected NULL ratio (zero denominator) to fail the condition, got %+v", result)
	}
}

func TestEvaluate_SetRiskLevelKeepsMostSevere(t *testing.T) {
	item := &model.CheckItem{Amount: 100000, RiskLevel: model.RiskLow, AccountType: "checking"}
	version := model.PolicyVersion{
		ID: "v1", PolicyID: "p1", IsCurrent: true, EffectiveDate: time.Now(),
		Rules: []model.PolicyRule{
			{
				ID: "r-med", IsEnabled: true, Priority: 10,
				Conditions: []model.Condition{{Field: "amount", Operator: model.OpGreaterOrEqual, Value: 0.0, ValueType: model.ValueTypeNumber}},
				Actions:    []model.RuleAction{{Action: "set_risk_level", Params: map[string]any{"level": "medium"}}},
			},
			{
				ID: "r-critical", IsEnabled: true, Priority: 5,
				Conditions: []model.Condition{{Field: "amount", Operator: model.OpGreaterOrEqual, Value: 0.0, ValueType: model.ValueTypeNumber}},
				Actions:    []model.RuleAction{{Action: "set_risk_level", Params: map[string]any{"level": "critical"}}},
			},
		},
	}
	policies := map[string]model.Policy{"p1": {ID: "p1", Status: model.PolicyStatusActive}}

	result, err := Evaluate(item, []model.PolicyVersion{version}, policies)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.RiskLevel != model.RiskCritical {
		t.Fatalf("expected most-severe risk level to win regardless of rule order, got %v", result.RiskLevel)
	}
}

func TestEvaluate_InOperator(t *testing.T) {
	item := &model.CheckItem{Amount: 100000, AccountType: "savings"}
	version := model.PolicyVersion{
		ID: "v1", PolicyID: "p1", IsCurrent: true, EffectiveDate: time.Now(),
		Rules: []model.PolicyRule{{
			ID: "r1", IsEnabled: true,
			Conditions: []model.Condition{{Field: "account_type", Operator: model.OpIn, Value: []any{"savings", "money_market"}, ValueType: model.ValueTypeList}},
			Actions:    []model.RuleAction{{Action: "route_to_queue", Params: map[string]any{"queue_id": "high-risk"}}},
		}},
	}
	policies := map[string]model.Policy{"p1": {ID: "p1", Status: model.PolicyStatusActive}}

	result, err := Evaluate(item, []model.PolicyVersion{version}, policies)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.RoutingQueueID == nil || *result.RoutingQueueID != "high-risk" {
		t.Fatalf("expected routing queue to be set, got %+v", result.RoutingQueueID)
	}
}

func TestEvaluate_BetweenInclusiveOnBothBounds(t *testing.T) {
	version := func() model.PolicyVersion {
		return model.PolicyVersion{
			ID: "v1", PolicyID: "p1", IsCurrent: true, EffectiveDate: time.Now(),
			Rules: []model.PolicyRule{{
				ID: "r1", IsEnabled: true,
				Conditions: []model.Condition{{Field: "amount", Operator: model.OpBetween, Value: []any{1000.0, 5000.0}, ValueType: model.ValueTypeList}},
				Actions:    []model.RuleAction{{Action: "add_flag", Params: map[string]any{"flag": "band"}}},
			}},
		}
	}
	policies := map[string]model.Policy{"p1": {ID: "p1", Status: model.PolicyStatusActive}}

	cases := []struct {
		amountCents model.Money
		want        bool
	}{
		{model.Money(1000_00), true},  // lower bound inclusive
		{model.Money(5000_00), true},  // upper bound inclusive
		{model.Money(3000_00), true},  // interior
		{model.Money(999_99), false},  // just below
		{model.Money(5000_01), false}, // just above
	}
	for _, c := range cases {
		item := &model.CheckItem{Amount: c.amountCents}
		result, err := Evaluate(item, []model.PolicyVersion{version()}, policies)
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		triggered := len(result.RulesTriggered) == 1
		if triggered != c.want {
			t.Errorf("between for amount %s: triggered=%v, want %v", c.amountCents, triggered, c.want)
		}
	}
}

func TestValidateRuleJSON_RejectsUnknownOperator(t *testing.T) {
	conditions := []byte(`[{"field":"amount","operator":"fuzzy_match","value":1,"value_type":"number"}]`)
	actions := []byte(`[{"action":"require_dual_control"}]`)
	if err := ValidateRuleJSON(conditions, actions); err == nil {
		t.Fatalf("expected unknown operator to be rejected")
	}
}

func TestValidateRuleJSON_AcceptsWellFormedRule(t *testing.T) {
	conditions := []byte(`[{"field":"amount","operator":"greater_than","value":1000,"value_type":"number"}]`)
	actions := []byte(`[{"action":"require_dual_control"}]`)
	if err := ValidateRuleJSON(conditions, actions); err != nil {
		t.Fatalf("expected well-formed rule to validate, got %v", err)
	}
}

func TestEvaluateCEL_ComputesVelocityRatio(t *testing.T) {
	item := &model.CheckItem{Amount: 30000, TotalCheckAmount7d: moneyPtr(10000)}
	ok, err := EvaluateCEL("velocity_7d_ratio > 2.0", item)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if !ok {
		t.Fatalf("expected velocity ratio of 3.0 to exceed 2.0")
	}
}

func moneyPtr(cents int64) *model.Money {
	m := model.Money(cents)
	return &m
}
