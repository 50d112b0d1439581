package policy

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/jmalloway/checksub001/pkg/model"
)

// CELCondition is an escape hatch for predicates the closed Operator enum
// cannot express — composite boolean expressions over multiple derived
// fields at once (e.g. "velocity_7d_ratio > 3 && is_payroll_account ==
// false"). Evaluate does not read CELConditions; an expression runs on its
// own through EvaluateCEL. Its only outcome field is ReasonCategory: unlike
// a closed-operator rule it carries no action, so it cannot gate dual
// control, keeping the closed-operator rule set the sole path to that
// authority.
type CELCondition struct {
	RuleID          string
	Expression      string
	ReasonCategory  string
}

var celEnv = mustNewCELEnv()

func mustNewCELEnv() *cel.Env {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("avg_check_amount_30d", cel.DoubleType),
		cel.Variable("current_balance", cel.DoubleType),
		cel.Variable("velocity_7d_ratio", cel.DoubleType),
		cel.Variable("is_payroll_account", cel.BoolType),
		cel.Variable("risk_level", cel.StringType),
	)
	if err != nil {
		panic(fmt.Sprintf("policy: cel env: %v", err))
	}
	return env
}

// EvaluateCEL compiles and runs expr against item's derived fields. A NULL
// numeric field is bound as 0 and a NULL boolean as false, so unlike the
// closed-operator evaluator a NULL field does not by itself fail the
// expression.
func EvaluateCEL(expr string, item *model.CheckItem) (bool, error) {
	ast, issues := celEnv.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return false, fmt.Errorf("policy: cel compile: %w", issues.Err())
	}
	prg, err := celEnv.Program(ast)
	if err != nil {
		return false, fmt.Errorf("policy: cel program: %w", err)
	}

	vars := map[string]any{
		"amount":               item.Amount.Float64(),
		"avg_check_amount_30d": orZero(moneyPtrToFloat(item.AvgCheckAmount30d)),
		"current_balance":      orZero(moneyPtrToFloat(item.CurrentBalance)),
		"is_payroll_account":   orFalse(boolPtrToAny(item.IsPayrollAccount)),
		"risk_level":           string(item.RiskLevel),
	}
	ratio, ok := ratio(item.Amount.Float64(), item.TotalCheckAmount7d)
	if ok {
		vars["velocity_7d_ratio"] = ratio
	} else {
		vars["velocity_7d_ratio"] = 0.0
	}

	out, _, err := prg.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("policy: cel eval: %w", err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("policy: cel expression %q did not evaluate to bool", expr)
	}
	return b, nil
}

func orZero(v any, ok bool) float64 {
	if !ok {
		return 0
	}
	f, _ := v.(float64)
	return f
}

func orFalse(v any, ok bool) bool {
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}
