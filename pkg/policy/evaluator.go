// Package policy evaluates ordered, independently-applied policy rules
// against a check item: fail-closed, deterministic, and keyed by the
// active policy version.
package policy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jmalloway/checksub001/pkg/model"
)

// EvaluationResult is the accumulated effect of every triggered rule in a
// policy version. Rule evaluation never short-circuits across rules: a
// later rule can still fire even if an earlier one already set
// RequiresDualControl.
type EvaluationResult struct {
	PolicyID               string
	PolicyVersionID        string
	RulesTriggered         []string
	RequiresDualControl    bool
	RiskLevel              model.RiskLevel
	RoutingQueueID         *string
	RequiredReasonCategories []string
	Flags                  []string
}

// DefaultDualControlThreshold is applied when no policy version is active
// for the item's account type.
var DefaultDualControlThreshold = model.Money(500000) // $5,000.00

// Evaluate selects the active policy version for item's account type from
// versions and applies every enabled rule in priority order.
func Evaluate(item *model.CheckItem, versions []model.PolicyVersion, policies map[string]model.Policy) (*EvaluationResult, error) {
	pv := selectActiveVersion(item.AccountType, versions, policies)
	if pv == nil {
		return &EvaluationResult{
			RequiresDualControl: item.Amount >= DefaultDualControlThreshold,
			RiskLevel:           item.RiskLevel,
		}, nil
	}

	result := &EvaluationResult{
		PolicyID:        pv.PolicyID,
		PolicyVersionID: pv.ID,
		RiskLevel:       item.RiskLevel,
	}

	rules := make([]model.PolicyRule, len(pv.Rules))
	copy(rules, pv.Rules)
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority > rules[j].Priority
	})

	for _, rule := range rules {
		if !rule.IsEnabled {
			continue
		}
		matched, err := evaluateConditions(rule.Conditions, item)
		if err != nil {
			return nil, fmt.Errorf("policy: rule %s: %w", rule.ID, err)
		}
		if !matched {
			continue
		}
		result.RulesTriggered = append(result.RulesTriggered, rule.ID)
		applyActions(rule.Actions, result)
	}

	return result, nil
}

func selectActiveVersion(accountType model.AccountType, versions []model.PolicyVersion, policies map[string]model.Policy) *model.PolicyVersion {
	var candidates []model.PolicyVersion
	for _, v := range versions {
		if !v.IsCurrent {
			continue
		}
		p, ok := policies[v.PolicyID]
		if !ok || p.Status != model.PolicyStatusActive {
			continue
		}
		if len(p.AppliesToAccountTypes) > 0 && !containsAccountType(p.AppliesToAccountTypes, accountType) {
			continue
		}
		candidates = append(candidates, v)
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		pi, pj := policies[candidates[i].PolicyID], policies[candidates[j].PolicyID]
		if pi.IsDefault != pj.IsDefault {
			return pi.IsDefault
		}
		return candidates[i].EffectiveDate.After(candidates[j].EffectiveDate)
	})
	return &candidates[0]
}

func containsAccountType(list []model.AccountType, at model.AccountType) bool {
	for _, a := range list {
		if a == at {
			return true
		}
	}
	return false
}

func evaluateConditions(conditions []model.Condition, item *model.CheckItem) (bool, error) {
	for _, c := range conditions {
		ok, err := evaluateCondition(c, item)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func evaluateCondition(c model.Condition, item *model.CheckItem) (bool, error) {
	fieldValue, ok := fieldValue(c.Field, item)
	if !ok || fieldValue == nil {
		return false, nil
	}
	target, err := convertValue(c.Value, c.ValueType)
	if err != nil {
		return false, err
	}

	switch c.Operator {
	case model.OpEquals:
		return compareEqual(fieldValue, target), nil
	case model.OpNotEquals:
		return !compareEqual(fieldValue, target), nil
	case model.OpGreaterThan:
		return compareNumeric(fieldValue, target, func(a, b float64) bool { return a > b })
	case model.OpLessThan:
		return compareNumeric(fieldValue, target, func(a, b float64) bool { return a < b })
	case model.OpGreaterOrEqual:
		return compareNumeric(fieldValue, target, func(a, b float64) bool { return a >= b })
	case model.OpLessOrEqual:
		return compareNumeric(fieldValue, target, func(a, b float64) bool { return a <= b })
	case model.OpIn:
		return inList(fieldValue, target), nil
	case model.OpNotIn:
		return !inList(fieldValue, target), nil
	case model.OpContains:
		fs, fok := fieldValue.(string)
		ts, tok := target.(string)
		if !fok || !tok {
			return false, nil
		}
		return strings.Contains(strings.ToLower(fs), strings.ToLower(ts)), nil
	case model.OpBetween:
		list, ok := target.([]any)
		if !ok || len(list) != 2 {
			return false, nil
		}
		lo, loOK := toFloat(list[0])
		hi, hiOK := toFloat(list[1])
		v, vOK := toFloat(fieldValue)
		if !loOK || !hiOK || !vOK {
			return false, nil
		}
		return lo <= v && v <= hi, nil
	}
	return false, fmt.Errorf("policy: unknown operator %q", c.Operator)
}

func compareEqual(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func compareNumeric(a, b any, cmp func(float64, float64) bool) (bool, error) {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return false, fmt.Errorf("policy: non-numeric comparison operands %v, %v", a, b)
	}
	return cmp(af, bf), nil
}

func inList(fieldValue, target any) bool {
	list, ok := target.([]any)
	if !ok {
		return false
	}
	for _, v := range list {
		if compareEqual(fieldValue, v) {
			return true
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// convertValue converts a raw condition value (as decoded from JSON) to
// the type valueType names.
func convertValue(value any, valueType model.ValueType) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch valueType {
	case model.ValueTypeNumber:
		if list, ok := value.([]any); ok {
			out := make([]any, len(list))
			for i, v := range list {
				f, ok := toFloat(v)
				if !ok {
					return nil, fmt.Errorf("policy: non-numeric value in number list: %v", v)
				}
				out[i] = f
			}
			return out, nil
		}
		f, ok := toFloat(value)
		if !ok {
			return nil, fmt.Errorf("policy: non-numeric value: %v", value)
		}
		return f, nil
	case model.ValueTypeBool:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("policy: non-boolean value: %v", value)
		}
		return b, nil
	case model.ValueTypeList:
		if list, ok := value.([]any); ok {
			return list, nil
		}
		return []any{value}, nil
	default:
		return value, nil
	}
}

func applyActions(actions []model.RuleAction, result *EvaluationResult) {
	for _, a := range actions {
		switch a.Action {
		case "require_dual_control":
			result.RequiresDualControl = true
		case "set_risk_level":
			if level, ok := a.Params["level"].(string); ok {
				candidate := model.RiskLevel(level)
				if model.MoreSevere(result.RiskLevel, candidate) {
					result.RiskLevel = candidate
				} else if result.RiskLevel == "" {
					result.RiskLevel = candidate
				}
			}
		case "route_to_queue":
			if qid, ok := a.Params["queue_id"].(string); ok {
				result.RoutingQueueID = &qid
			}
		case "require_reason":
			if cat, ok := a.Params["category"].(string); ok {
				result.RequiredReasonCategories = append(result.RequiredReasonCategories, cat)
			}
		case "add_flag":
			if flag, ok := a.Params["flag"].(string); ok {
				result.Flags = append(result.Flags, flag)
			}
		}
	}
}
