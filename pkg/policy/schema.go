package policy

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// conditionSchema closes the shape of a rule condition before it is ever
// stored: unknown operators or malformed value types are rejected at
// write time rather than silently evaluating to false forever.
const conditionSchema = `{
	"type": "object",
	"required": ["field", "operator", "value", "value_type"],
	"properties": {
		"field": {"type": "string", "minLength": 1},
		"operator": {
			"type": "string",
			"enum": ["equals", "not_equals", "greater_than", "less_than", "greater_or_equal", "less_or_equal", "in", "not_in", "contains", "between"]
		},
		"value_type": {
			"type": "string",
			"enum": ["string", "number", "bool", "list"]
		}
	}
}`

const actionSchema = `{
	"type": "object",
	"required": ["action"],
	"properties": {
		"action": {
			"type": "string",
			"enum": ["require_dual_control", "set_risk_level", "route_to_queue", "require_reason", "add_flag"]
		},
		"params": {"type": "object"}
	}
}`

var (
	compiledConditionSchema *jsonschema.Schema
	compiledActionSchema    *jsonschema.Schema
)

func init() {
	compiledConditionSchema = mustCompile("condition.json", conditionSchema)
	compiledActionSchema = mustCompile("action.json", actionSchema)
}

func mustCompile(name, schema string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, strings.NewReader(schema)); err != nil {
		panic(fmt.Sprintf("policy: invalid built-in schema %s: %v", name, err))
	}
	s, err := c.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("policy: failed to compile built-in schema %s: %v", name, err))
	}
	return s
}

// ValidateRuleJSON validates raw JSON-encoded conditions/actions before a
// rule is persisted.
func ValidateRuleJSON(conditionsJSON, actionsJSON []byte) error {
	if err := validateAgainst(compiledConditionSchema, conditionsJSON); err != nil {
		return fmt.Errorf("policy: invalid conditions: %w", err)
	}
	if err := validateAgainst(compiledActionSchema, actionsJSON); err != nil {
		return fmt.Errorf("policy: invalid actions: %w", err)
	}
	return nil
}

func validateAgainst(schema *jsonschema.Schema, raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if err := schema.Validate(item); err != nil {
				return err
			}
		}
		return nil
	default:
		return schema.Validate(v)
	}
}
