package model

import "time"

// PolicyStatus gates whether a policy's current version is eligible for
// selection by the engine.
type PolicyStatus string

const (
	PolicyStatusActive   PolicyStatus = "active"
	PolicyStatusInactive PolicyStatus = "inactive"
	PolicyStatusDraft    PolicyStatus = "draft"
)

// Policy groups versions under a tenant. Exactly one version per policy is
// current at any time.
type Policy struct {
	ID                    string
	TenantID              string
	Name                  string
	Status                PolicyStatus
	IsDefault             bool
	AppliesToAccountTypes []AccountType // empty = applies to any
}

// PolicyVersion is one effective-dated snapshot of a policy's rules.
type PolicyVersion struct {
	ID            string
	PolicyID      string
	TenantID      string
	EffectiveDate time.Time
	IsCurrent     bool
	Rules         []PolicyRule
}

// RuleType categorizes what a rule is primarily intended to do; it does
// not constrain which actions the rule may emit.
type RuleType string

const (
	RuleTypeThreshold  RuleType = "threshold"
	RuleTypeDualControl RuleType = "dual_control"
	RuleTypeEscalation RuleType = "escalation"
	RuleTypeRouting    RuleType = "routing"
)

// Operator is a closed set of condition comparators.
type Operator string

const (
	OpEquals         Operator = "equals"
	OpNotEquals      Operator = "not_equals"
	OpGreaterThan    Operator = "greater_than"
	OpLessThan       Operator = "less_than"
	OpGreaterOrEqual Operator = "greater_or_equal"
	OpLessOrEqual    Operator = "less_or_equal"
	OpIn             Operator = "in"
	OpNotIn          Operator = "not_in"
	OpContains       Operator = "contains"
	OpBetween        Operator = "between"
)

// ValueType tells the engine how to interpret Condition.Value before
// comparing it against the field.
type ValueType string

const (
	ValueTypeString ValueType = "string"
	ValueTypeNumber ValueType = "number"
	ValueTypeBool   ValueType = "bool"
	ValueTypeList   ValueType = "list"
)

// Condition is one clause of a rule's conjunctive precondition.
type Condition struct {
	Field     string    `json:"field"`
	Operator  Operator  `json:"operator"`
	Value     any       `json:"value"`
	ValueType ValueType `json:"value_type"`
}

// RuleAction is one effect a triggered rule applies to the evaluation
// result.
type RuleAction struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params,omitempty"`
}

// PolicyRule is one ordered, independently-evaluated rule within a policy
// version.
type PolicyRule struct {
	ID             string
	PolicyVersionID string
	Name           string
	RuleType       RuleType
	Priority       int
	IsEnabled      bool
	Conditions     []Condition
	Actions        []RuleAction
	AmountThreshold *Money
	CreatedAt      time.Time
}
