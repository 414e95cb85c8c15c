package models

// ConditionSource selects where a condition reads its operand from.
type ConditionSource string

const (
	// SourceEntity reads the field from the current entity snapshot.
	SourceEntity ConditionSource = "entity"
	// SourceTrigger reads the field from the triggering event payload.
	SourceTrigger ConditionSource = "trigger"
)

// ConditionOperator is the comparison applied to the resolved operand.
type ConditionOperator string

const (
	OperatorEquals      ConditionOperator = "equals"
	OperatorNotEquals   ConditionOperator = "not_equals"
	OperatorGreaterThan ConditionOperator = "greater_than"
	OperatorLessThan    ConditionOperator = "less_than"
	OperatorContains    ConditionOperator = "contains"
	OperatorStartsWith  ConditionOperator = "starts_with"
	OperatorInList      ConditionOperator = "in_list"
	OperatorIsEmpty     ConditionOperator = "is_empty"
	OperatorDateBefore  ConditionOperator = "date_before"
	OperatorDateAfter   ConditionOperator = "date_after"
)

// KnownOperators lists every operator accepted at the CRUD boundary.
var KnownOperators = []ConditionOperator{
	OperatorEquals,
	OperatorNotEquals,
	OperatorGreaterThan,
	OperatorLessThan,
	OperatorContains,
	OperatorStartsWith,
	OperatorInList,
	OperatorIsEmpty,
	OperatorDateBefore,
	OperatorDateAfter,
}

// Condition is a single field comparison. All conditions of an automation
// must hold (logical AND) for it to fire. is_empty is unary and ignores
// Value.
type Condition struct {
	Source   ConditionSource   `json:"source"   validate:"required,oneof=entity trigger"`
	Field    string            `json:"field"    validate:"required"`
	Operator ConditionOperator `json:"operator" validate:"required"`
	Value    any               `json:"value,omitempty"`
}
