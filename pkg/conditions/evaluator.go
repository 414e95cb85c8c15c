// Package conditions evaluates automation conditions against entity
// snapshots and trigger payloads.
package conditions

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/casaflow/casaflow/pkg/models"
	"github.com/casaflow/casaflow/pkg/template"
)

// Evaluator applies an automation's condition list with AND semantics.
// Evaluation is fail-closed: a missing field, an unknown operator, or a
// type mismatch makes the individual condition false, never an error.
type Evaluator struct {
	logger *slog.Logger
}

func NewEvaluator(logger *slog.Logger) *Evaluator {
	return &Evaluator{
		logger: logger.With("module", "condition_evaluator"),
	}
}

// Evaluate returns true when every condition holds. The empty list is
// an unconditional automation and evaluates to true. Short-circuits on
// the first false condition.
func (e *Evaluator) Evaluate(conds []models.Condition, snapshot, payload map[string]any) bool {
	for i, cond := range conds {
		if !e.evaluateOne(cond, snapshot, payload) {
			e.logger.Debug("Condition evaluated to false",
				"index", i,
				"source", cond.Source,
				"field", cond.Field,
				"operator", cond.Operator)

			return false
		}
	}

	return true
}

func (e *Evaluator) evaluateOne(cond models.Condition, snapshot, payload map[string]any) bool {
	var source map[string]any

	switch cond.Source {
	case models.SourceEntity:
		source = snapshot
	case models.SourceTrigger:
		source = payload
	default:
		e.logger.Warn("Unknown condition source", "source", cond.Source)

		return false
	}

	operand, found := template.Lookup(source, cond.Field)

	// is_empty is unary: a missing field counts as empty.
	if cond.Operator == models.OperatorIsEmpty {
		return !found || isEmpty(operand)
	}

	if !found {
		return false
	}

	switch cond.Operator {
	case models.OperatorEquals:
		return equals(operand, cond.Value)
	case models.OperatorNotEquals:
		return !equals(operand, cond.Value)
	case models.OperatorGreaterThan:
		return compareNumbers(operand, cond.Value, func(a, b float64) bool { return a > b })
	case models.OperatorLessThan:
		return compareNumbers(operand, cond.Value, func(a, b float64) bool { return a < b })
	case models.OperatorContains:
		return strings.Contains(asString(operand), asString(cond.Value))
	case models.OperatorStartsWith:
		return strings.HasPrefix(asString(operand), asString(cond.Value))
	case models.OperatorInList:
		return inList(operand, cond.Value)
	case models.OperatorDateBefore:
		return compareDates(operand, cond.Value, func(a, b time.Time) bool { return a.Before(b) })
	case models.OperatorDateAfter:
		return compareDates(operand, cond.Value, func(a, b time.Time) bool { return a.After(b) })
	default:
		e.logger.Warn("Unknown condition operator", "operator", cond.Operator)

		return false
	}
}

// equals compares numerically when both operands parse as numbers,
// otherwise falls back to string comparison.
func equals(a, b any) bool {
	na, okA := asNumber(a)
	nb, okB := asNumber(b)

	if okA && okB {
		return na == nb
	}

	return asString(a) == asString(b)
}

func compareNumbers(a, b any, cmp func(a, b float64) bool) bool {
	na, okA := asNumber(a)
	nb, okB := asNumber(b)

	if !okA || !okB {
		return false
	}

	return cmp(na, nb)
}

func compareDates(a, b any, cmp func(a, b time.Time) bool) bool {
	ta, okA := asDate(a)
	tb, okB := asDate(b)

	if !okA || !okB {
		return false
	}

	return cmp(ta, tb)
}

func inList(operand, value any) bool {
	needle := asString(operand)

	switch list := value.(type) {
	case []any:
		for _, item := range list {
			if asString(item) == needle {
				return true
			}
		}
	case []string:
		for _, item := range list {
			if item == needle {
				return true
			}
		}
	case string:
		// Accept a comma-separated list as produced by the builder UI.
		for item := range strings.SplitSeq(list, ",") {
			if strings.TrimSpace(item) == needle {
				return true
			}
		}
	}

	return false
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	default:
		return false
	}
}

func asString(value any) string {
	if value == nil {
		return ""
	}

	if s, ok := value.(string); ok {
		return s
	}

	return fmt.Sprintf("%v", value)
}

func asNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)

		return n, err == nil
	default:
		return 0, false
	}
}

// asDate accepts time.Time values, RFC3339 timestamps, and date-only
// strings (2006-01-02).
func asDate(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t, true
		}

		if t, err := time.Parse("2006-01-02", v); err == nil {
			return t, true
		}

		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}
