package rules

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lalithlochan/opsuite/internal/db"
)

// Condition operators accepted in stored rules.
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpContains    = "contains"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
)

// ValidOperator reports whether op is one of the supported operators.
func ValidOperator(op string) bool {
	switch op {
	case OpEquals, OpNotEquals, OpContains, OpGreaterThan, OpLessThan:
		return true
	}
	return false
}

// ValidateConditions rejects any condition with an unsupported operator.
func ValidateConditions(conditions []db.RuleCondition) error {
	for i, c := range conditions {
		if !ValidOperator(c.Operator) {
			return fmt.Errorf("condition %d (%s): %w: %q", i, c.Field, ErrUnknownOperator, c.Operator)
		}
	}
	return nil
}

// Match evaluates conditions as an AND over the payload, stopping at the first
// failure. An empty list matches. Operators are validated up front, so a rule
// with an unsupported operator is rejected no matter what the payload holds.
func Match(conditions []db.RuleCondition, payload map[string]any) (bool, error) {
	if err := ValidateConditions(conditions); err != nil {
		return false, err
	}

	for _, c := range conditions {
		if !Evaluate(c, payload) {
			return false, nil
		}
	}
	return true, nil
}

// Evaluate checks a single condition. Unsupported operators evaluate to false.
func Evaluate(c db.RuleCondition, payload map[string]any) bool {
	actual, found := Lookup(payload, c.Field)

	switch c.Operator {
	case OpEquals:
		return found && strictEqual(actual, c.Value)
	case OpNotEquals:
		return !found || !strictEqual(actual, c.Value)
	case OpContains:
		if !found || actual == nil || c.Value == nil {
			return false
		}
		return strings.Contains(stringify(actual), stringify(c.Value))
	case OpGreaterThan, OpLessThan:
		if !found {
			return false
		}
		a, ok := toNumber(actual)
		if !ok {
			return false
		}
		b, ok := toNumber(c.Value)
		if !ok {
			return false
		}
		if c.Operator == OpGreaterThan {
			return a > b
		}
		return a < b
	}
	return false
}

// strictEqual compares scalars without coercion across kinds. Numbers compare
// by value whatever their Go representation; objects and arrays never equal.
func strictEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if x, ok := numeric(a); ok {
		y, ok := numeric(b)
		return ok && x == y
	}

	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	}
	return false
}

// numeric converts Go number kinds only, no strings or bools.
func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// toNumber is the loose coercion used by ordering operators.
func toNumber(v any) (float64, bool) {
	if f, ok := numeric(v); ok {
		return f, !math.IsNaN(f)
	}

	switch x := v.(type) {
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// stringify renders a decoded JSON value as text.
func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		return x.String()
	}

	if f, ok := numeric(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}

	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
