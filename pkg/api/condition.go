package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
)

// ConditionKind identifies the variant of a Condition.
type ConditionKind string

const (
	ConditionAlways         ConditionKind = "always"
	ConditionNever          ConditionKind = "never"
	ConditionKeyExists      ConditionKind = "key_exists"
	ConditionKeyEquals      ConditionKind = "key_equals"
	ConditionNumericCompare ConditionKind = "numeric_compare"
	ConditionExpression     ConditionKind = "expression"
	ConditionAnd            ConditionKind = "and"
	ConditionOr             ConditionKind = "or"
	ConditionNot            ConditionKind = "not"
)

// ComparisonOperator is the operator of a numeric comparison.
type ComparisonOperator string

const (
	OpEqual              ComparisonOperator = "=="
	OpNotEqual           ComparisonOperator = "!="
	OpGreaterThan        ComparisonOperator = ">"
	OpGreaterThanOrEqual ComparisonOperator = ">="
	OpLessThan           ComparisonOperator = "<"
	OpLessThanOrEqual    ComparisonOperator = "<="
)

// ParseOperator converts the textual form of an operator.
func ParseOperator(s string) (ComparisonOperator, error) {
	switch op := ComparisonOperator(strings.TrimSpace(s)); op {
	case OpEqual, OpNotEqual, OpGreaterThan, OpGreaterThanOrEqual, OpLessThan, OpLessThanOrEqual:
		return op, nil
	default:
		return "", fmt.Errorf("unknown comparison operator %q", s)
	}
}

// Condition is a boolean expression over the store, evaluated at routing
// time. The zero Condition is Always.
type Condition struct {
	kind      ConditionKind
	key       string
	value     any
	op        ComparisonOperator
	threshold float64
	expr      string
	children  []Condition
}

func Always() Condition { return Condition{kind: ConditionAlways} }
func Never() Condition  { return Condition{kind: ConditionNever} }

// KeyExists is true when key is present in the store.
func KeyExists(key string) Condition {
	return Condition{kind: ConditionKeyExists, key: key}
}

// KeyEquals is true when the stored value at key equals value.
func KeyEquals(key string, value any) Condition {
	return Condition{kind: ConditionKeyEquals, key: key, value: value}
}

// NumericCompare compares the numeric value at key against threshold.
// A missing or non-numeric value makes the condition false.
func NumericCompare(key string, op ComparisonOperator, threshold float64) Condition {
	return Condition{kind: ConditionNumericCompare, key: key, op: op, threshold: threshold}
}

// Expression is evaluated with expr-lang against the store entries.
func Expression(expression string) Condition {
	return Condition{kind: ConditionExpression, expr: expression}
}

func And(conds ...Condition) Condition {
	return Condition{kind: ConditionAnd, children: slices.Clone(conds)}
}

func Or(conds ...Condition) Condition {
	return Condition{kind: ConditionOr, children: slices.Clone(conds)}
}

func Not(cond Condition) Condition {
	return Condition{kind: ConditionNot, children: []Condition{cond}}
}

// Kind returns the variant of c.
func (c Condition) Kind() ConditionKind {
	if c.kind == "" {
		return ConditionAlways
	}
	return c.kind
}

// Evaluate computes c against the current contents of store. It never
// writes to the store.
func (c Condition) Evaluate(ctx context.Context, store Store) (bool, error) {
	switch c.Kind() {
	case ConditionAlways:
		return true, nil
	case ConditionNever:
		return false, nil
	case ConditionKeyExists:
		return store.ContainsKey(ctx, c.key)
	case ConditionKeyEquals:
		actual, ok, err := store.Get(ctx, c.key)
		if err != nil || !ok {
			return false, err
		}
		return jsonEqual(actual, c.value), nil
	case ConditionNumericCompare:
		actual, ok, err := store.Get(ctx, c.key)
		if err != nil || !ok {
			return false, err
		}
		n, isNum := toFloat(actual)
		if !isNum {
			return false, nil
		}
		return compare(n, c.op, c.threshold), nil
	case ConditionExpression:
		return evaluateExpression(ctx, c.expr, store)
	case ConditionAnd:
		for _, child := range c.children {
			ok, err := child.Evaluate(ctx, store)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case ConditionOr:
		for _, child := range c.children {
			ok, err := child.Evaluate(ctx, store)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case ConditionNot:
		ok, err := c.children[0].Evaluate(ctx, store)
		if err != nil {
			return false, err
		}
		return !ok, nil
	default:
		return false, fmt.Errorf("unknown condition kind %q", c.kind)
	}
}

func (c Condition) String() string {
	switch c.Kind() {
	case ConditionAlways:
		return "true"
	case ConditionNever:
		return "false"
	case ConditionKeyExists:
		return fmt.Sprintf("exists(%s)", c.key)
	case ConditionKeyEquals:
		return fmt.Sprintf("%s == %s", c.key, formatValue(c.value))
	case ConditionNumericCompare:
		return fmt.Sprintf("%s %s %s", c.key, c.op, strconv.FormatFloat(c.threshold, 'f', -1, 64))
	case ConditionExpression:
		return "(" + c.expr + ")"
	case ConditionAnd:
		return "(" + joinConditions(c.children, " && ") + ")"
	case ConditionOr:
		return "(" + joinConditions(c.children, " || ") + ")"
	case ConditionNot:
		return "!(" + c.children[0].String() + ")"
	default:
		return string(c.kind)
	}
}

func joinConditions(conds []Condition, sep string) string {
	parts := make([]string, 0, len(conds))
	for _, c := range conds {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, sep)
}

func compare(n float64, op ComparisonOperator, threshold float64) bool {
	switch op {
	case OpEqual:
		return n == threshold
	case OpNotEqual:
		return n != threshold
	case OpGreaterThan:
		return n > threshold
	case OpGreaterThanOrEqual:
		return n >= threshold
	case OpLessThan:
		return n < threshold
	case OpLessThanOrEqual:
		return n <= threshold
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func jsonEqual(a, b any) bool {
	na, err := normalizeJSON(a)
	if err != nil {
		return false
	}
	nb, err := normalizeJSON(b)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(na, nb)
}

// evaluateExpression compiles expression against a snapshot of the store
// and converts the result to a boolean.
func evaluateExpression(ctx context.Context, expression string, store Store) (bool, error) {
	if strings.TrimSpace(expression) == "" {
		return true, nil
	}
	env, err := Snapshot(ctx, store)
	if err != nil {
		return false, err
	}

	program, err := expr.Compile(expression, expr.Env(env))
	if err != nil {
		return false, fmt.Errorf("compile condition %q: %w", expression, err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate condition %q: %w", expression, err)
	}
	return isTruthy(result), nil
}

func isTruthy(v any) bool {
	if v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val != ""
	default:
		if n, ok := toFloat(val); ok {
			return n != 0
		}
		return true
	}
}

type conditionJSON struct {
	Kind       ConditionKind      `json:"kind"`
	Key        string             `json:"key,omitempty"`
	Value      any                `json:"value,omitempty"`
	Operator   ComparisonOperator `json:"operator,omitempty"`
	Threshold  *float64           `json:"threshold,omitempty"`
	Expression string             `json:"expression,omitempty"`
	Conditions []Condition        `json:"conditions,omitempty"`
	Condition  *Condition         `json:"condition,omitempty"`
}

func (c Condition) MarshalJSON() ([]byte, error) {
	out := conditionJSON{Kind: c.Kind()}
	switch out.Kind {
	case ConditionKeyExists:
		out.Key = c.key
	case ConditionKeyEquals:
		out.Key, out.Value = c.key, c.value
	case ConditionNumericCompare:
		t := c.threshold
		out.Key, out.Operator, out.Threshold = c.key, c.op, &t
	case ConditionExpression:
		out.Expression = c.expr
	case ConditionAnd, ConditionOr:
		out.Conditions = c.children
		if out.Conditions == nil {
			out.Conditions = []Condition{}
		}
	case ConditionNot:
		out.Condition = &c.children[0]
	}
	return json.Marshal(out)
}

func (c *Condition) UnmarshalJSON(data []byte) error {
	var in conditionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Kind {
	case ConditionAlways, "":
		*c = Always()
	case ConditionNever:
		*c = Never()
	case ConditionKeyExists:
		*c = KeyExists(in.Key)
	case ConditionKeyEquals:
		*c = KeyEquals(in.Key, in.Value)
	case ConditionNumericCompare:
		op, err := ParseOperator(string(in.Operator))
		if err != nil {
			return err
		}
		var t float64
		if in.Threshold != nil {
			t = *in.Threshold
		}
		*c = NumericCompare(in.Key, op, t)
	case ConditionExpression:
		*c = Expression(in.Expression)
	case ConditionAnd:
		*c = And(in.Conditions...)
	case ConditionOr:
		*c = Or(in.Conditions...)
	case ConditionNot:
		if in.Condition == nil {
			return errors.New("not condition requires condition")
		}
		*c = Not(*in.Condition)
	default:
		return fmt.Errorf("unknown condition kind %q", in.Kind)
	}
	return nil
}
