package definition

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/petrijr/pocketflow/pkg/api"
)

// ConditionDef is the YAML form of api.Condition. Exactly one field is set.
// A bare string is shorthand for expr:
//
//	when: "score >= 50"
//	when: {compare: {key: score, op: ">=", value: 50}}
//	when: {all: [{exists: user}, {not: {equals: {key: banned, value: true}}}]}
type ConditionDef struct {
	Always  bool           `yaml:"always,omitempty"`
	Never   bool           `yaml:"never,omitempty"`
	Exists  string         `yaml:"exists,omitempty"`
	Equals  *EqualsDef     `yaml:"equals,omitempty"`
	Compare *CompareDef    `yaml:"compare,omitempty"`
	Expr    string         `yaml:"expr,omitempty"`
	All     []ConditionDef `yaml:"all,omitempty"`
	Any     []ConditionDef `yaml:"any,omitempty"`
	Not     *ConditionDef  `yaml:"not,omitempty"`
}

type EqualsDef struct {
	Key   string `yaml:"key"`
	Value any    `yaml:"value"`
}

type CompareDef struct {
	Key   string  `yaml:"key"`
	Op    string  `yaml:"op"`
	Value float64 `yaml:"value"`
}

// UnmarshalYAML accepts the expression shorthand.
func (c *ConditionDef) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*c = ConditionDef{Expr: node.Value}
		return nil
	}
	type plain ConditionDef
	return node.Decode((*plain)(c))
}

// Condition converts the definition to an api.Condition.
func (c *ConditionDef) Condition() (api.Condition, error) {
	set := 0
	for _, ok := range []bool{
		c.Always, c.Never, c.Exists != "", c.Equals != nil, c.Compare != nil,
		c.Expr != "", c.All != nil, c.Any != nil, c.Not != nil,
	} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return api.Condition{}, fmt.Errorf("condition must set exactly one of always, never, exists, equals, compare, expr, all, any, not (got %d)", set)
	}

	switch {
	case c.Always:
		return api.Always(), nil
	case c.Never:
		return api.Never(), nil
	case c.Exists != "":
		return api.KeyExists(c.Exists), nil
	case c.Equals != nil:
		if c.Equals.Key == "" {
			return api.Condition{}, errors.New("equals: key is required")
		}
		return api.KeyEquals(c.Equals.Key, c.Equals.Value), nil
	case c.Compare != nil:
		if c.Compare.Key == "" {
			return api.Condition{}, errors.New("compare: key is required")
		}
		op, err := api.ParseOperator(c.Compare.Op)
		if err != nil {
			return api.Condition{}, fmt.Errorf("compare: %w", err)
		}
		return api.NumericCompare(c.Compare.Key, op, c.Compare.Value), nil
	case c.Expr != "":
		return api.Expression(c.Expr), nil
	case c.All != nil:
		conds, err := convertAll(c.All)
		if err != nil {
			return api.Condition{}, fmt.Errorf("all: %w", err)
		}
		return api.And(conds...), nil
	case c.Any != nil:
		conds, err := convertAll(c.Any)
		if err != nil {
			return api.Condition{}, fmt.Errorf("any: %w", err)
		}
		return api.Or(conds...), nil
	default:
		inner, err := c.Not.Condition()
		if err != nil {
			return api.Condition{}, fmt.Errorf("not: %w", err)
		}
		return api.Not(inner), nil
	}
}

func convertAll(defs []ConditionDef) ([]api.Condition, error) {
	conds := make([]api.Condition, 0, len(defs))
	for i := range defs {
		c, err := defs[i].Condition()
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		conds = append(conds, c)
	}
	return conds, nil
}
