package notification

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

var ErrInvalidCondition = errors.New("invalid condition")

// Rule is a compiled set of condition groups.
type Rule struct {
	source     string
	conditions []Condition
	program    *vm.Program
}

// ruleEnv is the expression environment. Conditions are referenced by
// index so literal values never become expression syntax.
type ruleEnv struct {
	Ctx Context `expr:"ctx"`
}

// Compile turns condition groups into one boolean expression. Groups are
// OR'd; within a group conditions combine by the group operator. No groups,
// or a group without conditions, is true.
func Compile(groups []ConditionGroup) (*Rule, error) {
	r := &Rule{}
	var parts []string
	for gi, g := range groups {
		join := " && "
		switch strings.ToUpper(strings.TrimSpace(g.Operator)) {
		case GroupAnd, "":
		case GroupOr:
			join = " || "
		default:
			return nil, fmt.Errorf("%w: group %d: unknown operator %q", ErrInvalidCondition, gi, g.Operator)
		}
		if len(g.Conditions) == 0 {
			parts = append(parts, "true")
			continue
		}
		terms := make([]string, 0, len(g.Conditions))
		for ci, c := range g.Conditions {
			fn, err := conditionFunc(c)
			if err != nil {
				return nil, fmt.Errorf("%w: group %d condition %d: %v", ErrInvalidCondition, gi, ci, err)
			}
			terms = append(terms, fmt.Sprintf("%s(ctx, %d)", fn, len(r.conditions)))
			r.conditions = append(r.conditions, c)
		}
		parts = append(parts, "("+strings.Join(terms, join)+")")
	}
	if len(parts) == 0 {
		parts = []string{"true"}
	}
	r.source = strings.Join(parts, " || ")

	program, err := expr.Compile(r.source,
		expr.Env(ruleEnv{}),
		expr.AsBool(),
		expr.Function("eq", r.compare(true), new(func(Context, int) bool)),
		expr.Function("ne", r.compare(false), new(func(Context, int) bool)),
	)
	if err != nil {
		return nil, fmt.Errorf("compile conditions: %w", err)
	}
	r.program = program
	return r, nil
}

func conditionFunc(c Condition) (string, error) {
	if parts := strings.Split(c.Field, "."); len(parts) < 2 || parts[0] == "" || parts[len(parts)-1] == "" {
		return "", fmt.Errorf("field %q is not a category.field path", c.Field)
	}
	switch strings.TrimSpace(c.Operator) {
	case OpEqual, "==":
		return "eq", nil
	case OpNotEqual, "<>":
		return "ne", nil
	default:
		return "", fmt.Errorf("unknown operator %q", c.Operator)
	}
}

// compare returns the eq or ne implementation. A field that cannot be
// resolved makes either comparison false.
func (r *Rule) compare(equal bool) func(params ...interface{}) (interface{}, error) {
	return func(params ...interface{}) (interface{}, error) {
		ctx, _ := params[0].(Context)
		i, _ := params[1].(int)
		if i < 0 || i >= len(r.conditions) {
			return false, fmt.Errorf("condition index %d out of range", i)
		}
		c := r.conditions[i]
		actual, ok := ctx.Lookup(c.Field)
		if !ok {
			return false, nil
		}
		return looseEqual(actual, c.Value) == equal, nil
	}
}

// Match reports whether the rule fires for ctx.
func (r *Rule) Match(ctx Context) bool {
	if ctx == nil {
		ctx = Context{}
	}
	out, err := expr.Run(r.program, ruleEnv{Ctx: ctx})
	if err != nil {
		return false
	}
	fired, _ := out.(bool)
	return fired
}

// String returns the compiled expression.
func (r *Rule) String() string {
	return r.source
}

// looseEqual compares a context value with a literal from the template
// editor. "true"/"false" match booleans and numeric literals match numbers
// and numeric strings; anything else compares as text.
func looseEqual(actual interface{}, literal string) bool {
	literal = strings.TrimSpace(literal)
	switch v := actual.(type) {
	case bool:
		b, err := strconv.ParseBool(strings.ToLower(literal))
		if err != nil {
			return false
		}
		return v == b
	case string:
		if v == literal {
			return true
		}
		if a, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			if b, err := strconv.ParseFloat(literal, 64); err == nil {
				return a == b
			}
		}
		if b, err := strconv.ParseBool(strings.ToLower(literal)); err == nil {
			if a, err := strconv.ParseBool(strings.ToLower(v)); err == nil {
				return a == b
			}
		}
		return false
	case time.Time:
		if t, err := time.Parse(time.RFC3339, literal); err == nil {
			return v.Equal(t)
		}
		return v.Format("2006-01-02") == literal
	}
	if n, ok := toFloat(actual); ok {
		b, err := strconv.ParseFloat(literal, 64)
		return err == nil && n == b
	}
	return fmt.Sprint(actual) == literal
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
