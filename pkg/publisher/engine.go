package publisher

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"
)

// costLimit bounds the work a single expression may do per evaluation.
const costLimit = 100_000

// Engine compiles and evaluates rulesets. It is safe for concurrent use.
type Engine struct {
	env      *cel.Env
	validate *validator.Validate

	conditionPrograms  sync.Map // expression -> cel.Program
	consequentPrograms sync.Map // expression -> cel.Program
}

func NewEngine() (*Engine, error) {
	opts := make([]cel.EnvOption, 0, len(variableNames)+1)
	for _, name := range variableNames {
		opts = append(opts, cel.Variable(name, cel.StringType))
	}
	opts = append(opts, ext.Strings())
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}
	e := &Engine{env: env}
	if e.validate, err = newSchemaValidator(e); err != nil {
		return nil, err
	}
	return e, nil
}

// MustNewEngine is NewEngine for package-level initialisation and tests.
func MustNewEngine() *Engine {
	e, err := NewEngine()
	if err != nil {
		panic(err)
	}
	return e
}

// Resolve returns the publisher identity of rawURL under rules. found is
// false when no rule matches, the matching rule has a null consequent, or
// the consequent evaluates to an empty string.
func (e *Engine) Resolve(rules Ruleset, rawURL string) (identity string, found bool, err error) {
	loc, err := ParseLocation(rawURL)
	if err != nil {
		return "", false, err
	}
	vars := loc.activation()
	for i, rule := range rules {
		ok, err := e.evalCondition(string(rule.Condition), vars)
		if err != nil {
			return "", false, fmt.Errorf("rules[%d].condition: %w", i, err)
		}
		if !ok {
			continue
		}
		if rule.Consequent == nil {
			return "", false, nil
		}
		identity, err := e.evalConsequent(*rule.Consequent, vars)
		if err != nil {
			return "", false, fmt.Errorf("rules[%d].consequent: %w", i, err)
		}
		identity = strings.TrimSpace(identity)
		return identity, identity != "", nil
	}
	return "", false, nil
}

func (e *Engine) evalCondition(expr string, vars map[string]any) (bool, error) {
	program, err := e.program(expr, cel.BoolType, &e.conditionPrograms)
	if err != nil {
		return false, err
	}
	out, _, err := program.Eval(vars)
	if err != nil {
		return false, err
	}
	v, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expected bool, got %T", out.Value())
	}
	return v, nil
}

func (e *Engine) evalConsequent(expr string, vars map[string]any) (string, error) {
	program, err := e.program(expr, cel.StringType, &e.consequentPrograms)
	if err != nil {
		return "", err
	}
	out, _, err := program.Eval(vars)
	if err != nil {
		return "", err
	}
	v, ok := out.Value().(string)
	if !ok {
		return "", fmt.Errorf("expected string, got %T", out.Value())
	}
	return v, nil
}

func (e *Engine) program(expr string, outputType *cel.Type, cache *sync.Map) (cel.Program, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.New("expression required")
	}
	if cached, ok := cache.Load(expr); ok {
		return cached.(cel.Program), nil
	}
	if err := e.check(expr, outputType); err != nil {
		return nil, err
	}
	ast, _ := e.env.Compile(expr)
	program, err := e.env.Program(ast, cel.CostLimit(costLimit))
	if err != nil {
		return nil, err
	}
	cache.Store(expr, program)
	return program, nil
}

// check compiles expr and verifies its static output type.
func (e *Engine) check(expr string, outputType *cel.Type) error {
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return issues.Err()
	}
	if !ast.OutputType().IsExactType(outputType) {
		return fmt.Errorf("expression must evaluate to %s, got %s", outputType, ast.OutputType())
	}
	return nil
}
