package escrow

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// Policy evaluates CEL release conditions. Conditions see a single "input"
// map; compiled programs are cached per expression.
type Policy struct {
	env   *cel.Env
	cache map[string]cel.Program
	mu    sync.RWMutex
}

// NewPolicy creates a condition evaluator.
func NewPolicy() (*Policy, error) {
	env, err := cel.NewEnv(
		cel.Variable("input", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}
	return &Policy{
		env:   env,
		cache: make(map[string]cel.Program),
	}, nil
}

// Compile checks that expression is a valid condition without evaluating it.
func (p *Policy) Compile(expression string) error {
	_, err := p.program(expression)
	return err
}

func (p *Policy) program(expression string) (cel.Program, error) {
	p.mu.RLock()
	prg, hit := p.cache[expression]
	p.mu.RUnlock()
	if hit {
		return prg, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if prg, hit = p.cache[expression]; hit {
		return prg, nil
	}

	ast, issues := p.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compile error: %w", issues.Err())
	}
	prg, err := p.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("CEL program error: %w", err)
	}
	p.cache[expression] = prg
	return prg, nil
}

// Evaluate runs the condition against input and returns its boolean result.
func (p *Policy) Evaluate(expression string, input map[string]interface{}) (bool, error) {
	prg, err := p.program(expression)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(map[string]interface{}{"input": input})
	if err != nil {
		return false, fmt.Errorf("CEL eval error: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition %q is not boolean", expression)
	}
	return result, nil
}
