package schema

import (
	"errors"
	"sync"
	"time"

	"github.com/albmarin/umongo/core/i18n"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Compiled rule cache. Rules repeat across templates (every schema
// declaring `validate: "value >= 0"` shares one program), so programs
// are cached per source string for the life of the process.
var (
	ruleCacheMu sync.RWMutex
	ruleCache   = make(map[string]*vm.Program)
)

// ExprValidator builds a field validator from an Expr boolean rule.
// The value under validation is bound to `value`, and `now()` returns
// the current time. Compilation happens eagerly so malformed rules
// fail when the template is declared, not when the first document is
// validated.
//
//	v, err := schema.ExprValidator(`value >= 0 && value < 150`)
func ExprValidator(rule string) (Validator, error) {
	program, err := getOrCompileRule(rule)
	if err != nil {
		return nil, err
	}
	return func(value any) error {
		env := map[string]any{
			"value": value,
			"now":   time.Now,
		}
		result, err := expr.Run(program, env)
		if err != nil {
			return errors.New(i18n.Tf("does not satisfy %s", rule))
		}
		if ok, _ := result.(bool); !ok {
			return errors.New(i18n.Tf("does not satisfy %s", rule))
		}
		return nil
	}, nil
}

// ExprDocValidator builds a document-level validator from an Expr
// boolean rule. Field values are bound by logical name, so a rule can
// relate fields to each other:
//
//	v, err := schema.ExprDocValidator(`starts_at <= ends_at`)
func ExprDocValidator(rule string) (DocumentValidator, error) {
	program, err := getOrCompileRule(rule)
	if err != nil {
		return nil, err
	}
	return func(values map[string]any) error {
		env := make(map[string]any, len(values)+1)
		for k, v := range values {
			env[k] = v
		}
		env["now"] = time.Now
		result, err := expr.Run(program, env)
		if err != nil {
			return errors.New(i18n.Tf("does not satisfy %s", rule))
		}
		if ok, _ := result.(bool); !ok {
			return errors.New(i18n.Tf("does not satisfy %s", rule))
		}
		return nil
	}, nil
}

// getOrCompileRule returns a cached compiled program or compiles a new one.
func getOrCompileRule(rule string) (*vm.Program, error) {
	ruleCacheMu.RLock()
	program, ok := ruleCache[rule]
	ruleCacheMu.RUnlock()

	if ok {
		return program, nil
	}

	program, err := expr.Compile(rule, expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return nil, err
	}

	ruleCacheMu.Lock()
	ruleCache[rule] = program
	ruleCacheMu.Unlock()

	return program, nil
}
