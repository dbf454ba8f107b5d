// Package rowexpr compiles the optional record-filter expression operators
// can set to drop rows before they ever reach the cache, for example test
// submissions from a known teacher account.
package rowexpr

import (
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/dnaufal/presensi/internal/sheet"
)

// Environment builds and compiles CEL programs against a single record.
type Environment struct {
	env *cel.Env
}

// NewEnvironment declares the variables a row filter can reference: the
// record's fields as a string map plus the evaluation instant.
func NewEnvironment() (*Environment, error) {
	env, err := cel.NewEnv(
		cel.Variable("record", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("now", cel.TimestampType),
		cel.HomogeneousAggregateLiterals(),
	)
	if err != nil {
		return nil, fmt.Errorf("rowexpr: build environment: %w", err)
	}
	return &Environment{env: env}, nil
}

// Program is a compiled boolean row predicate, safe for concurrent use.
type Program struct {
	source  string
	program cel.Program
}

// Compile prepares the expression, ensuring it yields a boolean.
func (e *Environment) Compile(expression string) (Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return Program{}, fmt.Errorf("rowexpr: compile %q: %w", expression, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return Program{}, fmt.Errorf("rowexpr: expression %q must yield a boolean, got %s", expression, ast.OutputType())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return Program{}, fmt.Errorf("rowexpr: program %q: %w", expression, err)
	}
	return Program{source: expression, program: prg}, nil
}

// Source returns the raw expression text for status reporting.
func (p Program) Source() string { return p.source }

// Keep evaluates the predicate for one record. Evaluation errors keep the
// record: a broken filter must not silently empty the dataset.
func (p Program) Keep(r sheet.Record) bool {
	if p.program == nil {
		return true
	}
	val, _, err := p.program.Eval(map[string]any{
		"record": map[string]string{
			"timestamp": r.Timestamp,
			"teacher":   r.Teacher,
			"student":   r.Student,
			"date":      r.Date,
			"time":      r.Time,
			"duration":  r.Duration,
		},
		"now": time.Now(),
	})
	if err != nil {
		return true
	}
	keep, ok := val.(types.Bool)
	if !ok {
		return true
	}
	return bool(keep)
}
