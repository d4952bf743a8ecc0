package pattern

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// celEnv is the shared CEL environment for the "cel" condition variant --
// an escape hatch for boolean logic the declarative condition kinds can't
// express, generalized from the teacher's CEL-first policy language (see
// SPEC_FULL.md §3). Built once; cel.Env is safe for concurrent Compile
// calls.
var (
	celEnvOnce sync.Once
	celEnv     *cel.Env
	celEnvErr  error
)

func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("tool_name", cel.StringType),
			cel.Variable("cwd", cel.StringType),
			cel.Variable("session_id", cel.StringType),
			cel.Variable("agent_id", cel.StringType),
			cel.Variable("parameters", cel.MapType(cel.StringType, cel.DynType)),
		)
	})
	return celEnv, celEnvErr
}

// compiledCEL wraps a compiled CEL program ready for repeated evaluation.
type compiledCEL struct {
	prg cel.Program
}

func compileCEL(expr string) (compiledCEL, error) {
	if expr == "" {
		return compiledCEL{}, fmt.Errorf("empty cel expression")
	}
	env, err := getCELEnv()
	if err != nil {
		return compiledCEL{}, fmt.Errorf("cel environment: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return compiledCEL{}, issues.Err()
	}
	if ast.OutputType() != cel.BoolType {
		return compiledCEL{}, fmt.Errorf("cel expression must evaluate to bool, got %s", ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return compiledCEL{}, fmt.Errorf("cel program: %w", err)
	}
	return compiledCEL{prg: prg}, nil
}

func evalCEL(c compiledCEL, r Fielder) (bool, error) {
	if c.prg == nil {
		return false, fmt.Errorf("cel condition not compiled")
	}
	vars := map[string]any{}
	for _, name := range []string{"tool_name", "cwd", "session_id", "agent_id"} {
		if v, ok := r.Field(name); ok {
			vars[name] = v
		} else {
			vars[name] = ""
		}
	}
	if v, ok := r.Field("parameters"); ok {
		if m, ok := v.(map[string]any); ok {
			vars["parameters"] = m
		} else {
			vars["parameters"] = map[string]any{}
		}
	} else {
		vars["parameters"] = map[string]any{}
	}

	out, _, err := c.prg.Eval(vars)
	if err != nil {
		return false, err
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("cel expression returned non-bool: %T", out.Value())
	}
	return b, nil
}
