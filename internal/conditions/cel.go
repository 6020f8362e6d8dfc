package conditions

import (
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/rs/zerolog/log"
)

var (
	celEnvOnce sync.Once
	celEnv     *cel.Env
	celEnvErr  error
)

func expressionEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("role_ids", cel.ListType(cel.StringType)),
			cel.Variable("message_count", cel.IntType),
			cel.Variable("vars", cel.MapType(cel.StringType, cel.DynType)),
		)
	})
	return celEnv, celEnvErr
}

// ExpressionRule evaluates a CEL expression over the context. Any compile or
// evaluation failure skips the rule, matching the unknown-type policy.
type ExpressionRule struct {
	Expr string `json:"expr"`

	once    sync.Once
	program cel.Program
}

func (r *ExpressionRule) Type() string { return "expression" }

func (r *ExpressionRule) Evaluate(ctx *Context) (bool, bool) {
	r.once.Do(func() {
		env, err := expressionEnv()
		if err != nil {
			log.Warn().Err(err).Msg("CEL environment unavailable")
			return
		}
		ast, issues := env.Compile(r.Expr)
		if issues != nil && issues.Err() != nil {
			log.Warn().Err(issues.Err()).Str("expr", r.Expr).Msg("Invalid expression rule")
			return
		}
		program, err := env.Program(ast)
		if err != nil {
			log.Warn().Err(err).Str("expr", r.Expr).Msg("Expression rule not programmable")
			return
		}
		r.program = program
	})

	if r.program == nil {
		return false, false
	}

	vars := ctx.Variables
	if vars == nil {
		vars = map[string]any{}
	}
	roleIDs := ctx.RoleIDs
	if roleIDs == nil {
		roleIDs = []string{}
	}

	result, _, err := r.program.Eval(map[string]any{
		"role_ids":      roleIDs,
		"message_count": ctx.MessageCount,
		"vars":          vars,
	})
	if err != nil {
		return false, false
	}

	value, ok := result.Value().(bool)
	if !ok {
		return false, false
	}
	return value, true
}
