// Package filter provides an optional CEL-based allow/deny gate evaluated by
// engine.Demultiplexer before an update ever reaches a message/callback
// stream. Absent configuration, everything is allowed: this is an
// operational gate, not a routing or conversation-logic decision, so it
// never touches the Non-goal boundary around chat behavior.
package filter

import (
	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"
)

// Input is the small declared environment a filter expression may reference.
type Input struct {
	ChatID    int64
	UserID    int64
	IsCommand bool
	Text      string
}

// Engine evaluates one compiled CEL expression against an Input.
type Engine struct {
	program cel.Program
}

func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("chat_id", cel.IntType),
		cel.Variable("user_id", cel.IntType),
		cel.Variable("is_command", cel.BoolType),
		cel.Variable("text", cel.StringType),
	)
}

// Compile builds an Engine from a single boolean CEL expression, e.g.
// `chat_id in [111, 222] || is_command`. An empty expression yields an
// AllowAll Engine.
func Compile(expression string) (*Engine, error) {
	if expression == "" {
		return AllowAll(), nil
	}

	env, err := newEnv()
	if err != nil {
		return nil, errors.Wrap(err, "filter: create CEL environment")
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, errors.Wrapf(issues.Err(), "filter: invalid expression %q", expression)
	}
	if ast.OutputType() != cel.BoolType {
		return nil, errors.Errorf("filter: expression %q must evaluate to bool, got %s", expression, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, errors.Wrapf(err, "filter: build program for %q", expression)
	}

	return &Engine{program: program}, nil
}

// AllowAll is the default Engine used when no expression is configured.
func AllowAll() *Engine {
	return &Engine{}
}

// Allow evaluates the compiled expression against in. A nil program (the
// AllowAll case) always returns true. Any evaluation error also falls back
// to true, since a misbehaving filter must never silently swallow updates
// that would otherwise reach a chat.
func (e *Engine) Allow(in Input) bool {
	if e == nil || e.program == nil {
		return true
	}

	out, _, err := e.program.Eval(map[string]any{
		"chat_id":    in.ChatID,
		"user_id":    in.UserID,
		"is_command": in.IsCommand,
		"text":       in.Text,
	})
	if err != nil {
		return true
	}

	allowed, ok := out.Value().(bool)
	if !ok {
		return true
	}
	return allowed
}
