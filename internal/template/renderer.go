// Package template renders text containing {{ expr }} segments. Each
// expression is evaluated as Starlark with entity state helpers in scope.
package template

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	starlarktime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.uber.org/zap"
)

// ErrTemplate reports a template that could not be rendered
var ErrTemplate = errors.New("template render error")

// DefaultMaxSteps bounds the work of one expression
const DefaultMaxSteps = 100000

const (
	openDelim  = "{{"
	closeDelim = "}}"
	unknown    = "unknown"
)

// StateSource looks up the current state string of an entity
type StateSource interface {
	State(ctx context.Context, entityID string) (string, bool)
}

// Renderer evaluates template strings
type Renderer struct {
	states   StateSource
	logger   *zap.Logger
	maxSteps uint64
	now      func() time.Time
}

// NewRenderer creates a renderer. states may be nil, in which case every
// entity reads as "unknown".
func NewRenderer(states StateSource, logger *zap.Logger) *Renderer {
	return &Renderer{
		states:   states,
		logger:   logger,
		maxSteps: DefaultMaxSteps,
		now:      time.Now,
	}
}

// Render replaces every {{ expr }} in tmpl with the value of expr. Text
// outside the delimiters is copied verbatim.
func (r *Renderer) Render(ctx context.Context, tmpl string) (string, error) {
	var b strings.Builder
	rest := tmpl

	for {
		start := strings.Index(rest, openDelim)
		if start < 0 {
			b.WriteString(rest)
			break
		}

		end := strings.Index(rest[start+len(openDelim):], closeDelim)
		if end < 0 {
			return "", fmt.Errorf("%w: unterminated %s", ErrTemplate, openDelim)
		}
		end += start + len(openDelim)

		b.WriteString(rest[:start])

		expr := strings.TrimSpace(rest[start+len(openDelim) : end])
		if expr != "" {
			value, err := r.eval(ctx, expr)
			if err != nil {
				return "", err
			}
			b.WriteString(value)
		}

		rest = rest[end+len(closeDelim):]
	}

	return b.String(), nil
}

func (r *Renderer) eval(ctx context.Context, expr string) (string, error) {
	thread := &starlark.Thread{Name: "template"}
	thread.SetLocal("context", ctx)
	thread.SetMaxExecutionSteps(r.maxSteps)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-done:
		}
	}()

	env := starlark.StringDict{
		"states":   starlark.NewBuiltin("states", r.statesBuiltin),
		"is_state": starlark.NewBuiltin("is_state", r.isStateBuiltin),
		"time":     starlarktime.Module,
		"now":      starlarktime.Time(r.now()),
	}

	value, err := starlark.Eval(thread, "template", expr, env)
	if err != nil {
		r.logger.Debug("Template expression failed", zap.String("expr", expr), zap.Error(err))
		return "", fmt.Errorf("%w: %q: %v", ErrTemplate, expr, err)
	}

	return stringify(value), nil
}

func stringify(v starlark.Value) string {
	switch v := v.(type) {
	case starlark.NoneType:
		return ""
	case starlark.String:
		return string(v)
	default:
		return v.String()
	}
}

func (r *Renderer) lookup(thread *starlark.Thread, entityID string) string {
	if r.states == nil {
		return unknown
	}

	ctx, ok := thread.Local("context").(context.Context)
	if !ok {
		ctx = context.Background()
	}

	state, found := r.states.State(ctx, entityID)
	if !found {
		return unknown
	}
	return state
}

// states(entity_id) returns the entity's state or "unknown"
func (r *Renderer) statesBuiltin(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var entityID string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &entityID); err != nil {
		return nil, err
	}
	return starlark.String(r.lookup(thread, entityID)), nil
}

// is_state(entity_id, value) compares the entity's state to value
func (r *Renderer) isStateBuiltin(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var entityID, value string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &entityID, &value); err != nil {
		return nil, err
	}
	return starlark.Bool(r.lookup(thread, entityID) == value), nil
}
