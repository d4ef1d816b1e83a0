// Package pipeline is the single-step job executor: a registry from each
// non-terminal state to the handler that leaves it.
//
// The executor never loops over states. Advancing a job is the worker's
// concern; this contract is what makes pause, resume and cancel possible.
package pipeline

import (
	"context"
	"fmt"

	"github.com/truetrack/truetrack/internal/pipeline/model"
)

// Handler performs exactly one state's work. It must either transition the
// job to a new state, set a pause state, or return an error.
type Handler func(ctx context.Context, job *model.Job) error

// Pipeline maps states to handlers.
type Pipeline struct {
	handlers map[model.PipelineState]Handler
}

// New returns an empty pipeline; see NewDefault for the wired registry.
func New() *Pipeline {
	return &Pipeline{handlers: make(map[model.PipelineState]Handler)}
}

// Register binds a handler to the state it leaves.
func (p *Pipeline) Register(state model.PipelineState, h Handler) {
	p.handlers[state] = h
}

// Step executes exactly one handler for the job's current state.
//
// Terminal and pause states are no-ops. A *model.PipelineError return is a
// deterministic domain failure; any other error is unexpected and subject to
// the worker's retry policy. A handler that returns without changing state
// is a bug surfaced as NO_STATE_CHANGE.
func (p *Pipeline) Step(ctx context.Context, job *model.Job) error {
	current := job.CurrentState
	if current.IsTerminal() || current.IsPause() {
		return nil
	}

	handler, ok := p.handlers[current]
	if !ok {
		return model.NewPipelineError(
			model.CodeNoHandler,
			fmt.Sprintf("no handler registered for state %s", current),
		)
	}

	if err := handler(ctx, job); err != nil {
		return err
	}

	if job.CurrentState == current {
		return model.NewPipelineError(
			model.CodeNoStateChange,
			fmt.Sprintf("handler for %s did not advance state", current),
		)
	}
	return nil
}
