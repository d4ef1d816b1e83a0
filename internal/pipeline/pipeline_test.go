package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truetrack/truetrack/internal/pipeline/model"
)

func TestStep_TerminalAndPauseAreNoOps(t *testing.T) {
	p := New()
	called := false
	p.Register(model.StateFinalized, func(ctx context.Context, job *model.Job) error {
		called = true
		return nil
	})

	for _, state := range []model.PipelineState{
		model.StateFinalized, model.StateFailed, model.StateCancelled,
		model.StateUserIntentSelection, model.StateUserMetadataSelection,
	} {
		job := model.NewJob("q", model.Options{})
		job.CurrentState = state
		require.NoError(t, p.Step(context.Background(), job))
		assert.Equal(t, state, job.CurrentState)
	}
	assert.False(t, called)
}

func TestStep_NoHandler(t *testing.T) {
	job := model.NewJob("q", model.Options{})

	err := New().Step(context.Background(), job)

	var pe *model.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, model.CodeNoHandler, pe.Code)
}

func TestStep_NoStateChange(t *testing.T) {
	p := New()
	p.Register(model.StateInit, func(ctx context.Context, job *model.Job) error {
		return nil
	})
	job := model.NewJob("q", model.Options{})

	err := p.Step(context.Background(), job)

	var pe *model.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, model.CodeNoStateChange, pe.Code)
}

func TestStep_HandlerErrorPassesThrough(t *testing.T) {
	sentinel := errors.New("network down")
	p := New()
	p.Register(model.StateInit, func(ctx context.Context, job *model.Job) error {
		return sentinel
	})
	job := model.NewJob("q", model.Options{})

	err := p.Step(context.Background(), job)

	assert.ErrorIs(t, err, sentinel)
}
