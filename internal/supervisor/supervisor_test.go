package supervisor

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func discardLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func TestRunSurfacesFirstTaskError(t *testing.T) {
	errBoom := errors.New("boom")
	err := Run(context.Background(), discardLogger(),
		Task{Name: "fails-fast", Run: func(ctx context.Context) error { return errBoom }},
		Task{Name: "blocks", Run: func(ctx context.Context) error { <-ctx.Done(); return nil }},
	)
	assert.ErrorIs(t, err, errBoom)
}

func TestRunReturnsNilOnCleanFirstFinish(t *testing.T) {
	err := Run(context.Background(), discardLogger(),
		Task{Name: "finishes-clean", Run: func(ctx context.Context) error { return nil }},
		Task{Name: "blocks", Run: func(ctx context.Context) error { <-ctx.Done(); return nil }},
	)
	assert.NoError(t, err)
}

func TestRunCancelsRemainingTasksAfterFirstFinishes(t *testing.T) {
	cancelled := make(chan struct{})
	err := Run(context.Background(), discardLogger(),
		Task{Name: "finishes-clean", Run: func(ctx context.Context) error { return nil }},
		Task{Name: "observes-cancel", Run: func(ctx context.Context) error {
			<-ctx.Done()
			close(cancelled)
			return nil
		}},
	)
	assert.NoError(t, err)
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("remaining task was never cancelled")
	}
}

func TestRunWithNoTasksReturnsNil(t *testing.T) {
	assert.NoError(t, Run(context.Background(), discardLogger()))
}
