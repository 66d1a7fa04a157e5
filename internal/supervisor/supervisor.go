// Package supervisor runs the program's top-level tasks and exits as soon
// as the first one terminates, surfacing its error (spec.md §5,
// "Cancellation and termination"). It is a simpler channel-select
// restatement of the teacher's pkg/shutdown signal-driven lifecycle,
// adapted for a "first task wins" rather than "wait for an OS signal" model.
package supervisor

import (
	"context"

	"github.com/rs/zerolog"
)

// Task is one top-level unit the supervisor watches: a venue multiplexer,
// the aggregator, the RPC server. Run must be cancel-safe and must return
// promptly once ctx is done.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

type result struct {
	name string
	err  error
}

// Run starts every task, cancels the shared context as soon as the first
// one returns, waits for the rest to drain, and returns that first task's
// error (nil on a clean finish).
func Run(ctx context.Context, logger zerolog.Logger, tasks ...Task) error {
	if len(tasks) == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan result, len(tasks))
	for _, t := range tasks {
		t := t
		go func() {
			results <- result{name: t.Name, err: t.Run(ctx)}
		}()
	}

	first := <-results
	cancel()

	if first.err != nil {
		logger.Error().Err(first.err).Str("task", first.name).Msg("task terminated, shutting down")
	} else {
		logger.Info().Str("task", first.name).Msg("task finished, shutting down")
	}

	for i := 1; i < len(tasks); i++ {
		r := <-results
		if r.err != nil {
			logger.Warn().Err(r.err).Str("task", r.name).Msg("task terminated during shutdown")
		}
	}

	return first.err
}
