package meteo

import (
	"context"
)

// Outcome of a single strategy attempt.
type Outcome string

const (
	OutcomeHit   Outcome = "hit"
	OutcomeEmpty Outcome = "empty"
	OutcomeError Outcome = "error"
)

// Strategy is one way of producing a value. Run reports ok=false when it
// completed without anything usable.
type Strategy[T any] struct {
	Name string
	Run  func(ctx context.Context) (v T, ok bool, err error)
}

// FirstSuccess runs strategies in order and returns the first usable value.
// Errors are reported to observe and never stop the chain; a cancelled
// context does. ok is false when every strategy came up empty.
func FirstSuccess[T any](ctx context.Context, strategies []Strategy[T], observe func(name string, o Outcome, err error)) (T, bool) {
	var zero T
	for _, s := range strategies {
		if ctx.Err() != nil {
			return zero, false
		}
		v, ok, err := s.Run(ctx)
		switch {
		case err != nil:
			observe(s.Name, OutcomeError, err)
		case !ok:
			observe(s.Name, OutcomeEmpty, nil)
		default:
			observe(s.Name, OutcomeHit, nil)
			return v, true
		}
	}
	return zero, false
}
