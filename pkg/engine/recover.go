package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/papercomputeco/memstate/pkg/state"
)

// DefaultMaxAttempts bounds Attempt when the caller passes zero.
const DefaultMaxAttempts = 3

// ErrUnresolved is returned by Attempt when contradictions persist after
// every repair cycle.
var ErrUnresolved = errors.New("contradictions persist after repair attempts")

// AttemptFunc proposes and applies a change to st, returning the new state.
type AttemptFunc func(ctx context.Context, st *state.State) (*state.State, error)

// Attempt runs fn against st and self-heals the result, repeating up to
// maxAttempts times while the outcome still holds live contradictions or fn
// fails. On success it returns the contradiction free state. Otherwise it
// returns an exact copy of the pre-attempt st together with ErrUnresolved.
func (e *Engine) Attempt(ctx context.Context, st *state.State, fn AttemptFunc, maxAttempts int) (*state.State, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	pre := st.Clone()
	cur := st.Clone()
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return pre, err
		}

		next, err := fn(ctx, cur)
		if err != nil {
			lastErr = err
			e.logger.Warn("repair attempt failed",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}

		if len(Contradictions(next)) == 0 {
			return next, nil
		}

		healed, err := e.SelfHeal(ctx, next, "")
		if err != nil {
			lastErr = err
			cur = next
			continue
		}
		if len(Contradictions(healed)) == 0 {
			return healed, nil
		}
		cur = healed
	}

	e.logger.Warn("restoring pre-attempt state",
		zap.Int("attempts", maxAttempts),
		zap.Error(lastErr),
	)
	if lastErr != nil {
		return pre, fmt.Errorf("%w: %w", ErrUnresolved, lastErr)
	}
	return pre, ErrUnresolved
}
