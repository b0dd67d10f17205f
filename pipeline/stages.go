package pipeline

import (
	"context"
	"fmt"
	"time"
)

// WithTimeout wraps inner so it runs with a context deadline of
// now+timeout. A task that returns after the deadline fails with the
// context error even if it produced output.
func WithTimeout(inner TaskFunc, timeout time.Duration) TaskFunc {
	return func(ctx context.Context, in *View) (*Output, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		out, err := inner(ctx, in)
		if err == nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return out, err
	}
}

// Tap returns a task wrapper that calls fn with the input before running
// inner. Use for logging or debugging without changing results.
func Tap(inner TaskFunc, fn func(context.Context, *View)) TaskFunc {
	return func(ctx context.Context, in *View) (*Output, error) {
		fn(ctx, in)
		return inner(ctx, in)
	}
}

// Recover converts a panic in inner into an error so one bad pixel cannot
// take down a batch.
func Recover(inner TaskFunc) TaskFunc {
	return func(ctx context.Context, in *View) (out *Output, err error) {
		defer func() {
			if r := recover(); r != nil {
				out, err = nil, fmt.Errorf("panic: %v", r)
			}
		}()
		return inner(ctx, in)
	}
}
