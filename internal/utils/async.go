package utils

import (
	"context"
	"log/slog"
	"runtime/debug"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/goerr/v2"
)

// Dispatch runs handler in its own goroutine. Panics are recovered and
// reported, and returned errors are logged. The handler context keeps the
// values of ctx but not its cancellation.
func Dispatch(ctx context.Context, handler func(ctx context.Context) error) {
	newCtx := context.WithoutCancel(ctx)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Panic in async handler",
					"recover", r,
					"stack", string(debug.Stack()))
				sentry.CaptureException(goerr.New("panic in async handler", goerr.V("recover", r)))
			}
		}()

		if err := handler(newCtx); err != nil {
			slog.Error("Error in async handler", "error", err)
		}
	}()
}
