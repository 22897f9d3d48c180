package notify

import (
	"context"

	"github.com/duetto/duetto/internal/alert"
)

// Notifier delivers one alert to a single channel. Send must never
// panic and should return a descriptive error on failure rather than
// block indefinitely; callers are expected to apply their own timeout
// via ctx.
type Notifier interface {
	Name() string
	Send(ctx context.Context, a alert.Alert, aiSuggestion string) error
}
