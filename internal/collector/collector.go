// Package collector implements the independent alert producers: polled
// regulatory feeds, scraped approval pages, and a streaming quote feed.
package collector

import (
	"context"

	"github.com/duetto/duetto/internal/alert"
)

// Collector is the shared contract every producer implements. Start is
// idempotent and acquires transport resources; Stop is idempotent and
// releases them, safe to call concurrently with draining Produce.
// Produce returns a channel fed by an internal goroutine; it closes only
// when the collector is stopped or its source signals permanent
// failure. Transient failures never close the channel.
type Collector interface {
	Start(ctx context.Context) error
	Stop()
	Produce() <-chan alert.Alert
	Name() string
}
