// Package processor implements the ordered alert-filtering chain:
// dedup, catalyst classification, and priority gating.
package processor

import (
	"context"

	"github.com/duetto/duetto/internal/alert"
)

// Processor inspects an Alert and either passes it through (possibly
// transformed) or drops it. Implementations must not block on I/O.
type Processor interface {
	Process(ctx context.Context, a alert.Alert) (alert.Alert, bool)
	Name() string
}

// Chain applies an ordered list of Processors left to right. A drop by
// any stage short-circuits the remainder.
type Chain struct {
	stages []Processor
}

// NewChain builds a Chain over stages, applied in order.
func NewChain(stages ...Processor) *Chain {
	return &Chain{stages: stages}
}

// Process runs a through every stage, returning the (possibly
// transformed) alert and whether it survived to the end.
func (c *Chain) Process(ctx context.Context, a alert.Alert) (alert.Alert, bool) {
	for _, stage := range c.stages {
		var ok bool
		a, ok = stage.Process(ctx, a)
		if !ok {
			return alert.Alert{}, false
		}
	}
	return a, true
}
