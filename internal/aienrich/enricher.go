// Package aienrich implements the optional pre-notification AI analyst
// stage: a deterministic rule-based assessment and two chat-completion
// providers sharing one prompt-building convention.
package aienrich

import (
	"context"
	"fmt"
	"strings"

	"github.com/duetto/duetto/internal/alert"
)

// Enricher analyzes an alert and returns a short assessment, or
// ("", false) if none is available. Implementations must never
// propagate an error to the caller: missing credentials and network
// failures both resolve to ("", false), logged internally.
type Enricher interface {
	Analyze(ctx context.Context, a alert.Alert) (string, bool)
}

// buildPrompt renders the system and user prompt shared by every
// chat-API provider, built from the alert's kind, priority, ticker,
// company, classified catalysts, title, and summary.
func buildPrompt(a alert.Alert) (system, user string) {
	system = "You are a terse financial markets analyst. Given a single market event, " +
		"respond with a short plain-text assessment covering bullish signals, bearish " +
		"signals, and risks. Three short lines or fewer. No preamble."

	var b strings.Builder
	fmt.Fprintf(&b, "Kind: %s\n", a.Kind)
	fmt.Fprintf(&b, "Priority: %s\n", a.Priority)
	if a.Ticker != "" {
		fmt.Fprintf(&b, "Ticker: %s\n", a.Ticker)
	}
	fmt.Fprintf(&b, "Company: %s\n", a.Company)
	if cats := a.Catalysts(); len(cats) > 0 {
		fmt.Fprintf(&b, "Catalysts: %s\n", strings.Join(cats, ", "))
	}
	fmt.Fprintf(&b, "Title: %s\n", a.Title)
	fmt.Fprintf(&b, "Summary: %s\n", a.Summary)
	user = b.String()

	return system, user
}

// maxOutputTokens and temperature match the spec's "low temperature,
// short output" guidance for both chat-API variants.
const (
	maxOutputTokens  = 300
	promptTemperature = 0.3
)
