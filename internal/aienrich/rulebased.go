package aienrich

import (
	"context"
	"strings"

	"github.com/duetto/duetto/internal/alert"
	"github.com/duetto/duetto/internal/processor"
)

// assessment is the fixed bullish/bearish/risk text associated with a
// classified catalyst category.
type assessment struct {
	bullish string
	bearish string
	risk    string
}

var catalystAssessments = map[string]assessment{
	processor.CatalystMergerAcquisition: {
		bullish: "Acquisition premium often re-rates the stock higher.",
		bearish: "Deal could fall through on regulatory or financing risk.",
		risk:    "Antitrust review and financing contingencies.",
	},
	processor.CatalystFDA: {
		bullish: "Regulatory clearance removes a major overhang.",
		bearish: "Label restrictions or delay risk if not yet approved.",
		risk:    "Binary regulatory outcome; high volatility either way.",
	},
	processor.CatalystOfferingDilution: {
		bullish: "Fresh capital extends runway.",
		bearish: "Share count dilution pressures existing holders.",
		risk:    "Pricing and warrant overhang.",
	},
	processor.CatalystContractPartnership: {
		bullish: "New partner adds a revenue or distribution channel.",
		bearish: "Terms and exclusivity scope are often undisclosed.",
		risk:    "Execution risk on the announced agreement.",
	},
	processor.CatalystInsiderActivity: {
		bullish: "Insider buying signals management confidence.",
		bearish: "Insider selling can reflect reduced conviction.",
		risk:    "Single filings are a weak signal in isolation.",
	},
	processor.CatalystBankruptcy: {
		bullish: "Restructuring can clear a path to a leaner balance sheet.",
		bearish: "Equity holders are typically last in line for recovery.",
		risk:    "High uncertainty through court proceedings.",
	},
}

// RuleBased produces a deterministic assessment from an alert's already
// classified catalysts, with no network calls.
type RuleBased struct{}

// NewRuleBased constructs a RuleBased enricher.
func NewRuleBased() *RuleBased { return &RuleBased{} }

// Analyze returns a bullish/bearish/risks block built from a's
// classified catalysts, or ("", false) if a has none.
func (RuleBased) Analyze(_ context.Context, a alert.Alert) (string, bool) {
	cats := a.Catalysts()
	if len(cats) == 0 {
		return "", false
	}

	var bullish, bearish, risks []string
	for _, cat := range cats {
		as, ok := catalystAssessments[cat]
		if !ok {
			continue
		}
		bullish = append(bullish, as.bullish)
		bearish = append(bearish, as.bearish)
		risks = append(risks, as.risk)
	}
	if len(bullish) == 0 {
		return "", false
	}

	var b strings.Builder
	b.WriteString("Bullish: ")
	b.WriteString(strings.Join(bullish, " "))
	b.WriteString("\nBearish: ")
	b.WriteString(strings.Join(bearish, " "))
	b.WriteString("\nRisks: ")
	b.WriteString(strings.Join(risks, " "))

	return b.String(), true
}
