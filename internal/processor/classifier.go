package processor

import (
	"context"
	"regexp"
	"strings"

	"github.com/duetto/duetto/internal/alert"
)

// Catalyst category labels, in the fixed order they're evaluated.
const (
	CatalystMergerAcquisition   = "merger_acquisition"
	CatalystFDA                 = "fda_catalyst"
	CatalystOfferingDilution    = "offering_dilution"
	CatalystContractPartnership = "contract_partnership"
	CatalystInsiderActivity     = "insider_activity"
	CatalystBankruptcy          = "bankruptcy_restructuring"
)

var catalystPatternSources = map[string][]string{
	CatalystMergerAcquisition: {
		`\bmerger\b`, `\bacquisition\b`, `\bacquire[sd]?\b`,
		`\bbuyout\b`, `\btender offer\b`, `\bdefinitive agreement\b`,
		`\bgoing private\b`, `\btakeover\b`,
	},
	CatalystFDA: {
		`\bfda\b`, `\bpdufa\b`, `\bapproval\b`, `\bclearance\b`,
		`\bphase [123]\b`, `\bclinical trial\b`, `\bnda\b`, `\bbla\b`,
		`\binda\b`, `\bbreakthrough therapy\b`,
	},
	CatalystOfferingDilution: {
		`\boffering\b`, `\bplacement\b`, `\bdilution\b`,
		`\bshelf registration\b`, `\bs-3\b`, `\bsecurities act\b`,
		`\bprospectus\b`, `\bwarrant\b`,
	},
	CatalystContractPartnership: {
		`\bcontract\b`, `\bagreement\b`, `\bpartnership\b`,
		`\blicense\b`, `\bcollaboration\b`, `\balliance\b`,
		`\bdistribution\b`, `\bsupply agreement\b`,
	},
	CatalystInsiderActivity: {
		`\bform 4\b`, `\binsider\b`, `\bdirector\b`, `\bofficer\b`,
		`\bpurchase\b`, `\bacquisition of\b`, `\bopen market\b`,
	},
	CatalystBankruptcy: {
		`\bbankruptcy\b`, `\bchapter 11\b`, `\bchapter 7\b`,
		`\brestructuring\b`, `\bdefault\b`, `\binsolvency\b`,
	},
}

// catalystOrder fixes iteration order so classification is deterministic.
var catalystOrder = []string{
	CatalystMergerAcquisition,
	CatalystFDA,
	CatalystOfferingDilution,
	CatalystContractPartnership,
	CatalystInsiderActivity,
	CatalystBankruptcy,
}

var noisePatternSources = []string{
	`\broutine\b.*\bfiling\b`,
	`\bquarterly report\b`,
	`\bannual report\b`,
	`\b10-k\b`,
	`\b10-q\b`,
	`\bproxy statement\b`,
}

var highPriorityCatalysts = map[string]bool{
	CatalystMergerAcquisition: true,
	CatalystFDA:               true,
	CatalystBankruptcy:        true,
}

var mediumPriorityCatalysts = map[string]bool{
	CatalystContractPartnership: true,
	CatalystInsiderActivity:     true,
}

// CatalystClassifier labels an Alert with its matching catalyst
// categories and upgrades priority accordingly. Optionally drops
// Alerts that match a noise pattern.
type CatalystClassifier struct {
	catalystPatterns map[string][]*regexp.Regexp
	noisePatterns    []*regexp.Regexp
	filterNoise      bool
}

// NewCatalystClassifier compiles the fixed regex sets once. filterNoise
// enables dropping routine-filing-shaped alerts.
func NewCatalystClassifier(filterNoise bool) *CatalystClassifier {
	compiled := make(map[string][]*regexp.Regexp, len(catalystPatternSources))
	for cat, sources := range catalystPatternSources {
		patterns := make([]*regexp.Regexp, len(sources))
		for i, s := range sources {
			patterns[i] = regexp.MustCompile(`(?i)` + s)
		}
		compiled[cat] = patterns
	}

	noise := make([]*regexp.Regexp, len(noisePatternSources))
	for i, s := range noisePatternSources {
		noise[i] = regexp.MustCompile(`(?i)` + s)
	}

	return &CatalystClassifier{
		catalystPatterns: compiled,
		noisePatterns:    noise,
		filterNoise:      filterNoise,
	}
}

func (c *CatalystClassifier) Name() string { return "catalyst_classifier" }

func (c *CatalystClassifier) Process(_ context.Context, a alert.Alert) (alert.Alert, bool) {
	text := strings.ToLower(a.Title + " " + a.Summary)

	if c.filterNoise && c.isNoise(text) {
		return alert.Alert{}, false
	}

	cats := c.classify(text)
	if len(cats) == 0 {
		return a, true
	}

	a = a.WithCatalysts(cats)
	a.Priority = upgradedPriority(a.Priority, cats)
	return a, true
}

// Classify exposes catalyst classification directly, for use by the
// priority filter's allow-list gate without re-running the chain.
func (c *CatalystClassifier) Classify(a alert.Alert) []string {
	text := strings.ToLower(a.Title + " " + a.Summary)
	return c.classify(text)
}

func (c *CatalystClassifier) classify(text string) []string {
	var cats []string
	for _, cat := range catalystOrder {
		for _, p := range c.catalystPatterns[cat] {
			if p.MatchString(text) {
				cats = append(cats, cat)
				break
			}
		}
	}
	return cats
}

func (c *CatalystClassifier) isNoise(text string) bool {
	for _, p := range c.noisePatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

func upgradedPriority(current alert.Priority, cats []string) alert.Priority {
	for _, cat := range cats {
		if highPriorityCatalysts[cat] {
			return alert.PriorityHigh
		}
	}
	if current == alert.PriorityLow {
		for _, cat := range cats {
			if mediumPriorityCatalysts[cat] {
				return alert.PriorityMedium
			}
		}
	}
	return current
}
