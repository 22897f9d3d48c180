// Package alert defines the normalized event record that flows through
// the ingestion pipeline, from collector to notifier.
package alert

import (
	"encoding/json"
	"time"
)

// Kind identifies the category of market event an Alert represents.
type Kind string

const (
	KindFiling8K     Kind = "filing_8k"
	KindFilingS3     Kind = "filing_s3"
	KindForm4        Kind = "form_4"
	KindFiling6K     Kind = "filing_6k"
	KindFdaApproval  Kind = "fda_approval"
	KindFdaPdufa     Kind = "fda_pdufa"
	KindFdaTrial     Kind = "fda_trial"
	KindPressRelease Kind = "press_release"
	KindPriceMove    Kind = "price_move"
)

// Priority is a total order Low < Medium < High.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

// String renders the priority the way it appears in logs and payloads.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	default:
		return "low"
	}
}

// ParsePriority parses the lowercase config/JSON spelling of a priority.
// Unrecognized input maps to PriorityLow, matching the donor config's
// tolerant-default style for enum-like settings.
func ParsePriority(s string) Priority {
	switch s {
	case "high":
		return PriorityHigh
	case "medium":
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// MaxSummaryLen is the hard cap applied to Alert.Summary after processing.
const MaxSummaryLen = 500

// Alert is the pipeline's currency: a normalized, source-agnostic event.
// Once handed to a BroadcastHub, an Alert is treated as immutable by
// downstream consumers even though Go does not enforce that statically.
type Alert struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"kind"`
	Priority  Priority       `json:"-"`
	Ticker    string         `json:"ticker,omitempty"`
	Company   string         `json:"company"`
	Title     string         `json:"title"`
	Summary   string         `json:"summary"`
	URL       string         `json:"url"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
	Enrichment map[string]any `json:"enrichment,omitempty"`
	Raw       map[string]any `json:"raw,omitempty"`
}

// wireAlert is Alert's on-the-wire shape: a plain struct (not an Alert
// alias) so MarshalJSON below doesn't recurse, with Priority rendered as
// its lowercase string form per the push-subscriber wire contract.
type wireAlert struct {
	ID         string         `json:"id"`
	Kind       Kind           `json:"kind"`
	Priority   string         `json:"priority"`
	Ticker     string         `json:"ticker,omitempty"`
	Company    string         `json:"company"`
	Title      string         `json:"title"`
	Summary    string         `json:"summary"`
	URL        string         `json:"url"`
	Source     string         `json:"source"`
	Timestamp  time.Time      `json:"timestamp"`
	Enrichment map[string]any `json:"enrichment,omitempty"`
	Raw        map[string]any `json:"raw,omitempty"`
}

// MarshalJSON renders Priority as its lowercase string form and the
// Timestamp as RFC3339/ISO-8601, matching the push-subscriber wire
// contract.
func (a Alert) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireAlert{
		ID:         a.ID,
		Kind:       a.Kind,
		Priority:   a.Priority.String(),
		Ticker:     a.Ticker,
		Company:    a.Company,
		Title:      a.Title,
		Summary:    a.Summary,
		URL:        a.URL,
		Source:     a.Source,
		Timestamp:  a.Timestamp,
		Enrichment: a.Enrichment,
		Raw:        a.Raw,
	})
}

// UnmarshalJSON is the inverse of MarshalJSON, used by tests constructing
// Alerts from fixture JSON.
func (a *Alert) UnmarshalJSON(data []byte) error {
	var w wireAlert
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	a.ID = w.ID
	a.Kind = w.Kind
	a.Priority = ParsePriority(w.Priority)
	a.Ticker = w.Ticker
	a.Company = w.Company
	a.Title = w.Title
	a.Summary = w.Summary
	a.URL = w.URL
	a.Source = w.Source
	a.Timestamp = w.Timestamp
	a.Enrichment = w.Enrichment
	a.Raw = w.Raw
	return nil
}

// Catalysts returns the classified catalyst labels previously stored in
// Enrichment by the CatalystClassifier, or nil if none.
func (a Alert) Catalysts() []string {
	raw, ok := a.Enrichment["catalysts"]
	if !ok {
		return nil
	}
	cats, _ := raw.([]string)
	return cats
}

// WithCatalysts returns a copy of a with enrichment.catalysts set. Alerts
// are passed by value through the chain; this keeps classification
// side-effect free.
func (a Alert) WithCatalysts(cats []string) Alert {
	out := a
	if out.Enrichment == nil {
		out.Enrichment = make(map[string]any, 1)
	} else {
		cp := make(map[string]any, len(out.Enrichment)+1)
		for k, v := range out.Enrichment {
			cp[k] = v
		}
		out.Enrichment = cp
	}
	out.Enrichment["catalysts"] = cats
	return out
}

// TruncateSummary clamps Summary to MaxSummaryLen runes, preserving
// invariant 8 ("len(summary) <= 500 after processing").
func TruncateSummary(s string) string {
	r := []rune(s)
	if len(r) <= MaxSummaryLen {
		return s
	}
	return string(r[:MaxSummaryLen])
}
