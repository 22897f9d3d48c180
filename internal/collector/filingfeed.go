package collector

import (
	"context"
	"crypto/md5"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/duetto/duetto/internal/alert"
	"github.com/duetto/duetto/internal/httpkit"
	"github.com/duetto/duetto/internal/recency"
	"github.com/duetto/duetto/internal/ticker"
)

// FeedSource pairs a form-type label with the ATOM feed URL that lists
// filings of that type.
type FeedSource struct {
	FormType string
	URL      string
}

var (
	highPriorityKeywords = []string{
		"merger", "acquisition", "acquire", "buyout", "tender offer",
		"definitive agreement", "fda approval", "fda clearance",
		"bankruptcy", "chapter 11", "chapter 7",
	}
	mediumPriorityKeywords = []string{
		"offering", "placement", "securities", "registration",
		"partnership", "license", "contract", "agreement",
	}

	// filingTitlePattern expects "<form> - <Company> (<cik>) (<filer>)".
	// The separator hyphen must be whitespace-bounded so that a form-type
	// label containing its own hyphen (8-K, S-3, 6-K) is never mistaken
	// for the separator.
	filingTitlePattern = regexp.MustCompile(`\s-\s+(.+?)\s*\((\d+)\)`)
	htmlTagPattern      = regexp.MustCompile(`<[^>]+>`)
)

// atomFeed is the minimal subset of an ATOM document FilingFeed needs.
type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID      string `xml:"id"`
	Title   string `xml:"title"`
	Summary string `xml:"summary"`
	Link    struct {
		Href string `xml:"href,attr"`
	} `xml:"link"`
	Updated   string `xml:"updated"`
	Published string `xml:"published"`
}

// FilingFeed polls a set of regulatory ATOM feeds and emits Filing*
// alerts, one form-type label per configured source.
type FilingFeed struct {
	sources     []FeedSource
	userAgent   string
	rateLimit   time.Duration
	pollInterval time.Duration
	resolver    *ticker.Resolver
	logger      *slog.Logger

	client *http.Client
	seen   *recency.Cache[string]

	out    chan alert.Alert
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// FilingFeedOption configures a FilingFeed built by NewFilingFeed.
type FilingFeedOption func(*FilingFeed)

// WithFilingFeedLogger attaches a logger.
func WithFilingFeedLogger(l *slog.Logger) FilingFeedOption {
	return func(f *FilingFeed) { f.logger = l }
}

// NewFilingFeed constructs a FilingFeed over sources, using userAgent on
// every request (mandated by the regulator), sleeping rateLimit between
// feed URLs within a cycle and pollInterval between full cycles.
func NewFilingFeed(sources []FeedSource, userAgent string, rateLimit, pollInterval time.Duration, resolver *ticker.Resolver, opts ...FilingFeedOption) *FilingFeed {
	f := &FilingFeed{
		sources:      sources,
		userAgent:    userAgent,
		rateLimit:    rateLimit,
		pollInterval: pollInterval,
		resolver:     resolver,
		logger:       slog.Default(),
		client:       httpkit.NewClient(httpkit.WithUserAgent(userAgent)),
		seen:         recency.New[string](10000),
		out:          make(chan alert.Alert, 64),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *FilingFeed) Name() string { return "filing_feed" }

// Start launches the polling loop. Idempotent: a second call while
// already running is a no-op.
func (f *FilingFeed) Start(ctx context.Context) error {
	if f.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel

	f.wg.Add(1)
	go f.run(ctx)
	return nil
}

// Stop cancels the polling loop and waits for it to exit. Idempotent.
func (f *FilingFeed) Stop() {
	if f.cancel == nil {
		return
	}
	f.cancel()
	f.wg.Wait()
	f.cancel = nil
}

func (f *FilingFeed) Produce() <-chan alert.Alert { return f.out }

func (f *FilingFeed) run(ctx context.Context) {
	defer f.wg.Done()
	defer close(f.out)

	for {
		for _, src := range f.sources {
			f.fetchOne(ctx, src)

			if !sleepCtx(ctx, f.rateLimit) {
				return
			}
		}
		if !sleepCtx(ctx, f.pollInterval) {
			return
		}
	}
}

func (f *FilingFeed) fetchOne(ctx context.Context, src FeedSource) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		f.logger.Error("build feed request", "form_type", src.FormType, "error", err)
		return
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Warn("fetch feed failed", "form_type", src.FormType, "error", err)
		return
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	if resp.StatusCode != http.StatusOK {
		f.logger.Warn("unexpected feed status", "form_type", src.FormType, "status", resp.StatusCode)
		return
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		f.logger.Warn("read feed body failed", "form_type", src.FormType, "error", err)
		return
	}

	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		f.logger.Warn("parse feed failed", "form_type", src.FormType, "error", err)
		return
	}

	for _, entry := range feed.Entries {
		a, ok := f.parseEntry(ctx, src.FormType, entry)
		if !ok {
			continue
		}

		select {
		case f.out <- a:
		case <-ctx.Done():
			return
		}
	}
}

func (f *FilingFeed) parseEntry(ctx context.Context, formType string, entry atomEntry) (alert.Alert, bool) {
	id := entryID(entry)
	if !f.seen.Add(id) {
		return alert.Alert{}, false
	}

	company, cik := extractFilerInfo(entry.Title)

	tk := ""
	if cik != "" && f.resolver != nil {
		tk = f.resolver.CIKToTicker(ctx, cik)
		if tk != "" {
			if name := f.resolver.CIKToName(ctx, cik); name != "" {
				company = name
			}
		}
	}

	summary := cleanSummary(entry.Summary)
	priority := classifyFilingPriority(entry.Title, summary)

	ts := time.Now().UTC()
	if stamp := entry.Updated; stamp != "" {
		if parsed, err := time.Parse(time.RFC3339, stamp); err == nil {
			ts = parsed
		}
	} else if stamp := entry.Published; stamp != "" {
		if parsed, err := time.Parse(time.RFC3339, stamp); err == nil {
			ts = parsed
		}
	}

	return alert.Alert{
		ID:        id,
		Kind:      filingKind(formType),
		Priority:  priority,
		Ticker:    tk,
		Company:   company,
		Title:     fmt.Sprintf("%s: %s", formType, company),
		Summary:   alert.TruncateSummary(summary),
		URL:       entry.Link.Href,
		Source:    "regulatory filing feed",
		Timestamp: ts,
		Raw: map[string]any{
			"form_type": formType,
			"entry_id":  entry.ID,
		},
	}, true
}

func entryID(entry atomEntry) string {
	sum := md5.Sum([]byte(entry.ID + entry.Title))
	return fmt.Sprintf("%x", sum)[:16]
}

// extractFilerInfo parses titles of the form
// "8-K - Company Name (0001234567) (Filer)" into company and CIK.
func extractFilerInfo(title string) (company, cik string) {
	m := filingTitlePattern.FindStringSubmatch(title)
	if m == nil {
		return title, ""
	}
	return m[1], m[2]
}

func filingKind(formType string) alert.Kind {
	switch formType {
	case "8-K":
		return alert.KindFiling8K
	case "S-3":
		return alert.KindFilingS3
	case "4":
		return alert.KindForm4
	case "6-K":
		return alert.KindFiling6K
	default:
		return alert.KindFiling8K
	}
}

func classifyFilingPriority(title, summary string) alert.Priority {
	text := strings.ToLower(title + " " + summary)
	for _, kw := range highPriorityKeywords {
		if strings.Contains(text, kw) {
			return alert.PriorityHigh
		}
	}
	for _, kw := range mediumPriorityKeywords {
		if strings.Contains(text, kw) {
			return alert.PriorityMedium
		}
	}
	return alert.PriorityLow
}

func cleanSummary(raw string) string {
	if raw == "" {
		return ""
	}
	stripped := htmlTagPattern.ReplaceAllString(raw, " ")
	stripped = html.UnescapeString(stripped)
	return strings.Join(strings.Fields(stripped), " ")
}

// sleepCtx sleeps for d or returns false early if ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
