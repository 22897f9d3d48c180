package collector

import (
	"context"
	"crypto/md5"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/duetto/duetto/internal/alert"
	"github.com/duetto/duetto/internal/httpkit"
	"github.com/duetto/duetto/internal/recency"
)

// maxApprovalRows bounds how many data rows of a yearly index page are
// processed per cycle.
const maxApprovalRows = 20

// ApprovalsScraper fetches yearly drug-approval index pages and emits
// FdaApproval alerts for new rows.
type ApprovalsScraper struct {
	indexURLTemplate string // e.g. "https://example.test/approvals/%d"
	userAgent        string
	pollInterval     time.Duration
	lookbackYears    int
	logger           *slog.Logger

	client *http.Client
	seen   *recency.Cache[string]

	out    chan alert.Alert
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ApprovalsScraperOption configures an ApprovalsScraper.
type ApprovalsScraperOption func(*ApprovalsScraper)

// WithApprovalsLogger attaches a logger.
func WithApprovalsLogger(l *slog.Logger) ApprovalsScraperOption {
	return func(a *ApprovalsScraper) { a.logger = l }
}

// WithLookbackYears sets how many prior years are tried once the
// current year yields nothing new. Default 1.
func WithLookbackYears(n int) ApprovalsScraperOption {
	return func(a *ApprovalsScraper) { a.lookbackYears = n }
}

// NewApprovalsScraper builds a scraper. indexURLTemplate must contain a
// single "%d" placeholder for the calendar year.
func NewApprovalsScraper(indexURLTemplate, userAgent string, pollInterval time.Duration, opts ...ApprovalsScraperOption) *ApprovalsScraper {
	a := &ApprovalsScraper{
		indexURLTemplate: indexURLTemplate,
		userAgent:        userAgent,
		pollInterval:     pollInterval,
		lookbackYears:    1,
		logger:           slog.Default(),
		client:           httpkit.NewClient(httpkit.WithUserAgent(userAgent)),
		seen:             recency.New[string](10000),
		out:              make(chan alert.Alert, 32),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *ApprovalsScraper) Name() string { return "approvals_scraper" }

func (a *ApprovalsScraper) Start(ctx context.Context) error {
	if a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.wg.Add(1)
	go a.run(ctx)
	return nil
}

func (a *ApprovalsScraper) Stop() {
	if a.cancel == nil {
		return
	}
	a.cancel()
	a.wg.Wait()
	a.cancel = nil
}

func (a *ApprovalsScraper) Produce() <-chan alert.Alert { return a.out }

func (a *ApprovalsScraper) run(ctx context.Context) {
	defer a.wg.Done()
	defer close(a.out)

	for {
		a.scanCycle(ctx)
		if !sleepCtx(ctx, a.pollInterval) {
			return
		}
	}
}

// scanCycle tries the current year first, then earlier years, stopping
// as soon as a year yields any new alerts.
func (a *ApprovalsScraper) scanCycle(ctx context.Context) {
	year := time.Now().UTC().Year()
	for tries := 0; tries <= a.lookbackYears; tries++ {
		if a.scanYear(ctx, year-tries) > 0 {
			return
		}
	}
}

func (a *ApprovalsScraper) scanYear(ctx context.Context, year int) int {
	indexURL := fmt.Sprintf(a.indexURLTemplate, year)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, indexURL, nil)
	if err != nil {
		a.logger.Error("build approvals request", "year", year, "error", err)
		return 0
	}

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Warn("fetch approvals page failed", "year", year, "error", err)
		return 0
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	if resp.StatusCode != http.StatusOK {
		a.logger.Warn("unexpected approvals status", "year", year, "status", resp.StatusCode)
		return 0
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		a.logger.Warn("parse approvals page failed", "year", year, "error", err)
		return 0
	}

	base, _ := url.Parse(indexURL)

	table := findFirstTable(doc)
	if table == nil {
		a.logger.Warn("approvals table not found on page, layout may have changed", "year", year)
		return 0
	}

	rows := findRows(table)
	if len(rows) > 0 {
		rows = rows[1:] // skip header
	}
	if len(rows) > maxApprovalRows {
		rows = rows[:maxApprovalRows]
	}

	emitted := 0
	for _, row := range rows {
		cells := findCells(row)
		if len(cells) < 4 {
			continue
		}

		al, ok := a.parseRow(cells, base)
		if !ok {
			continue
		}

		select {
		case a.out <- al:
			emitted++
		case <-ctx.Done():
			return emitted
		}
	}
	return emitted
}

func (a *ApprovalsScraper) parseRow(cells []*html.Node, base *url.URL) (alert.Alert, bool) {
	drugName := textContent(cells[0])
	activeIngredient := textContent(cells[1])
	approvalDate := textContent(cells[2])
	company := textContent(cells[3])
	if company == "" {
		company = "Unknown"
	}

	id := fmt.Sprintf("%x", md5.Sum([]byte(drugName+approvalDate)))[:16]
	if !a.seen.Add(id) {
		return alert.Alert{}, false
	}

	detailURL := base.String()
	if href := findLinkHref(cells[0]); href != "" {
		if ref, err := url.Parse(href); err == nil {
			detailURL = base.ResolveReference(ref).String()
		}
	}

	summary := fmt.Sprintf("%s (%s) approved on %s. Company: %s", drugName, activeIngredient, approvalDate, company)

	return alert.Alert{
		ID:        id,
		Kind:      alert.KindFdaApproval,
		Priority:  alert.PriorityHigh,
		Company:   company,
		Title:     fmt.Sprintf("FDA Approval: %s", drugName),
		Summary:   alert.TruncateSummary(summary),
		URL:       detailURL,
		Source:    "drug approvals index",
		Timestamp: time.Now().UTC(),
		Raw: map[string]any{
			"drug_name":         drugName,
			"active_ingredient":  activeIngredient,
			"approval_date":      approvalDate,
			"company":            company,
		},
	}, true
}

// findFirstTable walks the tree depth-first looking for the first
// <table> element.
func findFirstTable(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Table {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findFirstTable(c); t != nil {
			return t
		}
	}
	return nil
}

// findRows collects every <tr> under n, depth-first.
func findRows(n *html.Node) []*html.Node {
	var rows []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && node.DataAtom == atom.Tr {
			rows = append(rows, node)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return rows
}

// findCells collects the direct-descendant <td> elements of a row.
func findCells(row *html.Node) []*html.Node {
	var cells []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && node.DataAtom == atom.Td {
			cells = append(cells, node)
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(row)
	return cells
}

// findLinkHref returns the href of the first <a> found under n, or "".
func findLinkHref(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.A {
		for _, attr := range n.Attr {
			if attr.Key == "href" {
				return attr.Val
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if href := findLinkHref(c); href != "" {
			return href
		}
	}
	return ""
}

// textContent concatenates all text node descendants of n, trimmed.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}
