// Package ticker resolves regulator filer identifiers (CIK) to ticker
// symbols and company names via a cached copy of the SEC's company
// tickers table.
package ticker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/duetto/duetto/internal/httpkit"
)

// SourceURL is the remote JSON mapping fetched on first use when no
// local cache file exists.
const SourceURL = "https://www.sec.gov/files/company_tickers.json"

// rawEntry mirrors one value in the SEC's {index: {cik_str, ticker,
// title}} mapping.
type rawEntry struct {
	CIK    json.Number `json:"cik_str"`
	Ticker string      `json:"ticker"`
	Title  string      `json:"title"`
}

// Table holds the three unidirectional maps described by the data
// model: CIK->Ticker, Ticker->CIK, CIK->Name. CIK keys are present both
// in raw decimal form and zero-padded to 10 digits.
type Table struct {
	cikToTicker map[string]string
	tickerToCIK map[string]string
	cikToName   map[string]string
}

// Resolver loads a Table on first use (from a local cache file, or by
// fetching SourceURL and persisting the result) and serves concurrent
// read-only lookups thereafter. Loading is single-flighted.
type Resolver struct {
	client    *http.Client
	cachePath string
	logger    *slog.Logger

	once    sync.Once
	loadErr error

	mu    sync.RWMutex
	table Table
}

// Option configures a Resolver built by New.
type Option func(*Resolver)

// WithCachePath overrides the default "<home>/.duetto/cache/company_tickers.json"
// cache location.
func WithCachePath(path string) Option {
	return func(r *Resolver) { r.cachePath = path }
}

// WithHTTPClient overrides the default httpkit-constructed client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.client = c }
}

// WithLogger attaches a logger for load diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// New constructs a Resolver. Nothing is fetched until the first lookup
// (or an explicit call to Load).
func New(opts ...Option) *Resolver {
	r := &Resolver{
		client: httpkit.NewClient(),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	if r.cachePath == "" {
		r.cachePath = defaultCachePath()
	}
	return r
}

// defaultCachePath mirrors the donor's paths.Resolver expandHome idiom:
// resolve the user's home directory and join the fixed cache subpath.
func defaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".duetto", "cache", "company_tickers.json")
}

// ensureLoaded guarantees the table has been populated exactly once,
// regardless of how many goroutines call it concurrently.
func (r *Resolver) ensureLoaded(ctx context.Context) error {
	r.once.Do(func() {
		r.loadErr = r.Load(ctx, false)
	})
	return r.loadErr
}

// Load populates the Table, from the cache file unless forceRefresh is
// set or no cache file exists, in which case it fetches SourceURL and
// persists the result.
func (r *Resolver) Load(ctx context.Context, forceRefresh bool) error {
	if !forceRefresh {
		if data, err := os.ReadFile(r.cachePath); err == nil {
			if err := r.parse(data); err == nil {
				r.logger.Info("ticker table loaded from cache", "path", r.cachePath, "tickers", len(r.table.tickerToCIK))
				return nil
			} else {
				r.logger.Warn("failed to parse ticker cache, refetching", "path", r.cachePath, "error", err)
			}
		}
	}

	data, err := r.fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch ticker table: %w", err)
	}

	if err := r.parse(data); err != nil {
		return fmt.Errorf("parse ticker table: %w", err)
	}

	if err := r.persist(data); err != nil {
		r.logger.Warn("failed to persist ticker cache", "path", r.cachePath, "error", err)
	}

	r.logger.Info("ticker table loaded from source", "url", SourceURL, "tickers", len(r.table.tickerToCIK))
	return nil
}

func (r *Resolver) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, SourceURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, 32<<20))
}

func (r *Resolver) persist(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(r.cachePath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(r.cachePath, data, 0o644)
}

func (r *Resolver) parse(data []byte) error {
	var raw map[string]rawEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	cikToTicker := make(map[string]string, len(raw)*2)
	tickerToCIK := make(map[string]string, len(raw))
	cikToName := make(map[string]string, len(raw)*2)

	for _, entry := range raw {
		cik := entry.CIK.String()
		padded := zeroPad(cik, 10)
		ticker := strings.ToUpper(entry.Ticker)

		cikToTicker[cik] = entry.Ticker
		cikToTicker[padded] = entry.Ticker
		tickerToCIK[ticker] = cik
		cikToName[cik] = entry.Title
		cikToName[padded] = entry.Title
	}

	r.mu.Lock()
	r.table = Table{cikToTicker: cikToTicker, tickerToCIK: tickerToCIK, cikToName: cikToName}
	r.mu.Unlock()
	return nil
}

func zeroPad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

// CIKToTicker returns the ticker for cik (raw or zero-padded), or "" if
// unknown.
func (r *Resolver) CIKToTicker(ctx context.Context, cik string) string {
	_ = r.ensureLoaded(ctx)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.table.cikToTicker[zeroPad(cik, 10)]; ok {
		return t
	}
	return r.table.cikToTicker[cik]
}

// TickerToCIK returns the CIK for ticker (case-insensitive), or "" if
// unknown.
func (r *Resolver) TickerToCIK(ctx context.Context, tk string) string {
	_ = r.ensureLoaded(ctx)
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.table.tickerToCIK[strings.ToUpper(tk)]
}

// CIKToName returns the company name for cik (raw or zero-padded), or ""
// if unknown.
func (r *Resolver) CIKToName(ctx context.Context, cik string) string {
	_ = r.ensureLoaded(ctx)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n, ok := r.table.cikToName[zeroPad(cik, 10)]; ok {
		return n
	}
	return r.table.cikToName[cik]
}

// TickerToName resolves a ticker straight to a company name via its CIK.
func (r *Resolver) TickerToName(ctx context.Context, tk string) string {
	cik := r.TickerToCIK(ctx, tk)
	if cik == "" {
		return ""
	}
	return r.CIKToName(ctx, cik)
}

// NameMatch is a single (ticker, cik, name) search result.
type NameMatch struct {
	Ticker string
	CIK    string
	Name   string
}

// LookupByName returns the exact (case-insensitive) match for name, or
// the zero value and false if none was found.
func (r *Resolver) LookupByName(ctx context.Context, name string) (NameMatch, bool) {
	_ = r.ensureLoaded(ctx)
	r.mu.RLock()
	defer r.mu.RUnlock()

	want := strings.ToLower(name)
	for cik, company := range r.table.cikToName {
		if strings.ToLower(company) == want {
			if t, ok := r.table.cikToTicker[cik]; ok {
				return NameMatch{Ticker: t, CIK: cik, Name: company}, true
			}
		}
	}
	return NameMatch{}, false
}

// SearchByName returns up to limit (ticker, cik, name) triples whose
// name contains substr, case-insensitively.
func (r *Resolver) SearchByName(ctx context.Context, substr string, limit int) []NameMatch {
	_ = r.ensureLoaded(ctx)
	r.mu.RLock()
	defer r.mu.RUnlock()

	want := strings.ToLower(substr)
	var results []NameMatch
	for cik, company := range r.table.cikToName {
		if !strings.Contains(strings.ToLower(company), want) {
			continue
		}
		t, ok := r.table.cikToTicker[cik]
		if !ok {
			continue
		}
		results = append(results, NameMatch{Ticker: t, CIK: cik, Name: company})
		if len(results) >= limit {
			break
		}
	}
	return results
}
