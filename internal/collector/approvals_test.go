package collector

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/duetto/duetto/internal/alert"
)

// TestApprovalsScraper_ParsesRowBoundaryScenario exercises spec boundary
// scenario 3: a table whose first data row is
// ["Drugix", "compoundX", "2025-03-14", "Duetto Pharma"].
func TestApprovalsScraper_ParsesRowBoundaryScenario(t *testing.T) {
	const page = `<html><body>
<table>
  <tr><th>Drug</th><th>Ingredient</th><th>Date</th><th>Company</th></tr>
  <tr>
    <td><a href="/approvals/drugix">Drugix</a></td>
    <td>compoundX</td>
    <td>2025-03-14</td>
    <td>Duetto Pharma</td>
  </tr>
</table>
</body></html>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page))
	}))
	defer srv.Close()

	a := NewApprovalsScraper(srv.URL+"/approvals-%d", "duetto-test/1.0", time.Hour)
	ctx := t.Context()

	n := a.scanYear(ctx, time.Now().UTC().Year())
	if n != 1 {
		t.Fatalf("expected 1 emitted alert, got %d", n)
	}

	var got alert.Alert
	select {
	case got = <-a.out:
	case <-time.After(time.Second):
		t.Fatal("expected an alert on the output channel")
	}

	if got.Kind != alert.KindFdaApproval {
		t.Errorf("kind = %v, want KindFdaApproval", got.Kind)
	}
	if got.Priority != alert.PriorityHigh {
		t.Errorf("priority = %v, want High", got.Priority)
	}
	if got.Company != "Duetto Pharma" {
		t.Errorf("company = %q, want Duetto Pharma", got.Company)
	}
	if len(got.ID) != 16 {
		t.Errorf("id = %q, want 16 hex chars", got.ID)
	}
	if !strings.HasSuffix(got.URL, "/approvals/drugix") {
		t.Errorf("url = %q, want it resolved against the index URL", got.URL)
	}
}

func TestApprovalsScraper_StopsAfterFirstYearWithResults(t *testing.T) {
	const page = `<html><body><table>
  <tr><th>Drug</th><th>Ingredient</th><th>Date</th><th>Company</th></tr>
  <tr><td>Drugix</td><td>compoundX</td><td>2025-03-14</td><td>Duetto Pharma</td></tr>
  </table></body></html>`
	const emptyPage = `<html><body><table>
  <tr><th>Drug</th><th>Ingredient</th><th>Date</th><th>Company</th></tr>
  </table></body></html>`

	currentYear := time.Now().UTC().Year()

	var requestedYears []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestedYears = append(requestedYears, r.URL.Path)
		if strings.HasSuffix(r.URL.Path, fmt.Sprint(currentYear)) {
			w.Write([]byte(page))
			return
		}
		w.Write([]byte(emptyPage))
	}))
	defer srv.Close()

	a := NewApprovalsScraper(srv.URL+"/approvals-%d", "duetto-test/1.0", time.Hour, WithLookbackYears(2))
	a.scanCycle(t.Context())

	if len(requestedYears) != 1 {
		t.Fatalf("expected scanCycle to stop after the first year with results, got %d requests", len(requestedYears))
	}
}

func TestApprovalsScraper_MissingTableIsSkippedNotFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><p>no table here</p></body></html>`))
	}))
	defer srv.Close()

	a := NewApprovalsScraper(srv.URL+"/approvals-%d", "duetto-test/1.0", time.Hour)
	n := a.scanYear(t.Context(), 2025)
	if n != 0 {
		t.Fatalf("expected 0 alerts for a page with no table, got %d", n)
	}
}
