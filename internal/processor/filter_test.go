package processor

import (
	"context"
	"testing"

	"github.com/duetto/duetto/internal/alert"
)

func TestPriorityFilter_DropsBelowMinimum(t *testing.T) {
	f := NewPriorityFilter(alert.PriorityMedium, nil, nil)

	_, ok := f.Process(context.Background(), alert.Alert{Priority: alert.PriorityLow})
	if ok {
		t.Fatal("expected Low priority alert to be dropped when minimum is Medium")
	}

	_, ok = f.Process(context.Background(), alert.Alert{Priority: alert.PriorityHigh})
	if !ok {
		t.Fatal("expected High priority alert to pass when minimum is Medium")
	}
}

func TestPriorityFilter_AllowListGatesOnCatalysts(t *testing.T) {
	classifier := NewCatalystClassifier(false)
	f := NewPriorityFilter(alert.PriorityLow, []string{CatalystFDA}, classifier)

	passes := alert.Alert{Title: "FDA Approval: drug X", Summary: "approval granted"}
	if _, ok := f.Process(context.Background(), passes); !ok {
		t.Fatal("expected fda-catalyst alert to pass the allow-list")
	}

	blocked := alert.Alert{Title: "8-K: Acme Corp", Summary: "Acme signs a supply agreement."}
	if _, ok := f.Process(context.Background(), blocked); ok {
		t.Fatal("expected non-fda alert to be blocked by the allow-list")
	}
}

func TestPriorityFilter_StableDecision(t *testing.T) {
	f := NewPriorityFilter(alert.PriorityMedium, nil, nil)
	a := alert.Alert{Priority: alert.PriorityHigh, ID: "x"}

	_, first := f.Process(context.Background(), a)
	_, second := f.Process(context.Background(), a)
	if first != second {
		t.Fatal("expected identical (alert, config) to yield the same decision")
	}
}
