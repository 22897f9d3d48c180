package processor

import (
	"context"
	"testing"

	"github.com/duetto/duetto/internal/alert"
)

func TestDedup_DropsRepeatID(t *testing.T) {
	d := NewDedup(0)
	a := alert.Alert{ID: "abc"}

	_, ok := d.Process(context.Background(), a)
	if !ok {
		t.Fatal("expected first occurrence to pass")
	}

	_, ok = d.Process(context.Background(), a)
	if ok {
		t.Fatal("expected repeat ID to be dropped")
	}
}

func TestChain_ShortCircuitsOnDrop(t *testing.T) {
	chain := NewChain(NewDedup(0), NewCatalystClassifier(true))

	a := alert.Alert{ID: "x", Title: "10-Q", Summary: "quarterly report filed"}
	if _, ok := chain.Process(context.Background(), a); ok {
		t.Fatal("expected noise alert to be dropped by the classifier stage")
	}

	// A repeat of the same ID should also be dropped, by dedup this time.
	if _, ok := chain.Process(context.Background(), a); ok {
		t.Fatal("expected repeat alert to be dropped")
	}
}
