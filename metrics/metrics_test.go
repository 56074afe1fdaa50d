package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCounters(t *testing.T) {
	m := New()

	m.ObserveRequest("ok", 10*time.Millisecond)
	m.ObserveRequest("ok", 20*time.Millisecond)
	m.IncBooksSaved()
	m.IncBooksSkipped("redirect")
	m.IncBackoff()
	m.IncError("connection")
	m.IncAsset("text")

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("ok")); got != 2 {
		t.Fatalf("requests ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.BooksSaved); got != 1 {
		t.Fatalf("books saved = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.BooksSkipped.WithLabelValues("redirect")); got != 1 {
		t.Fatalf("books skipped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.BackoffsTotal); got != 1 {
		t.Fatalf("backoffs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.AssetsWritten.WithLabelValues("text")); got != 1 {
		t.Fatalf("assets = %v, want 1", got)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("ok", time.Second)
	m.IncBooksSaved()
	m.IncBooksSkipped("other")
	m.IncAsset("image")
	m.IncBackoff()
	m.IncError("other")
}
