package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveHTTP("GET", "/", "200", time.Millisecond)
	m.ObserveCatalogRequest("success", time.Second)
	m.IncCredentialRefresh("success")
	m.IncParseRun("skip")
	m.AddItemsPersisted("inserted", 3)
	m.SetQueueDepth(4)
	m.IncJob("parse_query", "success")
}

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncParseRun("full_scrape")
	m.IncParseRun("full_scrape")
	m.AddItemsPersisted("inserted", 12)
	m.AddItemsPersisted("updated", 0)
	m.SetQueueDepth(7)

	if got := testutil.ToFloat64(m.ParseRunsTotal.WithLabelValues("full_scrape")); got != 2 {
		t.Fatalf("parse_runs_total{full_scrape} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ItemsPersistedTotal.WithLabelValues("inserted")); got != 12 {
		t.Fatalf("items_persisted_total{inserted} = %v, want 12", got)
	}
	if got := testutil.ToFloat64(m.TaskQueueDepth); got != 7 {
		t.Fatalf("task_queue_depth = %v, want 7", got)
	}
}
