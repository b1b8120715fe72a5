package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.SubscriptionOpened()
	m.SubscriptionClosed()
	m.CacheOp("read", errors.New("x"))
	m.Submit("rejected")
}

func TestCounters(t *testing.T) {
	m := New()
	m.SubscriptionOpened()
	m.SubscriptionOpened()
	m.SubscriptionClosed()
	m.CacheOp("write", nil)
	m.CacheOp("write", errors.New("disk"))
	m.Submit("rejected")

	if got := testutil.ToFloat64(m.subscriptionsActive); got != 1 {
		t.Errorf("active = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.subscriptionsOpened); got != 2 {
		t.Errorf("opened = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.cacheOps.WithLabelValues("write", "error")); got != 1 {
		t.Errorf("write errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.submits.WithLabelValues("rejected")); got != 1 {
		t.Errorf("rejected = %v, want 1", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.Republish("cache")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `chatsync_republishes_total{source="cache"} 1`) {
		t.Errorf("metrics output missing republish counter:\n%s", rec.Body.String())
	}
}
