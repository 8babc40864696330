package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTokenRefreshCounts(t *testing.T) {
	Init()
	before := testutil.ToFloat64(tokenRefreshTotal.WithLabelValues("error"))
	TokenRefresh(errors.New("boom"))
	TokenRefresh(errors.New("boom"))
	after := testutil.ToFloat64(tokenRefreshTotal.WithLabelValues("error"))
	if after-before != 2 {
		t.Fatalf("error refreshes = %v, want 2", after-before)
	}
}

func TestSyncItemsIgnoresNonPositive(t *testing.T) {
	Init()
	before := testutil.ToFloat64(syncItemsTotal.WithLabelValues("event", "inserted"))
	SyncItems("event", "inserted", 0)
	SyncItems("event", "inserted", 3)
	after := testutil.ToFloat64(syncItemsTotal.WithLabelValues("event", "inserted"))
	if after-before != 3 {
		t.Fatalf("inserted = %v, want 3", after-before)
	}
}

func TestRegisterReusesExisting(t *testing.T) {
	Init()
	dup := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "token",
		Name:      "refresh_total",
		Help:      "Access token refresh attempts by result.",
	}, []string{"result"})
	if got := registerCounterVec(dup); got != tokenRefreshTotal {
		t.Fatalf("expected the already registered collector to be returned")
	}
}
