package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if feedFetchAttemptsTotal == nil || feedFetchResultsTotal == nil ||
		detectorOutcomesTotal == nil || storeWritesTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveCounters(t *testing.T) {
	Init()

	before := testutil.ToFloat64(detectorOutcomesTotal.WithLabelValues("new"))
	ObserveDetectorOutcome("new")
	ObserveDetectorOutcome("new")
	if got := testutil.ToFloat64(detectorOutcomesTotal.WithLabelValues("new")) - before; got != 2 {
		t.Errorf("expected 2 new outcomes, got %f", got)
	}

	emitted := testutil.ToFloat64(matchesEmittedTotal)
	ObserveEmitted(3)
	ObserveEmitted(0)
	if got := testutil.ToFloat64(matchesEmittedTotal) - emitted; got != 3 {
		t.Errorf("expected 3 emitted, got %f", got)
	}

	attempts := testutil.ToFloat64(feedFetchAttemptsTotal.WithLabelValues(AttemptRetryable))
	ObserveFetchAttempt(AttemptRetryable)
	if got := testutil.ToFloat64(feedFetchAttemptsTotal.WithLabelValues(AttemptRetryable)) - attempts; got != 1 {
		t.Errorf("expected 1 retryable attempt, got %f", got)
	}

	writes := testutil.ToFloat64(storeWritesTotal.WithLabelValues("error"))
	ObserveStoreWrite("error")
	if got := testutil.ToFloat64(storeWritesTotal.WithLabelValues("error")) - writes; got != 1 {
		t.Errorf("expected 1 failed write, got %f", got)
	}
}
