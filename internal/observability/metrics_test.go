package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveTurnCountsByOutcome(t *testing.T) {
	before := testutil.ToFloat64(turnsTotal.WithLabelValues(OutcomeRejected))
	ObserveTurn(OutcomeRejected)
	ObserveTurn(OutcomeRejected)
	if got := testutil.ToFloat64(turnsTotal.WithLabelValues(OutcomeRejected)); got != before+2 {
		t.Fatalf("turns_total{rejected} = %v, want %v", got, before+2)
	}
}

func TestIncrementGuardRejectionDefaultsKeyword(t *testing.T) {
	before := testutil.ToFloat64(guardRejectionsTotal.WithLabelValues("unknown"))
	IncrementGuardRejection("")
	if got := testutil.ToFloat64(guardRejectionsTotal.WithLabelValues("unknown")); got != before+1 {
		t.Fatalf("guard_rejections_total{unknown} = %v", got)
	}
}

func TestObserveExecutionRecordsLatencyByStatus(t *testing.T) {
	ObserveExecution(10*time.Millisecond, 3, nil)
	ObserveExecution(10*time.Millisecond, 0, errors.New("boom"))
	ObserveCompletion(time.Second, nil)
	if n := testutil.CollectAndCount(executionDurationSeconds); n != 2 {
		t.Fatalf("execution histogram series = %d, want 2", n)
	}
	if n := testutil.CollectAndCount(completionDurationSeconds); n < 1 {
		t.Fatalf("completion histogram series = %d", n)
	}
}
