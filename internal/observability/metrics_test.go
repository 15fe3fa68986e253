package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveEvaluatorCall_CountsFailures(t *testing.T) {
	before := testutil.ToFloat64(evaluatorFailures.WithLabelValues("t_metrics"))
	ObserveEvaluatorCall("t_metrics", 10*time.Millisecond, nil)
	ObserveEvaluatorCall("t_metrics", 10*time.Millisecond, errors.New("boom"))
	after := testutil.ToFloat64(evaluatorFailures.WithLabelValues("t_metrics"))
	if after-before != 1 {
		t.Fatalf("expected one failure recorded, got %v", after-before)
	}
}

func TestDescriptionScoredAndSessionCompleted(t *testing.T) {
	d0, l0 := testutil.ToFloat64(descriptionsScored), testutil.ToFloat64(lowScores)
	DescriptionScored(false)
	DescriptionScored(true)
	if testutil.ToFloat64(descriptionsScored)-d0 != 2 || testutil.ToFloat64(lowScores)-l0 != 1 {
		t.Fatalf("unexpected description counters")
	}

	c0, r0 := testutil.ToFloat64(sessionsCompleted), testutil.ToFloat64(completionRaces)
	SessionCompleted(false)
	SessionCompleted(true)
	if testutil.ToFloat64(sessionsCompleted)-c0 != 1 || testutil.ToFloat64(completionRaces)-r0 != 1 {
		t.Fatalf("unexpected completion counters")
	}
}

func TestNotificationOutcome(t *testing.T) {
	c := notifications.WithLabelValues("e", "sent")
	before := testutil.ToFloat64(c)
	NotificationOutcome("e", "sent")
	if testutil.ToFloat64(c)-before != 1 {
		t.Fatalf("expected counter increment")
	}
}
