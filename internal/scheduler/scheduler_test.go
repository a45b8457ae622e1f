package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"tradedesk/internal/metrics"
	"tradedesk/internal/model"
)

type fakeAlerts struct {
	calls int
	err   error
}

func (f *fakeAlerts) Evaluate(context.Context) ([]model.PriceAlert, error) {
	f.calls++
	return []model.PriceAlert{{ID: 1}}, f.err
}

type fakeOrders struct{ calls int }

func (f *fakeOrders) MatchPending(context.Context) (int, error) {
	f.calls++
	return 2, nil
}

type fakeRisk struct{ resets int }

func (f *fakeRisk) ResetDaily() { f.resets++ }

var allSpecs = Specs{
	Alerts:     "*/30 * * * * *",
	OrderMatch: "*/15 * * * * *",
	DailyReset: "0 0 0 * * *",
	Indices:    "0 */5 * * * *",
}

func TestRegisterAll_SkipsMissingTargets(t *testing.T) {
	s := New(context.Background(), &fakeAlerts{}, &fakeOrders{}, &fakeRisk{}, nil)
	if err := s.RegisterAll(allSpecs); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}
	if n := len(s.Cron.Entries()); n != 3 {
		t.Errorf("entries = %d, want 3", n)
	}
	if got := s.Jobs(); len(got) != 3 || got[0] != JobAlerts || got[2] != JobOrderMatch {
		t.Errorf("Jobs() = %v", got)
	}
}

func TestRegisterAll_BadSpec(t *testing.T) {
	s := New(context.Background(), &fakeAlerts{}, nil, nil, nil)
	if err := s.RegisterAll(Specs{Alerts: "every minute"}); err == nil {
		t.Fatal("expected an error for an invalid cron expression")
	}
}

func TestRunNow_RecordsMetrics(t *testing.T) {
	alerts := &fakeAlerts{}
	orders := &fakeOrders{}
	risk := &fakeRisk{}
	s := New(context.Background(), alerts, orders, risk, nil)
	s.Metrics = metrics.NewMetrics()

	for _, job := range []string{JobAlerts, JobOrderMatch, JobDailyReset} {
		if err := s.RunNow(job); err != nil {
			t.Errorf("RunNow(%s): %v", job, err)
		}
	}
	if alerts.calls != 1 || orders.calls != 1 || risk.resets != 1 {
		t.Errorf("calls = %d/%d/%d", alerts.calls, orders.calls, risk.resets)
	}
	if v := testutil.ToFloat64(s.Metrics.JobRuns.WithLabelValues(JobOrderMatch, "ok")); v != 1 {
		t.Errorf("order_match ok runs = %v", v)
	}

	alerts.err = errors.New("quote provider down")
	if err := s.RunNow(JobAlerts); err == nil {
		t.Error("expected job error to propagate")
	}
	if v := testutil.ToFloat64(s.Metrics.JobRuns.WithLabelValues(JobAlerts, "error")); v != 1 {
		t.Errorf("alerts error runs = %v", v)
	}

	if err := s.RunNow(JobIndices); err == nil {
		t.Error("expected unknown job error when no index refresher is wired")
	}
}
