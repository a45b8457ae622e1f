// Package scheduler runs the periodic background jobs: price alert
// evaluation, pending order matching, the daily risk counter reset and the
// benchmark index refresh.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"tradedesk/internal/logger"
	"tradedesk/internal/metrics"
	"tradedesk/internal/model"
)

// Job names, used as the "job" metric label and by RunNow.
const (
	JobAlerts     = "alerts"
	JobOrderMatch = "order_match"
	JobDailyReset = "daily_reset"
	JobIndices    = "indices"
)

// AlertEvaluator is satisfied by *alert.Service.
type AlertEvaluator interface {
	Evaluate(ctx context.Context) ([]model.PriceAlert, error)
}

// OrderMatcher is satisfied by *trading.Service.
type OrderMatcher interface {
	MatchPending(ctx context.Context) (int, error)
}

// DailyResetter is satisfied by *portfolio.RiskManager.
type DailyResetter interface {
	ResetDaily()
}

// IndexRefresher is satisfied by *market.Service.
type IndexRefresher interface {
	RefreshIndices(ctx context.Context) (int, error)
}

// Specs holds the cron expressions (with a seconds field) of every job. An
// empty spec leaves that job unscheduled.
type Specs struct {
	Alerts     string
	OrderMatch string
	DailyReset string
	Indices    string
}

// Scheduler manages all cron jobs.
type Scheduler struct {
	Cron    *cron.Cron
	Alerts  AlertEvaluator
	Orders  OrderMatcher
	Risk    DailyResetter
	Market  IndexRefresher
	Metrics *metrics.Metrics
	Ctx     context.Context

	jobs map[string]func(context.Context) error
}

// New creates a Scheduler. Any of the job targets may be nil, in which case
// the matching job is not registered.
func New(ctx context.Context, alerts AlertEvaluator, orders OrderMatcher, risk DailyResetter, market IndexRefresher) *Scheduler {
	s := &Scheduler{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
		Alerts: alerts,
		Orders: orders,
		Risk:   risk,
		Market: market,
		Ctx:    ctx,
		jobs:   make(map[string]func(context.Context) error),
	}
	if alerts != nil {
		s.jobs[JobAlerts] = s.evaluateAlerts
	}
	if orders != nil {
		s.jobs[JobOrderMatch] = s.matchOrders
	}
	if risk != nil {
		s.jobs[JobDailyReset] = func(context.Context) error {
			s.Risk.ResetDaily()
			return nil
		}
	}
	if market != nil {
		s.jobs[JobIndices] = s.refreshIndices
	}
	return s
}

// RegisterAll schedules every configured job.
func (s *Scheduler) RegisterAll(specs Specs) error {
	for _, e := range []struct{ name, spec string }{
		{JobAlerts, specs.Alerts},
		{JobOrderMatch, specs.OrderMatch},
		{JobDailyReset, specs.DailyReset},
		{JobIndices, specs.Indices},
	} {
		if e.spec == "" || s.jobs[e.name] == nil {
			continue
		}
		name := e.name
		if _, err := s.Cron.AddFunc(e.spec, func() { s.run(name) }); err != nil {
			return fmt.Errorf("register %s job: %w", name, err)
		}
	}
	return nil
}

// Jobs returns the names of the runnable jobs, sorted.
func (s *Scheduler) Jobs() []string {
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Printf("[scheduler] started with %d entries", len(s.Cron.Entries()))
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Println("[scheduler] stopped")
}

// RunNow executes one job immediately (manual trigger).
func (s *Scheduler) RunNow(name string) error {
	if s.jobs[name] == nil {
		return fmt.Errorf("unknown job %q", name)
	}
	return s.run(name)
}

func (s *Scheduler) run(name string) error {
	ctx := s.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = logger.WithTraceID(ctx, logger.NewTraceID())

	start := time.Now()
	err := s.jobs[name](ctx)
	elapsed := time.Since(start)

	result := "ok"
	if err != nil {
		result = "error"
		slog.Error("scheduled job failed", append(logger.LogWithTrace(ctx), "job", name, "err", err)...)
	}
	if s.Metrics != nil {
		s.Metrics.JobRuns.WithLabelValues(name, result).Inc()
		s.Metrics.JobDur.WithLabelValues(name).Observe(elapsed.Seconds())
	}
	return err
}

func (s *Scheduler) evaluateAlerts(ctx context.Context) error {
	fired, err := s.Alerts.Evaluate(ctx)
	if len(fired) > 0 {
		log.Printf("[scheduler] %d alert(s) triggered", len(fired))
	}
	return err
}

func (s *Scheduler) matchOrders(ctx context.Context) error {
	n, err := s.Orders.MatchPending(ctx)
	if n > 0 {
		log.Printf("[scheduler] %d pending order(s) filled", n)
	}
	return err
}

func (s *Scheduler) refreshIndices(ctx context.Context) error {
	n, err := s.Market.RefreshIndices(ctx)
	if n > 0 {
		slog.Debug("indices refreshed", append(logger.LogWithTrace(ctx), "count", n)...)
	}
	return err
}
