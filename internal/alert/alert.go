// Package alert manages user price alerts and evaluates them against live
// quotes and daily-close history.
package alert

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"tradedesk/internal/indicator"
	"tradedesk/internal/metrics"
	"tradedesk/internal/model"
	"tradedesk/internal/notification"
)

const (
	DefaultRSIPeriod = 14
	maxRSIPeriod     = 100
	maxNoteLen       = 255
)

// Quoter returns the latest quote for a symbol.
type Quoter interface {
	Quote(ctx context.Context, symbol string) (*model.Quote, error)
}

// History returns up to days daily closes for a symbol, oldest first.
type History interface {
	DailyCloses(ctx context.Context, symbol string, days int) ([]float64, error)
}

// Service owns alert CRUD and evaluation.
type Service struct {
	store    model.AlertStore
	quotes   Quoter
	history  History
	notifier notification.Notifier
	settings model.SettingsStore // per-user webhook; may be nil
	metrics  *metrics.Metrics
	now      func() time.Time

	// OnTrigger is called for every alert that fires, after it is stored.
	OnTrigger func(a model.PriceAlert)
}

// NewService creates the alert service. history, notifier and settings may
// be nil.
func NewService(store model.AlertStore, quotes Quoter, history History,
	notifier notification.Notifier, settings model.SettingsStore) *Service {
	return &Service{
		store:    store,
		quotes:   quotes,
		history:  history,
		notifier: notifier,
		settings: settings,
		now:      time.Now,
	}
}

// SetMetrics enables Prometheus instrumentation.
func (s *Service) SetMetrics(m *metrics.Metrics) { s.metrics = m }

// Input creates an alert.
type Input struct {
	Symbol    string               `json:"symbol"`
	Condition model.AlertCondition `json:"condition"`
	Threshold *float64             `json:"threshold"`
	Period    *int                 `json:"period"`
	Note      string               `json:"note"`
}

// Update changes an alert. Nil fields are unchanged. Setting Status to
// active re-arms a triggered alert.
type Update struct {
	Condition *model.AlertCondition `json:"condition"`
	Threshold *float64              `json:"threshold"`
	Period    *int                  `json:"period"`
	Status    *model.AlertStatus    `json:"status"`
	Note      *string               `json:"note"`
}

func validate(a *model.PriceAlert) error {
	var errs []string
	if len(a.Symbol) < 1 || len(a.Symbol) > 20 {
		errs = append(errs, "Invalid stock symbol")
	}
	if !a.Condition.Valid() {
		errs = append(errs, fmt.Sprintf("Invalid alert condition %q", a.Condition))
	}
	switch a.Condition {
	case model.AlertPriceAbove, model.AlertPriceBelow:
		if a.Threshold <= 0 {
			errs = append(errs, "Threshold must be greater than 0")
		}
	case model.AlertRSIAbove, model.AlertRSIBelow:
		if a.Threshold <= 0 || a.Threshold >= 100 {
			errs = append(errs, "RSI threshold must be between 0 and 100")
		}
		if a.Period < 2 || a.Period > maxRSIPeriod {
			errs = append(errs, fmt.Sprintf("RSI period must be between 2 and %d", maxRSIPeriod))
		}
	}
	switch a.Status {
	case model.AlertActive, model.AlertTriggered, model.AlertDisabled:
	default:
		errs = append(errs, fmt.Sprintf("Invalid alert status %q", a.Status))
	}
	if len(a.Note) > maxNoteLen {
		errs = append(errs, fmt.Sprintf("Note must be at most %d characters", maxNoteLen))
	}
	if len(errs) > 0 {
		return model.Invalid(errs...)
	}
	return nil
}

// Create adds an active alert for userID.
func (s *Service) Create(ctx context.Context, userID int64, in Input) (*model.PriceAlert, error) {
	if in.Threshold == nil {
		return nil, model.Invalid("Threshold is required")
	}
	a := &model.PriceAlert{
		UserID:    userID,
		Symbol:    strings.ToUpper(strings.TrimSpace(in.Symbol)),
		Condition: in.Condition,
		Threshold: *in.Threshold,
		Status:    model.AlertActive,
		Note:      strings.TrimSpace(in.Note),
	}
	if a.Condition.NeedsHistory() {
		a.Period = DefaultRSIPeriod
		if in.Period != nil {
			a.Period = *in.Period
		}
	}
	if err := validate(a); err != nil {
		return nil, err
	}
	if err := s.store.CreateAlert(ctx, a); err != nil {
		return nil, fmt.Errorf("alert: create: %w", err)
	}
	return a, nil
}

// List returns the user's alerts, newest first.
func (s *Service) List(ctx context.Context, userID int64) ([]model.PriceAlert, error) {
	out, err := s.store.ListAlerts(ctx, userID)
	if out == nil && err == nil {
		out = []model.PriceAlert{}
	}
	return out, err
}

// Get returns one alert owned by userID.
func (s *Service) Get(ctx context.Context, userID, id int64) (*model.PriceAlert, error) {
	a, err := s.store.Alert(ctx, id)
	if errors.Is(err, model.ErrNotFound) || (err == nil && a.UserID != userID) {
		return nil, model.E(model.ErrNotFound, "Alert not found")
	}
	return a, err
}

// Update modifies an alert owned by userID.
func (s *Service) Update(ctx context.Context, userID, id int64, in Update) (*model.PriceAlert, error) {
	a, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if in.Condition != nil {
		a.Condition = *in.Condition
		if a.Condition.NeedsHistory() && a.Period == 0 {
			a.Period = DefaultRSIPeriod
		}
	}
	if in.Threshold != nil {
		a.Threshold = *in.Threshold
	}
	if in.Period != nil {
		a.Period = *in.Period
	}
	if in.Note != nil {
		a.Note = strings.TrimSpace(*in.Note)
	}
	if in.Status != nil {
		a.Status = *in.Status
		if a.Status == model.AlertActive {
			a.TriggeredAt, a.TriggeredValue = nil, nil
		}
	}
	if err := validate(a); err != nil {
		return nil, err
	}
	if err := s.store.UpdateAlert(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Delete removes an alert owned by userID.
func (s *Service) Delete(ctx context.Context, userID, id int64) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	return s.store.DeleteAlert(ctx, id)
}

// Check reports whether a fires for the observed value.
func Check(a model.PriceAlert, value float64) bool {
	if math.IsNaN(value) {
		return false
	}
	switch a.Condition {
	case model.AlertPriceAbove, model.AlertChangePctAbove, model.AlertRSIAbove:
		return value >= a.Threshold
	case model.AlertPriceBelow, model.AlertChangePctBelow, model.AlertRSIBelow:
		return value <= a.Threshold
	}
	return false
}

type rsiKey struct {
	symbol string
	period int
}

// evaluator caches quotes and RSI values for one evaluation pass.
type evaluator struct {
	s      *Service
	quotes map[string]*model.Quote
	rsi    map[rsiKey]float64
}

func (e *evaluator) quote(ctx context.Context, symbol string) *model.Quote {
	if q, ok := e.quotes[symbol]; ok {
		return q
	}
	q, err := e.s.quotes.Quote(ctx, symbol)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			log.Printf("[alerts] quote %s: %v", symbol, err)
		}
		q = nil
	}
	e.quotes[symbol] = q
	return q
}

func (e *evaluator) rsiValue(ctx context.Context, symbol string, period int) float64 {
	k := rsiKey{symbol, period}
	if v, ok := e.rsi[k]; ok {
		return v
	}
	v := math.NaN()
	if e.s.history != nil {
		closes, err := e.s.history.DailyCloses(ctx, symbol, period*4)
		if err != nil {
			log.Printf("[alerts] history %s: %v", symbol, err)
		} else if last, ok := indicator.Last(indicator.RSI(closes, period)); ok {
			v = last
		}
	}
	e.rsi[k] = v
	return v
}

// value returns the observed value a is compared against, NaN when unknown.
func (e *evaluator) value(ctx context.Context, a model.PriceAlert) float64 {
	if a.Condition.NeedsHistory() {
		return e.rsiValue(ctx, a.Symbol, a.Period)
	}
	q := e.quote(ctx, a.Symbol)
	if q == nil {
		return math.NaN()
	}
	switch a.Condition {
	case model.AlertChangePctAbove, model.AlertChangePctBelow:
		return q.ChangePercent
	}
	return q.Price
}

// Evaluate checks every active alert and fires those whose condition holds.
// It returns the alerts that fired.
func (s *Service) Evaluate(ctx context.Context) ([]model.PriceAlert, error) {
	active, err := s.store.ActiveAlerts(ctx)
	if err != nil {
		return nil, fmt.Errorf("alert: active alerts: %w", err)
	}
	e := &evaluator{s: s, quotes: make(map[string]*model.Quote), rsi: make(map[rsiKey]float64)}

	var fired []model.PriceAlert
	for _, a := range active {
		if ctx.Err() != nil {
			return fired, ctx.Err()
		}
		v := e.value(ctx, a)
		if !Check(a, v) {
			continue
		}
		now := s.now().UTC()
		v = math.Round(v*1e4) / 1e4
		a.Status = model.AlertTriggered
		a.TriggeredAt = &now
		a.TriggeredValue = &v
		if err := s.store.UpdateAlert(ctx, &a); err != nil {
			log.Printf("[alerts] store trigger of alert %d: %v", a.ID, err)
			continue
		}
		fired = append(fired, a)
		s.deliver(ctx, a)
	}
	if len(fired) > 0 {
		log.Printf("[alerts] %d of %d active alerts triggered", len(fired), len(active))
	}
	return fired, nil
}

func describe(a model.PriceAlert) string {
	switch a.Condition {
	case model.AlertPriceAbove:
		return fmt.Sprintf("%s price rose to %.2f (above %.2f)", a.Symbol, *a.TriggeredValue, a.Threshold)
	case model.AlertPriceBelow:
		return fmt.Sprintf("%s price fell to %.2f (below %.2f)", a.Symbol, *a.TriggeredValue, a.Threshold)
	case model.AlertChangePctAbove:
		return fmt.Sprintf("%s is up %.2f%% today (above %.2f%%)", a.Symbol, *a.TriggeredValue, a.Threshold)
	case model.AlertChangePctBelow:
		return fmt.Sprintf("%s is down to %.2f%% today (below %.2f%%)", a.Symbol, *a.TriggeredValue, a.Threshold)
	case model.AlertRSIAbove:
		return fmt.Sprintf("%s RSI(%d) is %.2f (above %.2f)", a.Symbol, a.Period, *a.TriggeredValue, a.Threshold)
	case model.AlertRSIBelow:
		return fmt.Sprintf("%s RSI(%d) is %.2f (below %.2f)", a.Symbol, a.Period, *a.TriggeredValue, a.Threshold)
	}
	return a.Symbol
}

// Message renders a triggered alert as a notification.
func Message(a model.PriceAlert) notification.Message {
	body := describe(a)
	if a.Note != "" {
		body += "\n" + a.Note
	}
	return notification.Message{
		Level:  notification.LevelWarning,
		Title:  fmt.Sprintf("Price alert: %s %s %g", a.Symbol, a.Condition, a.Threshold),
		Body:   body,
		UserID: a.UserID,
		Fields: map[string]any{
			"alert_id":        a.ID,
			"symbol":          a.Symbol,
			"condition":       string(a.Condition),
			"threshold":       a.Threshold,
			"triggered_value": *a.TriggeredValue,
		},
	}
}

// deliver sends a triggered alert to the server chain, the user's own
// webhook, and the OnTrigger hook. Delivery failures are logged only.
func (s *Service) deliver(ctx context.Context, a model.PriceAlert) {
	if s.metrics != nil {
		s.metrics.AlertsTriggered.WithLabelValues(string(a.Condition)).Inc()
	}
	msg := Message(a)
	chain := notification.Multi{s.notifier}
	if s.settings != nil {
		if st, err := s.settings.Settings(ctx, a.UserID); err == nil && st.WebhookURL != "" {
			chain = append(chain, notification.NewWebhookNotifier(st.WebhookURL))
		}
	}
	if err := chain.Send(ctx, msg); err != nil {
		log.Printf("[alerts] deliver alert %d: %v", a.ID, err)
	}
	if s.OnTrigger != nil {
		s.OnTrigger(a)
	}
}
