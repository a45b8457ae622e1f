// Package settings manages per-user preferences: profile name, default
// portfolio, notification webhook and risk limit overrides.
package settings

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata"

	"tradedesk/internal/model"
)

const maxFullNameLen = 100

// Stores is the persistence the settings service needs.
type Stores interface {
	model.UserStore
	model.SettingsStore
	Portfolio(ctx context.Context, id int64) (*model.Portfolio, error)
}

// View is what GET /settings returns.
type View struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	model.Settings
}

// Input is a partial update; nil fields are left unchanged.
type Input struct {
	FullName           *string  `json:"full_name"`
	DefaultPortfolioID *int64   `json:"default_portfolio_id"`
	Timezone           *string  `json:"timezone"`
	Currency           *string  `json:"currency"`
	EmailNotifications *bool    `json:"email_notifications"`
	WebhookURL         *string  `json:"webhook_url"`
	MaxOrderPct        *float64 `json:"max_order_pct"`
	MaxDailyTrades     *int     `json:"max_daily_trades"`
}

// Service reads and updates user settings.
type Service struct {
	store Stores
}

// NewService creates the settings service.
func NewService(store Stores) *Service {
	return &Service{store: store}
}

// Defaults are the settings of a user who never saved any.
func Defaults(userID int64) model.Settings {
	return model.Settings{UserID: userID, Timezone: "UTC", Currency: "USD", EmailNotifications: true}
}

func (s *Service) load(ctx context.Context, userID int64) (*model.Settings, error) {
	st, err := s.store.Settings(ctx, userID)
	if errors.Is(err, model.ErrNotFound) {
		d := Defaults(userID)
		return &d, nil
	}
	return st, err
}

// Get returns the user's settings, or the defaults.
func (s *Service) Get(ctx context.Context, user *model.User) (*View, error) {
	st, err := s.load(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &View{Email: user.Email, FullName: user.FullName, Settings: *st}, nil
}

// Update validates and applies a partial update. A default portfolio id of
// 0 clears it.
func (s *Service) Update(ctx context.Context, user *model.User, in Input) (*View, error) {
	st, err := s.load(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	var errs []string
	if in.FullName != nil {
		name := strings.TrimSpace(*in.FullName)
		if len(name) > maxFullNameLen {
			errs = append(errs, fmt.Sprintf("Full name must be at most %d characters", maxFullNameLen))
		}
		in.FullName = &name
	}
	if in.DefaultPortfolioID != nil {
		if id := *in.DefaultPortfolioID; id == 0 {
			st.DefaultPortfolioID = nil
		} else if p, err := s.store.Portfolio(ctx, id); err != nil || p.UserID != user.ID {
			errs = append(errs, "Default portfolio not found")
		} else {
			st.DefaultPortfolioID = &id
		}
	}
	if in.Timezone != nil {
		if _, err := time.LoadLocation(*in.Timezone); err != nil || *in.Timezone == "" {
			errs = append(errs, fmt.Sprintf("Unknown timezone %q", *in.Timezone))
		} else {
			st.Timezone = *in.Timezone
		}
	}
	if in.Currency != nil {
		c := strings.ToUpper(strings.TrimSpace(*in.Currency))
		if len(c) != 3 {
			errs = append(errs, "Currency must be a 3-letter ISO code")
		} else {
			st.Currency = c
		}
	}
	if in.EmailNotifications != nil {
		st.EmailNotifications = *in.EmailNotifications
	}
	if in.WebhookURL != nil {
		raw := strings.TrimSpace(*in.WebhookURL)
		if raw != "" {
			if u, err := url.Parse(raw); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				errs = append(errs, "Webhook URL must be an http(s) URL")
			}
		}
		st.WebhookURL = raw
	}
	if in.MaxOrderPct != nil {
		if v := *in.MaxOrderPct; v < 0 || v > 100 {
			errs = append(errs, "max_order_pct must be between 0 and 100")
		} else {
			st.MaxOrderPct = v
		}
	}
	if in.MaxDailyTrades != nil {
		if v := *in.MaxDailyTrades; v < 0 || v > 1000 {
			errs = append(errs, "max_daily_trades must be between 0 and 1000")
		} else {
			st.MaxDailyTrades = v
		}
	}
	if len(errs) > 0 {
		return nil, model.Invalid(errs...)
	}

	if err := s.store.SaveSettings(ctx, st); err != nil {
		return nil, err
	}
	u := *user
	if in.FullName != nil && *in.FullName != user.FullName {
		u.FullName = *in.FullName
		if err := s.store.UpdateUser(ctx, &u); err != nil {
			return nil, err
		}
	}
	return &View{Email: u.Email, FullName: u.FullName, Settings: *st}, nil
}
