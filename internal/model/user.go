package model

import "time"

// User is an account holder.
type User struct {
	ID             int64      `json:"id"`
	Email          string     `json:"email"`
	FullName       string     `json:"full_name,omitempty"`
	HashedPassword string     `json:"-"`
	IsActive       bool       `json:"is_active"`
	EmailVerified  bool       `json:"email_verified"`
	TOTPSecret     string     `json:"-"`
	TOTPEnabled    bool       `json:"totp_enabled"`
	LastLogin      *time.Time `json:"last_login,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Settings are per-user preferences. Zero-valued risk overrides mean
// "use the server defaults".
type Settings struct {
	UserID             int64     `json:"user_id"`
	DefaultPortfolioID *int64    `json:"default_portfolio_id"`
	Timezone           string    `json:"timezone"`
	Currency           string    `json:"currency"`
	EmailNotifications bool      `json:"email_notifications"`
	WebhookURL         string    `json:"webhook_url,omitempty"`
	MaxOrderPct        float64   `json:"max_order_pct"`
	MaxDailyTrades     int       `json:"max_daily_trades"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// SupportTicket is a user-submitted support request.
type SupportTicket struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Subject   string    `json:"subject"`
	Category  string    `json:"category"`
	Message   string    `json:"message"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
