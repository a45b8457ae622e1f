package model

import "time"

// AlertCondition is what an alert watches for.
type AlertCondition string

const (
	AlertPriceAbove     AlertCondition = "above"
	AlertPriceBelow     AlertCondition = "below"
	AlertChangePctAbove AlertCondition = "change_pct_above"
	AlertChangePctBelow AlertCondition = "change_pct_below"
	AlertRSIAbove       AlertCondition = "rsi_above"
	AlertRSIBelow       AlertCondition = "rsi_below"
)

// Valid reports whether c is a known condition.
func (c AlertCondition) Valid() bool {
	switch c {
	case AlertPriceAbove, AlertPriceBelow, AlertChangePctAbove, AlertChangePctBelow, AlertRSIAbove, AlertRSIBelow:
		return true
	}
	return false
}

// NeedsHistory reports whether evaluating c requires price history.
func (c AlertCondition) NeedsHistory() bool {
	return c == AlertRSIAbove || c == AlertRSIBelow
}

// AlertStatus is the lifecycle state of a price alert.
type AlertStatus string

const (
	AlertActive    AlertStatus = "active"
	AlertTriggered AlertStatus = "triggered"
	AlertDisabled  AlertStatus = "disabled"
)

// PriceAlert is a user-defined market condition to watch.
type PriceAlert struct {
	ID             int64          `json:"id"`
	UserID         int64          `json:"user_id"`
	Symbol         string         `json:"symbol"`
	Condition      AlertCondition `json:"condition"`
	Threshold      float64        `json:"threshold"`
	Period         int            `json:"period,omitempty"` // RSI period
	Status         AlertStatus    `json:"status"`
	Note           string         `json:"note,omitempty"`
	TriggeredAt    *time.Time     `json:"triggered_at"`
	TriggeredValue *float64       `json:"triggered_value"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
