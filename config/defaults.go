package config

import "time"

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	DefaultListenAddr     = ":8000"
	DefaultAPIPrefix      = "/api/v1"
	DefaultSQLitePath     = "data/tradedesk.db"
	DefaultQuoteTTL       = 15 * time.Second
	DefaultAccessTokenTTL = 30 * time.Minute
	DefaultRememberMeTTL  = 30 * 24 * time.Hour
	DefaultTOTPIssuer     = "TradeDesk"
	DefaultQuoteProvider  = "yahoo"
	DefaultYahooBaseURL   = "https://query1.finance.yahoo.com"

	DefaultSlippageBps    = 5
	DefaultMaxOrderPct    = 25
	DefaultMaxDailyTrades = 25
	DefaultMaxPositionPct = 40

	DefaultAlertCron      = "*/30 * * * * *"
	DefaultOrderMatchCron = "*/15 * * * * *"
	DefaultDailyResetCron = "0 0 0 * * *"
	DefaultIndexCron      = "0 */5 * * * *"

	DefaultIndicatorConfigs = "SMA_20,EMA_20,RSI_14,MACD_12_26_9,BB_20_2"
)

var DefaultCORSOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

func (c *Config) applyDefaults() {
	if c.Env == "" {
		c.Env = EnvDevelopment
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.APIPrefix == "" {
		c.APIPrefix = DefaultAPIPrefix
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.SQLitePath == "" {
		c.SQLitePath = DefaultSQLitePath
	}
	if c.QuoteTTL == 0 {
		c.QuoteTTL = DefaultQuoteTTL
	}
	if c.AccessTokenTTL == 0 {
		c.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if c.RememberMeTTL == 0 {
		c.RememberMeTTL = DefaultRememberMeTTL
	}
	if c.TOTPIssuer == "" {
		c.TOTPIssuer = DefaultTOTPIssuer
	}
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = DefaultCORSOrigins
	}
	if c.QuoteProvider == "" {
		c.QuoteProvider = DefaultQuoteProvider
	}
	if c.YahooBaseURL == "" {
		c.YahooBaseURL = DefaultYahooBaseURL
	}
	if c.SlippageBps == 0 {
		c.SlippageBps = DefaultSlippageBps
	}
	if c.MaxOrderPct == 0 {
		c.MaxOrderPct = DefaultMaxOrderPct
	}
	if c.MaxDailyTrades == 0 {
		c.MaxDailyTrades = DefaultMaxDailyTrades
	}
	if c.MaxPositionPct == 0 {
		c.MaxPositionPct = DefaultMaxPositionPct
	}
	if c.AlertCron == "" {
		c.AlertCron = DefaultAlertCron
	}
	if c.OrderMatchCron == "" {
		c.OrderMatchCron = DefaultOrderMatchCron
	}
	if c.DailyResetCron == "" {
		c.DailyResetCron = DefaultDailyResetCron
	}
	if c.IndexCron == "" {
		c.IndexCron = DefaultIndexCron
	}
	if c.IndicatorConfigs == "" {
		c.IndicatorConfigs = DefaultIndicatorConfigs
	}
}
