package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration. Values come from an optional
// YAML file and are overridden by environment variables (a .env file in the
// working directory is loaded first).
type Config struct {
	Env        string `yaml:"env"`
	ListenAddr string `yaml:"listen_addr"`
	APIPrefix  string `yaml:"api_prefix"`
	LogLevel   string `yaml:"log_level"`

	// Infrastructure
	SQLitePath    string        `yaml:"sqlite_path"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	QuoteTTL      time.Duration `yaml:"quote_ttl"`

	// Auth
	SecretKey      string        `yaml:"secret_key"`
	AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
	RememberMeTTL  time.Duration `yaml:"remember_me_ttl"`
	TOTPIssuer     string        `yaml:"totp_issuer"`
	CORSOrigins    []string      `yaml:"cors_origins"`

	// Market data
	QuoteProvider string `yaml:"quote_provider"` // "yahoo" or "store"
	YahooBaseURL  string `yaml:"yahoo_base_url"`
	Proxy         string `yaml:"proxy"`

	// Paper execution
	SlippageBps        float64 `yaml:"slippage_bps"`
	CommissionPerOrder float64 `yaml:"commission_per_order"`

	// Risk limits
	MaxOrderPct    float64 `yaml:"max_order_pct"`
	MaxDailyTrades int     `yaml:"max_daily_trades"`
	MaxPositionPct float64 `yaml:"max_position_pct"`

	// Schedules (robfig/cron with seconds field)
	AlertCron      string `yaml:"alert_cron"`
	OrderMatchCron string `yaml:"order_match_cron"`
	DailyResetCron string `yaml:"daily_reset_cron"`
	IndexCron      string `yaml:"index_cron"`

	// Notifications
	WebhookURL       string `yaml:"webhook_url"`
	TelegramBotToken string `yaml:"telegram_bot_token"`
	TelegramChatID   string `yaml:"telegram_chat_id"`

	// Indicators computed by /market/stock/{symbol}/indicators when the
	// request names none, e.g. "SMA_20,EMA_50,RSI_14,MACD_12_26_9,BB_20_2"
	IndicatorConfigs string `yaml:"indicator_configs"`
}

// Load reads the YAML file at path (missing file is fine), then applies
// environment overrides and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] .env not loaded: %v", err)
	}

	cfg := &Config{}
	if path == "" {
		path = getEnv("TRADEDESK_CONFIG", "tradedesk.yaml")
	}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Env, "APP_ENV")
	setString(&c.ListenAddr, "LISTEN_ADDR")
	setString(&c.APIPrefix, "API_PREFIX")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.SQLitePath, "SQLITE_PATH")
	setString(&c.RedisAddr, "REDIS_ADDR")
	setString(&c.RedisPassword, "REDIS_PASSWORD")
	setString(&c.SecretKey, "SECRET_KEY")
	setString(&c.TOTPIssuer, "TOTP_ISSUER")
	setString(&c.QuoteProvider, "QUOTE_PROVIDER")
	setString(&c.YahooBaseURL, "YAHOO_BASE_URL")
	setString(&c.Proxy, "HTTPS_PROXY")
	setString(&c.AlertCron, "ALERT_CRON")
	setString(&c.OrderMatchCron, "ORDER_MATCH_CRON")
	setString(&c.DailyResetCron, "DAILY_RESET_CRON")
	setString(&c.IndexCron, "INDEX_CRON")
	setString(&c.WebhookURL, "WEBHOOK_URL")
	setString(&c.TelegramBotToken, "TELEGRAM_BOT_TOKEN")
	setString(&c.TelegramChatID, "TELEGRAM_CHAT_ID")
	setString(&c.IndicatorConfigs, "INDICATOR_CONFIGS")

	if v := getEnv("CORS_ORIGINS", ""); v != "" {
		c.CORSOrigins = splitList(v)
	}
	if v := getEnvInt("ACCESS_TOKEN_EXPIRE_MINUTES", 0); v > 0 {
		c.AccessTokenTTL = time.Duration(v) * time.Minute
	}
	if v := getEnvInt("REMEMBER_ME_EXPIRE_HOURS", 0); v > 0 {
		c.RememberMeTTL = time.Duration(v) * time.Hour
	}
	if v := getEnvInt("QUOTE_TTL_SECONDS", 0); v > 0 {
		c.QuoteTTL = time.Duration(v) * time.Second
	}
	if v := getEnvInt("MAX_DAILY_TRADES", 0); v > 0 {
		c.MaxDailyTrades = v
	}
	if v := getEnvFloat("SLIPPAGE_BPS", -1); v >= 0 {
		c.SlippageBps = v
	}
	if v := getEnvFloat("COMMISSION_PER_ORDER", -1); v >= 0 {
		c.CommissionPerOrder = v
	}
	if v := getEnvFloat("MAX_ORDER_PCT", 0); v > 0 {
		c.MaxOrderPct = v
	}
	if v := getEnvFloat("MAX_POSITION_PCT", 0); v > 0 {
		c.MaxPositionPct = v
	}
}

// IsDev reports whether the service runs in development mode.
func (c *Config) IsDev() bool { return c.Env == "" || c.Env == EnvDevelopment }

// Validate checks that the loaded configuration is usable.
func (c *Config) Validate() error {
	var problems []string
	if c.SecretKey == "" {
		problems = append(problems, "secret_key is required")
	} else if !c.IsDev() && len(c.SecretKey) < 16 {
		problems = append(problems, "secret_key must be at least 16 bytes")
	}
	if c.QuoteProvider != "yahoo" && c.QuoteProvider != "store" {
		problems = append(problems, fmt.Sprintf("quote_provider %q must be yahoo or store", c.QuoteProvider))
	}
	if c.MaxOrderPct <= 0 || c.MaxOrderPct > 100 {
		problems = append(problems, "max_order_pct must be in (0, 100]")
	}
	if c.MaxDailyTrades <= 0 {
		problems = append(problems, "max_daily_trades must be positive")
	}
	if !strings.HasPrefix(c.APIPrefix, "/") {
		problems = append(problems, "api_prefix must start with /")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] ignoring invalid %s=%q", key, v)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] ignoring invalid %s=%q", key, v)
		return fallback
	}
	return f
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
