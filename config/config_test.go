package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SECRET_KEY", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != DefaultListenAddr {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, DefaultListenAddr)
	}
	if cfg.AccessTokenTTL != 30*time.Minute {
		t.Errorf("AccessTokenTTL = %v, want 30m", cfg.AccessTokenTTL)
	}
	if cfg.MaxDailyTrades != 25 || cfg.MaxOrderPct != 25 {
		t.Errorf("risk defaults = %d/%v, want 25/25", cfg.MaxDailyTrades, cfg.MaxOrderPct)
	}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "secret_key") {
		t.Errorf("Validate() = %v, want secret_key error", err)
	}
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tradedesk.yaml")
	yml := "listen_addr: \":9000\"\nsecret_key: from-file-secret-key\nquote_ttl: 5s\ncors_origins:\n  - https://app.example.com\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LISTEN_ADDR", ":9100")
	t.Setenv("MAX_DAILY_TRADES", "10")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9100" {
		t.Errorf("env should win: ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.SecretKey != "from-file-secret-key" {
		t.Errorf("SecretKey = %q", cfg.SecretKey)
	}
	if cfg.QuoteTTL != 5*time.Second {
		t.Errorf("QuoteTTL = %v, want 5s", cfg.QuoteTTL)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "https://app.example.com" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if cfg.MaxDailyTrades != 10 {
		t.Errorf("MaxDailyTrades = %d, want 10", cfg.MaxDailyTrades)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidate_ProductionSecretLength(t *testing.T) {
	cfg := &Config{Env: EnvProduction, SecretKey: "short"}
	cfg.applyDefaults()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for short production secret")
	}
	cfg.SecretKey = "a-sufficiently-long-secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" a, ,b ,c")
	if strings.Join(got, "|") != "a|b|c" {
		t.Errorf("splitList = %v", got)
	}
}
