// Command tradedesk runs the REST and WebSocket server together with the
// background jobs (alert evaluation, order matching, index refresh).
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradedesk/config"
	"tradedesk/internal/alert"
	"tradedesk/internal/api"
	"tradedesk/internal/apikey"
	"tradedesk/internal/auth"
	"tradedesk/internal/gateway"
	"tradedesk/internal/logger"
	"tradedesk/internal/market"
	"tradedesk/internal/metrics"
	"tradedesk/internal/model"
	"tradedesk/internal/notification"
	"tradedesk/internal/portfolio"
	"tradedesk/internal/report"
	"tradedesk/internal/scheduler"
	"tradedesk/internal/settings"
	"tradedesk/internal/store/memory"
	"tradedesk/internal/store/redis"
	"tradedesk/internal/store/sqlite"
	"tradedesk/internal/trading"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[tradedesk] starting...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[tradedesk] %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[tradedesk] %v", err)
	}
	lg := logger.Init("tradedesk", logger.ParseLevel(cfg.LogLevel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := sqlite.New(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[tradedesk] open database: %v", err)
	}
	defer st.Close()
	log.Printf("[tradedesk] database at %s", cfg.SQLitePath)

	m := metrics.NewMetrics()
	health := metrics.NewHealthStatus(api.Version)

	// Quote cache and bus: Redis when configured, in-process otherwise.
	var (
		cache     model.QuoteCache
		bus       model.QuoteBus
		redisPing metrics.Pinger
	)
	if cfg.RedisAddr != "" {
		rc, err := redis.New(redis.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, QuoteTTL: cfg.QuoteTTL})
		if err != nil {
			log.Fatalf("[tradedesk] %v", err)
		}
		defer rc.Close()
		cb := rc.Breaker()
		prev := cb.OnStateChange
		cb.OnStateChange = func(from, to redis.State) {
			if prev != nil {
				prev(from, to)
			}
			m.SetBreakerState(int(to))
		}
		cache = rc
		bus = redis.NewBufferedPublisher(rc, cb, 0)
		redisPing = rc
	} else {
		log.Println("[tradedesk] REDIS_ADDR not set, using in-process quote cache and bus")
		cache = memory.NewCache(cfg.QuoteTTL)
		bus = memory.NewBus(256)
	}

	var provider market.Provider
	switch cfg.QuoteProvider {
	case "yahoo":
		provider = market.NewYahooProvider(cfg.YahooBaseURL, cfg.Proxy)
	default:
		provider = market.NewStoreProvider(st)
	}
	log.Printf("[tradedesk] quote provider: %s", provider.Name())

	notifier := notification.New(notification.Config{
		WebhookURL:       cfg.WebhookURL,
		TelegramBotToken: cfg.TelegramBotToken,
		TelegramChatID:   cfg.TelegramChatID,
	})

	hub := gateway.NewHub()
	hub.SetMetrics(m)

	mkt := market.NewService(st, provider, cache, bus)
	mkt.SetMetrics(m)
	writerCtx, stopWriter := context.WithCancel(context.Background())
	quoteCh := make(chan model.Quote, 1024)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		st.RunQuoteWriter(writerCtx, quoteCh)
	}()
	mkt.SetQuoteSink(quoteCh)
	if err := mkt.SetDefaultIndicators(cfg.IndicatorConfigs); err != nil {
		log.Fatalf("[tradedesk] indicator_configs: %v", err)
	}
	mkt.OnQuote = func(q model.Quote) { health.SetLastQuoteTime(q.Timestamp) }
	if err := mkt.SeedIndices(ctx); err != nil {
		log.Printf("[tradedesk] seed indices: %v", err)
	}

	pf := portfolio.NewService(st, mkt, mkt)
	risk := portfolio.NewRiskManager(portfolio.RiskLimits{
		MaxOrderPct:    cfg.MaxOrderPct,
		MaxPositionPct: cfg.MaxPositionPct,
		MaxDailyTrades: cfg.MaxDailyTrades,
	}, func(userID int64, since time.Time) (int, error) {
		return st.CountOrdersSince(context.Background(), userID, since)
	})

	tr := trading.NewService(st, mkt, pf, trading.NewPaperExecutor(cfg.SlippageBps, cfg.CommissionPerOrder), risk, st)
	tr.SetMetrics(m)
	tr.OnFill = hub.PublishFill

	alerts := alert.NewService(st, mkt, mkt, notifier, st)
	alerts.SetMetrics(m)
	alerts.OnTrigger = hub.PublishAlert

	tokens := auth.NewTokens(cfg.SecretKey, cfg.AccessTokenTTL, cfg.RememberMeTTL)
	authSvc := auth.NewService(st, tokens, cfg.TOTPIssuer)
	authSvc.OnToken = func(email, typ, token string) {
		// No mail transport: tokens only surface in development logs.
		if cfg.IsDev() {
			lg.Info("auth token issued", "email", email, "type", typ, "token", token)
			return
		}
		lg.Info("auth token issued", "email", email, "type", typ)
	}

	srv := api.NewServer(api.Deps{
		Auth:      authSvc,
		APIKeys:   apikey.NewService(st, st),
		Portfolio: pf,
		Market:    mkt,
		Trading:   tr,
		Alerts:    alerts,
		Settings:  settings.NewService(st),
		Reports:   report.NewService(pf, tr, st),
		Support:   report.NewSupport(st, notifier),
		Hub:       hub,
		Metrics:   m,
		Health:    health,
	})

	go func() {
		if err := hub.Run(ctx, bus); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[tradedesk] quote fan-out stopped: %v", err)
		}
	}()
	go hub.StartStatusBroadcast(ctx, 30*time.Second)
	health.StartLivenessChecker(ctx, redisPing, st, 15*time.Second)

	sched := scheduler.New(ctx, alerts, tr, risk, mkt)
	sched.Metrics = m
	if err := sched.RegisterAll(scheduler.Specs{
		Alerts:     cfg.AlertCron,
		OrderMatch: cfg.OrderMatchCron,
		DailyReset: cfg.DailyResetCron,
		Indices:    cfg.IndexCron,
	}); err != nil {
		log.Fatalf("[tradedesk] %v", err)
	}
	sched.Start()

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Router(api.Config{Prefix: cfg.APIPrefix, CORSOrigins: cfg.CORSOrigins}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("[tradedesk] serving at http://localhost%s%s", cfg.ListenAddr, cfg.APIPrefix)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[tradedesk] http: %v", err)
		}
	}()

	<-sigCh
	log.Println("[tradedesk] shutting down...")
	sched.Stop()
	cancel()
	hub.Close()

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[tradedesk] shutdown: %v", err)
	}
	stopWriter()
	<-writerDone
	log.Println("[tradedesk] stopped")
}
