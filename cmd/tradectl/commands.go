package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/google/subcommands"

	"tradedesk/config"
	"tradedesk/internal/auth"
	"tradedesk/internal/market"
	"tradedesk/internal/model"
	"tradedesk/internal/portfolio"
	"tradedesk/internal/report"
	"tradedesk/internal/store/sqlite"
	"tradedesk/internal/trading"
)

var commands = []subcommands.Command{
	&migrateCmd{},
	&userCreateCmd{},
	&ingestCmd{},
	&indicatorsCmd{},
	&reportCmd{},
	&simulateCmd{},
}

// dbFlags is embedded by commands that open the database.
type dbFlags struct {
	config string
	db     string
}

func (d *dbFlags) register(f *flag.FlagSet) {
	f.StringVar(&d.config, "config", "", "path to the YAML config file")
	f.StringVar(&d.db, "db", "", "SQLite database path (overrides the config)")
}

func (d *dbFlags) open() (*sqlite.Store, error) {
	p := d.db
	if p == "" {
		cfg, err := config.Load(d.config)
		if err != nil {
			return nil, err
		}
		p = cfg.SQLitePath
	}
	return sqlite.New(p)
}

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return subcommands.ExitFailure
}

// printMarkdown renders md for the terminal, or prints it as is when raw.
func printMarkdown(md string, raw bool) {
	if raw {
		fmt.Print(md)
		return
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(120))
	if err == nil {
		var out string
		if out, err = r.Render(md); err == nil {
			fmt.Print(out)
			return
		}
	}
	fmt.Print(md)
}

// ── migrate ──

type migrateCmd struct{ dbFlags }

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "create or upgrade the database schema" }
func (*migrateCmd) Usage() string {
	return `tradectl migrate [-db <path>]

  Opens the database, applying the schema.
`
}
func (c *migrateCmd) SetFlags(f *flag.FlagSet) { c.register(f) }

func (c *migrateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	st, err := c.open()
	if err != nil {
		return fail(err)
	}
	defer st.Close()
	if err := market.NewService(st, nil, nil, nil).SeedIndices(ctx); err != nil {
		return fail(err)
	}
	fmt.Println("schema up to date")
	return subcommands.ExitSuccess
}

// ── user-create ──

type userCreateCmd struct {
	dbFlags
	email    string
	password string
	name     string
	verified bool
}

func (*userCreateCmd) Name() string     { return "user-create" }
func (*userCreateCmd) Synopsis() string { return "create a user account" }
func (*userCreateCmd) Usage() string {
	return `tradectl user-create -email <email> -password <password> [-name <name>] [-verified]

  Creates an active user without sending a verification email.
`
}

func (c *userCreateCmd) SetFlags(f *flag.FlagSet) {
	c.register(f)
	f.StringVar(&c.email, "email", "", "email address")
	f.StringVar(&c.password, "password", "", "password (at least 8 characters)")
	f.StringVar(&c.name, "name", "", "full name")
	f.BoolVar(&c.verified, "verified", true, "mark the email as verified")
}

func (c *userCreateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	email := strings.ToLower(strings.TrimSpace(c.email))
	if email == "" || len(c.password) < 8 {
		fmt.Fprintln(os.Stderr, "Error: -email and a -password of at least 8 characters are required")
		return subcommands.ExitUsageError
	}
	st, err := c.open()
	if err != nil {
		return fail(err)
	}
	defer st.Close()

	hash, err := auth.HashPassword(c.password)
	if err != nil {
		return fail(err)
	}
	u := &model.User{Email: email, FullName: c.name, HashedPassword: hash, IsActive: true, EmailVerified: c.verified}
	if err := st.CreateUser(ctx, u); err != nil {
		return fail(err)
	}
	fmt.Printf("created user %d <%s>\n", u.ID, u.Email)
	return subcommands.ExitSuccess
}

// ── ingest ──

type ingestCmd struct {
	dbFlags
	in string
}

func (*ingestCmd) Name() string     { return "ingest" }
func (*ingestCmd) Synopsis() string { return "record prices from a CSV file" }
func (*ingestCmd) Usage() string {
	return `tradectl ingest -in <file.csv>

  Records one price per row: symbol,price[,volume[,timestamp]]
  Timestamps are RFC 3339; a header row is skipped. "-" reads stdin.
`
}

func (c *ingestCmd) SetFlags(f *flag.FlagSet) {
	c.register(f)
	f.StringVar(&c.in, "in", "-", "CSV file to read")
}

func (c *ingestCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	r, closeIn, err := openInput(c.in)
	if err != nil {
		return fail(err)
	}
	defer closeIn()
	rows, err := parseIngest(r)
	if err != nil {
		return fail(err)
	}

	st, err := c.open()
	if err != nil {
		return fail(err)
	}
	defer st.Close()
	svc := market.NewService(st, nil, nil, nil)
	for i, row := range rows {
		if _, err := svc.Ingest(ctx, row.symbol, row.in); err != nil {
			return fail(fmt.Errorf("row %d (%s): %w", i+1, row.symbol, err))
		}
	}
	fmt.Printf("ingested %d prices\n", len(rows))
	return subcommands.ExitSuccess
}

type ingestRow struct {
	symbol string
	in     market.IngestInput
}

// parseIngest reads symbol,price[,volume[,timestamp]] rows.
func parseIngest(r io.Reader) ([]ingestRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	var rows []ingestRow
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("line %d: want symbol,price", line)
		}
		price, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("line %d: price: %w", line, err)
		}
		row := ingestRow{symbol: rec[0], in: market.IngestInput{Price: price}}
		if len(rec) > 2 && rec[2] != "" {
			if row.in.Volume, err = strconv.ParseInt(rec[2], 10, 64); err != nil {
				return nil, fmt.Errorf("line %d: volume: %w", line, err)
			}
		}
		if len(rec) > 3 && rec[3] != "" {
			ts, err := time.Parse(time.RFC3339, rec[3])
			if err != nil {
				return nil, fmt.Errorf("line %d: timestamp: %w", line, err)
			}
			row.in.Timestamp = &ts
		}
		rows = append(rows, row)
	}
}

func openInput(name string) (io.Reader, func(), error) {
	if name == "" || name == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

// ── indicators ──

type indicatorsCmd struct {
	in    string
	names string
	rows  int
	raw   bool
}

func (*indicatorsCmd) Name() string     { return "indicators" }
func (*indicatorsCmd) Synopsis() string { return "compute indicators over a CSV of closes" }
func (*indicatorsCmd) Usage() string {
	return `tradectl indicators -in <closes.csv> [-i SMA_20,RSI_14] [-n 20] [-raw]

  Computes indicators over the closing prices in the last column of the CSV.
`
}

func (c *indicatorsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.in, "in", "-", "CSV file of closes")
	f.StringVar(&c.names, "i", market.DefaultIndicators, "comma-separated indicators")
	f.IntVar(&c.rows, "n", 20, "number of trailing rows to show (0 for all)")
	f.BoolVar(&c.raw, "raw", false, "print markdown without terminal rendering")
}

func (c *indicatorsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	r, closeIn, err := openInput(c.in)
	if err != nil {
		return fail(err)
	}
	defer closeIn()
	closes, err := report.ReadCloses(r)
	if err != nil {
		return fail(err)
	}
	title := c.in
	if title == "-" {
		title = "stdin"
	}
	out, err := report.IndicatorMarkdown(title, closes, c.names, c.rows)
	if err != nil {
		return fail(err)
	}
	printMarkdown(out, c.raw)
	return subcommands.ExitSuccess
}

// ── report ──

type reportCmd struct {
	dbFlags
	email     string
	portfolio int64
	raw       bool
}

func (*reportCmd) Name() string     { return "report" }
func (*reportCmd) Synopsis() string { return "render a portfolio report from stored prices" }
func (*reportCmd) Usage() string {
	return `tradectl report -email <owner> -portfolio <id> [-raw]

  Values the portfolio at the last stored prices and prints its report.
`
}

func (c *reportCmd) SetFlags(f *flag.FlagSet) {
	c.register(f)
	f.StringVar(&c.email, "email", "", "portfolio owner")
	f.Int64Var(&c.portfolio, "portfolio", 0, "portfolio id")
	f.BoolVar(&c.raw, "raw", false, "print markdown without terminal rendering")
}

func (c *reportCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.email == "" || c.portfolio <= 0 {
		fmt.Fprintln(os.Stderr, "Error: -email and -portfolio are required")
		return subcommands.ExitUsageError
	}
	st, err := c.open()
	if err != nil {
		return fail(err)
	}
	defer st.Close()

	u, err := st.UserByEmail(ctx, strings.ToLower(strings.TrimSpace(c.email)))
	if err != nil {
		return fail(fmt.Errorf("user %s: %w", c.email, err))
	}
	mkt := market.NewService(st, market.NewStoreProvider(st), nil, nil)
	pf := portfolio.NewService(st, mkt, mkt)
	tr := trading.NewService(st, mkt, pf, trading.NewPaperExecutor(0, 0), nil, st)
	rep, err := report.NewService(pf, tr, st).Portfolio(ctx, u.ID, c.portfolio)
	if err != nil {
		return fail(err)
	}
	out, err := rep.Markdown()
	if err != nil {
		return fail(err)
	}
	printMarkdown(out, c.raw)
	return subcommands.ExitSuccess
}

// ── simulate ──

type simulateCmd struct {
	dbFlags
	symbols  string
	steps    int
	interval time.Duration
	start    float64
}

func (*simulateCmd) Name() string     { return "simulate" }
func (*simulateCmd) Synopsis() string { return "ingest random-walk prices for demo symbols" }
func (*simulateCmd) Usage() string {
	return `tradectl simulate [-symbols AAPL:150,MSFT] [-steps 100] [-interval 1s]

  Walks each symbol's price by up to 0.1% per step and records it, so
  quotes, alerts and pending orders can be exercised without a provider.
  Symbols without a starting price continue from their last stored quote.
`
}

func (c *simulateCmd) SetFlags(f *flag.FlagSet) {
	c.register(f)
	f.StringVar(&c.symbols, "symbols", "AAPL,MSFT", "comma-separated SYMBOL[:price] pairs")
	f.IntVar(&c.steps, "steps", 100, "number of price steps per symbol")
	f.DurationVar(&c.interval, "interval", time.Second, "delay between steps")
	f.Float64Var(&c.start, "start", 100, "starting price for symbols with no history")
}

func (c *simulateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	walk, err := parseWalk(c.symbols)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	st, err := c.open()
	if err != nil {
		return fail(err)
	}
	defer st.Close()
	svc := market.NewService(st, market.NewStoreProvider(st), nil, nil)

	for sym, p := range walk {
		if p > 0 {
			continue
		}
		walk[sym] = c.start
		if q, err := svc.Quote(ctx, sym); err == nil && q.Price > 0 {
			walk[sym] = q.Price
		}
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for i := 0; i < c.steps; i++ {
		if i > 0 && c.interval > 0 {
			select {
			case <-ctx.Done():
				return subcommands.ExitSuccess
			case <-time.After(c.interval):
			}
		}
		for sym, p := range walk {
			p = walkPrice(p, rng.Float64())
			walk[sym] = p
			in := market.IngestInput{Price: p, Volume: int64(rng.Intn(100) + 1)}
			if _, err := svc.Ingest(ctx, sym, in); err != nil {
				return fail(fmt.Errorf("%s: %w", sym, err))
			}
		}
	}
	fmt.Printf("ingested %d steps for %d symbols\n", c.steps, len(walk))
	return subcommands.ExitSuccess
}

// parseWalk reads SYMBOL[:price] pairs. A missing price is returned as 0.
func parseWalk(s string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		sym, price, hasPrice := strings.Cut(part, ":")
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			return nil, fmt.Errorf("empty symbol in %q", part)
		}
		var p float64
		if hasPrice {
			v, err := strconv.ParseFloat(strings.TrimSpace(price), 64)
			if err != nil || v <= 0 {
				return nil, fmt.Errorf("bad starting price in %q", part)
			}
			p = v
		}
		out[sym] = p
	}
	if len(out) == 0 {
		return nil, errors.New("no symbols")
	}
	return out, nil
}

// walkPrice moves price by between -0.1% and +0.1%, with u uniform in [0,1).
// Prices never drop below one cent.
func walkPrice(price, u float64) float64 {
	pct := (u*0.2 - 0.1) / 100
	next := math.Round(price*(1+pct)*100) / 100
	if next < 0.01 {
		next = 0.01
	}
	return next
}
