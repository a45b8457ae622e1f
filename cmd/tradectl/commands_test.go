package main

import (
	"strings"
	"testing"
	"time"
)

func TestParseIngest(t *testing.T) {
	in := "symbol,price,volume,timestamp\nAAPL,150.5,1000,2024-03-01T15:30:00Z\nmsft,300\n"
	rows, err := parseIngest(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].symbol != "AAPL" || rows[0].in.Price != 150.5 || rows[0].in.Volume != 1000 {
		t.Fatalf("row 0 = %+v", rows[0])
	}
	want := time.Date(2024, 3, 1, 15, 30, 0, 0, time.UTC)
	if rows[0].in.Timestamp == nil || !rows[0].in.Timestamp.Equal(want) {
		t.Fatalf("row 0 timestamp = %v", rows[0].in.Timestamp)
	}
	if rows[1].symbol != "msft" || rows[1].in.Price != 300 || rows[1].in.Timestamp != nil {
		t.Fatalf("row 1 = %+v", rows[1])
	}
}

func TestParseIngestErrors(t *testing.T) {
	cases := map[string]string{
		"short row":     "AAPL\n",
		"bad price":     "AAPL,1\nMSFT,abc\n",
		"bad volume":    "AAPL,1,many\n",
		"bad timestamp": "AAPL,1,10,yesterday\n",
	}
	for name, in := range cases {
		if _, err := parseIngest(strings.NewReader(in)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestParseWalk(t *testing.T) {
	got, err := parseWalk(" aapl:150.5, msft ,")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got["AAPL"] != 150.5 || got["MSFT"] != 0 {
		t.Fatalf("parseWalk = %v", got)
	}
	for _, bad := range []string{"", ",", ":10", "AAPL:x", "AAPL:-1"} {
		if _, err := parseWalk(bad); err == nil {
			t.Errorf("parseWalk(%q): expected error", bad)
		}
	}
}

func TestWalkPrice(t *testing.T) {
	if got := walkPrice(100, 0); got != 99.9 {
		t.Errorf("low step = %v, want 99.9", got)
	}
	if got := walkPrice(100, 0.5); got != 100 {
		t.Errorf("mid step = %v, want 100", got)
	}
	if got := walkPrice(0.01, 0); got != 0.01 {
		t.Errorf("floor = %v, want 0.01", got)
	}
}
