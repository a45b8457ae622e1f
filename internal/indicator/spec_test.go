package indicator

import "testing"

func TestParseSpec(t *testing.T) {
	cases := []struct {
		in     string
		want   Spec
		name   string
		warmUp int
	}{
		{"SMA_20", Spec{Kind: KindSMA, Period: 20}, "SMA_20", 19},
		{"ema:9", Spec{Kind: KindEMA, Period: 9}, "EMA_9", 8},
		{"RSI", Spec{Kind: KindRSI, Period: 14}, "RSI_14", 14},
		{"MACD", Spec{Kind: KindMACD, Fast: 12, Slow: 26, Signal: 9}, "MACD_12_26_9", 33},
		{"MACD_5_35_5", Spec{Kind: KindMACD, Fast: 5, Slow: 35, Signal: 5}, "MACD_5_35_5", 38},
		{"BB:20:2.5", Spec{Kind: KindBB, Period: 20, K: 2.5}, "BB_20_2.5", 19},
		{"bollinger", Spec{Kind: KindBB, Period: 20, K: 2}, "BB_20_2", 19},
		{"SMMA_7", Spec{Kind: KindSMMA, Period: 7}, "SMMA_7", 6},
	}
	for _, c := range cases {
		got, err := ParseSpec(c.in)
		if err != nil {
			t.Errorf("ParseSpec(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseSpec(%q) = %+v, want %+v", c.in, got, c.want)
		}
		if got.Name() != c.name {
			t.Errorf("%q Name() = %q, want %q", c.in, got.Name(), c.name)
		}
		if got.WarmUp() != c.warmUp {
			t.Errorf("%q WarmUp() = %d, want %d", c.in, got.WarmUp(), c.warmUp)
		}
	}
}

func TestParseSpec_Errors(t *testing.T) {
	for _, in := range []string{"", "SMA", "SMA_x", "SMA_0", "SMA_5_6", "VWAP_10", "BB_20_-1", "MACD_1_2_3_4"} {
		if _, err := ParseSpec(in); err == nil {
			t.Errorf("ParseSpec(%q) should fail", in)
		}
	}
}

func TestParseSpecs(t *testing.T) {
	specs, err := ParseSpecs(" SMA:20, ,RSI:14 ")
	if err != nil {
		t.Fatal(err)
	}
	if len(specs) != 2 || specs[0].Name() != "SMA_20" || specs[1].Name() != "RSI_14" {
		t.Errorf("ParseSpecs = %+v", specs)
	}
	if _, err := ParseSpecs("SMA:20,NOPE:3"); err == nil {
		t.Error("expected error for unknown indicator")
	}
}

func TestCompute_Keys(t *testing.T) {
	prices := walk(40)
	macd, _ := ParseSpec("MACD")
	out := Compute(macd, prices)
	for _, k := range []string{"MACD_12_26_9", "MACD_12_26_9_signal", "MACD_12_26_9_hist"} {
		if _, ok := out[k]; !ok {
			t.Errorf("missing %s", k)
		}
	}
	bb, _ := ParseSpec("BB_20_2")
	out = Compute(bb, prices)
	for _, k := range []string{"BB_20_2_upper", "BB_20_2_middle", "BB_20_2_lower"} {
		if _, ok := out[k]; !ok {
			t.Errorf("missing %s", k)
		}
	}
}

func TestSpec_Stream(t *testing.T) {
	spec, _ := ParseSpec("RSI_5")
	s := spec.Stream()
	if s == nil || s.Name() != "RSI" {
		t.Fatalf("Stream() = %v", s)
	}
	macd, _ := ParseSpec("MACD")
	if macd.Stream() != nil {
		t.Error("MACD has no single-value stream")
	}
}

func TestParseSpec_PeriodBound(t *testing.T) {
	for _, in := range []string{"SMA_100000000000", "EMA_1001", "RSI_5000", "MACD_12_2000_9", "BB_1001_2"} {
		if _, err := ParseSpec(in); err == nil {
			t.Errorf("ParseSpec(%q) should fail", in)
		}
	}
	s, err := ParseSpec("SMA_1000")
	if err != nil || s.Period != MaxPeriod {
		t.Errorf("ParseSpec(SMA_1000) = %+v, %v", s, err)
	}
	if (Spec{Kind: KindSMA, Period: MaxPeriod + 1}).Stream() != nil {
		t.Error("Stream() above MaxPeriod should be nil")
	}
}

func TestSeries_PeriodLongerThanInput(t *testing.T) {
	prices := []float64{1, 2, 3}
	huge := 100_000_000_000
	check := func(name string, out []float64) {
		t.Helper()
		if len(out) != len(prices) {
			t.Fatalf("%s: len = %d, want %d", name, len(out), len(prices))
		}
		if i := FirstDefined(out); i != -1 {
			t.Errorf("%s: defined at %d, want all NaN", name, i)
		}
	}
	check("SMA", SMA(prices, huge))
	check("EMA", EMA(prices, huge))
	check("SMMA", SMMA(prices, huge))
	check("RSI", RSI(prices, huge))
	bb := Bollinger(prices, huge, 2)
	check("BB upper", bb.Upper)
	check("BB middle", bb.Middle)
	m := MACD(prices, 12, huge, 9)
	check("MACD line", m.Line)
	check("MACD signal", m.Signal)
}
