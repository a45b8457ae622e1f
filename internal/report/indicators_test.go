package report

import (
	"strings"
	"testing"
)

func TestReadCloses(t *testing.T) {
	in := "date,close\n2024-01-02,10\n2024-01-03, 11.5\n2024-01-04,12\n"
	got, err := ReadCloses(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{10, 11.5, 12}
	if len(got) != len(want) {
		t.Fatalf("closes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("closes[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	if _, err := ReadCloses(strings.NewReader("close\n10\nabc\n")); err == nil {
		t.Fatal("expected error for a non-numeric close after the header")
	}
	if _, err := ReadCloses(strings.NewReader("close\n")); err == nil {
		t.Fatal("expected error for no closes")
	}
}

func TestIndicatorMarkdown(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}
	out, err := IndicatorMarkdown("TEST", closes, "SMA_3", 0)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"# TEST", "SMA_3", "5 closes, showing the last 5", "2.0000", "4.0000", "-"} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown missing %q:\n%s", want, out)
		}
	}

	out, err = IndicatorMarkdown("TEST", closes, "SMA_3", 2)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "2.0000") || !strings.Contains(out, "showing the last 2") {
		t.Errorf("last 2 rows:\n%s", out)
	}

	if _, err := IndicatorMarkdown("TEST", closes, "NOPE_3", 0); err == nil {
		t.Fatal("expected error for unknown indicator")
	}
}
