package schema

import (
	"errors"
	"math"
	"testing"
)

func TestParsePrice(t *testing.T) {
	cases := []struct {
		in   string
		want Price
	}{
		{"0", 0},
		{"1", 100_000_000},
		{"150.25", 15_025_000_000},
		{"0.00000001", 1},
		{"-2.5", -250_000_000},
		{"+3", 300_000_000},
		{".5", 50_000_000},
		{"42.", 4_200_000_000},
		{"92233720368.54775807", math.MaxInt64},
	}
	for _, c := range cases {
		got, err := ParsePrice(c.in)
		if err != nil {
			t.Fatalf("ParsePrice(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("ParsePrice(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestParsePriceRejects(t *testing.T) {
	cases := []struct {
		in   string
		want error
	}{
		{"", ErrScaledSyntax},
		{".", ErrScaledSyntax},
		{"-", ErrScaledSyntax},
		{"abc", ErrScaledSyntax},
		{"1.2.3", ErrScaledSyntax},
		{"1e5", ErrScaledSyntax},
		{"0.000000001", ErrScaledPrecision},
		{"92233720369", ErrScaledOverflow},
		{"92233720368.54775808", ErrScaledOverflow},
	}
	for _, c := range cases {
		_, err := ParsePrice(c.in)
		if !errors.Is(err, c.want) {
			t.Fatalf("ParsePrice(%q) err = %v, want %v", c.in, err, c.want)
		}
	}
}

func TestFormatScaledRoundTrip(t *testing.T) {
	cases := []struct {
		in   Price
		want string
	}{
		{0, "0"},
		{100_000_000, "1"},
		{15_025_000_000, "150.25"},
		{1, "0.00000001"},
		{-250_000_000, "-2.5"},
		{12_300, "0.000123"},
	}
	for _, c := range cases {
		if got := c.in.String(); got != c.want {
			t.Fatalf("Price(%d).String() = %q, want %q", int64(c.in), got, c.want)
		}
		back, err := ParsePrice(c.in.String())
		if err != nil {
			t.Fatalf("reparse %q: %v", c.in.String(), err)
		}
		if back != c.in {
			t.Fatalf("round-trip %d -> %q -> %d", int64(c.in), c.in.String(), int64(back))
		}
	}
}

func TestFormatScaledMinInt64(t *testing.T) {
	s := Price(math.MinInt64).String()
	if s != "-92233720368.54775808" {
		t.Fatalf("MinInt64 formatted as %q", s)
	}
}
