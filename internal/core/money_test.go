package core

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1.00", true},
		{"1.0", "1.00", true},
		{"23.5", "23.50", true},
		{"1,23", "1.23", true},
		{"0.01", "0.01", true},
		{".5", "0.50", true},
		{"5.", "5.00", true},
		{"0", "0.00", true},
		{"+7", "7.00", true},
		{"1.005", "1.01", true}, // half-up rounding
		{"1.004", "1.00", true},
		{"12,345", "12.35", true},
		{" 2.50 ", "2.50", true},
		{"-1", "", false},
		{"abc", "", false},
		{"23.5abc", "", false},
		{"1.2.3", "", false},
		{"1e3", "", false},
		{"NaN", "", false},
		{"Infinity", "", false},
		{".", "", false},
		{"", "", false},
		{"   ", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got.String() != tc.out {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%q expected ErrInvalidAmount, got %v", tc.in, err)
		}
	}
}

func TestAmountArithmetic(t *testing.T) {
	a := MustParseAmount("10.10")
	b := MustParseAmount("0.20")
	if got := a.Plus(b).String(); got != "10.30" {
		t.Fatalf("plus: got %s", got)
	}
	if got := b.Minus(a).String(); got != "-9.90" {
		t.Fatalf("minus: got %s", got)
	}
	if err := b.Minus(a).Validate(); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected negative amount to be invalid, got %v", err)
	}
	if ZeroAmount().String() != "0.00" {
		t.Fatalf("zero: got %s", ZeroAmount())
	}
	if got := NewAmount(decimal.RequireFromString("2.675")).String(); got != "2.68" {
		t.Fatalf("NewAmount rounding: got %s", got)
	}
}

func TestAmountJSON(t *testing.T) {
	b, err := json.Marshal(MustParseAmount("23.5"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `"23.50"` {
		t.Fatalf("unexpected json %s", b)
	}

	var a Amount
	if err := json.Unmarshal([]byte(`12.345`), &a); err != nil {
		t.Fatalf("unmarshal number: %v", err)
	}
	if a.String() != "12.35" {
		t.Fatalf("unexpected amount %s", a)
	}
	if err := json.Unmarshal([]byte(`"7,5"`), &a); err != nil || a.String() != "7.50" {
		t.Fatalf("unmarshal comma string: %v %s", err, a)
	}
	for _, bad := range []string{`"x"`, `-5`, `"-5"`, `1e3`, `"1e3"`, `""`, `true`} {
		if err := json.Unmarshal([]byte(bad), &a); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("unmarshal %s: expected ErrInvalidAmount, got %v", bad, err)
		}
	}
}

func TestBalanceJSONKeepsSign(t *testing.T) {
	b := BalanceOf(MustParseAmount("100"), MustParseAmount("130.5"))
	raw, err := json.Marshal(b)
	if err != nil || string(raw) != `"-30.50"` {
		t.Fatalf("marshal: %s %v", raw, err)
	}
	var back Balance
	if err := json.Unmarshal(raw, &back); err != nil || back.String() != "-30.50" {
		t.Fatalf("unmarshal: %s %v", back, err)
	}
}
