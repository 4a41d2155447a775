package core

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in      any
		out     int64
		present bool
		ok      bool
	}{
		{nil, 0, false, true},
		{3000, 300000, true, true},
		{int32(12), 1200, true, true},
		{int64(-5), -500, true, true},
		{1300.5, 130050, true, true},
		{"1.23", 123, true, true},
		{"1,23", 123, true, true},
		{" 2.50 ", 250, true, true},
		{"1.005", 101, true, true}, // half away from zero
		{"-1.005", -101, true, true},
		{[]byte("42"), 4200, true, true},
		{decimal.RequireFromString("0.01"), 1, true, true},
		{"abc", 0, true, false},
		{"", 0, true, false},
		{"1.2.3", 0, true, false},
		{math.NaN(), 0, true, false},
		{math.Inf(1), 0, true, false},
		{true, 0, true, false},
		{"1e30", 0, true, false},
	}
	for _, tc := range cases {
		got, present, err := ParseAmount(tc.in)
		if present != tc.present {
			t.Fatalf("%v: present=%v, want %v", tc.in, present, tc.present)
		}
		if tc.ok {
			if err != nil || got.Cents != tc.out {
				t.Fatalf("%v expected %d, got %d (err=%v)", tc.in, tc.out, got.Cents, err)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%v expected ErrInvalidAmount, got %v", tc.in, err)
		}
	}
}

func TestMoneyArithmeticAndFormat(t *testing.T) {
	salary := Cents(300000)
	spent := Cents(170000)
	if got := salary.Sub(spent); got.Cents != 130000 || got.String() != "1300.00" {
		t.Fatalf("unexpected saving %v", got)
	}
	deficit := Cents(100000).Sub(Cents(150000))
	if !deficit.IsNegative() || deficit.String() != "-500.00" {
		t.Fatalf("unexpected deficit %v", deficit)
	}
	if got := deficit.Add(Cents(50000)); got.Cents != 0 {
		t.Fatalf("expected zero, got %v", got)
	}
	if f := Cents(-1250).Float64(); f != -12.5 {
		t.Fatalf("unexpected float %v", f)
	}
}
