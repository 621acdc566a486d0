package utils

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func TestCalculateLineAmounts_DiscountThenTax(t *testing.T) {
	// 3 x 100.00 with 10% discount and 5% tax:
	// gross 300.00, discount 30.00, net 270.00, tax 13.50, total 283.50
	amounts, err := CalculateLineAmounts(3, dec(t, "100.00"), dec(t, "10"), dec(t, "5"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !amounts.DiscountAmount.Equal(dec(t, "30")) {
		t.Errorf("discount = %s, want 30", amounts.DiscountAmount)
	}
	if !amounts.TaxAmount.Equal(dec(t, "13.5")) {
		t.Errorf("tax = %s, want 13.5", amounts.TaxAmount)
	}
	if !amounts.LineTotal.Equal(dec(t, "283.50")) {
		t.Errorf("total = %s, want 283.50", amounts.LineTotal)
	}
}

func TestCalculateLineAmounts_ZeroPercents(t *testing.T) {
	amounts, err := CalculateLineAmounts(2, dec(t, "49.99"), decimal.Zero, decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !amounts.DiscountAmount.IsZero() || !amounts.TaxAmount.IsZero() {
		t.Errorf("expected zero discount and tax, got %s / %s", amounts.DiscountAmount, amounts.TaxAmount)
	}
	if !amounts.LineTotal.Equal(dec(t, "99.98")) {
		t.Errorf("total = %s, want 99.98", amounts.LineTotal)
	}
}

func TestCalculateLineAmounts_BankersRounding(t *testing.T) {
	// 1 x 10.025 rounds half-to-even down to 10.02
	amounts, err := CalculateLineAmounts(1, dec(t, "10.025"), decimal.Zero, decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !amounts.LineTotal.Equal(dec(t, "10.02")) {
		t.Errorf("total = %s, want 10.02 (half to even)", amounts.LineTotal)
	}

	// 1 x 10.035 rounds half-to-even up to 10.04
	amounts, err = CalculateLineAmounts(1, dec(t, "10.035"), decimal.Zero, decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !amounts.LineTotal.Equal(dec(t, "10.04")) {
		t.Errorf("total = %s, want 10.04 (half to even)", amounts.LineTotal)
	}
}

func TestCalculateLineAmounts_IntermediatesKeepPrecision(t *testing.T) {
	// 7 x 9.99 with 3.33% discount: the discount itself is not a clean 2dp
	// number and must not be rounded before tax is applied.
	amounts, err := CalculateLineAmounts(7, dec(t, "9.99"), dec(t, "3.33"), dec(t, "18"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	gross := dec(t, "69.93")
	discount := gross.Mul(dec(t, "3.33")).Div(dec(t, "100"))
	net := gross.Sub(discount)
	tax := net.Mul(dec(t, "18")).Div(dec(t, "100"))
	want := net.Add(tax).RoundBank(2)

	if !amounts.DiscountAmount.Equal(discount) {
		t.Errorf("discount = %s, want %s", amounts.DiscountAmount, discount)
	}
	if !amounts.LineTotal.Equal(want) {
		t.Errorf("total = %s, want %s", amounts.LineTotal, want)
	}
}

func TestCalculateLineAmounts_RejectsBadInputs(t *testing.T) {
	cases := []struct {
		name     string
		quantity int
		price    string
		discount string
		tax      string
		field    string
	}{
		{"zero quantity", 0, "10", "0", "0", "quantity"},
		{"negative quantity", -3, "10", "0", "0", "quantity"},
		{"negative price", 1, "-0.01", "0", "0", "unit_price"},
		{"negative discount", 1, "10", "-1", "0", "discount_percent"},
		{"discount over 100", 1, "10", "100.01", "0", "discount_percent"},
		{"negative tax", 1, "10", "0", "-5", "tax_percent"},
		{"tax over 100", 1, "10", "0", "101", "tax_percent"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := CalculateLineAmounts(tc.quantity, dec(t, tc.price), dec(t, tc.discount), dec(t, tc.tax))
			if err == nil {
				t.Fatal("expected a validation error")
			}
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %T: %v", err, err)
			}
			if vErr.Field != tc.field {
				t.Errorf("field = %q, want %q", vErr.Field, tc.field)
			}
		})
	}
}

func TestCalculateLineAmounts_FullDiscount(t *testing.T) {
	// 100% discount is in range and yields a zero total even with tax set.
	amounts, err := CalculateLineAmounts(5, dec(t, "20"), dec(t, "100"), dec(t, "18"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !amounts.LineTotal.IsZero() {
		t.Errorf("total = %s, want 0", amounts.LineTotal)
	}
	if !amounts.DiscountAmount.Equal(dec(t, "100")) {
		t.Errorf("discount = %s, want 100", amounts.DiscountAmount)
	}
}
