package utils

import (
	"github.com/shopspring/decimal"
)

var decimalOneHundred = decimal.NewFromInt(100)

// LineAmounts holds the derived amounts for one invoice line.
type LineAmounts struct {
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	LineTotal      decimal.Decimal `json:"line_total"`
}

// CalculateLineAmounts computes discount, tax and total for one invoice line:
//
//	gross    = quantity * unitPrice
//	discount = gross * discountPercent / 100
//	tax      = (gross - discount) * taxPercent / 100
//	total    = gross - discount + tax
//
// Intermediates keep full precision; only the final total is rounded,
// half-to-even to 2 decimal places. Out-of-range inputs are rejected,
// never clamped.
func CalculateLineAmounts(quantity int, unitPrice, discountPercent, taxPercent decimal.Decimal) (*LineAmounts, error) {
	if quantity < 1 {
		return nil, &ValidationError{Field: "quantity", Reason: "must be at least 1"}
	}
	if unitPrice.IsNegative() {
		return nil, &ValidationError{Field: "unit_price", Reason: "must not be negative"}
	}
	if err := validatePercent("discount_percent", discountPercent); err != nil {
		return nil, err
	}
	if err := validatePercent("tax_percent", taxPercent); err != nil {
		return nil, err
	}

	gross := decimal.NewFromInt(int64(quantity)).Mul(unitPrice)
	discountAmount := gross.Mul(discountPercent).Div(decimalOneHundred)
	net := gross.Sub(discountAmount)
	taxAmount := net.Mul(taxPercent).Div(decimalOneHundred)
	lineTotal := net.Add(taxAmount).RoundBank(2)

	return &LineAmounts{
		DiscountAmount: discountAmount,
		TaxAmount:      taxAmount,
		LineTotal:      lineTotal,
	}, nil
}

func validatePercent(field string, percent decimal.Decimal) error {
	if percent.IsNegative() || percent.GreaterThan(decimalOneHundred) {
		return &ValidationError{Field: field, Reason: "must be between 0 and 100"}
	}
	return nil
}
