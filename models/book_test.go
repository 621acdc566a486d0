package models

import (
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/bookshop_backend/utils"
	"github.com/shopspring/decimal"
)

// NOTE: These tests are intentionally DB-free. They validate the valuation
// arithmetic and stock predicates in isolation; receipt and delivery posting
// against MySQL is covered by the workflow tools in a full environment.

func TestWeightedAverageReceive_IntoEmptyStock(t *testing.T) {
	book := &Book{QuantityOnHand: 0, CostPrice: decimal.Zero}

	newQty, newCost, err := book.WeightedAverageReceive(10, decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if newQty != 10 {
		t.Errorf("quantity = %d, want 10", newQty)
	}
	if !newCost.Equal(decimal.NewFromInt(100)) {
		t.Errorf("cost = %s, want 100", newCost)
	}
}

func TestWeightedAverageReceive_BlendsCost(t *testing.T) {
	// 10 on hand @ 100, receive 10 @ 200 -> 20 @ 150
	book := &Book{QuantityOnHand: 10, CostPrice: decimal.NewFromInt(100)}

	newQty, newCost, err := book.WeightedAverageReceive(10, decimal.NewFromInt(200))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if newQty != 20 {
		t.Errorf("quantity = %d, want 20", newQty)
	}
	if !newCost.Equal(decimal.NewFromInt(150)) {
		t.Errorf("cost = %s, want 150", newCost)
	}
}

func TestWeightedAverageReceive_KeepsFullPrecision(t *testing.T) {
	// 3 @ 10 plus 1 @ 11 averages to 10.25; no rounding to currency precision
	book := &Book{QuantityOnHand: 3, CostPrice: decimal.NewFromInt(10)}

	_, newCost, err := book.WeightedAverageReceive(1, decimal.NewFromInt(11))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !newCost.Equal(decimal.NewFromFloat(10.25)) {
		t.Errorf("cost = %s, want 10.25", newCost)
	}
}

func TestWeightedAverageReceive_ZeroCostStockKeepsAveraging(t *testing.T) {
	// Stock on hand with a genuine zero cost still weights against incoming:
	// 5 @ 0 plus 5 @ 100 -> 10 @ 50. Only the empty-stock case short-circuits.
	book := &Book{QuantityOnHand: 5, CostPrice: decimal.Zero}

	newQty, newCost, err := book.WeightedAverageReceive(5, decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if newQty != 10 {
		t.Errorf("quantity = %d, want 10", newQty)
	}
	if !newCost.Equal(decimal.NewFromInt(50)) {
		t.Errorf("cost = %s, want 50", newCost)
	}
}

func TestWeightedAverageReceive_DoesNotMutateBook(t *testing.T) {
	book := &Book{QuantityOnHand: 10, CostPrice: decimal.NewFromInt(100)}

	_, _, err := book.WeightedAverageReceive(10, decimal.NewFromInt(200))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if book.QuantityOnHand != 10 || !book.CostPrice.Equal(decimal.NewFromInt(100)) {
		t.Errorf("book mutated: qty=%d cost=%s", book.QuantityOnHand, book.CostPrice)
	}
}

func TestWeightedAverageReceive_RejectsBadInputs(t *testing.T) {
	book := &Book{QuantityOnHand: 10, CostPrice: decimal.NewFromInt(100)}

	_, _, err := book.WeightedAverageReceive(0, decimal.NewFromInt(100))
	var vErr *utils.ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "quantity" {
		t.Errorf("zero quantity: expected ValidationError on quantity, got %v", err)
	}

	_, _, err = book.WeightedAverageReceive(-5, decimal.NewFromInt(100))
	if !errors.As(err, &vErr) || vErr.Field != "quantity" {
		t.Errorf("negative quantity: expected ValidationError on quantity, got %v", err)
	}

	_, _, err = book.WeightedAverageReceive(5, decimal.NewFromInt(-1))
	if !errors.As(err, &vErr) || vErr.Field != "unit_cost" {
		t.Errorf("negative cost: expected ValidationError on unit_cost, got %v", err)
	}
}

func TestBookStockPredicates(t *testing.T) {
	book := &Book{
		QuantityOnHand: 5,
		ReorderLevel:   5,
		CostPrice:      decimal.NewFromFloat(123.45),
	}

	if !book.IsLowStock() {
		t.Error("on-hand equal to reorder level should be low stock")
	}
	book.QuantityOnHand = 6
	if book.IsLowStock() {
		t.Error("on-hand above reorder level should not be low stock")
	}

	if !book.IsAvailable(6) {
		t.Error("requesting exactly on-hand quantity should be available")
	}
	if book.IsAvailable(7) {
		t.Error("requesting more than on-hand should not be available")
	}
	if book.IsAvailable(0) || book.IsAvailable(-1) {
		t.Error("non-positive requests are never available")
	}

	want := decimal.NewFromFloat(123.45).Mul(decimal.NewFromInt(6))
	if !book.TotalStockValue().Equal(want) {
		t.Errorf("stock value = %s, want %s", book.TotalStockValue(), want)
	}
}
