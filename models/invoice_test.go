package models

import (
	"errors"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/bookshop_backend/utils"
	"github.com/shopspring/decimal"
)

func mustDec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func calculatedItem(t *testing.T, qty int, price, discount, tax string) InvoiceItem {
	t.Helper()
	item := InvoiceItem{
		Quantity:        qty,
		UnitPrice:       mustDec(t, price),
		DiscountPercent: mustDec(t, discount),
		TaxPercent:      mustDec(t, tax),
	}
	if err := item.CalculateAmounts(); err != nil {
		t.Fatalf("calculate amounts: %v", err)
	}
	return item
}

func TestRecomputeInvoiceTotals(t *testing.T) {
	items := []InvoiceItem{
		calculatedItem(t, 3, "100.00", "10", "5"), // 283.50
		calculatedItem(t, 2, "49.99", "0", "0"),   // 99.98
	}
	inv := &Invoice{
		DiscountAmount:  mustDec(t, "20.00"),
		TaxAmount:       mustDec(t, "12.00"),
		ShippingCharges: mustDec(t, "40.00"),
	}

	totals := RecomputeInvoiceTotals(inv, items)

	if !totals.Subtotal.Equal(mustDec(t, "383.48")) {
		t.Errorf("subtotal = %s, want 383.48", totals.Subtotal)
	}
	// 383.48 - 20.00 + 12.00 + 40.00
	if !totals.TotalAmount.Equal(mustDec(t, "415.48")) {
		t.Errorf("total = %s, want 415.48", totals.TotalAmount)
	}
	if !totals.BalanceDue.Equal(totals.TotalAmount) {
		t.Errorf("balance = %s, want full total for an unpaid invoice", totals.BalanceDue)
	}

	// header invariant
	want := totals.Subtotal.Sub(inv.DiscountAmount).Add(inv.TaxAmount).Add(inv.ShippingCharges).RoundBank(2)
	if !totals.TotalAmount.Equal(want) {
		t.Errorf("invariant broken: total = %s, subtotal - discount + tax + shipping = %s", totals.TotalAmount, want)
	}
}

func TestRecomputeInvoiceTotals_Idempotent(t *testing.T) {
	items := []InvoiceItem{
		calculatedItem(t, 7, "9.99", "3.33", "18"),
		calculatedItem(t, 1, "10.025", "0", "0"),
	}
	inv := &Invoice{
		DiscountAmount:  mustDec(t, "5.00"),
		ShippingCharges: mustDec(t, "15.50"),
	}

	first := RecomputeInvoiceTotals(inv, items)
	inv.ApplyTotals(first)
	second := RecomputeInvoiceTotals(inv, items)

	if !first.TotalAmount.Equal(second.TotalAmount) || !first.Subtotal.Equal(second.Subtotal) {
		t.Errorf("recompute is not idempotent: %s/%s then %s/%s",
			first.Subtotal, first.TotalAmount, second.Subtotal, second.TotalAmount)
	}
}

func TestRecomputeInvoiceTotals_EmptyItems(t *testing.T) {
	inv := &Invoice{ShippingCharges: mustDec(t, "25.00")}

	totals := RecomputeInvoiceTotals(inv, nil)

	if !totals.Subtotal.IsZero() {
		t.Errorf("subtotal = %s, want 0", totals.Subtotal)
	}
	if !totals.TotalAmount.Equal(mustDec(t, "25.00")) {
		t.Errorf("total = %s, want shipping only", totals.TotalAmount)
	}
}

func TestRecomputeInvoiceTotals_BalanceReflectsPayments(t *testing.T) {
	items := []InvoiceItem{calculatedItem(t, 1, "500.00", "0", "0")}
	inv := &Invoice{PaidAmount: mustDec(t, "200.00")}

	totals := RecomputeInvoiceTotals(inv, items)

	if !totals.BalanceDue.Equal(mustDec(t, "300.00")) {
		t.Errorf("balance = %s, want 300.00", totals.BalanceDue)
	}
}

func TestInvoiceNumberPrefix(t *testing.T) {
	cases := map[InvoiceType]string{
		InvoiceTypeSales:          "INV-",
		InvoiceTypePurchase:       "PO-",
		InvoiceTypeSalesReturn:    "SR-",
		InvoiceTypePurchaseReturn: "PR-",
	}
	for invoiceType, prefix := range cases {
		if got := invoiceType.NumberPrefix(); got != prefix {
			t.Errorf("%s prefix = %q, want %q", invoiceType, got, prefix)
		}
	}
}

func TestInvoiceStatusIsTerminal(t *testing.T) {
	terminal := map[InvoiceStatus]bool{
		InvoiceStatusDraft:     false,
		InvoiceStatusProforma:  false,
		InvoiceStatusConfirmed: false,
		InvoiceStatusOverdue:   false,
		InvoiceStatusReceived:  false,
		InvoiceStatusCancelled: true,
		InvoiceStatusPaid:      true,
	}
	for status, want := range terminal {
		if got := status.IsTerminal(); got != want {
			t.Errorf("%s terminal = %v, want %v", status, got, want)
		}
	}
}

func TestInvoiceIsOverdue(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	past := now.AddDate(0, 0, -5)
	future := now.AddDate(0, 0, 5)

	base := Invoice{
		Status:      InvoiceStatusConfirmed,
		DueDate:     &past,
		TotalAmount: mustDec(t, "100.00"),
	}

	if !base.IsOverdue(now) {
		t.Error("past due with open balance should be overdue")
	}

	paid := base
	paid.PaidAmount = paid.TotalAmount
	if paid.IsOverdue(now) {
		t.Error("fully paid invoice is never overdue")
	}

	notYetDue := base
	notYetDue.DueDate = &future
	if notYetDue.IsOverdue(now) {
		t.Error("invoice due in the future is not overdue")
	}

	noDueDate := base
	noDueDate.DueDate = nil
	if noDueDate.IsOverdue(now) {
		t.Error("invoice without a due date is never overdue")
	}

	draft := base
	draft.Status = InvoiceStatusDraft
	if draft.IsOverdue(now) {
		t.Error("draft invoices are outside the overdue lifecycle")
	}

	cancelled := base
	cancelled.Status = InvoiceStatusCancelled
	if cancelled.IsOverdue(now) {
		t.Error("cancelled invoices are never overdue")
	}

	alreadyOverdue := base
	alreadyOverdue.Status = InvoiceStatusOverdue
	if !alreadyOverdue.IsOverdue(now) {
		t.Error("an OVERDUE invoice with open balance stays overdue")
	}
}

func TestCheckTransition(t *testing.T) {
	confirmable := []InvoiceStatus{InvoiceStatusDraft, InvoiceStatusProforma}

	if err := checkTransition(InvoiceStatusDraft, confirmable, InvoiceStatusConfirmed); err != nil {
		t.Errorf("DRAFT should confirm: %v", err)
	}
	if err := checkTransition(InvoiceStatusProforma, confirmable, InvoiceStatusConfirmed); err != nil {
		t.Errorf("PROFORMA should confirm: %v", err)
	}

	err := checkTransition(InvoiceStatusCancelled, confirmable, InvoiceStatusConfirmed)
	var transitionErr *utils.IllegalTransitionError
	if !errors.As(err, &transitionErr) {
		t.Fatalf("confirm from CANCELLED = %v, want IllegalTransitionError", err)
	}
	if transitionErr.From != "CANCELLED" || transitionErr.To != "CONFIRMED" {
		t.Errorf("transition error %s -> %s, want CANCELLED -> CONFIRMED", transitionErr.From, transitionErr.To)
	}

	cancellable := []InvoiceStatus{InvoiceStatusDraft, InvoiceStatusProforma, InvoiceStatusConfirmed, InvoiceStatusOverdue}
	if err := checkTransition(InvoiceStatusPaid, cancellable, InvoiceStatusCancelled); err == nil {
		t.Error("PAID invoices must not be cancellable")
	}
}

func TestEnsureEditable(t *testing.T) {
	draft := &Invoice{Status: InvoiceStatusDraft}
	if err := draft.EnsureEditable(); err != nil {
		t.Errorf("DRAFT should be editable: %v", err)
	}

	locked := []InvoiceStatus{
		InvoiceStatusProforma, InvoiceStatusConfirmed, InvoiceStatusCancelled,
		InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusReceived,
	}
	for _, status := range locked {
		inv := &Invoice{Status: status}
		if err := inv.EnsureEditable(); !utils.IsLockedStateError(err) {
			t.Errorf("%s edit = %v, want LockedStateError", status, err)
		}
	}
}

func TestInvoiceDirectionPredicates(t *testing.T) {
	sales := &Invoice{InvoiceType: InvoiceTypeSales}
	if !sales.IsSales() || sales.IsPurchase() {
		t.Error("SALES should be sales-side only")
	}
	purchase := &Invoice{InvoiceType: InvoiceTypePurchase}
	if !purchase.IsPurchase() || purchase.IsSales() {
		t.Error("PURCHASE should be purchase-side only")
	}
	salesReturn := &Invoice{InvoiceType: InvoiceTypeSalesReturn}
	if !salesReturn.IsSales() {
		t.Error("SALES_RETURN belongs to the sales side")
	}
	purchaseReturn := &Invoice{InvoiceType: InvoiceTypePurchaseReturn}
	if !purchaseReturn.IsPurchase() {
		t.Error("PURCHASE_RETURN belongs to the purchase side")
	}
}

func TestInvoiceItemCalculateAmounts(t *testing.T) {
	item := InvoiceItem{
		Quantity:        3,
		UnitPrice:       mustDec(t, "100.00"),
		DiscountPercent: mustDec(t, "10"),
		TaxPercent:      mustDec(t, "5"),
	}
	if err := item.CalculateAmounts(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !item.DiscountAmount.Equal(mustDec(t, "30")) {
		t.Errorf("discount = %s, want 30", item.DiscountAmount)
	}
	if !item.TaxAmount.Equal(mustDec(t, "13.5")) {
		t.Errorf("tax = %s, want 13.5", item.TaxAmount)
	}
	if !item.LineTotal.Equal(mustDec(t, "283.50")) {
		t.Errorf("line total = %s, want 283.50", item.LineTotal)
	}

	bad := InvoiceItem{Quantity: 0, UnitPrice: mustDec(t, "10")}
	if err := bad.CalculateAmounts(); err == nil {
		t.Error("expected an error for zero quantity")
	}
}
