package workflow

import (
	"errors"
	"sort"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/bookshop_backend/models"
	"bitbucket.org/mmdatafocus/bookshop_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/utils/tests"
)

// NOTE: These tests are intentionally DB-free. They validate the intended
// posting semantics:
// - every line is validated before any book is written (all-or-nothing)
// - books are locked in a stable order regardless of line order
// Full DB integration tests should be added in an environment that can run MySQL + Redis.

// fakePoster mirrors the receive loop: compute all updates first, apply
// only if every line validated.
type fakePoster struct {
	books map[int]*models.Book
}

func (p *fakePoster) receive(lines []models.InvoiceItem) error {
	type pending struct {
		book    *models.Book
		newQty  int
		newCost decimal.Decimal
	}
	var updates []pending
	for _, line := range lines {
		book := p.books[line.BookId]
		newQty, newCost, err := book.WeightedAverageReceive(line.Quantity, line.UnitPrice)
		if err != nil {
			return err
		}
		updates = append(updates, pending{book, newQty, newCost})
	}
	for _, u := range updates {
		u.book.QuantityOnHand = u.newQty
		u.book.CostPrice = u.newCost
	}
	return nil
}

func TestReceiveSemantics_AllOrNothing(t *testing.T) {
	p := &fakePoster{books: map[int]*models.Book{
		1: {ID: 1, QuantityOnHand: 10, CostPrice: decimal.NewFromInt(100)},
		2: {ID: 2, QuantityOnHand: 5, CostPrice: decimal.NewFromInt(50)},
	}}

	// second line is invalid; the first book must stay untouched
	err := p.receive([]models.InvoiceItem{
		{BookId: 1, Quantity: 10, UnitPrice: decimal.NewFromInt(200)},
		{BookId: 2, Quantity: 0, UnitPrice: decimal.NewFromInt(60)},
	})
	if err == nil {
		t.Fatal("expected validation failure on the zero-quantity line")
	}
	if p.books[1].QuantityOnHand != 10 || !p.books[1].CostPrice.Equal(decimal.NewFromInt(100)) {
		t.Errorf("book 1 was mutated despite a failing sibling line: qty=%d cost=%s",
			p.books[1].QuantityOnHand, p.books[1].CostPrice)
	}

	// with the bad line fixed the whole document posts
	err = p.receive([]models.InvoiceItem{
		{BookId: 1, Quantity: 10, UnitPrice: decimal.NewFromInt(200)},
		{BookId: 2, Quantity: 5, UnitPrice: decimal.NewFromInt(60)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.books[1].QuantityOnHand != 20 || !p.books[1].CostPrice.Equal(decimal.NewFromInt(150)) {
		t.Errorf("book 1 = %d @ %s, want 20 @ 150", p.books[1].QuantityOnHand, p.books[1].CostPrice)
	}
	if p.books[2].QuantityOnHand != 10 || !p.books[2].CostPrice.Equal(decimal.NewFromInt(55)) {
		t.Errorf("book 2 = %d @ %s, want 10 @ 55", p.books[2].QuantityOnHand, p.books[2].CostPrice)
	}
}

func TestLockOrdering_IsStable(t *testing.T) {
	// posting locks books by ascending id no matter how lines are ordered
	lines := []models.InvoiceItem{
		{BookId: 9}, {BookId: 2}, {BookId: 7}, {BookId: 1},
	}
	ids := make([]int, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.BookId)
	}
	sort.Ints(ids)

	want := []int{1, 2, 7, 9}
	for i, id := range ids {
		if id != want[i] {
			t.Fatalf("lock order %v, want %v", ids, want)
		}
	}
}

func TestPostingGate(t *testing.T) {
	var opErr *utils.InvalidOperationError

	draft := &models.Invoice{InvoiceType: models.InvoiceTypePurchase, Status: models.InvoiceStatusDraft}
	err := checkPostingGate(draft, models.InvoiceTypePurchase, "receive stock")
	if !errors.As(err, &opErr) {
		t.Fatalf("receive on DRAFT = %v, want InvalidOperationError", err)
	}

	sales := &models.Invoice{InvoiceType: models.InvoiceTypeSales, Status: models.InvoiceStatusConfirmed}
	if err := checkPostingGate(sales, models.InvoiceTypePurchase, "receive stock"); !errors.As(err, &opErr) {
		t.Errorf("receive on SALES = %v, want InvalidOperationError", err)
	}

	confirmed := &models.Invoice{InvoiceType: models.InvoiceTypePurchase, Status: models.InvoiceStatusConfirmed}
	if err := checkPostingGate(confirmed, models.InvoiceTypePurchase, "receive stock"); err != nil {
		t.Errorf("confirmed purchase should post: %v", err)
	}
	if err := checkPostingGate(confirmed, models.InvoiceTypeSales, "deliver stock"); err == nil {
		t.Error("deliver must reject purchase invoices")
	}

	paid := &models.Invoice{InvoiceType: models.InvoiceTypePurchase, Status: models.InvoiceStatusPaid}
	if err := checkPostingGate(paid, models.InvoiceTypePurchase, "receive stock"); err == nil {
		t.Error("a settled invoice must not be received again")
	}
}

func TestPlanDelivery(t *testing.T) {
	books := map[int]*models.Book{
		1: {ID: 1, Title: "Hamlet", QuantityOnHand: 10, CostPrice: decimal.NewFromInt(80)},
		2: {ID: 2, Title: "Ulysses", QuantityOnHand: 3, CostPrice: decimal.NewFromInt(120)},
	}

	updates, err := planDelivery([]models.InvoiceItem{
		{BookId: 1, Quantity: 4},
		{BookId: 2, Quantity: 3},
	}, books, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updates[0].OldQuantity != 10 || updates[0].NewQuantity != 6 {
		t.Errorf("book 1 movement %d -> %d, want 10 -> 6", updates[0].OldQuantity, updates[0].NewQuantity)
	}
	if updates[1].OldQuantity != 3 || updates[1].NewQuantity != 0 {
		t.Errorf("book 2 movement %d -> %d, want 3 -> 0", updates[1].OldQuantity, updates[1].NewQuantity)
	}
	// average cost never moves on delivery
	if updates[0].OldCost != updates[0].NewCost {
		t.Errorf("delivery changed cost %s -> %s", updates[0].OldCost, updates[0].NewCost)
	}

	// one short line rejects the whole document
	_, err = planDelivery([]models.InvoiceItem{
		{BookId: 1, Quantity: 4},
		{BookId: 2, Quantity: 5},
	}, books, false)
	if !utils.IsValidationError(err) {
		t.Fatalf("shortfall = %v, want ValidationError", err)
	}

	// with overselling allowed the plan goes negative instead of failing
	updates, err = planDelivery([]models.InvoiceItem{{BookId: 2, Quantity: 5}}, books, true)
	if err != nil {
		t.Fatalf("oversell plan: %v", err)
	}
	if updates[0].NewQuantity != -2 {
		t.Errorf("oversold quantity = %d, want -2", updates[0].NewQuantity)
	}
}

func TestLockedReadBuildsForUpdate(t *testing.T) {
	// posting and payment reads hold row locks until commit; the locking
	// clause is what makes the SELECT carry FOR UPDATE
	db, err := gorm.Open(tests.DummyDialector{}, &gorm.Config{DryRun: true})
	if err != nil {
		t.Fatalf("open dry-run db: %v", err)
	}

	var book models.Book
	stmt := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ?", "b-1").
		First(&book, 7).Statement
	if sql := stmt.SQL.String(); !strings.HasSuffix(sql, "FOR UPDATE") {
		t.Errorf("locked read built %q, want a FOR UPDATE suffix", sql)
	}

	var invoice models.Invoice
	stmt = db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ?", "b-1").
		First(&invoice, 7).Statement
	if sql := stmt.SQL.String(); !strings.HasSuffix(sql, "FOR UPDATE") {
		t.Errorf("locked read built %q, want a FOR UPDATE suffix", sql)
	}
}
