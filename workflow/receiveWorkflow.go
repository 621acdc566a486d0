package workflow

import (
	"context"
	"sort"
	"strconv"

	"bitbucket.org/mmdatafocus/bookshop_backend/config"
	"bitbucket.org/mmdatafocus/bookshop_backend/models"
	"bitbucket.org/mmdatafocus/bookshop_backend/utils"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var tracer = otel.Tracer("bitbucket.org/mmdatafocus/bookshop_backend/workflow")

// BookUpdate reports one book's stock movement from a posting run.
type BookUpdate struct {
	BookId      int    `json:"book_id"`
	Title       string `json:"title"`
	OldQuantity int    `json:"old_quantity"`
	NewQuantity int    `json:"new_quantity"`
	OldCost     string `json:"old_cost"`
	NewCost     string `json:"new_cost"`
}

// checkPostingGate rejects stock posting unless the invoice is the wanted
// document type and has been confirmed.
func checkPostingGate(invoice *models.Invoice, wantType models.InvoiceType, operation string) error {
	if invoice.InvoiceType != wantType {
		return &utils.InvalidOperationError{
			Operation: operation,
			Reason:    "invoice is " + string(invoice.InvoiceType) + ", expected " + string(wantType),
		}
	}
	if invoice.Status != models.InvoiceStatusConfirmed {
		return &utils.InvalidOperationError{
			Operation: operation,
			Reason:    "invoice is " + string(invoice.Status) + ", expected CONFIRMED",
		}
	}
	return nil
}

// ReceivePurchaseInvoice posts a confirmed purchase invoice into stock:
// every line's quantity is added to its book and the book's average cost is
// re-weighted by the line's unit price. All lines are validated before any
// book is written; a failure on any line leaves every book untouched.
func ReceivePurchaseInvoice(ctx context.Context, invoiceId int) (*models.Invoice, []BookUpdate, error) {

	ctx, span := tracer.Start(ctx, "ReceivePurchaseInvoice")
	defer span.End()

	logger := config.GetLogger()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, nil, utils.ErrorRecordNotFound
	}

	// best-effort redis lock; the advisory lock below is authoritative
	lock, err := utils.ObtainDocumentLock(ctx, "receipt", strconv.Itoa(invoiceId), "receiveWorkflow.go", "ReceivePurchaseInvoice")
	if err != nil {
		return nil, nil, err
	}
	if lock != nil {
		defer lock.Release(ctx)
	}

	db := config.GetDB()
	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := AcquireInventoryPostingLock(tx, businessId); err != nil {
		config.LogError(logger, "receiveWorkflow.go", "ReceivePurchaseInvoice", "AcquireInventoryPostingLock", businessId, err)
		tx.Rollback()
		return nil, nil, err
	}
	defer ReleaseInventoryPostingLock(tx, businessId)

	var invoice models.Invoice
	err = tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Items").
		Where("business_id = ?", businessId).
		First(&invoice, invoiceId).Error
	if err != nil {
		tx.Rollback()
		return nil, nil, utils.ErrorRecordNotFound
	}

	if err := checkPostingGate(&invoice, models.InvoiceTypePurchase, "receive stock"); err != nil {
		tx.Rollback()
		return nil, nil, err
	}
	if len(invoice.Items) == 0 {
		tx.Rollback()
		return nil, nil, &utils.ConsistencyError{Reason: "purchase invoice has no items to receive"}
	}

	// a book may appear on at most one line
	seen := make(map[int]bool, len(invoice.Items))
	bookIds := make([]int, 0, len(invoice.Items))
	for _, item := range invoice.Items {
		if seen[item.BookId] {
			tx.Rollback()
			return nil, nil, &utils.ConsistencyError{Reason: "book " + strconv.Itoa(item.BookId) + " appears on more than one line"}
		}
		seen[item.BookId] = true
		bookIds = append(bookIds, item.BookId)
	}
	// lock books in a stable order to avoid deadlocks between posters
	sort.Ints(bookIds)

	books := make(map[int]*models.Book, len(bookIds))
	for _, bookId := range bookIds {
		var book models.Book
		err = tx.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("business_id = ?", businessId).
			First(&book, bookId).Error
		if err != nil {
			tx.Rollback()
			return nil, nil, &utils.ConsistencyError{Reason: "book " + strconv.Itoa(bookId) + " not found"}
		}
		books[bookId] = &book
	}

	// validate every line before applying any
	type pendingUpdate struct {
		book    *models.Book
		newQty  int
		newCost decimal.Decimal
		update  BookUpdate
	}
	pending := make([]pendingUpdate, 0, len(invoice.Items))
	for _, item := range invoice.Items {
		book := books[item.BookId]
		newQty, newCost, err := book.WeightedAverageReceive(item.Quantity, item.UnitPrice)
		if err != nil {
			tx.Rollback()
			return nil, nil, err
		}
		pending = append(pending, pendingUpdate{
			book:    book,
			newQty:  newQty,
			newCost: newCost,
			update: BookUpdate{
				BookId:      book.ID,
				Title:       book.Title,
				OldQuantity: book.QuantityOnHand,
				NewQuantity: newQty,
				OldCost:     book.CostPrice.String(),
				NewCost:     newCost.String(),
			},
		})
	}

	updates := make([]BookUpdate, 0, len(pending))
	for _, p := range pending {
		err = tx.WithContext(ctx).Model(p.book).Updates(map[string]interface{}{
			"QuantityOnHand": p.newQty,
			"CostPrice":      p.newCost,
		}).Error
		if err != nil {
			config.LogError(logger, "receiveWorkflow.go", "ReceivePurchaseInvoice", "UpdateBook", p.book.ID, err)
			tx.Rollback()
			return nil, nil, err
		}
		updates = append(updates, p.update)
	}

	newStatus := models.InvoiceStatusPaid
	if config.SeparateReceivedStatus() {
		newStatus = models.InvoiceStatusReceived
	}
	before := invoice
	err = tx.WithContext(ctx).Model(&invoice).
		UpdateColumn("Status", newStatus).Error
	if err != nil {
		tx.Rollback()
		return nil, nil, err
	}
	invoice.Status = newStatus

	if err := createReceiptHistory(tx.WithContext(ctx), &before, &invoice, updates); err != nil {
		tx.Rollback()
		return nil, nil, err
	}

	// clear stale cache entries for every touched record
	for _, bookId := range bookIds {
		if err := utils.RemoveRedisItem[models.Book](bookId); err != nil {
			tx.Rollback()
			return nil, nil, err
		}
	}
	if err := utils.RemoveRedisItem[models.Invoice](invoiceId); err != nil {
		tx.Rollback()
		return nil, nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, nil, err
	}

	return &invoice, updates, nil
}

func createReceiptHistory(tx *gorm.DB, before, after *models.Invoice, updates []BookUpdate) error {
	return models.CreateWorkflowHistory(tx, "*RECEIVE*", after.ID, "invoices", before, after,
		"received "+strconv.Itoa(len(updates))+" line(s) on "+after.InvoiceNumber)
}
