package workflow

import (
	"context"
	"sort"
	"strconv"

	"bitbucket.org/mmdatafocus/bookshop_backend/config"
	"bitbucket.org/mmdatafocus/bookshop_backend/models"
	"bitbucket.org/mmdatafocus/bookshop_backend/utils"
	"gorm.io/gorm/clause"
)

// planDelivery computes the stock movement for every line before any book is
// written, so the reported old quantities are the pre-delivery values. Unless
// overselling is allowed, a shortfall on any line rejects the whole document.
func planDelivery(items []models.InvoiceItem, books map[int]*models.Book, oversell bool) ([]BookUpdate, error) {
	updates := make([]BookUpdate, 0, len(items))
	for _, item := range items {
		book := books[item.BookId]
		if !oversell && !book.IsAvailable(item.Quantity) {
			return nil, &utils.ValidationError{
				Field:  "items",
				Reason: "insufficient stock for " + book.Title + ": need " + strconv.Itoa(item.Quantity) + ", have " + strconv.Itoa(book.QuantityOnHand),
			}
		}
		updates = append(updates, BookUpdate{
			BookId:      book.ID,
			Title:       book.Title,
			OldQuantity: book.QuantityOnHand,
			NewQuantity: book.QuantityOnHand - item.Quantity,
			OldCost:     book.CostPrice.String(),
			NewCost:     book.CostPrice.String(),
		})
	}
	return updates, nil
}

// DeliverSalesInvoice posts a confirmed sales invoice out of stock: every
// line's quantity is deducted from its book. Average cost is unchanged by
// deliveries. Availability is checked across all lines before any deduction
// unless overselling is enabled, in which case stock may go negative.
func DeliverSalesInvoice(ctx context.Context, invoiceId int) (*models.Invoice, []BookUpdate, error) {

	ctx, span := tracer.Start(ctx, "DeliverSalesInvoice")
	defer span.End()

	logger := config.GetLogger()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, nil, utils.ErrorRecordNotFound
	}

	lock, err := utils.ObtainDocumentLock(ctx, "delivery", strconv.Itoa(invoiceId), "deliverWorkflow.go", "DeliverSalesInvoice")
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
		config.LogError(logger, "deliverWorkflow.go", "DeliverSalesInvoice", "AcquireInventoryPostingLock", businessId, err)
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

	if err := checkPostingGate(&invoice, models.InvoiceTypeSales, "deliver stock"); err != nil {
		tx.Rollback()
		return nil, nil, err
	}
	if len(invoice.Items) == 0 {
		tx.Rollback()
		return nil, nil, &utils.ConsistencyError{Reason: "sales invoice has no items to deliver"}
	}

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

	// every line is planned before any stock moves
	updates, err := planDelivery(invoice.Items, books, config.AllowOversell())
	if err != nil {
		tx.Rollback()
		return nil, nil, err
	}

	for _, update := range updates {
		err = tx.WithContext(ctx).Model(books[update.BookId]).
			UpdateColumn("QuantityOnHand", update.NewQuantity).Error
		if err != nil {
			config.LogError(logger, "deliverWorkflow.go", "DeliverSalesInvoice", "UpdateBook", update.BookId, err)
			tx.Rollback()
			return nil, nil, err
		}
	}

	// delivery does not settle the invoice; payment does
	if err := models.CreateWorkflowHistory(tx.WithContext(ctx), "*DELIVER*", invoice.ID, "invoices", nil, &invoice,
		"delivered "+strconv.Itoa(len(updates))+" line(s) on "+invoice.InvoiceNumber); err != nil {
		tx.Rollback()
		return nil, nil, err
	}

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
