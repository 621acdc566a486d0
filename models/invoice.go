package models

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/bookshop_backend/config"
	"bitbucket.org/mmdatafocus/bookshop_backend/utils"
	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InvoiceItem is one line of an invoice. The derived amount columns are
// written by CalculateAmounts and never accepted from clients directly.
type InvoiceItem struct {
	ID              int             `gorm:"primary_key" json:"id"`
	InvoiceId       int             `gorm:"index;not null" json:"invoice_id"`
	BookId          int             `gorm:"index;not null" json:"book_id"`
	Description     string          `gorm:"size:300" json:"description"`
	Quantity        int             `gorm:"not null" json:"quantity"`
	UnitPrice       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	DiscountPercent decimal.Decimal `gorm:"type:decimal(5,2);default:0" json:"discount_percent"`
	TaxPercent      decimal.Decimal `gorm:"type:decimal(5,2);default:0" json:"tax_percent"`
	DiscountAmount  decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"discount_amount"`
	TaxAmount       decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"tax_amount"`
	LineTotal       decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"line_total"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// CalculateAmounts derives DiscountAmount, TaxAmount and LineTotal from the
// line's quantity, unit price and percentages.
func (item *InvoiceItem) CalculateAmounts() error {
	amounts, err := utils.CalculateLineAmounts(item.Quantity, item.UnitPrice, item.DiscountPercent, item.TaxPercent)
	if err != nil {
		return err
	}
	item.DiscountAmount = amounts.DiscountAmount
	item.TaxAmount = amounts.TaxAmount
	item.LineTotal = amounts.LineTotal
	return nil
}

type Invoice struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BusinessId      string          `gorm:"index;not null;uniqueIndex:idx_invoice_number" json:"business_id"`
	InvoiceNumber   string          `gorm:"size:50;not null;uniqueIndex:idx_invoice_number" json:"invoice_number"`
	SequenceNo      int             `gorm:"not null;default:0" json:"sequence_no"`
	InvoiceType     InvoiceType     `gorm:"type:enum('SALES','PURCHASE','SALES_RETURN','PURCHASE_RETURN');not null" json:"invoice_type"`
	Status          InvoiceStatus   `gorm:"type:enum('DRAFT','PROFORMA','CONFIRMED','CANCELLED','PAID','OVERDUE','RECEIVED');not null;default:DRAFT" json:"status"`
	PartyId         int             `gorm:"index;not null" json:"party_id"`
	Party           *Party          `json:"party"`
	InvoiceDate     time.Time       `gorm:"index;not null" json:"invoice_date"`
	DueDate         *time.Time      `json:"due_date"`
	Subtotal        decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"subtotal"`
	DiscountAmount  decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"discount_amount"`
	TaxAmount       decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"tax_amount"`
	ShippingCharges decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"shipping_charges"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"total_amount"`
	PaidAmount      decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"paid_amount"`
	PaymentMethod   PaymentMethod   `gorm:"type:enum('CASH','CARD','UPI','BANK_TRANSFER','CHEQUE','CREDIT');default:null" json:"payment_method"`
	Notes           string          `gorm:"type:text" json:"notes"`
	Items           []InvoiceItem   `gorm:"foreignKey:InvoiceId" json:"items"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (inv Invoice) GetBusinessId() string {
	return inv.BusinessId
}

func (inv *Invoice) IsSales() bool {
	return inv.InvoiceType == InvoiceTypeSales || inv.InvoiceType == InvoiceTypeSalesReturn
}

func (inv *Invoice) IsPurchase() bool {
	return inv.InvoiceType == InvoiceTypePurchase || inv.InvoiceType == InvoiceTypePurchaseReturn
}

// BalanceDue is the amount still owed on the invoice.
func (inv *Invoice) BalanceDue() decimal.Decimal {
	return inv.TotalAmount.Sub(inv.PaidAmount)
}

// IsOverdue reports whether the invoice has an unpaid balance past its due
// date. Only invoices whose lifecycle has started and not finished qualify;
// draft and terminal documents are never overdue.
func (inv *Invoice) IsOverdue(now time.Time) bool {
	if inv.DueDate == nil || !inv.DueDate.Before(now) {
		return false
	}
	if !inv.BalanceDue().IsPositive() {
		return false
	}
	switch inv.Status {
	case InvoiceStatusConfirmed, InvoiceStatusOverdue, InvoiceStatusReceived:
		return true
	}
	return false
}

// InvoiceTotals are the derived header amounts of an invoice.
type InvoiceTotals struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	BalanceDue  decimal.Decimal `json:"balance_due"`
}

// RecomputeInvoiceTotals derives header totals from the line items plus the
// invoice-level discount, tax and shipping adjustments:
//
//	subtotal = sum of line totals
//	total    = subtotal - discount_amount + tax_amount + shipping_charges,
//	           rounded half-to-even to 2dp
//	balance  = total - paid
//
// DiscountAmount and TaxAmount here are document-level adjustments on top of
// the per-line percentages already folded into each line total. Items must
// already have their amounts calculated. An empty item set yields subtotal 0.
func RecomputeInvoiceTotals(inv *Invoice, items []InvoiceItem) InvoiceTotals {
	totals := InvoiceTotals{Subtotal: decimal.Zero}
	for i := range items {
		totals.Subtotal = totals.Subtotal.Add(items[i].LineTotal)
	}
	totals.TotalAmount = totals.Subtotal.
		Sub(inv.DiscountAmount).
		Add(inv.TaxAmount).
		Add(inv.ShippingCharges).
		RoundBank(2)
	totals.BalanceDue = totals.TotalAmount.Sub(inv.PaidAmount)
	return totals
}

// ApplyTotals writes recomputed totals back onto the invoice header.
func (inv *Invoice) ApplyTotals(totals InvoiceTotals) {
	inv.Subtotal = totals.Subtotal
	inv.TotalAmount = totals.TotalAmount
}

/* status rules */

// checkTransition permits a status change only from one of the listed
// statuses.
func checkTransition(from InvoiceStatus, allowedFrom []InvoiceStatus, to InvoiceStatus) error {
	for _, s := range allowedFrom {
		if from == s {
			return nil
		}
	}
	return &utils.IllegalTransitionError{From: string(from), To: string(to)}
}

// EnsureEditable rejects mutation of any document past DRAFT. Confirmed
// documents are cancelled, never edited or deleted.
func (inv *Invoice) EnsureEditable() error {
	if inv.Status != InvoiceStatusDraft {
		return &utils.LockedStateError{Status: string(inv.Status)}
	}
	return nil
}

/* numbering */

// NumberGenerator produces the next (sequenceNo, invoiceNumber) pair for a
// business and invoice type. It runs inside the caller's transaction so a
// rollback discards nothing durable except a skipped redis counter value.
type NumberGenerator func(ctx context.Context, tx *gorm.DB, businessId string, invoiceType InvoiceType) (int, string, error)

// InvoiceNumberGenerator is settable so deployments can plug their own
// numbering scheme. The default combines a redis counter with the stored
// maximum so the sequence survives a flushed or absent redis.
var InvoiceNumberGenerator NumberGenerator = defaultInvoiceNumber

func defaultInvoiceNumber(ctx context.Context, tx *gorm.DB, businessId string, invoiceType InvoiceType) (int, string, error) {

	var maxSeq int
	err := tx.WithContext(ctx).Model(&Invoice{}).
		Select("COALESCE(MAX(sequence_no), 0)").
		Where("business_id = ? AND invoice_type = ?", businessId, invoiceType).
		Scan(&maxSeq).Error
	if err != nil {
		return 0, "", err
	}

	seq := maxSeq + 1
	counterKey := "invoice_no:" + businessId + ":" + string(invoiceType)
	counter, err := config.GetRedisCounter(ctx, counterKey)
	if err == nil && int(counter) > seq {
		seq = int(counter)
	}

	return seq, fmt.Sprintf("%s%06d", invoiceType.NumberPrefix(), seq), nil
}

func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

/* inputs */

type NewInvoiceItem struct {
	BookId          int             `json:"book_id" validate:"required"`
	Description     string          `json:"description" validate:"max=300"`
	Quantity        int             `json:"quantity" validate:"required,min=1"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
}

type NewInvoice struct {
	InvoiceType     InvoiceType       `json:"invoice_type" validate:"required"`
	InvoiceNumber   *string           `json:"invoice_number"`
	PartyId         int               `json:"party_id" validate:"required"`
	InvoiceDate     time.Time         `json:"invoice_date" validate:"required"`
	DueDate         *time.Time        `json:"due_date"`
	DiscountAmount  decimal.Decimal   `json:"discount_amount"`
	TaxAmount       decimal.Decimal   `json:"tax_amount"`
	ShippingCharges decimal.Decimal   `json:"shipping_charges"`
	PaymentMethod   PaymentMethod     `json:"payment_method"`
	Notes           string            `json:"notes"`
	Items           []*NewInvoiceItem `json:"items" validate:"required,min=1,dive"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewInvoice) validate(ctx context.Context, businessId string, id int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if !input.InvoiceType.Valid() {
		return &utils.ValidationError{Field: "invoice_type", Reason: "unknown invoice type"}
	}
	if input.DiscountAmount.IsNegative() {
		return &utils.ValidationError{Field: "discount_amount", Reason: "must not be negative"}
	}
	if input.TaxAmount.IsNegative() {
		return &utils.ValidationError{Field: "tax_amount", Reason: "must not be negative"}
	}
	if input.ShippingCharges.IsNegative() {
		return &utils.ValidationError{Field: "shipping_charges", Reason: "must not be negative"}
	}
	if input.PaymentMethod != "" && !input.PaymentMethod.Valid() {
		return &utils.ValidationError{Field: "payment_method", Reason: "unknown payment method"}
	}
	if input.DueDate != nil && input.DueDate.Before(input.InvoiceDate) {
		return &utils.ValidationError{Field: "due_date", Reason: "must not be before invoice date"}
	}

	// party must exist and match the document direction
	party, err := utils.FetchModel[Party](ctx, businessId, input.PartyId)
	if err != nil {
		return err
	}
	switch input.InvoiceType {
	case InvoiceTypeSales, InvoiceTypeSalesReturn:
		if party.PartyType != PartyTypeCustomer {
			return &utils.ValidationError{Field: "party_id", Reason: "sales documents require a CUSTOMER party"}
		}
	case InvoiceTypePurchase, InvoiceTypePurchaseReturn:
		if party.PartyType != PartyTypeSupplier {
			return &utils.ValidationError{Field: "party_id", Reason: "purchase documents require a SUPPLIER party"}
		}
	}

	// every referenced book must exist in this business
	for _, item := range input.Items {
		if err := utils.ValidateResourceId[Book](ctx, businessId, item.BookId); err != nil {
			return &utils.ValidationError{Field: "items", Reason: "book " + strconv.Itoa(item.BookId) + " not found"}
		}
	}

	return nil
}

// buildItems derives the persisted item rows from input lines.
func buildItems(input []*NewInvoiceItem) ([]InvoiceItem, error) {
	items := make([]InvoiceItem, 0, len(input))
	for _, in := range input {
		item := InvoiceItem{
			BookId:          in.BookId,
			Description:     in.Description,
			Quantity:        in.Quantity,
			UnitPrice:       in.UnitPrice,
			DiscountPercent: in.DiscountPercent,
			TaxPercent:      in.TaxPercent,
		}
		if err := item.CalculateAmounts(); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

/* operations */

// CreateInvoice creates a DRAFT invoice with derived line and header totals.
// The invoice number comes from the configured generator unless the caller
// supplies an explicit one.
func CreateInvoice(ctx context.Context, input *NewInvoice) (*Invoice, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	items, err := buildItems(input.Items)
	if err != nil {
		return nil, err
	}

	invoice := Invoice{
		BusinessId:      businessId,
		InvoiceType:     input.InvoiceType,
		Status:          InvoiceStatusDraft,
		PartyId:         input.PartyId,
		InvoiceDate:     input.InvoiceDate,
		DueDate:         input.DueDate,
		DiscountAmount:  input.DiscountAmount,
		TaxAmount:       input.TaxAmount,
		ShippingCharges: input.ShippingCharges,
		PaymentMethod:   input.PaymentMethod,
		Notes:           input.Notes,
		Items:           items,
	}
	invoice.ApplyTotals(RecomputeInvoiceTotals(&invoice, items))

	db := config.GetDB()

	// Retry once on a duplicate auto-generated number: a concurrent create
	// may have taken the same sequence before ours committed.
	for attempt := 0; attempt < 2; attempt++ {
		tx := db.Begin()

		if input.InvoiceNumber != nil && *input.InvoiceNumber != "" {
			invoice.InvoiceNumber = *input.InvoiceNumber
		} else {
			seq, number, err := InvoiceNumberGenerator(ctx, tx, businessId, input.InvoiceType)
			if err != nil {
				tx.Rollback()
				return nil, err
			}
			invoice.SequenceNo = seq
			invoice.InvoiceNumber = number
		}

		if err := tx.WithContext(ctx).Create(&invoice).Error; err != nil {
			tx.Rollback()
			if isDuplicateEntry(err) {
				if input.InvoiceNumber != nil && *input.InvoiceNumber != "" {
					return nil, &utils.ValidationError{Field: "invoice_number", Reason: "already in use"}
				}
				continue
			}
			return nil, err
		}

		if err := createHistory(tx.WithContext(ctx), "*CREATE*", invoice.ID, "invoices", nil, &invoice, "created invoice "+invoice.InvoiceNumber); err != nil {
			tx.Rollback()
			return nil, err
		}

		if err := tx.Commit().Error; err != nil {
			return nil, err
		}
		return &invoice, nil
	}

	return nil, errors.New("could not allocate a unique invoice number")
}

// UpdateInvoice replaces the header fields and the full item set of a DRAFT
// invoice. Any other status is locked.
func UpdateInvoice(ctx context.Context, id int, input *NewInvoice) (*Invoice, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	invoice, err := utils.FetchModel[Invoice](ctx, businessId, id, "Items")
	if err != nil {
		return nil, err
	}
	if err := invoice.EnsureEditable(); err != nil {
		return nil, err
	}
	if input.InvoiceType != invoice.InvoiceType {
		return nil, &utils.ValidationError{Field: "invoice_type", Reason: "cannot be changed after creation"}
	}

	items, err := buildItems(input.Items)
	if err != nil {
		return nil, err
	}

	before := *invoice

	db := config.GetDB()
	tx := db.Begin()

	// replace the item set wholesale
	if err := tx.WithContext(ctx).Where("invoice_id = ?", invoice.ID).Delete(&InvoiceItem{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	for i := range items {
		items[i].InvoiceId = invoice.ID
	}
	if err := tx.WithContext(ctx).Create(&items).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	invoice.PartyId = input.PartyId
	invoice.InvoiceDate = input.InvoiceDate
	invoice.DueDate = input.DueDate
	invoice.DiscountAmount = input.DiscountAmount
	invoice.TaxAmount = input.TaxAmount
	invoice.ShippingCharges = input.ShippingCharges
	invoice.PaymentMethod = input.PaymentMethod
	invoice.Notes = input.Notes
	invoice.Items = items
	invoice.ApplyTotals(RecomputeInvoiceTotals(invoice, items))

	err = tx.WithContext(ctx).Model(&invoice).Updates(map[string]interface{}{
		"PartyId":         invoice.PartyId,
		"InvoiceDate":     invoice.InvoiceDate,
		"DueDate":         invoice.DueDate,
		"DiscountAmount":  invoice.DiscountAmount,
		"TaxAmount":       invoice.TaxAmount,
		"ShippingCharges": invoice.ShippingCharges,
		"PaymentMethod":   invoice.PaymentMethod,
		"Notes":           invoice.Notes,
		"Subtotal":        invoice.Subtotal,
		"TotalAmount":     invoice.TotalAmount,
	}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := createHistory(tx.WithContext(ctx), "*UPDATE*", invoice.ID, "invoices", &before, invoice, "updated invoice "+invoice.InvoiceNumber); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := utils.RemoveRedisItem[Invoice](id); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return invoice, nil
}

// DeleteInvoice removes a DRAFT invoice and its items. Non-draft documents
// must be cancelled, never deleted.
func DeleteInvoice(ctx context.Context, id int) (*Invoice, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	invoice, err := utils.FetchModel[Invoice](ctx, businessId, id, "Items")
	if err != nil {
		return nil, err
	}
	if err := invoice.EnsureEditable(); err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()

	if err := tx.WithContext(ctx).Where("invoice_id = ?", invoice.ID).Delete(&InvoiceItem{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.WithContext(ctx).Delete(&invoice).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := createHistory(tx.WithContext(ctx), "*DELETE*", invoice.ID, "invoices", invoice, nil, "deleted invoice "+invoice.InvoiceNumber); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := utils.RemoveRedisItem[Invoice](id); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return invoice, nil
}

func GetInvoice(ctx context.Context, id int) (*Invoice, error) {
	return GetResource[Invoice](ctx, id, "Items", "Party")
}

func GetInvoices(ctx context.Context, invoiceType *InvoiceType, status *InvoiceStatus, partyId *int, startDate, endDate *time.Time) ([]*Invoice, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*Invoice

	dbCtx := db.WithContext(ctx).Preload("Items").Where("business_id = ?", businessId)
	if invoiceType != nil && *invoiceType != "" {
		dbCtx = dbCtx.Where("invoice_type = ?", *invoiceType)
	}
	if status != nil && *status != "" {
		dbCtx = dbCtx.Where("status = ?", *status)
	}
	if partyId != nil && *partyId != 0 {
		dbCtx = dbCtx.Where("party_id = ?", *partyId)
	}
	if startDate != nil {
		dbCtx = dbCtx.Where("invoice_date >= ?", *startDate)
	}
	if endDate != nil {
		dbCtx = dbCtx.Where("invoice_date <= ?", *endDate)
	}
	if err := dbCtx.Order("invoice_date DESC, id DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// transitionInvoice moves an invoice between statuses after checking the
// transition is permitted, writing a history row in the same transaction.
func transitionInvoice(ctx context.Context, id int, allowedFrom []InvoiceStatus, to InvoiceStatus, description string) (*Invoice, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	invoice, err := utils.FetchModel[Invoice](ctx, businessId, id, "Items")
	if err != nil {
		return nil, err
	}

	if err := checkTransition(invoice.Status, allowedFrom, to); err != nil {
		return nil, err
	}

	before := *invoice

	db := config.GetDB()
	tx := db.Begin()

	err = tx.WithContext(ctx).Model(&invoice).
		UpdateColumn("Status", to).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	invoice.Status = to

	if err := createHistory(tx.WithContext(ctx), "*STATUS*", invoice.ID, "invoices", &before, invoice, description+" "+invoice.InvoiceNumber); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := utils.RemoveRedisItem[Invoice](id); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return invoice, nil
}

// MarkInvoiceProforma issues a draft as a proforma document.
func MarkInvoiceProforma(ctx context.Context, id int) (*Invoice, error) {
	return transitionInvoice(ctx, id,
		[]InvoiceStatus{InvoiceStatusDraft},
		InvoiceStatusProforma, "marked proforma")
}

// ConfirmInvoice finalizes a draft or proforma invoice. After this the
// document is immutable except for payments and stock posting.
func ConfirmInvoice(ctx context.Context, id int) (*Invoice, error) {
	return transitionInvoice(ctx, id,
		[]InvoiceStatus{InvoiceStatusDraft, InvoiceStatusProforma},
		InvoiceStatusConfirmed, "confirmed invoice")
}

// CancelInvoice voids a document that has not been paid or posted.
func CancelInvoice(ctx context.Context, id int) (*Invoice, error) {
	return transitionInvoice(ctx, id,
		[]InvoiceStatus{InvoiceStatusDraft, InvoiceStatusProforma, InvoiceStatusConfirmed, InvoiceStatusOverdue},
		InvoiceStatusCancelled, "cancelled invoice")
}

// RecordInvoicePayment applies a payment against an outstanding invoice.
// Overpayment is rejected; when the balance reaches zero the invoice
// flips to PAID.
func RecordInvoicePayment(ctx context.Context, id int, amount decimal.Decimal, method PaymentMethod) (*Invoice, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if !amount.IsPositive() {
		return nil, &utils.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if method != "" && !method.Valid() {
		return nil, &utils.ValidationError{Field: "payment_method", Reason: "unknown payment method"}
	}

	// best-effort redis lock; DB row lock below is authoritative
	lock, err := utils.ObtainDocumentLock(ctx, "invoice_payment", strconv.Itoa(id), "models", "RecordInvoicePayment")
	if err != nil {
		return nil, err
	}
	if lock != nil {
		defer lock.Release(ctx)
	}

	db := config.GetDB()
	tx := db.Begin()

	var invoice Invoice
	err = tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ?", businessId).
		First(&invoice, id).Error
	if err != nil {
		tx.Rollback()
		return nil, utils.ErrorRecordNotFound
	}

	switch invoice.Status {
	case InvoiceStatusConfirmed, InvoiceStatusOverdue, InvoiceStatusReceived:
	default:
		return nil, rollbackWith(tx, &utils.InvalidOperationError{
			Operation: "record payment",
			Reason:    "invoice is " + string(invoice.Status) + ", expected CONFIRMED, OVERDUE or RECEIVED",
		})
	}

	newPaid := invoice.PaidAmount.Add(amount)
	if newPaid.GreaterThan(invoice.TotalAmount) {
		return nil, rollbackWith(tx, &utils.ValidationError{
			Field:  "amount",
			Reason: "payment exceeds balance due of " + invoice.BalanceDue().StringFixed(2),
		})
	}

	before := invoice
	updates := map[string]interface{}{"PaidAmount": newPaid}
	if method != "" {
		updates["PaymentMethod"] = method
	}
	if newPaid.Equal(invoice.TotalAmount) {
		updates["Status"] = InvoiceStatusPaid
	}

	if err := tx.WithContext(ctx).Model(&invoice).Updates(updates).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	invoice.PaidAmount = newPaid
	if method != "" {
		invoice.PaymentMethod = method
	}
	if newPaid.Equal(invoice.TotalAmount) {
		invoice.Status = InvoiceStatusPaid
	}

	if err := createHistory(tx.WithContext(ctx), "*PAYMENT*", invoice.ID, "invoices", &before, &invoice,
		"recorded payment of "+amount.StringFixed(2)+" on "+invoice.InvoiceNumber); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := utils.RemoveRedisItem[Invoice](id); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return &invoice, nil
}

func rollbackWith(tx *gorm.DB, err error) error {
	tx.Rollback()
	return err
}
