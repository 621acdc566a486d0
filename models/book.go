package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/bookshop_backend/config"
	"bitbucket.org/mmdatafocus/bookshop_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"
)

// Book carries both catalogue data and the inventory valuation state.
// QuantityOnHand and CostPrice together define the stock value; CostPrice
// is a weighted average updated on every goods receipt.
type Book struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BusinessId      string          `gorm:"index;not null;uniqueIndex:idx_book_isbn" json:"business_id"`
	Title           string          `gorm:"index;size:300;not null" json:"title"`
	Subtitle        string          `gorm:"size:300" json:"subtitle"`
	Authors         string          `gorm:"size:500;not null" json:"authors"`
	Isbn            string          `gorm:"size:13;uniqueIndex:idx_book_isbn;default:null" json:"isbn"`
	Publisher       string          `gorm:"size:200" json:"publisher"`
	PublicationYear int             `json:"publication_year"`
	Binding         BindingType     `gorm:"type:enum('HARDCOVER','PAPERBACK','SPIRAL','EBOOK');not null;default:PAPERBACK" json:"binding"`
	Mrp             decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"mrp"`
	SellingPrice    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"selling_price"`
	CostPrice       decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"cost_price"`
	QuantityOnHand  int             `gorm:"not null;default:0" json:"quantity_on_hand"`
	ReorderLevel    int             `gorm:"not null;default:5" json:"reorder_level"`
	Category        string          `gorm:"index;size:100" json:"category"`
	ShelfLocation   string          `gorm:"size:50" json:"shelf_location"`
	IsActive        *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (b Book) GetBusinessId() string {
	return b.BusinessId
}

// IsLowStock reports whether on-hand stock has fallen to the reorder level.
func (b *Book) IsLowStock() bool {
	return b.QuantityOnHand <= b.ReorderLevel
}

// TotalStockValue is quantity on hand times weighted-average cost.
func (b *Book) TotalStockValue() decimal.Decimal {
	return b.CostPrice.Mul(decimal.NewFromInt(int64(b.QuantityOnHand)))
}

// IsAvailable reports whether the requested quantity can be fulfilled from stock.
func (b *Book) IsAvailable(quantity int) bool {
	return quantity > 0 && b.QuantityOnHand >= quantity
}

// WeightedAverageReceive computes the on-hand quantity and average cost that
// would result from receiving incomingQty units at incomingUnitCost. It does
// not mutate the book; callers apply the returned values inside their own
// transaction. The average is kept at full precision, never rounded here.
func (b *Book) WeightedAverageReceive(incomingQty int, incomingUnitCost decimal.Decimal) (int, decimal.Decimal, error) {
	if incomingQty <= 0 {
		return 0, decimal.Zero, &utils.ValidationError{Field: "quantity", Reason: "must be at least 1"}
	}
	if incomingUnitCost.IsNegative() {
		return 0, decimal.Zero, &utils.ValidationError{Field: "unit_cost", Reason: "must not be negative"}
	}

	newQty := b.QuantityOnHand + incomingQty
	if newQty == 0 {
		return 0, decimal.Zero, &utils.ConsistencyError{Reason: "receive would leave zero units on hand"}
	}

	// Fresh stock (or a zero-cost placeholder) takes the incoming cost directly.
	if b.QuantityOnHand == 0 && b.CostPrice.IsZero() {
		return newQty, incomingUnitCost, nil
	}

	onHand := decimal.NewFromInt(int64(b.QuantityOnHand))
	incoming := decimal.NewFromInt(int64(incomingQty))
	totalValue := b.CostPrice.Mul(onHand).Add(incomingUnitCost.Mul(incoming))
	newCost := totalValue.Div(decimal.NewFromInt(int64(newQty)))

	return newQty, newCost, nil
}

type NewBook struct {
	Title           string          `json:"title" validate:"required,max=300"`
	Subtitle        string          `json:"subtitle" validate:"max=300"`
	Authors         string          `json:"authors" validate:"required,max=500"`
	Isbn            string          `json:"isbn" validate:"omitempty,min=10,max=13"`
	Publisher       string          `json:"publisher" validate:"max=200"`
	PublicationYear int             `json:"publication_year" validate:"omitempty,min=1450,max=2100"`
	Binding         BindingType     `json:"binding"`
	Mrp             decimal.Decimal `json:"mrp"`
	SellingPrice    decimal.Decimal `json:"selling_price"`
	CostPrice       decimal.Decimal `json:"cost_price"`
	QuantityOnHand  int             `json:"quantity_on_hand" validate:"min=0"`
	ReorderLevel    int             `json:"reorder_level" validate:"min=0"`
	Category        string          `json:"category" validate:"max=100"`
	ShelfLocation   string          `json:"shelf_location" validate:"max=50"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewBook) validate(ctx context.Context, businessId string, id int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if input.Binding != "" && !input.Binding.Valid() {
		return &utils.ValidationError{Field: "binding", Reason: "unknown binding type"}
	}
	if input.Mrp.IsNegative() {
		return &utils.ValidationError{Field: "mrp", Reason: "must not be negative"}
	}
	if input.SellingPrice.IsNegative() {
		return &utils.ValidationError{Field: "selling_price", Reason: "must not be negative"}
	}
	if input.CostPrice.IsNegative() {
		return &utils.ValidationError{Field: "cost_price", Reason: "must not be negative"}
	}

	// isbn must be unique within the business
	if input.Isbn != "" {
		if err := utils.ValidateUnique[Book](ctx, businessId, "isbn", input.Isbn, id); err != nil {
			return err
		}
	}
	return nil
}

func CreateBook(ctx context.Context, input *NewBook) (*Book, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	binding := input.Binding
	if binding == "" {
		binding = BindingTypePaperback
	}

	book := Book{
		BusinessId:      businessId,
		Title:           input.Title,
		Subtitle:        input.Subtitle,
		Authors:         input.Authors,
		Isbn:            input.Isbn,
		Publisher:       input.Publisher,
		PublicationYear: input.PublicationYear,
		Binding:         binding,
		Mrp:             input.Mrp,
		SellingPrice:    input.SellingPrice,
		CostPrice:       input.CostPrice,
		QuantityOnHand:  input.QuantityOnHand,
		ReorderLevel:    input.ReorderLevel,
		Category:        input.Category,
		ShelfLocation:   input.ShelfLocation,
		IsActive:        utils.NewTrue(),
	}

	// db action
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&book).Error; err != nil {
		return nil, err
	}

	return &book, nil
}

func UpdateBook(ctx context.Context, id int, input *NewBook) (*Book, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	book, err := utils.FetchModel[Book](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	// QuantityOnHand and CostPrice are deliberately absent: stock state
	// only moves through receipts, deliveries and AdjustBookStock.
	db := config.GetDB()
	err = db.WithContext(ctx).Model(&book).Updates(map[string]interface{}{
		"Title":           input.Title,
		"Subtitle":        input.Subtitle,
		"Authors":         input.Authors,
		"Isbn":            input.Isbn,
		"Publisher":       input.Publisher,
		"PublicationYear": input.PublicationYear,
		"Binding":         input.Binding,
		"Mrp":             input.Mrp,
		"SellingPrice":    input.SellingPrice,
		"ReorderLevel":    input.ReorderLevel,
		"Category":        input.Category,
		"ShelfLocation":   input.ShelfLocation,
	}).Error
	if err != nil {
		return nil, err
	}

	if err := utils.RemoveRedisItem[Book](id); err != nil {
		return nil, err
	}

	return book, nil
}

func DeleteBook(ctx context.Context, id int) (*Book, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	result, err := utils.FetchModel[Book](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()

	// Do not delete if any InvoiceItem references this book (protect semantics).
	var count int64
	err = db.WithContext(ctx).Model(&InvoiceItem{}).
		Where("book_id = ?", id).Count(&count).Error
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("book is referenced by invoice items")
	}

	// db action
	if err := db.WithContext(ctx).Delete(&result).Error; err != nil {
		return nil, err
	}

	if err := utils.RemoveRedisItem[Book](id); err != nil {
		return nil, err
	}

	return result, nil
}

func GetBook(ctx context.Context, id int) (*Book, error) {
	return GetResource[Book](ctx, id)
}

func GetBooks(ctx context.Context, category *string, title *string, lowStockOnly bool) ([]*Book, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*Book

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if category != nil && *category != "" {
		dbCtx = dbCtx.Where("category = ?", *category)
	}
	if title != nil && len(*title) > 0 {
		dbCtx = dbCtx.Where("title LIKE ? OR authors LIKE ?", "%"+*title+"%", "%"+*title+"%")
	}
	if lowStockOnly {
		dbCtx = dbCtx.Where("quantity_on_hand <= reorder_level")
	}
	if err := dbCtx.Order("title").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func ToggleActiveBook(ctx context.Context, id int, isActive bool) (*Book, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return ToggleActiveModel[Book](ctx, businessId, id, isActive)
}

// AdjustBookStock applies a manual quantity delta, e.g. a stocktake
// correction or damaged copies being written off. It never touches the
// average cost. A negative delta below zero stock is rejected unless
// overselling is allowed.
func AdjustBookStock(ctx context.Context, id int, delta int, reason string) (*Book, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if delta == 0 {
		return nil, &utils.ValidationError{Field: "delta", Reason: "must not be zero"}
	}
	if reason == "" {
		return nil, &utils.ValidationError{Field: "reason", Reason: "is required"}
	}

	db := config.GetDB()
	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var book Book
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ?", businessId).
		First(&book, id).Error
	if err != nil {
		tx.Rollback()
		return nil, utils.ErrorRecordNotFound
	}

	before := book
	newQty := book.QuantityOnHand + delta
	if newQty < 0 && !config.AllowOversell() {
		tx.Rollback()
		return nil, &utils.ValidationError{Field: "delta", Reason: "insufficient stock for " + book.Title}
	}

	err = tx.WithContext(ctx).Model(&book).
		UpdateColumn("QuantityOnHand", newQty).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := createHistory(tx.WithContext(ctx), "*ADJUST*", book.ID, "books", &before, &book, reason); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := utils.RemoveRedisItem[Book](id); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return &book, nil
}
