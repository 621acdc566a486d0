package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/bookshop_backend/config"
	"bitbucket.org/mmdatafocus/bookshop_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Party is a customer or supplier. It owns no financial state of its own;
// outstanding balance is derived from its invoices.
type Party struct {
	ID           int             `gorm:"primary_key" json:"id"`
	BusinessId   string          `gorm:"index;not null" json:"business_id"`
	PartyType    PartyType       `gorm:"type:enum('CUSTOMER','SUPPLIER');not null;default:CUSTOMER" json:"party_type"`
	Name         string          `gorm:"index;size:200;not null" json:"name"`
	CompanyName  string          `gorm:"size:200;default:null" json:"company_name"`
	Phone        string          `gorm:"size:17" json:"phone"`
	Email        string          `gorm:"size:255;default:null" json:"email"`
	AddressLine1 string          `gorm:"size:255" json:"address_line1"`
	AddressLine2 string          `gorm:"size:255" json:"address_line2"`
	City         string          `gorm:"size:100" json:"city"`
	State        string          `gorm:"size:100" json:"state"`
	PostalCode   string          `gorm:"size:20" json:"postal_code"`
	Country      string          `gorm:"size:100;default:India" json:"country"`
	GstNumber    string          `gorm:"size:15;default:null" json:"gst_number"`
	PanNumber    string          `gorm:"size:10;default:null" json:"pan_number"`
	CreditLimit  decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"credit_limit"`
	IsActive     *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p Party) GetBusinessId() string {
	return p.BusinessId
}

type NewParty struct {
	PartyType    PartyType       `json:"party_type" validate:"required"`
	Name         string          `json:"name" validate:"required,max=200"`
	CompanyName  string          `json:"company_name" validate:"max=200"`
	Phone        string          `json:"phone" validate:"omitempty,e164"`
	Email        string          `json:"email" validate:"omitempty,email"`
	AddressLine1 string          `json:"address_line1"`
	AddressLine2 string          `json:"address_line2"`
	City         string          `json:"city"`
	State        string          `json:"state"`
	PostalCode   string          `json:"postal_code"`
	Country      string          `json:"country"`
	GstNumber    string          `json:"gst_number" validate:"max=15"`
	PanNumber    string          `json:"pan_number" validate:"max=10"`
	CreditLimit  decimal.Decimal `json:"credit_limit"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewParty) validate(ctx context.Context, businessId string, id int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if !input.PartyType.Valid() {
		return &utils.ValidationError{Field: "party_type", Reason: "must be CUSTOMER or SUPPLIER"}
	}
	if input.CreditLimit.IsNegative() {
		return &utils.ValidationError{Field: "credit_limit", Reason: "must not be negative"}
	}
	return nil
}

func CreateParty(ctx context.Context, input *NewParty) (*Party, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	party := Party{
		BusinessId:   businessId,
		PartyType:    input.PartyType,
		Name:         input.Name,
		CompanyName:  input.CompanyName,
		Phone:        input.Phone,
		Email:        input.Email,
		AddressLine1: input.AddressLine1,
		AddressLine2: input.AddressLine2,
		City:         input.City,
		State:        input.State,
		PostalCode:   input.PostalCode,
		Country:      input.Country,
		GstNumber:    input.GstNumber,
		PanNumber:    input.PanNumber,
		CreditLimit:  input.CreditLimit,
		IsActive:     utils.NewTrue(),
	}

	// db action
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&party).Error; err != nil {
		return nil, err
	}

	return &party, nil
}

func UpdateParty(ctx context.Context, id int, input *NewParty) (*Party, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	party, err := utils.FetchModel[Party](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	// db action
	db := config.GetDB()
	err = db.WithContext(ctx).Model(&party).Updates(map[string]interface{}{
		"PartyType":    input.PartyType,
		"Name":         input.Name,
		"CompanyName":  input.CompanyName,
		"Phone":        input.Phone,
		"Email":        input.Email,
		"AddressLine1": input.AddressLine1,
		"AddressLine2": input.AddressLine2,
		"City":         input.City,
		"State":        input.State,
		"PostalCode":   input.PostalCode,
		"Country":      input.Country,
		"GstNumber":    input.GstNumber,
		"PanNumber":    input.PanNumber,
		"CreditLimit":  input.CreditLimit,
	}).Error
	if err != nil {
		return nil, err
	}

	if err := utils.RemoveRedisItem[Party](id); err != nil {
		return nil, err
	}

	return party, nil
}

func DeleteParty(ctx context.Context, id int) (*Party, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	result, err := utils.FetchModel[Party](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()

	// Do not delete if any Invoice references this party (protect semantics).
	var count int64
	err = db.WithContext(ctx).Model(&Invoice{}).
		Where("business_id = ? AND party_id = ?", businessId, id).Count(&count).Error
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("party is referenced by invoices")
	}

	// db action
	if err := db.WithContext(ctx).Delete(&result).Error; err != nil {
		return nil, err
	}

	if err := utils.RemoveRedisItem[Party](id); err != nil {
		return nil, err
	}

	return result, nil
}

func GetParty(ctx context.Context, id int) (*Party, error) {
	return GetResource[Party](ctx, id)
}

func GetParties(ctx context.Context, partyType *PartyType, name *string) ([]*Party, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*Party

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if partyType != nil && *partyType != "" {
		dbCtx = dbCtx.Where("party_type = ?", *partyType)
	}
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ? OR company_name LIKE ?", "%"+*name+"%", "%"+*name+"%")
	}
	if err := dbCtx.Order("name").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func ToggleActiveParty(ctx context.Context, id int, isActive bool) (*Party, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return ToggleActiveModel[Party](ctx, businessId, id, isActive)
}

// OutstandingBalance derives the party's balance from its invoices:
// positive means the customer owes us, negative means we owe the supplier.
func (p *Party) OutstandingBalance(ctx context.Context) (decimal.Decimal, error) {
	db := config.GetDB()

	type row struct {
		TotalInvoiced decimal.Decimal
		TotalPaid     decimal.Decimal
	}
	var r row
	err := db.WithContext(ctx).Model(&Invoice{}).
		Select("COALESCE(SUM(total_amount), 0) AS total_invoiced, COALESCE(SUM(paid_amount), 0) AS total_paid").
		Where("business_id = ? AND party_id = ? AND status IN ?", p.BusinessId, p.ID,
			[]InvoiceStatus{InvoiceStatusConfirmed, InvoiceStatusOverdue, InvoiceStatusReceived, InvoiceStatusPaid}).
		Scan(&r).Error
	if err != nil {
		return decimal.Zero, err
	}
	return r.TotalInvoiced.Sub(r.TotalPaid), nil
}

// PartyStatementSummary aggregates a party's invoices over a date range.
type PartyStatementSummary struct {
	TotalInvoices  int64           `json:"total_invoices"`
	TotalSales     decimal.Decimal `json:"total_sales"`
	TotalPurchases decimal.Decimal `json:"total_purchases"`
	TotalPaid      decimal.Decimal `json:"total_paid"`
	Outstanding    decimal.Decimal `json:"outstanding"`
}

func GetPartyStatement(ctx context.Context, partyId int, startDate, endDate *time.Time) (*PartyStatementSummary, error) {

	party, err := GetParty(ctx, partyId)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	// fresh chain per finisher; gorm statements must not be reused after Count/Scan
	scoped := func() *gorm.DB {
		dbCtx := db.WithContext(ctx).Model(&Invoice{}).
			Where("business_id = ? AND party_id = ?", party.BusinessId, party.ID)
		if startDate != nil {
			dbCtx = dbCtx.Where("invoice_date >= ?", *startDate)
		}
		if endDate != nil {
			dbCtx = dbCtx.Where("invoice_date <= ?", *endDate)
		}
		return dbCtx
	}

	var summary PartyStatementSummary
	if err := scoped().Count(&summary.TotalInvoices).Error; err != nil {
		return nil, err
	}

	type totals struct {
		Sales     decimal.Decimal
		Purchases decimal.Decimal
		Paid      decimal.Decimal
	}
	var t totals
	err = scoped().
		Select(`COALESCE(SUM(CASE WHEN invoice_type = 'SALES' THEN total_amount ELSE 0 END), 0) AS sales,
			COALESCE(SUM(CASE WHEN invoice_type = 'PURCHASE' THEN total_amount ELSE 0 END), 0) AS purchases,
			COALESCE(SUM(paid_amount), 0) AS paid`).
		Scan(&t).Error
	if err != nil {
		return nil, err
	}
	summary.TotalSales = t.Sales
	summary.TotalPurchases = t.Purchases
	summary.TotalPaid = t.Paid

	outstanding, err := party.OutstandingBalance(ctx)
	if err != nil {
		return nil, err
	}
	summary.Outstanding = outstanding

	return &summary, nil
}
