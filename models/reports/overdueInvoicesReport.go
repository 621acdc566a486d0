package reports

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/bookshop_backend/config"
	"bitbucket.org/mmdatafocus/bookshop_backend/utils"
	"github.com/shopspring/decimal"
)

type OverdueInvoiceResponse struct {
	InvoiceID     int             `json:"invoiceId"`
	InvoiceNumber string          `json:"invoiceNumber"`
	InvoiceType   string          `json:"invoiceType"`
	PartyName     string          `json:"partyName"`
	DueDate       time.Time       `json:"dueDate"`
	DaysPastDue   int             `json:"daysPastDue"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	PaidAmount    decimal.Decimal `json:"paidAmount"`
	BalanceDue    decimal.Decimal `json:"balanceDue"`
}

// GetOverdueInvoicesReport lists documents with an open balance past their
// due date, worst first. It reads by due date rather than by status so
// invoices the nightly sweep has not yet flipped still show up.
func GetOverdueInvoicesReport(ctx context.Context, asOf time.Time) ([]*OverdueInvoiceResponse, error) {
	sql := `
SELECT
    invoices.id AS invoice_id,
    invoices.invoice_number,
    invoices.invoice_type,
    parties.name AS party_name,
    invoices.due_date,
    DATEDIFF(@asOf, invoices.due_date) AS days_past_due,
    invoices.total_amount,
    invoices.paid_amount,
    invoices.total_amount - invoices.paid_amount AS balance_due
FROM
    invoices
    LEFT JOIN parties ON parties.id = invoices.party_id
WHERE
    invoices.business_id = @businessId
    AND invoices.status IN ('CONFIRMED', 'OVERDUE', 'RECEIVED')
    AND invoices.due_date IS NOT NULL
    AND invoices.due_date < @asOf
    AND invoices.total_amount > invoices.paid_amount
ORDER BY days_past_due DESC, balance_due DESC;
`

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	started := time.Now()
	defer logSlowReport(ctx, "overdue_invoices", started, map[string]any{"asOf": asOf})

	var results []*OverdueInvoiceResponse
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, map[string]interface{}{
		"businessId": businessId,
		"asOf":       asOf,
	}).Scan(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
