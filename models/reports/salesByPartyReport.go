package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/bookshop_backend/config"
	"bitbucket.org/mmdatafocus/bookshop_backend/utils"
	"github.com/shopspring/decimal"
)

type SalesByPartyResponse struct {
	PartyID      int             `json:"partyId"`
	PartyName    string          `json:"partyName"`
	InvoiceCount int64           `json:"invoiceCount"`
	TotalSales   decimal.Decimal `json:"totalSales"`
	TotalPaid    decimal.Decimal `json:"totalPaid"`
	Outstanding  decimal.Decimal `json:"outstanding"`
}

// GetSalesByPartyReport sums confirmed-or-later sales invoices per customer
// over a date range. Drafts, proformas and cancelled documents are excluded.
func GetSalesByPartyReport(ctx context.Context, startDate, endDate time.Time) ([]*SalesByPartyResponse, error) {
	sql := `
SELECT
    siv.party_id,
    parties.name AS party_name,
    siv.invoice_count,
    siv.total_sales,
    siv.total_paid,
    siv.total_sales - siv.total_paid AS outstanding
FROM
    (
        SELECT
            party_id,
            COUNT(invoices.id) AS invoice_count,
            SUM(total_amount) AS total_sales,
            SUM(paid_amount) AS total_paid
        FROM
            invoices
        WHERE
            business_id = @businessId
            AND invoice_type = 'SALES'
            AND status IN ('CONFIRMED', 'OVERDUE', 'PAID')
            AND invoice_date >= @startDate
            AND invoice_date <= @endDate
        GROUP BY
            party_id
    ) AS siv
    LEFT JOIN parties ON parties.id = siv.party_id
ORDER BY siv.total_sales DESC;
`

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	started := time.Now()
	defer logSlowReport(ctx, "sales_by_party", started, map[string]any{"start": startDate, "end": endDate})

	cacheKey := fmt.Sprintf("report:sales_by_party:%s:%s:%s",
		businessId, startDate.Format("2006-01-02"), endDate.Format("2006-01-02"))
	if reportCacheEnabled() {
		var cached []*SalesByPartyResponse
		if found, err := cacheGet(cacheKey, &cached); err == nil && found {
			return cached, nil
		}
	}

	var results []*SalesByPartyResponse
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, map[string]interface{}{
		"businessId": businessId,
		"startDate":  startDate,
		"endDate":    endDate,
	}).Scan(&results).Error; err != nil {
		return nil, err
	}

	if reportCacheEnabled() {
		_ = cacheSet(cacheKey, results, reportCacheTTL())
	}
	return results, nil
}
