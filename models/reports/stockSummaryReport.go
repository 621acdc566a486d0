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

type StockSummaryResponse struct {
	BookID      int             `json:"bookId"`
	Title       string          `json:"title"`
	Isbn        string          `json:"isbn"`
	Category    string          `json:"category"`
	StockOnHand int             `json:"stockOnHand"`
	AverageCost decimal.Decimal `json:"averageCost"`
	AssetValue  decimal.Decimal `json:"assetValue"`
	LowStock    bool            `json:"lowStock"`
}

// GetStockSummaryReport lists every active book with stock on hand, its
// weighted-average cost and the resulting asset value.
func GetStockSummaryReport(ctx context.Context, category string) ([]*StockSummaryResponse, error) {
	sql := `
SELECT
    id AS book_id,
    title,
    isbn,
    category,
    quantity_on_hand AS stock_on_hand,
    cost_price AS average_cost,
    cost_price * quantity_on_hand AS asset_value,
    quantity_on_hand <= reorder_level AS low_stock
FROM
    books
WHERE
    business_id = @businessId
    AND is_active = true
    AND (@category = '' OR category = @category)
ORDER BY title;
`

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	started := time.Now()
	defer logSlowReport(ctx, "stock_summary", started, map[string]any{"category": category})

	cacheKey := fmt.Sprintf("report:stock_summary:%s:%s", businessId, category)
	if reportCacheEnabled() {
		var cached []*StockSummaryResponse
		if found, err := cacheGet(cacheKey, &cached); err == nil && found {
			return cached, nil
		}
	}

	var results []*StockSummaryResponse
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, map[string]interface{}{
		"businessId": businessId,
		"category":   category,
	}).Scan(&results).Error; err != nil {
		return nil, err
	}

	if reportCacheEnabled() {
		_ = cacheSet(cacheKey, results, reportCacheTTL())
	}
	return results, nil
}
