package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/bookshop_backend/config"
	"bitbucket.org/mmdatafocus/bookshop_backend/models"
)

// MarkOverdueInvoices flips every invoice with an unpaid balance past its
// due date to OVERDUE, across all businesses. Returns the number of rows
// updated. Intended to run from a scheduled sweep.
func MarkOverdueInvoices(ctx context.Context, now time.Time) (int64, error) {

	ctx, span := tracer.Start(ctx, "MarkOverdueInvoices")
	defer span.End()

	logger := config.GetLogger()

	eligible := []models.InvoiceStatus{models.InvoiceStatusConfirmed}
	if config.SeparateReceivedStatus() {
		eligible = append(eligible, models.InvoiceStatusReceived)
	}

	db := config.GetDB()
	result := db.WithContext(ctx).Model(&models.Invoice{}).
		Where("status IN ?", eligible).
		Where("due_date IS NOT NULL AND due_date < ?", now).
		Where("total_amount > paid_amount").
		UpdateColumn("status", models.InvoiceStatusOverdue)
	if result.Error != nil {
		config.LogError(logger, "overdueWorkflow.go", "MarkOverdueInvoices", "UpdateInvoices", now, result.Error)
		return 0, result.Error
	}

	if result.RowsAffected > 0 {
		logger.WithField("count", result.RowsAffected).Info("marked invoices overdue")
	}
	return result.RowsAffected, nil
}
