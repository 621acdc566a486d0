package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/bookshop_backend/config"
	"bitbucket.org/mmdatafocus/bookshop_backend/models"
	"gorm.io/gorm"
)

// Recomputes line amounts and header totals for stored invoices and reports
// (or repairs) any drift between stored and derived values.
func main() {
	businessID := flag.String("business-id", "", "Required: business id (uuid)")
	invoiceID := flag.Int("invoice-id", 0, "Optional: single invoice id; default all invoices for the business")
	statusFilter := flag.String("status", "", "Optional: only check invoices in this status (e.g. DRAFT)")
	apply := flag.Bool("apply", false, "Write corrected amounts; default is report-only")
	flag.Parse()

	if strings.TrimSpace(*businessID) == "" {
		fmt.Fprintln(os.Stderr, "--business-id is required")
		os.Exit(1)
	}

	var status models.InvoiceStatus
	if *statusFilter != "" {
		parsed, err := models.ParseInvoiceStatus(*statusFilter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "--status: %v\n", err)
			os.Exit(1)
		}
		status = parsed
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	var invoices []models.Invoice
	dbCtx := db.Preload("Items").Where("business_id = ?", *businessID)
	if *invoiceID > 0 {
		dbCtx = dbCtx.Where("id = ?", *invoiceID)
	}
	if status != "" {
		dbCtx = dbCtx.Where("status = ?", status)
	}
	if err := dbCtx.Find(&invoices).Error; err != nil {
		fmt.Fprintf(os.Stderr, "load invoices: %v\n", err)
		os.Exit(1)
	}

	var drifted int
	for i := range invoices {
		inv := &invoices[i]

		recomputed := make([]models.InvoiceItem, len(inv.Items))
		copy(recomputed, inv.Items)
		lineDrift := false
		for j := range recomputed {
			if err := recomputed[j].CalculateAmounts(); err != nil {
				fmt.Fprintf(os.Stderr, "invoice %s line %d: %v\n", inv.InvoiceNumber, recomputed[j].ID, err)
				os.Exit(1)
			}
			if !recomputed[j].LineTotal.Equal(inv.Items[j].LineTotal) ||
				!recomputed[j].DiscountAmount.Equal(inv.Items[j].DiscountAmount) ||
				!recomputed[j].TaxAmount.Equal(inv.Items[j].TaxAmount) {
				lineDrift = true
			}
		}

		totals := models.RecomputeInvoiceTotals(inv, recomputed)
		headerDrift := !totals.Subtotal.Equal(inv.Subtotal) ||
			!totals.TotalAmount.Equal(inv.TotalAmount)

		if !lineDrift && !headerDrift {
			continue
		}
		drifted++
		fmt.Printf("drift on %s: stored total=%s derived total=%s\n",
			inv.InvoiceNumber, inv.TotalAmount.StringFixed(2), totals.TotalAmount.StringFixed(2))

		if !*apply {
			continue
		}

		err := db.Transaction(func(tx *gorm.DB) error {
			for j := range recomputed {
				err := tx.Model(&recomputed[j]).Updates(map[string]interface{}{
					"DiscountAmount": recomputed[j].DiscountAmount,
					"TaxAmount":      recomputed[j].TaxAmount,
					"LineTotal":      recomputed[j].LineTotal,
				}).Error
				if err != nil {
					return err
				}
			}
			return tx.Model(inv).Updates(map[string]interface{}{
				"Subtotal":    totals.Subtotal,
				"TotalAmount": totals.TotalAmount,
			}).Error
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "repair %s: %v\n", inv.InvoiceNumber, err)
			os.Exit(1)
		}
		fmt.Printf("repaired %s\n", inv.InvoiceNumber)
	}

	fmt.Printf("checked %d invoice(s), %d with drift\n", len(invoices), drifted)
}
