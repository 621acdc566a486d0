package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/bookshop_backend/config"
	"bitbucket.org/mmdatafocus/bookshop_backend/models"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Exports the weighted-average stock valuation for a business as an xlsx
// sheet: one row per book with on-hand quantity, average cost and value.
func main() {
	businessID := flag.String("business-id", "", "Required: business id (uuid)")
	outFile := flag.String("out", "stock-valuation.xlsx", "Output xlsx path")
	includeInactive := flag.Bool("include-inactive", false, "Include inactive books")
	flag.Parse()

	if strings.TrimSpace(*businessID) == "" {
		fmt.Fprintln(os.Stderr, "--business-id is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	var books []models.Book
	dbCtx := db.Where("business_id = ?", *businessID)
	if !*includeInactive {
		dbCtx = dbCtx.Where("is_active = ?", true)
	}
	if err := dbCtx.Order("title").Find(&books).Error; err != nil {
		fmt.Fprintf(os.Stderr, "load books: %v\n", err)
		os.Exit(1)
	}

	f := excelize.NewFile()
	sheetName := "Sheet1"
	if _, err := f.NewSheet(sheetName); err != nil {
		fmt.Fprintf(os.Stderr, "new sheet: %v\n", err)
		os.Exit(1)
	}

	// Add headers
	f.SetCellValue(sheetName, "A1", "Title")
	f.SetCellValue(sheetName, "B1", "ISBN")
	f.SetCellValue(sheetName, "C1", "Category")
	f.SetCellValue(sheetName, "D1", "QuantityOnHand")
	f.SetCellValue(sheetName, "E1", "AverageCost")
	f.SetCellValue(sheetName, "F1", "StockValue")
	f.SetCellValue(sheetName, "G1", "LowStock")

	// Add data
	total := decimal.Zero
	for i, b := range books {
		value := b.TotalStockValue()
		total = total.Add(value)
		row := fmt.Sprint(i + 2)
		f.SetCellValue(sheetName, "A"+row, b.Title)
		f.SetCellValue(sheetName, "B"+row, b.Isbn)
		f.SetCellValue(sheetName, "C"+row, b.Category)
		f.SetCellValue(sheetName, "D"+row, b.QuantityOnHand)
		f.SetCellValue(sheetName, "E"+row, b.CostPrice.StringFixed(2))
		f.SetCellValue(sheetName, "F"+row, value.StringFixed(2))
		f.SetCellValue(sheetName, "G"+row, b.IsLowStock())
	}
	totalRow := fmt.Sprint(len(books) + 2)
	f.SetCellValue(sheetName, "A"+totalRow, "TOTAL")
	f.SetCellValue(sheetName, "F"+totalRow, total.StringFixed(2))

	if err := f.SaveAs(*outFile); err != nil {
		fmt.Fprintf(os.Stderr, "save xlsx: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("exported %d book(s), total stock value %s, to %s\n", len(books), total.StringFixed(2), *outFile)
}
