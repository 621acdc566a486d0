package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/bookshop_backend/config"
	"bitbucket.org/mmdatafocus/bookshop_backend/workflow"
)

// Flips unpaid past-due invoices to OVERDUE. Run daily from cron.
func main() {
	asOfStr := flag.String("as-of", "", "Optional: sweep cutoff (YYYY-MM-DD); defaults to now")
	flag.Parse()

	now := time.Now().UTC()
	if strings.TrimSpace(*asOfStr) != "" {
		d, err := time.Parse("2006-01-02", strings.TrimSpace(*asOfStr))
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid as-of date: %v\n", err)
			os.Exit(1)
		}
		now = d
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	count, err := workflow.MarkOverdueInvoices(context.Background(), now)
	if err != nil {
		fmt.Fprintf(os.Stderr, "overdue sweep failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("marked %d invoice(s) overdue as of %s\n", count, now.Format("2006-01-02"))
}
