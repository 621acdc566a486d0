package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/bookshop_backend/config"
	"bitbucket.org/mmdatafocus/bookshop_backend/models"
	"bitbucket.org/mmdatafocus/bookshop_backend/utils"
	"github.com/shopspring/decimal"
)

func main() {
	businessName := flag.String("business-name", "Demo Bookshop", "Business name for the seeded tenant")
	migrate := flag.Bool("migrate", true, "Run schema migration before seeding")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	if *migrate {
		if err := models.MigrateModels(); err != nil {
			fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
			os.Exit(1)
		}
	}

	ctx := context.Background()
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "seed-demo")

	// a reseed must not leave cached objects from the previous run behind
	if os.Getenv("REDIS_ADDRESS") != "" {
		config.ConnectRedisWithRetry()
		if err := config.ClearRedis(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "clear redis: %v\n", err)
			os.Exit(1)
		}
	}

	business, err := models.CreateBusiness(ctx, &models.NewBusiness{
		Name:     *businessName,
		Email:    "demo@bookshop.local",
		Country:  "India",
		City:     "Bengaluru",
		Timezone: "Asia/Kolkata",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "create business: %v\n", err)
		os.Exit(1)
	}
	ctx = utils.SetBusinessIdInContext(ctx, business.ID.String())
	fmt.Printf("created business %s (%s)\n", business.Name, business.ID)

	supplier, err := models.CreateParty(ctx, &models.NewParty{
		PartyType:   models.PartyTypeSupplier,
		Name:        "Westland Distribution",
		CompanyName: "Westland Distribution Pvt Ltd",
		City:        "Chennai",
		Country:     "India",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "create supplier: %v\n", err)
		os.Exit(1)
	}

	customer, err := models.CreateParty(ctx, &models.NewParty{
		PartyType: models.PartyTypeCustomer,
		Name:      "Walk-in Customer",
		City:      "Bengaluru",
		Country:   "India",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "create customer: %v\n", err)
		os.Exit(1)
	}

	books := []*models.NewBook{
		{
			Title:           "The God of Small Things",
			Authors:         "Arundhati Roy",
			Isbn:            "9780006550686",
			Publisher:       "Fourth Estate",
			PublicationYear: 1997,
			Binding:         models.BindingTypePaperback,
			Mrp:             decimal.NewFromInt(499),
			SellingPrice:    decimal.NewFromInt(450),
			ReorderLevel:    5,
			Category:        "Fiction",
		},
		{
			Title:           "Midnight's Children",
			Authors:         "Salman Rushdie",
			Isbn:            "9780099578512",
			Publisher:       "Vintage",
			PublicationYear: 1981,
			Binding:         models.BindingTypePaperback,
			Mrp:             decimal.NewFromInt(599),
			SellingPrice:    decimal.NewFromInt(540),
			ReorderLevel:    3,
			Category:        "Fiction",
		},
		{
			Title:           "India After Gandhi",
			Authors:         "Ramachandra Guha",
			Isbn:            "9789351951797",
			Publisher:       "Picador",
			PublicationYear: 2007,
			Binding:         models.BindingTypeHardcover,
			Mrp:             decimal.NewFromInt(999),
			SellingPrice:    decimal.NewFromInt(899),
			ReorderLevel:    2,
			Category:        "History",
		},
	}

	var bookIds []int
	for _, nb := range books {
		book, err := models.CreateBook(ctx, nb)
		if err != nil {
			fmt.Fprintf(os.Stderr, "create book %q: %v\n", nb.Title, err)
			os.Exit(1)
		}
		bookIds = append(bookIds, book.ID)
		fmt.Printf("created book #%d %s\n", book.ID, book.Title)
	}

	// one draft purchase order against the supplier
	due := time.Now().AddDate(0, 0, 30)
	po, err := models.CreateInvoice(ctx, &models.NewInvoice{
		InvoiceType: models.InvoiceTypePurchase,
		PartyId:     supplier.ID,
		InvoiceDate: time.Now(),
		DueDate:     &due,
		Items: []*models.NewInvoiceItem{
			{BookId: bookIds[0], Quantity: 20, UnitPrice: decimal.NewFromInt(280)},
			{BookId: bookIds[1], Quantity: 15, UnitPrice: decimal.NewFromInt(330)},
			{BookId: bookIds[2], Quantity: 10, UnitPrice: decimal.NewFromInt(610)},
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "create purchase invoice: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("created purchase invoice %s total=%s\n", po.InvoiceNumber, po.TotalAmount.StringFixed(2))

	fmt.Printf("seed complete: business=%s supplier=%d customer=%d\n", business.ID, supplier.ID, customer.ID)
}
