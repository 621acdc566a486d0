package models

import (
	"bitbucket.org/mmdatafocus/bookshop_backend/config"
)

// MigrateModels keeps the schema in step with the model structs.
// Run from the maintenance binaries, never at service startup.
func MigrateModels() error {
	db := config.GetDB()
	return db.AutoMigrate(
		&Business{},
		&Party{},
		&Book{},
		&Invoice{},
		&InvoiceItem{},
		&History{},
	)
}
