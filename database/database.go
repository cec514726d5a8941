package database

import (
	"log"
	"os"

	"expense-backend/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var DB *gorm.DB

func ConnectDatabase() {
	dsn := os.Getenv("DATABASE_PATH")
	if dsn == "" {
		dsn = "expense.db"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to database: ", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Expense{},
		&models.Budget{},
		&models.BillingEventLog{},
	)
	if err != nil {
		log.Fatal("Migration failed: ", err)
	}

	DB = db
}
