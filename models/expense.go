package models

import "time"

// Expense categories. Extraction results outside this set fall back to Others.
const (
	CategoryFood      = "Food"
	CategoryUtility   = "Utility"
	CategoryTransport = "Transport"
	CategoryHotel     = "Hotel"
	CategoryOthers    = "Others"
)

var Categories = []string{CategoryFood, CategoryUtility, CategoryTransport, CategoryHotel, CategoryOthers}

func IsValidCategory(c string) bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

type Expense struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	UserID     string    `gorm:"index" json:"user_id"`
	VendorName string    `json:"vendor_name"`
	Date       string    `json:"date"` // YYYY-MM-DD
	Amount     float64   `json:"amount"`
	Currency   string    `json:"currency"`
	Category   string    `json:"category"`
	Summary    string    `json:"summary"`
	FileName   string    `json:"file_name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

// Budget is a per-category monthly spending limit. Zero means no limit.
type Budget struct {
	ID       uint    `gorm:"primaryKey" json:"id"`
	UserID   string  `gorm:"index:idx_budget_user_cat,unique" json:"user_id"`
	Category string  `gorm:"index:idx_budget_user_cat,unique" json:"category"`
	Limit    float64 `json:"limit"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}
