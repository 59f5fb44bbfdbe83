package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType represents the type of transaction
type TransactionType string

const (
	TransactionTypeIncome  TransactionType = "income"
	TransactionTypeExpense TransactionType = "expense"
)

// Transaction represents a financial transaction. Its total amount is
// split across one or more budgets via Allocation rows; the allocation
// amounts always sum exactly to TotalAmount.
type Transaction struct {
	Base
	UserID      string          `gorm:"type:uuid;not null;index" json:"user_id"`
	Name        string          `gorm:"not null" json:"name"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"total_amount"`
	Category    string          `json:"category"`
	Type        TransactionType `gorm:"not null" json:"type"`
	Description string          `json:"description"`
	Date        time.Time       `gorm:"not null;index" json:"date"`

	// Relationships
	Allocations []Allocation `gorm:"foreignKey:TransactionID" json:"allocations,omitempty"`
}
