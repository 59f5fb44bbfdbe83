package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"moneta/internal/money"
)

// OthersBudgetName is the reserved name of the per-user residual budget.
// It absorbs all funds not explicitly allocated to a named budget, is
// created once at signup seeded with the user's initial balance, and is
// never closed or deleted by ordinary flows.
const OthersBudgetName = "Others"

// Budget represents an envelope of allocatable funds. Amount is money
// moved into the budget from the residual pool; Spent and Earned are
// running totals maintained by transaction allocations.
type Budget struct {
	Base
	UserID    string          `gorm:"type:uuid;not null;index" json:"user_id"`
	Name      string          `gorm:"not null" json:"name"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"amount"`
	Spent     decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"spent"`
	Earned    decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"earned"`
	StartDate time.Time       `gorm:"not null" json:"start_date"`
	EndDate   time.Time       `gorm:"not null" json:"end_date"`
	Closed    bool            `gorm:"not null;default:false" json:"closed"`

	// Overspent is computed on read; it is never persisted. Over-spending
	// is surfaced as a signal, not rejected.
	Overspent bool `gorm:"-" json:"overspent"`
}

// Allocatable returns the budget's usable remaining funds:
// amount + earned - spent.
func (b *Budget) Allocatable() decimal.Decimal {
	return money.Allocatable(b.Amount, b.Earned, b.Spent)
}

// IsOthers reports whether this is the reserved residual budget.
func (b *Budget) IsOthers() bool {
	return b.Name == OthersBudgetName
}

// AfterFind computes the overspent flag whenever a budget is loaded.
func (b *Budget) AfterFind(tx *gorm.DB) error {
	b.Overspent = b.Spent.GreaterThan(b.Amount.Add(b.Earned))
	return nil
}
