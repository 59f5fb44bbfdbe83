package models

import "github.com/shopspring/decimal"

// Allocation links one transaction to one budget with a portion of the
// transaction's total amount. A budget appears at most once per
// transaction, and per transaction the allocation amounts sum exactly to
// the transaction's total.
type Allocation struct {
	Base
	TransactionID string          `gorm:"type:uuid;not null;index;uniqueIndex:idx_alloc_txn_budget" json:"transaction_id"`
	BudgetID      string          `gorm:"type:uuid;not null;index;uniqueIndex:idx_alloc_txn_budget" json:"budget_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"amount"`
}
