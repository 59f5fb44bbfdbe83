package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Goal represents a savings goal. CurrentAmount accumulates toward
// TargetAmount; Completed latches true once the target is reached and
// never reverts automatically.
type Goal struct {
	Base
	UserID        string          `gorm:"type:uuid;not null;index" json:"user_id"`
	Name          string          `gorm:"not null" json:"name"`
	TargetAmount  decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"target_amount"`
	CurrentAmount decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"current_amount"`
	EndDate       time.Time       `gorm:"not null" json:"end_date"`
	Completed     bool            `gorm:"not null;default:false" json:"completed"`
}
