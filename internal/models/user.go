package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents the user model in the database. Balance is an
// informational display value: it is seeded into the Others budget at
// signup and afterwards mutated only through profile updates, never
// recomputed from budgets.
type User struct {
	Base
	Email               string          `gorm:"uniqueIndex;not null" json:"email"`
	Password            string          `gorm:"not null" json:"-"`
	FirstName           string          `json:"first_name"`
	LastName            string          `json:"last_name"`
	Balance             decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"balance"`
	IsActive            bool            `gorm:"default:true" json:"is_active"`
	RefreshTokenHash    string          `gorm:"size:64" json:"-"`
	FailedLoginAttempts int             `gorm:"default:0" json:"-"`
	LockedUntil         *time.Time      `json:"-"`
	LastLoginAt         *time.Time      `json:"last_login_at,omitempty"`
	Budgets             []Budget        `gorm:"foreignKey:UserID" json:"budgets,omitempty"`
	Transactions        []Transaction   `gorm:"foreignKey:UserID" json:"transactions,omitempty"`
	Goals               []Goal          `gorm:"foreignKey:UserID" json:"goals,omitempty"`
}
