package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Forecast persists a spending prediction returned by the external
// prediction service: a category-to-amount breakdown for a period.
type Forecast struct {
	Base
	UserID      string    `gorm:"type:uuid;not null;index" json:"user_id"`
	PeriodStart time.Time `gorm:"not null" json:"period_start"`
	PeriodEnd   time.Time `gorm:"not null" json:"period_end"`
	Breakdown   string    `gorm:"type:text;not null" json:"-"`
	Applied     bool      `gorm:"not null;default:false" json:"applied"`
}

// Categories decodes the persisted category-to-amount breakdown.
func (f *Forecast) Categories() (map[string]decimal.Decimal, error) {
	var categories map[string]decimal.Decimal
	if err := json.Unmarshal([]byte(f.Breakdown), &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

// SetCategories encodes and stores the category-to-amount breakdown.
func (f *Forecast) SetCategories(categories map[string]decimal.Decimal) error {
	raw, err := json.Marshal(categories)
	if err != nil {
		return err
	}
	f.Breakdown = string(raw)
	return nil
}
