package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Profile carries the user's funds ledger. Only BuyingPower is read or written by the engine.
type Profile struct {
	UserID      string          `gorm:"primaryKey;size:64" json:"user_id"`
	BuyingPower decimal.Decimal `gorm:"type:numeric(20,6);not null;default:0" json:"buying_power"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (Profile) TableName() string {
	return "profiles"
}
