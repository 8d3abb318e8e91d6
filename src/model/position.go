package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is a user's aggregate holding in one symbol. A position with zero shares is
// deleted rather than stored.
type Position struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	UserID      string          `gorm:"size:64;not null;uniqueIndex:idx_portfolios_user_symbol" json:"user_id"`
	Symbol      string          `gorm:"size:20;not null;uniqueIndex:idx_portfolios_user_symbol" json:"symbol"`
	Shares      int64           `gorm:"not null" json:"shares"`
	AverageCost decimal.Decimal `gorm:"type:numeric(28,10);not null" json:"average_cost"`
	// Version is bumped on every write and used as a compare-and-swap guard.
	Version   int64     `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Position) TableName() string {
	return "portfolios"
}

// CostBasis is shares × average cost.
func (p Position) CostBasis() decimal.Decimal {
	return p.AverageCost.Mul(decimal.NewFromInt(p.Shares))
}

func PositionKey(userID, symbol string) string {
	return userID + ":" + symbol
}
