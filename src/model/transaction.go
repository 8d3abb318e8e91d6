package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TransactionTypeBuy  = "buy"
	TransactionTypeSell = "sell"

	ExecutionTypeMarket = "market"
	ExecutionTypeLimit  = "limit"
)

// Transaction status lifecycle. A transaction moves from pending to completed at most once;
// completed rows are never updated again.
const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
)

// Transaction is one entry of the append-only order log.
type Transaction struct {
	ID            string           `gorm:"primaryKey;size:36" json:"id"`
	UserID        string           `gorm:"size:64;not null;index:idx_transactions_user_symbol" json:"user_id"`
	Symbol        string           `gorm:"size:20;not null;index:idx_transactions_user_symbol" json:"symbol"`
	CompanyName   string           `gorm:"size:255" json:"company_name"`
	Type          string           `gorm:"size:10;not null" json:"type"`                        // buy | sell
	Shares        int64            `gorm:"not null" json:"shares"`
	PricePerShare decimal.Decimal  `gorm:"type:numeric(20,6);not null" json:"price_per_share"`
	TotalAmount   decimal.Decimal  `gorm:"type:numeric(20,6);not null" json:"total_amount"`
	ExecutionType string           `gorm:"size:10;not null;default:market" json:"execution_type"` // market | limit
	LimitPrice    *decimal.Decimal `gorm:"type:numeric(20,6)" json:"limit_price,omitempty"`
	Status        string           `gorm:"size:20;not null;default:pending;index" json:"status"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
	CreatedAt     time.Time        `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// TableName allows you to control the exact table name for transactions.
func (Transaction) TableName() string {
	return "transactions"
}

func (t Transaction) IsBuy() bool {
	return t.Type == TransactionTypeBuy
}

func (t Transaction) IsLimit() bool {
	return t.ExecutionType == ExecutionTypeLimit
}

// PositionKey identifies the (user, symbol) ledger entry the transaction settles into.
func (t Transaction) PositionKey() string {
	return PositionKey(t.UserID, t.Symbol)
}
