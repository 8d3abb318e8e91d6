package orders

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ValidationReason names the rule an order broke.
type ValidationReason string

const (
	ReasonInvalidSymbol        ValidationReason = "invalid_symbol"
	ReasonInvalidOrderType     ValidationReason = "invalid_order_type"
	ReasonInvalidExecutionType ValidationReason = "invalid_execution_type"
	ReasonInvalidAmount        ValidationReason = "invalid_amount"
	ReasonMissingLimitPrice    ValidationReason = "missing_limit_price"
)

// ValidationError is bad input. It is returned to the caller as is and never retried.
type ValidationError struct {
	Reason  ValidationReason
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// InsufficientFundsError rejects a buy whose cost exceeds the available buying power.
type InsufficientFundsError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

// Shortfall is how much the user has to add to place the order.
func (e *InsufficientFundsError) Shortfall() decimal.Decimal {
	return e.Required.Sub(e.Available)
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds, need $%s more", e.Shortfall().StringFixed(2))
}

// InsufficientSharesError rejects a sell of more shares than are held.
type InsufficientSharesError struct {
	Symbol    string
	Held      int64
	Requested int64
}

func (e *InsufficientSharesError) Error() string {
	return fmt.Sprintf("insufficient shares of %s: holding %d, tried to sell %d", e.Symbol, e.Held, e.Requested)
}

// PersistenceError is a store failure. The order is not considered placed and is not retried;
// the caller has to resubmit.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
