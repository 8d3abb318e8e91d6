package orders

import (
	"strings"

	"github.com/shopspring/decimal"

	"brokerengine/src/model"
)

// OrderRequest is an order as proposed by the caller.
type OrderRequest struct {
	Symbol        string
	CompanyName   string
	Type          string
	Shares        int64
	PricePerShare decimal.Decimal
	ExecutionType string
	LimitPrice    *decimal.Decimal
}

// Holdings is the caller's state the order is checked against.
type Holdings struct {
	Shares      int64
	BuyingPower decimal.Decimal
}

// Normalize upper-cases the symbol and lower-cases the enum fields. An empty execution type
// means a market order.
func (r OrderRequest) Normalize() OrderRequest {
	r.Symbol = strings.ToUpper(strings.TrimSpace(r.Symbol))
	r.CompanyName = strings.TrimSpace(r.CompanyName)
	r.Type = strings.ToLower(strings.TrimSpace(r.Type))
	r.ExecutionType = strings.ToLower(strings.TrimSpace(r.ExecutionType))
	if r.ExecutionType == "" {
		r.ExecutionType = model.ExecutionTypeMarket
	}
	return r
}

// Total is shares × price per share.
func (r OrderRequest) Total() decimal.Decimal {
	return r.PricePerShare.Mul(decimal.NewFromInt(r.Shares))
}

// Validate checks an order against the caller's holdings. Rules are evaluated in order and the
// first failure is returned. It has no side effects.
func Validate(req OrderRequest, holdings Holdings) error {
	if req.Symbol == "" {
		return &ValidationError{Reason: ReasonInvalidSymbol, Message: "symbol is required"}
	}
	if req.Type != model.TransactionTypeBuy && req.Type != model.TransactionTypeSell {
		return &ValidationError{Reason: ReasonInvalidOrderType, Message: "order type must be buy or sell"}
	}
	if req.ExecutionType != model.ExecutionTypeMarket && req.ExecutionType != model.ExecutionTypeLimit {
		return &ValidationError{Reason: ReasonInvalidExecutionType, Message: "execution type must be market or limit"}
	}

	if req.Shares <= 0 || !req.PricePerShare.IsPositive() {
		return &ValidationError{Reason: ReasonInvalidAmount, Message: "shares and price per share must be greater than zero"}
	}

	if req.ExecutionType == model.ExecutionTypeLimit && (req.LimitPrice == nil || !req.LimitPrice.IsPositive()) {
		return &ValidationError{Reason: ReasonMissingLimitPrice, Message: "limit orders require a limit price greater than zero"}
	}

	if req.Type == model.TransactionTypeSell && holdings.Shares < req.Shares {
		return &InsufficientSharesError{Symbol: req.Symbol, Held: holdings.Shares, Requested: req.Shares}
	}

	if req.Type == model.TransactionTypeBuy {
		required := req.Total()
		if holdings.BuyingPower.LessThan(required) {
			return &InsufficientFundsError{Required: required, Available: holdings.BuyingPower}
		}
	}

	return nil
}
