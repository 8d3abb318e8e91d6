package settlement

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"brokerengine/src/model"
)

// FillPolicy decides whether a pending order executes now. price is the observed market
// price, zero when unknown.
type FillPolicy interface {
	ShouldFill(ctx context.Context, txn model.Transaction) (fill bool, price decimal.Decimal, err error)
}

// FillFunc adapts a plain function to FillPolicy.
type FillFunc func(ctx context.Context, txn model.Transaction) (bool, decimal.Decimal, error)

func (f FillFunc) ShouldFill(ctx context.Context, txn model.Transaction) (bool, decimal.Decimal, error) {
	return f(ctx, txn)
}

// PriceSource reports the last known trade or quote price of a symbol.
type PriceSource interface {
	LastPrice(symbol string) (decimal.Decimal, bool)
}

// PriceFillPolicy fills a limit buy once the market trades at or below the limit and a
// limit sell once it trades at or above it. Without a known price nothing fills.
type PriceFillPolicy struct {
	Prices PriceSource

	mu      sync.Mutex
	watched map[string]struct{}
}

// symbolTracker is a price source that streams symbols on demand.
type symbolTracker interface {
	TrackSymbols(ctx context.Context, symbols ...string) error
	UntrackSymbols(symbols ...string)
}

func NewPriceFillPolicy(prices PriceSource) *PriceFillPolicy {
	return &PriceFillPolicy{Prices: prices}
}

func (p *PriceFillPolicy) ShouldFill(_ context.Context, txn model.Transaction) (bool, decimal.Decimal, error) {
	if p.Prices == nil {
		return false, decimal.Zero, nil
	}

	last, ok := p.Prices.LastPrice(txn.Symbol)
	if !ok || !last.IsPositive() {
		return false, decimal.Zero, nil
	}

	if txn.LimitPrice == nil {
		return true, last, nil
	}

	if txn.IsBuy() {
		return last.LessThanOrEqual(*txn.LimitPrice), last, nil
	}
	return last.GreaterThanOrEqual(*txn.LimitPrice), last, nil
}

// Watch asks the price source to stream symbols and to load their current prices before the
// orders are evaluated.
func (p *PriceFillPolicy) Watch(ctx context.Context, symbols []string) {
	tracker, ok := p.Prices.(symbolTracker)
	if !ok || len(symbols) == 0 {
		return
	}

	p.mu.Lock()
	if p.watched == nil {
		p.watched = make(map[string]struct{})
	}
	for _, s := range symbols {
		p.watched[s] = struct{}{}
	}
	p.mu.Unlock()

	if err := tracker.TrackSymbols(ctx, symbols...); err != nil {
		logger.WithError(err).WithField("symbols", symbols).Warn("failed to watch pending symbols")
	}
}

// Retain stops streaming watched symbols that have no pending order left.
func (p *PriceFillPolicy) Retain(symbols []string) {
	tracker, ok := p.Prices.(symbolTracker)
	if !ok {
		return
	}

	keep := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		keep[s] = struct{}{}
	}

	var drop []string
	p.mu.Lock()
	for s := range p.watched {
		if _, ok := keep[s]; !ok {
			drop = append(drop, s)
			delete(p.watched, s)
		}
	}
	p.mu.Unlock()

	if len(drop) > 0 {
		sort.Strings(drop)
		tracker.UntrackSymbols(drop...)
	}
}

// executionPrice is the limit price when there is one, else the observed price, else the
// price the order was submitted with.
func executionPrice(txn model.Transaction, observed decimal.Decimal) decimal.Decimal {
	if txn.LimitPrice != nil && txn.LimitPrice.IsPositive() {
		return *txn.LimitPrice
	}
	if observed.IsPositive() {
		return observed
	}
	return txn.PricePerShare
}
