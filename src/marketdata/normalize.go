package marketdata

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Quote is the canonical best bid/ask and last price of a symbol. Change and ChangePercent
// stay nil until PreviousClose is known.
type Quote struct {
	Symbol        string           `json:"symbol"`
	Price         decimal.Decimal  `json:"price"`
	Bid           decimal.Decimal  `json:"bid"`
	Ask           decimal.Decimal  `json:"ask"`
	BidSize       *int64           `json:"bidSize,omitempty"`
	AskSize       *int64           `json:"askSize,omitempty"`
	Volume        *int64           `json:"volume,omitempty"`
	PreviousClose *decimal.Decimal `json:"previousClose,omitempty"`
	Change        *decimal.Decimal `json:"change,omitempty"`
	ChangePercent *decimal.Decimal `json:"changePercent,omitempty"`
	Timestamp     time.Time        `json:"timestamp"`
}

// Trade is one execution printed on the feed.
type Trade struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Size      int64           `json:"size"`
	Timestamp time.Time       `json:"timestamp"`
	Exchange  string          `json:"exchange"`
}

// MergeQuote folds a freshly normalized tick into the previously cached quote of the same
// symbol. PreviousClose and the cumulative Volume carry over when the tick does not set them,
// and the change fields are recomputed.
func MergeQuote(prev *Quote, next Quote) Quote {
	if prev != nil {
		if next.PreviousClose == nil {
			next.PreviousClose = prev.PreviousClose
		}
		if next.Volume == nil {
			next.Volume = prev.Volume
		}
		if next.Price.IsZero() {
			next.Price = prev.Price
		}
	}
	deriveChange(&next)
	return next
}

// ApplyTrade adds the trade size to the quote's cumulative volume. A trade for a symbol
// without a cached quote starts one at the trade price.
func ApplyTrade(prev *Quote, t Trade) Quote {
	var q Quote
	if prev != nil {
		q = *prev
	} else {
		q = Quote{Symbol: t.Symbol, Price: t.Price, Timestamp: t.Timestamp}
	}

	volume := t.Size
	if q.Volume != nil {
		volume += *q.Volume
	}
	q.Volume = &volume

	deriveChange(&q)
	return q
}

// quotePrice is the explicit last price when the feed sends one, else the bid/ask midpoint,
// else whichever side is quoted.
func quotePrice(price *decimal.Decimal, bid, ask decimal.Decimal) decimal.Decimal {
	if price != nil && price.IsPositive() {
		return *price
	}
	switch {
	case bid.IsPositive() && ask.IsPositive():
		return bid.Add(ask).Div(decimal.NewFromInt(2))
	case bid.IsPositive():
		return bid
	case ask.IsPositive():
		return ask
	}
	return decimal.Zero
}

func deriveChange(q *Quote) {
	if q.PreviousClose == nil || !q.PreviousClose.IsPositive() || q.Price.IsZero() {
		q.Change = nil
		q.ChangePercent = nil
		return
	}

	change := q.Price.Sub(*q.PreviousClose)
	percent := change.Div(*q.PreviousClose).Mul(hundred).Round(4)
	q.Change = &change
	q.ChangePercent = &percent
}
