package marketdata

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

type EventType string

const (
	EventQuote           EventType = "quote"
	EventTrade           EventType = "trade"
	EventStatus          EventType = "status"
	EventSubscriptionAck EventType = "subscription"
	EventError           EventType = "error"
)

// Event is one decoded record of the feed, or a connection status change.
type Event interface {
	Type() EventType
}

type QuoteEvent struct {
	Quote Quote `json:"quote"`
}

type TradeEvent struct {
	Trade Trade `json:"trade"`
}

// StatusEvent reports a connection state change or a status message from the feed.
type StatusEvent struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	// Stale is true while quotes are not being refreshed.
	Stale bool `json:"stale"`
}

// SubscriptionAckEvent is the feed's view of the subscribed symbols.
type SubscriptionAckEvent struct {
	Quotes []string `json:"quotes"`
	Trades []string `json:"trades,omitempty"`
}

type ErrorEvent struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (QuoteEvent) Type() EventType           { return EventQuote }
func (TradeEvent) Type() EventType           { return EventTrade }
func (StatusEvent) Type() EventType          { return EventStatus }
func (SubscriptionAckEvent) Type() EventType { return EventSubscriptionAck }
func (ErrorEvent) Type() EventType           { return EventError }

// Wire discriminants of the feed records.
const (
	recordQuote        = "q"
	recordTrade        = "t"
	recordSuccess      = "success"
	recordSubscription = "subscription"
	recordError        = "error"
)

type envelope struct {
	T string `json:"T" validate:"required"`
}

type quoteRecord struct {
	Symbol        string           `json:"S" validate:"required"`
	BidPrice      decimal.Decimal  `json:"bp"`
	BidSize       *int64           `json:"bs" validate:"omitempty,gte=0"`
	AskPrice      decimal.Decimal  `json:"ap"`
	AskSize       *int64           `json:"as" validate:"omitempty,gte=0"`
	Price         *decimal.Decimal `json:"p"`
	PreviousClose *decimal.Decimal `json:"pc"`
	Volume        *int64           `json:"v" validate:"omitempty,gte=0"`
	Timestamp     time.Time        `json:"t" validate:"required"`
}

type tradeRecord struct {
	Symbol    string          `json:"S" validate:"required"`
	Price     decimal.Decimal `json:"p"`
	Size      int64           `json:"s" validate:"gte=0"`
	Exchange  string          `json:"x"`
	Timestamp time.Time       `json:"t" validate:"required"`
}

type successRecord struct {
	Msg string `json:"msg" validate:"required"`
}

type subscriptionRecord struct {
	Quotes []string `json:"quotes"`
	Trades []string `json:"trades"`
}

type errorRecord struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// controlMessage is what the client sends to the feed.
type controlMessage struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols,omitempty"`
	Key     string   `json:"key,omitempty"`
}

const (
	actionAuth        = "auth"
	actionSubscribe   = "subscribe"
	actionUnsubscribe = "unsubscribe"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeFrame turns one feed frame, a JSON array of records or a single record, into events.
// Records that fail to decode or validate are skipped and reported in the returned error;
// the other records of the frame are still returned. Unknown record types are ignored.
func DecodeFrame(data []byte) ([]Event, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	var records []json.RawMessage
	if data[0] == '[' {
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("invalid frame: %w", err)
		}
	} else {
		records = []json.RawMessage{data}
	}

	events := make([]Event, 0, len(records))
	var errs []error

	for _, raw := range records {
		event, err := decodeRecord(raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if event != nil {
			events = append(events, event)
		}
	}

	return events, errors.Join(errs...)
}

func decodeRecord(raw json.RawMessage) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid record: %w", err)
	}
	if err := validate.Struct(&env); err != nil {
		return nil, fmt.Errorf("record without type: %w", err)
	}

	switch env.T {
	case recordQuote:
		var rec quoteRecord
		if err := decodeValid(raw, &rec); err != nil {
			return nil, fmt.Errorf("quote: %w", err)
		}
		return QuoteEvent{Quote: rec.normalize()}, nil

	case recordTrade:
		var rec tradeRecord
		if err := decodeValid(raw, &rec); err != nil {
			return nil, fmt.Errorf("trade: %w", err)
		}
		if !rec.Price.IsPositive() {
			return nil, fmt.Errorf("trade %s: price must be positive", rec.Symbol)
		}
		return TradeEvent{Trade: rec.normalize()}, nil

	case recordSuccess:
		var rec successRecord
		if err := decodeValid(raw, &rec); err != nil {
			return nil, fmt.Errorf("status: %w", err)
		}
		return StatusEvent{Message: rec.Msg}, nil

	case recordSubscription:
		var rec subscriptionRecord
		if err := decodeValid(raw, &rec); err != nil {
			return nil, fmt.Errorf("subscription: %w", err)
		}
		return SubscriptionAckEvent{Quotes: rec.Quotes, Trades: rec.Trades}, nil

	case recordError:
		var rec errorRecord
		if err := decodeValid(raw, &rec); err != nil {
			return nil, fmt.Errorf("error record: %w", err)
		}
		return ErrorEvent{Code: rec.Code, Message: rec.Msg}, nil
	}

	logger.WithField("T", env.T).Debug("Ignoring unknown feed record")
	return nil, nil
}

func decodeValid(raw json.RawMessage, dst interface{}) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}

func (r quoteRecord) normalize() Quote {
	q := Quote{
		Symbol:        strings.ToUpper(strings.TrimSpace(r.Symbol)),
		Price:         quotePrice(r.Price, r.BidPrice, r.AskPrice),
		Bid:           r.BidPrice,
		Ask:           r.AskPrice,
		BidSize:       r.BidSize,
		AskSize:       r.AskSize,
		Volume:        r.Volume,
		PreviousClose: r.PreviousClose,
		Timestamp:     r.Timestamp.UTC(),
	}
	deriveChange(&q)
	return q
}

func (r tradeRecord) normalize() Trade {
	return Trade{
		Symbol:    strings.ToUpper(strings.TrimSpace(r.Symbol)),
		Price:     r.Price,
		Size:      r.Size,
		Timestamp: r.Timestamp.UTC(),
		Exchange:  r.Exchange,
	}
}

// EncodeEvent renders an event for downstream consumers as {"type": ..., "data": ...}.
func EncodeEvent(e Event) ([]byte, error) {
	return json.Marshal(struct {
		Type EventType `json:"type"`
		Data Event     `json:"data"`
	}{Type: e.Type(), Data: e})
}
