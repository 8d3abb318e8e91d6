package marketdata

import (
	"sync"
	"sync/atomic"
)

// Subscription is a buffered stream of events for a set of symbols. Close is the single
// cancellation point; afterwards the Events channel is closed.
type Subscription struct {
	id       string
	client   *Client
	symbols  []string
	filter   map[string]struct{}
	ch       chan Event
	snapshot []Quote
	dropped  atomic.Int64
	once     sync.Once
}

// Subscribe streams events for symbols, adding them to the client's symbol set. Without symbols
// the subscription receives every event the client handles. Snapshot holds the cached quotes
// of the requested symbols at subscription time.
func (c *Client) Subscribe(symbols ...string) (*Subscription, error) {
	symbols = normalizeSymbols(symbols)

	sub := &Subscription{
		id:      newSubscriptionID(),
		client:  c,
		symbols: symbols,
		ch:      make(chan Event, c.cfg.SubscriberBuffer),
	}
	if len(symbols) > 0 {
		sub.filter = make(map[string]struct{}, len(symbols))
		for _, s := range symbols {
			sub.filter[s] = struct{}{}
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	c.subs[sub.id] = sub
	added := c.symbols.Add(symbols...)
	for _, s := range symbols {
		if q, ok := c.quotes[s]; ok {
			sub.snapshot = append(sub.snapshot, q)
		}
	}
	c.mu.Unlock()

	c.sendDelta(added, nil)

	c.log().WithFields(map[string]interface{}{
		"subscription": sub.id,
		"symbols":      symbols,
	}).Debug("Subscription opened")

	return sub, nil
}

func (s *Subscription) ID() string {
	return s.id
}

func (s *Subscription) Events() <-chan Event {
	return s.ch
}

func (s *Subscription) Snapshot() []Quote {
	return s.snapshot
}

// Dropped counts events missed because the buffer was full.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Subscription) wants(symbol string) bool {
	if s.filter == nil {
		return true
	}
	_, ok := s.filter[symbol]
	return ok
}

// Close stops the subscription and releases its symbols. When it was the last subscription of
// a client configured with CloseWhenIdle, the client is closed too.
func (s *Subscription) Close() {
	s.once.Do(func() {
		c := s.client

		c.mu.Lock()
		if _, ok := c.subs[s.id]; !ok {
			c.mu.Unlock()
			return
		}
		delete(c.subs, s.id)
		close(s.ch)
		removed := c.symbols.Remove(s.symbols...)
		idle := len(c.subs) == 0 && c.cfg.CloseWhenIdle
		c.mu.Unlock()

		c.sendDelta(nil, removed)

		if idle {
			c.Close()
		}
	})
}

// SubscribeQuotes delivers the cached snapshot and then live quotes and trades of symbols to
// callbacks, called from one goroutine. The returned func unsubscribes; no callback starts
// after it returns.
func SubscribeQuotes(client *Client, symbols []string, onQuote func(Quote), onTrade func(Trade)) (func(), error) {
	sub, err := client.Subscribe(symbols...)
	if err != nil {
		return nil, err
	}

	var disposed atomic.Bool

	deliver := func(e Event) {
		if disposed.Load() {
			return
		}
		switch ev := e.(type) {
		case QuoteEvent:
			if onQuote != nil {
				onQuote(ev.Quote)
			}
		case TradeEvent:
			if onTrade != nil {
				onTrade(ev.Trade)
			}
		}
	}

	go func() {
		for _, q := range sub.Snapshot() {
			deliver(QuoteEvent{Quote: q})
		}
		for e := range sub.Events() {
			deliver(e)
		}
	}()

	return func() {
		disposed.Store(true)
		sub.Close()
	}, nil
}
