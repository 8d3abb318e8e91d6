package marketdata

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

const (
	defaultReadLimit        = 1 << 20
	defaultHandshakeTimeout = 10 * time.Second
	defaultSendTimeout      = 5 * time.Second
	defaultPingPeriod       = 15 * time.Second
	defaultSubscriberBuffer = 256
	closeWaitTimeout        = 5 * time.Second
)

// Status is the state of the feed connection.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// Client owns one connection to the push price feed. It reconnects with backoff until it is
// closed, keeps the latest quote per symbol and fans events out to subscriptions.
type Client struct {
	cfg      Config
	dialer   *websocket.Dialer
	snapshot SnapshotFetcher
	backoff  Backoff

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	// writeMu orders every frame written to the connection.
	writeMu sync.Mutex

	mu      sync.RWMutex
	status  Status
	conn    *websocket.Conn
	closed  bool
	base    []string
	tracked map[string]struct{}
	symbols *symbolSet
	subs    map[string]*Subscription
	quotes  map[string]Quote
}

// Open starts a client for symbols. With a non-empty symbol set the current quotes are fetched
// once before the stream connects. Open does not wait for the connection.
func Open(ctx context.Context, cfg Config, symbols ...string) (*Client, error) {
	if strings.TrimSpace(cfg.WSURL) == "" {
		return nil, errors.New("market data websocket url is required")
	}
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = defaultPingPeriod
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = defaultSubscriberBuffer
	}

	snapshot := cfg.Snapshot
	if snapshot == nil && cfg.RESTURL != "" {
		snapshot = NewRESTSnapshotFetcher(cfg.RESTURL, cfg.APIKey)
	}

	ctx, cancel := context.WithCancel(ctx)

	c := &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultHandshakeTimeout,
		},
		snapshot: snapshot,
		backoff:  cfg.backoff(),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		status:   StatusDisconnected,
		base:     normalizeSymbols(symbols),
		tracked:  make(map[string]struct{}),
		symbols:  newSymbolSet(),
		subs:     make(map[string]*Subscription),
		quotes:   make(map[string]Quote),
	}
	c.symbols.Add(c.base...)

	go c.run()

	return c, nil
}

func normalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func (c *Client) log() *logger.Entry {
	return logger.WithFields(map[string]interface{}{
		"component": "marketdata.Client",
		"endpoint":  c.cfg.WSURL,
	})
}

// run is the connection goroutine: snapshot, then connect, read and reconnect until closed.
func (c *Client) run() {
	defer close(c.done)

	c.loadSnapshot()

	for {
		if c.ctx.Err() != nil {
			c.setStatus(StatusDisconnected, "")
			return
		}

		c.setStatus(StatusConnecting, "")

		conn, err := c.dial()
		if err == nil {
			c.backoff.Reset()
			err = c.serve(conn)
		}

		if c.ctx.Err() != nil {
			c.setStatus(StatusDisconnected, "")
			return
		}

		if err != nil {
			c.log().WithError(err).Warn("Market data stream failed")
			c.setStatus(StatusError, err.Error())
		}
		c.setStatus(StatusDisconnected, "")

		delay := c.backoff.Next()
		if c.cfg.delayObserver != nil {
			c.cfg.delayObserver(delay)
		}
		c.log().WithField("delay", delay.String()).Info("Reconnecting to market data stream")

		timer := time.NewTimer(delay)
		select {
		case <-c.ctx.Done():
			timer.Stop()
			c.setStatus(StatusDisconnected, "")
			return
		case <-timer.C:
		}
	}
}

func (c *Client) loadSnapshot() {
	c.mu.RLock()
	symbols := append([]string(nil), c.base...)
	c.mu.RUnlock()

	if c.snapshot == nil || len(symbols) == 0 {
		return
	}

	quotes, err := c.snapshot.FetchSnapshot(c.ctx, symbols)
	if err != nil {
		if c.ctx.Err() == nil {
			c.log().WithError(err).Warn("Failed to fetch quote snapshot")
		}
		return
	}

	for _, q := range quotes {
		c.applyQuote(q)
	}

	c.log().WithField("quotes", len(quotes)).Info("Quote snapshot loaded")
}

func (c *Client) dial() (*websocket.Conn, error) {
	header := make(http.Header)
	if c.cfg.APIKey != "" {
		header.Set(snapshotAPIKeyHeaderName, c.cfg.APIKey)
	}

	conn, resp, err := c.dialer.DialContext(c.ctx, c.cfg.WSURL, header)
	if err != nil {
		if resp != nil {
			c.log().WithError(err).WithField("status", resp.Status).Error("Market data connection failed")
		}
		return nil, &StreamError{Op: "dial", Err: err}
	}

	return conn, nil
}

// serve subscribes the current symbol set on conn and reads until the connection breaks or
// the client is closed. A clean close from the feed returns nil.
func (c *Client) serve(conn *websocket.Conn) error {
	conn.SetReadLimit(defaultReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.PingPeriod * 2))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.PingPeriod * 2))
	})

	stop := context.AfterFunc(c.ctx, func() { _ = conn.Close() })
	defer stop()

	c.writeMu.Lock()
	c.mu.Lock()
	c.conn = conn
	symbols := c.symbols.Symbols()
	c.mu.Unlock()

	var err error
	if c.cfg.APIKey != "" {
		err = c.write(conn, controlMessage{Action: actionAuth, Key: c.cfg.APIKey})
	}
	if err == nil && len(symbols) > 0 {
		err = c.write(conn, controlMessage{Action: actionSubscribe, Symbols: symbols})
	}
	c.writeMu.Unlock()

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close()
	}()

	if err != nil {
		return err
	}

	c.setStatus(StatusConnected, "")
	c.log().WithField("symbols", symbols).Info("Market data stream connected")

	pingDone := make(chan struct{})
	defer close(pingDone)
	go c.pingLoop(conn, pingDone)

	return c.readLoop(conn)
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log().Info("Market data stream closed by feed")
				return nil
			}
			return &StreamError{Op: "read", Err: err}
		}

		events, err := DecodeFrame(data)
		if err != nil {
			c.log().WithError(err).Warn("Dropped invalid feed records")
		}

		for _, e := range events {
			c.handle(e)
		}
	}
}

func (c *Client) handle(e Event) {
	switch ev := e.(type) {
	case QuoteEvent:
		c.applyQuote(ev.Quote)

	case TradeEvent:
		c.mu.Lock()
		prev, ok := c.quotes[ev.Trade.Symbol]
		var prevPtr *Quote
		if ok {
			prevPtr = &prev
		}
		c.quotes[ev.Trade.Symbol] = ApplyTrade(prevPtr, ev.Trade)
		c.mu.Unlock()
		c.publish(ev, ev.Trade.Symbol)

	case StatusEvent:
		status := c.Status()
		ev.Status = status
		ev.Stale = status != StatusConnected
		c.publish(ev, "")

	case ErrorEvent:
		c.log().WithFields(map[string]interface{}{
			"code": ev.Code,
			"msg":  ev.Message,
		}).Warn("Market data feed reported an error")
		c.publish(ev, "")

	default:
		c.publish(e, "")
	}
}

func (c *Client) applyQuote(q Quote) {
	c.mu.Lock()
	prev, ok := c.quotes[q.Symbol]
	var prevPtr *Quote
	if ok {
		prevPtr = &prev
	}
	merged := MergeQuote(prevPtr, q)
	c.quotes[q.Symbol] = merged
	c.mu.Unlock()

	c.publish(QuoteEvent{Quote: merged}, merged.Symbol)
}

// seedQuote caches a snapshot quote unless the stream already delivered a fresher one.
func (c *Client) seedQuote(q Quote) {
	c.mu.Lock()
	if _, ok := c.quotes[q.Symbol]; ok {
		c.mu.Unlock()
		return
	}
	merged := MergeQuote(nil, q)
	c.quotes[q.Symbol] = merged
	c.mu.Unlock()

	c.publish(QuoteEvent{Quote: merged}, merged.Symbol)
}

func (c *Client) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(defaultSendTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.log().WithError(err).Debug("Ping failed")
			}
		}
	}
}

// write sends a control message. Callers hold writeMu.
func (c *Client) write(conn *websocket.Conn, msg controlMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(defaultSendTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return &StreamError{Op: msg.Action, Err: err}
	}
	return nil
}

// sendDelta subscribes added and unsubscribes removed symbols on the live connection, if any.
// Without a connection the next connect sends the full set.
func (c *Client) sendDelta(added, removed []string) {
	if len(added) == 0 && len(removed) == 0 {
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return
	}

	if len(removed) > 0 {
		if err := c.write(conn, controlMessage{Action: actionUnsubscribe, Symbols: removed}); err != nil {
			c.log().WithError(err).Warn("Failed to send unsubscribe")
		}
	}
	if len(added) > 0 {
		if err := c.write(conn, controlMessage{Action: actionSubscribe, Symbols: added}); err != nil {
			c.log().WithError(err).Warn("Failed to send subscribe")
		}
	}
}

func (c *Client) setStatus(status Status, message string) {
	c.mu.Lock()
	if c.status == status && message == "" {
		c.mu.Unlock()
		return
	}
	c.status = status
	c.mu.Unlock()

	c.publish(StatusEvent{Status: status, Message: message, Stale: status != StatusConnected}, "")
}

// publish fans e out to every subscription interested in symbol; an empty symbol reaches all.
// A subscription whose buffer is full misses the event.
func (c *Client) publish(e Event, symbol string) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, sub := range c.subs {
		if symbol != "" && !sub.wants(symbol) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			sub.dropped.Add(1)
		}
	}
}

// UpdateSymbols replaces the symbols the client itself streams. Changes are sent to a live
// connection as subscribe/unsubscribe deltas.
func (c *Client) UpdateSymbols(symbols ...string) error {
	next := normalizeSymbols(symbols)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}

	nextSet := make(map[string]struct{}, len(next))
	for _, s := range next {
		nextSet[s] = struct{}{}
	}
	prevSet := make(map[string]struct{}, len(c.base))
	for _, s := range c.base {
		prevSet[s] = struct{}{}
	}

	var drop, keep []string
	for _, s := range c.base {
		if _, ok := nextSet[s]; !ok {
			drop = append(drop, s)
		}
	}
	for _, s := range next {
		if _, ok := prevSet[s]; !ok {
			keep = append(keep, s)
		}
	}

	removed := c.symbols.Remove(drop...)
	added := c.symbols.Add(keep...)
	c.base = next
	c.mu.Unlock()

	c.sendDelta(added, removed)
	return nil
}

// TrackSymbols streams symbols on behalf of a caller that needs their prices, on top of the
// configured set. Quotes of newly tracked symbols that are not cached yet are fetched before it
// returns, so LastPrice answers without waiting for the first tick.
func (c *Client) TrackSymbols(ctx context.Context, symbols ...string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}

	var fresh, uncached []string
	for _, s := range normalizeSymbols(symbols) {
		if _, ok := c.tracked[s]; ok {
			continue
		}
		c.tracked[s] = struct{}{}
		fresh = append(fresh, s)
		if _, ok := c.quotes[s]; !ok {
			uncached = append(uncached, s)
		}
	}
	added := c.symbols.Add(fresh...)
	c.mu.Unlock()

	c.sendDelta(added, nil)

	if c.snapshot == nil || len(uncached) == 0 {
		return nil
	}

	quotes, err := c.snapshot.FetchSnapshot(ctx, uncached)
	if err != nil {
		return &StreamError{Op: "snapshot", Err: err}
	}
	for _, q := range quotes {
		c.seedQuote(q)
	}
	return nil
}

// UntrackSymbols releases symbols added by TrackSymbols. Symbols still wanted by the configured
// set or a subscription keep streaming.
func (c *Client) UntrackSymbols(symbols ...string) {
	c.mu.Lock()
	var drop []string
	for _, s := range normalizeSymbols(symbols) {
		if _, ok := c.tracked[s]; !ok {
			continue
		}
		delete(c.tracked, s)
		drop = append(drop, s)
	}
	removed := c.symbols.Remove(drop...)
	c.mu.Unlock()

	c.sendDelta(nil, removed)
}

// Symbols returns every symbol currently streamed.
func (c *Client) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.symbols.Symbols()
}

func (c *Client) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Quote returns the cached quote of symbol.
func (c *Client) Quote(symbol string) (Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.quotes[strings.ToUpper(symbol)]
	return q, ok
}

// LastPrice returns the last known price of symbol.
func (c *Client) LastPrice(symbol string) (decimal.Decimal, bool) {
	q, ok := c.Quote(symbol)
	if !ok || !q.Price.IsPositive() {
		return decimal.Zero, false
	}
	return q.Price, true
}

// Done is closed once the connection goroutine has stopped.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close unsubscribes every symbol, closes the connection, stops any pending reconnect or
// snapshot fetch and closes all subscriptions. It is safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() {
		c.log().Info("Closing market data client")

		c.writeMu.Lock()
		c.mu.Lock()
		c.closed = true
		conn := c.conn
		symbols := c.symbols.Symbols()
		c.mu.Unlock()

		if conn != nil {
			if len(symbols) > 0 {
				if err := c.write(conn, controlMessage{Action: actionUnsubscribe, Symbols: symbols}); err != nil {
					c.log().WithError(err).Debug("Failed to unsubscribe on close")
				}
			}
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
		}
		c.writeMu.Unlock()

		c.cancel()

		select {
		case <-c.done:
		case <-time.After(closeWaitTimeout):
			c.log().Warn("Timeout waiting for market data goroutine")
		}

		c.mu.Lock()
		for id, sub := range c.subs {
			close(sub.ch)
			delete(c.subs, id)
		}
		c.mu.Unlock()
	})
}

func newSubscriptionID() string {
	return uuid.NewString()
}
