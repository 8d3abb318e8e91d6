package handler

import (
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brokerengine/src/marketdata"
)

type fakeStream struct {
	events   chan marketdata.Event
	snapshot []marketdata.Quote
	closed   atomic.Bool
}

func (f *fakeStream) Events() <-chan marketdata.Event { return f.events }
func (f *fakeStream) Snapshot() []marketdata.Quote    { return f.snapshot }
func (f *fakeStream) Close()                          { f.closed.Store(true) }

type relayFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readFrame(t *testing.T, conn *websocket.Conn) relayFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var f relayFrame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func TestQuoteStreamHandler_Relay(t *testing.T) {
	stream := &fakeStream{
		events:   make(chan marketdata.Event, 4),
		snapshot: []marketdata.Quote{{Symbol: "AAPL", Price: decimal.NewFromInt(150)}},
	}
	var requested []string
	handler := QuoteStreamHandler(func(symbols ...string) (quoteStream, error) {
		requested = symbols
		return stream, nil
	})

	srv := httptest.NewServer(handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/quotes/stream?symbols=aapl,%20msft,"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	first := readFrame(t, conn)
	assert.Equal(t, string(marketdata.EventQuote), first.Type)
	var q marketdata.Quote
	require.NoError(t, json.Unmarshal(first.Data, &q))
	assert.Equal(t, "AAPL", q.Symbol)
	assert.Equal(t, []string{"AAPL", "MSFT"}, requested)

	stream.events <- marketdata.StatusEvent{Status: marketdata.StatusConnecting, Stale: true}
	second := readFrame(t, conn)
	assert.Equal(t, string(marketdata.EventStatus), second.Type)

	close(stream.events)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway))

	assert.Eventually(t, stream.closed.Load, time.Second, 10*time.Millisecond)
}

func TestQuoteStreamHandler_ClientClosed(t *testing.T) {
	handler := QuoteStreamHandler(func(symbols ...string) (quoteStream, error) {
		return nil, marketdata.ErrClientClosed
	})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/quotes/stream", nil))
	assert.Equal(t, 503, rr.Code)
}
