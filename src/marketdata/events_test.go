package marketdata

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrame(t *testing.T) {
	frame := `[
		{"T":"success","msg":"connected"},
		{"T":"subscription","quotes":["AAPL","MSFT"]},
		{"T":"q","S":"AAPL","bp":189.5,"bs":2,"ap":"190.5","as":3,"pc":180,"t":"2026-03-02T15:04:05Z"},
		{"T":"t","S":"AAPL","p":190.1,"s":100,"x":"V","t":"2026-03-02T15:04:06Z"},
		{"T":"error","code":405,"msg":"symbol limit exceeded"},
		{"T":"b","S":"AAPL"}
	]`

	events, err := DecodeFrame([]byte(frame))
	require.NoError(t, err)
	require.Len(t, events, 5)

	status, ok := events[0].(StatusEvent)
	require.True(t, ok)
	assert.Equal(t, "connected", status.Message)

	ack, ok := events[1].(SubscriptionAckEvent)
	require.True(t, ok)
	assert.Equal(t, []string{"AAPL", "MSFT"}, ack.Quotes)

	qe, ok := events[2].(QuoteEvent)
	require.True(t, ok)
	assert.Equal(t, "AAPL", qe.Quote.Symbol)
	assert.True(t, d("190").Equal(qe.Quote.Price), "midpoint, got %s", qe.Quote.Price)
	assert.True(t, d("189.5").Equal(qe.Quote.Bid))
	assert.True(t, d("190.5").Equal(qe.Quote.Ask))
	assert.Equal(t, int64(2), *qe.Quote.BidSize)
	assert.Equal(t, int64(3), *qe.Quote.AskSize)
	require.NotNil(t, qe.Quote.Change)
	assert.True(t, d("10").Equal(*qe.Quote.Change))
	assert.Equal(t, 2026, qe.Quote.Timestamp.Year())

	te, ok := events[3].(TradeEvent)
	require.True(t, ok)
	assert.Equal(t, int64(100), te.Trade.Size)
	assert.Equal(t, "V", te.Trade.Exchange)
	assert.True(t, d("190.1").Equal(te.Trade.Price))

	ee, ok := events[4].(ErrorEvent)
	require.True(t, ok)
	assert.Equal(t, 405, ee.Code)
	assert.Equal(t, "symbol limit exceeded", ee.Message)
}

func TestDecodeFrameSingleRecord(t *testing.T) {
	events, err := DecodeFrame([]byte(`{"T":"q","S":"MSFT","bp":1,"ap":3,"p":2.5,"t":"2026-03-02T15:04:05Z"}`))
	require.NoError(t, err)
	require.Len(t, events, 1)

	qe := events[0].(QuoteEvent)
	assert.True(t, d("2.5").Equal(qe.Quote.Price))
	assert.Nil(t, qe.Quote.Change)
}

func TestDecodeFrameUpperCasesSymbols(t *testing.T) {
	events, err := DecodeFrame([]byte(`[
		{"T":"q","S":"aapl","bp":1,"ap":3,"t":"2026-03-02T15:04:05Z"},
		{"T":"t","S":" msft","p":2,"s":5,"x":"V","t":"2026-03-02T15:04:06Z"}
	]`))
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "AAPL", events[0].(QuoteEvent).Quote.Symbol)
	assert.Equal(t, "MSFT", events[1].(TradeEvent).Trade.Symbol)
}

func TestDecodeFrameSkipsInvalidRecords(t *testing.T) {
	frame := `[
		{"T":"q","bp":1,"ap":2,"t":"2026-03-02T15:04:05Z"},
		{"T":"t","S":"AAPL","p":0,"s":1,"t":"2026-03-02T15:04:05Z"},
		{"T":"t","S":"AAPL","p":10,"s":-1,"t":"2026-03-02T15:04:05Z"},
		{"S":"AAPL"},
		{"T":"t","S":"AAPL","p":10,"s":1,"t":"2026-03-02T15:04:05Z"}
	]`

	events, err := DecodeFrame([]byte(frame))
	assert.Error(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventTrade, events[0].Type())
}

func TestDecodeFrameMalformed(t *testing.T) {
	events, err := DecodeFrame([]byte(`[{"T":"q"`))
	assert.Error(t, err)
	assert.Empty(t, events)

	events, err = DecodeFrame([]byte("  "))
	assert.NoError(t, err)
	assert.Empty(t, events)
}

func TestEncodeEvent(t *testing.T) {
	payload, err := EncodeEvent(StatusEvent{Status: StatusConnected})
	require.NoError(t, err)

	var out struct {
		Type string                 `json:"type"`
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(payload, &out))
	assert.Equal(t, "status", out.Type)
	assert.Equal(t, "connected", out.Data["status"])
	assert.Equal(t, false, out.Data["stale"])
}

func TestControlMessageWireFormat(t *testing.T) {
	payload, err := json.Marshal(controlMessage{Action: actionSubscribe, Symbols: []string{"AAPL"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"subscribe","symbols":["AAPL"]}`, string(payload))
}
