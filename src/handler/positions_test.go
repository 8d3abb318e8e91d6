package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brokerengine/src/model"
	"brokerengine/src/orders"
	"brokerengine/src/settlement"
)

type mockPositions struct {
	positions []model.Position
	stored    *model.Position
	err       error
}

func (m *mockPositions) ListByUser(ctx context.Context, userID string) ([]model.Position, error) {
	return m.positions, m.err
}

func (m *mockPositions) FindByUserAndSymbol(ctx context.Context, userID, symbol string) (*model.Position, error) {
	return m.stored, m.err
}

type mockRebuilder struct {
	position *model.Position
	err      error
	symbol   string
}

func (m *mockRebuilder) Rebuild(ctx context.Context, userID, symbol string) (*model.Position, error) {
	m.symbol = symbol
	return m.position, m.err
}

func verifyRequest(t *testing.T, handler http.HandlerFunc, symbol string) *httptest.ResponseRecorder {
	t.Helper()

	router := chi.NewRouter()
	router.Get("/positions/{symbol}/verify", handler)

	req := withUser(httptest.NewRequest(http.MethodGet, "/positions/"+symbol+"/verify", nil), "u1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestListPositionsHandler(t *testing.T) {
	repo := &mockPositions{positions: []model.Position{
		{Symbol: "AAPL", Shares: 15, AverageCost: decimal.NewFromInt(60)},
	}}

	req := withUser(httptest.NewRequest(http.MethodGet, "/positions", nil), "u1")
	rr := httptest.NewRecorder()
	ListPositionsHandler(repo).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var got []model.Position
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, int64(15), got[0].Shares)

	rr = httptest.NewRecorder()
	ListPositionsHandler(&mockPositions{err: assert.AnError}).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestVerifyPositionHandler_Consistent(t *testing.T) {
	position := &model.Position{Symbol: "AAPL", Shares: 15, AverageCost: decimal.RequireFromString("60.0000000000")}
	rebuilder := &mockRebuilder{position: &model.Position{Symbol: "AAPL", Shares: 15, AverageCost: decimal.NewFromInt(60)}}

	rr := verifyRequest(t, VerifyPositionHandler(&mockPositions{stored: position}, rebuilder), "aapl")

	require.Equal(t, http.StatusOK, rr.Code)
	var resp verifyResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Consistent)
	assert.Equal(t, "AAPL", resp.Symbol)
	assert.Equal(t, "AAPL", rebuilder.symbol)
}

func TestVerifyPositionHandler_Drift(t *testing.T) {
	stored := &model.Position{Symbol: "AAPL", Shares: 20, AverageCost: decimal.NewFromInt(60)}
	rebuilder := &mockRebuilder{position: &model.Position{Symbol: "AAPL", Shares: 15, AverageCost: decimal.NewFromInt(60)}}

	rr := verifyRequest(t, VerifyPositionHandler(&mockPositions{stored: stored}, rebuilder), "AAPL")

	var resp verifyResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.False(t, resp.Consistent)
	assert.Equal(t, int64(20), resp.Stored.Shares)
	assert.Equal(t, int64(15), resp.Rebuilt.Shares)
}

func TestVerifyPositionHandler_ClosedPosition(t *testing.T) {
	rr := verifyRequest(t, VerifyPositionHandler(&mockPositions{}, &mockRebuilder{}), "AAPL")

	var resp verifyResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Consistent)
	assert.Zero(t, resp.Stored.Shares)
}

func TestVerifyPositionHandler_CorruptHistory(t *testing.T) {
	rebuilder := &mockRebuilder{err: &orders.InsufficientSharesError{Symbol: "AAPL", Held: 0, Requested: 5}}

	rr := verifyRequest(t, VerifyPositionHandler(&mockPositions{}, rebuilder), "AAPL")

	require.Equal(t, http.StatusOK, rr.Code)
	var resp verifyResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.False(t, resp.Consistent)
	assert.Contains(t, resp.Message, "insufficient shares")
}

type mockRunner struct {
	summary settlement.Summary
	err     error
}

func (m *mockRunner) RunSettlementPass(ctx context.Context) (settlement.Summary, error) {
	return m.summary, m.err
}

func TestRunSettlementHandler(t *testing.T) {
	runner := &mockRunner{summary: settlement.Summary{
		Processed: 1,
		Completed: 1,
		Results:   []settlement.Result{{TransactionID: "t-1", Symbol: "AAPL", Status: settlement.ResultCompleted}},
	}}

	rr := httptest.NewRecorder()
	RunSettlementHandler(runner).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/settlement/run", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t,
		`{"processed":1,"completed":1,"pending":0,"failed":0,"results":[{"transactionId":"t-1","symbol":"AAPL","status":"completed"}]}`,
		rr.Body.String())

	rr = httptest.NewRecorder()
	RunSettlementHandler(&mockRunner{err: assert.AnError}).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/settlement/run", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
