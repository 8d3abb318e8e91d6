package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"brokerengine/src/auth"
	"brokerengine/src/model"
	"brokerengine/src/orders"
)

type positionReader interface {
	ListByUser(ctx context.Context, userID string) ([]model.Position, error)
	FindByUserAndSymbol(ctx context.Context, userID, symbol string) (*model.Position, error)
}

type positionRebuilder interface {
	Rebuild(ctx context.Context, userID, symbol string) (*model.Position, error)
}

type positionState struct {
	Shares      int64           `json:"shares"`
	AverageCost decimal.Decimal `json:"averageCost"`
}

type verifyResponse struct {
	Symbol     string        `json:"symbol"`
	Consistent bool          `json:"consistent"`
	Stored     positionState `json:"stored"`
	Rebuilt    positionState `json:"rebuilt"`
	Message    string        `json:"message,omitempty"`
}

// ListPositionsHandler returns the open positions of the authenticated user.
func ListPositionsHandler(repo positionReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.GetUserFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		positions, err := repo.ListByUser(r.Context(), userID)
		if err != nil {
			logger.WithError(err).Error("failed to list positions")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if positions == nil {
			positions = []model.Position{}
		}

		writeJSON(w, http.StatusOK, positions)
	}
}

// VerifyPositionHandler compares the stored position of a symbol with the one rebuilt from the
// completed transaction history.
func VerifyPositionHandler(repo positionReader, rebuilder positionRebuilder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.GetUserFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		symbol := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "symbol")))
		if symbol == "" {
			http.Error(w, "invalid symbol", http.StatusBadRequest)
			return
		}

		log := logger.WithFields(map[string]interface{}{
			"handler": "VerifyPosition",
			"user":    userID,
			"symbol":  symbol,
		})

		stored, err := repo.FindByUserAndSymbol(r.Context(), userID, symbol)
		if err != nil {
			log.WithError(err).Error("failed to load position")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		resp := verifyResponse{Symbol: symbol, Stored: stateOf(stored)}

		rebuilt, err := rebuilder.Rebuild(r.Context(), userID, symbol)
		var sharesErr *orders.InsufficientSharesError
		switch {
		case errors.As(err, &sharesErr):
			resp.Message = sharesErr.Error()
		case err != nil:
			log.WithError(err).Error("failed to rebuild position")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		default:
			resp.Rebuilt = stateOf(rebuilt)
			resp.Consistent = resp.Stored.Shares == resp.Rebuilt.Shares &&
				resp.Stored.AverageCost.Equal(resp.Rebuilt.AverageCost)
		}

		if !resp.Consistent {
			log.WithField("stored", resp.Stored).WithField("rebuilt", resp.Rebuilt).Warn("position drift detected")
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func stateOf(p *model.Position) positionState {
	if p == nil {
		return positionState{AverageCost: decimal.Zero}
	}
	return positionState{Shares: p.Shares, AverageCost: p.AverageCost}
}
