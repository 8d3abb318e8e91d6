package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"brokerengine/src/auth"
	"brokerengine/src/model"
	"brokerengine/src/orders"
	"brokerengine/src/repository"
)

type orderSubmitter interface {
	Submit(ctx context.Context, userID string, req orders.OrderRequest) (*model.Transaction, error)
}

type transactionSearcher interface {
	Search(ctx context.Context, options repository.TransactionSearchOptions) ([]model.Transaction, error)
}

type submitOrderRequest struct {
	Symbol        string           `json:"symbol" validate:"max=20"`
	CompanyName   string           `json:"companyName" validate:"max=255"`
	Type          string           `json:"type"`
	Shares        int64            `json:"shares"`
	PricePerShare decimal.Decimal  `json:"pricePerShare"`
	ExecutionType string           `json:"executionType"`
	LimitPrice    *decimal.Decimal `json:"limitPrice,omitempty"`
}

type submitOrderResponse struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
}

var requestValidator = validator.New(validator.WithRequiredStructEnabled())

// SubmitOrderHandler places an order for the authenticated user. Domain rules are enforced by
// the submitter; the handler only rejects malformed bodies. Amounts are left to the submitter so
// the response names the rule that failed.
func SubmitOrderHandler(submitter orderSubmitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.GetUserFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		var body submitOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}
		if err := requestValidator.Struct(body); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}

		txn, err := submitter.Submit(r.Context(), userID, orders.OrderRequest{
			Symbol:        body.Symbol,
			CompanyName:   body.CompanyName,
			Type:          body.Type,
			Shares:        body.Shares,
			PricePerShare: body.PricePerShare,
			ExecutionType: body.ExecutionType,
			LimitPrice:    body.LimitPrice,
		})
		if err != nil {
			writeOrderError(w, userID, err)
			return
		}

		writeJSON(w, http.StatusCreated, submitOrderResponse{TransactionID: txn.ID, Status: txn.Status})
	}
}

func writeOrderError(w http.ResponseWriter, userID string, err error) {
	var (
		validationErr *orders.ValidationError
		fundsErr      *orders.InsufficientFundsError
		sharesErr     *orders.InsufficientSharesError
	)

	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:  validationErr.Message,
			Reason: string(validationErr.Reason),
		})
	case errors.As(err, &fundsErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:     fundsErr.Error(),
			Reason:    "insufficient_funds",
			Shortfall: fundsErr.Shortfall().StringFixed(2),
		})
	case errors.As(err, &sharesErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:     sharesErr.Error(),
			Reason:    "insufficient_shares",
			Held:      &sharesErr.Held,
			Requested: &sharesErr.Requested,
		})
	default:
		logger.WithField("user", userID).WithError(err).Error("failed to submit order")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "order could not be placed, please resubmit"})
	}
}

// SearchOrdersHandler returns a handler that lists the order history of the authenticated user.
// Supports pagination and filters (symbol, status, createdFrom, createdTo).
func SearchOrdersHandler(repo transactionSearcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.GetUserFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		var symbol *string
		if symbolParam := r.URL.Query().Get("symbol"); symbolParam != "" {
			symbol = &symbolParam
		}

		var status *string
		if statusParam := r.URL.Query().Get("status"); statusParam != "" {
			switch statusParam {
			case model.TransactionStatusPending, model.TransactionStatusCompleted, model.TransactionStatusFailed:
			default:
				http.Error(w, "invalid status", http.StatusBadRequest)
				return
			}
			status = &statusParam
		}

		var createdFrom, createdTo *time.Time
		if createdFromParam := r.URL.Query().Get("createdFrom"); createdFromParam != "" {
			parsed, err := time.Parse(time.RFC3339, createdFromParam)
			if err != nil {
				http.Error(w, "invalid createdFrom", http.StatusBadRequest)
				return
			}
			createdFrom = &parsed
		}

		if createdToParam := r.URL.Query().Get("createdTo"); createdToParam != "" {
			parsed, err := time.Parse(time.RFC3339, createdToParam)
			if err != nil {
				http.Error(w, "invalid createdTo", http.StatusBadRequest)
				return
			}
			createdTo = &parsed
		}

		page := 1
		if pageParam := r.URL.Query().Get("page"); pageParam != "" {
			parsedPage, err := strconv.Atoi(pageParam)
			if err != nil || parsedPage <= 0 {
				http.Error(w, "invalid page", http.StatusBadRequest)
				return
			}
			page = parsedPage
		}

		pageSize := 20
		if sizeParam := r.URL.Query().Get("pageSize"); sizeParam != "" {
			parsedSize, err := strconv.Atoi(sizeParam)
			if err != nil || parsedSize <= 0 {
				http.Error(w, "invalid pageSize", http.StatusBadRequest)
				return
			}
			pageSize = parsedSize
		}

		offset := (page - 1) * pageSize

		txns, err := repo.Search(r.Context(), repository.TransactionSearchOptions{
			UserID:        userID,
			Symbol:        symbol,
			Status:        status,
			CreatedAfter:  createdFrom,
			CreatedBefore: createdTo,
			Limit:         pageSize,
			Offset:        offset,
		})
		if err != nil {
			logger.WithError(err).Error("failed to search orders")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		if txns == nil {
			txns = []model.Transaction{}
		}
		writeJSON(w, http.StatusOK, txns)
	}
}

// DefaultSearchOrdersHandler wires the handler to the read-only repository.
func DefaultSearchOrdersHandler() http.HandlerFunc {
	return SearchOrdersHandler(repository.NewTransactionReadRepository())
}
