package execution

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"brokerengine/src/ledger"
	"brokerengine/src/model"
	"brokerengine/src/orders"
	"brokerengine/src/repository"
)

// Engine turns a validated order into a transaction record. Market orders complete
// immediately and are reconciled in the same store transaction; limit orders are recorded as
// pending and left to the settlement poller.
type Engine struct {
	reconciler   *ledger.Reconciler
	transactions *repository.TransactionRepository
	positions    *repository.PositionRepository
	profiles     *repository.ProfileRepository
	now          func() time.Time
}

func NewEngine(db *gorm.DB, reconciler *ledger.Reconciler) *Engine {
	return &Engine{
		reconciler:   reconciler,
		transactions: repository.NewTransactionRepository().WithDB(db),
		positions:    repository.NewPositionRepository().WithDB(db),
		profiles:     repository.NewProfileRepository().WithDB(db),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Submit validates and records an order for userID. It is never retried: on a
// *orders.PersistenceError the order was not placed and the caller has to resubmit.
func (e *Engine) Submit(ctx context.Context, userID string, req orders.OrderRequest) (*model.Transaction, error) {
	req = req.Normalize()

	log := logger.WithFields(map[string]interface{}{
		"component":      "Engine",
		"user":           userID,
		"symbol":         req.Symbol,
		"type":           req.Type,
		"execution_type": req.ExecutionType,
		"shares":         req.Shares,
	})

	holdings, err := e.holdings(ctx, userID, req.Symbol)
	if err != nil {
		return nil, &orders.PersistenceError{Op: "load holdings", Err: err}
	}

	if err := orders.Validate(req, holdings); err != nil {
		log.WithError(err).Info("Order rejected")
		return nil, err
	}

	txn := &model.Transaction{
		ID:            uuid.NewString(),
		UserID:        userID,
		Symbol:        req.Symbol,
		CompanyName:   req.CompanyName,
		Type:          req.Type,
		Shares:        req.Shares,
		PricePerShare: req.PricePerShare,
		TotalAmount:   req.Total(),
		ExecutionType: req.ExecutionType,
		LimitPrice:    req.LimitPrice,
		Status:        model.TransactionStatusPending,
	}

	if txn.IsLimit() {
		if err := e.transactions.Create(ctx, txn); err != nil {
			return nil, &orders.PersistenceError{Op: "create transaction", Err: err}
		}
		log.WithField("transaction_id", txn.ID).Info("Limit order recorded as pending")
		return txn, nil
	}

	completedAt := e.now()
	txn.Status = model.TransactionStatusCompleted
	txn.CompletedAt = &completedAt

	err = e.reconciler.Run(ctx, txn.PositionKey(), func(tx *gorm.DB) error {
		if err := e.transactions.WithDB(tx).Create(ctx, txn); err != nil {
			return err
		}
		_, err := e.reconciler.Apply(ctx, tx, *txn)
		return err
	})
	if err != nil {
		var fundsErr *orders.InsufficientFundsError
		var sharesErr *orders.InsufficientSharesError
		if errors.As(err, &fundsErr) || errors.As(err, &sharesErr) {
			log.WithError(err).Info("Order rejected at execution")
			return nil, err
		}
		return nil, &orders.PersistenceError{Op: "execute market order", Err: err}
	}

	log.WithField("transaction_id", txn.ID).Info("Market order executed")

	return txn, nil
}

func (e *Engine) holdings(ctx context.Context, userID, symbol string) (orders.Holdings, error) {
	shares, err := e.positions.HeldShares(ctx, userID, symbol)
	if err != nil {
		return orders.Holdings{}, err
	}

	buyingPower, err := e.profiles.GetBuyingPower(ctx, userID)
	if err != nil {
		return orders.Holdings{}, err
	}

	return orders.Holdings{Shares: shares, BuyingPower: buyingPower}, nil
}
