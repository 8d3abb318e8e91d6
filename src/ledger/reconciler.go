package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"brokerengine/src/model"
	"brokerengine/src/orders"
	"brokerengine/src/repository"
)

// averageCostPlaces matches the scale of portfolios.average_cost.
const averageCostPlaces = 10

// Reconciler keeps every position equal to the weighted aggregate of the user's completed
// transactions for that symbol. All writes to one (user, symbol) go through Run, which holds a
// per-key lock around a store transaction and retries when a version check loses a race.
type Reconciler struct {
	db           *gorm.DB
	locks        *KeyedLocker
	maxRetries   int
	positions    *repository.PositionRepository
	profiles     *repository.ProfileRepository
	transactions *repository.TransactionRepository
}

func NewReconciler(db *gorm.DB, config Config) *Reconciler {
	if config.MaxRetries <= 0 {
		config.MaxRetries = 1
	}
	return &Reconciler{
		db:           db,
		locks:        NewKeyedLocker(),
		maxRetries:   config.MaxRetries,
		positions:    repository.NewPositionRepository().WithDB(db),
		profiles:     repository.NewProfileRepository().WithDB(db),
		transactions: repository.NewTransactionRepository().WithDB(db),
	}
}

// Run executes fn in a store transaction while holding the lock for key.
// fn is retried as a whole when it fails with repository.ErrConcurrentUpdate.
func (r *Reconciler) Run(ctx context.Context, key string, fn func(tx *gorm.DB) error) error {
	unlock, err := r.locks.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()

	var lastErr error
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		lastErr = r.db.WithContext(ctx).Transaction(fn)
		if !errors.Is(lastErr, repository.ErrConcurrentUpdate) {
			return lastErr
		}

		logger.WithFields(map[string]interface{}{
			"component": "Reconciler",
			"key":       key,
			"attempt":   attempt,
		}).Warn("Concurrent ledger update, retrying")
	}

	return lastErr
}

// Reconcile applies one completed transaction to its position and the user's funds.
func (r *Reconciler) Reconcile(ctx context.Context, txn model.Transaction) (*model.Position, error) {
	var position *model.Position
	err := r.Run(ctx, txn.PositionKey(), func(tx *gorm.DB) error {
		var err error
		position, err = r.Apply(ctx, tx, txn)
		return err
	})
	return position, err
}

// Apply is the read-modify-write of one completed transaction. It must run inside Run for
// txn.PositionKey(). It returns the resulting position, nil when the position was closed.
//
// A buy debits total_amount from buying power, a sell credits it.
func (r *Reconciler) Apply(ctx context.Context, tx *gorm.DB, txn model.Transaction) (*model.Position, error) {
	if txn.Status != model.TransactionStatusCompleted {
		return nil, fmt.Errorf("transaction %s is %s, only completed transactions are reconciled", txn.ID, txn.Status)
	}

	positions := r.positions.WithDB(tx)
	profiles := r.profiles.WithDB(tx)

	existing, err := positions.FindForUpdate(ctx, txn.UserID, txn.Symbol)
	if err != nil {
		return nil, err
	}

	log := logger.WithFields(map[string]interface{}{
		"component":      "Reconciler",
		"transaction_id": txn.ID,
		"user":           txn.UserID,
		"symbol":         txn.Symbol,
		"type":           txn.Type,
		"shares":         txn.Shares,
		"price":          txn.PricePerShare.String(),
	})

	var result *model.Position

	switch txn.Type {
	case model.TransactionTypeBuy:
		if existing == nil {
			result = &model.Position{
				UserID:      txn.UserID,
				Symbol:      txn.Symbol,
				Shares:      txn.Shares,
				AverageCost: txn.PricePerShare,
			}
			if err := positions.Create(ctx, result); err != nil {
				return nil, err
			}
		} else {
			shares, avg := applyBuy(existing.Shares, existing.AverageCost, txn.Shares, txn.PricePerShare)
			if err := positions.Update(ctx, existing, shares, avg); err != nil {
				return nil, err
			}
			result = existing
		}

		if err := profiles.Debit(ctx, txn.UserID, txn.TotalAmount); err != nil {
			if errors.Is(err, repository.ErrInsufficientBuyingPower) {
				available, gErr := profiles.GetBuyingPower(ctx, txn.UserID)
				if gErr != nil {
					return nil, gErr
				}
				return nil, &orders.InsufficientFundsError{Required: txn.TotalAmount, Available: available}
			}
			return nil, err
		}

	case model.TransactionTypeSell:
		held := int64(0)
		if existing != nil {
			held = existing.Shares
		}
		// Validated at submission, checked again: another order may have settled since.
		if held < txn.Shares {
			return nil, &orders.InsufficientSharesError{Symbol: txn.Symbol, Held: held, Requested: txn.Shares}
		}

		remaining := existing.Shares - txn.Shares
		if remaining == 0 {
			if err := positions.Delete(ctx, existing); err != nil {
				return nil, err
			}
		} else {
			if err := positions.Update(ctx, existing, remaining, existing.AverageCost); err != nil {
				return nil, err
			}
			result = existing
		}

		if err := profiles.Credit(ctx, txn.UserID, txn.TotalAmount); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("transaction %s has unknown type %q", txn.ID, txn.Type)
	}

	if result != nil {
		log.WithFields(map[string]interface{}{
			"new_shares":       result.Shares,
			"new_average_cost": result.AverageCost.String(),
		}).Info("Position reconciled")
	} else {
		log.Info("Position closed")
	}

	return result, nil
}

// Rebuild recomputes a position from the completed transaction history. It reads only.
func (r *Reconciler) Rebuild(ctx context.Context, userID, symbol string) (*model.Position, error) {
	txns, err := r.transactions.ListCompleted(ctx, userID, symbol)
	if err != nil {
		return nil, err
	}
	return Replay(txns)
}

// Replay folds completed transactions, in order, into a position. It returns nil when no
// shares remain.
func Replay(txns []model.Transaction) (*model.Position, error) {
	var position *model.Position

	for _, txn := range txns {
		if txn.Status != model.TransactionStatusCompleted {
			continue
		}

		switch txn.Type {
		case model.TransactionTypeBuy:
			if position == nil {
				position = &model.Position{
					UserID:      txn.UserID,
					Symbol:      txn.Symbol,
					Shares:      txn.Shares,
					AverageCost: txn.PricePerShare,
				}
				continue
			}
			position.Shares, position.AverageCost = applyBuy(position.Shares, position.AverageCost, txn.Shares, txn.PricePerShare)

		case model.TransactionTypeSell:
			held := int64(0)
			if position != nil {
				held = position.Shares
			}
			if held < txn.Shares {
				return nil, &orders.InsufficientSharesError{Symbol: txn.Symbol, Held: held, Requested: txn.Shares}
			}
			position.Shares -= txn.Shares
			if position.Shares == 0 {
				position = nil
			}
		}
	}

	return position, nil
}

// applyBuy returns the new share count and the shares-weighted average cost.
func applyBuy(shares int64, averageCost decimal.Decimal, boughtShares int64, price decimal.Decimal) (int64, decimal.Decimal) {
	newShares := shares + boughtShares
	totalCost := averageCost.Mul(decimal.NewFromInt(shares)).
		Add(price.Mul(decimal.NewFromInt(boughtShares)))
	return newShares, totalCost.Div(decimal.NewFromInt(newShares)).Round(averageCostPlaces)
}
