package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"brokerengine/src/database"
	"brokerengine/src/model"
)

// TransactionSearchOptions filters the order history of one user.
type TransactionSearchOptions struct {
	UserID        string
	Symbol        *string
	Status        *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Limit         int
	Offset        int
}

// TransactionRepository handles read/write operations for the transaction log.
type TransactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a new repository instance using the main read/write database.
func NewTransactionRepository() *TransactionRepository {
	logger.WithField("component", "TransactionRepository").
		Info("Creating new TransactionRepository with MainDB")

	return &TransactionRepository{
		db: database.MainDB,
	}
}

// NewTransactionReadRepository creates a repository bound to the read-only connection.
// Use it for history queries only.
func NewTransactionReadRepository() *TransactionRepository {
	logger.WithField("component", "TransactionRepository").
		Info("Creating new TransactionRepository with ReadOnlyDB")

	return &TransactionRepository{
		db: database.ReadDB(),
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *TransactionRepository) WithDB(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create inserts a new transaction row.
func (r *TransactionRepository) Create(
	ctx context.Context,
	txn *model.Transaction,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":   "TransactionRepository",
		"op":     "Create",
		"user":   txn.UserID,
		"symbol": txn.Symbol,
		"type":   txn.Type,
		"shares": txn.Shares,
		"status": txn.Status,
	}).Debug("Creating new transaction")

	err := r.db.WithContext(ctx).Create(txn).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "TransactionRepository",
			"op":   "Create",
		}).WithError(err).Error("Failed to create transaction")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":           "TransactionRepository",
		"op":             "Create",
		"transaction_id": txn.ID,
	}).Info("Transaction created successfully")

	return nil
}

// FindByID fetches a single transaction by its primary ID.
// Returns (nil, nil) if the transaction is not found.
func (r *TransactionRepository) FindByID(
	ctx context.Context,
	id string,
) (*model.Transaction, error) {

	var txn model.Transaction

	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&txn).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo": "TransactionRepository",
				"op":   "FindByID",
				"id":   id,
			}).Info("Transaction not found")

			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "TransactionRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch transaction by ID")

		return nil, err
	}

	return &txn, nil
}

// PendingCursor is the (created_at, id) position of the last pending row of a page.
type PendingCursor struct {
	CreatedAt time.Time
	ID        string
}

// CursorOf returns the cursor that continues after txn.
func CursorOf(txn model.Transaction) *PendingCursor {
	return &PendingCursor{CreatedAt: txn.CreatedAt, ID: txn.ID}
}

// FindPending returns one page of pending transactions, oldest first, starting after the
// cursor. A nil cursor starts at the oldest row. A page shorter than limit is the last one.
func (r *TransactionRepository) FindPending(
	ctx context.Context,
	after *PendingCursor,
	limit int,
) ([]model.Transaction, error) {

	if limit <= 0 {
		limit = 100
	}

	query := r.db.WithContext(ctx).
		Where("status = ?", model.TransactionStatusPending)

	if after != nil {
		query = query.Where("created_at > ? OR (created_at = ? AND id > ?)", after.CreatedAt, after.CreatedAt, after.ID)
	}

	var txns []model.Transaction

	err := query.
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&txns).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":  "TransactionRepository",
			"op":    "FindPending",
			"limit": limit,
		}).WithError(err).Error("Failed to fetch pending transactions")

		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "TransactionRepository",
		"op":          "FindPending",
		"limit":       limit,
		"rows_return": len(txns),
	}).Debug("Pending transactions fetched")

	return txns, nil
}

// MarkCompleted moves a pending transaction to completed at the given execution price.
// It returns false when the row was not pending anymore, so the transition happens at most once.
func (r *TransactionRepository) MarkCompleted(
	ctx context.Context,
	txn *model.Transaction,
	price decimal.Decimal,
	completedAt time.Time,
) (bool, error) {

	total := price.Mul(decimal.NewFromInt(txn.Shares))

	res := r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("id = ? AND status = ?", txn.ID, model.TransactionStatusPending).
		Updates(map[string]interface{}{
			"status":          model.TransactionStatusCompleted,
			"price_per_share": price,
			"total_amount":    total,
			"completed_at":    completedAt,
		})

	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":           "TransactionRepository",
			"op":             "MarkCompleted",
			"transaction_id": txn.ID,
		}).WithError(res.Error).Error("Failed to mark transaction completed")

		return false, res.Error
	}

	if res.RowsAffected == 0 {
		logger.WithFields(map[string]interface{}{
			"repo":           "TransactionRepository",
			"op":             "MarkCompleted",
			"transaction_id": txn.ID,
		}).Warn("Transaction was no longer pending")

		return false, nil
	}

	txn.Status = model.TransactionStatusCompleted
	txn.PricePerShare = price
	txn.TotalAmount = total
	txn.CompletedAt = &completedAt

	return true, nil
}

// ListCompleted returns the completed transactions of one (user, symbol) in settlement order.
func (r *TransactionRepository) ListCompleted(
	ctx context.Context,
	userID string,
	symbol string,
) ([]model.Transaction, error) {

	var txns []model.Transaction

	err := r.db.WithContext(ctx).
		Where("user_id = ? AND symbol = ? AND status = ?", userID, symbol, model.TransactionStatusCompleted).
		Order("completed_at ASC, created_at ASC, id ASC").
		Find(&txns).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "TransactionRepository",
			"op":     "ListCompleted",
			"user":   userID,
			"symbol": symbol,
		}).WithError(err).Error("Failed to list completed transactions")

		return nil, err
	}

	return txns, nil
}

// Search lists transactions of one user, newest first.
func (r *TransactionRepository) Search(
	ctx context.Context,
	options TransactionSearchOptions,
) ([]model.Transaction, error) {

	query := r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("user_id = ?", options.UserID)

	if options.Symbol != nil {
		query = query.Where("symbol = ?", *options.Symbol)
	}
	if options.Status != nil {
		query = query.Where("status = ?", *options.Status)
	}
	if options.CreatedAfter != nil {
		query = query.Where("created_at >= ?", *options.CreatedAfter)
	}
	if options.CreatedBefore != nil {
		query = query.Where("created_at <= ?", *options.CreatedBefore)
	}

	query = query.Order("created_at DESC, id DESC")

	if options.Limit > 0 {
		query = query.Limit(options.Limit)
	}
	if options.Offset > 0 {
		query = query.Offset(options.Offset)
	}

	var txns []model.Transaction
	if err := query.Find(&txns).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "TransactionRepository",
			"op":   "Search",
			"user": options.UserID,
		}).WithError(err).Error("Failed to search transactions")

		return nil, err
	}

	return txns, nil
}
