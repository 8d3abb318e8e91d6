package repository

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"brokerengine/src/database"
	"brokerengine/src/model"
)

// PositionRepository reads and writes the portfolios table. Writes use the row version as a
// compare-and-swap guard; a lost race surfaces as ErrConcurrentUpdate.
type PositionRepository struct {
	db *gorm.DB
}

func NewPositionRepository() *PositionRepository {
	logger.WithField("component", "PositionRepository").
		Info("Creating new PositionRepository with MainDB")

	return &PositionRepository{
		db: database.MainDB,
	}
}

// WithDB binds the repository to a specific session/transaction.
func (r *PositionRepository) WithDB(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// FindByUserAndSymbol returns (nil, nil) when the user holds no shares of symbol.
func (r *PositionRepository) FindByUserAndSymbol(
	ctx context.Context,
	userID string,
	symbol string,
) (*model.Position, error) {
	return r.find(ctx, r.db.WithContext(ctx), userID, symbol)
}

// FindForUpdate is FindByUserAndSymbol with a row lock; call it inside a transaction.
func (r *PositionRepository) FindForUpdate(
	ctx context.Context,
	userID string,
	symbol string,
) (*model.Position, error) {
	return r.find(ctx, r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), userID, symbol)
}

func (r *PositionRepository) find(
	_ context.Context,
	query *gorm.DB,
	userID string,
	symbol string,
) (*model.Position, error) {

	var position model.Position

	err := query.
		Where("user_id = ? AND symbol = ?", userID, symbol).
		First(&position).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":   "PositionRepository",
			"op":     "find",
			"user":   userID,
			"symbol": symbol,
		}).WithError(err).Error("Failed to fetch position")

		return nil, err
	}

	return &position, nil
}

// HeldShares returns the share count for (user, symbol), zero when no position exists.
func (r *PositionRepository) HeldShares(
	ctx context.Context,
	userID string,
	symbol string,
) (int64, error) {
	position, err := r.FindByUserAndSymbol(ctx, userID, symbol)
	if err != nil {
		return 0, err
	}
	if position == nil {
		return 0, nil
	}
	return position.Shares, nil
}

// ListByUser returns every open position of a user ordered by symbol.
func (r *PositionRepository) ListByUser(
	ctx context.Context,
	userID string,
) ([]model.Position, error) {

	var positions []model.Position

	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("symbol ASC").
		Find(&positions).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "ListByUser",
			"user": userID,
		}).WithError(err).Error("Failed to list positions")

		return nil, err
	}

	return positions, nil
}

// Create inserts a new position. A duplicate (user, symbol) means another writer created it
// first and is reported as ErrConcurrentUpdate.
func (r *PositionRepository) Create(
	ctx context.Context,
	position *model.Position,
) error {

	err := r.db.WithContext(ctx).Create(position).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrConcurrentUpdate
		}

		logger.WithFields(map[string]interface{}{
			"repo":   "PositionRepository",
			"op":     "Create",
			"user":   position.UserID,
			"symbol": position.Symbol,
		}).WithError(err).Error("Failed to create position")

		return err
	}

	return nil
}

// Update writes new shares and average cost if the row still carries the version that was read.
func (r *PositionRepository) Update(
	ctx context.Context,
	position *model.Position,
	shares int64,
	averageCost decimal.Decimal,
) error {

	res := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("id = ? AND version = ?", position.ID, position.Version).
		Updates(map[string]interface{}{
			"shares":       shares,
			"average_cost": averageCost,
			"version":      gorm.Expr("version + 1"),
		})

	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "PositionRepository",
			"op":          "Update",
			"position_id": position.ID,
		}).WithError(res.Error).Error("Failed to update position")

		return res.Error
	}

	if res.RowsAffected == 0 {
		return ErrConcurrentUpdate
	}

	position.Shares = shares
	position.AverageCost = averageCost
	position.Version++

	return nil
}

// Delete removes the position if the row still carries the version that was read.
func (r *PositionRepository) Delete(
	ctx context.Context,
	position *model.Position,
) error {

	res := r.db.WithContext(ctx).
		Where("id = ? AND version = ?", position.ID, position.Version).
		Delete(&model.Position{})

	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "PositionRepository",
			"op":          "Delete",
			"position_id": position.ID,
		}).WithError(res.Error).Error("Failed to delete position")

		return res.Error
	}

	if res.RowsAffected == 0 {
		return ErrConcurrentUpdate
	}

	return nil
}
