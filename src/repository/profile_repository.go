package repository

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"brokerengine/src/database"
	"brokerengine/src/model"
)

// ProfileRepository owns reads and guarded writes of profiles.buying_power.
type ProfileRepository struct {
	db *gorm.DB
}

func NewProfileRepository() *ProfileRepository {
	logger.WithField("component", "ProfileRepository").
		Info("Creating new ProfileRepository with MainDB")

	return &ProfileRepository{
		db: database.MainDB,
	}
}

// WithDB binds the repository to a specific session/transaction.
func (r *ProfileRepository) WithDB(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetBuyingPower returns the user's available funds; a user without a profile has none.
func (r *ProfileRepository) GetBuyingPower(
	ctx context.Context,
	userID string,
) (decimal.Decimal, error) {

	var profile model.Profile

	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&profile).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "ProfileRepository",
			"op":   "GetBuyingPower",
			"user": userID,
		}).WithError(err).Error("Failed to fetch buying power")

		return decimal.Zero, err
	}

	return profile.BuyingPower, nil
}

// Debit subtracts amount from buying power in one statement guarded by
// buying_power >= amount, so concurrent debits can never overdraw.
func (r *ProfileRepository) Debit(
	ctx context.Context,
	userID string,
	amount decimal.Decimal,
) error {

	res := r.db.WithContext(ctx).
		Model(&model.Profile{}).
		Where("user_id = ? AND buying_power >= ?", userID, amount).
		Update("buying_power", gorm.Expr("buying_power - ?", amount))

	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "ProfileRepository",
			"op":     "Debit",
			"user":   userID,
			"amount": amount.String(),
		}).WithError(res.Error).Error("Failed to debit buying power")

		return res.Error
	}

	if res.RowsAffected == 0 {
		return ErrInsufficientBuyingPower
	}

	return nil
}

// Credit adds amount to buying power, creating the profile when it does not exist yet.
func (r *ProfileRepository) Credit(
	ctx context.Context,
	userID string,
	amount decimal.Decimal,
) error {

	res := r.db.WithContext(ctx).
		Model(&model.Profile{}).
		Where("user_id = ?", userID).
		Update("buying_power", gorm.Expr("buying_power + ?", amount))

	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "ProfileRepository",
			"op":     "Credit",
			"user":   userID,
			"amount": amount.String(),
		}).WithError(res.Error).Error("Failed to credit buying power")

		return res.Error
	}

	if res.RowsAffected == 0 {
		return r.Create(ctx, &model.Profile{UserID: userID, BuyingPower: amount})
	}

	return nil
}

// Create inserts a profile row.
func (r *ProfileRepository) Create(
	ctx context.Context,
	profile *model.Profile,
) error {
	return r.db.WithContext(ctx).Create(profile).Error
}
