package migrations

import (
	"gorm.io/gorm"
)

// backfillTransactionTotalAmount fills total_amount for rows written before the column was
// populated by the engine.
func backfillTransactionTotalAmount(db *gorm.DB) error {
	return db.Exec(
		"UPDATE transactions SET total_amount = shares * price_per_share WHERE total_amount IS NULL OR total_amount = 0",
	).Error
}

// deleteEmptyPositions removes zero-share rows; a position at zero must not exist.
func deleteEmptyPositions(db *gorm.DB) error {
	return db.Exec("DELETE FROM portfolios WHERE shares <= 0").Error
}
