package migrations

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// DataMigration is one row of the data migration ledger.
type DataMigration struct {
	ID        string    `gorm:"primaryKey;size:200;column:id"`
	AppliedAt time.Time `gorm:"not null;column:applied_at"`
}

func (DataMigration) TableName() string { return "data_migrations" }

type step struct {
	id string
	fn func(*gorm.DB) error
}

// steps run in order. Ids are recorded in the ledger and must never change.
var steps = []step{
	{id: "00001_backfill_transaction_total_amount", fn: backfillTransactionTotalAmount},
	{id: "00002_delete_empty_positions", fn: deleteEmptyPositions},
}

// RunOnce applies fn inside a transaction unless id is already in the ledger.
func RunOnce(db *gorm.DB, id string, fn func(*gorm.DB) error) error {
	switch {
	case db == nil:
		return nil
	case id == "":
		return fmt.Errorf("migration id is empty")
	case fn == nil:
		return fmt.Errorf("migration %q has nil fn", id)
	}

	if err := db.AutoMigrate(&DataMigration{}); err != nil {
		return fmt.Errorf("ensure data migrations table: %w", err)
	}

	return db.Transaction(func(tx *gorm.DB) error {
		applied, err := isApplied(tx, id)
		if err != nil || applied {
			return err
		}
		if err := fn(tx); err != nil {
			return fmt.Errorf("run migration %q: %w", id, err)
		}
		entry := DataMigration{ID: id, AppliedAt: time.Now().UTC()}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("record migration %q: %w", id, err)
		}
		return nil
	})
}

func isApplied(tx *gorm.DB, id string) (bool, error) {
	var entry DataMigration
	err := tx.First(&entry, "id = ?", id).Error
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("check migration %q: %w", id, err)
	}
}

// Run applies every pending data step.
func Run(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	for _, s := range steps {
		if err := RunOnce(db, s.id, s.fn); err != nil {
			return err
		}
	}
	return nil
}
