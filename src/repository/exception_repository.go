package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"brokerengine/src/database"
	"brokerengine/src/model"
)

// ExceptionRepository handles persistence of system exceptions.
type ExceptionRepository struct {
	db *gorm.DB
}

// NewExceptionRepository creates a new repository instance.
func NewExceptionRepository() *ExceptionRepository {
	return &ExceptionRepository{
		db: database.MainDB,
	}
}

func (r *ExceptionRepository) WithDB(db *gorm.DB) *ExceptionRepository {
	return &ExceptionRepository{db: db}
}

// Create persists a new exception in the database.
func (r *ExceptionRepository) Create(
	ctx context.Context,
	exc *model.Exception,
) error {

	logger.WithFields(map[string]interface{}{
		"service": exc.Service,
		"module":  exc.Module,
		"method":  exc.Method,
		"level":   exc.Level,
	}).Debug("Persisting system exception")

	return r.db.WithContext(ctx).Create(exc).Error
}

// FindByTransactionID lists exceptions captured for one transaction, newest first.
func (r *ExceptionRepository) FindByTransactionID(
	ctx context.Context,
	transactionID string,
) ([]model.Exception, error) {

	var out []model.Exception
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("id DESC").
		Find(&out).Error
	return out, err
}
