package database

import (
	"fmt"

	"brokerengine/src/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ReadOnlyDB serves history queries (order search) so they do not compete with the
// write path. The database user for this connection should have SELECT-only permissions.
var ReadOnlyDB *gorm.DB

// InitReadOnlyDB initializes the read-only database connection.
// It does not run any migrations and should only be used for reading data.
func InitReadOnlyDB() error {
	config := GetConfig()
	db, err := gorm.Open(dialector(config.Driver, config.DatabaseURLReadOnly),
		&gorm.Config{
			PrepareStmt:    true,
			TranslateError: true,
			Logger:         logger.Default.LogMode(logger.LogLevel(config.GormLogLevel)),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to connect to read-only database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB from ReadOnlyDB: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping ReadOnlyDB: %w", err)
	}

	if config.Driver == DriverPostgres {
		var dbName, schema string
		if err := db.
			Raw("SELECT current_database(), current_schema()").
			Row().
			Scan(&dbName, &schema); err != nil {
			return fmt.Errorf("failed to query current db/schema on ReadOnlyDB: %w", err)
		}

		logrus.WithFields(map[string]interface{}{"dbName": dbName, "schema": schema}).Info("[ReadOnlyDB] connected")
	}

	var count int64
	if err := db.
		Model(&model.Transaction{}).
		Count(&count).Error; err != nil {
		return fmt.Errorf("failed to access transactions: %w", err)
	}

	logrus.WithFields(map[string]interface{}{"count": count}).Info("[ReadOnlyDB] transactions reachable")

	ReadOnlyDB = db

	return nil
}

// ReadDB returns the read-only connection, falling back to MainDB when no replica is configured.
func ReadDB() *gorm.DB {
	if ReadOnlyDB != nil {
		return ReadOnlyDB
	}
	return MainDB
}
