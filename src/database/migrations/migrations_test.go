package migrations

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestRunOnce(t *testing.T) {
	db := openDB(t)

	calls := 0
	fn := func(*gorm.DB) error {
		calls++
		return nil
	}

	require.NoError(t, RunOnce(db, "m1", fn))
	require.NoError(t, RunOnce(db, "m1", fn))
	assert.Equal(t, 1, calls)

	err := RunOnce(db, "m2", func(*gorm.DB) error { return errors.New("boom") })
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&DataMigration{}).Where("id = ?", "m2").Count(&count).Error)
	assert.Zero(t, count, "a failed migration is not recorded")

	assert.Error(t, RunOnce(db, "", fn))
}

func TestRunBackfills(t *testing.T) {
	db := openDB(t)

	require.NoError(t, db.Exec("CREATE TABLE transactions (id TEXT, shares INTEGER, price_per_share NUMERIC, total_amount NUMERIC)").Error)
	require.NoError(t, db.Exec("CREATE TABLE portfolios (id INTEGER, shares INTEGER)").Error)
	require.NoError(t, db.Exec("INSERT INTO transactions VALUES ('a', 4, 2.5, 0), ('b', 1, 3, 3)").Error)
	require.NoError(t, db.Exec("INSERT INTO portfolios VALUES (1, 0), (2, 5)").Error)

	require.NoError(t, Run(db))

	var total float64
	require.NoError(t, db.Raw("SELECT total_amount FROM transactions WHERE id = 'a'").Scan(&total).Error)
	assert.Equal(t, 10.0, total)

	var positions int64
	require.NoError(t, db.Raw("SELECT COUNT(*) FROM portfolios").Scan(&positions).Error)
	assert.Equal(t, int64(1), positions)
}

func TestRunRecordsEveryStepOnce(t *testing.T) {
	db := openDB(t)

	require.NoError(t, db.Exec("CREATE TABLE transactions (id TEXT, shares INTEGER, price_per_share NUMERIC, total_amount NUMERIC)").Error)
	require.NoError(t, db.Exec("CREATE TABLE portfolios (id INTEGER, shares INTEGER)").Error)

	require.NoError(t, Run(db))
	require.NoError(t, Run(db))

	var ids []string
	require.NoError(t, db.Model(&DataMigration{}).Order("id").Pluck("id", &ids).Error)
	want := make([]string, 0, len(steps))
	for _, s := range steps {
		want = append(want, s.id)
	}
	assert.Equal(t, want, ids)
}
