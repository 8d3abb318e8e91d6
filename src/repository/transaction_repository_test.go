package repository

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"brokerengine/src/model"
)

var transactionColumns = []string{"id", "user_id", "symbol", "type", "shares", "price_per_share", "total_amount", "execution_type", "status", "created_at", "updated_at"}

func transactionRows(returned ...model.Transaction) *sqlmock.Rows {
	rows := sqlmock.NewRows(transactionColumns)
	for _, txn := range returned {
		rows.AddRow(txn.ID, txn.UserID, txn.Symbol, txn.Type, txn.Shares, txn.PricePerShare.String(),
			txn.TotalAmount.String(), txn.ExecutionType, txn.Status, txn.CreatedAt, txn.UpdatedAt)
	}
	return rows
}

func TestTransactionRepositorySearch(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := NewTransactionRepository().WithDB(mockDB)

	createdAt := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	txns := []model.Transaction{
		{ID: "t-1", UserID: "u1", Symbol: "AAPL", Type: "buy", Shares: 10, PricePerShare: decimal.NewFromInt(50), Status: "completed", CreatedAt: createdAt},
		{ID: "t-2", UserID: "u1", Symbol: "MSFT", Type: "buy", Shares: 1, PricePerShare: decimal.NewFromInt(300), Status: "pending", CreatedAt: createdAt.Add(time.Hour)},
	}

	t.Run("filters by user", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "transactions" WHERE user_id = $1 ORDER BY created_at DESC, id DESC`)).
			WithArgs("u1").
			WillReturnRows(transactionRows(txns[1], txns[0]))

		results, err := repo.Search(context.Background(), TransactionSearchOptions{UserID: "u1"})
		if err != nil {
			t.Fatalf("unexpected error searching transactions: %v", err)
		}

		if len(results) != 2 {
			t.Fatalf("expected 2 transactions for u1, got %d", len(results))
		}

		if results[0].ID != "t-2" || !results[1].PricePerShare.Equal(decimal.NewFromInt(50)) {
			t.Fatalf("transactions not returned in expected order: %+v", results)
		}
	})

	t.Run("filters by symbol status and created window", func(t *testing.T) {
		filters := TransactionSearchOptions{
			UserID:        "u1",
			Symbol:        ptrString("MSFT"),
			Status:        ptrString("pending"),
			CreatedAfter:  ptrTime(createdAt),
			CreatedBefore: ptrTime(createdAt.Add(2 * time.Hour)),
		}

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "transactions" WHERE user_id = $1 AND symbol = $2 AND status = $3 AND created_at >= $4 AND created_at <= $5 ORDER BY created_at DESC, id DESC`)).
			WithArgs("u1", "MSFT", "pending", *filters.CreatedAfter, *filters.CreatedBefore).
			WillReturnRows(transactionRows(txns[1]))

		results, err := repo.Search(context.Background(), filters)
		if err != nil {
			t.Fatalf("unexpected error searching transactions: %v", err)
		}

		if len(results) != 1 || results[0].Symbol != "MSFT" {
			t.Fatalf("unexpected transactions returned: %+v", results)
		}
	})

	t.Run("applies pagination", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "transactions" WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`)).
			WithArgs("u1", 1, 1).
			WillReturnRows(transactionRows(txns[0]))

		results, err := repo.Search(context.Background(), TransactionSearchOptions{UserID: "u1", Limit: 1, Offset: 1})
		if err != nil {
			t.Fatalf("unexpected error searching transactions: %v", err)
		}

		if len(results) != 1 || results[0].ID != "t-1" {
			t.Fatalf("unexpected paginated transaction: %+v", results)
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestTransactionRepositoryFindPending(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := NewTransactionRepository().WithDB(mockDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "transactions" WHERE status = $1 ORDER BY created_at ASC, id ASC LIMIT $2`)).
		WithArgs(model.TransactionStatusPending, 100).
		WillReturnRows(transactionRows(model.Transaction{ID: "t-3", UserID: "u1", Symbol: "AAPL", Status: "pending"}))

	results, err := repo.FindPending(context.Background(), nil, 0)
	if err != nil {
		t.Fatalf("unexpected error fetching pending: %v", err)
	}
	if len(results) != 1 || results[0].ID != "t-3" {
		t.Fatalf("unexpected pending transactions: %+v", results)
	}

	cursor := CursorOf(results[0])
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "transactions" WHERE status = $1 AND (created_at > $2 OR (created_at = $3 AND id > $4)) ORDER BY created_at ASC, id ASC LIMIT $5`)).
		WithArgs(model.TransactionStatusPending, cursor.CreatedAt, cursor.CreatedAt, "t-3", 2).
		WillReturnRows(transactionRows())

	results, err = repo.FindPending(context.Background(), cursor, 2)
	if err != nil {
		t.Fatalf("unexpected error fetching next page: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected an empty page, got %+v", results)
	}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "transactions" WHERE status = $1`)).
		WillReturnError(gorm.ErrInvalidDB)

	if _, err := repo.FindPending(context.Background(), nil, 5); err == nil {
		t.Fatalf("expected error to be returned")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestTransactionRepositoryMarkCompleted(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := NewTransactionRepository().WithDB(mockDB)
	completedAt := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	args := []driver.Value{sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "t-4", model.TransactionStatusPending}

	t.Run("transitions a pending row", func(t *testing.T) {
		txn := &model.Transaction{ID: "t-4", Shares: 3, Status: model.TransactionStatusPending}

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "transactions" SET`)).
			WithArgs(args...).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		ok, err := repo.MarkCompleted(context.Background(), txn, decimal.RequireFromString("99.5"), completedAt)
		if err != nil || !ok {
			t.Fatalf("expected transition, got ok=%v err=%v", ok, err)
		}
		if txn.Status != model.TransactionStatusCompleted || txn.TotalAmount.String() != "298.5" {
			t.Fatalf("transaction not updated in place: %+v", txn)
		}
	})

	t.Run("already settled", func(t *testing.T) {
		txn := &model.Transaction{ID: "t-4", Shares: 3, Status: model.TransactionStatusPending}

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "transactions" SET`)).
			WithArgs(args...).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		ok, err := repo.MarkCompleted(context.Background(), txn, decimal.RequireFromString("99.5"), completedAt)
		if err != nil || ok {
			t.Fatalf("expected no transition, got ok=%v err=%v", ok, err)
		}
		if txn.Status != model.TransactionStatusPending {
			t.Fatalf("transaction must stay pending in memory, got %s", txn.Status)
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	dialector := postgres.New(postgres.Config{
		DSN:                  "sqlmock_db_0",
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	})

	gdb, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		sqlDB.Close()
		t.Fatalf("failed to open gorm DB with sqlmock: %v", err)
	}

	return gdb, mock
}

func ptrString(val string) *string {
	return &val
}

func ptrTime(val time.Time) *time.Time {
	return &val
}
