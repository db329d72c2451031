package services

import (
	"database/sql"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/rewardloop/backend/internal/audit"
	"github.com/rewardloop/backend/internal/config"
	"github.com/stretchr/testify/require"
)

var (
	testLoc = time.UTC
	// Wednesday
	testNow = time.Date(2026, 9, 16, 14, 30, 0, 0, time.UTC)
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func testPointsConfig(strict bool) config.PointsConfig {
	return config.PointsConfig{Location: testLoc, TxTimeout: 5 * time.Second, StrictConfig: strict}
}

func discardAudit() *audit.Logger {
	return audit.NewLoggerTo(io.Discard)
}

func newTestAwardService(db *sql.DB, strict bool) *AwardService {
	s := NewAwardService(db, testPointsConfig(strict), discardAudit())
	s.now = func() time.Time { return testNow }
	return s
}

func serializationFailure() error {
	return &pq.Error{Code: "40001", Message: "could not serialize access"}
}

func expectLockUser(mock sqlmock.Sqlmock, userID, points int64) {
	mock.ExpectQuery(`SELECT id, points, updated_at FROM users WHERE id = \$1 FOR UPDATE`).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "points", "updated_at"}).
			AddRow(userID, points, testNow))
}

func expectAppend(mock sqlmock.Sqlmock, userID, delta, balance int64, reason string, entryID int64) {
	mock.ExpectQuery("INSERT INTO ledger_entries").
		WithArgs(userID, delta, balance, reason, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(entryID, testNow))
	mock.ExpectExec(`UPDATE users SET points = points \+ \$1`).
		WithArgs(delta, sqlmock.AnyArg(), userID).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func expectLockCounter(mock sqlmock.Sqlmock, userID int64, lt config.LimitType, period time.Time, count int) {
	mock.ExpectExec("INSERT INTO limit_counters").
		WithArgs(userID, string(lt), period, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT count FROM limit_counters WHERE .* FOR UPDATE`).
		WithArgs(userID, string(lt), period).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(count))
}

func expectIncrement(mock sqlmock.Sqlmock, userID int64, lt config.LimitType, period time.Time, by int) {
	mock.ExpectExec(`UPDATE limit_counters SET count = count \+ \$1`).
		WithArgs(by, sqlmock.AnyArg(), userID, string(lt), period).
		WillReturnResult(sqlmock.NewResult(0, 1))
}
