package services

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rewardloop/backend/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitCounterStore_LockAndIncrement(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewLimitCounterStore(db)
	ctx := context.Background()

	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)

	expectLockCounter(mock, 7, config.LimitProductCardClick, LifetimeSentinel, 5)
	expectIncrement(mock, 7, config.LimitProductCardClick, LifetimeSentinel, 3)
	mock.ExpectCommit()

	count, err := store.LockTx(ctx, tx, 7, config.LimitProductCardClick, LifetimeSentinel)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	require.NoError(t, store.IncrementTx(ctx, tx, 7, config.LimitProductCardClick, LifetimeSentinel, 3))
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLimitCounterStore_IncrementTx(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewLimitCounterStore(db)
	ctx := context.Background()

	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)

	t.Run("rejects non-positive increments", func(t *testing.T) {
		assert.Error(t, store.IncrementTx(ctx, tx, 7, config.LimitDailyLogin, testNow, 0))
		assert.Error(t, store.IncrementTx(ctx, tx, 7, config.LimitDailyLogin, testNow, -1))
	})

	t.Run("missing row", func(t *testing.T) {
		mock.ExpectExec("UPDATE limit_counters").
			WillReturnResult(sqlmock.NewResult(0, 0))
		assert.Error(t, store.IncrementTx(ctx, tx, 7, config.LimitDailyLogin, testNow, 1))
	})

	mock.ExpectRollback()
	tx.Rollback()
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLimitCounterStore_Get(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewLimitCounterStore(db)

	mock.ExpectQuery("SELECT count FROM limit_counters").
		WithArgs(7, "daily_login", testNow).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	count, err := store.Get(context.Background(), 7, config.LimitDailyLogin, testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	mock.ExpectQuery("SELECT count FROM limit_counters").
		WillReturnError(sql.ErrNoRows)

	count, err = store.Get(context.Background(), 8, config.LimitDailyLogin, testNow)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLimitCounterStore_ListForUser(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewLimitCounterStore(db)

	mock.ExpectQuery("SELECT user_id, limit_type, period, count, updated_at FROM limit_counters WHERE user_id = \\$1 ORDER BY period DESC").
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "limit_type", "period", "count", "updated_at"}).
			AddRow(7, "daily_login", testNow, 1, testNow).
			AddRow(7, "product_card_click", LifetimeSentinel, 8, testNow))

	counters, err := store.ListForUser(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, counters, 2)
	assert.Equal(t, "product_card_click", counters[1].LimitType)
	assert.Equal(t, 8, counters[1].Count)
	assert.True(t, counters[1].Period.Equal(LifetimeSentinel))
	assert.NoError(t, mock.ExpectationsWereMet())
}
