package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/rewardloop/backend/internal/audit"
	"github.com/rewardloop/backend/internal/config"
	"github.com/rewardloop/backend/internal/middleware"
	"github.com/rewardloop/backend/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type identity struct {
	userID  int64
	isAdmin bool
}

func newTestRouter(t *testing.T, who *identity) (http.Handler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	r := chi.NewRouter()
	if who != nil {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				ctx := middleware.WithIdentity(req.Context(), who.userID, who.isAdmin)
				next.ServeHTTP(w, req.WithContext(ctx))
			})
		})
	}
	mountRoutes(r, db)
	return r, mock
}

func mountRoutes(r chi.Router, db *sql.DB) {
	cfg := config.PointsConfig{Location: time.UTC, TxTimeout: 5 * time.Second, StrictConfig: true}
	auditLogger := audit.NewLoggerTo(io.Discard)

	awards := services.NewAwardService(db, cfg, auditLogger)
	redemptions := services.NewRedemptionService(db, cfg, auditLogger)
	ranking := services.NewRankingService(db, cfg, config.RankingConfig{Winners: 2}, auditLogger)

	points := NewPointsHandler(awards)
	rewards := NewRedemptionHandler(redemptions)
	admin := NewAdminHandler(awards, redemptions, ranking, time.UTC)

	r.Post("/points/award", points.Award)
	r.Post("/points/product-clicks", points.ProductClicks)
	r.Get("/points/limits/{limitType}", points.LimitStatus)
	r.Get("/points/history", points.History)
	r.Post("/rewards/{rewardId}/redeem", rewards.Redeem)
	r.Get("/redemptions", rewards.List)
	r.Post("/admin/redemptions/{id}/decide", admin.Decide)
	r.Post("/admin/points/award", admin.AwardFor)
	r.Post("/admin/points/grant", admin.Grant)
	r.Post("/admin/ranking/run", admin.RunRanking)
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func expectUser(mock sqlmock.Sqlmock, userID, points int64) {
	mock.ExpectQuery("SELECT id, points, updated_at FROM users").
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "points", "updated_at"}).AddRow(userID, points, time.Now()))
}

func expectCounter(mock sqlmock.Sqlmock, count int) {
	mock.ExpectExec("INSERT INTO limit_counters").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT count FROM limit_counters").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(count))
}

func expectLedger(mock sqlmock.Sqlmock, entryID int64) {
	mock.ExpectQuery("INSERT INTO ledger_entries").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(entryID, time.Now()))
	mock.ExpectExec("UPDATE users").WillReturnResult(sqlmock.NewResult(0, 1))
}

func TestPointsHandler_Award(t *testing.T) {
	t.Run("awards the rule's points", func(t *testing.T) {
		router, mock := newTestRouter(t, &identity{userID: 7})

		mock.ExpectBegin()
		expectUser(mock, 7, 0)
		expectCounter(mock, 0)
		mock.ExpectQuery("INSERT INTO ledger_entries").
			WithArgs(7, 10, 10, "Daily login", nil, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(5, time.Now()))
		mock.ExpectExec("UPDATE users").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE limit_counters").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		w := do(router, "POST", "/points/award", `{"limitType":"daily_login"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, true, body["awarded"])
		assert.Equal(t, float64(5), body["ledgerEntryId"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("cap reached is still a success", func(t *testing.T) {
		router, mock := newTestRouter(t, &identity{userID: 7})

		mock.ExpectBegin()
		expectUser(mock, 7, 10)
		expectCounter(mock, 1)
		mock.ExpectRollback()

		w := do(router, "POST", "/points/award", `{"limitType":"daily_login"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, false, decodeBody(t, w)["awarded"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown limit type", func(t *testing.T) {
		router, _ := newTestRouter(t, &identity{userID: 7})

		w := do(router, "POST", "/points/award", `{"limitType":"referral"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("server-observed actions cannot be self-claimed", func(t *testing.T) {
		for _, lt := range []string{"weekly_post", "weekly_wish", "facebook_share"} {
			router, mock := newTestRouter(t, &identity{userID: 7})

			w := do(router, "POST", "/points/award", `{"limitType":"`+lt+`"}`)
			assert.Equal(t, http.StatusForbidden, w.Code, lt)
			assert.NoError(t, mock.ExpectationsWereMet())
		}
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		router, _ := newTestRouter(t, &identity{userID: 7})

		w := do(router, "POST", "/points/award", `{"limitType":"daily_login","points":100000}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		router, _ := newTestRouter(t, nil)

		w := do(router, "POST", "/points/award", `{"limitType":"daily_login"}`)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestPointsHandler_ProductClicks(t *testing.T) {
	router, mock := newTestRouter(t, &identity{userID: 7})

	mock.ExpectBegin()
	expectUser(mock, 7, 0)
	expectCounter(mock, 5)
	expectLedger(mock, 6)
	mock.ExpectExec("UPDATE limit_counters").
		WithArgs(3, sqlmock.AnyArg(), 7, "product_card_click", services.LifetimeSentinel).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w := do(router, "POST", "/points/product-clicks", `{"count":10}`)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, float64(3), body["awardedCount"])
	assert.Equal(t, float64(15), body["totalPoints"])
	assert.Equal(t, float64(0), body["remainingCapacity"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPointsHandler_LimitStatus(t *testing.T) {
	router, mock := newTestRouter(t, &identity{userID: 7})

	mock.ExpectQuery("SELECT count FROM limit_counters").
		WithArgs(7, "facebook_share", services.LifetimeSentinel).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	w := do(router, "GET", "/points/limits/facebook_share", "")

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, float64(1), body["max"])
	assert.Equal(t, float64(0), body["remaining"])

	w = do(router, "GET", "/points/limits/nope", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPointsHandler_History(t *testing.T) {
	router, mock := newTestRouter(t, &identity{userID: 7})

	mock.ExpectQuery("FROM ledger_entries").
		WithArgs(7, 20).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "delta", "balance_after", "reason", "note", "created_at"}).
			AddRow(1, 7, 10, 10, "Daily login", nil, time.Now()))

	w := do(router, "GET", "/points/history?limit=20", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody(t, w)["entries"], 1)

	w = do(router, "GET", "/points/history?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedemptionHandler_Redeem(t *testing.T) {
	receiver := `{"receiverName":"Kim","receiverPhone":"010-1234-5678","receiverAddress":"1 Main St"}`
	rewardColumns := []string{"id", "name", "category", "points_required", "life_required", "max_per_user", "rank_required", "rank_month", "is_active"}

	t.Run("created", func(t *testing.T) {
		router, mock := newTestRouter(t, &identity{userID: 7})

		mock.ExpectBegin()
		mock.ExpectQuery("FROM rewards").
			WillReturnRows(sqlmock.NewRows(rewardColumns).AddRow(3, "Mug", "point_reward", 200, 0, nil, nil, nil, true))
		expectUser(mock, 7, 500)
		expectLedger(mock, 9)
		mock.ExpectQuery("INSERT INTO redemption_requests").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(77))
		mock.ExpectCommit()

		w := do(router, "POST", "/rewards/3/redeem", receiver)

		assert.Equal(t, http.StatusCreated, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, float64(77), body["id"])
		assert.Equal(t, "PENDING", body["status"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient balance", func(t *testing.T) {
		router, mock := newTestRouter(t, &identity{userID: 7})

		mock.ExpectBegin()
		mock.ExpectQuery("FROM rewards").
			WillReturnRows(sqlmock.NewRows(rewardColumns).AddRow(3, "Mug", "point_reward", 200, 0, nil, nil, nil, true))
		expectUser(mock, 7, 100)
		mock.ExpectRollback()

		w := do(router, "POST", "/rewards/3/redeem", receiver)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing reward", func(t *testing.T) {
		router, mock := newTestRouter(t, &identity{userID: 7})

		mock.ExpectBegin()
		mock.ExpectQuery("FROM rewards").WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		w := do(router, "POST", "/rewards/3/redeem", receiver)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("receiver required", func(t *testing.T) {
		router, _ := newTestRouter(t, &identity{userID: 7})

		w := do(router, "POST", "/rewards/3/redeem", `{"receiverName":"Kim"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeBody(t, w)["details"], "Phone")
	})

	t.Run("bad reward id", func(t *testing.T) {
		router, _ := newTestRouter(t, &identity{userID: 7})

		w := do(router, "POST", "/rewards/abc/redeem", receiver)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAdminHandler_Decide(t *testing.T) {
	t.Run("non-admin", func(t *testing.T) {
		router, _ := newTestRouter(t, &identity{userID: 7})

		w := do(router, "POST", "/admin/redemptions/9/decide", `{"status":"APPROVED"}`)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("rejection without reason", func(t *testing.T) {
		router, _ := newTestRouter(t, &identity{userID: 1, isAdmin: true})

		w := do(router, "POST", "/admin/redemptions/9/decide", `{"status":"REJECTED"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unsupported status", func(t *testing.T) {
		router, _ := newTestRouter(t, &identity{userID: 1, isAdmin: true})

		w := do(router, "POST", "/admin/redemptions/9/decide", `{"status":"PENDING"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown request", func(t *testing.T) {
		router, mock := newTestRouter(t, &identity{userID: 1, isAdmin: true})

		mock.ExpectBegin()
		mock.ExpectQuery("FROM redemption_requests").WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		w := do(router, "POST", "/admin/redemptions/9/decide", `{"status":"APPROVED"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reject refunds", func(t *testing.T) {
		router, mock := newTestRouter(t, &identity{userID: 1, isAdmin: true})

		mock.ExpectBegin()
		mock.ExpectQuery("FROM redemption_requests").
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "reward_id", "points_used", "status", "created_at"}).
				AddRow(9, 7, 3, 200, "PENDING", time.Now()))
		expectUser(mock, 7, 300)
		mock.ExpectQuery("INSERT INTO ledger_entries").
			WithArgs(7, 200, 500, "Refund: invalid address", nil, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(10, time.Now()))
		mock.ExpectExec("UPDATE users").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE redemption_requests").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		w := do(router, "POST", "/admin/redemptions/9/decide", `{"status":"REJECTED","rejectionReason":"invalid address"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, "REJECTED", body["status"])
		assert.Equal(t, "invalid address", body["rejectionReason"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAdminHandler_Grant(t *testing.T) {
	router, mock := newTestRouter(t, &identity{userID: 1, isAdmin: true})

	mock.ExpectBegin()
	expectUser(mock, 7, 0)
	expectLedger(mock, 11)
	mock.ExpectCommit()

	w := do(router, "POST", "/admin/points/grant", `{"userId":7,"points":300,"note":"launch bonus"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(300), decodeBody(t, w)["balance"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdminHandler_AwardFor(t *testing.T) {
	t.Run("records a post award for the author", func(t *testing.T) {
		router, mock := newTestRouter(t, &identity{userID: 1, isAdmin: true})

		mock.ExpectBegin()
		expectUser(mock, 7, 0)
		expectCounter(mock, 0)
		mock.ExpectQuery("INSERT INTO ledger_entries").
			WithArgs(7, 50, 50, "Weekly post", nil, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(8, time.Now()))
		mock.ExpectExec("UPDATE users").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE limit_counters").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		w := do(router, "POST", "/admin/points/award", `{"userId":7,"limitType":"weekly_post"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, true, body["awarded"])
		assert.Equal(t, float64(8), body["ledgerEntryId"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown limit type", func(t *testing.T) {
		router, _ := newTestRouter(t, &identity{userID: 1, isAdmin: true})

		w := do(router, "POST", "/admin/points/award", `{"userId":7,"limitType":"referral"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAdminHandler_RunRanking(t *testing.T) {
	t.Run("replays a month", func(t *testing.T) {
		router, mock := newTestRouter(t, &identity{userID: 1, isAdmin: true})
		start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

		mock.ExpectQuery("SELECT DISTINCT user_id FROM monthly_rankings").
			WithArgs(start).
			WillReturnRows(sqlmock.NewRows([]string{"user_id"}))
		mock.ExpectQuery("FROM posts").
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "like_count", "created_at"}).
				AddRow(3, 20, 5, start))
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO monthly_rankings").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("DELETE FROM monthly_rankings").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("INSERT INTO notifications").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		w := do(router, "POST", "/admin/ranking/run", `{"month":"2026-08"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, "2026-08", body["month"])
		assert.Len(t, body["rankings"], 1)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("bad month", func(t *testing.T) {
		router, _ := newTestRouter(t, &identity{userID: 1, isAdmin: true})

		w := do(router, "POST", "/admin/ranking/run", `{"month":"August"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: reason is required", services.ErrValidation), http.StatusBadRequest},
		{services.ErrForbidden, http.StatusForbidden},
		{fmt.Errorf("reward 3: %w", services.ErrNotFound), http.StatusNotFound},
		{services.ErrInsufficientBalance, http.StatusUnprocessableEntity},
		{services.ErrLimitExceeded, http.StatusConflict},
		{services.ErrUnavailable, http.StatusConflict},
		{&config.ConfigurationError{LimitType: "x"}, http.StatusInternalServerError},
		{&services.PersistenceError{Op: "award", Err: errors.New("connection refused")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		status, message := statusFor(tt.err)
		assert.Equal(t, tt.want, status, tt.err.Error())
		if status == http.StatusInternalServerError {
			assert.NotContains(t, message, "connection refused")
		}
	}
}
