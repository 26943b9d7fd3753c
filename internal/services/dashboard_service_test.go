package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDashboardService_GetSummary(t *testing.T) {
	userID := uuid.New()

	t.Run("aggregates balances and recent transactions", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		service := NewDashboardService(db, nil)
		now := time.Now()
		checking := uuid.New()
		savings := uuid.New()

		mock.ExpectQuery(regexp.QuoteMeta("FROM accounts")).
			WithArgs(userID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "type", "currency", "balance"}).
				AddRow(checking.String(), "Checking", "checking", "USD", "100.50").
				AddRow(savings.String(), "Savings", "savings", "USD", "899.50"))
		mock.ExpectQuery(regexp.QuoteMeta("FROM transactions")).
			WithArgs(userID, recentTransactionLimit).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "user_id", "account_id", "to_account_id", "category_id",
				"payee_id", "type", "status", "amount", "date", "notes",
				"version", "created_at", "updated_at",
			}).AddRow(uuid.New().String(), userID.String(), checking.String(),
				nil, nil, nil, "deposit", "unreconciled", "100.50", now, nil, 1, now, now))

		w := httptest.NewRecorder()
		service.GetSummary(w, authedRequest("GET", "/dashboard/summary", nil, userID))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "MISS", w.Header().Get("X-Cache"))

		var summary DashboardSummary
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
		assert.True(t, summary.NetWorth.Equal(decimal.RequireFromString("1000")))
		assert.Len(t, summary.Accounts, 2)
		assert.Len(t, summary.RecentTransactions, 1)
	})

	t.Run("serves from cache when present", func(t *testing.T) {
		db, _, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		redisClient, redisMock := redismock.NewClientMock()
		service := NewDashboardService(db, redisClient)

		cached := `{"netWorth":"42","accounts":[],"recentTransactions":[]}`
		redisMock.ExpectGet(dashboardCacheKey(userID)).SetVal(cached)

		w := httptest.NewRecorder()
		service.GetSummary(w, authedRequest("GET", "/dashboard/summary", nil, userID))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
		assert.Equal(t, cached, w.Body.String())
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("cache miss populates the cache", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		redisClient, redisMock := redismock.NewClientMock()
		service := NewDashboardService(db, redisClient)

		redisMock.ExpectGet(dashboardCacheKey(userID)).RedisNil()
		redisMock.Regexp().ExpectSet(dashboardCacheKey(userID), `.*netWorth.*`, dashboardCacheTTL).SetVal("OK")

		mock.ExpectQuery(regexp.QuoteMeta("FROM accounts")).
			WithArgs(userID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "type", "currency", "balance"}))
		mock.ExpectQuery(regexp.QuoteMeta("FROM transactions")).
			WithArgs(userID, recentTransactionLimit).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "user_id", "account_id", "to_account_id", "category_id",
				"payee_id", "type", "status", "amount", "date", "notes",
				"version", "created_at", "updated_at",
			}))

		w := httptest.NewRecorder()
		service.GetSummary(w, authedRequest("GET", "/dashboard/summary", nil, userID))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})
}

func TestTransactionWriteInvalidatesDashboardCache(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	redisClient, redisMock := redismock.NewClientMock()
	userID := uuid.New()
	redisMock.ExpectDel(dashboardCacheKey(userID)).SetVal(1)

	service := NewTransactionService(db, nil, redisClient)
	service.invalidateDashboard(authedRequest("POST", "/transactions", nil, userID).Context(), userID)

	assert.NoError(t, redisMock.ExpectationsWereMet())
}
