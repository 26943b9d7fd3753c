package services

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/pennywise/backend/internal/models"
)

const dashboardCacheTTL = 60 * time.Second
const recentTransactionLimit = 10

// DashboardService aggregates balances and recent activity. Summaries are
// cached in Redis; any transaction write invalidates the cache, so a stale
// read can only outlive a write by the request that raced it.
type DashboardService struct {
	db    *sql.DB
	redis *redis.Client
	log   *logrus.Logger
}

func NewDashboardService(db *sql.DB, redisClient *redis.Client) *DashboardService {
	return &DashboardService{
		db:    db,
		redis: redisClient,
		log:   logrus.StandardLogger(),
	}
}

// DashboardSummary represents the aggregated dashboard view
// @Description Dashboard summary structure
type DashboardSummary struct {
	NetWorth           decimal.Decimal      `json:"netWorth" example:"15230.50"` // Sum of active account balances
	Accounts           []AccountBalance     `json:"accounts"`                    // Active accounts with balances
	RecentTransactions []models.Transaction `json:"recentTransactions"`          // Latest transactions
	GeneratedAt        time.Time            `json:"generatedAt"`                 // When the summary was computed
}

// AccountBalance is one account's entry in the summary
type AccountBalance struct {
	AccountID uuid.UUID          `json:"accountId"`
	Name      string             `json:"name"`
	Type      models.AccountType `json:"type"`
	Currency  string             `json:"currency"`
	Balance   decimal.Decimal    `json:"balance"`
}

// GetSummary returns the dashboard summary
// @Summary Dashboard summary
// @Description Per-account balances, net worth, and recent transactions, cached briefly
// @Tags dashboard
// @Produce json
// @Success 200 {object} DashboardSummary "Summary"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /dashboard/summary [get]
func (s *DashboardService) GetSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	if s.redis != nil {
		cached, err := s.redis.Get(r.Context(), dashboardCacheKey(userID)).Result()
		if err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Cache", "HIT")
			w.Write([]byte(cached))
			return
		}
	}

	summary, err := s.buildSummary(r, userID)
	if err != nil {
		s.log.WithField("error", err.Error()).Error("dashboard summary failed")
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	if s.redis != nil {
		if err := s.redis.Set(r.Context(), dashboardCacheKey(userID), string(payload), dashboardCacheTTL).Err(); err != nil {
			s.log.WithField("error", err.Error()).Warn("dashboard cache write failed")
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", "MISS")
	w.Write(payload)
}

func (s *DashboardService) buildSummary(r *http.Request, userID uuid.UUID) (*DashboardSummary, error) {
	rows, err := s.db.QueryContext(r.Context(), `
		SELECT id, name, type, currency, balance
		FROM accounts
		WHERE user_id = $1 AND is_active
		ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summary := DashboardSummary{
		NetWorth:           decimal.Zero,
		Accounts:           []AccountBalance{},
		RecentTransactions: []models.Transaction{},
		GeneratedAt:        time.Now().UTC(),
	}
	for rows.Next() {
		var ab AccountBalance
		if err := rows.Scan(&ab.AccountID, &ab.Name, &ab.Type, &ab.Currency, &ab.Balance); err != nil {
			return nil, err
		}
		summary.Accounts = append(summary.Accounts, ab)
		summary.NetWorth = summary.NetWorth.Add(ab.Balance)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	txRows, err := s.db.QueryContext(r.Context(), transactionSelect+`
		WHERE user_id = $1
		ORDER BY date DESC, created_at DESC
		LIMIT $2`, userID, recentTransactionLimit)
	if err != nil {
		return nil, err
	}
	defer txRows.Close()

	for txRows.Next() {
		tx, err := scanTransaction(txRows)
		if err != nil {
			return nil, err
		}
		summary.RecentTransactions = append(summary.RecentTransactions, *tx)
	}
	return &summary, txRows.Err()
}

func dashboardCacheKey(userID uuid.UUID) string {
	return "dashboard:summary:" + userID.String()
}
