package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/pennywise/backend/internal/ledger"
	"github.com/pennywise/backend/internal/models"
)

const defaultListLimit = 50
const maxListLimit = 500

// TransactionService exposes the transaction lifecycle over HTTP. All balance
// mutations go through the ledger engine; this layer only decodes, checks
// reference ownership, and translates errors.
type TransactionService struct {
	db        *sql.DB
	engine    *ledger.Engine
	redis     *redis.Client
	validator *validator.Validate
	log       *logrus.Logger
}

func NewTransactionService(db *sql.DB, engine *ledger.Engine, redisClient *redis.Client) *TransactionService {
	return &TransactionService{
		db:        db,
		engine:    engine,
		redis:     redisClient,
		validator: validator.New(),
		log:       logrus.StandardLogger(),
	}
}

// TransactionRequest represents a new transaction payload
// @Description Transaction creation request
type TransactionRequest struct {
	AccountID   string  `json:"accountId" validate:"required,uuid" example:"6f1c1b9e-4a3d-4a90-9d51-1f0c4a2f5e10"` // Source account
	ToAccountID *string `json:"toAccountId,omitempty" validate:"omitempty,uuid"`                                    // Destination account (transfers only)
	CategoryID  *string `json:"categoryId,omitempty" validate:"omitempty,uuid"`                                     // Optional category
	PayeeID     *string `json:"payeeId,omitempty" validate:"omitempty,uuid"`                                        // Optional payee
	Type        string  `json:"type" validate:"required,oneof=deposit withdrawal transfer" example:"deposit"`      // Transaction type
	Status      string  `json:"status,omitempty" validate:"omitempty,oneof=reconciled unreconciled"`               // Reconciliation status
	Amount      string  `json:"amount" validate:"required" example:"120.50"`                                        // Positive decimal amount
	Date        string  `json:"date,omitempty" example:"2026-08-30T00:00:00Z"`                                      // Transaction date (RFC 3339)
	Notes       string  `json:"notes,omitempty" validate:"max=500"`                                                 // Free-form notes
}

// TransactionPatchRequest represents a partial transaction update
// @Description Transaction update request; omitted fields are left unchanged
type TransactionPatchRequest struct {
	AccountID   *string `json:"accountId,omitempty" validate:"omitempty,uuid"`
	ToAccountID *string `json:"toAccountId,omitempty" validate:"omitempty,uuid"`
	CategoryID  *string `json:"categoryId,omitempty" validate:"omitempty,uuid"`
	PayeeID     *string `json:"payeeId,omitempty" validate:"omitempty,uuid"`
	Type        *string `json:"type,omitempty" validate:"omitempty,oneof=deposit withdrawal transfer"`
	Status      *string `json:"status,omitempty" validate:"omitempty,oneof=reconciled unreconciled"`
	Amount      *string `json:"amount,omitempty"`
	Date        *string `json:"date,omitempty"`
	Notes       *string `json:"notes,omitempty" validate:"omitempty,max=500"`
}

// CreateTransaction records a new transaction
// @Summary Create transaction
// @Description Create a deposit, withdrawal, or transfer and apply its balance effect atomically
// @Tags transactions
// @Accept json
// @Produce json
// @Param request body TransactionRequest true "Transaction request"
// @Success 201 {object} models.Transaction "Created transaction"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Failure 404 {object} ErrorResponse "Account not found"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /transactions [post]
func (s *TransactionService) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req TransactionRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	draft, err := s.draftFromRequest(r.Context(), userID, &req)
	if err != nil {
		SendLedgerError(w, err)
		return
	}

	tx, err := s.engine.Create(r.Context(), userID, *draft)
	if err != nil {
		SendLedgerError(w, err)
		return
	}

	s.invalidateDashboard(r.Context(), userID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(tx)
}

// UpdateTransaction edits an existing transaction
// @Summary Update transaction
// @Description Reverse the prior balance effect and apply the new one in a single atomic step
// @Tags transactions
// @Accept json
// @Produce json
// @Param txID path string true "Transaction ID"
// @Param request body TransactionPatchRequest true "Fields to change"
// @Success 200 {object} models.Transaction "Updated transaction"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Failure 404 {object} ErrorResponse "Transaction not found"
// @Failure 409 {object} ErrorResponse "Concurrent modification"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /transactions/{txID} [patch]
func (s *TransactionService) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	txID, err := uuid.Parse(chi.URLParam(r, "txID"))
	if err != nil {
		SendErrorResponse(w, "Invalid transaction id", http.StatusBadRequest, nil)
		return
	}

	var req TransactionPatchRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	patch, err := s.patchFromRequest(r.Context(), userID, &req)
	if err != nil {
		SendLedgerError(w, err)
		return
	}

	tx, err := s.engine.Update(r.Context(), userID, txID, *patch)
	if err != nil {
		SendLedgerError(w, err)
		return
	}

	s.invalidateDashboard(r.Context(), userID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tx)
}

// DeleteTransaction removes a transaction
// @Summary Delete transaction
// @Description Reverse the transaction's balance effect and remove the record atomically
// @Tags transactions
// @Produce json
// @Param txID path string true "Transaction ID"
// @Success 204 "Deleted"
// @Failure 404 {object} ErrorResponse "Transaction not found"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /transactions/{txID} [delete]
func (s *TransactionService) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	txID, err := uuid.Parse(chi.URLParam(r, "txID"))
	if err != nil {
		SendErrorResponse(w, "Invalid transaction id", http.StatusBadRequest, nil)
		return
	}

	if err := s.engine.Delete(r.Context(), userID, txID); err != nil {
		SendLedgerError(w, err)
		return
	}

	s.invalidateDashboard(r.Context(), userID)
	w.WriteHeader(http.StatusNoContent)
}

// GetTransaction fetches one transaction
// @Summary Get transaction
// @Tags transactions
// @Produce json
// @Param txID path string true "Transaction ID"
// @Success 200 {object} models.Transaction "Transaction"
// @Failure 404 {object} ErrorResponse "Transaction not found"
// @Router /transactions/{txID} [get]
func (s *TransactionService) GetTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	txID, err := uuid.Parse(chi.URLParam(r, "txID"))
	if err != nil {
		SendErrorResponse(w, "Invalid transaction id", http.StatusBadRequest, nil)
		return
	}

	row := s.db.QueryRowContext(r.Context(), transactionSelect+`
		WHERE id = $1 AND user_id = $2`, txID, userID)
	tx, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "Transaction not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		s.log.WithField("error", err.Error()).Error("transaction lookup failed")
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tx)
}

// ListTransactions lists the user's transactions
// @Summary List transactions
// @Description List transactions newest first, optionally filtered by account
// @Tags transactions
// @Produce json
// @Param accountId query string false "Filter by account (source or destination)"
// @Param limit query int false "Maximum results (default 50, max 500)"
// @Success 200 {array} models.Transaction "Transactions"
// @Failure 400 {object} ErrorResponse "Invalid filter"
// @Router /transactions [get]
func (s *TransactionService) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			SendErrorResponse(w, "Invalid limit", http.StatusBadRequest, nil)
			return
		}
		if parsed > maxListLimit {
			parsed = maxListLimit
		}
		limit = parsed
	}

	var (
		rows *sql.Rows
		err  error
	)
	if raw := r.URL.Query().Get("accountId"); raw != "" {
		accountID, parseErr := uuid.Parse(raw)
		if parseErr != nil {
			SendErrorResponse(w, "Invalid account id", http.StatusBadRequest, nil)
			return
		}
		rows, err = s.db.QueryContext(r.Context(), transactionSelect+`
			WHERE user_id = $1 AND (account_id = $2 OR to_account_id = $2)
			ORDER BY date DESC, created_at DESC
			LIMIT $3`, userID, accountID, limit)
	} else {
		rows, err = s.db.QueryContext(r.Context(), transactionSelect+`
			WHERE user_id = $1
			ORDER BY date DESC, created_at DESC
			LIMIT $2`, userID, limit)
	}
	if err != nil {
		s.log.WithField("error", err.Error()).Error("transaction list failed")
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		tx, scanErr := scanTransaction(rows)
		if scanErr != nil {
			s.log.WithField("error", scanErr.Error()).Error("transaction scan failed")
			SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
			return
		}
		transactions = append(transactions, *tx)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transactions)
}

const transactionSelect = `
	SELECT id, user_id, account_id, to_account_id, category_id, payee_id,
	       type, status, amount, date, notes, version, created_at, updated_at
	FROM transactions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		t           models.Transaction
		toAccountID uuid.NullUUID
		categoryID  uuid.NullUUID
		payeeID     uuid.NullUUID
		notes       sql.NullString
	)
	err := row.Scan(&t.ID, &t.UserID, &t.AccountID, &toAccountID, &categoryID,
		&payeeID, &t.Type, &t.Status, &t.Amount, &t.Date, &notes, &t.Version,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if toAccountID.Valid {
		t.ToAccountID = &toAccountID.UUID
	}
	if categoryID.Valid {
		t.CategoryID = &categoryID.UUID
	}
	if payeeID.Valid {
		t.PayeeID = &payeeID.UUID
	}
	t.Notes = notes.String
	return &t, nil
}

func (s *TransactionService) draftFromRequest(ctx context.Context, userID uuid.UUID, req *TransactionRequest) (*ledger.Draft, error) {
	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		return nil, &ledger.ValidationError{Field: "accountId", Reason: "must be a valid uuid"}
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return nil, &ledger.ValidationError{Field: "amount", Reason: "must be a decimal number"}
	}

	draft := ledger.Draft{
		AccountID: accountID,
		Type:      models.TransactionType(req.Type),
		Status:    models.TransactionStatus(req.Status),
		Amount:    amount,
		Notes:     req.Notes,
	}
	if req.Date != "" {
		date, err := time.Parse(time.RFC3339, req.Date)
		if err != nil {
			return nil, &ledger.ValidationError{Field: "date", Reason: "must be RFC 3339"}
		}
		draft.Date = date
	}
	if req.ToAccountID != nil {
		id, err := uuid.Parse(*req.ToAccountID)
		if err != nil {
			return nil, &ledger.ValidationError{Field: "toAccountId", Reason: "must be a valid uuid"}
		}
		draft.ToAccountID = &id
	}
	if req.CategoryID != nil {
		id, err := s.ownedReference(ctx, userID, "categories", *req.CategoryID, "categoryId")
		if err != nil {
			return nil, err
		}
		draft.CategoryID = id
	}
	if req.PayeeID != nil {
		id, err := s.ownedReference(ctx, userID, "payees", *req.PayeeID, "payeeId")
		if err != nil {
			return nil, err
		}
		draft.PayeeID = id
	}
	return &draft, nil
}

func (s *TransactionService) patchFromRequest(ctx context.Context, userID uuid.UUID, req *TransactionPatchRequest) (*ledger.Patch, error) {
	var patch ledger.Patch

	if req.AccountID != nil {
		id, err := uuid.Parse(*req.AccountID)
		if err != nil {
			return nil, &ledger.ValidationError{Field: "accountId", Reason: "must be a valid uuid"}
		}
		patch.AccountID = &id
	}
	if req.ToAccountID != nil {
		id, err := uuid.Parse(*req.ToAccountID)
		if err != nil {
			return nil, &ledger.ValidationError{Field: "toAccountId", Reason: "must be a valid uuid"}
		}
		patch.ToAccountID = &id
	}
	if req.CategoryID != nil {
		id, err := s.ownedReference(ctx, userID, "categories", *req.CategoryID, "categoryId")
		if err != nil {
			return nil, err
		}
		patch.CategoryID = id
	}
	if req.PayeeID != nil {
		id, err := s.ownedReference(ctx, userID, "payees", *req.PayeeID, "payeeId")
		if err != nil {
			return nil, err
		}
		patch.PayeeID = id
	}
	if req.Type != nil {
		t := models.TransactionType(*req.Type)
		patch.Type = &t
	}
	if req.Status != nil {
		st := models.TransactionStatus(*req.Status)
		patch.Status = &st
	}
	if req.Amount != nil {
		amount, err := decimal.NewFromString(*req.Amount)
		if err != nil {
			return nil, &ledger.ValidationError{Field: "amount", Reason: "must be a decimal number"}
		}
		patch.Amount = &amount
	}
	if req.Date != nil {
		date, err := time.Parse(time.RFC3339, *req.Date)
		if err != nil {
			return nil, &ledger.ValidationError{Field: "date", Reason: "must be RFC 3339"}
		}
		patch.Date = &date
	}
	patch.Notes = req.Notes
	return &patch, nil
}

// ownedReference verifies the category or payee exists and belongs to the
// caller before it is attached to a transaction.
func (s *TransactionService) ownedReference(ctx context.Context, userID uuid.UUID, table, raw, field string) (*uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, &ledger.ValidationError{Field: field, Reason: "must be a valid uuid"}
	}

	var exists bool
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1 AND user_id = $2)`,
		id, userID).Scan(&exists)
	if err != nil {
		return nil, &ledger.StorageError{Op: "reference check", Err: err}
	}
	if !exists {
		return nil, &ledger.NotFoundError{Resource: field, ID: id}
	}
	return &id, nil
}

func (s *TransactionService) invalidateDashboard(ctx context.Context, userID uuid.UUID) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, dashboardCacheKey(userID)).Err(); err != nil {
		s.log.WithField("error", err.Error()).Warn("dashboard cache invalidation failed")
	}
}
