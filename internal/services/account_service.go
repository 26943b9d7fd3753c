package services

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/pennywise/backend/internal/models"
)

// AccountService manages account records. The balance column is written here
// exactly once, at creation; every later change goes through the ledger
// engine.
type AccountService struct {
	db        *sql.DB
	validator *validator.Validate
	log       *logrus.Logger
}

func NewAccountService(db *sql.DB) *AccountService {
	return &AccountService{
		db:        db,
		validator: validator.New(),
		log:       logrus.StandardLogger(),
	}
}

// AccountRequest represents a new account payload
// @Description Account creation request
type AccountRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=100" example:"Everyday Checking"`                                // Account name
	Type        string `json:"type" validate:"required,oneof=savings checking credit cash investment loan demat other"`           // Account type
	Currency    string `json:"currency" validate:"required,len=3,alpha" example:"USD"`                                            // ISO 4217 code
	Balance     string `json:"balance,omitempty" example:"1500.00"`                                                               // Opening balance (defaults to 0)
	CreditLimit string `json:"creditLimit,omitempty"`                                                                             // Display-only limit for credit/loan
	Description string `json:"description,omitempty" validate:"max=500"`                                                          // Description
	StartDate   string `json:"startDate,omitempty" example:"2026-01-01T00:00:00Z"`                                                // Opening date (RFC 3339)
	Notes       string `json:"notes,omitempty" validate:"max=500"`                                                                // Free-form notes
}

// AccountPatchRequest represents a metadata update; balance is not editable
// @Description Account update request
type AccountPatchRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Type        *string `json:"type,omitempty" validate:"omitempty,oneof=savings checking credit cash investment loan demat other"`
	Currency    *string `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
	CreditLimit *string `json:"creditLimit,omitempty"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=500"`
	Notes       *string `json:"notes,omitempty" validate:"omitempty,max=500"`
}

// CreateAccount opens a new account
// @Summary Create account
// @Description Create an account with an optional opening balance
// @Tags accounts
// @Accept json
// @Produce json
// @Param request body AccountRequest true "Account request"
// @Success 201 {object} models.Account "Created account"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /accounts [post]
func (s *AccountService) CreateAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req AccountRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	balance := decimal.Zero
	if req.Balance != "" {
		parsed, err := decimal.NewFromString(req.Balance)
		if err != nil {
			SendErrorResponse(w, "Invalid balance", http.StatusBadRequest, nil)
			return
		}
		balance = parsed
	}
	creditLimit := decimal.Zero
	if req.CreditLimit != "" {
		parsed, err := decimal.NewFromString(req.CreditLimit)
		if err != nil {
			SendErrorResponse(w, "Invalid credit limit", http.StatusBadRequest, nil)
			return
		}
		creditLimit = parsed
	}
	startDate := time.Now().UTC()
	if req.StartDate != "" {
		parsed, err := time.Parse(time.RFC3339, req.StartDate)
		if err != nil {
			SendErrorResponse(w, "Invalid start date", http.StatusBadRequest, nil)
			return
		}
		startDate = parsed
	}

	account := models.Account{
		ID:          uuid.New(),
		UserID:      userID,
		Name:        req.Name,
		Type:        models.AccountType(req.Type),
		Currency:    req.Currency,
		Balance:     balance,
		CreditLimit: creditLimit,
		Description: req.Description,
		StartDate:   startDate,
		IsActive:    true,
		Notes:       req.Notes,
	}
	err := s.db.QueryRowContext(r.Context(), `
		INSERT INTO accounts
		(id, user_id, name, type, currency, balance, credit_limit, description,
		 start_date, is_active, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		account.ID, account.UserID, account.Name, account.Type,
		account.Currency, account.Balance, account.CreditLimit,
		account.Description, account.StartDate, account.IsActive,
		account.Notes).Scan(&account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		s.log.WithField("error", err.Error()).Error("account creation failed")
		SendErrorResponse(w, "Failed to create account", http.StatusInternalServerError, nil)
		return
	}

	s.log.WithFields(logrus.Fields{
		"account_id": account.ID.String(),
		"user_id":    userID.String(),
	}).Info("account created")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(account)
}

// ListAccounts lists the user's accounts
// @Summary List accounts
// @Tags accounts
// @Produce json
// @Success 200 {array} models.Account "Accounts"
// @Router /accounts [get]
func (s *AccountService) ListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	rows, err := s.db.QueryContext(r.Context(), accountSelect+`
		WHERE user_id = $1
		ORDER BY created_at`, userID)
	if err != nil {
		s.log.WithField("error", err.Error()).Error("account list failed")
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		account, scanErr := scanAccount(rows)
		if scanErr != nil {
			s.log.WithField("error", scanErr.Error()).Error("account scan failed")
			SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
			return
		}
		accounts = append(accounts, *account)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(accounts)
}

// GetAccount fetches one account
// @Summary Get account
// @Tags accounts
// @Produce json
// @Param accountID path string true "Account ID"
// @Success 200 {object} models.Account "Account"
// @Failure 404 {object} ErrorResponse "Account not found"
// @Router /accounts/{accountID} [get]
func (s *AccountService) GetAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		SendErrorResponse(w, "Invalid account id", http.StatusBadRequest, nil)
		return
	}

	row := s.db.QueryRowContext(r.Context(), accountSelect+`
		WHERE id = $1 AND user_id = $2`, accountID, userID)
	account, err := scanAccount(row)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		s.log.WithField("error", err.Error()).Error("account lookup failed")
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(account)
}

// UpdateAccount edits account metadata
// @Summary Update account
// @Description Update name, type, currency, or notes; balance is never editable here
// @Tags accounts
// @Accept json
// @Produce json
// @Param accountID path string true "Account ID"
// @Param request body AccountPatchRequest true "Fields to change"
// @Success 200 {object} models.Account "Updated account"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Failure 404 {object} ErrorResponse "Account not found"
// @Router /accounts/{accountID} [patch]
func (s *AccountService) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		SendErrorResponse(w, "Invalid account id", http.StatusBadRequest, nil)
		return
	}

	var req AccountPatchRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	row := s.db.QueryRowContext(r.Context(), accountSelect+`
		WHERE id = $1 AND user_id = $2`, accountID, userID)
	account, err := scanAccount(row)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		s.log.WithField("error", err.Error()).Error("account lookup failed")
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	if req.Name != nil {
		account.Name = *req.Name
	}
	if req.Type != nil {
		account.Type = models.AccountType(*req.Type)
	}
	if req.Currency != nil {
		account.Currency = *req.Currency
	}
	if req.CreditLimit != nil {
		parsed, err := decimal.NewFromString(*req.CreditLimit)
		if err != nil {
			SendErrorResponse(w, "Invalid credit limit", http.StatusBadRequest, nil)
			return
		}
		account.CreditLimit = parsed
	}
	if req.Description != nil {
		account.Description = *req.Description
	}
	if req.Notes != nil {
		account.Notes = *req.Notes
	}
	account.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(r.Context(), `
		UPDATE accounts
		SET name = $1, type = $2, currency = $3, credit_limit = $4,
		    description = $5, notes = $6, updated_at = $7
		WHERE id = $8 AND user_id = $9`,
		account.Name, account.Type, account.Currency, account.CreditLimit,
		account.Description, account.Notes, account.UpdatedAt,
		accountID, userID)
	if err != nil {
		s.log.WithField("error", err.Error()).Error("account update failed")
		SendErrorResponse(w, "Failed to update account", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(account)
}

// CloseAccount deactivates an account
// @Summary Close account
// @Description Soft-close an account; its history and balance remain readable
// @Tags accounts
// @Produce json
// @Param accountID path string true "Account ID"
// @Success 200 {object} models.Account "Closed account"
// @Failure 404 {object} ErrorResponse "Account not found"
// @Router /accounts/{accountID}/close [post]
func (s *AccountService) CloseAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		SendErrorResponse(w, "Invalid account id", http.StatusBadRequest, nil)
		return
	}

	result, err := s.db.ExecContext(r.Context(), `
		UPDATE accounts
		SET is_active = FALSE, closed_date = NOW(), updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND is_active`, accountID, userID)
	if err != nil {
		s.log.WithField("error", err.Error()).Error("account close failed")
		SendErrorResponse(w, "Failed to close account", http.StatusInternalServerError, nil)
		return
	}
	affected, err := result.RowsAffected()
	if err != nil || affected == 0 {
		SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		return
	}

	row := s.db.QueryRowContext(r.Context(), accountSelect+`
		WHERE id = $1 AND user_id = $2`, accountID, userID)
	account, err := scanAccount(row)
	if err != nil {
		s.log.WithField("error", err.Error()).Error("account lookup failed")
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	s.log.WithField("account_id", accountID.String()).Info("account closed")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(account)
}

const accountSelect = `
	SELECT id, user_id, name, type, currency, balance, credit_limit,
	       description, start_date, closed_date, is_active, notes,
	       created_at, updated_at
	FROM accounts`

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		account     models.Account
		description sql.NullString
		notes       sql.NullString
		closedDate  sql.NullTime
	)
	err := row.Scan(&account.ID, &account.UserID, &account.Name, &account.Type,
		&account.Currency, &account.Balance, &account.CreditLimit,
		&description, &account.StartDate, &closedDate, &account.IsActive,
		&notes, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, err
	}
	account.Description = description.String
	account.Notes = notes.String
	if closedDate.Valid {
		account.ClosedDate = &closedDate.Time
	}
	return &account, nil
}
