package services

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pennywise/backend/internal/models"
)

// PayeeService manages payees with the same lifecycle rules as categories:
// names are unique per user and deletion clears transaction references.
type PayeeService struct {
	db        *sql.DB
	validator *validator.Validate
	log       *logrus.Logger
}

func NewPayeeService(db *sql.DB) *PayeeService {
	return &PayeeService{
		db:        db,
		validator: validator.New(),
		log:       logrus.StandardLogger(),
	}
}

// CreatePayee adds a payee
// @Summary Create payee
// @Tags payees
// @Accept json
// @Produce json
// @Param request body NameRequest true "Payee request"
// @Success 201 {object} models.Payee "Created payee"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Failure 409 {object} ErrorResponse "Name already exists"
// @Router /payees [post]
func (s *PayeeService) CreatePayee(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req NameRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	payee := models.Payee{ID: uuid.New(), UserID: userID, Name: req.Name}
	err := s.db.QueryRowContext(r.Context(), `
		INSERT INTO payees (id, user_id, name)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`,
		payee.ID, payee.UserID, payee.Name).
		Scan(&payee.CreatedAt, &payee.UpdatedAt)
	if err != nil {
		SendErrorResponse(w, "Payee Already Exists", http.StatusConflict, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(payee)
}

// ListPayees lists the user's payees
// @Summary List payees
// @Tags payees
// @Produce json
// @Success 200 {array} models.Payee "Payees"
// @Router /payees [get]
func (s *PayeeService) ListPayees(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	rows, err := s.db.QueryContext(r.Context(), `
		SELECT id, user_id, name, created_at, updated_at
		FROM payees
		WHERE user_id = $1
		ORDER BY name`, userID)
	if err != nil {
		s.log.WithField("error", err.Error()).Error("payee list failed")
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	payees := []models.Payee{}
	for rows.Next() {
		var p models.Payee
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
			SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
			return
		}
		payees = append(payees, p)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payees)
}

// UpdatePayee renames a payee
// @Summary Rename payee
// @Tags payees
// @Accept json
// @Produce json
// @Param payeeID path string true "Payee ID"
// @Param request body NameRequest true "New name"
// @Success 200 {object} models.Payee "Updated payee"
// @Failure 404 {object} ErrorResponse "Payee not found"
// @Router /payees/{payeeID} [patch]
func (s *PayeeService) UpdatePayee(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	payeeID, err := uuid.Parse(chi.URLParam(r, "payeeID"))
	if err != nil {
		SendErrorResponse(w, "Invalid payee id", http.StatusBadRequest, nil)
		return
	}

	var req NameRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	var payee models.Payee
	err = s.db.QueryRowContext(r.Context(), `
		UPDATE payees
		SET name = $1, updated_at = NOW()
		WHERE id = $2 AND user_id = $3
		RETURNING id, user_id, name, created_at, updated_at`,
		req.Name, payeeID, userID).
		Scan(&payee.ID, &payee.UserID, &payee.Name, &payee.CreatedAt, &payee.UpdatedAt)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "Payee not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		SendErrorResponse(w, "Failed to update payee", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payee)
}

// DeletePayee removes a payee
// @Summary Delete payee
// @Description Delete a payee; transactions referencing it keep their history with the reference cleared
// @Tags payees
// @Produce json
// @Param payeeID path string true "Payee ID"
// @Success 204 "Deleted"
// @Failure 404 {object} ErrorResponse "Payee not found"
// @Router /payees/{payeeID} [delete]
func (s *PayeeService) DeletePayee(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	payeeID, err := uuid.Parse(chi.URLParam(r, "payeeID"))
	if err != nil {
		SendErrorResponse(w, "Invalid payee id", http.StatusBadRequest, nil)
		return
	}

	tx, err := s.db.BeginTx(r.Context(), nil)
	if err != nil {
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(r.Context(), `
		UPDATE transactions SET payee_id = NULL
		WHERE payee_id = $1 AND user_id = $2`, payeeID, userID)
	if err != nil {
		s.log.WithField("error", err.Error()).Error("payee reference clear failed")
		SendErrorResponse(w, "Failed to delete payee", http.StatusInternalServerError, nil)
		return
	}

	result, err := tx.ExecContext(r.Context(), `
		DELETE FROM payees WHERE id = $1 AND user_id = $2`, payeeID, userID)
	if err != nil {
		SendErrorResponse(w, "Failed to delete payee", http.StatusInternalServerError, nil)
		return
	}
	affected, err := result.RowsAffected()
	if err != nil || affected == 0 {
		SendErrorResponse(w, "Payee not found", http.StatusNotFound, nil)
		return
	}

	if err := tx.Commit(); err != nil {
		SendErrorResponse(w, "Failed to delete payee", http.StatusInternalServerError, nil)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
