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

// CategoryService manages transaction categories. Deleting a category clears
// the reference from its transactions instead of deleting them.
type CategoryService struct {
	db        *sql.DB
	validator *validator.Validate
	log       *logrus.Logger
}

func NewCategoryService(db *sql.DB) *CategoryService {
	return &CategoryService{
		db:        db,
		validator: validator.New(),
		log:       logrus.StandardLogger(),
	}
}

// NameRequest represents a named resource payload
// @Description Category or payee request
type NameRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100" example:"Groceries"` // Display name
}

// CreateCategory adds a category
// @Summary Create category
// @Tags categories
// @Accept json
// @Produce json
// @Param request body NameRequest true "Category request"
// @Success 201 {object} models.Category "Created category"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Failure 409 {object} ErrorResponse "Name already exists"
// @Router /categories [post]
func (s *CategoryService) CreateCategory(w http.ResponseWriter, r *http.Request) {
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

	category := models.Category{ID: uuid.New(), UserID: userID, Name: req.Name}
	err := s.db.QueryRowContext(r.Context(), `
		INSERT INTO categories (id, user_id, name)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`,
		category.ID, category.UserID, category.Name).
		Scan(&category.CreatedAt, &category.UpdatedAt)
	if err != nil {
		SendErrorResponse(w, "Category Already Exists", http.StatusConflict, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(category)
}

// ListCategories lists the user's categories
// @Summary List categories
// @Tags categories
// @Produce json
// @Success 200 {array} models.Category "Categories"
// @Router /categories [get]
func (s *CategoryService) ListCategories(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	rows, err := s.db.QueryContext(r.Context(), `
		SELECT id, user_id, name, created_at, updated_at
		FROM categories
		WHERE user_id = $1
		ORDER BY name`, userID)
	if err != nil {
		s.log.WithField("error", err.Error()).Error("category list failed")
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	categories := []models.Category{}
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.CreatedAt, &c.UpdatedAt); err != nil {
			SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
			return
		}
		categories = append(categories, c)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(categories)
}

// UpdateCategory renames a category
// @Summary Rename category
// @Tags categories
// @Accept json
// @Produce json
// @Param categoryID path string true "Category ID"
// @Param request body NameRequest true "New name"
// @Success 200 {object} models.Category "Updated category"
// @Failure 404 {object} ErrorResponse "Category not found"
// @Router /categories/{categoryID} [patch]
func (s *CategoryService) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	categoryID, err := uuid.Parse(chi.URLParam(r, "categoryID"))
	if err != nil {
		SendErrorResponse(w, "Invalid category id", http.StatusBadRequest, nil)
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

	var category models.Category
	err = s.db.QueryRowContext(r.Context(), `
		UPDATE categories
		SET name = $1, updated_at = NOW()
		WHERE id = $2 AND user_id = $3
		RETURNING id, user_id, name, created_at, updated_at`,
		req.Name, categoryID, userID).
		Scan(&category.ID, &category.UserID, &category.Name,
			&category.CreatedAt, &category.UpdatedAt)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "Category not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		SendErrorResponse(w, "Failed to update category", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(category)
}

// DeleteCategory removes a category
// @Summary Delete category
// @Description Delete a category; transactions referencing it keep their history with the reference cleared
// @Tags categories
// @Produce json
// @Param categoryID path string true "Category ID"
// @Success 204 "Deleted"
// @Failure 404 {object} ErrorResponse "Category not found"
// @Router /categories/{categoryID} [delete]
func (s *CategoryService) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	categoryID, err := uuid.Parse(chi.URLParam(r, "categoryID"))
	if err != nil {
		SendErrorResponse(w, "Invalid category id", http.StatusBadRequest, nil)
		return
	}

	tx, err := s.db.BeginTx(r.Context(), nil)
	if err != nil {
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(r.Context(), `
		UPDATE transactions SET category_id = NULL
		WHERE category_id = $1 AND user_id = $2`, categoryID, userID)
	if err != nil {
		s.log.WithField("error", err.Error()).Error("category reference clear failed")
		SendErrorResponse(w, "Failed to delete category", http.StatusInternalServerError, nil)
		return
	}

	result, err := tx.ExecContext(r.Context(), `
		DELETE FROM categories WHERE id = $1 AND user_id = $2`, categoryID, userID)
	if err != nil {
		SendErrorResponse(w, "Failed to delete category", http.StatusInternalServerError, nil)
		return
	}
	affected, err := result.RowsAffected()
	if err != nil || affected == 0 {
		SendErrorResponse(w, "Category not found", http.StatusNotFound, nil)
		return
	}

	if err := tx.Commit(); err != nil {
		SendErrorResponse(w, "Failed to delete category", http.StatusInternalServerError, nil)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
