package ledger

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/pennywise/backend/internal/models"
)

// Scope exposes the store primitives the engine needs inside one atomic unit
// of work. Reads of accounts and transactions take exclusive row locks, and
// IncrementBalance is a single atomic adjustment, never read-then-write.
type Scope interface {
	AccountForUpdate(ctx context.Context, accountID, userID uuid.UUID) (*models.Account, error)
	Transaction(ctx context.Context, txID, userID uuid.UUID) (*models.Transaction, error)
	IncrementBalance(ctx context.Context, accountID, userID uuid.UUID, delta decimal.Decimal) error
	InsertTransaction(ctx context.Context, t *models.Transaction) error
	UpdateTransaction(ctx context.Context, t *models.Transaction) error
	DeleteTransaction(ctx context.Context, txID, userID uuid.UUID) error
}

// Store runs a function against a Scope with all-or-nothing semantics. If fn
// returns an error no write performed through the scope survives.
type Store interface {
	WithinScope(ctx context.Context, fn func(Scope) error) error
}

// PostgresStore is the durable Store. Atomicity comes from a single SQL
// transaction; serialization of concurrent writers comes from FOR UPDATE row
// locks taken in deterministic order by the engine.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) WithinScope(ctx context.Context, fn func(Scope) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Op: "begin", Err: err}
	}

	if err := fn(&pgScope{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			// A failed rollback means the applied deltas may have survived.
			// Balances can no longer be trusted until reconciled by hand.
			logrus.WithFields(logrus.Fields{
				"event":          "balance_rollback_failed",
				"rollback_error": rbErr.Error(),
				"scope_error":    err.Error(),
			}).Error("ledger scope rollback failed; manual reconciliation required")
			return &StorageError{Op: "rollback", Err: rbErr}
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "commit", Err: err}
	}
	return nil
}

type pgScope struct {
	tx *sql.Tx
}

func (s *pgScope) AccountForUpdate(ctx context.Context, accountID, userID uuid.UUID) (*models.Account, error) {
	var (
		account     models.Account
		description sql.NullString
		notes       sql.NullString
		closedDate  sql.NullTime
	)
	err := s.tx.QueryRowContext(ctx, `
		SELECT id, user_id, name, type, currency, balance, credit_limit,
		       description, start_date, closed_date, is_active, notes,
		       created_at, updated_at
		FROM accounts
		WHERE id = $1 AND user_id = $2
		FOR UPDATE`, accountID, userID).Scan(
		&account.ID, &account.UserID, &account.Name, &account.Type,
		&account.Currency, &account.Balance, &account.CreditLimit,
		&description, &account.StartDate, &closedDate, &account.IsActive,
		&notes, &account.CreatedAt, &account.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Resource: "account", ID: accountID}
	}
	if err != nil {
		return nil, &StorageError{Op: "lock account", Err: err}
	}
	account.Description = description.String
	account.Notes = notes.String
	if closedDate.Valid {
		account.ClosedDate = &closedDate.Time
	}
	return &account, nil
}

func (s *pgScope) Transaction(ctx context.Context, txID, userID uuid.UUID) (*models.Transaction, error) {
	var (
		t           models.Transaction
		toAccountID uuid.NullUUID
		categoryID  uuid.NullUUID
		payeeID     uuid.NullUUID
		notes       sql.NullString
	)
	err := s.tx.QueryRowContext(ctx, `
		SELECT id, user_id, account_id, to_account_id, category_id, payee_id,
		       type, status, amount, date, notes, version, created_at, updated_at
		FROM transactions
		WHERE id = $1 AND user_id = $2
		FOR UPDATE`, txID, userID).Scan(
		&t.ID, &t.UserID, &t.AccountID, &toAccountID, &categoryID, &payeeID,
		&t.Type, &t.Status, &t.Amount, &t.Date, &notes, &t.Version,
		&t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Resource: "transaction", ID: txID}
	}
	if err != nil {
		return nil, &StorageError{Op: "load transaction", Err: err}
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

func (s *pgScope) IncrementBalance(ctx context.Context, accountID, userID uuid.UUID, delta decimal.Decimal) error {
	result, err := s.tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2 AND user_id = $3`, delta, accountID, userID)
	if err != nil {
		return &StorageError{Op: "increment balance", Err: err}
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return &StorageError{Op: "increment balance", Err: err}
	}
	if affected == 0 {
		return &NotFoundError{Resource: "account", ID: accountID}
	}
	return nil
}

func (s *pgScope) InsertTransaction(ctx context.Context, t *models.Transaction) error {
	_, err := s.tx.ExecContext(ctx, `
		INSERT INTO transactions
		(id, user_id, account_id, to_account_id, category_id, payee_id,
		 type, status, amount, date, notes, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		t.ID, t.UserID, t.AccountID, nullableID(t.ToAccountID),
		nullableID(t.CategoryID), nullableID(t.PayeeID), t.Type, t.Status,
		t.Amount, t.Date, t.Notes, t.Version, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return &StorageError{Op: "insert transaction", Err: err}
	}
	return nil
}

func (s *pgScope) UpdateTransaction(ctx context.Context, t *models.Transaction) error {
	result, err := s.tx.ExecContext(ctx, `
		UPDATE transactions
		SET account_id = $1, to_account_id = $2, category_id = $3,
		    payee_id = $4, type = $5, status = $6, amount = $7, date = $8,
		    notes = $9, version = version + 1, updated_at = $10
		WHERE id = $11 AND user_id = $12 AND version = $13`,
		t.AccountID, nullableID(t.ToAccountID), nullableID(t.CategoryID),
		nullableID(t.PayeeID), t.Type, t.Status, t.Amount, t.Date, t.Notes,
		t.UpdatedAt, t.ID, t.UserID, t.Version)
	if err != nil {
		return &StorageError{Op: "update transaction", Err: err}
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return &StorageError{Op: "update transaction", Err: err}
	}
	if affected == 0 {
		return &ConflictError{Resource: "transaction", ID: t.ID}
	}
	return nil
}

func (s *pgScope) DeleteTransaction(ctx context.Context, txID, userID uuid.UUID) error {
	result, err := s.tx.ExecContext(ctx, `
		DELETE FROM transactions WHERE id = $1 AND user_id = $2`, txID, userID)
	if err != nil {
		return &StorageError{Op: "delete transaction", Err: err}
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return &StorageError{Op: "delete transaction", Err: err}
	}
	if affected == 0 {
		return &NotFoundError{Resource: "transaction", ID: txID}
	}
	return nil
}

func nullableID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
