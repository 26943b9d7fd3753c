package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pennywise/backend/internal/models"
)

// Engine is the only code path allowed to mutate account balances. Every
// lifecycle event of a transaction — create, update, delete — flows through
// it as one atomic unit of work: the transaction record write plus the
// balance increments either all commit or none do.
type Engine struct {
	store Store
	audit *Auditor
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store, audit: NewAuditor()}
}

// Draft is a fully specified new transaction, pre-validation.
type Draft struct {
	AccountID   uuid.UUID
	ToAccountID *uuid.UUID
	CategoryID  *uuid.UUID
	PayeeID     *uuid.UUID
	Type        models.TransactionType
	Status      models.TransactionStatus
	Amount      decimal.Decimal
	Date        time.Time
	Notes       string
}

// Patch carries partial field changes for an update. Nil means "leave
// unchanged". When Type moves away from transfer the destination account is
// dropped automatically.
type Patch struct {
	AccountID   *uuid.UUID
	ToAccountID *uuid.UUID
	CategoryID  *uuid.UUID
	PayeeID     *uuid.UUID
	Type        *models.TransactionType
	Status      *models.TransactionStatus
	Amount      *decimal.Decimal
	Date        *time.Time
	Notes       *string
}

// Create persists the draft and applies its balance effect.
func (e *Engine) Create(ctx context.Context, userID uuid.UUID, draft Draft) (*models.Transaction, error) {
	now := time.Now().UTC()
	t := &models.Transaction{
		ID:          uuid.New(),
		UserID:      userID,
		AccountID:   draft.AccountID,
		ToAccountID: draft.ToAccountID,
		CategoryID:  draft.CategoryID,
		PayeeID:     draft.PayeeID,
		Type:        draft.Type,
		Status:      draft.Status,
		Amount:      draft.Amount,
		Date:        draft.Date,
		Notes:       draft.Notes,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if t.Status == "" {
		t.Status = models.StatusUnreconciled
	}
	if t.Date.IsZero() {
		t.Date = now
	}
	if err := validateShape(t); err != nil {
		return nil, err
	}

	effect := ComputeEffect(t)
	err := e.store.WithinScope(ctx, func(s Scope) error {
		if err := lockAccounts(ctx, s, userID, affectedAccounts(effect)); err != nil {
			return err
		}
		if err := s.InsertTransaction(ctx, t); err != nil {
			return err
		}
		return applyDeltas(ctx, s, userID, effect)
	})
	if err != nil {
		e.audit.Failed("create", t.ID, err)
		return nil, err
	}

	e.audit.Applied("create", t, effect)
	return t, nil
}

// Update reverses the stored transaction's prior effect, applies the effect
// of the merged state, and persists the merged record, all in one scope. The
// lock set covers the old accounts and any newly named ones.
func (e *Engine) Update(ctx context.Context, userID, txID uuid.UUID, patch Patch) (*models.Transaction, error) {
	var updated *models.Transaction
	err := e.store.WithinScope(ctx, func(s Scope) error {
		existing, err := s.Transaction(ctx, txID, userID)
		if err != nil {
			return err
		}

		merged := mergePatch(existing, patch)
		if err := validateShape(merged); err != nil {
			return err
		}

		reversal := Reverse(ComputeEffect(existing))
		effect := ComputeEffect(merged)
		if err := lockAccounts(ctx, s, userID, affectedAccounts(reversal, effect)); err != nil {
			return err
		}
		if err := applyDeltas(ctx, s, userID, reversal); err != nil {
			return err
		}
		if err := applyDeltas(ctx, s, userID, effect); err != nil {
			return err
		}

		merged.UpdatedAt = time.Now().UTC()
		if err := s.UpdateTransaction(ctx, merged); err != nil {
			return err
		}
		merged.Version++
		updated = merged
		return nil
	})
	if err != nil {
		e.audit.Failed("update", txID, err)
		return nil, err
	}

	e.audit.Applied("update", updated, ComputeEffect(updated))
	return updated, nil
}

// Delete reverses the transaction's effect and removes the record.
func (e *Engine) Delete(ctx context.Context, userID, txID uuid.UUID) error {
	err := e.store.WithinScope(ctx, func(s Scope) error {
		existing, err := s.Transaction(ctx, txID, userID)
		if err != nil {
			return err
		}

		reversal := Reverse(ComputeEffect(existing))
		if err := lockAccounts(ctx, s, userID, affectedAccounts(reversal)); err != nil {
			return err
		}
		if err := applyDeltas(ctx, s, userID, reversal); err != nil {
			return err
		}
		return s.DeleteTransaction(ctx, txID, userID)
	})
	if err != nil {
		e.audit.Failed("delete", txID, err)
		return err
	}

	e.audit.log.WithField("transaction_id", txID.String()).Info("ledger mutation committed")
	return nil
}

// validateShape enforces the structural invariants of a transaction: a
// strictly positive amount, a known type, and a destination account exactly
// when the type is transfer (and distinct from the source).
func validateShape(t *models.Transaction) error {
	if !t.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	if !models.ValidTransactionType(t.Type) {
		return &ValidationError{Field: "type", Reason: "unknown transaction type"}
	}
	if !models.ValidTransactionStatus(t.Status) {
		return &ValidationError{Field: "status", Reason: "unknown transaction status"}
	}
	if t.Type == models.TypeTransfer {
		if t.ToAccountID == nil {
			return &ValidationError{Field: "toAccountId", Reason: "required for transfer transactions"}
		}
		if *t.ToAccountID == t.AccountID {
			return &ValidationError{Field: "toAccountId", Reason: "must differ from the source account"}
		}
	} else if t.ToAccountID != nil {
		return &ValidationError{Field: "toAccountId", Reason: "only allowed for transfer transactions"}
	}
	return nil
}

func mergePatch(existing *models.Transaction, patch Patch) *models.Transaction {
	merged := *existing
	if patch.AccountID != nil {
		merged.AccountID = *patch.AccountID
	}
	if patch.ToAccountID != nil {
		merged.ToAccountID = patch.ToAccountID
	}
	if patch.CategoryID != nil {
		merged.CategoryID = patch.CategoryID
	}
	if patch.PayeeID != nil {
		merged.PayeeID = patch.PayeeID
	}
	if patch.Type != nil {
		merged.Type = *patch.Type
	}
	if patch.Status != nil {
		merged.Status = *patch.Status
	}
	if patch.Amount != nil {
		merged.Amount = *patch.Amount
	}
	if patch.Date != nil {
		merged.Date = *patch.Date
	}
	if patch.Notes != nil {
		merged.Notes = *patch.Notes
	}
	// Leaving the transfer type behind drops the stale destination unless the
	// patch named a new one, which validateShape then rejects.
	if merged.Type != models.TypeTransfer && patch.ToAccountID == nil {
		merged.ToAccountID = nil
	}
	return &merged
}

// lockAccounts takes exclusive locks on every account id, in ascending id
// order. Deterministic ordering is what prevents two overlapping scopes from
// deadlocking on a shared account pair.
func lockAccounts(ctx context.Context, s Scope, userID uuid.UUID, ids []uuid.UUID) error {
	for _, id := range ids {
		if _, err := s.AccountForUpdate(ctx, id, userID); err != nil {
			return err
		}
	}
	return nil
}

func applyDeltas(ctx context.Context, s Scope, userID uuid.UUID, deltas []Delta) error {
	for _, d := range deltas {
		if err := s.IncrementBalance(ctx, d.AccountID, userID, d.Amount); err != nil {
			return err
		}
	}
	return nil
}
