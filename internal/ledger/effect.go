package ledger

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pennywise/backend/internal/models"
)

// Delta is one signed balance adjustment against a single account.
type Delta struct {
	AccountID uuid.UUID
	Amount    decimal.Decimal
}

// ComputeEffect returns the balance deltas a transaction applies when it
// enters the ledger. Create, update and delete all derive their arithmetic
// from this one function, so apply and reverse can never disagree about
// signs.
func ComputeEffect(t *models.Transaction) []Delta {
	switch t.Type {
	case models.TypeDeposit:
		return []Delta{{AccountID: t.AccountID, Amount: t.Amount}}
	case models.TypeWithdrawal:
		return []Delta{{AccountID: t.AccountID, Amount: t.Amount.Neg()}}
	case models.TypeTransfer:
		if t.ToAccountID == nil {
			return nil
		}
		return []Delta{
			{AccountID: t.AccountID, Amount: t.Amount.Neg()},
			{AccountID: *t.ToAccountID, Amount: t.Amount},
		}
	}
	return nil
}

// Reverse flips the sign of every delta, producing the effect that undoes a
// previously applied transaction.
func Reverse(deltas []Delta) []Delta {
	reversed := make([]Delta, len(deltas))
	for i, d := range deltas {
		reversed[i] = Delta{AccountID: d.AccountID, Amount: d.Amount.Neg()}
	}
	return reversed
}

// affectedAccounts returns the distinct account ids named by the given delta
// lists, sorted ascending. Locks are always acquired in this order so two
// scopes touching the same account pair cannot deadlock.
func affectedAccounts(deltaLists ...[]Delta) []uuid.UUID {
	seen := map[uuid.UUID]struct{}{}
	var ids []uuid.UUID
	for _, deltas := range deltaLists {
		for _, d := range deltas {
			if _, ok := seen[d.AccountID]; ok {
				continue
			}
			seen[d.AccountID] = struct{}{}
			ids = append(ids, d.AccountID)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].String() < ids[j].String()
	})
	return ids
}
