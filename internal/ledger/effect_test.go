package ledger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/pennywise/backend/internal/models"
)

func TestComputeEffect(t *testing.T) {
	accountA := uuid.New()
	accountB := uuid.New()
	amount := decimal.RequireFromString("40")

	t.Run("deposit credits the source account", func(t *testing.T) {
		effect := ComputeEffect(&models.Transaction{
			Type: models.TypeDeposit, AccountID: accountA, Amount: amount,
		})

		assert.Len(t, effect, 1)
		assert.Equal(t, accountA, effect[0].AccountID)
		assert.True(t, effect[0].Amount.Equal(amount))
	})

	t.Run("withdrawal debits the source account", func(t *testing.T) {
		effect := ComputeEffect(&models.Transaction{
			Type: models.TypeWithdrawal, AccountID: accountA, Amount: amount,
		})

		assert.Len(t, effect, 1)
		assert.True(t, effect[0].Amount.Equal(amount.Neg()))
	})

	t.Run("transfer debits source and credits destination", func(t *testing.T) {
		effect := ComputeEffect(&models.Transaction{
			Type: models.TypeTransfer, AccountID: accountA, ToAccountID: &accountB, Amount: amount,
		})

		assert.Len(t, effect, 2)
		assert.Equal(t, accountA, effect[0].AccountID)
		assert.True(t, effect[0].Amount.Equal(amount.Neg()))
		assert.Equal(t, accountB, effect[1].AccountID)
		assert.True(t, effect[1].Amount.Equal(amount))
	})

	t.Run("transfer without destination yields no effect", func(t *testing.T) {
		effect := ComputeEffect(&models.Transaction{
			Type: models.TypeTransfer, AccountID: accountA, Amount: amount,
		})

		assert.Empty(t, effect)
	})
}

func TestReverseIsIdempotentNegation(t *testing.T) {
	accountA := uuid.New()
	accountB := uuid.New()

	transactions := []*models.Transaction{
		{Type: models.TypeDeposit, AccountID: accountA, Amount: decimal.RequireFromString("30")},
		{Type: models.TypeWithdrawal, AccountID: accountA, Amount: decimal.RequireFromString("19.99")},
		{Type: models.TypeTransfer, AccountID: accountA, ToAccountID: &accountB, Amount: decimal.RequireFromString("123.45")},
	}

	for _, tx := range transactions {
		effect := ComputeEffect(tx)
		reversal := Reverse(effect)

		// Applying an effect and then its reversal nets to zero per account.
		net := map[uuid.UUID]decimal.Decimal{}
		for _, d := range append(effect, reversal...) {
			net[d.AccountID] = net[d.AccountID].Add(d.Amount)
		}
		for accountID, sum := range net {
			assert.True(t, sum.IsZero(), "account %s nets %s after apply+reverse", accountID, sum)
		}

		// Reversing twice restores the original effect.
		again := Reverse(reversal)
		for i := range effect {
			assert.Equal(t, effect[i].AccountID, again[i].AccountID)
			assert.True(t, effect[i].Amount.Equal(again[i].Amount))
		}
	}
}

func TestAffectedAccountsSortedAndDeduplicated(t *testing.T) {
	idHigh := uuid.MustParse("ffffffff-0000-0000-0000-000000000000")
	idLow := uuid.MustParse("00000000-0000-0000-0000-000000000001")

	ids := affectedAccounts(
		[]Delta{{AccountID: idHigh}, {AccountID: idLow}},
		[]Delta{{AccountID: idLow}, {AccountID: idHigh}},
	)

	assert.Equal(t, []uuid.UUID{idLow, idHigh}, ids)
}
