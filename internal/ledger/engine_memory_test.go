package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennywise/backend/internal/models"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seededEngine(t *testing.T, balances map[string]string) (*Engine, *MemoryStore, uuid.UUID, map[string]uuid.UUID) {
	t.Helper()
	store := NewMemoryStore()
	userID := uuid.New()
	ids := map[string]uuid.UUID{}
	for name, balance := range balances {
		id := uuid.New()
		ids[name] = id
		store.SeedAccount(models.Account{
			ID:       id,
			UserID:   userID,
			Name:     name,
			Type:     models.AccountChecking,
			Currency: "USD",
			Balance:  dec(balance),
			IsActive: true,
		})
	}
	return NewEngine(store), store, userID, ids
}

func TestEngineCreateScenarios(t *testing.T) {
	ctx := context.Background()

	t.Run("deposit increases the account balance", func(t *testing.T) {
		engine, store, userID, ids := seededEngine(t, map[string]string{"A": "100"})

		tx, err := engine.Create(ctx, userID, Draft{
			AccountID: ids["A"], Type: models.TypeDeposit, Amount: dec("30"),
		})

		require.NoError(t, err)
		assert.Equal(t, models.StatusUnreconciled, tx.Status)
		assert.True(t, store.AccountBalance(ids["A"]).Equal(dec("130")))
	})

	t.Run("withdrawal decreases the account balance", func(t *testing.T) {
		engine, store, userID, ids := seededEngine(t, map[string]string{"A": "130"})

		_, err := engine.Create(ctx, userID, Draft{
			AccountID: ids["A"], Type: models.TypeWithdrawal, Amount: dec("20"),
		})

		require.NoError(t, err)
		assert.True(t, store.AccountBalance(ids["A"]).Equal(dec("110")))
	})

	t.Run("transfer moves the amount between accounts", func(t *testing.T) {
		engine, store, userID, ids := seededEngine(t, map[string]string{"A": "110", "B": "50"})
		toAccount := ids["B"]

		_, err := engine.Create(ctx, userID, Draft{
			AccountID: ids["A"], ToAccountID: &toAccount,
			Type: models.TypeTransfer, Amount: dec("40"),
		})

		require.NoError(t, err)
		assert.True(t, store.AccountBalance(ids["A"]).Equal(dec("70")))
		assert.True(t, store.AccountBalance(ids["B"]).Equal(dec("90")))
	})
}

func TestEngineDeleteReversesTransfer(t *testing.T) {
	ctx := context.Background()
	engine, store, userID, ids := seededEngine(t, map[string]string{"A": "110", "B": "50"})
	toAccount := ids["B"]

	tx, err := engine.Create(ctx, userID, Draft{
		AccountID: ids["A"], ToAccountID: &toAccount,
		Type: models.TypeTransfer, Amount: dec("40"),
	})
	require.NoError(t, err)

	require.NoError(t, engine.Delete(ctx, userID, tx.ID))

	assert.True(t, store.AccountBalance(ids["A"]).Equal(dec("110")))
	assert.True(t, store.AccountBalance(ids["B"]).Equal(dec("50")))
	assert.Equal(t, 0, store.TransactionCount())
}

func TestEngineCreateThenDeleteRoundTrip(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name  string
		draft func(ids map[string]uuid.UUID) Draft
	}{
		{"deposit", func(ids map[string]uuid.UUID) Draft {
			return Draft{AccountID: ids["A"], Type: models.TypeDeposit, Amount: dec("12.34")}
		}},
		{"withdrawal", func(ids map[string]uuid.UUID) Draft {
			return Draft{AccountID: ids["A"], Type: models.TypeWithdrawal, Amount: dec("7.50")}
		}},
		{"transfer", func(ids map[string]uuid.UUID) Draft {
			to := ids["B"]
			return Draft{AccountID: ids["A"], ToAccountID: &to, Type: models.TypeTransfer, Amount: dec("99")}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine, store, userID, ids := seededEngine(t, map[string]string{"A": "500", "B": "250"})

			tx, err := engine.Create(ctx, userID, tc.draft(ids))
			require.NoError(t, err)
			require.NoError(t, engine.Delete(ctx, userID, tx.ID))

			assert.True(t, store.AccountBalance(ids["A"]).Equal(dec("500")))
			assert.True(t, store.AccountBalance(ids["B"]).Equal(dec("250")))
		})
	}
}

func TestEngineUpdateAmount(t *testing.T) {
	ctx := context.Background()
	engine, store, userID, ids := seededEngine(t, map[string]string{"A": "100"})

	tx, err := engine.Create(ctx, userID, Draft{
		AccountID: ids["A"], Type: models.TypeDeposit, Amount: dec("30"),
	})
	require.NoError(t, err)
	require.True(t, store.AccountBalance(ids["A"]).Equal(dec("130")))

	newAmount := dec("50")
	updated, err := engine.Update(ctx, userID, tx.ID, Patch{Amount: &newAmount})

	require.NoError(t, err)
	assert.Equal(t, tx.Version+1, updated.Version)
	// Reverse +30, apply +50: net 150.
	assert.True(t, store.AccountBalance(ids["A"]).Equal(dec("150")))
}

func TestEngineUpdateTypeSwitchToTransfer(t *testing.T) {
	ctx := context.Background()
	engine, store, userID, ids := seededEngine(t, map[string]string{"A": "200", "B": "10"})

	tx, err := engine.Create(ctx, userID, Draft{
		AccountID: ids["A"], Type: models.TypeWithdrawal, Amount: dec("50"),
	})
	require.NoError(t, err)
	require.True(t, store.AccountBalance(ids["A"]).Equal(dec("150")))

	transfer := models.TypeTransfer
	toAccount := ids["B"]
	updated, err := engine.Update(ctx, userID, tx.ID, Patch{
		Type: &transfer, ToAccountID: &toAccount,
	})

	require.NoError(t, err)
	require.NotNil(t, updated.ToAccountID)
	// Withdrawal reversed (+50) and transfer applied (-50): A is unchanged.
	assert.True(t, store.AccountBalance(ids["A"]).Equal(dec("150")))
	assert.True(t, store.AccountBalance(ids["B"]).Equal(dec("60")))
}

func TestEngineUpdateTypeSwitchDropsDestination(t *testing.T) {
	ctx := context.Background()
	engine, store, userID, ids := seededEngine(t, map[string]string{"A": "100", "B": "100"})
	toAccount := ids["B"]

	tx, err := engine.Create(ctx, userID, Draft{
		AccountID: ids["A"], ToAccountID: &toAccount,
		Type: models.TypeTransfer, Amount: dec("25"),
	})
	require.NoError(t, err)

	deposit := models.TypeDeposit
	updated, err := engine.Update(ctx, userID, tx.ID, Patch{Type: &deposit})

	require.NoError(t, err)
	assert.Nil(t, updated.ToAccountID)
	// Transfer reversed (A +25, B -25), deposit applied (A +25).
	assert.True(t, store.AccountBalance(ids["A"]).Equal(dec("125")))
	assert.True(t, store.AccountBalance(ids["B"]).Equal(dec("100")))
}

func TestEngineValidation(t *testing.T) {
	ctx := context.Background()
	engine, _, userID, ids := seededEngine(t, map[string]string{"A": "100"})

	t.Run("non-positive amount", func(t *testing.T) {
		_, err := engine.Create(ctx, userID, Draft{
			AccountID: ids["A"], Type: models.TypeDeposit, Amount: dec("0"),
		})
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "amount", ve.Field)
	})

	t.Run("transfer without destination", func(t *testing.T) {
		_, err := engine.Create(ctx, userID, Draft{
			AccountID: ids["A"], Type: models.TypeTransfer, Amount: dec("5"),
		})
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "toAccountId", ve.Field)
	})

	t.Run("transfer to the same account", func(t *testing.T) {
		same := ids["A"]
		_, err := engine.Create(ctx, userID, Draft{
			AccountID: ids["A"], ToAccountID: &same,
			Type: models.TypeTransfer, Amount: dec("5"),
		})
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
	})

	t.Run("destination on a deposit", func(t *testing.T) {
		other := uuid.New()
		_, err := engine.Create(ctx, userID, Draft{
			AccountID: ids["A"], ToAccountID: &other,
			Type: models.TypeDeposit, Amount: dec("5"),
		})
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
	})
}

func TestEngineNotFound(t *testing.T) {
	ctx := context.Background()
	engine, store, userID, ids := seededEngine(t, map[string]string{"A": "100"})

	t.Run("unknown account", func(t *testing.T) {
		_, err := engine.Create(ctx, userID, Draft{
			AccountID: uuid.New(), Type: models.TypeDeposit, Amount: dec("5"),
		})
		var nf *NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "account", nf.Resource)
	})

	t.Run("unknown transaction", func(t *testing.T) {
		err := engine.Delete(ctx, userID, uuid.New())
		var nf *NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "transaction", nf.Resource)
	})

	t.Run("account owned by another user hides as not found", func(t *testing.T) {
		_, err := engine.Create(ctx, uuid.New(), Draft{
			AccountID: ids["A"], Type: models.TypeDeposit, Amount: dec("5"),
		})
		var nf *NotFoundError
		require.ErrorAs(t, err, &nf)
		// The failed attempt must not have touched the balance.
		assert.True(t, store.AccountBalance(ids["A"]).Equal(dec("100")))
	})
}

// The account-balance invariant: balance equals the opening balance plus the
// signed effects of every stored transaction, after an arbitrary sequence of
// creates, updates and deletes.
func TestEngineBalanceInvariant(t *testing.T) {
	ctx := context.Background()
	engine, store, userID, ids := seededEngine(t, map[string]string{"A": "1000", "B": "500"})
	toAccount := ids["B"]

	d1, err := engine.Create(ctx, userID, Draft{AccountID: ids["A"], Type: models.TypeDeposit, Amount: dec("100")})
	require.NoError(t, err)
	_, err = engine.Create(ctx, userID, Draft{AccountID: ids["B"], Type: models.TypeWithdrawal, Amount: dec("75.25")})
	require.NoError(t, err)
	tr, err := engine.Create(ctx, userID, Draft{AccountID: ids["A"], ToAccountID: &toAccount, Type: models.TypeTransfer, Amount: dec("200")})
	require.NoError(t, err)

	amount := dec("150")
	_, err = engine.Update(ctx, userID, d1.ID, Patch{Amount: &amount})
	require.NoError(t, err)
	require.NoError(t, engine.Delete(ctx, userID, tr.ID))

	opening := map[uuid.UUID]decimal.Decimal{ids["A"]: dec("1000"), ids["B"]: dec("500")}
	expected := map[uuid.UUID]decimal.Decimal{}
	for id, b := range opening {
		expected[id] = b
	}
	for _, tx := range store.Transactions() {
		for _, d := range ComputeEffect(&tx) {
			expected[d.AccountID] = expected[d.AccountID].Add(d.Amount)
		}
	}

	for id, want := range expected {
		assert.True(t, store.AccountBalance(id).Equal(want),
			"account %s: balance %s, ledger says %s", id, store.AccountBalance(id), want)
	}
}

// Lost-update check: concurrent withdrawals against one account must each
// land; 100 - 10 - 10 is 80, never 90.
func TestEngineConcurrentWithdrawals(t *testing.T) {
	ctx := context.Background()
	engine, store, userID, ids := seededEngine(t, map[string]string{"A": "100"})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.Create(ctx, userID, Draft{
				AccountID: ids["A"], Type: models.TypeWithdrawal, Amount: dec("10"),
			})
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.True(t, store.AccountBalance(ids["A"]).Equal(dec("80")),
		"got %s", store.AccountBalance(ids["A"]))
}

// Concurrent transfers in opposite directions between the same pair exercise
// the sorted lock order; with arbitrary ordering this would deadlock.
func TestEngineConcurrentOpposingTransfers(t *testing.T) {
	ctx := context.Background()
	engine, store, userID, ids := seededEngine(t, map[string]string{"A": "100", "B": "100"})
	a, b := ids["A"], ids["B"]

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := engine.Create(ctx, userID, Draft{
				AccountID: a, ToAccountID: &b, Type: models.TypeTransfer, Amount: dec("1"),
			})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := engine.Create(ctx, userID, Draft{
				AccountID: b, ToAccountID: &a, Type: models.TypeTransfer, Amount: dec("1"),
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	total := store.AccountBalance(a).Add(store.AccountBalance(b))
	assert.True(t, store.AccountBalance(a).Equal(dec("100")))
	assert.True(t, store.AccountBalance(b).Equal(dec("100")))
	assert.True(t, total.Equal(dec("200")))
}

func TestMemoryStoreCompensatesOnScopeFailure(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	userID := uuid.New()
	accountID := uuid.New()
	store.SeedAccount(models.Account{ID: accountID, UserID: userID, Balance: dec("100"), IsActive: true})

	boom := &StorageError{Op: "test", Err: context.Canceled}
	err := store.WithinScope(ctx, func(s Scope) error {
		if _, err := s.AccountForUpdate(ctx, accountID, userID); err != nil {
			return err
		}
		if err := s.IncrementBalance(ctx, accountID, userID, dec("40")); err != nil {
			return err
		}
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.True(t, store.AccountBalance(accountID).Equal(dec("100")),
		"applied delta must be compensated, got %s", store.AccountBalance(accountID))
}
