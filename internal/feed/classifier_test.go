package feed

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"bankpay/internal/domain/models"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestClassifyReceived(t *testing.T) {
	e := Classify(models.Transaction{
		Amount:    dec("50"),
		Sender:    &models.Party{Username: "bob"},
		Recipient: &models.Party{Username: "alice"},
	}, "alice")

	require.Equal(t, CategoryReceived, e.Category)
	require.True(t, e.Amount.Equal(dec("50")))
	require.Equal(t, "bob", e.Counterpart)
}

func TestClassifySent(t *testing.T) {
	e := Classify(models.Transaction{
		Amount:    dec("25.50"),
		Sender:    &models.Party{Username: "alice"},
		Recipient: &models.Party{Username: "bob"},
	}, "alice")

	require.Equal(t, CategorySent, e.Category)
	require.True(t, e.Amount.Equal(dec("-25.50")))
	require.Equal(t, "bob", e.Counterpart)
}

func TestClassifyReceivedWinsOverSent(t *testing.T) {
	// A self-transfer record names the viewer on both sides; the
	// recipient rule is checked first.
	e := Classify(models.Transaction{
		Amount:    dec("10"),
		Sender:    &models.Party{Username: "alice"},
		Recipient: &models.Party{Username: "alice"},
	}, "alice")

	require.Equal(t, CategoryReceived, e.Category)
	require.True(t, e.Amount.Equal(dec("10")))
}

func TestClassifyDepositByAbsentParties(t *testing.T) {
	e := Classify(models.Transaction{Amount: dec("100")}, "alice")

	require.Equal(t, CategoryDeposit, e.Category)
	require.True(t, e.Amount.Equal(dec("100")))
}

func TestClassifyDepositByHint(t *testing.T) {
	for _, hint := range []string{"deposit", "Deposit", "DEPOSIT"} {
		e := Classify(models.Transaction{
			Amount: dec("-100"), // sign in the record does not matter
			Type:   hint,
		}, "alice")

		require.Equal(t, CategoryDeposit, e.Category, "hint=%s", hint)
		require.True(t, e.Amount.Equal(dec("100")))
	}
}

func TestClassifyHintFallsBackToTransactionType(t *testing.T) {
	e := Classify(models.Transaction{
		Amount:          dec("40"),
		TransactionType: "withdrawal",
	}, "alice")

	require.Equal(t, CategoryWithdrawal, e.Category)
	require.True(t, e.Amount.Equal(dec("-40")))
}

func TestClassifyWithdrawalByAbsentParties(t *testing.T) {
	e := Classify(models.Transaction{Amount: dec("-30")}, "alice")

	require.Equal(t, CategoryWithdrawal, e.Category)
	require.True(t, e.Amount.Equal(dec("-30")))
}

func TestClassifyViewerRulesWinOverHint(t *testing.T) {
	// The hint lies; a record naming the viewer as recipient is received.
	e := Classify(models.Transaction{
		Amount:    dec("15"),
		Recipient: &models.Party{Username: "alice"},
		Type:      "withdrawal",
	}, "alice")

	require.Equal(t, CategoryReceived, e.Category)
}

func TestClassifyUnknown(t *testing.T) {
	e := Classify(models.Transaction{
		Amount: dec("7"),
		Sender: &models.Party{Username: "bob"},
	}, "alice")

	require.Equal(t, CategoryUnknown, e.Category)
	require.Equal(t, "bob", e.Counterpart)
	require.True(t, e.Amount.Equal(dec("-7")))

	e = Classify(models.Transaction{
		Amount:    dec("7"),
		Recipient: &models.Party{Username: "carol"},
	}, "alice")
	require.Equal(t, CategoryUnknown, e.Category)
	require.Equal(t, "carol", e.Counterpart)
}

func TestClassifyTotalOnEmptyRecord(t *testing.T) {
	// No parties, no hint, zero amount: still exactly one category.
	e := Classify(models.Transaction{}, "alice")

	require.Equal(t, CategoryUnknown, e.Category)
	require.Equal(t, "Transaction", e.Counterpart)
}

func TestClassifyMissingCounterpart(t *testing.T) {
	e := Classify(models.Transaction{
		Amount:    dec("5"),
		Recipient: &models.Party{Username: "alice"},
	}, "alice")

	require.Equal(t, CategoryReceived, e.Category)
	require.Equal(t, "Unknown", e.Counterpart)
}

func TestSortNewestFirstMissingLast(t *testing.T) {
	t1 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC)

	txs := []models.Transaction{
		{ID: "a", CreatedAt: &t2},
		{ID: "b"},
		{ID: "c", CreatedAt: &t1},
	}
	Sort(txs)

	require.Equal(t, "a", txs[0].ID)
	require.Equal(t, "c", txs[1].ID)
	require.Equal(t, "b", txs[2].ID)
}

func TestSortStableForEqualTimestamps(t *testing.T) {
	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	txs := []models.Transaction{
		{ID: "first", CreatedAt: &ts},
		{ID: "second", CreatedAt: &ts},
	}
	Sort(txs)

	require.Equal(t, "first", txs[0].ID)
	require.Equal(t, "second", txs[1].ID)
}
