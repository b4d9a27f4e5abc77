// Package feed turns the raw transaction feed into something displayable:
// each record gets a semantic category, a signed display amount and a
// counterpart label, and the feed gets a stable ordering.
//
// The remote data model is unreliable: the type hint is free text, either
// party can be missing, and several signals can co-occur. Classification is
// therefore strictly first-match-wins over a fixed rule order. Changing the
// order changes product behavior, so don't.
package feed

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"bankpay/internal/domain/models"
)

// Category is the semantic class of a feed record from the viewer's side.
type Category string

const (
	CategoryReceived   Category = "received"
	CategorySent       Category = "sent"
	CategoryDeposit    Category = "deposit"
	CategoryWithdrawal Category = "withdrawal"
	CategoryUnknown    Category = "unknown"
)

// Entry is the display form of one transaction. Amount carries the display
// sign for the category; the underlying record is never mutated.
type Entry struct {
	Category    Category
	Amount      decimal.Decimal
	Counterpart string
}

// Classify assigns a category to tx as seen by viewer. Total: every record
// gets exactly one category, however incomplete it is.
//
// Rule order, first match wins:
//  1. recipient is the viewer -> received
//  2. sender is the viewer -> sent
//  3. hint says deposit, or both parties absent and amount > 0 -> deposit
//  4. hint says withdrawal, or both parties absent and amount < 0 -> withdrawal
//  5. otherwise unknown
func Classify(tx models.Transaction, viewer string) Entry {
	abs := tx.Amount.Abs()
	hint := strings.ToLower(tx.Hint())
	bothAbsent := tx.Sender == nil && tx.Recipient == nil

	switch {
	case tx.Recipient != nil && tx.Recipient.Username == viewer:
		return Entry{
			Category:    CategoryReceived,
			Amount:      abs,
			Counterpart: partyLabel(tx.Sender),
		}
	case tx.Sender != nil && tx.Sender.Username == viewer:
		return Entry{
			Category:    CategorySent,
			Amount:      abs.Neg(),
			Counterpart: partyLabel(tx.Recipient),
		}
	case hint == "deposit" || (bothAbsent && tx.Amount.IsPositive()):
		return Entry{
			Category:    CategoryDeposit,
			Amount:      abs,
			Counterpart: "Deposit",
		}
	case hint == "withdrawal" || (bothAbsent && tx.Amount.IsNegative()):
		return Entry{
			Category:    CategoryWithdrawal,
			Amount:      abs.Neg(),
			Counterpart: "Withdrawal",
		}
	default:
		label := "Transaction"
		if tx.Sender != nil {
			label = tx.Sender.Username
		} else if tx.Recipient != nil {
			label = tx.Recipient.Username
		}
		// Display-only default sign; accounting never reads it.
		return Entry{
			Category:    CategoryUnknown,
			Amount:      abs.Neg(),
			Counterpart: label,
		}
	}
}

func partyLabel(p *models.Party) string {
	if p == nil || p.Username == "" {
		return "Unknown"
	}
	return p.Username
}

// Sort orders the feed newest first. Records without a timestamp sort as if
// stamped at epoch 0, i.e. last. Stable, and in place.
func Sort(txs []models.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		var ti, tj int64
		if txs[i].CreatedAt != nil {
			ti = txs[i].CreatedAt.UnixMilli()
		}
		if txs[j].CreatedAt != nil {
			tj = txs[j].CreatedAt.UnixMilli()
		}
		return ti > tj
	})
}
