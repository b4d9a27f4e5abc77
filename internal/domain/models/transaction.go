package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Party identifies one side of a transaction. The feed only carries the
// username; either side may be absent entirely.
type Party struct {
	Username string `json:"username"`
}

// Transaction is a feed record as served by the remote system. Immutable once
// created; the client never mutates one, only re-fetches the feed. Most fields
// are optional and several can co-occur inconsistently, which is why
// classification lives in its own package.
type Transaction struct {
	ID              string          `json:"id"`
	Amount          decimal.Decimal `json:"amount"`
	Sender          *Party          `json:"sender,omitempty"`
	Recipient       *Party          `json:"recipient,omitempty"`
	Type            string          `json:"type,omitempty"`
	TransactionType string          `json:"transactionType,omitempty"`
	CreatedAt       *time.Time      `json:"createdAt,omitempty"`
}

// Hint returns the free-text type hint, preferring Type over TransactionType.
func (t Transaction) Hint() string {
	if t.Type != "" {
		return t.Type
	}
	return t.TransactionType
}
