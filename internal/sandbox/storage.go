package sandbox

import (
	"context"

	"github.com/shopspring/decimal"

	"bankpay/internal/domain/models"
)

// Storage is the sandbox's persistence surface. The production implementation
// is Postgres; tests use an in-memory fake.
type Storage interface {
	SaveUser(ctx context.Context, username string, passHash []byte) (*models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	// GetCredentials returns the user together with the stored password hash.
	GetCredentials(ctx context.Context, username string) (*models.User, []byte, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	// Transfer moves amount between balances and records the transaction.
	Transfer(ctx context.Context, fromID, toID string, amount decimal.Decimal) error
	// Deposit adds amount to a balance and records a deposit transaction.
	Deposit(ctx context.Context, userID string, amount decimal.Decimal) error
	// ListTransactions returns every transaction involving the user.
	ListTransactions(ctx context.Context, userID string) ([]models.Transaction, error)
}
