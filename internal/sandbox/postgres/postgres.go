// Package postgres backs the sandbox with a real database so balances and
// feeds survive restarts.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "github.com/lib/pq"

	"bankpay/internal/domain/models"
)

type Storage struct {
	db *sql.DB
}

func New(dbUrl string) (*Storage, error) {
	db, err := sql.Open("postgres", dbUrl)
	if err != nil {
		return nil, fmt.Errorf("database connection error %s", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect database error %s", err)
	}

	return &Storage{db: db}, nil
}

func (s *Storage) Stop() error {
	return s.db.Close()
}

func (s *Storage) SaveUser(ctx context.Context, username string, passHash []byte) (*models.User, error) {
	const op = "sandbox.postgres.SaveUser"

	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (id, username, password_hash, balance) VALUES($1, $2, $3, 0)",
		id, username, passHash,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.User{ID: id, Username: username, Balance: decimal.Zero}, nil
}

func (s *Storage) GetUser(ctx context.Context, id string) (*models.User, error) {
	const op = "sandbox.postgres.GetUser"

	row := s.db.QueryRowContext(ctx,
		"SELECT id, username, COALESCE(image_path, ''), balance FROM users WHERE id = $1", id)

	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

func (s *Storage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	const op = "sandbox.postgres.GetUserByUsername"

	row := s.db.QueryRowContext(ctx,
		"SELECT id, username, COALESCE(image_path, ''), balance FROM users WHERE LOWER(username) = LOWER($1)",
		username)

	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

func (s *Storage) GetCredentials(ctx context.Context, username string) (*models.User, []byte, error) {
	const op = "sandbox.postgres.GetCredentials"

	var user models.User
	var hash []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT id, username, COALESCE(image_path, ''), balance, password_hash FROM users WHERE LOWER(username) = LOWER($1)",
		username,
	).Scan(&user.ID, &user.Username, &user.ImagePath, &user.Balance, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	return &user, hash, nil
}

func (s *Storage) ListUsers(ctx context.Context) ([]models.User, error) {
	const op = "sandbox.postgres.ListUsers"

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, username, COALESCE(image_path, ''), balance FROM users ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return users, nil
}

func (s *Storage) Transfer(ctx context.Context, fromID, toID string, amount decimal.Decimal) error {
	const op = "sandbox.postgres.Transfer"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"UPDATE users SET balance = balance - $1 WHERE id = $2", amount, fromID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE users SET balance = balance + $1 WHERE id = $2", amount, toID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO transactions (id, sender_id, recipient_id, amount, created_at) VALUES($1, $2, $3, $4, NOW())",
		uuid.NewString(), fromID, toID, amount); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) Deposit(ctx context.Context, userID string, amount decimal.Decimal) error {
	const op = "sandbox.postgres.Deposit"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"UPDATE users SET balance = balance + $1 WHERE id = $2", amount, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO transactions (id, recipient_id, amount, type, created_at) VALUES($1, $2, $3, 'deposit', NOW())",
		uuid.NewString(), userID, amount); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) ListTransactions(ctx context.Context, userID string) ([]models.Transaction, error) {
	const op = "sandbox.postgres.ListTransactions"

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.amount, COALESCE(t.type, ''), t.created_at,
		       s.username, r.username
		FROM transactions t
		LEFT JOIN users s ON s.id = t.sender_id
		LEFT JOIN users r ON r.id = t.recipient_id
		WHERE t.sender_id = $1 OR t.recipient_id = $1
		ORDER BY t.created_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		var t models.Transaction
		var createdAt sql.NullTime
		var sender, recipient sql.NullString
		if err := rows.Scan(&t.ID, &t.Amount, &t.Type, &createdAt, &sender, &recipient); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if createdAt.Valid {
			ts := createdAt.Time
			t.CreatedAt = &ts
		}
		// Deposits have no sender; only attach the parties that exist.
		if sender.Valid {
			t.Sender = &models.Party{Username: sender.String}
		}
		if recipient.Valid && t.Type != "deposit" {
			t.Recipient = &models.Party{Username: recipient.String}
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return txs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	if err := row.Scan(&user.ID, &user.Username, &user.ImagePath, &user.Balance); err != nil {
		return nil, err
	}
	return &user, nil
}
