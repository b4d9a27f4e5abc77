// Package cache is the client's data layer: read-through cached views of the
// viewer's record, the user directory and the transaction feed. Display
// surfaces read concurrently; the only mutation path is an invalidation key
// arriving after a settled submission, which marks a view stale so the next
// read refetches from the remote source of truth.
package cache

import (
	"context"
	"log/slog"
	"sync"

	"bankpay/internal/domain/models"
	"bankpay/internal/payment"
)

// Remote is the read side of the banking API the store refetches from.
type Remote interface {
	Me(ctx context.Context) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	ListMyTransactions(ctx context.Context) ([]models.Transaction, error)
}

// Store caches the three named views. Implements payment.InvalidationSink.
type Store struct {
	remote Remote
	log    *slog.Logger

	mu      sync.RWMutex
	me      *models.User
	users   []models.User
	txs     []models.Transaction
	meOK    bool
	usersOK bool
	txsOK   bool
}

func NewStore(remote Remote, log *slog.Logger) *Store {
	return &Store{remote: remote, log: log}
}

// Invalidate marks the named views stale. Unknown keys are ignored; the
// controller only emits the three it knows about.
func (s *Store) Invalidate(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		switch k {
		case payment.KeyMe:
			s.meOK = false
		case payment.KeyUsers:
			s.usersOK = false
		case payment.KeyTransactions:
			s.txsOK = false
		default:
			s.log.Warn("unknown invalidation key", slog.String("key", k))
		}
	}
}

// Me returns the viewer's record, refetching if stale.
func (s *Store) Me(ctx context.Context) (*models.User, error) {
	s.mu.RLock()
	if s.meOK {
		me := s.me
		s.mu.RUnlock()
		return me, nil
	}
	s.mu.RUnlock()

	me, err := s.remote.Me(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.me = me
	s.meOK = true
	s.mu.Unlock()
	return me, nil
}

// Users returns the directory, refetching if stale.
func (s *Store) Users(ctx context.Context) ([]models.User, error) {
	s.mu.RLock()
	if s.usersOK {
		users := s.users
		s.mu.RUnlock()
		return users, nil
	}
	s.mu.RUnlock()

	users, err := s.remote.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.users = users
	s.usersOK = true
	s.mu.Unlock()
	return users, nil
}

// Transactions returns the feed, refetching if stale.
func (s *Store) Transactions(ctx context.Context) ([]models.Transaction, error) {
	s.mu.RLock()
	if s.txsOK {
		txs := s.txs
		s.mu.RUnlock()
		return txs, nil
	}
	s.mu.RUnlock()

	txs, err := s.remote.ListMyTransactions(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.txs = txs
	s.txsOK = true
	s.mu.Unlock()
	return txs, nil
}

// Refresh forces all three views stale and refetches them, the pull-to-
// refresh path. The three reads are independent network round trips issued
// concurrently.
func (s *Store) Refresh(ctx context.Context) error {
	s.Invalidate(payment.KeyMe, payment.KeyUsers, payment.KeyTransactions)

	var wg sync.WaitGroup
	errs := make([]error, 3)
	wg.Add(3)
	go func() { defer wg.Done(); _, errs[0] = s.Me(ctx) }()
	go func() { defer wg.Done(); _, errs[1] = s.Users(ctx) }()
	go func() { defer wg.Done(); _, errs[2] = s.Transactions(ctx) }()
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
