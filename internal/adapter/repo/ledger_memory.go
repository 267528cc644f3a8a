package repo

import (
	"context"
	"sync"
	"time"

	"snapcode/internal/domain"
)

// LedgerStoreMemory is an in-process domain.LedgerStore. Per-account mutexes
// give the same linearization the Postgres implementation gets from row
// locks.
type LedgerStoreMemory struct {
	mu           sync.Mutex
	accounts     map[string]*memAccount
	reservations map[string]*domain.CreditEntry
	settled      map[string]bool
}

type memAccount struct {
	mu      sync.Mutex
	balance int64
	entries []*domain.CreditEntry
}

// NewLedgerStoreMemory creates an empty in-memory ledger.
func NewLedgerStoreMemory() *LedgerStoreMemory {
	return &LedgerStoreMemory{
		accounts:     make(map[string]*memAccount),
		reservations: make(map[string]*domain.CreditEntry),
		settled:      make(map[string]bool),
	}
}

func (s *LedgerStoreMemory) account(accountID string) *memAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[accountID]
	if !ok {
		acct = &memAccount{}
		s.accounts[accountID] = acct
	}
	return acct
}

type memLedgerView struct {
	store *LedgerStoreMemory
	acct  *memAccount
}

func (v *memLedgerView) Balance() (int64, error) {
	return v.acct.balance, nil
}

func (v *memLedgerView) Settled(reservationID string) (bool, error) {
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return v.store.settled[reservationID], nil
}

func (v *memLedgerView) Append(e *domain.CreditEntry) error {
	cp := *e
	v.acct.entries = append(v.acct.entries, &cp)
	v.acct.balance = cp.BalanceAfter

	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	switch cp.Kind {
	case domain.EntryReserve:
		v.store.reservations[cp.ReservationID] = &cp
	case domain.EntryCommit, domain.EntryRefund:
		v.store.settled[cp.ReservationID] = true
	}
	return nil
}

// Tx runs fn with exclusive access to one account's ledger.
func (s *LedgerStoreMemory) Tx(ctx context.Context, accountID string, fn func(v domain.LedgerView) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	acct := s.account(accountID)
	acct.mu.Lock()
	defer acct.mu.Unlock()
	return fn(&memLedgerView{store: s, acct: acct})
}

// Reservation finds a reserve entry by its reservation ID.
func (s *LedgerStoreMemory) Reservation(ctx context.Context, reservationID string) (*domain.CreditEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	reserve, ok := s.reservations[reservationID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *reserve
	return &cp, nil
}

// UnsettledReservations lists reserves older than the cutoff with no
// settlement entry.
func (s *LedgerStoreMemory) UnsettledReservations(ctx context.Context, olderThan time.Time) ([]*domain.CreditEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var stale []*domain.CreditEntry
	for id, reserve := range s.reservations {
		if !s.settled[id] && reserve.CreatedAt.Before(olderThan) {
			cp := *reserve
			stale = append(stale, &cp)
		}
	}
	return stale, nil
}

// Entries lists one account's ledger in creation order.
func (s *LedgerStoreMemory) Entries(ctx context.Context, accountID string) ([]*domain.CreditEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	acct := s.account(accountID)
	acct.mu.Lock()
	defer acct.mu.Unlock()
	out := make([]*domain.CreditEntry, 0, len(acct.entries))
	for _, e := range acct.entries {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}
