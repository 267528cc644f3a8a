// Package ledger guards the per-account credit ledger. Every balance
// mutation flows through Guard, which linearizes operations per account via
// the store's Tx and keeps the ledger append-only: reserves deduct, refunds
// restore, commits settle a hold with a zero amount.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"snapcode/internal/domain"
	"snapcode/internal/metrics"
)

// Guard serializes credit movements for each account.
type Guard struct {
	store domain.LedgerStore
	log   zerolog.Logger
	now   func() time.Time
}

// NewGuard constructs a Guard over the given store.
func NewGuard(store domain.LedgerStore, log zerolog.Logger) *Guard {
	return &Guard{store: store, log: log, now: time.Now}
}

// WithClock overrides the clock, for tests.
func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.now = now
	return g
}

// Reserve places a provisional hold of amount credits for jobID. It fails
// with domain.ErrInsufficientBalance without writing anything when the
// account cannot cover the hold. Two concurrent reserves against a balance
// that covers only one of them cannot both succeed.
func (g *Guard) Reserve(ctx context.Context, accountID string, amount int64, jobID string) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("ledger: reserve amount must be positive, got %d", amount)
	}
	reservationID := uuid.NewString()
	err := g.store.Tx(ctx, accountID, func(v domain.LedgerView) error {
		balance, err := v.Balance()
		if err != nil {
			return err
		}
		if balance < amount {
			return domain.ErrInsufficientBalance
		}
		return v.Append(&domain.CreditEntry{
			ID:            reservationID,
			AccountID:     accountID,
			Amount:        -amount,
			BalanceAfter:  balance - amount,
			Kind:          domain.EntryReserve,
			JobID:         jobID,
			ReservationID: reservationID,
			CreatedAt:     g.now().UTC(),
		})
	})
	if err != nil {
		return "", err
	}
	metrics.CreditsMoved.WithLabelValues(string(domain.EntryReserve)).Inc()
	g.log.Debug().Str("account_id", accountID).Str("reservation_id", reservationID).Str("job_id", jobID).Msg("ledger: reserved")
	return reservationID, nil
}

// Commit settles a reservation, consuming the held credits. Committing an
// already-settled reservation is a no-op that logs a consistency warning.
func (g *Guard) Commit(ctx context.Context, reservationID string) error {
	return g.settle(ctx, reservationID, domain.EntryCommit)
}

// Refund settles a reservation by restoring the held credits. Refunding an
// already-settled reservation is a no-op that logs a consistency warning.
func (g *Guard) Refund(ctx context.Context, reservationID string) error {
	return g.settle(ctx, reservationID, domain.EntryRefund)
}

func (g *Guard) settle(ctx context.Context, reservationID string, kind domain.EntryKind) error {
	reserve, err := g.store.Reservation(ctx, reservationID)
	if err != nil {
		return fmt.Errorf("ledger: load reservation %s: %w", reservationID, err)
	}
	err = g.store.Tx(ctx, reserve.AccountID, func(v domain.LedgerView) error {
		settled, err := v.Settled(reservationID)
		if err != nil {
			return err
		}
		if settled {
			return domain.ErrAlreadySettled
		}
		balance, err := v.Balance()
		if err != nil {
			return err
		}
		amount := int64(0)
		if kind == domain.EntryRefund {
			amount = -reserve.Amount
		}
		return v.Append(&domain.CreditEntry{
			ID:            uuid.NewString(),
			AccountID:     reserve.AccountID,
			Amount:        amount,
			BalanceAfter:  balance + amount,
			Kind:          kind,
			JobID:         reserve.JobID,
			ReservationID: reservationID,
			CreatedAt:     g.now().UTC(),
		})
	})
	if err == domain.ErrAlreadySettled {
		g.log.Warn().
			Str("reservation_id", reservationID).
			Str("kind", string(kind)).
			Msg("ledger: settle on already-settled reservation, ignoring")
		return nil
	}
	if err != nil {
		return err
	}
	metrics.CreditsMoved.WithLabelValues(string(kind)).Inc()
	return nil
}

// Credit appends a purchase or adjustment entry. It is the entry point the
// external billing layer uses; holds are never created here.
func (g *Guard) Credit(ctx context.Context, accountID string, amount int64, kind domain.EntryKind) error {
	if kind != domain.EntryPurchase && kind != domain.EntryAdjustment {
		return fmt.Errorf("ledger: credit kind %q not allowed", kind)
	}
	if amount == 0 {
		return fmt.Errorf("ledger: credit amount must be non-zero")
	}
	err := g.store.Tx(ctx, accountID, func(v domain.LedgerView) error {
		balance, err := v.Balance()
		if err != nil {
			return err
		}
		if balance+amount < 0 {
			return domain.ErrInsufficientBalance
		}
		return v.Append(&domain.CreditEntry{
			ID:           uuid.NewString(),
			AccountID:    accountID,
			Amount:       amount,
			BalanceAfter: balance + amount,
			Kind:         kind,
			CreatedAt:    g.now().UTC(),
		})
	})
	if err != nil {
		return err
	}
	metrics.CreditsMoved.WithLabelValues(string(kind)).Inc()
	return nil
}

// Balance reads the current balance for an account.
func (g *Guard) Balance(ctx context.Context, accountID string) (int64, error) {
	var balance int64
	err := g.store.Tx(ctx, accountID, func(v domain.LedgerView) error {
		b, err := v.Balance()
		balance = b
		return err
	})
	return balance, err
}

// Entries lists an account's ledger in creation order.
func (g *Guard) Entries(ctx context.Context, accountID string) ([]*domain.CreditEntry, error) {
	return g.store.Entries(ctx, accountID)
}

// Reconcile refunds reservations older than grace that were neither
// committed nor refunded, covering crashed workers. Returns the number of
// reservations refunded.
func (g *Guard) Reconcile(ctx context.Context, grace time.Duration) (int, error) {
	stale, err := g.store.UnsettledReservations(ctx, g.now().Add(-grace))
	if err != nil {
		return 0, fmt.Errorf("ledger: list unsettled reservations: %w", err)
	}
	refunded := 0
	for _, reserve := range stale {
		if err := g.Refund(ctx, reserve.ReservationID); err != nil {
			g.log.Error().Err(err).Str("reservation_id", reserve.ReservationID).Msg("ledger: reconcile refund failed")
			continue
		}
		g.log.Warn().
			Str("reservation_id", reserve.ReservationID).
			Str("job_id", reserve.JobID).
			Msg("ledger: refunded stale reservation")
		refunded++
	}
	return refunded, nil
}
