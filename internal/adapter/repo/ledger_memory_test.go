package repo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"snapcode/internal/domain"
)

func reserveEntry(id, account string, amount int64, at time.Time) *domain.CreditEntry {
	return &domain.CreditEntry{
		ID:            id,
		AccountID:     account,
		Amount:        -amount,
		Kind:          domain.EntryReserve,
		JobID:         "job-" + id,
		ReservationID: id,
		CreatedAt:     at,
	}
}

func TestTxSerializesPerAccount(t *testing.T) {
	ctx := context.Background()
	s := NewLedgerStoreMemory()

	// Many concurrent increments must all be visible; lost updates would
	// show up as a short final balance.
	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Tx(ctx, "acct", func(v domain.LedgerView) error {
				balance, err := v.Balance()
				if err != nil {
					return err
				}
				return v.Append(&domain.CreditEntry{
					ID:           time.Now().Format(time.RFC3339Nano),
					AccountID:    "acct",
					Amount:       1,
					BalanceAfter: balance + 1,
					Kind:         domain.EntryPurchase,
					CreatedAt:    time.Now(),
				})
			})
		}()
	}
	wg.Wait()

	var balance int64
	if err := s.Tx(ctx, "acct", func(v domain.LedgerView) error {
		b, err := v.Balance()
		balance = b
		return err
	}); err != nil {
		t.Fatalf("tx: %v", err)
	}
	if balance != workers {
		t.Fatalf("balance = %d, want %d", balance, workers)
	}
}

func TestTxPropagatesCallbackError(t *testing.T) {
	ctx := context.Background()
	s := NewLedgerStoreMemory()
	wantErr := errors.New("abort")
	if err := s.Tx(ctx, "acct", func(v domain.LedgerView) error { return wantErr }); !errors.Is(err, wantErr) {
		t.Fatalf("tx err = %v, want propagated abort", err)
	}
	entries, err := s.Entries(ctx, "acct")
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("aborted tx left %d entries", len(entries))
	}
}

func TestReservationLookup(t *testing.T) {
	ctx := context.Background()
	s := NewLedgerStoreMemory()
	at := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	err := s.Tx(ctx, "acct", func(v domain.LedgerView) error {
		return v.Append(reserveEntry("res-1", "acct", 2, at))
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	got, err := s.Reservation(ctx, "res-1")
	if err != nil {
		t.Fatalf("reservation: %v", err)
	}
	if got.Amount != -2 || got.AccountID != "acct" {
		t.Fatalf("unexpected reservation %+v", got)
	}
	if _, err := s.Reservation(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing reservation err = %v, want ErrNotFound", err)
	}
}

func TestUnsettledReservations(t *testing.T) {
	ctx := context.Background()
	s := NewLedgerStoreMemory()
	old := time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC)
	recent := old.Add(3 * time.Hour)

	err := s.Tx(ctx, "acct", func(v domain.LedgerView) error {
		if err := v.Append(reserveEntry("res-old", "acct", 1, old)); err != nil {
			return err
		}
		if err := v.Append(reserveEntry("res-settled", "acct", 1, old)); err != nil {
			return err
		}
		if err := v.Append(&domain.CreditEntry{
			ID: "settle-1", AccountID: "acct", Kind: domain.EntryCommit,
			ReservationID: "res-settled", CreatedAt: old.Add(time.Minute),
		}); err != nil {
			return err
		}
		return v.Append(reserveEntry("res-recent", "acct", 1, recent))
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	stale, err := s.UnsettledReservations(ctx, old.Add(time.Hour))
	if err != nil {
		t.Fatalf("unsettled: %v", err)
	}
	if len(stale) != 1 || stale[0].ReservationID != "res-old" {
		t.Fatalf("stale = %+v, want only res-old", stale)
	}
}
