package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"snapcode/internal/domain"
)

// LedgerStorePG implements domain.LedgerStore on PostgreSQL. Linearization
// per account comes from a row lock on account_balances held for the whole
// transaction; the credit_ledger table itself is append-only.
type LedgerStorePG struct {
	pool *pgxpool.Pool
}

// NewLedgerStorePG creates a ledger store backed by PostgreSQL.
func NewLedgerStorePG(pool *pgxpool.Pool) *LedgerStorePG {
	return &LedgerStorePG{pool: pool}
}

type pgLedgerView struct {
	ctx       context.Context
	tx        pgx.Tx
	accountID string
	balance   int64
}

func (v *pgLedgerView) Balance() (int64, error) {
	return v.balance, nil
}

func (v *pgLedgerView) Settled(reservationID string) (bool, error) {
	var settled bool
	err := v.tx.QueryRow(v.ctx, `
SELECT EXISTS (
    SELECT 1 FROM credit_ledger
    WHERE reservation_id = $1 AND kind IN ('commit', 'refund')
);`, reservationID).Scan(&settled)
	return settled, err
}

func (v *pgLedgerView) Append(e *domain.CreditEntry) error {
	_, err := v.tx.Exec(v.ctx, `
INSERT INTO credit_ledger (id, account_id, amount, balance_after, kind, job_id, reservation_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
`, e.ID, e.AccountID, e.Amount, e.BalanceAfter, e.Kind, nullableString(e.JobID), nullableString(e.ReservationID), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	_, err = v.tx.Exec(v.ctx, `UPDATE account_balances SET balance = $2 WHERE account_id = $1;`, e.AccountID, e.BalanceAfter)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	v.balance = e.BalanceAfter
	return nil
}

// Tx runs fn holding an exclusive row lock on the account's balance row.
func (s *LedgerStorePG) Tx(ctx context.Context, accountID string, fn func(v domain.LedgerView) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("ledger tx begin: %w", err)
	}
	defer tx.Rollback(ctx)

	// Ensure the balance row exists before locking it.
	if _, err := tx.Exec(ctx, `
INSERT INTO account_balances (account_id, balance)
VALUES ($1, 0)
ON CONFLICT (account_id) DO NOTHING;`, accountID); err != nil {
		return fmt.Errorf("ensure balance row: %w", err)
	}

	var balance int64
	if err := tx.QueryRow(ctx,
		`SELECT balance FROM account_balances WHERE account_id = $1 FOR UPDATE;`,
		accountID).Scan(&balance); err != nil {
		return fmt.Errorf("lock balance row: %w", err)
	}

	view := &pgLedgerView{ctx: ctx, tx: tx, accountID: accountID, balance: balance}
	if err := fn(view); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Reservation finds a reserve entry by its reservation ID.
func (s *LedgerStorePG) Reservation(ctx context.Context, reservationID string) (*domain.CreditEntry, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, account_id, amount, balance_after, kind, job_id, reservation_id, created_at
FROM credit_ledger
WHERE reservation_id = $1 AND kind = 'reserve';`, reservationID)
	return scanEntry(row)
}

// UnsettledReservations lists reserves older than the cutoff with no
// settlement entry.
func (s *LedgerStorePG) UnsettledReservations(ctx context.Context, olderThan time.Time) ([]*domain.CreditEntry, error) {
	rows, err := s.pool.Query(ctx, `
SELECT r.id, r.account_id, r.amount, r.balance_after, r.kind, r.job_id, r.reservation_id, r.created_at
FROM credit_ledger r
WHERE r.kind = 'reserve' AND r.created_at < $1
  AND NOT EXISTS (
      SELECT 1 FROM credit_ledger s
      WHERE s.reservation_id = r.reservation_id AND s.kind IN ('commit', 'refund')
  );`, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []*domain.CreditEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Entries lists one account's ledger in creation order.
func (s *LedgerStorePG) Entries(ctx context.Context, accountID string) ([]*domain.CreditEntry, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, account_id, amount, balance_after, kind, job_id, reservation_id, created_at
FROM credit_ledger
WHERE account_id = $1
ORDER BY created_at ASC, id ASC;`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []*domain.CreditEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(row rowScanner) (*domain.CreditEntry, error) {
	var (
		e             domain.CreditEntry
		jobID         *string
		reservationID *string
	)
	err := row.Scan(&e.ID, &e.AccountID, &e.Amount, &e.BalanceAfter, &e.Kind, &jobID, &reservationID, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if jobID != nil {
		e.JobID = *jobID
	}
	if reservationID != nil {
		e.ReservationID = *reservationID
	}
	return &e, nil
}
