package domain

import "time"

// EntryKind enumerates credit ledger entry types.
type EntryKind string

const (
	EntryReserve    EntryKind = "reserve"
	EntryCommit     EntryKind = "commit"
	EntryRefund     EntryKind = "refund"
	EntryPurchase   EntryKind = "purchase"
	EntryAdjustment EntryKind = "adjustment"
)

// CreditEntry is one append-only row of an account's credit ledger.
//
// Amount is signed: a reserve deducts immediately, a refund restores, a
// commit settles the hold with a zero amount. Summing Amount over an
// account's entries in creation order reproduces the current balance, and
// BalanceAfter on the latest entry equals it.
type CreditEntry struct {
	ID            string
	AccountID     string
	Amount        int64
	BalanceAfter  int64
	Kind          EntryKind
	JobID         string
	ReservationID string
	CreatedAt     time.Time
}
