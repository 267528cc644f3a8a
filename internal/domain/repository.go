package domain

import (
	"context"
	"time"
)

// JobStore is the durable record of conversion jobs and the queue the
// workers drain. Claim hands out at most one lease per job; Requeue and
// Finish reject writers whose generation no longer matches the stored row.
type JobStore interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)

	// Claim leases the oldest queued job whose NextEligibleAt has passed,
	// marking it processing. Returns ErrNoJobReady when the queue is empty.
	Claim(ctx context.Context, now time.Time, lease time.Duration) (*Job, error)

	// Requeue returns a leased job to the queue for a later retry.
	// Returns ErrStaleOwner if the caller's generation is outdated.
	Requeue(ctx context.Context, job *Job) error

	// Finish writes a terminal state. Returns ErrStaleOwner if the caller's
	// generation is outdated (the job was cancelled or its lease reaped).
	Finish(ctx context.Context, job *Job) error

	// SetStage records the in-flight pipeline stage for status polling.
	SetStage(ctx context.Context, id, stage string) error

	// Cancel transitions a non-terminal job to failed/cancelled and bumps its
	// generation so any in-flight worker result is discarded on return.
	// Returns ErrAlreadyTerminal otherwise.
	Cancel(ctx context.Context, id string, now time.Time) (*Job, error)

	// ReapExpiredLeases requeues processing jobs whose lease lapsed, bumping
	// their generation. Returns the number of jobs requeued.
	ReapExpiredLeases(ctx context.Context, now time.Time) (int, error)

	// ListExpired returns terminal jobs whose artifacts are reclaimable.
	ListExpired(ctx context.Context, now time.Time) ([]*Job, error)

	Delete(ctx context.Context, id string) error
}

// LedgerView is the per-account window a ledger transaction operates in.
// Implementations guarantee exclusive access to the account for the duration
// of the enclosing Tx call.
type LedgerView interface {
	Balance() (int64, error)
	// Settled reports whether a commit or refund already references the
	// reservation.
	Settled(reservationID string) (bool, error)
	Append(e *CreditEntry) error
}

// LedgerStore persists the append-only credit ledger. All balance mutations
// for one account are linearized through Tx; accounts do not block each other.
type LedgerStore interface {
	Tx(ctx context.Context, accountID string, fn func(v LedgerView) error) error
	Reservation(ctx context.Context, reservationID string) (*CreditEntry, error)
	// UnsettledReservations lists reserve entries older than the cutoff with
	// no commit or refund yet, for the reconciliation sweep.
	UnsettledReservations(ctx context.Context, olderThan time.Time) ([]*CreditEntry, error)
	Entries(ctx context.Context, accountID string) ([]*CreditEntry, error)
}

// ImageStore abstracts the externally owned screenshot storage. Bytes are
// opaque to the core beyond the intake size/format preflight.
type ImageStore interface {
	Fetch(ctx context.Context, ref string) (data []byte, mime string, err error)
	Store(ctx context.Context, data []byte, mime string) (ref string, err error)
}

// Notifier is the fire-and-forget terminal-state hook. Implementations must
// never influence job state; errors are swallowed by callers.
type Notifier interface {
	OnJobTerminal(jobID string, status JobStatus)
}
