package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"snapcode/internal/domain"
)

// JobStorePG implements domain.JobStore on PostgreSQL. Claiming relies on
// FOR UPDATE SKIP LOCKED so concurrent workers never lease the same job.
type JobStorePG struct {
	pool *pgxpool.Pool
}

// NewJobStorePG creates a job store backed by PostgreSQL.
func NewJobStorePG(pool *pgxpool.Pool) *JobStorePG {
	return &JobStorePG{pool: pool}
}

const jobColumns = `
id, account_id, status, framework, style_system, image_ref,
attempt_count, max_attempts, generation,
provider_used, tokens_consumed, cost_estimate, processing_ms,
stage, output, failure_kind, failure_detail, warning,
package_key, preview_key, credit_txn_id,
next_eligible_at, lease_expires_at, created_at, updated_at, expires_at`

// Create inserts a new job record.
func (r *JobStorePG) Create(ctx context.Context, job *domain.Job) error {
	query := `
INSERT INTO jobs (` + jobColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26);
`
	output, err := marshalOutput(job.Output)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, query,
		job.ID, job.AccountID, job.Status, job.Framework, job.StyleSystem, job.ImageRef,
		job.AttemptCount, job.MaxAttempts, job.Generation,
		job.ProviderUsed, job.TokensConsumed, job.CostEstimate, job.ProcessingTime.Milliseconds(),
		job.Stage, output, nullableString(string(job.FailureKind)), nullableString(job.FailureDetail), nullableString(job.Warning),
		nullableString(job.PackageKey), nullableString(job.PreviewKey), nullableString(job.CreditTxnID),
		job.NextEligibleAt, nullableTime(job.LeaseExpiresAt), job.CreatedAt, job.UpdatedAt, job.ExpiresAt,
	)
	return err
}

// Get fetches a job by its identifier.
func (r *JobStorePG) Get(ctx context.Context, id string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1;`
	return scanJob(r.pool.QueryRow(ctx, query, id))
}

// Claim leases the oldest eligible queued job.
func (r *JobStorePG) Claim(ctx context.Context, now time.Time, lease time.Duration) (*domain.Job, error) {
	query := `
WITH next_job AS (
    SELECT id
    FROM jobs
    WHERE status = 'queued' AND next_eligible_at <= $1
    ORDER BY created_at ASC
    FOR UPDATE SKIP LOCKED
    LIMIT 1
),
claimed AS (
    UPDATE jobs
    SET status = 'processing', stage = 'generating', lease_expires_at = $2, updated_at = $1
    WHERE id IN (SELECT id FROM next_job)
    RETURNING ` + jobColumns + `
)
SELECT * FROM claimed;
`
	job, err := scanJob(r.pool.QueryRow(ctx, query, now, now.Add(lease)))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNoJobReady
	}
	return job, err
}

// Requeue returns a leased job to the queue for a later retry. The write is
// conditional on the caller's generation still matching.
func (r *JobStorePG) Requeue(ctx context.Context, job *domain.Job) error {
	query := `
UPDATE jobs
SET status = 'queued', stage = 'queued',
    attempt_count = $3, next_eligible_at = $4, lease_expires_at = NULL,
    provider_used = $5, updated_at = $6
WHERE id = $1 AND generation = $2 AND status = 'processing';
`
	tag, err := r.pool.Exec(ctx, query,
		job.ID, job.Generation, job.AttemptCount, job.NextEligibleAt, job.ProviderUsed, job.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleOwner
	}
	return nil
}

// qFinishJob writes the full terminal snapshot. attempt_count is included so
// the stored row reflects the attempt that actually terminated the job, not
// the count left over from the last requeue.
const qFinishJob = `
UPDATE jobs
SET status = $3, stage = $4, output = $5,
    failure_kind = $6, failure_detail = $7, warning = $8,
    provider_used = $9, tokens_consumed = $10, cost_estimate = $11, processing_ms = $12,
    package_key = $13, preview_key = $14, attempt_count = $15,
    lease_expires_at = NULL, updated_at = $16
WHERE id = $1 AND generation = $2 AND status NOT IN ('succeeded', 'failed');
`

// Finish writes a terminal state, conditional on ownership.
func (r *JobStorePG) Finish(ctx context.Context, job *domain.Job) error {
	output, err := marshalOutput(job.Output)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, qFinishJob,
		job.ID, job.Generation, job.Status, job.Stage, output,
		nullableString(string(job.FailureKind)), nullableString(job.FailureDetail), nullableString(job.Warning),
		job.ProviderUsed, job.TokensConsumed, job.CostEstimate, job.ProcessingTime.Milliseconds(),
		nullableString(job.PackageKey), nullableString(job.PreviewKey), job.AttemptCount, job.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleOwner
	}
	return nil
}

// SetStage records the in-flight pipeline stage for status polling.
func (r *JobStorePG) SetStage(ctx context.Context, id, stage string) error {
	query := `UPDATE jobs SET stage = $2 WHERE id = $1 AND status NOT IN ('succeeded', 'failed');`
	_, err := r.pool.Exec(ctx, query, id, stage)
	return err
}

// Cancel fails a non-terminal job and bumps its generation so a stale worker
// cannot land its result.
func (r *JobStorePG) Cancel(ctx context.Context, id string, now time.Time) (*domain.Job, error) {
	query := `
UPDATE jobs
SET status = 'failed', stage = 'done', generation = generation + 1,
    failure_kind = 'cancelled', failure_detail = 'cancelled by caller',
    output = NULL, lease_expires_at = NULL, updated_at = $2
WHERE id = $1 AND status NOT IN ('succeeded', 'failed')
RETURNING ` + jobColumns + `;
`
	job, err := scanJob(r.pool.QueryRow(ctx, query, id, now))
	if errors.Is(err, domain.ErrNotFound) {
		// Distinguish a missing job from one already settled.
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, domain.ErrAlreadyTerminal
	}
	return job, err
}

// ReapExpiredLeases requeues processing jobs whose lease lapsed.
func (r *JobStorePG) ReapExpiredLeases(ctx context.Context, now time.Time) (int, error) {
	query := `
UPDATE jobs
SET status = 'queued', stage = 'queued', generation = generation + 1,
    lease_expires_at = NULL, updated_at = $1
WHERE status = 'processing' AND lease_expires_at < $1;
`
	tag, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// ListExpired returns terminal jobs past their artifact expiry.
func (r *JobStorePG) ListExpired(ctx context.Context, now time.Time) ([]*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE status IN ('succeeded', 'failed') AND expires_at < $1;`
	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Delete removes a job record.
func (r *JobStorePG) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1;`, id)
	return err
}

// QueueDepth counts queued jobs, for the metrics sampler.
func (r *JobStorePG) QueueDepth(ctx context.Context) (int, error) {
	var depth int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM jobs WHERE status = 'queued';`).Scan(&depth)
	return depth, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job          domain.Job
		output       []byte
		processingMS int64
		failureKind  *string
		failDetail   *string
		warning      *string
		packageKey   *string
		previewKey   *string
		creditTxnID  *string
		leaseExpires *time.Time
	)
	err := row.Scan(
		&job.ID, &job.AccountID, &job.Status, &job.Framework, &job.StyleSystem, &job.ImageRef,
		&job.AttemptCount, &job.MaxAttempts, &job.Generation,
		&job.ProviderUsed, &job.TokensConsumed, &job.CostEstimate, &processingMS,
		&job.Stage, &output, &failureKind, &failDetail, &warning,
		&packageKey, &previewKey, &creditTxnID,
		&job.NextEligibleAt, &leaseExpires, &job.CreatedAt, &job.UpdatedAt, &job.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	job.ProcessingTime = time.Duration(processingMS) * time.Millisecond
	if len(output) > 0 {
		var bundle domain.CodeBundle
		if err := json.Unmarshal(output, &bundle); err != nil {
			return nil, fmt.Errorf("decode job output: %w", err)
		}
		job.Output = &bundle
	}
	if failureKind != nil {
		job.FailureKind = domain.FailureKind(*failureKind)
	}
	if failDetail != nil {
		job.FailureDetail = *failDetail
	}
	if warning != nil {
		job.Warning = *warning
	}
	if packageKey != nil {
		job.PackageKey = *packageKey
	}
	if previewKey != nil {
		job.PreviewKey = *previewKey
	}
	if creditTxnID != nil {
		job.CreditTxnID = *creditTxnID
	}
	if leaseExpires != nil {
		job.LeaseExpiresAt = *leaseExpires
	}
	return &job, nil
}

func marshalOutput(bundle *domain.CodeBundle) ([]byte, error) {
	if bundle == nil {
		return nil, nil
	}
	data, err := json.Marshal(bundle)
	if err != nil {
		return nil, fmt.Errorf("encode job output: %w", err)
	}
	return data, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
