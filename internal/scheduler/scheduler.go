// Package scheduler drains the job queue with a bounded worker pool and runs
// the background janitor. Workers claim leased jobs, execute the conversion
// pipeline and classify the outcome: success commits the credit hold,
// exhausted or permanent failures refund it, retryable failures go back to
// the queue with capped exponential backoff.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"snapcode/internal/convert"
	"snapcode/internal/domain"
	"snapcode/internal/ledger"
	"snapcode/internal/metrics"
	"snapcode/internal/storage"
)

// Pipeline executes one conversion attempt. Satisfied by convert.Service.
type Pipeline interface {
	Process(ctx context.Context, job *domain.Job) error
}

// Options tunes the worker pool and janitor.
type Options struct {
	Workers          int
	Lease            time.Duration
	JobTimeout       time.Duration
	PollInterval     time.Duration
	BackoffBase      time.Duration
	BackoffCap       time.Duration
	ReservationGrace time.Duration
	JanitorInterval  time.Duration
}

func (o *Options) defaults() {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.Lease <= 0 {
		o.Lease = 5 * time.Minute
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = 3 * time.Minute
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 2 * time.Second
	}
	if o.BackoffCap <= 0 {
		o.BackoffCap = time.Minute
	}
	if o.ReservationGrace <= 0 {
		o.ReservationGrace = 30 * time.Minute
	}
	if o.JanitorInterval <= 0 {
		o.JanitorInterval = time.Minute
	}
}

// Scheduler owns the worker pool and the janitor.
type Scheduler struct {
	store    domain.JobStore
	pipeline Pipeline
	guard    *ledger.Guard
	files    *storage.FileStore
	notify   domain.Notifier
	log      zerolog.Logger
	opts     Options
	now      func() time.Time
}

// New wires a Scheduler.
func New(
	store domain.JobStore,
	pipeline Pipeline,
	guard *ledger.Guard,
	files *storage.FileStore,
	notify domain.Notifier,
	opts Options,
	log zerolog.Logger,
) *Scheduler {
	opts.defaults()
	return &Scheduler{
		store:    store,
		pipeline: pipeline,
		guard:    guard,
		files:    files,
		notify:   notify,
		log:      log,
		opts:     opts,
		now:      time.Now,
	}
}

// WithClock overrides the clock, for tests.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Run blocks until ctx is cancelled, running the worker pool and janitor.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info().Int("workers", s.opts.Workers).Msg("scheduler: starting")
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < s.opts.Workers; i++ {
		id := i
		g.Go(func() error { return s.workerLoop(ctx, id) })
	}
	g.Go(func() error { return s.janitorLoop(ctx) })
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Scheduler) workerLoop(ctx context.Context, id int) error {
	log := s.log.With().Int("worker", id).Logger()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		job, err := s.store.Claim(ctx, s.now().UTC(), s.opts.Lease)
		if err != nil {
			if errors.Is(err, domain.ErrNoJobReady) {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(s.opts.PollInterval):
				}
				continue
			}
			if errors.Is(err, context.Canceled) {
				return err
			}
			log.Error().Err(err).Msg("scheduler: claim failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.opts.PollInterval):
			}
			continue
		}
		s.runJob(ctx, log, job)
	}
}

// RunOnce claims and processes at most one job. It exists for tests and for
// the API's in-process development mode.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	job, err := s.store.Claim(ctx, s.now().UTC(), s.opts.Lease)
	if err != nil {
		return err
	}
	s.runJob(ctx, s.log, job)
	return nil
}

func (s *Scheduler) runJob(ctx context.Context, log zerolog.Logger, job *domain.Job) {
	job.AttemptCount++
	log.Info().
		Str("job_id", job.ID).
		Int("attempt", job.AttemptCount).
		Int("max_attempts", job.MaxAttempts).
		Msg("scheduler: processing job")

	jctx, cancel := context.WithTimeout(ctx, s.opts.JobTimeout)
	start := s.now()
	err := s.pipeline.Process(jctx, job)
	cancel()
	job.ProcessingTime += s.now().Sub(start)
	now := s.now().UTC()

	if err == nil {
		job.Succeed(job.Output, now)
		s.finish(ctx, log, job)
		return
	}

	var perr *convert.PipelineError
	if !errors.As(err, &perr) {
		perr = &convert.PipelineError{Kind: domain.FailureSystem, Retryable: true, Err: err}
	}

	switch {
	case perr.Kind == domain.FailureSystem:
		// Infrastructure fault, not the job's doing. Retry without charging
		// an attempt.
		job.AttemptCount--
		s.requeue(ctx, log, job, s.opts.BackoffBase)
		log.Warn().Err(perr.Err).Str("job_id", job.ID).Msg("scheduler: system fault, requeued")
	case perr.Retryable && job.AttemptCount < job.MaxAttempts:
		delay := Delay(job.AttemptCount, s.opts.BackoffBase, s.opts.BackoffCap)
		if perr.RetryAfter > delay {
			delay = perr.RetryAfter
		}
		s.requeue(ctx, log, job, delay)
		metrics.JobRetries.Inc()
		log.Warn().Err(perr.Err).
			Str("job_id", job.ID).
			Dur("retry_in", delay).
			Msg("scheduler: attempt failed, retrying")
	default:
		job.Fail(perr.Kind, perr.Err.Error(), now)
		s.finish(ctx, log, job)
	}
}

// finish writes the terminal state and settles the credit hold. A stale-owner
// rejection means the job was cancelled or its lease reaped while we worked;
// the result is discarded and the ledger untouched, since whoever revoked
// ownership settles the hold.
func (s *Scheduler) finish(ctx context.Context, log zerolog.Logger, job *domain.Job) {
	if err := s.store.Finish(ctx, job); err != nil {
		if errors.Is(err, domain.ErrStaleOwner) {
			log.Info().Str("job_id", job.ID).Msg("scheduler: ownership revoked, result discarded")
			return
		}
		log.Error().Err(err).Str("job_id", job.ID).Msg("scheduler: terminal write failed")
		return
	}

	if job.Status == domain.JobStatusSucceeded {
		if job.CreditTxnID != "" {
			if err := s.guard.Commit(ctx, job.CreditTxnID); err != nil {
				log.Error().Err(err).Str("job_id", job.ID).Msg("scheduler: credit commit failed")
			}
		}
		metrics.JobsTerminal.WithLabelValues(string(job.Status), "").Inc()
		metrics.JobDuration.Observe(job.ProcessingTime.Seconds())
		log.Info().
			Str("job_id", job.ID).
			Str("provider", job.ProviderUsed).
			Dur("processing", job.ProcessingTime).
			Msg("scheduler: job succeeded")
	} else {
		if job.CreditTxnID != "" {
			if err := s.guard.Refund(ctx, job.CreditTxnID); err != nil {
				log.Error().Err(err).Str("job_id", job.ID).Msg("scheduler: credit refund failed")
			}
		}
		metrics.JobsTerminal.WithLabelValues(string(job.Status), string(job.FailureKind)).Inc()
		log.Warn().
			Str("job_id", job.ID).
			Str("failure_kind", string(job.FailureKind)).
			Str("detail", job.FailureDetail).
			Msg("scheduler: job failed")
	}

	if s.notify != nil {
		s.notify.OnJobTerminal(job.ID, job.Status)
	}
}

func (s *Scheduler) requeue(ctx context.Context, log zerolog.Logger, job *domain.Job, delay time.Duration) {
	now := s.now().UTC()
	job.NextEligibleAt = now.Add(delay)
	job.UpdatedAt = now
	if err := s.store.Requeue(ctx, job); err != nil {
		if errors.Is(err, domain.ErrStaleOwner) {
			log.Info().Str("job_id", job.ID).Msg("scheduler: ownership revoked during retry, discarded")
			return
		}
		log.Error().Err(err).Str("job_id", job.ID).Msg("scheduler: requeue failed")
	}
}

type queueDepthCounter interface {
	QueueDepth(ctx context.Context) (int, error)
}

func (s *Scheduler) janitorLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.JanitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one janitor pass: lease reaping, ledger reconciliation, artifact
// expiry and queue-depth sampling.
func (s *Scheduler) Sweep(ctx context.Context) {
	now := s.now().UTC()

	if reaped, err := s.store.ReapExpiredLeases(ctx, now); err != nil {
		s.log.Error().Err(err).Msg("janitor: lease reap failed")
	} else if reaped > 0 {
		s.log.Warn().Int("reaped", reaped).Msg("janitor: requeued jobs with expired leases")
	}

	if refunded, err := s.guard.Reconcile(ctx, s.opts.ReservationGrace); err != nil {
		s.log.Error().Err(err).Msg("janitor: ledger reconcile failed")
	} else if refunded > 0 {
		s.log.Warn().Int("refunded", refunded).Msg("janitor: refunded stale reservations")
	}

	s.sweepExpiredArtifacts(ctx, now)

	if counter, ok := s.store.(queueDepthCounter); ok {
		if depth, err := counter.QueueDepth(ctx); err == nil {
			metrics.QueueDepth.Set(float64(depth))
		}
	}
}

func (s *Scheduler) sweepExpiredArtifacts(ctx context.Context, now time.Time) {
	expired, err := s.store.ListExpired(ctx, now)
	if err != nil {
		s.log.Error().Err(err).Msg("janitor: list expired jobs failed")
		return
	}
	for _, job := range expired {
		for _, key := range []string{job.PackageKey, job.PreviewKey, job.ImageRef} {
			if key == "" {
				continue
			}
			if err := s.files.Delete(ctx, key); err != nil {
				s.log.Error().Err(err).Str("job_id", job.ID).Str("key", key).Msg("janitor: artifact delete failed")
			}
		}
		if err := s.store.Delete(ctx, job.ID); err != nil {
			s.log.Error().Err(err).Str("job_id", job.ID).Msg("janitor: job delete failed")
			continue
		}
		s.log.Debug().Str("job_id", job.ID).Msg("janitor: expired job reclaimed")
	}
}
