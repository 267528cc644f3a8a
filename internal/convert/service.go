// Package convert implements the screenshot-to-code conversion service: job
// intake with a credit hold, the processing pipeline workers execute, and
// retrieval of results once a job settles.
package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"snapcode/internal/domain"
	"snapcode/internal/ledger"
	"snapcode/internal/metrics"
	"snapcode/internal/provider"
	"snapcode/internal/storage"
)

// DefaultCreditCost is the hold placed per conversion.
const DefaultCreditCost = 1

// MaxImageBytes bounds accepted screenshot uploads.
const MaxImageBytes = 10 * 1024 * 1024

var allowedImageMIME = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/jpg":  true,
	"image/webp": true,
}

// Converter produces raw model output for a conversion request. Satisfied by
// provider.Router.
type Converter interface {
	Convert(ctx context.Context, req provider.Request) (*provider.RawResponse, error)
}

// ServiceOptions tunes intake and artifact behavior.
type ServiceOptions struct {
	CreditCost  int64
	MaxAttempts int
	ArtifactTTL time.Duration
}

// Service owns the conversion lifecycle outside of worker scheduling.
type Service struct {
	jobs   domain.JobStore
	guard  *ledger.Guard
	images domain.ImageStore
	files  *storage.FileStore
	router Converter
	notify domain.Notifier
	log    zerolog.Logger
	opts   ServiceOptions
	now    func() time.Time
}

// NewService wires the conversion service.
func NewService(
	jobs domain.JobStore,
	guard *ledger.Guard,
	images domain.ImageStore,
	files *storage.FileStore,
	router Converter,
	notify domain.Notifier,
	opts ServiceOptions,
	log zerolog.Logger,
) *Service {
	if opts.CreditCost <= 0 {
		opts.CreditCost = DefaultCreditCost
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.ArtifactTTL <= 0 {
		opts.ArtifactTTL = 72 * time.Hour
	}
	return &Service{
		jobs:   jobs,
		guard:  guard,
		images: images,
		files:  files,
		router: router,
		notify: notify,
		log:    log,
		opts:   opts,
		now:    time.Now,
	}
}

// WithClock overrides the clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Submit validates the upload, places a credit hold and enqueues a job. The
// hold and the job creation are ordered so a crash between them leaves a
// reservation the reconciliation sweep refunds; credits are never minted.
func (s *Service) Submit(ctx context.Context, accountID string, image []byte, mime string, opts domain.Options) (*domain.Job, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: account id is required", domain.ErrInvalidOptions)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: empty image", domain.ErrInvalidImage)
	}
	if len(image) > MaxImageBytes {
		return nil, fmt.Errorf("%w: image exceeds %d bytes", domain.ErrInvalidImage, MaxImageBytes)
	}
	if !allowedImageMIME[mime] {
		return nil, fmt.Errorf("%w: unsupported type %q", domain.ErrInvalidImage, mime)
	}

	// The hold is placed before the image is written so a rejected
	// submission leaves nothing behind in storage.
	jobID := uuid.NewString()
	reservationID, err := s.guard.Reserve(ctx, accountID, s.opts.CreditCost, jobID)
	if err != nil {
		return nil, err
	}

	ref, err := s.images.Store(ctx, image, mime)
	if err != nil {
		if refundErr := s.guard.Refund(ctx, reservationID); refundErr != nil {
			s.log.Error().Err(refundErr).Str("reservation_id", reservationID).Msg("convert: refund after failed image store")
		}
		return nil, fmt.Errorf("store image: %w", err)
	}

	now := s.now().UTC()
	job := &domain.Job{
		ID:             jobID,
		AccountID:      accountID,
		Status:         domain.JobStatusQueued,
		Framework:      opts.Framework,
		StyleSystem:    opts.StyleSystem,
		ImageRef:       ref,
		MaxAttempts:    s.opts.MaxAttempts,
		Stage:          domain.StageQueued,
		CreditTxnID:    reservationID,
		NextEligibleAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(s.opts.ArtifactTTL),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		if refundErr := s.guard.Refund(ctx, reservationID); refundErr != nil {
			s.log.Error().Err(refundErr).Str("reservation_id", reservationID).Msg("convert: refund after failed enqueue")
		}
		if delErr := s.files.Delete(ctx, ref); delErr != nil {
			s.log.Error().Err(delErr).Str("image_ref", ref).Msg("convert: delete upload after failed enqueue")
		}
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	s.log.Info().
		Str("job_id", jobID).
		Str("account_id", accountID).
		Str("framework", string(opts.Framework)).
		Msg("convert: job accepted")
	return job, nil
}

// StatusView is the externally visible shape of a job.
type StatusView struct {
	ID             string             `json:"id"`
	Status         domain.JobStatus   `json:"status"`
	Stage          string             `json:"progress_stage"`
	Framework      domain.Framework   `json:"framework"`
	StyleSystem    domain.StyleSystem `json:"style_system"`
	AttemptCount   int                `json:"attempt_count"`
	ProviderUsed   string             `json:"provider_used,omitempty"`
	TokensConsumed int                `json:"tokens_consumed,omitempty"`
	CostEstimate   float64            `json:"cost_estimate,omitempty"`
	ProcessingMS   int64              `json:"processing_ms,omitempty"`
	Output         *domain.CodeBundle `json:"output,omitempty"`
	FailureKind    domain.FailureKind `json:"failure_kind,omitempty"`
	FailureDetail  string             `json:"failure_detail,omitempty"`
	Warning        string             `json:"warning,omitempty"`
	PackageReady   bool               `json:"package_ready"`
	PreviewReady   bool               `json:"preview_ready"`
	CreatedAt      time.Time          `json:"created_at"`
	ExpiresAt      time.Time          `json:"expires_at"`
}

// Status returns the current view of a job.
func (s *Service) Status(ctx context.Context, jobID string) (*StatusView, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &StatusView{
		ID:             job.ID,
		Status:         job.Status,
		Stage:          job.Stage,
		Framework:      job.Framework,
		StyleSystem:    job.StyleSystem,
		AttemptCount:   job.AttemptCount,
		ProviderUsed:   job.ProviderUsed,
		TokensConsumed: job.TokensConsumed,
		CostEstimate:   job.CostEstimate,
		ProcessingMS:   job.ProcessingTime.Milliseconds(),
		Output:         job.Output,
		FailureKind:    job.FailureKind,
		FailureDetail:  job.FailureDetail,
		Warning:        job.Warning,
		PackageReady:   job.Status == domain.JobStatusSucceeded && job.PackageKey != "",
		PreviewReady:   job.Status == domain.JobStatusSucceeded && job.PreviewKey != "",
		CreatedAt:      job.CreatedAt,
		ExpiresAt:      job.ExpiresAt,
	}, nil
}

// Cancel aborts a queued or processing job and refunds its hold. The store
// bumps the job's generation, so a worker mid-flight on it cannot land a
// result afterwards. Cancelling a terminal job returns ErrAlreadyTerminal.
func (s *Service) Cancel(ctx context.Context, jobID string) error {
	job, err := s.jobs.Cancel(ctx, jobID, s.now().UTC())
	if err != nil {
		return err
	}
	if job.CreditTxnID != "" {
		if err := s.guard.Refund(ctx, job.CreditTxnID); err != nil {
			s.log.Error().Err(err).Str("job_id", jobID).Msg("convert: refund on cancel failed")
		}
	}
	metrics.JobsTerminal.WithLabelValues(string(domain.JobStatusFailed), string(domain.FailureCancelled)).Inc()
	if s.notify != nil {
		s.notify.OnJobTerminal(job.ID, job.Status)
	}
	s.log.Info().Str("job_id", jobID).Msg("convert: job cancelled")
	return nil
}

// Package returns the downloadable archive for a succeeded job along with a
// suggested filename.
func (s *Service) Package(ctx context.Context, jobID string) ([]byte, string, error) {
	job, err := s.artifactJob(ctx, jobID)
	if err != nil {
		return nil, "", err
	}
	if job.PackageKey == "" {
		return nil, "", domain.ErrNotReady
	}
	data, err := s.files.Read(ctx, job.PackageKey)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", domain.ErrExpired
		}
		return nil, "", fmt.Errorf("read package: %w", err)
	}
	return data, fmt.Sprintf("snapcode-%s-%s.zip", job.Framework, job.ID[:8]), nil
}

// Preview returns the sandboxed preview document for a succeeded job.
func (s *Service) Preview(ctx context.Context, jobID string) (string, error) {
	job, err := s.artifactJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job.PreviewKey == "" {
		if job.Warning != "" {
			return "", fmt.Errorf("%w: %s", domain.ErrNotReady, job.Warning)
		}
		return "", domain.ErrNotReady
	}
	data, err := s.files.Read(ctx, job.PreviewKey)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", domain.ErrExpired
		}
		return "", fmt.Errorf("read preview: %w", err)
	}
	return string(data), nil
}

func (s *Service) artifactJob(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobStatusSucceeded {
		return nil, domain.ErrNotReady
	}
	if !job.ExpiresAt.IsZero() && s.now().After(job.ExpiresAt) {
		return nil, domain.ErrExpired
	}
	return job, nil
}
