package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"snapcode/internal/codecheck"
	"snapcode/internal/domain"
	"snapcode/internal/parser"
	"snapcode/internal/pkgbuild"
	"snapcode/internal/preview"
	"snapcode/internal/provider"
)

// PipelineError classifies a stage failure for the scheduler. Retryable
// failures are re-attempted up to the job's budget; FailureSystem ones are
// retried without consuming an attempt, since the job itself did nothing
// wrong.
type PipelineError struct {
	Kind       domain.FailureKind
	Retryable  bool
	RetryAfter time.Duration
	Err        error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline (%s): %v", e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

func stageFail(kind domain.FailureKind, retryable bool, err error) *PipelineError {
	return &PipelineError{Kind: kind, Retryable: retryable, Err: err}
}

// Process runs one conversion attempt end to end, mutating job with the
// results. Stage transitions are persisted best-effort so status polling
// tracks progress; the authoritative terminal write is the scheduler's.
func (s *Service) Process(ctx context.Context, job *domain.Job) error {
	image, mime, err := s.images.Fetch(ctx, job.ImageRef)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return stageFail(domain.FailureInput, false, fmt.Errorf("screenshot %s is gone: %w", job.ImageRef, err))
		}
		return stageFail(domain.FailureSystem, true, fmt.Errorf("fetch screenshot: %w", err))
	}

	opts := domain.Options{Framework: job.Framework, StyleSystem: job.StyleSystem}
	resp, err := s.router.Convert(ctx, provider.Request{
		JobID:     job.ID,
		ImageData: image,
		ImageMIME: mime,
		Options:   opts,
	})
	if err != nil {
		return classifyProviderErr(err)
	}
	job.ProviderUsed = resp.Provider
	job.TokensConsumed += resp.TokensUsed
	job.CostEstimate += resp.Cost

	s.setStage(ctx, job, domain.StageParsing)
	parsed, err := parser.Parse(resp.Text, job.Framework)
	if err != nil {
		return stageFail(domain.FailureParsing, true, err)
	}

	s.setStage(ctx, job, domain.StageValidating)
	if err := codecheck.Validate(parsed.Bundle, job.Framework, parsed.Truncated); err != nil {
		return stageFail(domain.FailureValidation, true, err)
	}
	bundle := codecheck.Format(parsed.Bundle)

	s.setStage(ctx, job, domain.StageBuilding)
	var (
		pkgData    []byte
		previewDoc string
		previewErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pkgData, err = pkgbuild.Build(bundle, opts)
		return err
	})
	g.Go(func() error {
		// A broken preview downgrades the job, never fails it.
		previewDoc, previewErr = preview.Build(bundle, job.Framework)
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		return stageFail(domain.FailureBuild, false, err)
	}

	pkgKey, err := s.files.Write(ctx, fmt.Sprintf("artifacts/%s/package.zip", job.ID), pkgData)
	if err != nil {
		return stageFail(domain.FailureSystem, true, fmt.Errorf("persist package: %w", err))
	}
	job.PackageKey = pkgKey

	if previewErr != nil {
		job.Warning = "preview unavailable: " + previewErr.Error()
		s.log.Warn().Err(previewErr).Str("job_id", job.ID).Msg("convert: preview build failed")
	} else {
		prevKey, err := s.files.Write(ctx, fmt.Sprintf("artifacts/%s/preview.html", job.ID), []byte(previewDoc))
		if err != nil {
			job.Warning = "preview unavailable: " + err.Error()
			s.log.Warn().Err(err).Str("job_id", job.ID).Msg("convert: preview persist failed")
		} else {
			job.PreviewKey = prevKey
		}
	}

	job.Output = &bundle
	return nil
}

func (s *Service) setStage(ctx context.Context, job *domain.Job, stage string) {
	job.Stage = stage
	if err := s.jobs.SetStage(ctx, job.ID, stage); err != nil {
		s.log.Debug().Err(err).Str("job_id", job.ID).Str("stage", stage).Msg("convert: stage update failed")
	}
}

// classifyProviderErr maps router failures onto scheduler semantics. Shutdown
// cancellation is a system fault so the attempt is not charged against the
// job; everything else is a provider failure, permanent when every tried
// provider rejected the request outright.
func classifyProviderErr(err error) *PipelineError {
	if errors.Is(err, context.Canceled) {
		return stageFail(domain.FailureSystem, true, err)
	}
	var perr *provider.Error
	if errors.As(err, &perr) {
		pe := stageFail(domain.FailureProvider, !perr.Permanent, err)
		pe.RetryAfter = perr.RetryAfter
		return pe
	}
	return stageFail(domain.FailureProvider, true, err)
}
