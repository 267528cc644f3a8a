package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"snapcode/internal/domain"
)

var t0 = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func queuedJob(id string, createdAt time.Time) *domain.Job {
	return &domain.Job{
		ID:             id,
		AccountID:      "acct",
		Status:         domain.JobStatusQueued,
		Framework:      domain.FrameworkHTML,
		StyleSystem:    domain.StyleCSS,
		Stage:          domain.StageQueued,
		MaxAttempts:    3,
		NextEligibleAt: createdAt,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
		ExpiresAt:      createdAt.Add(72 * time.Hour),
	}
}

func TestClaimOldestEligibleFirst(t *testing.T) {
	ctx := context.Background()
	s := NewJobStoreMemory()
	for _, j := range []*domain.Job{
		queuedJob("newer", t0.Add(time.Minute)),
		queuedJob("older", t0),
		queuedJob("deferred", t0.Add(-time.Hour)),
	} {
		if err := s.Create(ctx, j); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	// The oldest job is deferred into the future and must be skipped.
	deferred, _ := s.Get(ctx, "deferred")
	deferred.NextEligibleAt = t0.Add(time.Hour)
	if err := s.Create(ctx, deferred); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	claimed, err := s.Claim(ctx, t0.Add(2*time.Minute), 5*time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.ID != "older" {
		t.Fatalf("claimed %s, want older", claimed.ID)
	}
	if claimed.Status != domain.JobStatusProcessing || claimed.Stage != domain.StageGenerating {
		t.Fatalf("claimed job in state %s/%s", claimed.Status, claimed.Stage)
	}

	// Claimed jobs cannot be claimed again.
	second, err := s.Claim(ctx, t0.Add(2*time.Minute), 5*time.Minute)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if second.ID == claimed.ID {
		t.Fatalf("job %s leased twice", claimed.ID)
	}
}

func TestClaimEmptyQueue(t *testing.T) {
	s := NewJobStoreMemory()
	if _, err := s.Claim(context.Background(), t0, time.Minute); !errors.Is(err, domain.ErrNoJobReady) {
		t.Fatalf("err = %v, want ErrNoJobReady", err)
	}
}

func TestFinishRejectsStaleGeneration(t *testing.T) {
	ctx := context.Background()
	s := NewJobStoreMemory()
	if err := s.Create(ctx, queuedJob("job", t0)); err != nil {
		t.Fatalf("create: %v", err)
	}
	claimed, err := s.Claim(ctx, t0, time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	if _, err := s.Cancel(ctx, "job", t0.Add(time.Second)); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	claimed.Succeed(&domain.CodeBundle{Markup: "<p>late</p>"}, t0.Add(2*time.Second))
	if err := s.Finish(ctx, claimed); !errors.Is(err, domain.ErrStaleOwner) {
		t.Fatalf("finish err = %v, want ErrStaleOwner", err)
	}
	if err := s.Requeue(ctx, claimed); !errors.Is(err, domain.ErrStaleOwner) {
		t.Fatalf("requeue err = %v, want ErrStaleOwner", err)
	}

	got, _ := s.Get(ctx, "job")
	if got.Status != domain.JobStatusFailed || got.FailureKind != domain.FailureCancelled {
		t.Fatalf("job state %s/%s, want failed/cancelled", got.Status, got.FailureKind)
	}
}

func TestCancelTerminalJob(t *testing.T) {
	ctx := context.Background()
	s := NewJobStoreMemory()
	job := queuedJob("job", t0)
	if err := s.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	claimed, _ := s.Claim(ctx, t0, time.Minute)
	claimed.AttemptCount = 2
	claimed.Succeed(&domain.CodeBundle{Markup: "<p>x</p>"}, t0)
	if err := s.Finish(ctx, claimed); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if got, _ := s.Get(ctx, "job"); got.AttemptCount != 2 {
		t.Fatalf("terminal attempt_count = %d, want 2", got.AttemptCount)
	}
	if _, err := s.Cancel(ctx, "job", t0); !errors.Is(err, domain.ErrAlreadyTerminal) {
		t.Fatalf("cancel err = %v, want ErrAlreadyTerminal", err)
	}
}

func TestReapExpiredLeases(t *testing.T) {
	ctx := context.Background()
	s := NewJobStoreMemory()
	if err := s.Create(ctx, queuedJob("job", t0)); err != nil {
		t.Fatalf("create: %v", err)
	}
	claimed, _ := s.Claim(ctx, t0, time.Minute)

	// Before expiry nothing is reaped.
	if n, _ := s.ReapExpiredLeases(ctx, t0.Add(30*time.Second)); n != 0 {
		t.Fatalf("reaped %d before expiry", n)
	}
	n, err := s.ReapExpiredLeases(ctx, t0.Add(2*time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("reaped %d, err %v, want 1", n, err)
	}

	got, _ := s.Get(ctx, "job")
	if got.Status != domain.JobStatusQueued {
		t.Fatalf("status = %s, want queued", got.Status)
	}
	if got.Generation != claimed.Generation+1 {
		t.Fatalf("generation = %d, want bumped", got.Generation)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewJobStoreMemory()
	if err := s.Create(ctx, queuedJob("job", t0)); err != nil {
		t.Fatalf("create: %v", err)
	}
	a, _ := s.Get(ctx, "job")
	a.Status = domain.JobStatusFailed
	b, _ := s.Get(ctx, "job")
	if b.Status != domain.JobStatusQueued {
		t.Fatalf("mutation through returned pointer leaked into store")
	}
}
