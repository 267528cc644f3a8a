package convert

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"snapcode/internal/adapter/repo"
	"snapcode/internal/domain"
	"snapcode/internal/ledger"
	"snapcode/internal/provider"
	"snapcode/internal/storage"
)

var testTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type textConverter struct {
	text string
	err  error
}

func (c *textConverter) Convert(context.Context, provider.Request) (*provider.RawResponse, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &provider.RawResponse{Text: c.text, Provider: "stub", TokensUsed: 10}, nil
}

func newService(t *testing.T, conv Converter) (*Service, *repo.JobStoreMemory, *ledger.Guard) {
	t.Helper()
	log := zerolog.Nop()
	clock := func() time.Time { return testTime }
	files, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	jobs := repo.NewJobStoreMemory()
	guard := ledger.NewGuard(repo.NewLedgerStoreMemory(), log).WithClock(clock)
	svc := NewService(jobs, guard, storage.NewImageStore(files), files, conv, nil,
		ServiceOptions{MaxAttempts: 3, ArtifactTTL: time.Hour}, log).WithClock(clock)
	return svc, jobs, guard
}

func fund(t *testing.T, guard *ledger.Guard, account string, amount int64) {
	t.Helper()
	if err := guard.Credit(context.Background(), account, amount, domain.EntryPurchase); err != nil {
		t.Fatalf("fund: %v", err)
	}
}

func TestSubmitValidation(t *testing.T) {
	svc, _, guard := newService(t, provider.NewDemoClient())
	fund(t, guard, "acct", 10)
	ctx := context.Background()
	valid := domain.Options{Framework: domain.FrameworkHTML, StyleSystem: domain.StyleCSS}

	cases := []struct {
		name    string
		account string
		image   []byte
		mime    string
		opts    domain.Options
		wantErr error
	}{
		{"bad framework", "acct", []byte("img"), "image/png", domain.Options{Framework: "angular", StyleSystem: domain.StyleCSS}, domain.ErrInvalidOptions},
		{"bad style system", "acct", []byte("img"), "image/png", domain.Options{Framework: domain.FrameworkHTML, StyleSystem: "less"}, domain.ErrInvalidOptions},
		{"empty image", "acct", nil, "image/png", valid, domain.ErrInvalidImage},
		{"bad mime", "acct", []byte("img"), "image/gif", valid, domain.ErrInvalidImage},
		{"oversized image", "acct", bytes.Repeat([]byte("x"), MaxImageBytes+1), "image/png", valid, domain.ErrInvalidImage},
		{"missing account", "", []byte("img"), "image/png", valid, domain.ErrInvalidOptions},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Submit(ctx, tc.account, tc.image, tc.mime, tc.opts); !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}

	// Rejected submissions must not touch the balance.
	if balance, _ := guard.Balance(ctx, "acct"); balance != 10 {
		t.Fatalf("balance = %d, want untouched 10", balance)
	}
}

func TestRejectedSubmitLeavesNoUpload(t *testing.T) {
	ctx := context.Background()
	log := zerolog.Nop()
	dir := t.TempDir()
	files, err := storage.NewFileStore(dir)
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	jobs := repo.NewJobStoreMemory()
	guard := ledger.NewGuard(repo.NewLedgerStoreMemory(), log)
	svc := NewService(jobs, guard, storage.NewImageStore(files), files, provider.NewDemoClient(), nil,
		ServiceOptions{}, log)

	_, err = svc.Submit(ctx, "acct-broke", []byte("img"), "image/png",
		domain.Options{Framework: domain.FrameworkHTML, StyleSystem: domain.StyleCSS})
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}

	// The rejection must not strand the screenshot in storage.
	stored := 0
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			stored++
		}
		return nil
	})
	if walkErr != nil {
		t.Fatalf("walk: %v", walkErr)
	}
	if stored != 0 {
		t.Fatalf("rejected submission left %d stored files", stored)
	}
}

func TestSubmitEnqueuesWithHold(t *testing.T) {
	ctx := context.Background()
	svc, jobs, guard := newService(t, provider.NewDemoClient())
	fund(t, guard, "acct", 2)

	job, err := svc.Submit(ctx, "acct", []byte("img"), "image/png",
		domain.Options{Framework: domain.FrameworkVue, StyleSystem: domain.StyleNone})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	stored, err := jobs.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != domain.JobStatusQueued || stored.Stage != domain.StageQueued {
		t.Fatalf("stored state %s/%s", stored.Status, stored.Stage)
	}
	if stored.CreditTxnID == "" {
		t.Fatalf("job carries no reservation")
	}
	if stored.ExpiresAt != testTime.Add(time.Hour) {
		t.Fatalf("expires at %v", stored.ExpiresAt)
	}
	if balance, _ := guard.Balance(ctx, "acct"); balance != 1 {
		t.Fatalf("balance = %d, want 1 after hold", balance)
	}
}

func TestStatusView(t *testing.T) {
	ctx := context.Background()
	svc, jobs, guard := newService(t, provider.NewDemoClient())
	fund(t, guard, "acct", 2)
	job, err := svc.Submit(ctx, "acct", []byte("img"), "image/png",
		domain.Options{Framework: domain.FrameworkHTML, StyleSystem: domain.StyleCSS})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	view, err := svc.Status(ctx, job.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if view.Status != domain.JobStatusQueued || view.Stage != domain.StageQueued {
		t.Fatalf("view %s/%s", view.Status, view.Stage)
	}
	if view.PackageReady || view.PreviewReady {
		t.Fatalf("artifacts reported ready for queued job")
	}

	// Terminal failure surfaces its classification.
	stored, _ := jobs.Get(ctx, job.ID)
	claimed, err := jobs.Claim(ctx, testTime, time.Minute)
	if err != nil || claimed.ID != stored.ID {
		t.Fatalf("claim: %v", err)
	}
	claimed.Fail(domain.FailureValidation, "unbalanced tags", testTime)
	if err := jobs.Finish(ctx, claimed); err != nil {
		t.Fatalf("finish: %v", err)
	}
	view, _ = svc.Status(ctx, job.ID)
	if view.FailureKind != domain.FailureValidation || view.FailureDetail == "" {
		t.Fatalf("failure not surfaced: %+v", view)
	}

	if _, err := svc.Status(ctx, "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing job err = %v", err)
	}
}

func TestArtifactsBeforeCompletion(t *testing.T) {
	ctx := context.Background()
	svc, _, guard := newService(t, provider.NewDemoClient())
	fund(t, guard, "acct", 2)
	job, err := svc.Submit(ctx, "acct", []byte("img"), "image/png",
		domain.Options{Framework: domain.FrameworkHTML, StyleSystem: domain.StyleCSS})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, _, err := svc.Package(ctx, job.ID); !errors.Is(err, domain.ErrNotReady) {
		t.Fatalf("package err = %v, want ErrNotReady", err)
	}
	if _, err := svc.Preview(ctx, job.ID); !errors.Is(err, domain.ErrNotReady) {
		t.Fatalf("preview err = %v, want ErrNotReady", err)
	}
}

func TestProcessSuccessWritesArtifacts(t *testing.T) {
	ctx := context.Background()
	svc, jobs, guard := newService(t, provider.NewDemoClient())
	fund(t, guard, "acct", 2)
	if _, err := svc.Submit(ctx, "acct", []byte("img"), "image/png",
		domain.Options{Framework: domain.FrameworkHTML, StyleSystem: domain.StyleCSS}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	claimed, err := jobs.Claim(ctx, testTime, time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	if err := svc.Process(ctx, claimed); err != nil {
		t.Fatalf("process: %v", err)
	}
	if claimed.Output == nil || claimed.Output.Markup == "" {
		t.Fatalf("no output bundle")
	}
	if claimed.PackageKey == "" || claimed.PreviewKey == "" {
		t.Fatalf("artifact keys missing: %q %q", claimed.PackageKey, claimed.PreviewKey)
	}
	if claimed.ProviderUsed != "demo" {
		t.Fatalf("provider accounting: %s", claimed.ProviderUsed)
	}
}

func TestProcessClassifiesParsingFailure(t *testing.T) {
	ctx := context.Background()
	svc, jobs, guard := newService(t, &textConverter{text: "I could not read this screenshot, sorry."})
	fund(t, guard, "acct", 2)
	if _, err := svc.Submit(ctx, "acct", []byte("img"), "image/png",
		domain.Options{Framework: domain.FrameworkHTML, StyleSystem: domain.StyleCSS}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	claimed, err := jobs.Claim(ctx, testTime, time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	err = svc.Process(ctx, claimed)
	var perr *PipelineError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *PipelineError", err)
	}
	if perr.Kind != domain.FailureParsing || !perr.Retryable {
		t.Fatalf("classified %s retryable=%v, want parsing_error retryable", perr.Kind, perr.Retryable)
	}
}

func TestProcessClassifiesValidationFailure(t *testing.T) {
	ctx := context.Background()
	svc, jobs, guard := newService(t, &textConverter{text: "```html\n<div><p>unclosed</div>\n```"})
	fund(t, guard, "acct", 2)
	if _, err := svc.Submit(ctx, "acct", []byte("img"), "image/png",
		domain.Options{Framework: domain.FrameworkHTML, StyleSystem: domain.StyleCSS}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	claimed, err := jobs.Claim(ctx, testTime, time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	err = svc.Process(ctx, claimed)
	var perr *PipelineError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *PipelineError", err)
	}
	if perr.Kind != domain.FailureValidation || !perr.Retryable {
		t.Fatalf("classified %s retryable=%v, want validation_failed retryable", perr.Kind, perr.Retryable)
	}
}
