package domain

import "time"

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSucceeded  JobStatus = "succeeded"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions may occur.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// FailureKind classifies why a job reached the failed state.
type FailureKind string

const (
	FailureInput      FailureKind = "input_error"
	FailureProvider   FailureKind = "provider_error"
	FailureParsing    FailureKind = "parsing_error"
	FailureValidation FailureKind = "validation_failed"
	FailureBuild      FailureKind = "build_error"
	FailureCancelled  FailureKind = "cancelled"
	FailureSystem     FailureKind = "system_fault"
)

// Stage names reported through the status facade while a job is in flight.
const (
	StageQueued     = "queued"
	StageGenerating = "generating"
	StageParsing    = "parsing"
	StageValidating = "validating"
	StageBuilding   = "building"
	StageDone       = "done"
)

// CodeBundle holds the validated output of a conversion.
type CodeBundle struct {
	Markup   string `json:"markup"`
	Style    string `json:"style"`
	Behavior string `json:"behavior"`
}

// Empty reports whether no segment carries code.
func (b CodeBundle) Empty() bool {
	return b.Markup == "" && b.Style == "" && b.Behavior == ""
}

// Job encapsulates one end-to-end screenshot-to-code conversion.
//
// A job has exactly one writer at any time: the intake path before it is
// queued, then whichever worker holds its lease. Generation increments
// whenever ownership is revoked out of band (cancellation, lease reaping) so
// a stale worker's write can be rejected.
type Job struct {
	ID          string
	AccountID   string
	Status      JobStatus
	Framework   Framework
	StyleSystem StyleSystem
	ImageRef    string

	AttemptCount int
	MaxAttempts  int
	Generation   int

	ProviderUsed   string
	TokensConsumed int
	CostEstimate   float64
	ProcessingTime time.Duration

	Stage         string
	Output        *CodeBundle
	FailureKind   FailureKind
	FailureDetail string
	Warning       string

	PackageKey string
	PreviewKey string

	CreditTxnID    string
	NextEligibleAt time.Time
	LeaseExpiresAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
}

// Succeed records the terminal success state.
func (j *Job) Succeed(out *CodeBundle, now time.Time) {
	j.Status = JobStatusSucceeded
	j.Stage = StageDone
	j.Output = out
	j.FailureKind = ""
	j.FailureDetail = ""
	j.UpdatedAt = now
}

// Fail records the terminal failure state.
func (j *Job) Fail(kind FailureKind, detail string, now time.Time) {
	j.Status = JobStatusFailed
	j.Stage = StageDone
	j.Output = nil
	j.FailureKind = kind
	j.FailureDetail = detail
	j.UpdatedAt = now
}
