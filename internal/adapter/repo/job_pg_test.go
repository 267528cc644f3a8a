package repo

import (
	"strings"
	"testing"
)

// The terminal write must persist every per-attempt column; a first-try
// success otherwise stores attempt_count 0 and a last-attempt failure stores
// max_attempts-1, which breaks auditing against the attempt budget.
func TestFinishQueryPersistsAttemptCount(t *testing.T) {
	for _, col := range []string{
		"attempt_count",
		"failure_kind",
		"provider_used",
		"tokens_consumed",
		"processing_ms",
	} {
		if !strings.Contains(qFinishJob, col+" = $") {
			t.Fatalf("finish query does not write %s", col)
		}
	}
	if !strings.Contains(qFinishJob, "generation = $2") {
		t.Fatalf("finish query is not generation-guarded")
	}
}
