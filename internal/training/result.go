package training

import (
	"time"

	"github.com/couchcryptid/air-quality-model/internal/domain"
)

// Status is the outcome class of one training run.
type Status string

const (
	StatusTrained Status = "trained"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Result reports what happened to one target (or one multi-output target
// group). Skipped and failed results carry no bundle.
type Result struct {
	Status     Status
	Target     string
	Reason     string
	Bundle     *domain.ModelBundle
	StorageKey string
	Metrics    map[string]domain.Metrics
	Duration   time.Duration

	err error
}

// Err returns the typed error behind a skipped or failed result, or nil.
func (r Result) Err() error { return r.err }

func skipped(target string, err error) Result {
	return Result{Status: StatusSkipped, Target: target, Reason: err.Error(), err: err}
}

func failed(target string, err error) Result {
	return Result{Status: StatusFailed, Target: target, Reason: err.Error(), err: err}
}
