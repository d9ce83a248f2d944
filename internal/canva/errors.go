package canva

import (
	"errors"
	"fmt"
)

// Pipeline stages, in execution order.
const (
	StageUpload   = "upload"
	StageAutofill = "autofill"
	StageExport   = "export"
)

// ErrJobTimeout indicates a job was still pending after the polling budget.
var ErrJobTimeout = errors.New("canva: job did not complete within polling budget")

// MissingResultError indicates Canva reported a job as successful but the
// response omitted the field the next stage needs. The response shape is not
// contractually guaranteed, so this is checked on every extraction.
type MissingResultError struct {
	Stage string
	Field string
}

func (e *MissingResultError) Error() string {
	return fmt.Sprintf("canva: %s job succeeded but response is missing %s", e.Stage, e.Field)
}

// JobFailedError carries Canva's own failure report for a job.
type JobFailedError struct {
	Stage   string
	Code    string
	Message string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("canva: %s job failed: %s (%s)", e.Stage, e.Message, e.Code)
}
