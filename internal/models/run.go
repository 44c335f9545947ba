package models

import "time"

type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailure RunStatus = "failure"
)

// Run is one pipeline invocation in the run ledger.
type Run struct {
	ID           string
	PipelineName string
	Status       RunStatus
	StartTime    time.Time
	EndTime      *time.Time // nil while status is running
	RowCount     int
	ErrorMessage *string
	TriggeredBy  string
}
