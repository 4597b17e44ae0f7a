package domain

import (
	"time"

	"github.com/google/uuid"
)

// FillRun is the persisted record of one form fill attempt.
type FillRun struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	UserID      uuid.UUID  `json:"user_id" db:"user_id"`
	FormURL     string     `json:"form_url" db:"form_url"`
	AutoSubmit  bool       `json:"auto_submit" db:"auto_submit"`
	Status      RunStatus  `json:"status" db:"status"`
	Report      *RunReport `json:"report,omitempty"`
	TriggeredBy string     `json:"triggered_by" db:"triggered_by"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// NewFillRun creates a pending fill run.
func NewFillRun(userID uuid.UUID, formURL string, autoSubmit bool, triggeredBy string) *FillRun {
	now := time.Now().UTC()
	return &FillRun{
		ID:          uuid.New(),
		UserID:      userID,
		FormURL:     formURL,
		AutoSubmit:  autoSubmit,
		Status:      RunStatusPending,
		TriggeredBy: triggeredBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Start marks the run as running.
func (r *FillRun) Start() {
	now := time.Now().UTC()
	r.Status = RunStatusRunning
	r.StartedAt = &now
	r.UpdatedAt = now
}

// Finish attaches the report and adopts its terminal status.
func (r *FillRun) Finish(report *RunReport) {
	now := time.Now().UTC()
	r.Report = report
	r.Status = report.Status
	r.CompletedAt = &now
	r.UpdatedAt = now
}

// Fail marks the run as failed with a report carrying only the error.
func (r *FillRun) Fail(message string) {
	report := NewRunReport()
	report.Status = RunStatusFailed
	report.ErrorMessage = message
	r.Finish(report)
}

// IsTerminal reports whether the run has reached a final state.
func (r *FillRun) IsTerminal() bool {
	return r.Status == RunStatusCompleted || r.Status == RunStatusFailed
}
