package domain

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"
)

// ImportStatus represents the lifecycle state of an import job.
type ImportStatus string

const (
	ImportStatusPending    ImportStatus = "pending"
	ImportStatusProcessing ImportStatus = "processing"
	ImportStatusCompleted  ImportStatus = "completed"
	ImportStatusFailed     ImportStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s ImportStatus) IsTerminal() bool {
	return s == ImportStatusCompleted || s == ImportStatusFailed
}

// MaxErrorLogEntries bounds the per-job error log.
const MaxErrorLogEntries = 500

// ErrInvalidTransition is returned when a job is moved against its state machine.
var ErrInvalidTransition = errors.New("invalid import status transition")

// SheetSummary is the per-sheet metadata recorded on a job.
type SheetSummary struct {
	Kind     SheetKind `json:"kind"`
	Rows     int       `json:"rows"`
	Kept     int       `json:"kept"`
	Filtered int       `json:"filtered"`
	Dropped  int       `json:"dropped"` // No product identifier
	Failed   int       `json:"failed"`
}

// ImportJob is one uploaded workbook and the progress of its ingestion.
type ImportJob struct {
	ID       string       `json:"id"`
	UserID   string       `json:"user_id"`
	FileName string       `json:"file_name"`
	Dialect  Dialect      `json:"dialect"`
	Status   ImportStatus `json:"status"`
	Progress int          `json:"progress"` // 0-100

	TotalRecords     int `json:"total_records"`
	ProcessedRecords int `json:"processed_records"`
	ErrorRecords     int `json:"error_records"`
	DuplicateRecords int `json:"duplicate_records"`
	NewRecords       int `json:"new_records"`

	ErrorLog         []string                `json:"error_log"`
	ErrorLogOverflow int                     `json:"error_log_overflow,omitempty"` // Entries that did not fit
	Sheets           map[string]SheetSummary `json:"sheets,omitempty"`

	// Fingerprint is the whole-import fingerprint, set on completion.
	Fingerprint        string `json:"fingerprint,omitempty"`
	AggregationSkipped bool   `json:"aggregation_skipped"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewImportJob returns a pending job.
func NewImportJob(id, userID, fileName string, now time.Time) *ImportJob {
	return &ImportJob{
		ID:        id,
		UserID:    userID,
		FileName:  fileName,
		Dialect:   DialectUnknown,
		Status:    ImportStatusPending,
		ErrorLog:  []string{},
		Sheets:    map[string]SheetSummary{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Start moves a pending job to processing and resets its progress.
func (j *ImportJob) Start(now time.Time) error {
	if j.Status != ImportStatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, ImportStatusProcessing)
	}
	j.Status = ImportStatusProcessing
	j.Progress = 0
	j.StartedAt = &now
	j.UpdatedAt = now
	return nil
}

// SetProgress records progress while processing. Progress never decreases.
func (j *ImportJob) SetProgress(processed, total int, now time.Time) error {
	if j.Status != ImportStatusProcessing {
		return fmt.Errorf("%w: progress on %s job", ErrInvalidTransition, j.Status)
	}
	p := 100
	if total > 0 {
		p = processed * 100 / total
	}
	p = min(max(p, 0), 100)
	if p > j.Progress {
		j.Progress = p
	}
	j.ProcessedRecords = processed
	j.UpdatedAt = now
	return nil
}

// Complete marks the job completed. Row errors do not prevent completion.
func (j *ImportJob) Complete(now time.Time) error {
	if j.Status != ImportStatusProcessing {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, ImportStatusCompleted)
	}
	j.Status = ImportStatusCompleted
	j.Progress = 100
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// Fail marks the job failed with a single top-level message.
func (j *ImportJob) Fail(msg string, now time.Time) error {
	if j.Status.IsTerminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, ImportStatusFailed)
	}
	j.Status = ImportStatusFailed
	j.appendFatal(msg)
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// AppendError adds an entry to the bounded error log.
// Once the bound is reached a single overflow marker is kept up to date.
func (j *ImportJob) AppendError(msg string) {
	if len(j.ErrorLog) < MaxErrorLogEntries {
		j.ErrorLog = append(j.ErrorLog, msg)
		return
	}
	j.ErrorLogOverflow++
	j.ErrorLog[MaxErrorLogEntries-1] = fmt.Sprintf("... %d more errors", j.ErrorLogOverflow+1)
}

// appendFatal adds msg as the last entry of the bounded log. On a full log the
// overflow marker moves up one slot to make room.
func (j *ImportJob) appendFatal(msg string) {
	if len(j.ErrorLog) < MaxErrorLogEntries {
		j.ErrorLog = append(j.ErrorLog, msg)
		return
	}
	hidden := 2
	if j.ErrorLogOverflow > 0 {
		hidden = j.ErrorLogOverflow + 2
	}
	j.ErrorLogOverflow++
	j.ErrorLog[MaxErrorLogEntries-2] = fmt.Sprintf("... %d more errors", hidden)
	j.ErrorLog[MaxErrorLogEntries-1] = msg
}

// HasErrors reports whether any rows failed. Use with Status to tell
// "completed with N row errors" from "failed".
func (j *ImportJob) HasErrors() bool {
	return j.ErrorRecords > 0
}

// Clone returns a deep copy of the job.
func (j *ImportJob) Clone() *ImportJob {
	c := *j
	c.ErrorLog = slices.Clone(j.ErrorLog)
	c.Sheets = maps.Clone(j.Sheets)
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
