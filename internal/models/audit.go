package models

import "time"

// SubmissionOutcome labels an audited commit attempt.
type SubmissionOutcome string

const (
	SubmissionSucceeded SubmissionOutcome = "succeeded"
	SubmissionFailed    SubmissionOutcome = "failed"
)

// SubmissionAudit records one commit attempt made by the wizard or a draft.
type SubmissionAudit struct {
	ID             string            `db:"id" json:"id"`
	SessionID      string            `db:"session_id" json:"session_id"`
	OperatorID     string            `db:"operator_id" json:"operator_id"`
	TeacherID      string            `db:"teacher_id" json:"teacher_id"`
	AcademicYearID string            `db:"academic_year_id" json:"academic_year_id"`
	SubjectID      string            `db:"subject_id" json:"subject_id"`
	SubjectName    string            `db:"subject_name" json:"subject_name"`
	WeeklyPeriods  int               `db:"weekly_periods" json:"weekly_periods"`
	Role           AssignmentRole    `db:"assignment_role" json:"assignment_role"`
	Outcome        SubmissionOutcome `db:"outcome" json:"outcome"`
	Reason         *string           `db:"reason" json:"reason,omitempty"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
}

// SubmissionAuditFilter narrows history queries.
type SubmissionAuditFilter struct {
	TeacherID      string
	AcademicYearID string
	Limit          int
}
