package models

import "time"

// AssignmentCommand is the payload committed to the school API for one row.
type AssignmentCommand struct {
	TeacherID      string         `json:"teacher_id"`
	SubjectID      string         `json:"subject_id"`
	AcademicYearID string         `json:"academic_year_id"`
	WeeklyPeriods  int            `json:"weekly_periods"`
	Role           AssignmentRole `json:"assignment_role"`
	Location       Location       `json:"-"`
}

// ValidationQuery is the payload sent to the validation oracle.
type ValidationQuery struct {
	TeacherID      string   `json:"teacher_id"`
	SubjectID      string   `json:"subject_id"`
	AcademicYearID string   `json:"academic_year_id"`
	WeeklyPeriods  int      `json:"weekly_periods"`
	Location       Location `json:"-"`
}

// TeacherAssignment is the resource created by a successful commit.
type TeacherAssignment struct {
	ID             string    `json:"id"`
	TeacherID      string    `json:"teacher_id"`
	SubjectID      string    `json:"subject_id"`
	AcademicYearID string    `json:"academic_year_id"`
	WeeklyPeriods  int       `json:"weekly_periods"`
	CreatedAt      time.Time `json:"created_at"`
}
