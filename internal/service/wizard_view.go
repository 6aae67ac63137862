package service

import (
	"time"

	"github.com/noah-isme/sma-assignment-engine/internal/models"
)

// RowView presents one subject of the catalogue within a wizard session.
type RowView struct {
	SubjectID          string                    `json:"subject_id"`
	SubjectName        string                    `json:"subject_name"`
	SubjectCode        string                    `json:"subject_code,omitempty"`
	GradeLevel         string                    `json:"grade_level,omitempty"`
	Compatible         bool                      `json:"compatible"`
	IncompatibleReason string                    `json:"incompatible_reason,omitempty"`
	Selected           bool                      `json:"selected"`
	Location           *models.Location          `json:"location,omitempty"`
	LocationName       string                    `json:"location_name,omitempty"`
	WeeklyPeriods      int                       `json:"weekly_periods,omitempty"`
	Role               models.AssignmentRole     `json:"assignment_role,omitempty"`
	Status             models.RowStatus          `json:"status,omitempty"`
	Validation         *models.ValidationOutcome `json:"validation,omitempty"`
	Guidance           []Guidance                `json:"guidance,omitempty"`
	MissingFields      []string                  `json:"missing_fields,omitempty"`
}

// ReviewCounts tallies the selected rows by status.
type ReviewCounts struct {
	Selected    int `json:"selected"`
	Valid       int `json:"valid"`
	Warned      int `json:"warned"`
	Invalid     int `json:"invalid"`
	Unvalidated int `json:"unvalidated"`
}

// WizardView is the full state of a wizard session as returned to clients.
type WizardView struct {
	ID                  string                   `json:"id"`
	Step                models.WizardStep        `json:"step"`
	AcademicYearID      string                   `json:"academic_year_id,omitempty"`
	TeacherID           string                   `json:"teacher_id,omitempty"`
	Teacher             *models.Teacher          `json:"teacher,omitempty"`
	SetupReady          bool                     `json:"setup_ready"`
	LocationKind        models.LocationKind      `json:"location_kind,omitempty"`
	LocationOptions     []models.LocationOption  `json:"location_options"`
	Capacity            *models.CapacitySnapshot `json:"capacity,omitempty"`
	Rows                []RowView                `json:"rows"`
	Counts              ReviewCounts             `json:"counts"`
	Verdict             *models.WorkloadVerdict  `json:"verdict,omitempty"`
	SubmitAllowed       bool                     `json:"submit_allowed"`
	SubmitBlockedReason string                   `json:"submit_blocked_reason,omitempty"`
	RepairPlans         []RepairPlan             `json:"repair_plans,omitempty"`
	Result              *models.SubmissionResult `json:"result,omitempty"`
	Validating          bool                     `json:"validating"`
	Submitting          bool                     `json:"submitting"`
	Loading             bool                     `json:"loading"`
	UpdatedAt           time.Time                `json:"updated_at"`
}

// IncompleteRow names a selected row that cannot be validated yet.
type IncompleteRow struct {
	SubjectID     string   `json:"subject_id"`
	SubjectName   string   `json:"subject_name"`
	MissingFields []string `json:"missing_fields"`
}

func countRows(rows []*models.CandidateRow) ReviewCounts {
	counts := ReviewCounts{}
	for _, row := range rows {
		if !row.Selected {
			continue
		}
		counts.Selected++
		switch row.Status() {
		case models.RowStatusValid:
			counts.Valid++
		case models.RowStatusWarned:
			counts.Warned++
		case models.RowStatusInvalid:
			counts.Invalid++
		default:
			counts.Unvalidated++
		}
	}
	return counts
}
