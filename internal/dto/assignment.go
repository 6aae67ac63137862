package dto

// OpenWizardRequest optionally preselects the setup pair.
type OpenWizardRequest struct {
	AcademicYearID string `json:"academic_year_id"`
	TeacherID      string `json:"teacher_id"`
}

// WizardSetupRequest chooses the academic year and teacher.
type WizardSetupRequest struct {
	AcademicYearID string `json:"academic_year_id" validate:"required"`
	TeacherID      string `json:"teacher_id" validate:"required"`
}

// ToggleRowRequest selects or deselects a subject.
type ToggleRowRequest struct {
	Selected *bool `json:"selected" validate:"required"`
}

// UpdateRowRequest edits candidate fields. Omitted fields are left unchanged;
// an empty location_id clears the location.
type UpdateRowRequest struct {
	LocationID    *string `json:"location_id"`
	WeeklyPeriods *int    `json:"weekly_periods" validate:"omitempty,min=0,max=60"`
	Role          *string `json:"assignment_role" validate:"omitempty,oneof=main_teacher assistant_teacher substitute"`
}

// RepairRequest applies a reduced period count to a row.
type RepairRequest struct {
	WeeklyPeriods int `json:"weekly_periods" validate:"required,min=1"`
}

// DraftRequest creates or edits a single-assignment draft.
type DraftRequest struct {
	TeacherID      *string `json:"teacher_id"`
	AcademicYearID *string `json:"academic_year_id"`
	SubjectID      *string `json:"subject_id"`
	LocationID     *string `json:"location_id"`
	WeeklyPeriods  *int    `json:"weekly_periods" validate:"omitempty,min=0,max=60"`
	Role           *string `json:"assignment_role" validate:"omitempty,oneof=main_teacher assistant_teacher substitute"`
}

// SubmissionHistoryQuery filters the audit history endpoint.
type SubmissionHistoryQuery struct {
	AcademicYearID string `form:"academic_year_id"`
	Limit          int    `form:"limit" validate:"omitempty,min=1,max=500"`
}
